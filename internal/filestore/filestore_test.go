package filestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/famlearn/internal/config"
)

func TestCleanKey(t *testing.T) {
	good := map[string]string{
		"a.jpg":                  "a.jpg",
		"/images/2024-01/a.jpg":  "images/2024-01/a.jpg",
		"books//2024-01/./b.pdf": "books/2024-01/b.pdf",
	}
	for in, want := range good {
		got, err := CleanKey(in)
		require.NoError(t, err, in)
		require.Equal(t, want, got)
	}
	for _, bad := range []string{"", "  ", "../etc/passwd", "a/../../b", "a\\b", "/", "."} {
		_, err := CleanKey(bad)
		require.Error(t, err, bad)
	}
}

func TestLocalStore_SaveOpen(t *testing.T) {
	dir := t.TempDir()
	store, err := New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{"dir": dir}})
	require.NoError(t, err)
	require.Equal(t, "local", store.Type())

	ctx := context.Background()
	require.NoError(t, store.Save(ctx, "images/2024-05/01_120000_abcd1234.jpg", strings.NewReader("jpeg"), 4))

	_, err = os.Stat(filepath.Join(dir, "images", "2024-05", "01_120000_abcd1234.jpg"))
	require.NoError(t, err)

	rc, err := store.Open(ctx, "images/2024-05/01_120000_abcd1234.jpg")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	require.Equal(t, "jpeg", string(data))
	_, ok := rc.(io.ReadSeeker)
	require.True(t, ok)

	_, err = store.Open(ctx, "images/missing.jpg")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = store.Open(ctx, "images")
	require.ErrorIs(t, err, ErrNotFound)
	require.Error(t, store.Save(ctx, "../escape.txt", strings.NewReader("x"), 1))

	entries, err := os.ReadDir(filepath.Join(dir, "images", "2024-05"))
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.Equal(t, "http://host/api/files/images/a.jpg", store.URL("/images/a.jpg", "http://host/"))

	require.NoError(t, store.Delete(ctx, "images/2024-05/01_120000_abcd1234.jpg"))
	_, err = store.Open(ctx, "images/2024-05/01_120000_abcd1234.jpg")
	require.ErrorIs(t, err, ErrNotFound)
	require.NoError(t, store.Delete(ctx, "images/2024-05/01_120000_abcd1234.jpg"))
	require.Error(t, store.Delete(ctx, "../escape.txt"))
}

func TestNew_Errors(t *testing.T) {
	_, err := New(config.FileStoreConfig{})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "ftp", Data: map[string]interface{}{}})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "local", Data: map[string]interface{}{}})
	require.Error(t, err)
	_, err = New(config.FileStoreConfig{Type: "s3", Data: map[string]interface{}{"bucket": "b"}})
	require.Error(t, err)
}

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (f *fakeS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = data
	f.mu.Unlock()
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (f *fakeS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.mu.Lock()
	delete(f.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	f.mu.Unlock()
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) UploadPart(ctx context.Context, in *s3.UploadPartInput, _ ...func(*s3.Options)) (*s3.UploadPartOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, _ ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error) {
	return nil, errors.New("multipart not expected")
}

func (f *fakeS3) AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, _ ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error) {
	return &s3.AbortMultipartUploadOutput{}, nil
}

func TestS3Store_SaveOpen(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}}
	store := newS3Store(fake, &s3Config{Endpoint: "minio:9000", Bucket: "learn", Prefix: "/famlearn/"})
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "books/2024-05/a.pdf", strings.NewReader("%PDF"), 4))
	require.Contains(t, fake.objects, "learn/famlearn/books/2024-05/a.pdf")

	rc, err := store.Open(ctx, "books/2024-05/a.pdf")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "%PDF", string(data))

	_, err = store.Open(ctx, "books/none.pdf")
	require.ErrorIs(t, err, ErrNotFound)
	require.Error(t, store.Save(ctx, "../x", strings.NewReader(""), 0))

	require.Equal(t, "http://minio:9000/learn/famlearn/books/a.pdf", store.URL("books/a.pdf", ""))

	require.NoError(t, store.Delete(ctx, "books/2024-05/a.pdf"))
	require.NotContains(t, fake.objects, "learn/famlearn/books/2024-05/a.pdf")
}
