package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"
)

// File is a local file to upload.
type File struct {
	Name string
	Size int64
	Data io.ReaderAt
}

// OpenFile opens path for upload. The caller closes the returned file.
func OpenFile(path string) (File, *os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return File{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return File{}, nil, err
	}
	return File{Name: filepath.Base(path), Size: info.Size(), Data: f}, f, nil
}

type Progress struct {
	Loaded      int64 `json:"loaded"`
	Total       int64 `json:"total"`
	Percentage  int   `json:"percentage"`
	ChunkIndex  int   `json:"chunkIndex"`
	TotalChunks int   `json:"totalChunks"`
}

// Result is the outcome of an upload. Failures never surface as a panic or
// error value, only as Success false with a message.
type Result struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func failed(err error) Result {
	return Result{Success: false, Error: err.Error()}
}

// NewFileID returns an upload id of the form <unixms>-<base36>.
func NewFileID(now time.Time) string {
	return strconv.FormatInt(now.UnixMilli(), 10) + "-" + strconv.FormatUint(uint64(rand.Uint32()), 36)
}

func percentage(loaded, total int64) int {
	if total <= 0 {
		return 0
	}
	return int((loaded*100 + total/2) / total)
}

// progressReporter drops reports that would move loaded backwards.
type progressReporter struct {
	mu     sync.Mutex
	fn     func(Progress)
	loaded int64
}

func (r *progressReporter) report(p Progress) {
	if r.fn == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.Loaded < r.loaded {
		return
	}
	r.loaded = p.Loaded
	p.Percentage = percentage(p.Loaded, p.Total)
	r.fn(p)
}

func validateUpload(f File, ownerID string) error {
	if f.Data == nil || f.Size <= 0 {
		return errors.New("file is empty")
	}
	if strings.TrimSpace(ownerID) == "" {
		return errors.New("ownerId is required")
	}
	return nil
}

// UploadChunked sends f as indexed chunks to endpoint and then asks the server
// to merge them. Each chunk is tried up to MaxAttempts times.
func (c *Client) UploadChunked(ctx context.Context, f File, ownerID, endpoint string, onProgress func(Progress)) Result {
	if err := validateUpload(f, ownerID); err != nil {
		return failed(err)
	}
	total := int((f.Size + c.chunkSize - 1) / c.chunkSize)
	fileID := NewFileID(c.now())
	reporter := &progressReporter{fn: onProgress}

	for idx := 0; idx < total; idx++ {
		start := int64(idx) * c.chunkSize
		end := start + c.chunkSize
		if end > f.Size {
			end = f.Size
		}
		if err := c.sendChunkWithRetry(ctx, f, fileID, ownerID, endpoint, idx, total, start, end); err != nil {
			return failed(fmt.Errorf("chunk %d/%d: %w", idx+1, total, err))
		}
		reporter.report(Progress{Loaded: end, Total: f.Size, ChunkIndex: idx, TotalChunks: total})
	}

	payload, err := json.Marshal(map[string]string{"fileId": fileID, "fileName": f.Name, "ownerId": ownerID})
	if err != nil {
		return failed(err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, mergeEndpoint(endpoint), bytes.NewReader(payload), "application/json")
	if err != nil {
		return failed(err)
	}
	raw, _, err := c.do(req)
	if err != nil {
		return failed(fmt.Errorf("merge: %w", err))
	}
	return Result{Success: true, Data: raw}
}

func mergeEndpoint(endpoint string) string {
	if strings.Contains(endpoint, "?") {
		return endpoint + "&action=merge"
	}
	return endpoint + "?action=merge"
}

func (c *Client) sendChunkWithRetry(ctx context.Context, f File, fileID, ownerID, endpoint string, idx, total int, start, end int64) error {
	var lastErr error
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		lastErr = c.sendChunk(ctx, f, fileID, ownerID, endpoint, idx, total, start, end)
		if lastErr == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt < c.maxAttempts {
			if err := c.sleep(ctx, time.Duration(attempt)*retryStep); err != nil {
				return err
			}
		}
	}
	return lastErr
}

func (c *Client) sendChunk(ctx context.Context, f File, fileID, ownerID, endpoint string, idx, total int, start, end int64) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fields := [][2]string{
		{"chunkIndex", strconv.Itoa(idx)},
		{"totalChunks", strconv.Itoa(total)},
		{"fileId", fileID},
		{"fileName", f.Name},
		{"ownerId", ownerID},
	}
	for _, kv := range fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("chunk", f.Name)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, io.NewSectionReader(f.Data, start, end-start)); err != nil {
		return fmt.Errorf("read chunk: %w", err)
	}
	if err := mw.Close(); err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, &body, mw.FormDataContentType())
	if err != nil {
		return err
	}
	_, _, err = c.do(req)
	return err
}

type countingReader struct {
	r      io.Reader
	loaded int64
	total  int64
	report func(Progress)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.loaded += int64(n)
		cr.report(Progress{Loaded: cr.loaded, Total: cr.total, TotalChunks: 1})
	}
	return n, err
}

// UploadSingle streams f in one multipart request with fields file and
// ownerId. Progress follows the bytes read from f.
func (c *Client) UploadSingle(ctx context.Context, f File, ownerID, endpoint string, onProgress func(Progress)) Result {
	if err := validateUpload(f, ownerID); err != nil {
		return failed(err)
	}
	reporter := &progressReporter{fn: onProgress}
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		err := func() error {
			if err := mw.WriteField("ownerId", ownerID); err != nil {
				return err
			}
			part, err := mw.CreateFormFile("file", f.Name)
			if err != nil {
				return err
			}
			src := &countingReader{r: io.NewSectionReader(f.Data, 0, f.Size), total: f.Size, report: reporter.report}
			if _, err := io.Copy(part, src); err != nil {
				return err
			}
			return mw.Close()
		}()
		_ = pw.CloseWithError(err)
	}()

	req, err := c.newRequest(ctx, http.MethodPost, endpoint, pr, mw.FormDataContentType())
	if err != nil {
		_ = pr.CloseWithError(err)
		return failed(err)
	}
	_, env, err := c.do(req)
	_ = pr.Close()
	if err != nil {
		return failed(err)
	}
	return Result{Success: true, Data: env.Data}
}
