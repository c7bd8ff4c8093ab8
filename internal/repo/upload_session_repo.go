package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/famlearn/internal/model"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
)

var uploadSessionFields = []string{"file_id", "file_name", "owner_id", "total_chunks", "received", "status", "file_path", "ctime", "mtime"}

type UploadSessionRepo struct {
	db *DB
}

func NewUploadSessionRepo(db *DB) *UploadSessionRepo {
	return &UploadSessionRepo{db: db}
}

func (r *UploadSessionRepo) SaveUploadSession(ctx context.Context, s *model.UploadSession) error {
	received, err := json.Marshal(s.Received)
	if err != nil {
		return fmt.Errorf("encode received chunks: %w", err)
	}
	sqlStr := `
		INSERT INTO upload_sessions (file_id, file_name, owner_id, total_chunks, received, status, file_path, ctime, mtime)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (file_id)
		DO UPDATE SET
			file_name = EXCLUDED.file_name,
			owner_id = EXCLUDED.owner_id,
			total_chunks = EXCLUDED.total_chunks,
			received = EXCLUDED.received,
			status = EXCLUDED.status,
			file_path = EXCLUDED.file_path,
			mtime = EXCLUDED.mtime
	`
	args := []interface{}{
		s.FileID,
		s.FileName,
		s.OwnerID,
		s.TotalChunks,
		string(received),
		string(s.Status),
		s.FilePath,
		s.Ctime,
		s.Mtime,
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *UploadSessionRepo) GetUploadSession(ctx context.Context, fileID string) (*model.UploadSession, error) {
	where := map[string]interface{}{"file_id": fileID, "_limit": []uint{0, 1}}
	sqlStr, args, err := builder.BuildSelect("upload_sessions", where, uploadSessionFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	var (
		s        model.UploadSession
		received string
		status   string
	)
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&s.FileID, &s.FileName, &s.OwnerID, &s.TotalChunks, &received, &status, &s.FilePath, &s.Ctime, &s.Mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Status = model.UploadStatus(status)
	if received != "" {
		if err := json.Unmarshal([]byte(received), &s.Received); err != nil {
			return nil, fmt.Errorf("decode received chunks: %w", err)
		}
	}
	return &s, nil
}

func (r *UploadSessionRepo) DeleteUploadSession(ctx context.Context, fileID string) error {
	sqlStr, args, err := builder.BuildDelete("upload_sessions", map[string]interface{}{"file_id": fileID})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *UploadSessionRepo) DeleteStaleUploadSessions(ctx context.Context, before int64) (int64, error) {
	where := map[string]interface{}{
		"status !=": string(model.UploadMerged),
		"mtime <":   before,
	}
	sqlStr, args, err := builder.BuildDelete("upload_sessions", where)
	if err != nil {
		return 0, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
