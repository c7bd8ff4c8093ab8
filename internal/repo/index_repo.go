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

var indexFields = []string{"id", "type", "owner_id", "user_name", "subject", "chapter", "title", "ts", "md_path", "image_path", "file_path", "data"}

// IndexRepo is the sql backend of the metadata index.
type IndexRepo struct {
	db *DB
}

func NewIndexRepo(db *DB) *IndexRepo {
	return &IndexRepo{db: db}
}

func (r *IndexRepo) Put(ctx context.Context, e *model.IndexEntry) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("index entry id is required: %w", appErr.ErrInvalid)
	}
	sqlStr := `
		INSERT INTO index_entries (id, type, owner_id, user_name, subject, chapter, title, ts, md_path, image_path, file_path, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET
			type = EXCLUDED.type,
			owner_id = EXCLUDED.owner_id,
			user_name = EXCLUDED.user_name,
			subject = EXCLUDED.subject,
			chapter = EXCLUDED.chapter,
			title = EXCLUDED.title,
			ts = EXCLUDED.ts,
			md_path = EXCLUDED.md_path,
			image_path = EXCLUDED.image_path,
			file_path = EXCLUDED.file_path,
			data = EXCLUDED.data
	`
	args := []interface{}{
		e.ID,
		string(e.Type),
		e.OwnerID,
		e.UserName,
		e.Subject,
		e.Chapter,
		e.Title,
		e.Timestamp,
		e.MDPath,
		e.ImagePath,
		e.FilePath,
		string(e.Data),
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *IndexRepo) Get(ctx context.Context, id string) (*model.IndexEntry, error) {
	where := map[string]interface{}{"id": id, "_limit": []uint{0, 1}}
	sqlStr, args, err := builder.BuildSelect("index_entries", where, indexFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	e, err := scanIndexEntry(r.db.QueryRowContext(ctx, sqlStr, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.ErrNotFound
	}
	return e, err
}

func (r *IndexRepo) Query(ctx context.Context, q model.IndexQuery) ([]*model.IndexEntry, error) {
	where := map[string]interface{}{"_orderby": "ts desc"}
	if q.OwnerID != "" {
		where["owner_id"] = []string{q.OwnerID, model.SharedOwner}
	}
	if q.Subject != "" {
		where["subject"] = q.Subject
	}
	if q.Type != "" {
		where["type"] = string(q.Type)
	}
	if q.Limit > 0 {
		where["_limit"] = []uint{0, uint(q.Limit)}
	}
	sqlStr, args, err := builder.BuildSelect("index_entries", where, indexFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make([]*model.IndexEntry, 0)
	for rows.Next() {
		e, err := scanIndexEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *IndexRepo) Delete(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("index_entries", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	res, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIndexEntry(row rowScanner) (*model.IndexEntry, error) {
	var (
		e       model.IndexEntry
		docType string
		data    string
	)
	if err := row.Scan(&e.ID, &docType, &e.OwnerID, &e.UserName, &e.Subject, &e.Chapter, &e.Title, &e.Timestamp, &e.MDPath, &e.ImagePath, &e.FilePath, &data); err != nil {
		return nil, err
	}
	e.Type = model.DocType(docType)
	if data != "" {
		e.Data = json.RawMessage(data)
	}
	return &e, nil
}
