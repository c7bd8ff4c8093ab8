package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/famlearn/internal/model"
	"github.com/xxxsen/famlearn/internal/pkg/dbutil"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
)

type AuthRepo struct {
	db *DB
}

func NewAuthRepo(db *DB) *AuthRepo {
	return &AuthRepo{db: db}
}

func (r *AuthRepo) CreateSession(ctx context.Context, s *model.AuthSession) error {
	data := map[string]interface{}{
		"id":      s.ID,
		"user_id": s.UserID,
		"role":    string(s.Role),
		"ctime":   s.Ctime,
		"expire":  s.Expire,
	}
	sqlStr, args, err := builder.BuildInsert("auth_sessions", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *AuthRepo) GetSession(ctx context.Context, id string) (*model.AuthSession, error) {
	where := map[string]interface{}{"id": id, "_limit": []uint{0, 1}}
	sqlStr, args, err := builder.BuildSelect("auth_sessions", where, []string{"id", "user_id", "role", "ctime", "expire"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	var (
		s    model.AuthSession
		role string
	)
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&s.ID, &s.UserID, &role, &s.Ctime, &s.Expire)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Role = model.Role(role)
	return &s, nil
}

func (r *AuthRepo) DeleteSession(ctx context.Context, id string) error {
	sqlStr, args, err := builder.BuildDelete("auth_sessions", map[string]interface{}{"id": id})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *AuthRepo) DeleteExpiredSessions(ctx context.Context, now int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete("auth_sessions", map[string]interface{}{"expire <": now})
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

func (r *AuthRepo) GetAttempt(ctx context.Context, clientKey string) (*model.LoginAttempt, error) {
	where := map[string]interface{}{"client_key": clientKey, "_limit": []uint{0, 1}}
	sqlStr, args, err := builder.BuildSelect("login_attempts", where, []string{"client_key", "failures", "locked_until", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	var a model.LoginAttempt
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&a.ClientKey, &a.Failures, &a.LockedUntil, &a.Mtime)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, appErr.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *AuthRepo) SaveAttempt(ctx context.Context, a *model.LoginAttempt) error {
	sqlStr := `
		INSERT INTO login_attempts (client_key, failures, locked_until, mtime)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (client_key)
		DO UPDATE SET
			failures = EXCLUDED.failures,
			locked_until = EXCLUDED.locked_until,
			mtime = EXCLUDED.mtime
	`
	args := []interface{}{a.ClientKey, a.Failures, a.LockedUntil, a.Mtime}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err := r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

func (r *AuthRepo) DeleteAttempt(ctx context.Context, clientKey string) error {
	sqlStr, args, err := builder.BuildDelete("login_attempts", map[string]interface{}{"client_key": clientKey})
	if err != nil {
		return err
	}
	sqlStr, args = r.db.finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}
