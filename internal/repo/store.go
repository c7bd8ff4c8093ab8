package repo

import (
	"context"

	"github.com/xxxsen/famlearn/internal/model"
)

// UploadSessionStore persists the status record of each chunked upload.
type UploadSessionStore interface {
	GetUploadSession(ctx context.Context, fileID string) (*model.UploadSession, error)
	// SaveUploadSession inserts s or replaces the record with the same file id.
	SaveUploadSession(ctx context.Context, s *model.UploadSession) error
	DeleteUploadSession(ctx context.Context, fileID string) error
	// DeleteStaleUploadSessions drops records that never reached merged and
	// were last touched before the given unix second.
	DeleteStaleUploadSessions(ctx context.Context, before int64) (int64, error)
}

// AuthStore keeps login sessions and failed attempt counters.
type AuthStore interface {
	CreateSession(ctx context.Context, s *model.AuthSession) error
	GetSession(ctx context.Context, id string) (*model.AuthSession, error)
	DeleteSession(ctx context.Context, id string) error
	DeleteExpiredSessions(ctx context.Context, now int64) (int64, error)

	GetAttempt(ctx context.Context, clientKey string) (*model.LoginAttempt, error)
	SaveAttempt(ctx context.Context, a *model.LoginAttempt) error
	DeleteAttempt(ctx context.Context, clientKey string) error
}
