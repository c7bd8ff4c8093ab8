package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type sessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// SessionPurgeJob drops expired login sessions.
type SessionPurgeJob struct {
	auth sessionPurger
}

func NewSessionPurgeJob(auth sessionPurger) *SessionPurgeJob {
	return &SessionPurgeJob{auth: auth}
}

func (j *SessionPurgeJob) Name() string {
	return "session_purge"
}

func (j *SessionPurgeJob) Run(ctx context.Context) error {
	if j.auth == nil {
		return nil
	}
	n, err := j.auth.PurgeExpired(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		logutil.GetLogger(ctx).Info("expired sessions purged", zap.Int64("count", n))
	}
	return nil
}
