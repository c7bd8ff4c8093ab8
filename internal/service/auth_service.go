package service

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/famlearn/internal/model"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
	"github.com/xxxsen/famlearn/internal/pkg/jwt"
	"github.com/xxxsen/famlearn/internal/pkg/password"
	"github.com/xxxsen/famlearn/internal/repo"
)

const adminUserID = "admin"

var pinPattern = regexp.MustCompile(`^\d{4}$`)

type AuthServiceConfig struct {
	Secret        []byte
	TTL           time.Duration
	StudentPIN    string
	StudentUserID string
	AdminPINHash  string
	MaxFailures   int
	LockDuration  time.Duration
}

// LockedError is returned while a client is locked out.
type LockedError struct {
	Remaining time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("too many attempts, retry in %d seconds", int(e.Remaining.Seconds()+0.999))
}

func (e *LockedError) Unwrap() error {
	return appErr.ErrTooMany
}

// PINError is a wrong PIN with the attempts left before lockout.
type PINError struct {
	AttemptsLeft int
}

func (e *PINError) Error() string {
	return fmt.Sprintf("wrong pin, %d attempts left", e.AttemptsLeft)
}

func (e *PINError) Unwrap() error {
	return appErr.ErrUnauthorized
}

type LoginResult struct {
	SessionID string     `json:"sessionId"`
	Token     string     `json:"token"`
	Role      model.Role `json:"role"`
	UserID    string     `json:"userId"`
	ExpiresAt int64      `json:"expiresAt"`
}

type AuthService struct {
	cfg   AuthServiceConfig
	store repo.AuthStore
	now   func() time.Time
}

func NewAuthService(cfg AuthServiceConfig, store repo.AuthStore) *AuthService {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 5
	}
	if cfg.LockDuration <= 0 {
		cfg.LockDuration = 5 * time.Minute
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 72 * time.Hour
	}
	return &AuthService{cfg: cfg, store: store, now: time.Now}
}

func (s *AuthService) Login(ctx context.Context, pin, clientKey string) (*LoginResult, error) {
	if !pinPattern.MatchString(pin) {
		return nil, fmt.Errorf("pin must be 4 digits: %w", appErr.ErrInvalid)
	}
	if clientKey == "" {
		clientKey = "unknown"
	}
	now := s.now()
	attempt, err := s.store.GetAttempt(ctx, clientKey)
	if err != nil && !appErr.IsNotFound(err) {
		return nil, err
	}
	if attempt != nil && attempt.Failures >= s.cfg.MaxFailures {
		until := time.Unix(attempt.LockedUntil, 0)
		if now.Before(until) {
			return nil, &LockedError{Remaining: until.Sub(now)}
		}
		if err := s.store.DeleteAttempt(ctx, clientKey); err != nil {
			return nil, err
		}
		attempt = nil
	}

	role, userID, err := s.matchPIN(pin)
	if err != nil {
		return nil, err
	}
	if role == "" {
		return nil, s.recordFailure(ctx, clientKey, attempt, now)
	}
	if attempt != nil {
		if err := s.store.DeleteAttempt(ctx, clientKey); err != nil {
			return nil, err
		}
	}
	sess := &model.AuthSession{
		ID:     newSessionID(),
		UserID: userID,
		Role:   role,
		Ctime:  now.Unix(),
		Expire: now.Add(s.cfg.TTL).Unix(),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return nil, err
	}
	token, err := jwt.GenerateToken(sess.ID, sess.UserID, string(sess.Role), s.cfg.Secret, s.cfg.TTL)
	if err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("login succeeded", zap.String("user_id", userID), zap.String("role", string(role)))
	return &LoginResult{SessionID: sess.ID, Token: token, Role: role, UserID: userID, ExpiresAt: sess.Expire}, nil
}

func (s *AuthService) matchPIN(pin string) (model.Role, string, error) {
	if s.cfg.StudentPIN != "" && pin == s.cfg.StudentPIN {
		return model.RoleStudent, s.cfg.StudentUserID, nil
	}
	ok, err := password.Matches(s.cfg.AdminPINHash, pin)
	if err != nil {
		return "", "", fmt.Errorf("check admin pin: %w", err)
	}
	if ok {
		return model.RoleAdmin, adminUserID, nil
	}
	return "", "", nil
}

func (s *AuthService) recordFailure(ctx context.Context, clientKey string, attempt *model.LoginAttempt, now time.Time) error {
	if attempt == nil {
		attempt = &model.LoginAttempt{ClientKey: clientKey}
	}
	attempt.Failures++
	attempt.Mtime = now.Unix()
	if attempt.Failures >= s.cfg.MaxFailures {
		attempt.LockedUntil = now.Add(s.cfg.LockDuration).Unix()
	}
	if err := s.store.SaveAttempt(ctx, attempt); err != nil {
		return err
	}
	logutil.GetLogger(ctx).Warn("login failed", zap.String("client", clientKey), zap.Int("failures", attempt.Failures))
	return &PINError{AttemptsLeft: s.cfg.MaxFailures - attempt.Failures}
}

// Verify resolves a session id or a signed token to a live session.
func (s *AuthService) Verify(ctx context.Context, credential string) (*model.AuthSession, error) {
	sid, err := s.sessionID(credential)
	if err != nil {
		return nil, err
	}
	sess, err := s.store.GetSession(ctx, sid)
	if appErr.IsNotFound(err) {
		return nil, fmt.Errorf("session not found or expired: %w", appErr.ErrUnauthorized)
	}
	if err != nil {
		return nil, err
	}
	if sess.Expire <= s.now().Unix() {
		_ = s.store.DeleteSession(ctx, sid)
		return nil, fmt.Errorf("session expired: %w", appErr.ErrUnauthorized)
	}
	return sess, nil
}

func (s *AuthService) Logout(ctx context.Context, credential string) error {
	sid, err := s.sessionID(credential)
	if err != nil {
		return nil
	}
	return s.store.DeleteSession(ctx, sid)
}

func (s *AuthService) PurgeExpired(ctx context.Context) (int64, error) {
	return s.store.DeleteExpiredSessions(ctx, s.now().Unix())
}

func (s *AuthService) sessionID(credential string) (string, error) {
	credential = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(credential), "Bearer "))
	if credential == "" {
		return "", fmt.Errorf("missing session: %w", appErr.ErrUnauthorized)
	}
	if strings.Count(credential, ".") != 2 {
		return credential, nil
	}
	claims, err := jwt.ParseToken(credential, s.cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("invalid token: %v: %w", err, appErr.ErrUnauthorized)
	}
	return claims.SessionID, nil
}
