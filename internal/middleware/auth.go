package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/famlearn/internal/model"
	"github.com/xxxsen/famlearn/internal/pkg/errcode"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
	"github.com/xxxsen/famlearn/internal/pkg/response"
)

const (
	ContextUserIDKey = "user_id"
	ContextRoleKey   = "role"
)

type SessionVerifier interface {
	Verify(ctx context.Context, credential string) (*model.AuthSession, error)
}

// SessionAuth rejects requests without a live session and exposes the
// session's user and role to later handlers.
func SessionAuth(verifier SessionVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "missing authorization")
			c.Abort()
			return
		}
		sess, err := verifier.Verify(c.Request.Context(), header)
		if err != nil {
			if !errors.Is(err, appErr.ErrUnauthorized) {
				logutil.GetLogger(c.Request.Context()).Error("verify session failed", zap.Error(err))
			}
			response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "invalid session")
			c.Abort()
			return
		}
		c.Set(ContextUserIDKey, sess.UserID)
		c.Set(ContextRoleKey, sess.Role)
		c.Next()
	}
}

// RequireRole lets only sessions with one of roles through. It must run after
// SessionAuth.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, _ := c.Get(ContextRoleKey)
		role, _ := v.(model.Role)
		for _, r := range roles {
			if r == role {
				c.Next()
				return
			}
		}
		response.Error(c, http.StatusForbidden, errcode.ErrForbidden, "forbidden")
		c.Abort()
	}
}
