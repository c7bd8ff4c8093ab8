package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/famlearn/internal/ai"
	"github.com/xxxsen/famlearn/internal/middleware"
	"github.com/xxxsen/famlearn/internal/pkg/errcode"
	appErr "github.com/xxxsen/famlearn/internal/pkg/errors"
	"github.com/xxxsen/famlearn/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	value, _ := c.Get(middleware.ContextUserIDKey)
	userID, _ := value.(string)
	return userID
}

// ownerOrSession prefers the owner named in the request and falls back to the
// session user.
func ownerOrSession(c *gin.Context, owner string) string {
	if owner != "" {
		return owner
	}
	return getUserID(c)
}

func queryInt(c *gin.Context, name string, def int) int {
	raw := c.Query(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func badRequest(c *gin.Context, msg string) {
	response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, msg)
}

type errorMapping struct {
	target error
	status int
	code   uint32
}

var errorMappings = []errorMapping{
	{appErr.ErrIncomplete, http.StatusConflict, errcode.ErrUploadIncomplete},
	{appErr.ErrInvalid, http.StatusBadRequest, errcode.ErrInvalid},
	{appErr.ErrNotFound, http.StatusNotFound, errcode.ErrNotFound},
	{appErr.ErrConflict, http.StatusConflict, errcode.ErrConflict},
	{appErr.ErrUnauthorized, http.StatusUnauthorized, errcode.ErrUnauthorized},
	{appErr.ErrForbidden, http.StatusForbidden, errcode.ErrForbidden},
	{appErr.ErrTooMany, http.StatusTooManyRequests, errcode.ErrTooMany},
	{appErr.ErrTooLarge, http.StatusRequestEntityTooLarge, errcode.ErrTooLarge},
}

func classifyError(err error) (int, uint32, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code, err.Error()
		}
	}
	if errors.Is(err, ai.ErrUnavailable) {
		return http.StatusServiceUnavailable, errcode.ErrAIUnavailable, "ai provider is not configured"
	}
	var aiErr *ai.Error
	if errors.As(err, &aiErr) {
		switch aiErr.Kind {
		case ai.KindConnectivity:
			return http.StatusServiceUnavailable, errcode.ErrAIConnectivity, "ai service is unreachable, check the network and retry"
		case ai.KindAuth:
			return http.StatusForbidden, errcode.ErrAIAuth, "ai service rejected the api key"
		case ai.KindQuota:
			return http.StatusTooManyRequests, errcode.ErrTooMany, "ai quota exhausted, retry later"
		default:
			return http.StatusInternalServerError, errcode.ErrAIFailed, "ai request failed"
		}
	}
	return http.StatusInternalServerError, errcode.ErrInternal, "internal error"
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	status, code, msg := classifyError(err)
	fields := []zap.Field{
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		logutil.GetLogger(c.Request.Context()).Error("request failed", fields...)
	} else {
		logutil.GetLogger(c.Request.Context()).Warn("request rejected", fields...)
	}
	response.Error(c, status, code, msg)
}
