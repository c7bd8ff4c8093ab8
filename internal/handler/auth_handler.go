package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/famlearn/internal/pkg/errcode"
	"github.com/xxxsen/famlearn/internal/pkg/response"
	"github.com/xxxsen/famlearn/internal/service"
)

type AuthHandler struct {
	auth *service.AuthService
}

func NewAuthHandler(auth *service.AuthService) *AuthHandler {
	return &AuthHandler{auth: auth}
}

type loginRequest struct {
	PIN string `json:"pin"`
}

type credentialRequest struct {
	SessionID string `json:"sessionId"`
	Token     string `json:"token"`
}

// credential picks the token from the body, then the sessionId, then the
// Authorization header.
func (r credentialRequest) credential(c *gin.Context) string {
	switch {
	case r.Token != "":
		return r.Token
	case r.SessionID != "":
		return r.SessionID
	default:
		return c.GetHeader("Authorization")
	}
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.PIN, c.ClientIP())
	if err != nil {
		var locked *service.LockedError
		if errors.As(err, &locked) {
			c.Header("Retry-After", strconv.Itoa(int(locked.Remaining.Seconds()+0.999)))
			response.Error(c, http.StatusTooManyRequests, errcode.ErrTooMany, locked.Error())
			return
		}
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *AuthHandler) Verify(c *gin.Context) {
	var req credentialRequest
	_ = c.ShouldBindJSON(&req)
	cred := req.credential(c)
	if cred == "" {
		badRequest(c, "sessionId or token is required")
		return
	}
	sess, err := h.auth.Verify(c.Request.Context(), cred)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"valid":     true,
		"sessionId": sess.ID,
		"role":      sess.Role,
		"userId":    sess.UserID,
		"expiresAt": sess.Expire,
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	var req credentialRequest
	_ = c.ShouldBindJSON(&req)
	cred := req.credential(c)
	if cred == "" {
		badRequest(c, "sessionId or token is required")
		return
	}
	if err := h.auth.Logout(c.Request.Context(), cred); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, nil)
}
