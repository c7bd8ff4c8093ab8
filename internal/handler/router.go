package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/famlearn/internal/middleware"
	"github.com/xxxsen/famlearn/internal/pkg/response"
)

type RouterDeps struct {
	Auth    *AuthHandler
	Uploads *UploadHandler
	Books   *BookHandler
	Scans   *ScanHandler
	Study   *StudyHandler
	Files   *FileHandler

	// Verifier guards every route except auth, health and files when set.
	Verifier middleware.SessionVerifier
	// AIInterval is the minimum gap between AI calls of one client.
	AIInterval time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.GET("/health", func(c *gin.Context) {
		response.JSON(c, http.StatusOK, gin.H{"status": "ok", "timestamp": time.Now().UnixMilli()})
	})
	api.POST("/auth/login", deps.Auth.Login)
	api.POST("/auth/verify", deps.Auth.Verify)
	api.POST("/auth/logout", deps.Auth.Logout)
	// Stored images are referenced from markdown notes and img tags.
	api.GET("/files/*key", deps.Files.Get)

	group := api.Group("")
	if deps.Verifier != nil {
		group.Use(middleware.SessionAuth(deps.Verifier))
	}
	limited := group.Group("")
	limited.Use(middleware.RateLimit(deps.AIInterval))

	group.POST("/upload-chunk", deps.Uploads.Chunk)
	group.GET("/upload-chunk/:fileId", deps.Uploads.Status)

	limited.POST("/upload-book", deps.Books.Upload)
	group.POST("/upload-book/parse", deps.Books.Parse)
	group.POST("/save-book", deps.Books.Save)
	group.GET("/books", deps.Books.List)
	group.GET("/books/:id", deps.Books.Get)
	group.PUT("/books/:id", deps.Books.Update)

	limited.POST("/analyze-image", deps.Scans.Analyze)
	group.POST("/save-scanned-item", deps.Scans.Save)
	group.GET("/scanned-items", deps.Scans.List)
	group.GET("/scanned-items/:id", deps.Scans.Get)

	limited.POST("/generate-courseware", deps.Study.Courseware)
	limited.POST("/generate-assessment", deps.Study.Assessment)
}
