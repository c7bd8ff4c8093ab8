package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/famlearn/internal/model"
	"github.com/xxxsen/famlearn/internal/pkg/errcode"
	"github.com/xxxsen/famlearn/internal/pkg/response"
	"github.com/xxxsen/famlearn/internal/service"
)

// multipartOverhead covers form fields and boundaries around a chunk.
const multipartOverhead = 1 << 20

type UploadHandler struct {
	uploads      *service.UploadService
	books        *service.BookService
	maxChunkSize int64
}

func NewUploadHandler(uploads *service.UploadService, books *service.BookService, maxChunkSize int64) *UploadHandler {
	return &UploadHandler{uploads: uploads, books: books, maxChunkSize: maxChunkSize}
}

type mergeRequest struct {
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	OwnerID  string `json:"ownerId"`
}

// mergedMetadata is the flat metadata object returned next to filePath.
type mergedMetadata struct {
	FileName   string           `json:"fileName"`
	FileFormat model.FileFormat `json:"fileFormat"`
	FileSize   int64            `json:"fileSize"`
	PageCount  int              `json:"pageCount"`
	model.BookMetadata
}

type mergeResponse struct {
	Success  bool            `json:"success"`
	FilePath string          `json:"filePath"`
	Metadata *mergedMetadata `json:"metadata"`
	Error    string          `json:"error,omitempty"`
}

// Chunk receives one chunk, or merges the upload when action=merge.
func (h *UploadHandler) Chunk(c *gin.Context) {
	if c.Query("action") == "merge" {
		h.merge(c)
		return
	}
	if h.maxChunkSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxChunkSize+multipartOverhead)
	}
	if _, err := c.MultipartForm(); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, http.StatusRequestEntityTooLarge, errcode.ErrTooLarge, "chunk exceeds "+formatUploadLimit(h.maxChunkSize))
			return
		}
		badRequest(c, "multipart form is required")
		return
	}
	chunkIndex, err := strconv.Atoi(c.PostForm("chunkIndex"))
	if err != nil {
		badRequest(c, "chunkIndex must be an integer")
		return
	}
	totalChunks, err := strconv.Atoi(c.PostForm("totalChunks"))
	if err != nil {
		badRequest(c, "totalChunks must be an integer")
		return
	}
	file, err := c.FormFile("chunk")
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "chunk file is required")
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "failed to open chunk")
		return
	}
	defer opened.Close()

	in := service.ChunkInput{
		FileID:      c.PostForm("fileId"),
		FileName:    c.PostForm("fileName"),
		OwnerID:     ownerOrSession(c, c.PostForm("ownerId")),
		ChunkIndex:  chunkIndex,
		TotalChunks: totalChunks,
		Data:        opened,
	}
	if err := h.uploads.ReceiveChunk(c.Request.Context(), in); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"chunkIndex": chunkIndex, "totalChunks": totalChunks})
}

func (h *UploadHandler) merge(c *gin.Context) {
	var req mergeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	ctx := c.Request.Context()
	res, err := h.uploads.Merge(ctx, req.FileID, req.FileName, ownerOrSession(c, req.OwnerID))
	if err != nil {
		handleError(c, err)
		return
	}
	out := mergeResponse{Success: true, FilePath: "/uploads/files/" + res.Name}
	parsed, err := h.books.AnalyzeFile(ctx, res.Path, res.FileName)
	if err != nil {
		// The merged file stays usable, metadata can be filled in by hand.
		logutil.GetLogger(ctx).Warn("analyze merged upload failed",
			zap.String("file_id", res.FileID),
			zap.String("file_name", res.FileName),
			zap.Error(err),
		)
		_, _, msg := classifyError(err)
		if msg == "internal error" {
			msg = "metadata extraction failed"
		}
		out.Error = msg
		response.JSON(c, http.StatusOK, out)
		return
	}
	out.Metadata = &mergedMetadata{
		FileName:     parsed.FileName,
		FileFormat:   parsed.FileFormat,
		FileSize:     parsed.FileSize,
		PageCount:    parsed.PageCount,
		BookMetadata: *parsed.Metadata,
	}
	response.JSON(c, http.StatusOK, out)
}

// Status reports the upload session of fileId.
func (h *UploadHandler) Status(c *gin.Context) {
	sess, err := h.uploads.Status(c.Request.Context(), strings.TrimSpace(c.Param("fileId")))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{
		"fileId":         sess.FileID,
		"fileName":       sess.FileName,
		"status":         sess.Status,
		"receivedChunks": len(sess.Received),
		"totalChunks":    sess.TotalChunks,
		"filePath":       sess.FilePath,
	})
}
