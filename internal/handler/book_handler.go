package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/famlearn/internal/model"
	"github.com/xxxsen/famlearn/internal/pkg/errcode"
	"github.com/xxxsen/famlearn/internal/pkg/response"
	"github.com/xxxsen/famlearn/internal/service"
)

type BookHandler struct {
	books       *service.BookService
	maxBookSize int64
}

func NewBookHandler(books *service.BookService, maxBookSize int64) *BookHandler {
	return &BookHandler{books: books, maxBookSize: maxBookSize}
}

type parseBookRequest struct {
	FilePath string `json:"filePath"`
	FileName string `json:"fileName"`
}

type saveBookRequest struct {
	Metadata     model.BookMetadata `json:"metadata"`
	TempFilePath string             `json:"tempFilePath"`
	OwnerID      string             `json:"ownerId"`
}

// Upload parses a book sent in one multipart request.
func (h *BookHandler) Upload(c *gin.Context) {
	if h.maxBookSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBookSize+multipartOverhead)
	}
	file, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			response.Error(c, http.StatusRequestEntityTooLarge, errcode.ErrTooLarge, "book exceeds "+formatUploadLimit(h.maxBookSize))
			return
		}
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "file is required")
		return
	}
	if h.maxBookSize > 0 && file.Size > h.maxBookSize {
		response.Error(c, http.StatusRequestEntityTooLarge, errcode.ErrTooLarge, "book exceeds "+formatUploadLimit(h.maxBookSize))
		return
	}
	opened, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "failed to open file")
		return
	}
	defer opened.Close()
	data, err := io.ReadAll(opened)
	if err != nil {
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalidFile, "failed to read file")
		return
	}
	parsed, err := h.books.AnalyzeUpload(c.Request.Context(), file.Filename, file.Header.Get("Content-Type"), data)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, parsed)
}

// Parse reads the embedded metadata of a merged upload without the AI.
func (h *BookHandler) Parse(c *gin.Context) {
	var req parseBookRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FilePath == "" {
		badRequest(c, "filePath is required")
		return
	}
	parsed, err := h.books.ParseStored(c.Request.Context(), req.FilePath, req.FileName)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, parsed)
}

func (h *BookHandler) Save(c *gin.Context) {
	var req saveBookRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.TempFilePath == "" {
		badRequest(c, "tempFilePath is required")
		return
	}
	rec, err := h.books.Save(c.Request.Context(), service.SaveBookInput{
		Metadata:     req.Metadata,
		TempFilePath: req.TempFilePath,
		OwnerID:      ownerOrSession(c, req.OwnerID),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"id": rec.ID, "title": rec.Title, "status": rec.Status})
}

func (h *BookHandler) List(c *gin.Context) {
	books, err := h.books.List(c.Request.Context(), c.Query("ownerId"), c.Query("subject"), queryInt(c, "limit", 0))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, books)
}

func (h *BookHandler) Get(c *gin.Context) {
	rec, err := h.books.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, rec)
}

func (h *BookHandler) Update(c *gin.Context) {
	var meta model.BookMetadata
	if err := c.ShouldBindJSON(&meta); err != nil {
		badRequest(c, "invalid request")
		return
	}
	rec, err := h.books.Update(c.Request.Context(), c.Param("id"), meta)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, rec)
}
