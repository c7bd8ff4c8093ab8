package handler

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/famlearn/internal/model"
	"github.com/xxxsen/famlearn/internal/pkg/response"
	"github.com/xxxsen/famlearn/internal/service"
)

type ScanHandler struct {
	scans *service.ScanService
}

func NewScanHandler(scans *service.ScanService) *ScanHandler {
	return &ScanHandler{scans: scans}
}

type analyzeImageRequest struct {
	Base64Image string `json:"base64Image"`
}

type saveScanRequest struct {
	ScannedItem         *model.ScannedItem `json:"scannedItem"`
	OriginalImageBase64 string             `json:"originalImageBase64"`
}

func (h *ScanHandler) Analyze(c *gin.Context) {
	var req analyzeImageRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Base64Image) == "" {
		badRequest(c, "base64Image is required")
		return
	}
	res, err := h.scans.Analyze(c.Request.Context(), req.Base64Image)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *ScanHandler) Save(c *gin.Context) {
	var req saveScanRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ScannedItem == nil {
		badRequest(c, "scannedItem is required")
		return
	}
	if req.OriginalImageBase64 == "" {
		badRequest(c, "originalImageBase64 is required")
		return
	}
	item := *req.ScannedItem
	item.OwnerID = ownerOrSession(c, item.OwnerID)
	res, err := h.scans.Save(c.Request.Context(), service.SaveScanInput{
		Item:                item,
		OriginalImageBase64: req.OriginalImageBase64,
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, res)
}

func (h *ScanHandler) List(c *gin.Context) {
	items, err := h.scans.List(c.Request.Context(), model.IndexQuery{
		OwnerID: c.Query("ownerId"),
		Subject: c.Query("subject"),
		Type:    model.DocType(c.Query("type")),
		Limit:   queryInt(c, "limit", 0),
	})
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, items)
}

func (h *ScanHandler) Get(c *gin.Context) {
	detail, err := h.scans.Get(c.Request.Context(), c.Param("id"), c.Query("render") == "html")
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, detail)
}
