package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/xxxsen/famlearn/internal/pkg/response"
	"github.com/xxxsen/famlearn/internal/service"
)

type StudyHandler struct {
	study *service.StudyService
}

func NewStudyHandler(study *service.StudyService) *StudyHandler {
	return &StudyHandler{study: study}
}

func (h *StudyHandler) Courseware(c *gin.Context) {
	var req service.CoursewareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	req.OwnerID = ownerOrSession(c, req.OwnerID)
	out, err := h.study.GenerateCourseware(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, out)
}

func (h *StudyHandler) Assessment(c *gin.Context) {
	var req service.AssessmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request")
		return
	}
	req.OwnerID = ownerOrSession(c, req.OwnerID)
	out, err := h.study.GenerateAssessment(c.Request.Context(), req)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, out)
}
