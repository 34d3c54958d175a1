package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/markbookhq/markbook-api/internal/service"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
	"github.com/markbookhq/markbook-api/pkg/response"
)

// AccessHandler issues access codes and serves the public grade lookup.
type AccessHandler struct {
	access *service.AccessService
}

// NewAccessHandler constructs handler.
func NewAccessHandler(access *service.AccessService) *AccessHandler {
	return &AccessHandler{access: access}
}

// LookupRequest is the student-facing grade lookup payload.
type LookupRequest struct {
	RecordID   string `json:"record_id" binding:"required"`
	AccessCode string `json:"access_code" binding:"required"`
}

// IssueCode godoc
// @Summary Issue a fresh access code for a record
// @Tags Access
// @Produce json
// @Param recordId path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{recordId}/access-code [post]
func (h *AccessHandler) IssueCode(c *gin.Context) {
	code, err := h.access.IssueCode(c.Request.Context(), c.Param("recordId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"access_code": code}, nil)
}

// Lookup godoc
// @Summary Look up a grade with an access code
// @Tags Access
// @Accept json
// @Produce json
// @Param payload body LookupRequest true "Lookup payload"
// @Success 200 {object} response.Envelope
// @Router /lookup [post]
func (h *AccessHandler) Lookup(c *gin.Context) {
	var req LookupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.access.VerifyCode(c.Request.Context(), req.RecordID, req.AccessCode)
	if err != nil {
		response.Error(c, err)
		return
	}
	// The public view exposes the student's own grade only, never the
	// access code hash or raw score maps.
	response.JSON(c, http.StatusOK, gin.H{
		"student_name": record.StudentName,
		"subject_id":   record.SubjectID,
		"computed":     record.Computed,
	}, nil)
}
