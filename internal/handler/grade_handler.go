package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/markbookhq/markbook-api/internal/models"
	"github.com/markbookhq/markbook-api/internal/service"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
	"github.com/markbookhq/markbook-api/pkg/response"
)

// GradeHandler exposes grade computation and record endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// PutScoresRequest replaces a record's raw scores.
type PutScoresRequest struct {
	Grades    models.ScoreMap `json:"grades" binding:"required"`
	MaxScores models.ScoreMap `json:"max_scores" binding:"required"`
}

// Compute godoc
// @Summary Recompute all grades in a subject
// @Tags Grades
// @Produce json
// @Param subjectId path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /subjects/{subjectId}/grades/compute [post]
func (h *GradeHandler) Compute(c *gin.Context) {
	summary, err := h.grades.ComputeSubject(c.Request.Context(), c.Param("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// GetRecord godoc
// @Summary Get a grade record with its computed grade
// @Tags Grades
// @Produce json
// @Param recordId path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{recordId} [get]
func (h *GradeHandler) GetRecord(c *gin.Context) {
	record, err := h.grades.GetRecord(c.Request.Context(), c.Param("recordId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Preview godoc
// @Summary Compute a record's grade without persisting
// @Tags Grades
// @Produce json
// @Param recordId path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /records/{recordId}/preview [get]
func (h *GradeHandler) Preview(c *gin.Context) {
	computed, err := h.grades.ComputeRecord(c.Request.Context(), c.Param("recordId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, computed, nil)
}

// PutScores godoc
// @Summary Replace a record's raw scores
// @Tags Grades
// @Accept json
// @Produce json
// @Param recordId path string true "Record ID"
// @Param payload body PutScoresRequest true "Scores payload"
// @Success 200 {object} response.Envelope
// @Router /records/{recordId}/scores [put]
func (h *GradeHandler) PutScores(c *gin.Context) {
	var req PutScoresRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	record, err := h.grades.PutScores(c.Request.Context(), c.Param("recordId"), req.Grades, req.MaxScores)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}
