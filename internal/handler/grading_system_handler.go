package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/markbookhq/markbook-api/internal/service"
	appErrors "github.com/markbookhq/markbook-api/pkg/errors"
	"github.com/markbookhq/markbook-api/pkg/response"
)

// GradingSystemHandler exposes grading system endpoints.
type GradingSystemHandler struct {
	systems *service.GradingSystemService
}

// NewGradingSystemHandler constructs handler.
func NewGradingSystemHandler(systems *service.GradingSystemService) *GradingSystemHandler {
	return &GradingSystemHandler{systems: systems}
}

// Get godoc
// @Summary Get the subject's grading system
// @Tags GradingSystems
// @Produce json
// @Param subjectId path string true "Subject ID"
// @Success 200 {object} response.Envelope
// @Router /subjects/{subjectId}/grading-system [get]
func (h *GradingSystemHandler) Get(c *gin.Context) {
	system, err := h.systems.Get(c.Request.Context(), c.Param("subjectId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, system, nil)
}

// Put godoc
// @Summary Create or replace the subject's grading system
// @Tags GradingSystems
// @Accept json
// @Produce json
// @Param subjectId path string true "Subject ID"
// @Param payload body service.PutGradingSystemRequest true "Grading system payload"
// @Success 200 {object} response.Envelope
// @Router /subjects/{subjectId}/grading-system [put]
func (h *GradingSystemHandler) Put(c *gin.Context) {
	var req service.PutGradingSystemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	system, err := h.systems.Put(c.Request.Context(), c.Param("subjectId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, system, nil)
}

// AssignKey godoc
// @Summary Assign a grade key to a component
// @Tags GradingSystems
// @Accept json
// @Produce json
// @Param subjectId path string true "Subject ID"
// @Param payload body service.AssignGradeKeyRequest true "Assignment payload"
// @Success 200 {object} response.Envelope
// @Router /subjects/{subjectId}/grading-system/assign-key [post]
func (h *GradingSystemHandler) AssignKey(c *gin.Context) {
	var req service.AssignGradeKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	system, err := h.systems.AssignKey(c.Request.Context(), c.Param("subjectId"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, system, nil)
}
