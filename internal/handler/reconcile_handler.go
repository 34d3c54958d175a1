package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/markbookhq/markbook-api/internal/service"
	"github.com/markbookhq/markbook-api/pkg/response"
)

// ReconcileHandler exposes identity reconciliation endpoints.
type ReconcileHandler struct {
	reconcile *service.ReconcileService
}

// NewReconcileHandler constructs handler.
func NewReconcileHandler(reconcile *service.ReconcileService) *ReconcileHandler {
	return &ReconcileHandler{reconcile: reconcile}
}

// ReconcileEmails godoc
// @Summary Reconcile record emails against the LMS
// @Tags Reconcile
// @Produce json
// @Param subjectId path string true "Subject ID"
// @Param workers query int false "Concurrent lookup workers"
// @Param dryRun query bool false "Match and report without writing"
// @Success 200 {object} response.Envelope
// @Router /subjects/{subjectId}/reconcile-emails [post]
func (h *ReconcileHandler) ReconcileEmails(c *gin.Context) {
	opts := service.ReconcileOptions{}
	if raw := c.Query("workers"); raw != "" {
		if workers, err := strconv.Atoi(raw); err == nil {
			opts.Workers = workers
		}
	}
	opts.DryRun = c.Query("dryRun") == "true"

	report, err := h.reconcile.ReconcileSubjectEmails(c.Request.Context(), c.Param("subjectId"), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}

// ImportStudents godoc
// @Summary Import the LMS roster into the student registry
// @Tags Reconcile
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /students/import [post]
func (h *ReconcileHandler) ImportStudents(c *gin.Context) {
	report, err := h.reconcile.ImportStudents(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
