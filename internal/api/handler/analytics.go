package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marcusb/corpusd/internal/service"
)

// AnalyticsHandler handles bulk alignment and comparison endpoints.
type AnalyticsHandler struct {
	alignment *service.AlignmentService
}

// NewAnalyticsHandler creates a new analytics handler.
// Parameters:
//   - alignment: alignment service instance.
// Returns:
//   - *AnalyticsHandler: initialized handler.
func NewAnalyticsHandler(alignment *service.AlignmentService) *AnalyticsHandler {
	return &AnalyticsHandler{alignment: alignment}
}

// AlignRequest is the body of POST /api/v1/analytics/align.
type AlignRequest struct {
	ProjectID string `json:"project_id" binding:"required"`
}

// StartBulkAlignment handles POST /api/v1/analytics/align. When a job is
// already running its id is returned; when every record is scored the
// job_id is null.
func (h *AnalyticsHandler) StartBulkAlignment(c *gin.Context) {
	var req AlignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	jobID, err := h.alignment.StartBulkAlignment(c.Request.Context(), req.ProjectID)
	if err != nil {
		respondError(c, err)
		return
	}
	if jobID == "" {
		c.JSON(http.StatusOK, gin.H{"job_id": nil, "message": "all records already scored"})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// Cancel handles POST /api/v1/analytics/jobs/:id/cancel.
func (h *AnalyticsHandler) Cancel(c *gin.Context) {
	if err := h.alignment.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancellation requested"})
}

// ListJobs handles GET /api/v1/analytics/jobs?project_id=...
func (h *AnalyticsHandler) ListJobs(c *gin.Context) {
	jobs, err := h.alignment.ListJobs(c.Request.Context(), c.Query("project_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// CompareRequest is the body of POST /api/v1/analytics/compare.
type CompareRequest struct {
	RecordID        string `json:"record_id" binding:"required"`
	ForceRegenerate bool   `json:"force_regenerate"`
}

// Compare handles POST /api/v1/analytics/compare: grade one record against
// the project guidelines, reusing the cached verdict unless forced.
func (h *AnalyticsHandler) Compare(c *gin.Context) {
	var req CompareRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	result, err := h.alignment.Compare(c.Request.Context(), req.RecordID, req.ForceRegenerate)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
