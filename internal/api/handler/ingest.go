package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marcusb/corpusd/internal/service"
)

// IngestHandler handles ingest job endpoints.
type IngestHandler struct {
	ingest *service.IngestService
}

// NewIngestHandler creates a new ingest handler.
// Parameters:
//   - ingest: ingest service instance.
// Returns:
//   - *IngestHandler: initialized handler.
func NewIngestHandler(ingest *service.IngestService) *IngestHandler {
	return &IngestHandler{ingest: ingest}
}

// SubmitRequest is the body of POST /api/v1/ingest.
type SubmitRequest struct {
	Kind    service.IngestKind    `json:"kind" binding:"required"`
	Payload string                `json:"payload" binding:"required"`
	Options service.IngestOptions `json:"options" binding:"required"`
}

// Submit handles POST /api/v1/ingest. The payload is processed in the
// background; the response carries the job id to poll.
func (h *IngestHandler) Submit(c *gin.Context) {
	var req SubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	jobID, err := h.ingest.Submit(c.Request.Context(), req.Kind, req.Payload, req.Options)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

// Status handles GET /api/v1/ingest/jobs/:id.
func (h *IngestHandler) Status(c *gin.Context) {
	job, err := h.ingest.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

// Cancel handles POST /api/v1/ingest/jobs/:id/cancel. Cancellation is
// cooperative; the job stops at its next chunk boundary.
func (h *IngestHandler) Cancel(c *gin.Context) {
	if err := h.ingest.Cancel(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "cancellation requested"})
}

// List handles GET /api/v1/ingest/jobs?project_id=...
func (h *IngestHandler) List(c *gin.Context) {
	jobs, err := h.ingest.List(c.Request.Context(), c.Query("project_id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"jobs": jobs, "total": len(jobs)})
}

// Delete handles DELETE /api/v1/ingest/jobs/:id. The job and every record
// it produced are removed.
func (h *IngestHandler) Delete(c *gin.Context) {
	if err := h.ingest.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
