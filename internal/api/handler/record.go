package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/marcusb/corpusd/internal/domain"
	"github.com/marcusb/corpusd/internal/repository"
	"github.com/marcusb/corpusd/internal/service"
)

// RecordHandler handles data record endpoints.
type RecordHandler struct {
	records    *repository.RecordRepository
	similarity *service.SimilarityService
}

// NewRecordHandler creates a new record handler.
// Parameters:
//   - records: record repository for listing and lookups.
//   - similarity: similarity service for the search endpoints.
// Returns:
//   - *RecordHandler: initialized handler.
func NewRecordHandler(records *repository.RecordRepository, similarity *service.SimilarityService) *RecordHandler {
	return &RecordHandler{records: records, similarity: similarity}
}

// List handles GET /api/v1/records with optional project_id, type and
// category filters plus limit/offset pagination.
func (h *RecordHandler) List(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	records, total, err := h.records.List(
		c.Request.Context(),
		c.Query("project_id"),
		domain.RecordType(c.Query("type")),
		domain.RecordCategory(c.Query("category")),
		limit, offset,
	)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": records, "total": total})
}

// Get handles GET /api/v1/records/:id.
func (h *RecordHandler) Get(c *gin.Context) {
	record, err := h.records.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, record)
}

// SimilarRequest is the body of the similarity endpoints.
type SimilarRequest struct {
	Limit int  `json:"limit"`
	Force bool `json:"force"`
}

// Similar handles POST /api/v1/records/:id/similar: the raw cosine ranking
// without the LLM pass.
func (h *RecordHandler) Similar(c *gin.Context) {
	var req SimilarRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	matches, err := h.similarity.FindSimilar(c.Request.Context(), c.Param("id"), req.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": matches})
}

// Search handles POST /api/v1/records/:id/search: the two-stage search with
// the LLM critical re-rank and snapshot caching.
func (h *RecordHandler) Search(c *gin.Context) {
	var req SimilarRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	results, err := h.similarity.Search(c.Request.Context(), c.Param("id"), req.Limit, req.Force)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"results": results})
}
