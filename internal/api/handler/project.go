package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/marcusb/corpusd/internal/domain"
	"github.com/marcusb/corpusd/internal/repository"
)

// maxGuidelinesSize caps guideline uploads at 20 MB.
const maxGuidelinesSize = 20 << 20

// ProjectHandler handles project endpoints.
type ProjectHandler struct {
	projects *repository.ProjectRepository
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(projects *repository.ProjectRepository) *ProjectHandler {
	return &ProjectHandler{projects: projects}
}

// CreateProjectRequest is the body of POST /api/v1/projects.
type CreateProjectRequest struct {
	Name string `json:"name" binding:"required"`
}

// Create handles POST /api/v1/projects.
func (h *ProjectHandler) Create(c *gin.Context) {
	var req CreateProjectRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request: " + err.Error()})
		return
	}

	project := &domain.Project{
		ID:   uuid.NewString(),
		Name: req.Name,
	}
	if err := h.projects.Create(c.Request.Context(), project); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, project)
}

// List handles GET /api/v1/projects.
func (h *ProjectHandler) List(c *gin.Context) {
	projects, err := h.projects.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": projects, "total": len(projects)})
}

// Get handles GET /api/v1/projects/:id.
func (h *ProjectHandler) Get(c *gin.Context) {
	project, err := h.projects.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, project)
}

// UploadGuidelines handles PUT /api/v1/projects/:id/guidelines. The body is
// the raw document (PDF, base64 PDF or plain text); it replaces any
// previous guidelines.
func (h *ProjectHandler) UploadGuidelines(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.projects.GetByID(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	doc, err := io.ReadAll(io.LimitReader(c.Request.Body, maxGuidelinesSize+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read document: " + err.Error()})
		return
	}
	if len(doc) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Guidelines document is empty"})
		return
	}
	if len(doc) > maxGuidelinesSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Guidelines document exceeds the size limit"})
		return
	}

	if err := h.projects.SetGuidelines(c.Request.Context(), id, doc); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "guidelines updated", "size": len(doc)})
}

// Delete handles DELETE /api/v1/projects/:id. Records and jobs of the
// project are removed with it.
func (h *ProjectHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.projects.GetByID(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	if err := h.projects.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
