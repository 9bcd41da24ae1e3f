package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marcusb/corpusd/internal/domain"
)

// respondError maps domain sentinel errors to HTTP status codes and writes a
// JSON error body.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNoEmbedding):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
