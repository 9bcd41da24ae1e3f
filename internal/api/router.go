package api

import (
	"github.com/gin-gonic/gin"
	"github.com/marcusb/corpusd/internal/api/handler"
	"github.com/marcusb/corpusd/internal/api/middleware"
	"github.com/marcusb/corpusd/internal/repository"
	"github.com/marcusb/corpusd/internal/service"
)

// RouterConfig carries the services and repositories the HTTP surface
// exposes.
type RouterConfig struct {
	Ingest     *service.IngestService
	Similarity *service.SimilarityService
	Alignment  *service.AlignmentService
	Records    *repository.RecordRepository
	Projects   *repository.ProjectRepository
	Mode       string
	CORS       middleware.CORSConfig
}

// SetupRouter configures the Gin router with all routes.
func SetupRouter(cfg RouterConfig) *gin.Engine {
	switch cfg.Mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cfg.CORS))

	healthHandler := handler.NewHealthHandler()
	ingestHandler := handler.NewIngestHandler(cfg.Ingest)
	recordHandler := handler.NewRecordHandler(cfg.Records, cfg.Similarity)
	analyticsHandler := handler.NewAnalyticsHandler(cfg.Alignment)
	projectHandler := handler.NewProjectHandler(cfg.Projects)

	r.GET("/health", healthHandler.Health)

	v1 := r.Group("/api/v1")
	{
		// Ingestion
		v1.POST("/ingest", ingestHandler.Submit)
		v1.GET("/ingest/jobs", ingestHandler.List)
		v1.GET("/ingest/jobs/:id", ingestHandler.Status)
		v1.POST("/ingest/jobs/:id/cancel", ingestHandler.Cancel)
		v1.DELETE("/ingest/jobs/:id", ingestHandler.Delete)

		// Records and similarity
		v1.GET("/records", recordHandler.List)
		v1.GET("/records/:id", recordHandler.Get)
		v1.POST("/records/:id/similar", recordHandler.Similar)
		v1.POST("/records/:id/search", recordHandler.Search)

		// Alignment analytics
		v1.POST("/analytics/align", analyticsHandler.StartBulkAlignment)
		v1.GET("/analytics/jobs", analyticsHandler.ListJobs)
		v1.POST("/analytics/jobs/:id/cancel", analyticsHandler.Cancel)
		v1.POST("/analytics/compare", analyticsHandler.Compare)

		// Projects
		v1.POST("/projects", projectHandler.Create)
		v1.GET("/projects", projectHandler.List)
		v1.GET("/projects/:id", projectHandler.Get)
		v1.PUT("/projects/:id/guidelines", projectHandler.UploadGuidelines)
		v1.DELETE("/projects/:id", projectHandler.Delete)
	}

	return r
}
