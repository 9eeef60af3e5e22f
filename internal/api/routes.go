package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"marketanalytics/webclient/internal/metrics"
	"marketanalytics/webclient/internal/middleware"
	"marketanalytics/webclient/internal/services"
)

// Deps are the collaborators SetupRoutes wires into the engine. Limiter,
// Metrics and Gatherer are optional.
type Deps struct {
	Workspaces      *services.WorkspaceService
	Checks          []HealthCheck
	Limiter         middleware.Counter
	RateLimitMax    int64
	RateLimitWindow time.Duration
	Metrics         *metrics.Collector
	Gatherer        prometheus.Gatherer
	Logger          *zap.Logger
}

// SetupRoutes registers all HTTP routes on the Gin engine.
func SetupRoutes(r *gin.Engine, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := NewHandler(deps.Workspaces, deps.Checks, logger)

	var recorder middleware.RequestRecorder
	if deps.Metrics != nil {
		recorder = deps.Metrics
	}
	r.Use(middleware.CORS(), middleware.RequestLogger(logger, recorder))

	if deps.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(metrics.Handler(deps.Gatherer)))
	}
	r.GET("/api/health", handler.HealthCheck)

	ui := r.Group("/ui")
	if deps.Limiter != nil {
		ui.Use(middleware.RateLimit(deps.Limiter, deps.RateLimitMax, deps.RateLimitWindow, logger))
	}
	ui.POST("/workspaces", handler.CreateWorkspace)

	ws := ui.Group("/workspaces/:token")
	ws.Use(middleware.ValidateWorkspace(deps.Workspaces, logger))
	ws.POST("/heartbeat", handler.Heartbeat)
	ws.GET("/state", handler.State)
	ws.GET("/stream", handler.Stream)

	ws.POST("/auth/login", handler.Login)
	ws.POST("/auth/register", handler.Register)
	ws.POST("/auth/logout", handler.Logout)
	ws.PUT("/settings", handler.UpdateSettings)

	ws.GET("/products", handler.ListProducts)
	ws.POST("/products", handler.CreateProduct)
	ws.POST("/products/clear", handler.ClearProductStates)
	ws.GET("/products/:id", handler.GetProduct)
	ws.DELETE("/products/:id", handler.DeleteProduct)
	ws.POST("/products/:id/parse", handler.ParseProduct)
	ws.GET("/products/:id/reviews", handler.ListReviews)
	ws.POST("/products/:id/analyze", handler.AnalyzeProduct)
	ws.GET("/products/:id/analytics", handler.GetAnalytics)
	ws.GET("/products/:id/summary", handler.GetSummary)
	ws.POST("/clear/:slot", handler.ClearSlot)

	return handler
}
