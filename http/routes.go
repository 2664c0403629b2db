package http

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// registerRoutes sets up all routes for the server.
// All routes are defined in this single file for easy navigation.
func (s *Server) registerRoutes() {
	// Health check routes
	s.echo.GET("/health", s.handleHealthCheck)
	s.echo.GET("/health/live", s.handleLivenessCheck)
	s.echo.GET("/health/ready", s.handleReadinessCheck)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	if s.uploadsDir != "" {
		s.echo.Static("/uploads", s.uploadsDir)
	}

	api := s.echo.Group("/api")

	// Lookups
	api.GET("/catalog", s.handleGetCatalog)
	api.GET("/orders/:orderNumber", s.handleLookupOrder)

	// Inspections
	api.POST("/inspections", s.handleCreateInspection)
	api.GET("/inspections", s.handleListInspections)
	api.GET("/inspections/:id", s.handleGetInspection)
	api.GET("/inspections/order/:orderNumber", s.handleGetInspectionByOrder)
	api.PUT("/inspections/:id", s.handleUpdateInspection)
	api.PATCH("/inspections/:id/items/:itemId", s.handleUpdateItem)
	api.GET("/inspections/:id/report", s.handleGetReport)
	api.GET("/inspections/:id/media", s.handleListMedia)
	api.GET("/inspections/:id/history", s.handleGetHistory)

	// Uploads and sign-off are expensive and share a tighter limit.
	slow := s.uploadLimiter.Middleware()
	api.POST("/inspections/:id/media", s.handleUploadMedia, slow)
	api.POST("/inspections/:id/phases/:phase", s.handleCompletePhase, slow)
	api.POST("/inspections/:id/complete", s.handleCompleteInspection, slow)
}
