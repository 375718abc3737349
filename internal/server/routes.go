package server

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")
	api.GET("/items", s.handleListItems)
	api.POST("/items", s.handleUpload, middleware.BodyLimit(maxUploadBody))
	api.DELETE("/items", s.handleClearItems)
	api.DELETE("/items/:id", s.handleRemoveItem)
	api.GET("/items/:id/original", s.handleOriginal)
	api.GET("/items/:id/parts/:part/:kind", s.handlePartImage)
	api.POST("/items/:id/parts/:part/retry", s.handleRetry)
	api.POST("/process", s.handleProcess)

	api.GET("/settings", s.handleGetSettings)
	api.PUT("/settings", s.handlePutSettings)
}
