package server

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/oukeidos/splitfill/internal/version"
)

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.Short(),
		"uptime":  time.Since(s.startTime).Seconds(),
	})
}
