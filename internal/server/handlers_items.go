package server

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/oukeidos/splitfill/internal/ingest"
	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/media"
	"github.com/oukeidos/splitfill/internal/metrics"
	"github.com/oukeidos/splitfill/internal/splitter"
	"github.com/oukeidos/splitfill/internal/tracker"
)

const (
	kindCropped  = "cropped"
	kindExpanded = "expanded"
)

func (s *Server) handleListItems(c echo.Context) error {
	items := s.tracker.List()
	out := make([]itemView, 0, len(items))
	for _, item := range items {
		out = append(out, newItemView(item))
	}
	return c.JSON(http.StatusOK, map[string]any{"items": out})
}

func (s *Server) handleUpload(c echo.Context) error {
	form, err := c.MultipartForm()
	if err != nil {
		return badRequest("expected a multipart form with a files field")
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return badRequest("no files uploaded")
	}

	added := make([]itemView, 0, len(headers))
	skipped := make([]skippedView, 0)
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return err
		}
		up, err := ingest.FromReader(fh.Filename, f)
		f.Close()
		if err != nil {
			if errors.Is(err, ingest.ErrNotImage) || errors.Is(err, ingest.ErrTooLarge) {
				skipped = append(skipped, skippedView{Name: fh.Filename, Reason: err.Error()})
				metrics.UploadsTotal.WithLabelValues("skipped").Inc()
				continue
			}
			return err
		}
		item, err := s.tracker.Add(up)
		if err != nil {
			skipped = append(skipped, skippedView{Name: fh.Filename, Reason: err.Error()})
			metrics.UploadsTotal.WithLabelValues("skipped").Inc()
			continue
		}
		metrics.UploadsTotal.WithLabelValues("accepted").Inc()
		added = append(added, newItemView(item))
	}
	if len(skipped) > 0 {
		logger.Info("Upload skipped files", "count", len(skipped))
	}
	return c.JSON(http.StatusCreated, map[string]any{"items": added, "skipped": skipped})
}

type processRequest struct {
	Axis string `json:"axis"`
}

func (s *Server) handleProcess(c echo.Context) error {
	var req processRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return badRequest("invalid JSON body")
		}
	}
	axis, err := splitter.ParseAxis(req.Axis)
	if err != nil {
		return badRequest("%s", err.Error())
	}
	started, err := s.tracker.Process(s.work, axis)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, map[string]any{"started": started, "axis": axis})
}

func (s *Server) handleRetry(c echo.Context) error {
	part, err := tracker.ParsePart(c.Param("part"))
	if err != nil {
		return badRequest("%s", err.Error())
	}
	id := c.Param("id")
	if err := s.tracker.Retry(s.work, id, part); err != nil {
		return err
	}
	item, ok := s.tracker.Get(id)
	if !ok {
		return tracker.ErrItemNotFound
	}
	return c.JSON(http.StatusAccepted, newItemView(item))
}

func (s *Server) handlePartImage(c echo.Context) error {
	part, err := tracker.ParsePart(c.Param("part"))
	if err != nil {
		return badRequest("%s", err.Error())
	}
	item, ok := s.tracker.Get(c.Param("id"))
	if !ok {
		return tracker.ErrItemNotFound
	}
	h := item.Half(part)
	var img *media.Image
	switch c.Param("kind") {
	case kindCropped:
		img = h.Cropped
	case kindExpanded:
		img = h.Expanded
	default:
		return badRequest("kind must be %s or %s", kindCropped, kindExpanded)
	}
	if img == nil || img.Empty() {
		return echo.NewHTTPError(http.StatusNotFound, "image not available yet")
	}
	return c.Blob(http.StatusOK, img.MIMEType, img.Data)
}

func (s *Server) handleOriginal(c echo.Context) error {
	item, ok := s.tracker.Get(c.Param("id"))
	if !ok {
		return tracker.ErrItemNotFound
	}
	return c.Blob(http.StatusOK, item.Original.MIMEType, item.Original.Data)
}

func (s *Server) handleRemoveItem(c echo.Context) error {
	s.tracker.Remove(c.Param("id"))
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) handleClearItems(c echo.Context) error {
	if c.QueryParam("confirm") != "true" {
		return badRequest("clearing all items requires confirm=true")
	}
	removed := s.tracker.Clear()
	return c.JSON(http.StatusOK, map[string]int{"removed": removed})
}
