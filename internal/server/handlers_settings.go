package server

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/oukeidos/splitfill/internal/auth"
	"github.com/oukeidos/splitfill/internal/gemini"
	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/settings"
)

type settingsView struct {
	APIKey    string `json:"api_key"`
	APIKeySet bool   `json:"api_key_set"`
	BaseURL   string `json:"base_url"`
	Model     string `json:"model"`
}

// settingsRequest fields left out of the body keep their current value.
type settingsRequest struct {
	APIKey  *string `json:"api_key"`
	BaseURL *string `json:"base_url"`
	Model   *string `json:"model"`
}

func (s *Server) currentSettings() settingsView {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := settingsView{BaseURL: s.settings.BaseURL, Model: s.settings.Model, APIKeySet: s.apiKey != ""}
	if v.APIKeySet {
		v.APIKey = auth.Mask(s.apiKey)
	}
	return v
}

func (s *Server) handleGetSettings(c echo.Context) error {
	return c.JSON(http.StatusOK, s.currentSettings())
}

func (s *Server) handlePutSettings(c echo.Context) error {
	var req settingsRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid JSON body")
	}

	s.mu.Lock()
	next := s.settings
	key := s.apiKey
	s.mu.Unlock()

	if req.BaseURL != nil {
		if err := next.Set(settings.KeyBaseURL, *req.BaseURL); err != nil {
			return badRequest("%s", err.Error())
		}
	}
	if req.Model != nil {
		if err := next.Set(settings.KeyModel, *req.Model); err != nil {
			return badRequest("%s", err.Error())
		}
	}
	newKey := ""
	if req.APIKey != nil {
		newKey = strings.TrimSpace(*req.APIKey)
	}
	if newKey != "" {
		key = newKey
	}

	exp, err := s.newExpander(c.Request().Context(), gemini.Config{APIKey: key, Endpoint: next.BaseURL, Model: next.Model})
	if err != nil {
		return err
	}
	if newKey != "" {
		if err := s.saveKey(newKey); err != nil {
			return err
		}
	}
	if s.settingsPath != "" {
		if err := settings.Save(s.settingsPath, next); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.settings = next
	s.apiKey = key
	s.mu.Unlock()
	s.tracker.SetExpander(exp)
	logger.Info("Settings updated", "model", next.Model, "base_url", next.BaseURL, "credential_changed", newKey != "")

	return c.JSON(http.StatusOK, s.currentSettings())
}
