package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/oukeidos/splitfill/internal/auth"
	"github.com/oukeidos/splitfill/internal/gemini"
	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/settings"
	"github.com/oukeidos/splitfill/internal/tracker"
)

const (
	// displayNameLimit is the number of grapheme clusters shown for an item name.
	displayNameLimit = 32
	maxUploadBody    = "1G"
)

// Config wires a Server to its tracker and settings store.
type Config struct {
	Tracker      *tracker.Tracker
	Settings     settings.Settings
	SettingsPath string
	APIKey       string
	// NewExpander builds the client installed after a settings change.
	// Defaults to gemini.NewClient.
	NewExpander func(ctx context.Context, cfg gemini.Config) (gemini.Expander, error)
	// SaveKey persists a new API key. Defaults to auth.SaveKey.
	SaveKey func(key string) error
}

type Server struct {
	echo    *echo.Echo
	tracker *tracker.Tracker

	mu           sync.Mutex
	settings     settings.Settings
	settingsPath string
	apiKey       string
	newExpander  func(ctx context.Context, cfg gemini.Config) (gemini.Expander, error)
	saveKey      func(key string) error

	// work outlives requests and is canceled on Shutdown.
	work      context.Context
	stopWork  context.CancelFunc
	startTime time.Time
}

func NewServer(cfg Config) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			logger.Debug("HTTP request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(ErrorHandlingMiddleware())

	work, stop := context.WithCancel(context.Background())
	srv := &Server{
		echo:         e,
		tracker:      cfg.Tracker,
		settings:     cfg.Settings,
		settingsPath: cfg.SettingsPath,
		apiKey:       cfg.APIKey,
		newExpander:  cfg.NewExpander,
		saveKey:      cfg.SaveKey,
		work:         work,
		stopWork:     stop,
		startTime:    time.Now(),
	}
	if srv.newExpander == nil {
		srv.newExpander = func(ctx context.Context, c gemini.Config) (gemini.Expander, error) {
			return gemini.NewClient(ctx, c)
		}
	}
	if srv.saveKey == nil {
		srv.saveKey = auth.SaveKey
	}

	// Register routes
	srv.registerRoutes()

	return srv
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.echo
}

func (s *Server) Start(addr string) error {
	logger.Info("Starting server", "addr", addr)
	return s.echo.Start(addr)
}

// Shutdown stops accepting requests, cancels running expansions and waits
// for them to settle.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.echo.Shutdown(ctx)
	s.stopWork()
	s.tracker.Wait()
	return err
}
