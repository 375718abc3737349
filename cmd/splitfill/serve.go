package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/oukeidos/splitfill/internal/gemini"
	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/metrics"
	"github.com/oukeidos/splitfill/internal/server"
	"github.com/oukeidos/splitfill/internal/settings"
	"github.com/oukeidos/splitfill/internal/tracker"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 30 * time.Second

type serveOptions struct {
	addr         string
	concurrency  int
	settingsPath string
	logFilePath  string
	allowEnv     bool
	envOnly      bool
	debug        bool
}

func newServeCmd() *cobra.Command {
	opts := serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, &opts)
		},
		SilenceUsage: true,
	}

	cmd.SetUsageTemplate(subcommandUsageTemplate)
	cmd.Flags().StringVar(&opts.addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", tracker.DefaultConcurrency, "Number of concurrent API requests (1-20)")
	cmd.Flags().StringVar(&opts.settingsPath, "settings", "", "Settings file path (default ~/.config/splitfill/settings.toml)")
	cmd.Flags().StringVar(&opts.logFilePath, "log-file", "", "Path to save machine-readable JSONL logs")
	cmd.Flags().BoolVar(&opts.allowEnv, "allow-env", false, "Allow reading API key from environment variables")
	cmd.Flags().BoolVar(&opts.envOnly, "env-only", false, "Use only environment variables for API keys")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	if err := initLogging(opts.debug, opts.logFilePath); err != nil {
		return err
	}
	if opts.concurrency < 1 || opts.concurrency > tracker.MaxConcurrency {
		return fmt.Errorf("concurrency must be between 1 and %d, got %d", tracker.MaxConcurrency, opts.concurrency)
	}
	settingsPath, err := settings.ResolvePath(opts.settingsPath)
	if err != nil {
		return err
	}
	st := loadSettings(settingsPath)

	// The server starts without a key; processing then reports the missing credential.
	apiKey, source, err := resolveAPIKey(opts.allowEnv, opts.envOnly)
	if err != nil {
		logger.Warn("No API key resolved; set one through PUT /api/settings", "error", err)
	} else {
		logger.Info("Using API Key", "service", "gemini", "source", source)
	}

	ctx, stop := signalContext()
	defer stop()

	exp, err := gemini.NewClient(ctx, gemini.Config{APIKey: apiKey, Endpoint: st.BaseURL, Model: st.Model})
	if err != nil {
		return fmt.Errorf("failed to create Gemini client: %w", err)
	}
	observer := metrics.NewObserver()
	tr := tracker.New(exp, tracker.Options{
		Concurrency: opts.concurrency,
		OnChange:    observer.Observe,
		OnRemove:    observer.Forget,
	})

	srv := server.NewServer(server.Config{
		Tracker:      tr,
		Settings:     st,
		SettingsPath: settingsPath,
		APIKey:       apiKey,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(opts.addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
