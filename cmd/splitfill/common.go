package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oukeidos/splitfill/internal/auth"
	"github.com/oukeidos/splitfill/internal/cleanup"
	"github.com/oukeidos/splitfill/internal/files"
	"github.com/oukeidos/splitfill/internal/gemini"
	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/metadata"
	"github.com/oukeidos/splitfill/internal/settings"
	"golang.org/x/term"
)

var (
	isTerminal   = term.IsTerminal
	getKey       = auth.GetKey
	getEnvKey    = auth.GetEnvKey
	getStatus    = auth.GetStatus
	promptForKey = auth.PromptForAPIKey
)

// resolveAPIKey handles the logic for finding the API key.
func resolveAPIKey(allowEnv, envOnly bool) (string, string, error) {
	if envOnly {
		if key, ok := getEnvKey(); ok {
			return key, auth.SourceEnv, nil
		}
		return "", "", fmt.Errorf("env-only set but %s is not set", auth.EnvVar)
	}

	if key, source := getKey(false); key != "" {
		return key, source, nil
	}

	if allowEnv {
		if key, ok := getEnvKey(); ok {
			return key, auth.SourceEnv, nil
		}
	}

	if isTerminal(int(os.Stdin.Fd())) {
		key, err := promptForKey("Gemini API Key (press Enter to skip): ")
		if err != nil {
			return "", "", fmt.Errorf("error reading API key: %w", err)
		}
		if strings.TrimSpace(key) != "" {
			return strings.TrimSpace(key), auth.SourcePrompt, nil
		}
	}

	if !isTerminal(int(os.Stdin.Fd())) {
		return "", "", fmt.Errorf("no API key available (non-interactive shell); set keychain or use --allow-env")
	}
	if allowEnv {
		return "", "", fmt.Errorf("API key is required; not found in keychain or environment")
	}
	return "", "", fmt.Errorf("API key is required; not found in keychain (environment disabled by default; use --allow-env)")
}

// initLogging configures the global logger and opens the optional JSONL log file.
func initLogging(debug bool, logFilePath string) error {
	logLevel := logger.LevelInfo
	if debug {
		logLevel = logger.LevelDebug
	}
	var logFileW io.Writer
	if logFilePath != "" {
		if err := files.RejectSymlinkPath(logFilePath); err != nil {
			return err
		}
		f, err := os.OpenFile(logFilePath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
		if err != nil {
			return fmt.Errorf("failed to open log file: %w", err)
		}
		cleanup.Register(f.Close)
		logFileW = f
	}
	logger.Init(logLevel, logFileW)
	return nil
}

// loadSettings reads the settings file; a broken file yields defaults.
func loadSettings(path string) settings.Settings {
	s, err := settings.Load(path)
	if err != nil {
		logger.Warn("Failed to load settings; using defaults", "path", path, "error", err)
		return settings.Default()
	}
	return s
}

// firstNonEmpty returns the first argument that is not blank.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func printUsageStats(w io.Writer, usage gemini.Usage, duration time.Duration, model string) {
	rows := [][]string{
		{"Time", duration.Round(time.Millisecond).String()},
		{"Model", model},
		{"Requests", fmt.Sprint(usage.Requests)},
		{"Images", fmt.Sprint(usage.Images)},
	}
	if usage.TotalTokens > 0 || usage.Images > 0 {
		// Thinking tokens are billed as output tokens.
		output := usage.TotalTokens - usage.PromptTokens
		if output < usage.CandidatesTokens {
			output = usage.CandidatesTokens
		}
		cost := metadata.EstimateCost(model, usage.PromptTokens, output, usage.Images)
		rows = append(rows,
			[]string{"Tokens", fmt.Sprintf("In=%d, Out=%d, Total=%d", usage.PromptTokens, usage.CandidatesTokens, usage.TotalTokens)},
			[]string{"Estimated Cost", fmt.Sprintf("$%.4f", cost)},
		)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, renderTable([]string{"Execution Stats", ""}, rows, []columnAlignment{alignLeft, alignRight}))
}

func signalContext() (context.Context, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("Cancellation requested")
			cancel()
		case <-ctx.Done():
		}
	}()
	stop := func() {
		signal.Stop(sigCh)
		cancel()
	}
	return ctx, stop
}
