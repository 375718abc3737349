package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/oukeidos/splitfill/internal/gemini"
	"github.com/oukeidos/splitfill/internal/splitter"
	"github.com/oukeidos/splitfill/internal/tracker"
)

// Config holds all configuration required for running a batch or repair session.
type Config struct {
	// IO Paths
	Inputs    []string
	OutputDir string
	LogPath   string // recovery log for repair

	// API Configuration
	APIKey   string
	Endpoint string
	Model    string

	// Processing Parameters
	Axis        string
	Concurrency int
	QPS         float64

	// Flags
	Overwrite bool // If true, overwrite existing outputs without asking

	// Expander replaces the Gemini client; used by tests.
	Expander gemini.Expander

	// Callbacks
	// OnEvent is called after every half transition.
	OnEvent func(tracker.Event)

	// OnConfirmOverwrite is called with the outputs that already exist.
	// It should return true if they may be overwritten. If nil, colliding
	// outputs are written under a fresh name instead.
	OnConfirmOverwrite func(paths []string) bool
}

const (
	MinConcurrency = 1
	MaxConcurrency = tracker.MaxConcurrency
)

func ClampConcurrency(value int) (int, bool) {
	if value < MinConcurrency {
		return MinConcurrency, true
	}
	if value > MaxConcurrency {
		return MaxConcurrency, true
	}
	return value, false
}

// Normalize applies safe bounds and defaults to config values and returns
// any adjustments.
func (c Config) Normalize() (Config, []string) {
	var notes []string
	if clamped, changed := ClampConcurrency(c.Concurrency); changed {
		notes = append(notes, fmt.Sprintf("concurrency clamped from %d to %d (max %d)", c.Concurrency, clamped, MaxConcurrency))
		c.Concurrency = clamped
	}
	c.Model = strings.TrimSpace(c.Model)
	if c.Model == "" {
		c.Model = gemini.DefaultModel
	}
	if strings.TrimSpace(c.Axis) == "" {
		c.Axis = string(splitter.Horizontal)
	}
	return c, notes
}

// Validate checks if the configuration is valid for a batch run.
func (c Config) Validate() error {
	if len(c.Inputs) == 0 {
		return fmt.Errorf("at least one input file or folder is required")
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return fmt.Errorf("output directory is required")
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be greater than 0, got %d", c.Concurrency)
	}
	if _, err := splitter.ParseAxis(c.Axis); err != nil {
		return err
	}
	return c.ValidateRepairRuntime()
}

// ValidateRepairRuntime checks only runtime config required for repair.
// Log-derived settings (axis/model/concurrency) are validated on the session log.
func (c Config) ValidateRepairRuntime() error {
	if c.APIKey == "" && c.Expander == nil {
		return fmt.Errorf("API key is required")
	}
	return nil
}

func (c Config) expander(ctx context.Context, model, endpoint string) (gemini.Expander, error) {
	if c.Expander != nil {
		return c.Expander, nil
	}
	return gemini.NewClient(ctx, gemini.Config{APIKey: c.APIKey, Endpoint: endpoint, Model: model})
}
