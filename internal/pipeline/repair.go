package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/oukeidos/splitfill/internal/files"
	"github.com/oukeidos/splitfill/internal/ingest"
	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/recovery"
	"github.com/oukeidos/splitfill/internal/splitter"
	"github.com/oukeidos/splitfill/internal/tracker"
)

// RunRepair re-expands the halves listed in a recovery log. Inputs are
// split again and only the failed parts are sent to the model.
func RunRepair(ctx context.Context, cfg Config) (RepairResult, error) {
	// 1. Validation & Load Log
	if cfg.LogPath == "" {
		return RepairResult{}, fmt.Errorf("log file path is required for repair")
	}
	if err := files.RejectSymlinkPath(cfg.LogPath); err != nil {
		return RepairResult{}, err
	}
	logFile, origHash, err := recovery.LoadSessionLogWithHash(cfg.LogPath)
	if err != nil {
		return RepairResult{}, fmt.Errorf("failed to load recovery log: %w", err)
	}
	if err := logFile.Validate(); err != nil {
		return RepairResult{}, fmt.Errorf("invalid recovery log: %w", err)
	}
	if err := cfg.ValidateRepairRuntime(); err != nil {
		return RepairResult{}, fmt.Errorf("invalid configuration: %w", err)
	}
	axis, err := splitter.ParseAxis(logFile.Axis)
	if err != nil {
		return RepairResult{}, fmt.Errorf("invalid recovery log: %w", err)
	}
	targets, err := recovery.Plan(cfg.LogPath, logFile)
	if err != nil {
		return RepairResult{}, err
	}
	for _, t := range targets {
		for _, stem := range t.OutputStems {
			if err := files.RejectSymlinkPath(filepath.Dir(stem)); err != nil {
				return RepairResult{}, err
			}
		}
	}

	// 2. Setup Client & Tracker
	// Use model and endpoint from log, but allow API key and endpoint override from config (runtime)
	endpoint := logFile.Endpoint
	if cfg.Endpoint != "" {
		endpoint = cfg.Endpoint
	}
	exp, err := cfg.expander(ctx, logFile.Model, endpoint)
	if err != nil {
		return RepairResult{}, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	if c, ok := exp.(interface{ Configured() error }); ok {
		if err := c.Configured(); err != nil {
			return RepairResult{}, err
		}
	}
	concurrency, _ := ClampConcurrency(logFile.Concurrency)
	tr := tracker.New(exp, tracker.Options{Concurrency: concurrency, QPS: cfg.QPS, OnChange: cfg.OnEvent})

	// 3. Repair
	logger.Info("Starting repair", "model", logFile.Model, "failed_halves", len(logFile.Failed))
	ids := make([]string, len(targets))
	splitErrs := make([]error, len(targets))
	for i, t := range targets {
		f, err := os.Open(t.InputPath)
		if err != nil {
			return RepairResult{}, fmt.Errorf("failed to open input: %w", err)
		}
		up, err := ingest.FromReader(filepath.Base(t.InputPath), f)
		f.Close()
		if err != nil {
			return RepairResult{}, fmt.Errorf("failed to read input %s: %w", t.InputPath, err)
		}
		up.SourceRef = t.InputPath
		item, err := tr.Add(up)
		if err != nil {
			return RepairResult{}, err
		}
		ids[i] = item.ID
		if err := tr.Prepare(item.ID, axis); err != nil {
			splitErrs[i] = err
			continue
		}
		for _, part := range t.Parts {
			p, _ := tracker.ParsePart(part)
			if err := tr.Dispatch(ctx, item.ID, p); err != nil {
				logger.Error("Failed to dispatch half", "input", t.InputPath, "part", p, "error", err)
			}
		}
	}
	tr.Wait()

	// 4. Handle Results
	result := RepairResult{Model: logFile.Model, Usage: usageOf(exp)}
	var remaining []recovery.FailedHalf
	for i, t := range targets {
		item, _ := tr.Get(ids[i])
		for _, part := range t.Parts {
			entry := t.Entries[part]
			p, _ := tracker.ParsePart(part)
			h := item.Half(p)
			if splitErrs[i] == nil && h.Status == tracker.StatusDone && h.Expanded != nil {
				path, err := writeOutput(t.OutputStems[part], *h.Expanded, true)
				if err != nil {
					return result, fmt.Errorf("failed to save output file: %w", err)
				}
				logger.Info("Saved half", "path", path)
				result.Outputs = append(result.Outputs, path)
				result.Repaired++
				continue
			}
			switch {
			case splitErrs[i] != nil:
				entry.Reason = "image could not be split"
			case h.Err != "":
				entry.Reason = h.Err
			}
			remaining = append(remaining, entry)
		}
	}
	result.Remaining = len(remaining)

	if len(remaining) == 0 {
		logger.Info("Repair finished", "status", "Success", "repaired", result.Repaired)
		// Clean up log file on success
		if currentHash, err := recovery.HashFile(cfg.LogPath); err != nil {
			logger.Warn("Failed to read session log for verification", "path", cfg.LogPath, "error", err)
		} else if currentHash != origHash {
			logger.Warn("Session log content changed; skipping delete", "path", cfg.LogPath)
		} else if err := os.Remove(cfg.LogPath); err != nil {
			logger.Warn("Failed to remove session log after success", "path", cfg.LogPath, "error", err)
		}
		return result, nil
	}

	status := recovery.CalculateStatus(len(remaining), logFile.TotalHalves)
	logger.Info("Repair finished", "status", status, "repaired", result.Repaired, "remaining", len(remaining))
	logFile.Failed = remaining
	logFile.Status = status
	logFile.StatusReason = ""
	if ctx.Err() != nil {
		logFile.StatusReason = "canceled"
	}
	if err := recovery.UpdateSessionLog(cfg.LogPath, logFile); err != nil {
		logger.Error("Failed to update recovery log", "error", err)
	} else {
		logger.Warn("Partial repair - session log updated", "path", cfg.LogPath)
	}
	return result, fmt.Errorf("repair finished with %d failed halves", len(remaining))
}
