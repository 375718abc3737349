package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/oukeidos/splitfill/internal/files"
	"github.com/oukeidos/splitfill/internal/ingest"
	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/media"
	"github.com/oukeidos/splitfill/internal/recovery"
	"github.com/oukeidos/splitfill/internal/splitter"
	"github.com/oukeidos/splitfill/internal/tracker"
)

// RunBatch splits and expands every image reachable from cfg.Inputs and
// writes <name>_a.<ext> and <name>_b.<ext> into cfg.OutputDir. Failed
// halves are recorded in a recovery log next to the outputs.
func RunBatch(ctx context.Context, cfg Config) (BatchResult, error) {
	var notes []string
	cfg, notes = cfg.Normalize()
	for _, note := range notes {
		logger.Warn("Config normalized", "detail", note)
	}
	if err := cfg.Validate(); err != nil {
		return BatchResult{}, fmt.Errorf("invalid configuration: %w", err)
	}
	axis, _ := splitter.ParseAxis(cfg.Axis)

	// 1. Collect inputs
	collected, err := ingest.Collect(cfg.Inputs)
	if err != nil {
		return BatchResult{}, err
	}
	for _, s := range collected.Skipped {
		logger.Warn("Skipped input", "path", s.Path, "reason", s.Reason)
	}
	if len(collected.Uploads) == 0 {
		return BatchResult{Skipped: collected.Skipped}, fmt.Errorf("no images found in the given inputs")
	}
	logger.Info("Collected images", "count", len(collected.Uploads), "skipped", len(collected.Skipped))

	// 2. Prepare output directory and names
	absOut, err := filepath.Abs(cfg.OutputDir)
	if err != nil {
		return BatchResult{}, fmt.Errorf("failed to resolve output directory: %w", err)
	}
	if err := files.EnsureDir(absOut, 0o755); err != nil {
		return BatchResult{}, err
	}
	stems := planStems(absOut, collected.Uploads)

	overwrite := cfg.Overwrite
	if existing := existingOutputs(stems); len(existing) > 0 && !overwrite {
		if cfg.OnConfirmOverwrite != nil {
			if !cfg.OnConfirmOverwrite(existing) {
				logger.Info("Output files exist. Aborted by user.", "count", len(existing))
				return BatchResult{Status: BatchStatusSkipped, Skipped: collected.Skipped}, nil // Not an error, just user cancellation
			}
			overwrite = true
			logger.Info("Overwriting output files", "count", len(existing))
		}
	}

	// 3. Initialize client & tracker
	exp, err := cfg.expander(ctx, cfg.Model, cfg.Endpoint)
	if err != nil {
		return BatchResult{}, err
	}
	tr := tracker.New(exp, tracker.Options{Concurrency: cfg.Concurrency, QPS: cfg.QPS, OnChange: cfg.OnEvent})

	ids := make([]string, 0, len(collected.Uploads))
	for _, up := range collected.Uploads {
		item, err := tr.Add(up)
		if err != nil {
			return BatchResult{}, err
		}
		ids = append(ids, item.ID)
	}

	// 4. Split & expand
	logger.Info("Starting expansion", "model", cfg.Model, "axis", axis, "images", len(ids))
	if _, err := tr.Process(ctx, axis); err != nil {
		return BatchResult{}, err
	}
	tr.Wait()

	// 5. Handle results
	result := BatchResult{Model: cfg.Model, Skipped: collected.Skipped, Usage: usageOf(exp)}
	var failed []recovery.FailedHalf
	var failedSources []string
	for i, id := range ids {
		item, _ := tr.Get(id)
		ir := ItemResult{Name: item.Name, SourceRef: item.SourceRef, SplitFailed: item.Pending()}
		for _, p := range tracker.Parts {
			h := item.Half(p)
			hr := HalfResult{Part: p, Status: h.Status, Err: h.Err}
			result.TotalHalves++
			stem := stems[i] + "_" + string(p)
			switch {
			case ir.SplitFailed:
				hr.Err = "image could not be split"
				result.FailedHalves++
			case h.Status == tracker.StatusDone && h.Expanded != nil:
				path, err := writeOutput(stem, *h.Expanded, overwrite)
				if err != nil {
					return result, fmt.Errorf("failed to save output file: %w", err)
				}
				hr.OutputPath = path
				logger.Info("Saved half", "path", path)
			default:
				result.FailedHalves++
				failed = append(failed, recovery.FailedHalf{Part: string(p), OutputStem: stem, Reason: h.Err})
				failedSources = append(failedSources, item.SourceRef)
			}
			ir.Halves = append(ir.Halves, hr)
		}
		result.Items = append(result.Items, ir)
	}
	result.Status = batchStatusFromRecovery(recovery.CalculateStatus(result.FailedHalves, result.TotalHalves))
	logger.Info("Batch finished", "status", result.Status, "failed_halves", result.FailedHalves, "total_halves", result.TotalHalves)

	if len(failed) == 0 {
		return result, nil
	}

	// 6. Recovery log for failed expansions
	logPath := recovery.GenerateRecoveryPath(absOut)
	hashes := make(map[string]string)
	for i := range failed {
		src := failedSources[i]
		hash, ok := hashes[src]
		if !ok {
			hash, err = recovery.HashFileHex(src)
			if err != nil {
				return result, fmt.Errorf("failed to compute input hash for recovery log: %w", err)
			}
			hashes[src] = hash
		}
		relIn, err := recovery.ToRelativeInputPath(logPath, src)
		if err != nil {
			return result, fmt.Errorf("failed to convert input path to relative: %w", err)
		}
		relOut, err := recovery.ToRelativeOutputPath(logPath, failed[i].OutputStem)
		if err != nil {
			return result, fmt.Errorf("failed to convert output path to relative: %w", err)
		}
		failed[i].InputPath = relIn
		failed[i].InputHash = hash
		failed[i].OutputStem = relOut
	}
	session := &recovery.SessionLog{
		LogVersion:  recovery.CurrentLogVersion,
		Axis:        string(axis),
		Model:       cfg.Model,
		Endpoint:    cfg.Endpoint,
		Concurrency: cfg.Concurrency,
		Failed:      failed,
		TotalHalves: result.TotalHalves,
		Status:      string(result.Status),
	}
	if ctx.Err() != nil {
		session.StatusReason = "canceled"
	}
	written, err := recovery.SaveSessionLog(logPath, session)
	if err != nil {
		logger.Error("Failed to save recovery log", "error", err)
		return result, nil
	}
	if result.Status == BatchStatusPartialSuccess {
		logger.Warn("Partial success - recovery log saved", "path", written)
	} else {
		logger.Error("Expansion failed - recovery log saved", "path", written)
	}
	result.RecoveryLogPath = written
	return result, nil
}

// planStems returns a unique output stem per upload inside dir.
func planStems(dir string, uploads []media.Upload) []string {
	used := make(map[string]int)
	stems := make([]string, len(uploads))
	for i, up := range uploads {
		base := strings.TrimSuffix(filepath.Base(up.Name), filepath.Ext(up.Name))
		if base == "" {
			base = "image"
		}
		used[base]++
		if n := used[base]; n > 1 {
			base = base + "_" + strconv.Itoa(n)
		}
		stems[i] = filepath.Join(dir, base)
	}
	return stems
}

func existingOutputs(stems []string) []string {
	var out []string
	for _, stem := range stems {
		for _, part := range tracker.Parts {
			matches, _ := filepath.Glob(stem + "_" + string(part) + ".*")
			for _, m := range matches {
				if info, err := os.Stat(m); err == nil && info.Mode().IsRegular() {
					out = append(out, m)
				}
			}
		}
	}
	return out
}

func writeOutput(stem string, img media.Image, overwrite bool) (string, error) {
	path := stem + img.Ext()
	if !overwrite {
		safe, changed, err := files.FreePath(path)
		if err != nil {
			return "", err
		}
		if changed {
			logger.Warn("Output path adjusted to avoid overwrite", "original", path, "effective", safe)
		}
		path = safe
	}
	if err := files.AtomicWrite(path, img.Data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}
