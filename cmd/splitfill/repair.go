package main

import (
	"fmt"
	"time"

	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/pipeline"
	"github.com/oukeidos/splitfill/internal/tracker"
	"github.com/spf13/cobra"
)

var (
	runRepairPipeline    = pipeline.RunRepair
	printRepairStatsFunc = printUsageStats
)

type repairOptions struct {
	endpoint    string
	allowEnv    bool
	envOnly     bool
	debug       bool
	logFilePath string
}

func newRepairCmd() *cobra.Command {
	opts := repairOptions{}
	cmd := &cobra.Command{
		Use:   "repair <splitfill_recovery.json>",
		Short: "Re-expand the failed halves recorded in a recovery log",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) < 1 {
				_ = cmd.Usage()
				return fmt.Errorf("recovery log path is required")
			}
			return runRepair(cmd, args, &opts)
		},
		SilenceUsage: true,
	}

	cmd.SetUsageTemplate(subcommandUsageTemplate)
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Override the Gemini API base URL stored in the log")
	cmd.Flags().StringVar(&opts.logFilePath, "log-file", "", "Path to save machine-readable JSONL logs")
	cmd.Flags().BoolVar(&opts.allowEnv, "allow-env", false, "Allow reading API key from environment variables")
	cmd.Flags().BoolVar(&opts.envOnly, "env-only", false, "Use only environment variables for API keys")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	return cmd
}

func runRepair(cmd *cobra.Command, args []string, opts *repairOptions) error {
	startTime := time.Now()
	logPath := args[0]

	if err := initLogging(opts.debug, opts.logFilePath); err != nil {
		return err
	}

	actualKey, source, err := resolveAPIKey(opts.allowEnv, opts.envOnly)
	if err != nil {
		return err
	}
	logger.Info("Using API Key", "service", "gemini", "source", source)

	cfg := pipeline.Config{
		LogPath:  logPath,
		APIKey:   actualKey,
		Endpoint: opts.endpoint,
		OnEvent: func(ev tracker.Event) {
			switch ev.To {
			case tracker.StatusDone:
				logger.Info("Half repaired", "item", ev.ItemID, "part", ev.Part)
			case tracker.StatusError:
				logger.Warn("Half failed again", "item", ev.ItemID, "part", ev.Part, "error", ev.Err)
			}
		},
	}

	ctx, stop := signalContext()
	defer stop()
	result, err := runRepairPipeline(ctx, cfg)

	out := commandOut(cmd)
	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("Repair canceled", "error", err)
			return nil
		}
		if shouldPrintRepairStats(result) {
			printRepairStatsFunc(out, result.Usage, time.Since(startTime), result.Model)
		}
		return err
	}
	for _, path := range result.Outputs {
		fmt.Fprintf(out, "Saved %s\n", path)
	}
	printRepairStatsFunc(out, result.Usage, time.Since(startTime), result.Model)

	return nil
}

func shouldPrintRepairStats(result pipeline.RepairResult) bool {
	if result.Model != "" {
		return true
	}
	usage := result.Usage
	return usage.Requests > 0 || usage.TotalTokens > 0
}
