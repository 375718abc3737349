package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/oukeidos/splitfill/internal/ingest"
	"github.com/oukeidos/splitfill/internal/logger"
	"github.com/oukeidos/splitfill/internal/pipeline"
	"github.com/oukeidos/splitfill/internal/prompt"
	"github.com/oukeidos/splitfill/internal/tracker"
	"github.com/spf13/cobra"
)

var (
	runBatchPipeline = pipeline.RunBatch
	printStatsFunc   = printUsageStats
)

type runOptions struct {
	axis         string
	outDir       string
	concurrency  int
	modelName    string
	endpoint     string
	yes          bool
	logFilePath  string
	settingsPath string
	allowEnv     bool
	envOnly      bool
	debug        bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run <image-or-folder>...",
		Short: "Split and expand images (default command)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				_ = cmd.Usage()
				return fmt.Errorf("at least one input file or folder is required")
			}
			return runBatch(cmd, args, &opts)
		},
		SilenceUsage: true,
	}

	cmd.SetUsageTemplate(subcommandUsageTemplate)
	addRunFlags(cmd, &opts)
	return cmd
}

func addRunFlags(cmd *cobra.Command, opts *runOptions) {
	cmd.Flags().StringVar(&opts.axis, "axis", "horizontal", "Split axis: horizontal (left/right) or vertical (top/bottom)")
	cmd.Flags().StringVarP(&opts.outDir, "out", "o", ".", "Output directory")
	cmd.Flags().IntVar(&opts.concurrency, "concurrency", tracker.DefaultConcurrency, "Number of concurrent API requests (1-20)")
	cmd.Flags().StringVar(&opts.modelName, "model", "", "Gemini image model (default from settings)")
	cmd.Flags().StringVar(&opts.endpoint, "endpoint", "", "Gemini API base URL (default from settings)")
	cmd.Flags().BoolVarP(&opts.yes, "yes", "y", false, "Overwrite existing outputs without asking")
	cmd.Flags().StringVar(&opts.logFilePath, "log-file", "", "Path to save machine-readable JSONL logs")
	cmd.Flags().StringVar(&opts.settingsPath, "settings", "", "Settings file path (default ~/.config/splitfill/settings.toml)")
	cmd.Flags().BoolVar(&opts.allowEnv, "allow-env", false, "Allow reading API key from environment variables")
	cmd.Flags().BoolVar(&opts.envOnly, "env-only", false, "Use only environment variables for API keys")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
}

func runBatch(cmd *cobra.Command, args []string, opts *runOptions) error {
	if err := initLogging(opts.debug, opts.logFilePath); err != nil {
		return err
	}
	startTime := time.Now()
	st := loadSettings(opts.settingsPath)

	actualKey, source, err := resolveAPIKey(opts.allowEnv, opts.envOnly)
	if err != nil {
		return err
	}
	logger.Info("Using API Key", "service", "gemini", "source", source)

	model := firstNonEmpty(opts.modelName, st.Model)
	cfg := pipeline.Config{
		Inputs:      args,
		OutputDir:   opts.outDir,
		APIKey:      actualKey,
		Endpoint:    firstNonEmpty(opts.endpoint, st.BaseURL),
		Model:       model,
		Axis:        opts.axis,
		Concurrency: opts.concurrency,
		Overwrite:   opts.yes,
		OnEvent: func(ev tracker.Event) {
			switch ev.To {
			case tracker.StatusDone:
				logger.Info("Half expanded", "item", ev.ItemID, "part", ev.Part)
			case tracker.StatusError:
				logger.Warn("Half failed", "item", ev.ItemID, "part", ev.Part, "error", ev.Err)
			}
		},
		OnConfirmOverwrite: func(paths []string) bool {
			confirmed, err := prompt.DefaultConfirmer().ConfirmOverwrite(paths, opts.yes)
			if err != nil {
				logger.Error("Overwrite confirmation failed", "error", err)
				return false
			}
			return confirmed
		},
	}

	ctx, stop := signalContext()
	defer stop()
	result, err := runBatchPipeline(ctx, cfg)

	out := commandOut(cmd)
	if len(result.Items) > 0 {
		printItemTable(out, result)
	}
	// Always print stats (even on partial success)
	if result.Model != "" {
		printStatsFunc(out, result.Usage, time.Since(startTime), result.Model)
	}

	if err != nil {
		if ctx.Err() != nil {
			logger.Warn("Run canceled", "error", err)
			return nil
		}
		return err
	}
	return batchStatusError(result)
}

func commandOut(cmd *cobra.Command) io.Writer {
	if cmd == nil {
		return os.Stdout
	}
	return cmd.OutOrStdout()
}

func batchStatusError(result pipeline.BatchResult) error {
	switch result.Status {
	case pipeline.BatchStatusSuccess, pipeline.BatchStatusSkipped:
		return nil
	case pipeline.BatchStatusPartialSuccess, pipeline.BatchStatusFailure:
		if result.RecoveryLogPath != "" {
			return fmt.Errorf("run finished with status: %s (recovery log: %s)", result.Status, result.RecoveryLogPath)
		}
		return fmt.Errorf("run finished with status: %s", result.Status)
	default:
		return fmt.Errorf("run finished with unknown status: %q", result.Status)
	}
}

const itemNameWidth = 40

func printItemTable(w io.Writer, result pipeline.BatchResult) {
	rows := make([][]string, 0, len(result.Items)*2)
	for _, item := range result.Items {
		name := ingest.DisplayName(item.Name, itemNameWidth)
		for _, h := range item.Halves {
			detail := h.OutputPath
			if h.Err != "" {
				detail = h.Err
			}
			rows = append(rows, []string{name, string(h.Part), h.Status.String(), detail})
		}
	}
	for _, s := range result.Skipped {
		rows = append(rows, []string{ingest.DisplayName(s.Path, itemNameWidth), "-", "skipped", s.Reason})
	}
	fmt.Fprintln(w, renderTable([]string{"Image", "Part", "Status", "Output / Error"}, rows, nil))
}
