package pipeline

import (
	"github.com/oukeidos/splitfill/internal/gemini"
	"github.com/oukeidos/splitfill/internal/ingest"
	"github.com/oukeidos/splitfill/internal/tracker"
)

// BatchStatus is the terminal state of a batch run.
type BatchStatus string

const (
	BatchStatusSuccess        BatchStatus = "Success"
	BatchStatusPartialSuccess BatchStatus = "Partial Success"
	BatchStatusFailure        BatchStatus = "Failure"
	BatchStatusSkipped        BatchStatus = "Skipped"
)

// HalfResult is the outcome of one half.
type HalfResult struct {
	Part       tracker.Part
	Status     tracker.Status
	OutputPath string
	Err        string
}

// ItemResult is the outcome of one input image.
type ItemResult struct {
	Name      string
	SourceRef string
	// SplitFailed is set when the image could not be cut; such items are
	// not written to the recovery log.
	SplitFailed bool
	Halves      []HalfResult
}

// BatchResult contains structured outputs from RunBatch.
type BatchResult struct {
	Status          BatchStatus
	Model           string
	Items           []ItemResult
	Skipped         []ingest.Skipped
	RecoveryLogPath string
	Usage           gemini.Usage
	TotalHalves     int
	FailedHalves    int
}

// Outputs lists every file written by the run.
func (r BatchResult) Outputs() []string {
	var out []string
	for _, item := range r.Items {
		for _, h := range item.Halves {
			if h.OutputPath != "" {
				out = append(out, h.OutputPath)
			}
		}
	}
	return out
}

func batchStatusFromRecovery(status string) BatchStatus {
	switch status {
	case string(BatchStatusSuccess):
		return BatchStatusSuccess
	case string(BatchStatusPartialSuccess):
		return BatchStatusPartialSuccess
	default:
		return BatchStatusFailure
	}
}

// RepairResult contains the result of a repair operation.
type RepairResult struct {
	Model     string
	Usage     gemini.Usage
	Outputs   []string
	Repaired  int
	Remaining int
}

func usageOf(exp gemini.Expander) gemini.Usage {
	if u, ok := exp.(interface{ Usage() gemini.Usage }); ok {
		return u.Usage()
	}
	return gemini.Usage{}
}
