package recovery

import (
	"fmt"
	"os"
	"sort"
)

// RepairTarget is one input image and the halves that still need expansion.
type RepairTarget struct {
	InputPath string
	Parts     []string
	// OutputStems maps a part to its absolute output path without extension.
	OutputStems map[string]string
	// Entries keeps the original log entries, keyed by part.
	Entries map[string]FailedHalf
}

// Plan groups the failed halves of log by input, resolves their paths
// against logPath and verifies that every input is unchanged since the run.
func Plan(logPath string, log *SessionLog) ([]RepairTarget, error) {
	byInput := make(map[string]*RepairTarget)
	var order []string
	for _, f := range log.Failed {
		input := ResolvePath(logPath, f.InputPath)
		target, ok := byInput[input]
		if !ok {
			if _, err := os.Stat(input); err != nil {
				return nil, fmt.Errorf("invalid recovery log: input file not found: %s", f.InputPath)
			}
			hash, err := HashFileHex(input)
			if err != nil {
				return nil, fmt.Errorf("failed to compute input hash: %w", err)
			}
			if hash != f.InputHash {
				return nil, fmt.Errorf("input file content mismatch for %s: expected %s, got %s", f.InputPath, f.InputHash, hash)
			}
			target = &RepairTarget{
				InputPath:   input,
				OutputStems: make(map[string]string),
				Entries:     make(map[string]FailedHalf),
			}
			byInput[input] = target
			order = append(order, input)
		} else if f.InputHash != target.Entries[target.Parts[0]].InputHash {
			return nil, fmt.Errorf("invalid recovery log: conflicting hashes for %s", f.InputPath)
		}
		target.Parts = append(target.Parts, f.Part)
		target.OutputStems[f.Part] = ResolvePath(logPath, f.OutputStem)
		target.Entries[f.Part] = f
	}

	out := make([]RepairTarget, 0, len(order))
	for _, input := range order {
		t := byInput[input]
		sort.Strings(t.Parts)
		out = append(out, *t)
	}
	return out, nil
}
