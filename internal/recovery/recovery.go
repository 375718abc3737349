package recovery

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/oukeidos/splitfill/internal/files"
)

// FailedHalf identifies one half whose expansion did not succeed.
// Paths are relative to the log file.
type FailedHalf struct {
	InputPath string `json:"input_path"`
	InputHash string `json:"input_hash"`
	Part      string `json:"part"`
	// OutputStem is the output path without extension; the extension
	// follows the format of the expanded image.
	OutputStem string `json:"output_stem"`
	Reason     string `json:"reason,omitempty"`
}

// SessionLog stores the failed halves of a run for later repair.
type SessionLog struct {
	LogVersion   int          `json:"log_version"`
	Axis         string       `json:"axis"`
	Model        string       `json:"model"`
	Endpoint     string       `json:"endpoint,omitempty"`
	Concurrency  int          `json:"concurrency"`
	Failed       []FailedHalf `json:"failed"`
	TotalHalves  int          `json:"total_halves"`
	Status       string       `json:"status"` // "Success", "Partial Success", "Failure"
	StatusReason string       `json:"status_reason,omitempty"`
}

const CurrentLogVersion = 1

// Validate checks if the session log is consistent and safe to resume.
func (log *SessionLog) Validate() error {
	if log.LogVersion == 0 {
		log.LogVersion = CurrentLogVersion
	}
	if log.LogVersion != CurrentLogVersion {
		return fmt.Errorf("unsupported log_version: %d", log.LogVersion)
	}
	if log.Axis != "horizontal" && log.Axis != "vertical" {
		return fmt.Errorf("invalid axis: %q", log.Axis)
	}
	if log.Model == "" {
		return fmt.Errorf("model name is empty")
	}
	if log.Concurrency <= 0 {
		return fmt.Errorf("invalid concurrency: %d", log.Concurrency)
	}
	if log.TotalHalves <= 0 {
		return fmt.Errorf("invalid total_halves: %d", log.TotalHalves)
	}
	if len(log.Failed) == 0 {
		return fmt.Errorf("failed list is empty")
	}
	if len(log.Failed) > log.TotalHalves {
		return fmt.Errorf("failed count %d exceeds total_halves %d", len(log.Failed), log.TotalHalves)
	}
	seen := make(map[string]bool, len(log.Failed))
	for i, f := range log.Failed {
		if err := f.validate(); err != nil {
			return fmt.Errorf("failed[%d]: %w", i, err)
		}
		key := filepath.Clean(f.InputPath) + "#" + f.Part
		if seen[key] {
			return fmt.Errorf("failed[%d]: duplicate entry for %s part %s", i, f.InputPath, f.Part)
		}
		seen[key] = true
	}
	if log.Status == "" {
		return fmt.Errorf("session status is empty")
	}
	if log.StatusReason != "" && log.StatusReason != "canceled" {
		return fmt.Errorf("invalid status_reason: %s", log.StatusReason)
	}
	return nil
}

func (f FailedHalf) validate() error {
	if f.InputPath == "" {
		return fmt.Errorf("input_path is empty")
	}
	if filepath.IsAbs(f.InputPath) {
		return fmt.Errorf("input_path must be relative, not absolute: %s", f.InputPath)
	}
	if f.OutputStem == "" {
		return fmt.Errorf("output_stem is empty")
	}
	// Security: outputs must stay under the log directory.
	if filepath.IsAbs(f.OutputStem) {
		return fmt.Errorf("output_stem must be relative, not absolute: %s", f.OutputStem)
	}
	if strings.HasPrefix(filepath.Clean(f.OutputStem), "..") {
		return fmt.Errorf("output_stem cannot traverse parent directories: %s", f.OutputStem)
	}
	if !strings.HasPrefix(f.InputHash, "sha256:") {
		return fmt.Errorf("invalid input_hash: %q", f.InputHash)
	}
	if f.Part != "a" && f.Part != "b" {
		return fmt.Errorf("invalid part: %q", f.Part)
	}
	return nil
}

// SaveSessionLog writes a new session log next to path without replacing
// an existing file, and returns the path actually written.
func SaveSessionLog(path string, log *SessionLog) (string, error) {
	data, err := marshal(log)
	if err != nil {
		return "", err
	}
	return files.AtomicWriteExclusive(path, data, 0600)
}

// UpdateSessionLog replaces the log at path in place.
func UpdateSessionLog(path string, log *SessionLog) error {
	data, err := marshal(log)
	if err != nil {
		return err
	}
	return files.AtomicWrite(path, data, 0600)
}

func marshal(log *SessionLog) ([]byte, error) {
	if log.LogVersion == 0 {
		log.LogVersion = CurrentLogVersion
	}
	return json.MarshalIndent(log, "", "  ")
}

// GenerateRecoveryPath creates a unique filename for the recovery session log
// inside outputDir.
// Logic:
// 1. splitfill_recovery.json
// 2. splitfill_recovery_0.json ~ _9.json
// 3. splitfill_recovery_[UUIDv7].json (with collision check)
func GenerateRecoveryPath(outputDir string) string {
	const base = "splitfill"

	// Stage 1: Primary
	primary := filepath.Join(outputDir, fmt.Sprintf("%s_recovery.json", base))
	if _, err := os.Stat(primary); os.IsNotExist(err) {
		return primary
	}

	// Stage 2: Short Loop (0-9)
	for i := 0; i <= 9; i++ {
		candidate := filepath.Join(outputDir, fmt.Sprintf("%s_recovery_%d.json", base, i))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}

	// Stage 3: Fallback (UUID v7)
	for i := 0; i < 100; i++ {
		u, err := uuid.NewV7()
		var suffix string
		if err != nil {
			suffix = uuid.NewString()[:8]
		} else {
			suffix = u.String()
		}
		candidate := filepath.Join(outputDir, fmt.Sprintf("%s_recovery_%s.json", base, suffix))
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate
		}
	}

	return filepath.Join(outputDir, fmt.Sprintf("%s_recovery_final_%d.json", base, os.Getpid()))
}

// LoadSessionLog loads the session state from a JSON file.
func LoadSessionLog(path string) (*SessionLog, error) {
	log, _, err := LoadSessionLogWithHash(path)
	return log, err
}

// LoadSessionLogWithHash loads the session log and returns a content hash.
func LoadSessionLogWithHash(path string) (*SessionLog, [32]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, [32]byte{}, err
	}
	var log SessionLog
	if err := json.Unmarshal(data, &log); err != nil {
		return nil, [32]byte{}, err
	}
	if log.LogVersion == 0 {
		log.LogVersion = CurrentLogVersion
	}
	return &log, sha256.Sum256(data), nil
}

// HashFile returns a SHA-256 hash of the given file contents.
func HashFile(path string) ([32]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return [32]byte{}, err
	}
	defer file.Close()

	h := sha256.New()
	if _, err := io.Copy(h, file); err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum, nil
}

// HashBytesHex returns a sha256-prefixed hex string of data.
func HashBytesHex(data []byte) string {
	sum := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(sum[:])
}

// HashFileHex returns a sha256-prefixed hex string of the file contents.
func HashFileHex(path string) (string, error) {
	sum, err := HashFile(path)
	if err != nil {
		return "", err
	}
	return "sha256:" + hex.EncodeToString(sum[:]), nil
}

// CalculateStatus determines the session status based on failed and total halves.
func CalculateStatus(failedCount, totalCount int) string {
	if failedCount == 0 {
		return "Success"
	}
	if failedCount < totalCount {
		return "Partial Success"
	}
	return "Failure"
}

// ResolvePath resolves a log-relative path against the log file location.
func ResolvePath(logPath, relPath string) string {
	if filepath.IsAbs(relPath) {
		return relPath
	}
	return filepath.Join(filepath.Dir(logPath), relPath)
}

// ToRelativeOutputPath converts an output path to one relative to the log
// location. Outputs outside the log directory are rejected.
func ToRelativeOutputPath(logPath, outputPath string) (string, error) {
	rel, err := toRelativePath(logPath, outputPath)
	if err != nil {
		return "", err
	}
	if strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("output path is not within log directory")
	}
	return rel, nil
}

// ToRelativeInputPath converts an input path to one relative to the log location.
func ToRelativeInputPath(logPath, inputPath string) (string, error) {
	return toRelativePath(logPath, inputPath)
}

func toRelativePath(logPath, targetPath string) (string, error) {
	absLogDir, err := filepath.Abs(filepath.Dir(logPath))
	if err != nil {
		return "", err
	}
	absTarget, err := filepath.Abs(targetPath)
	if err != nil {
		return "", err
	}
	return filepath.Rel(absLogDir, absTarget)
}
