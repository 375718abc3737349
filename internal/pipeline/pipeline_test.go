package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/oukeidos/splitfill/internal/apperrors"
	"github.com/oukeidos/splitfill/internal/gemini"
	"github.com/oukeidos/splitfill/internal/media"
	"github.com/oukeidos/splitfill/internal/recovery"
	"github.com/oukeidos/splitfill/internal/tracker"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 10), G: uint8(y * 10), B: 80, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, pngBytes(t, w, h), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func expandedImage(t *testing.T) media.Image {
	t.Helper()
	return media.NewImage("out.png", pngBytes(t, 16, 9))
}

// failingWidth returns an expander that rejects crops of the given width.
func failingWidth(t *testing.T, width int) *gemini.MockClient {
	out := expandedImage(t)
	return &gemini.MockClient{ExpandFunc: func(ctx context.Context, img media.Image) (media.Image, error) {
		if img.Width == width {
			return media.Image{}, apperrors.New(apperrors.KindTransient, "The model did not return an image.", errors.New("boom"))
		}
		return out, nil
	}}
}

func TestRunBatch_InvalidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	inPath := writePNG(t, tmpDir, "in.png", 8, 4)

	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "No inputs",
			cfg:     Config{OutputDir: tmpDir, Concurrency: 1, APIKey: "test"},
			wantErr: "at least one input",
		},
		{
			name:    "No output dir",
			cfg:     Config{Inputs: []string{inPath}, Concurrency: 1, APIKey: "test"},
			wantErr: "output directory is required",
		},
		{
			name:    "Bad axis",
			cfg:     Config{Inputs: []string{inPath}, OutputDir: tmpDir, Axis: "diagonal", Concurrency: 1, APIKey: "test"},
			wantErr: "axis",
		},
		{
			name:    "No API key",
			cfg:     Config{Inputs: []string{inPath}, OutputDir: tmpDir, Concurrency: 1},
			wantErr: "API key is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RunBatch(context.Background(), tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("RunBatch() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunBatch_NoImages(t *testing.T) {
	tmpDir := t.TempDir()
	txt := filepath.Join(tmpDir, "notes.txt")
	if err := os.WriteFile(txt, []byte("hello"), 0o600); err != nil {
		t.Fatal(err)
	}
	res, err := RunBatch(context.Background(), Config{
		Inputs: []string{txt}, OutputDir: t.TempDir(), Concurrency: 1, Expander: &gemini.MockClient{},
	})
	if err == nil || !strings.Contains(err.Error(), "no images") {
		t.Fatalf("expected no images error, got %v", err)
	}
	if len(res.Skipped) != 1 {
		t.Fatalf("expected 1 skipped input, got %d", len(res.Skipped))
	}
}

func TestRunBatch_Success(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	writePNG(t, inDir, "cat.png", 8, 4)
	writePNG(t, inDir, "dog.png", 6, 4)

	var mu sync.Mutex
	var events []tracker.Event
	mock := &gemini.MockClient{Result: expandedImage(t)}
	res, err := RunBatch(context.Background(), Config{
		Inputs:      []string{inDir},
		OutputDir:   outDir,
		Concurrency: 2,
		QPS:         -1,
		Expander:    mock,
		OnEvent: func(ev tracker.Event) {
			mu.Lock()
			events = append(events, ev)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if res.Status != BatchStatusSuccess {
		t.Fatalf("status = %q, want Success", res.Status)
	}
	if res.TotalHalves != 4 || res.FailedHalves != 0 {
		t.Fatalf("halves total=%d failed=%d", res.TotalHalves, res.FailedHalves)
	}
	if mock.Calls() != 4 {
		t.Fatalf("expected 4 expand calls, got %d", mock.Calls())
	}
	for _, name := range []string{"cat_a.png", "cat_b.png", "dog_a.png", "dog_b.png"} {
		if _, err := os.Stat(filepath.Join(outDir, name)); err != nil {
			t.Errorf("missing output %s: %v", name, err)
		}
	}
	if res.RecoveryLogPath != "" {
		t.Fatalf("unexpected recovery log %s", res.RecoveryLogPath)
	}
	if len(res.Outputs()) != 4 {
		t.Fatalf("expected 4 outputs, got %d", len(res.Outputs()))
	}
	if len(events) == 0 {
		t.Fatal("expected state change events")
	}
}

func TestRunBatch_PartialFailureWritesRecoveryLog(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	// Width 7 splits into 3 (a) and 4 (b).
	in := writePNG(t, inDir, "wide.png", 7, 4)

	res, err := RunBatch(context.Background(), Config{
		Inputs:      []string{in},
		OutputDir:   outDir,
		Concurrency: 1,
		QPS:         -1,
		Expander:    failingWidth(t, 3),
	})
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if res.Status != BatchStatusPartialSuccess {
		t.Fatalf("status = %q, want Partial Success", res.Status)
	}
	if _, err := os.Stat(filepath.Join(outDir, "wide_b.png")); err != nil {
		t.Fatalf("expected b output: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "wide_a.png")); !os.IsNotExist(err) {
		t.Fatalf("a output should not exist, stat err = %v", err)
	}
	if res.RecoveryLogPath == "" {
		t.Fatal("expected recovery log")
	}
	log, err := recovery.LoadSessionLog(res.RecoveryLogPath)
	if err != nil {
		t.Fatalf("LoadSessionLog failed: %v", err)
	}
	if err := log.Validate(); err != nil {
		t.Fatalf("recovery log invalid: %v", err)
	}
	if len(log.Failed) != 1 || log.Failed[0].Part != "a" || log.Failed[0].OutputStem != "wide_a" {
		t.Fatalf("unexpected failed entries: %+v", log.Failed)
	}
	if log.TotalHalves != 2 || log.Status != "Partial Success" {
		t.Fatalf("unexpected log totals: %+v", log)
	}
	if log.Failed[0].Reason == "" {
		t.Fatal("expected failure reason in log")
	}
}

func TestRunBatch_OverwriteDeclined(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	in := writePNG(t, inDir, "cat.png", 8, 4)
	existing := filepath.Join(outDir, "cat_a.png")
	if err := os.WriteFile(existing, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}

	var asked []string
	mock := &gemini.MockClient{Result: expandedImage(t)}
	res, err := RunBatch(context.Background(), Config{
		Inputs:             []string{in},
		OutputDir:          outDir,
		Concurrency:        1,
		Expander:           mock,
		OnConfirmOverwrite: func(paths []string) bool { asked = paths; return false },
	})
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	if res.Status != BatchStatusSkipped {
		t.Fatalf("status = %q, want Skipped", res.Status)
	}
	if len(asked) != 1 || asked[0] != existing {
		t.Fatalf("unexpected overwrite prompt: %v", asked)
	}
	if mock.Calls() != 0 {
		t.Fatalf("expected no expand calls, got %d", mock.Calls())
	}
}

func TestRunBatch_ExistingOutputGetsFreshName(t *testing.T) {
	inDir := t.TempDir()
	outDir := t.TempDir()
	in := writePNG(t, inDir, "cat.png", 8, 4)
	existing := filepath.Join(outDir, "cat_a.png")
	if err := os.WriteFile(existing, []byte("old"), 0o600); err != nil {
		t.Fatal(err)
	}

	res, err := RunBatch(context.Background(), Config{
		Inputs:      []string{in},
		OutputDir:   outDir,
		Concurrency: 1,
		QPS:         -1,
		Expander:    &gemini.MockClient{Result: expandedImage(t)},
	})
	if err != nil {
		t.Fatalf("RunBatch failed: %v", err)
	}
	data, _ := os.ReadFile(existing)
	if string(data) != "old" {
		t.Fatal("existing output was overwritten")
	}
	a := res.Items[0].Halves[0].OutputPath
	if a == existing || a == "" {
		t.Fatalf("expected fresh output path, got %q", a)
	}
}

func TestRunBatch_NoCredential(t *testing.T) {
	in := writePNG(t, t.TempDir(), "cat.png", 8, 4)
	mock := &gemini.MockClient{Unconfigured: true}
	_, err := RunBatch(context.Background(), Config{
		Inputs: []string{in}, OutputDir: t.TempDir(), Concurrency: 1, Expander: mock,
	})
	if !errors.Is(err, gemini.ErrNoCredential) {
		t.Fatalf("expected ErrNoCredential, got %v", err)
	}
	if mock.Calls() != 0 {
		t.Fatalf("expected no calls, got %d", mock.Calls())
	}
}

func TestPlanStems_Duplicates(t *testing.T) {
	ups := []media.Upload{{Name: "cat.png"}, {Name: "cat.jpg"}, {Name: "dog.png"}}
	got := planStems("/out", ups)
	want := []string{
		filepath.Join("/out", "cat"),
		filepath.Join("/out", "cat_2"),
		filepath.Join("/out", "dog"),
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("stem[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestConfigNormalize_ConcurrencyClamp(t *testing.T) {
	tests := []struct {
		name        string
		in          int
		want        int
		wantChanged bool
	}{
		{"below_min", 0, MinConcurrency, true},
		{"above_max", MaxConcurrency + 5, MaxConcurrency, true},
		{"within_range", MinConcurrency, MinConcurrency, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{Concurrency: tt.in}
			gotCfg, notes := cfg.Normalize()
			if gotCfg.Concurrency != tt.want {
				t.Fatalf("Normalize() concurrency = %d, want %d", gotCfg.Concurrency, tt.want)
			}
			if tt.wantChanged && len(notes) == 0 {
				t.Fatalf("Normalize() expected notes for clamped value")
			}
			if !tt.wantChanged && len(notes) != 0 {
				t.Fatalf("Normalize() unexpected notes for unchanged value")
			}
		})
	}
}

func TestConfigNormalize_Defaults(t *testing.T) {
	cfg, _ := Config{Concurrency: 1}.Normalize()
	if cfg.Model != gemini.DefaultModel {
		t.Errorf("model = %q", cfg.Model)
	}
	if cfg.Axis != "horizontal" {
		t.Errorf("axis = %q", cfg.Axis)
	}
}
