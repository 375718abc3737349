package recovery

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestPlan_GroupsAndVerifies(t *testing.T) {
	base := t.TempDir()
	inDir := filepath.Join(base, "in")
	outDir := filepath.Join(base, "out")
	for _, d := range []string{inDir, outDir} {
		if err := os.MkdirAll(d, 0o700); err != nil {
			t.Fatal(err)
		}
	}
	cat := filepath.Join(inDir, "cat.png")
	dog := filepath.Join(inDir, "dog.png")
	os.WriteFile(cat, []byte("cat-bytes"), 0o600)
	os.WriteFile(dog, []byte("dog-bytes"), 0o600)
	catHash, _ := HashFileHex(cat)
	dogHash, _ := HashFileHex(dog)

	logPath := filepath.Join(outDir, "splitfill_recovery.json")
	log := &SessionLog{
		Failed: []FailedHalf{
			{InputPath: "../in/cat.png", InputHash: catHash, Part: "b", OutputStem: "cat_b"},
			{InputPath: "../in/dog.png", InputHash: dogHash, Part: "a", OutputStem: "dog_a"},
			{InputPath: "../in/cat.png", InputHash: catHash, Part: "a", OutputStem: "cat_a"},
		},
	}

	targets, err := Plan(logPath, log)
	if err != nil {
		t.Fatalf("Plan failed: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if filepath.Clean(targets[0].InputPath) != cat {
		t.Fatalf("expected first target to be cat, got %q", targets[0].InputPath)
	}
	if strings.Join(targets[0].Parts, ",") != "a,b" {
		t.Fatalf("expected sorted parts a,b, got %v", targets[0].Parts)
	}
	if targets[0].OutputStems["b"] != filepath.Join(outDir, "cat_b") {
		t.Fatalf("unexpected output stem %q", targets[0].OutputStems["b"])
	}

	os.WriteFile(dog, []byte("changed"), 0o600)
	if _, err := Plan(logPath, log); err == nil || !strings.Contains(err.Error(), "content mismatch") {
		t.Fatalf("expected content mismatch, got %v", err)
	}

	os.Remove(cat)
	if _, err := Plan(logPath, log); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected missing input error, got %v", err)
	}
}
