package prompt

import (
	"bytes"
	"strings"
	"testing"
)

func TestConfirmOverwrite_NonInteractive(t *testing.T) {
	c := Confirmer{
		In:            bytes.NewBufferString("y\n"),
		IsInteractive: func() bool { return false },
	}
	ok, err := c.ConfirmOverwrite([]string{"out_a.png"}, false)
	if err == nil || !strings.Contains(err.Error(), "-y") {
		t.Fatalf("expected error for non-interactive confirm, got ok=%v err=%v", ok, err)
	}
}

func TestConfirmOverwrite_Force(t *testing.T) {
	c := Confirmer{
		In:            bytes.NewBufferString("n\n"),
		IsInteractive: func() bool { return false },
	}
	ok, err := c.ConfirmOverwrite([]string{"out_a.png"}, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok {
		t.Fatalf("expected ok=true for forced overwrite")
	}
}

func TestConfirmOverwrite_NothingToOverwrite(t *testing.T) {
	c := Confirmer{IsInteractive: func() bool { return false }}
	ok, err := c.ConfirmOverwrite(nil, false)
	if err != nil || !ok {
		t.Fatalf("expected no prompt for empty list, got ok=%v err=%v", ok, err)
	}
}

func TestConfirm_Interactive(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"", false},
	}
	for _, tt := range tests {
		out := &bytes.Buffer{}
		c := Confirmer{
			In:            bytes.NewBufferString(tt.input),
			Out:           out,
			IsInteractive: func() bool { return true },
		}
		ok, err := c.ConfirmOverwrite([]string{"a.png", "b.png"}, false)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if ok != tt.want {
			t.Fatalf("input %q: got %v, want %v", tt.input, ok, tt.want)
		}
		if !strings.Contains(out.String(), "2 output files") {
			t.Fatalf("expected plural prompt, got %q", out.String())
		}
	}
}
