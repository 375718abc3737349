package main

import (
	"strings"
	"testing"
)

func TestRenderTable_KeepsHeaderCase(t *testing.T) {
	out := renderTable([]string{"Image", "Output / Error"}, [][]string{{"cat.png"}}, nil)
	if !strings.Contains(out, "Output / Error") {
		t.Fatalf("expected header as written, got:\n%s", out)
	}
	if strings.Contains(out, "OUTPUT") {
		t.Fatalf("header must not be upper-cased:\n%s", out)
	}
}

func TestRenderTable_NoHeaders(t *testing.T) {
	if out := renderTable(nil, [][]string{{"x"}}, nil); out != "" {
		t.Fatalf("expected empty output, got %q", out)
	}
}
