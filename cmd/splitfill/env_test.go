package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func withEnvStatusStubs(t *testing.T, status bool, envKey string) {
	t.Helper()

	prevStatus := getStatus
	prevEnv := getEnvKey
	getStatus = func() bool { return status }
	getEnvKey = func() (string, bool) {
		if envKey == "" {
			return "", false
		}
		return envKey, true
	}
	t.Cleanup(func() {
		getStatus = prevStatus
		getEnvKey = prevEnv
	})
}

func executeCommand(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return buf.String(), err
}

func TestHandleEnv_StatusKeychain(t *testing.T) {
	withEnvStatusStubs(t, true, "sk-env-secret")

	out, err := executeCommand(t, "env", "status")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if !strings.Contains(out, "Found (source=Keychain)") {
		t.Fatalf("expected keychain source, got: %s", out)
	}
	if strings.Contains(out, "sk-env-secret") {
		t.Fatalf("output leaked env key")
	}
}

func TestHandleEnv_StatusEnv(t *testing.T) {
	withEnvStatusStubs(t, false, "sk-env-secret")

	out, err := executeCommand(t, "env")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if !strings.Contains(out, "Found (source=Environment Variable") {
		t.Fatalf("expected env source, got: %s", out)
	}
	if strings.Contains(out, "sk-env-secret") {
		t.Fatalf("output leaked env key")
	}
}

func TestHandleEnv_StatusNotFound(t *testing.T) {
	withEnvStatusStubs(t, false, "")

	out, err := executeCommand(t, "env", "status")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if !strings.Contains(out, "Not Found") {
		t.Fatalf("expected not found, got: %s", out)
	}
}

func TestHandleEnvSetup_RejectsPositionalAPIKey(t *testing.T) {
	out, err := executeCommand(t, "env", "setup", "sk-should-not-be-allowed")
	if err == nil {
		t.Fatalf("expected setup to reject positional API key argument")
	}
	if !strings.Contains(out, "unknown command") && !strings.Contains(out, "accepts 0 arg(s)") {
		t.Fatalf("expected positional-argument rejection error, got: %s", out)
	}
}

func TestHandleEnvSetup_SavesPromptedKey(t *testing.T) {
	withKeyStubs(t, true, "  AIzaSyPromptKey9876  ", "", "")
	prevSave := saveKey
	t.Cleanup(func() { saveKey = prevSave })
	var saved string
	saveKey = func(key string) error { saved = key; return nil }

	out, err := executeCommand(t, "env", "setup")
	if err != nil {
		t.Fatalf("command failed: %v", err)
	}
	if saved != "AIzaSyPromptKey9876" {
		t.Fatalf("saved key = %q", saved)
	}
	if strings.Contains(out, "AIzaSyPromptKey") || !strings.Contains(out, "9876") {
		t.Fatalf("expected masked key in output, got: %s", out)
	}
}

func TestHandleEnvDelete(t *testing.T) {
	prevDelete := deleteKey
	t.Cleanup(func() { deleteKey = prevDelete })

	deleteKey = func() error { return nil }
	out, err := executeCommand(t, "env", "delete")
	if err != nil || !strings.Contains(out, "Deleted") {
		t.Fatalf("unexpected result: out=%s err=%v", out, err)
	}

	deleteKey = func() error { return errors.New("keychain locked") }
	if _, err := executeCommand(t, "env", "delete"); err == nil || !strings.Contains(err.Error(), "keychain locked") {
		t.Fatalf("expected delete error, got %v", err)
	}
}
