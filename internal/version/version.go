package version

import "fmt"

// Name is the program name used in CLI output and the HTTP user agent.
const Name = "splitfill"

// Version is the release version embedded in the binary.
// It can be overridden at build time via:
// go build -ldflags "-X github.com/oukeidos/splitfill/internal/version.Version=0.1.0"
var Version = "0.1.0"

// Commit is the git commit hash embedded in the binary.
// It can be overridden at build time via:
// go build -ldflags "-X github.com/oukeidos/splitfill/internal/version.Commit=abcdef1"
var Commit = "unknown"

// BuildDate is the RFC3339 build timestamp embedded in the binary.
var BuildDate = "unknown"

// Short returns "name version".
func Short() string {
	return fmt.Sprintf("%s %s", Name, Version)
}

// Info returns a multi-line version string for CLI output.
func Info() string {
	return fmt.Sprintf("%s\ncommit: %s\nbuild: %s", Short(), Commit, BuildDate)
}
