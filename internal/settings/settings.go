// Package settings persists the user's endpoint and model choices.
// Values are stored in ~/.config/splitfill/settings.toml; the API key
// lives in the OS keychain (see package auth).
package settings

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gofrs/flock"
	"github.com/oukeidos/splitfill/internal/files"
	"github.com/oukeidos/splitfill/internal/gemini"
	toml "github.com/pelletier/go-toml/v2"
)

// Settings holds the persisted values.
type Settings struct {
	BaseURL string `toml:"base_url"`
	Model   string `toml:"model"`
}

const (
	KeyAPIKey  = "api_key"
	KeyBaseURL = "base_url"
	KeyModel   = "model"

	defaultSettingsPath = "~/.config/splitfill/settings.toml"
)

// Keys lists every settings key in display order.
var Keys = []string{KeyAPIKey, KeyBaseURL, KeyModel}

// Default returns the settings used when nothing is stored.
func Default() Settings {
	return Settings{Model: gemini.DefaultModel}
}

// DefaultPath returns the default settings file path.
func DefaultPath() string {
	return defaultSettingsPath
}

// Load reads settings from the given path, falling back to defaults if the
// file is missing or unreadable.
func Load(path string) (Settings, error) {
	resolved, err := ResolvePath(path)
	if err != nil {
		return Default(), nil
	}

	file, err := os.Open(resolved)
	if err != nil {
		return Default(), nil // Graceful degradation
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(file)
	if err != nil {
		return Default(), nil
	}

	s := Default()
	if err := toml.Unmarshal(data, &s); err != nil {
		return Default(), nil
	}
	return s.normalized(), nil
}

// Save writes settings atomically while holding an exclusive lock on
// <path>.lock, creating directories as needed.
func Save(path string, s Settings) error {
	resolved, err := ResolvePath(path)
	if err != nil {
		return fmt.Errorf("resolve path: %w", err)
	}
	if err := s.Validate(); err != nil {
		return err
	}

	if err := files.EnsureDir(filepath.Dir(resolved), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}

	lock := flock.New(resolved + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire settings lock: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	data, err := toml.Marshal(s.normalized())
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}
	if err := files.AtomicWrite(resolved, data, 0o600); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}

// Validate rejects values that cannot be used to build a client.
func (s Settings) Validate() error {
	base := strings.TrimSpace(s.BaseURL)
	if base != "" && !strings.HasPrefix(base, "http://") && !strings.HasPrefix(base, "https://") {
		return fmt.Errorf("base_url must start with http:// or https://")
	}
	if strings.ContainsAny(s.Model, " \t\n/") {
		return fmt.Errorf("model must be a bare model id")
	}
	return nil
}

// Get returns the value stored under key. The api_key is not held here.
func (s Settings) Get(key string) (string, error) {
	switch key {
	case KeyBaseURL:
		return s.BaseURL, nil
	case KeyModel:
		return s.Model, nil
	case KeyAPIKey:
		return "", errors.New("api_key is stored in the OS keychain")
	default:
		return "", fmt.Errorf("unknown settings key %q", key)
	}
}

// Set assigns value to key. An empty model resets to the default.
func (s *Settings) Set(key, value string) error {
	value = strings.TrimSpace(value)
	switch key {
	case KeyBaseURL:
		s.BaseURL = value
	case KeyModel:
		s.Model = value
	case KeyAPIKey:
		return errors.New("api_key is stored in the OS keychain")
	default:
		return fmt.Errorf("unknown settings key %q (valid: %s)", key, strings.Join(Keys, ", "))
	}
	*s = s.normalized()
	return s.Validate()
}

func (s Settings) normalized() Settings {
	s.BaseURL = strings.TrimSpace(s.BaseURL)
	s.Model = strings.TrimSpace(s.Model)
	if s.Model == "" {
		s.Model = gemini.DefaultModel
	}
	return s
}

// ResolvePath expands ~ and makes path absolute. An empty path selects the default.
func ResolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return expandPath(defaultSettingsPath)
	}
	return expandPath(path)
}

func expandPath(path string) (string, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return "", fmt.Errorf("path is empty")
	}
	if strings.HasPrefix(trimmed, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		trimmed = filepath.Join(home, strings.TrimPrefix(trimmed, "~"))
	}
	return filepath.Abs(trimmed)
}
