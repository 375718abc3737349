package auth

import (
	"fmt"
	"os"
	"strings"
	"syscall"

	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const (
	serviceName   = "splitfill"
	geminiAccount = "gemini-api-key"
	// EnvVar is consulted only when the caller allows the environment.
	EnvVar = "GEMINI_API_KEY"

	SourceKeychain = "Keychain"
	SourceEnv      = "Environment Variable"
	SourcePrompt   = "Terminal Prompt"
)

// GetKey retrieves the Gemini API key and the name of the store it came from.
// If allowEnv is false, environment variables are ignored.
func GetKey(allowEnv bool) (string, string) {
	// 1. Try Keychain
	key, err := keyring.Get(serviceName, geminiAccount)
	if err == nil && strings.TrimSpace(key) != "" {
		return strings.TrimSpace(key), SourceKeychain
	}

	if allowEnv {
		// 2. Try Env Var (optional)
		if key, ok := GetEnvKey(); ok {
			return key, SourceEnv
		}
	}

	return "", ""
}

// SaveKey saves the key to the OS Keychain.
func SaveKey(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("API key is empty")
	}
	return keyring.Set(serviceName, geminiAccount, key)
}

// DeleteKey removes the key from the OS Keychain. A missing key is not an error.
func DeleteKey() error {
	err := keyring.Delete(serviceName, geminiAccount)
	if err == keyring.ErrNotFound {
		return nil
	}
	return err
}

// GetStatus returns whether a key exists in the keychain.
func GetStatus() bool {
	key, err := keyring.Get(serviceName, geminiAccount)
	if err != nil || key == "" {
		return false
	}
	return true
}

// PromptForAPIKey securely prompts the user for their API key.
func PromptForAPIKey(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	bytePassword, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		return "", err
	}
	fmt.Fprintln(os.Stderr) // Add newline after password input
	return strings.TrimSpace(string(bytePassword)), nil
}

// GetEnvKey retrieves the key from environment variables only.
func GetEnvKey() (string, bool) {
	key := strings.TrimSpace(os.Getenv(EnvVar))
	if key == "" {
		return "", false
	}
	return key, true
}

// Mask hides all but the last four characters of a key.
func Mask(key string) string {
	key = strings.TrimSpace(key)
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return strings.Repeat("*", len(key))
	}
	return strings.Repeat("*", 8) + key[len(key)-4:]
}
