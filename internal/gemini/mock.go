package gemini

import (
	"context"
	"sync"

	"github.com/oukeidos/splitfill/internal/media"
)

// MockClient for testing
type MockClient struct {
	// ExpandFunc, when set, replaces Result and Error.
	ExpandFunc func(ctx context.Context, img media.Image) (media.Image, error)
	Result     media.Image
	Error      error
	// Unconfigured makes Configured report ErrNoCredential.
	Unconfigured bool

	mu    sync.Mutex
	calls int
}

var _ Expander = (*MockClient)(nil)

func (m *MockClient) Expand(ctx context.Context, img media.Image) (media.Image, error) {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.Unconfigured {
		return media.Image{}, ErrNoCredential
	}
	if m.ExpandFunc != nil {
		return m.ExpandFunc(ctx, img)
	}
	return m.Result, m.Error
}

func (m *MockClient) Configured() error {
	if m.Unconfigured {
		return ErrNoCredential
	}
	return nil
}

// Calls reports how many times Expand was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}
