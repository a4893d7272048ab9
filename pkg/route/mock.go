package route

import (
	"context"
	"sync"
)

// Mock implements Provider for testing.
type Mock struct {
	// FetchFunc is called when Fetch is invoked. If nil, Payload is returned.
	FetchFunc func(ctx context.Context, req Request) (Payload, error)

	// Payload is returned when FetchFunc is nil.
	Payload Payload

	mu    sync.Mutex
	calls []Request
}

// NewMock creates a mock returning payload.
func NewMock(payload Payload) *Mock {
	return &Mock{Payload: payload}
}

// Name implements Provider.
func (m *Mock) Name() string {
	return "mock"
}

// Fetch implements Provider.
func (m *Mock) Fetch(ctx context.Context, req Request) (Payload, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	m.mu.Unlock()

	if m.FetchFunc != nil {
		return m.FetchFunc(ctx, req)
	}
	return m.Payload, nil
}

// Calls returns all recorded requests.
func (m *Mock) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Request, len(m.calls))
	copy(out, m.calls)
	return out
}
