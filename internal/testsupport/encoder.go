package testsupport

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"reel/internal/encoding"
)

// EncodeFunc decides the outcome of one fake encode call. attempt counts
// calls for the same input starting at zero.
type EncodeFunc func(req encoding.Request, attempt int) error

// FakeEncoder records requests and writes a small output file on success.
type FakeEncoder struct {
	mu       sync.Mutex
	requests []encoding.Request
	attempts map[string]int
	outcome  EncodeFunc
	// OnEncode runs before the outcome is decided; tests use it to observe
	// concurrency or block.
	OnEncode func(ctx context.Context, req encoding.Request)
}

// NewFakeEncoder returns an encoder whose results come from outcome. A nil
// outcome always succeeds.
func NewFakeEncoder(outcome EncodeFunc) *FakeEncoder {
	return &FakeEncoder{attempts: make(map[string]int), outcome: outcome}
}

// Encode implements encoding.Encoder.
func (f *FakeEncoder) Encode(ctx context.Context, req encoding.Request) error {
	f.mu.Lock()
	attempt := f.attempts[req.Input]
	f.attempts[req.Input]++
	f.requests = append(f.requests, req)
	outcome := f.outcome
	hook := f.OnEncode
	f.mu.Unlock()

	if hook != nil {
		hook(ctx, req)
	}
	if outcome != nil {
		if err := outcome(req, attempt); err != nil {
			return err
		}
	}
	if err := os.MkdirAll(filepath.Dir(req.Output), 0o755); err != nil {
		return err
	}
	return os.WriteFile(req.Output, []byte("encoded"), 0o644)
}

// Requests returns a copy of every request seen.
func (f *FakeEncoder) Requests() []encoding.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]encoding.Request(nil), f.requests...)
}

// Attempts reports how many times input was encoded.
func (f *FakeEncoder) Attempts(input string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempts[input]
}

var _ encoding.Encoder = (*FakeEncoder)(nil)
