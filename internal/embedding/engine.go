package embedding

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrModelUnavailable marks a hard model-initialization failure: the backend
// is unreachable or the configured model cannot be made ready. Operations
// that need an embedding cannot proceed past it.
var ErrModelUnavailable = errors.New("embedding model unavailable")

// Backend is the subset of Client the Engine depends on. Tests substitute
// their own implementation.
type Backend interface {
	Embed(ctx context.Context, model string, text string) ([]float32, error)
	IsRunning(ctx context.Context) bool
	HasModel(ctx context.Context, name string) bool
	PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error
}

// Engine produces fixed-dimension embeddings for note text. Readiness is
// established lazily on first use and cached for the process lifetime;
// Reset discards the cached state so the next call re-probes (used by tests
// and explicit model reloads).
type Engine struct {
	backend Backend
	model   string
	dim     int

	mu      sync.Mutex
	ready   bool
	initErr error
}

// NewEngine creates an Engine for the given backend and model. dim is the
// dimension every produced vector must have; 0 disables the check (the
// first successful embed then fixes it).
func NewEngine(backend Backend, model string, dim int) *Engine {
	return &Engine{backend: backend, model: model, dim: dim}
}

// Model returns the configured model name.
func (e *Engine) Model() string {
	return e.model
}

// Dimension returns the expected vector dimension, or 0 if not yet fixed.
func (e *Engine) Dimension() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dim
}

// ensureReady probes the backend once per process (or once per Reset).
// A failed probe is cached: every subsequent call fails fast with the same
// ErrModelUnavailable until Reset, mirroring the one-time model load.
func (e *Engine) ensureReady(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ready {
		return nil
	}
	if e.initErr != nil {
		return e.initErr
	}

	if !e.backend.IsRunning(ctx) {
		e.initErr = fmt.Errorf("%w: backend not reachable", ErrModelUnavailable)
		return e.initErr
	}
	if !e.backend.HasModel(ctx, e.model) {
		e.initErr = fmt.Errorf("%w: model %q not present", ErrModelUnavailable, e.model)
		return e.initErr
	}

	e.ready = true
	return nil
}

// Reset clears the cached readiness state so the next Embed re-initializes.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ready = false
	e.initErr = nil
}

// Embed returns the embedding vector for text. The vector always has the
// configured dimension; a mismatch from the backend (e.g. the model was
// swapped underneath a populated collection) is an error, never stored.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.ensureReady(ctx); err != nil {
		return nil, err
	}

	vec, err := e.backend.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.dim == 0 {
		e.dim = len(vec)
	} else if len(vec) != e.dim {
		return nil, fmt.Errorf("model %s returned %d dimensions, expected %d", e.model, len(vec), e.dim)
	}
	return vec, nil
}
