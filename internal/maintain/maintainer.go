// Package maintain regenerates note embeddings out of band: after an
// embedding model upgrade, or to repair notes persisted without a vector
// when the synchronous write path could not embed them.
package maintain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kalambet/noted/internal/embedding"
	"github.com/kalambet/noted/internal/storage"
	"github.com/kalambet/noted/internal/vector"
)

// Mode selects which notes a run touches.
type Mode string

const (
	// ModeMissing processes notes whose stored vector is absent, fails to
	// decode, or has the wrong dimension for the active model.
	ModeMissing Mode = "missing-only"
	// ModeAll recomputes every note's vector regardless of current state.
	// Required after a model upgrade: vectors from different models must
	// never coexist in one collection.
	ModeAll Mode = "all"
)

// DefaultBatchSize bounds how many notes a single page scan loads.
const DefaultBatchSize = 100

// Options configures a maintenance run.
type Options struct {
	Mode      Mode
	BatchSize int
	DryRun    bool
}

// Report summarizes a run. Failed counts per-note embedding errors; they
// never abort the run.
type Report struct {
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// Store is the storage surface the maintainer needs.
type Store interface {
	ListNotes(ctx context.Context, limit, offset int) ([]storage.Note, error)
	ReplaceEmbedding(ctx context.Context, id, content, embedding string) (bool, error)
}

// Embedder generates embeddings and knows the expected dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// Maintainer scans the store in batches and regenerates embeddings.
type Maintainer struct {
	store    Store
	embedder Embedder
	logger   *slog.Logger
}

// New creates a Maintainer. A nil logger falls back to slog.Default().
func New(store Store, embedder Embedder, logger *slog.Logger) *Maintainer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Maintainer{store: store, embedder: embedder, logger: logger}
}

// Run executes one maintenance pass. Batches are not transactional across
// the run: each note is rewritten atomically on its own, so an interrupted
// run is safe to repeat (ModeMissing only touches still-missing notes,
// ModeAll recomputes regardless). The run aborts only when the embedding
// engine itself cannot initialize.
func (m *Maintainer) Run(ctx context.Context, opts Options) (Report, error) {
	if opts.Mode == "" {
		opts.Mode = ModeMissing
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}

	var report Report
	var mu sync.Mutex

	for offset := 0; ; offset += opts.BatchSize {
		batch, err := m.store.ListNotes(ctx, opts.BatchSize, offset)
		if err != nil {
			return report, fmt.Errorf("scanning notes at offset %d: %w", offset, err)
		}
		if len(batch) == 0 {
			break
		}

		var candidates []storage.Note
		for _, n := range batch {
			report.Scanned++
			if m.needsRefresh(n, opts.Mode) {
				candidates = append(candidates, n)
			}
		}

		if opts.DryRun {
			// Counts only; no embedding calls, no writes.
			report.Updated += len(candidates)
			continue
		}

		g, gCtx := errgroup.WithContext(ctx)
		g.SetLimit(4) // Bound concurrency to avoid overwhelming the engine.

		for _, n := range candidates {
			n := n
			g.Go(func() error {
				vec, err := m.embedder.Embed(gCtx, n.Content)
				if err != nil {
					if errors.Is(err, embedding.ErrModelUnavailable) {
						return err
					}
					m.logger.Warn("embedding note failed", "note_id", n.ID, "error", err)
					mu.Lock()
					report.Failed++
					mu.Unlock()
					return nil
				}

				ok, err := m.store.ReplaceEmbedding(gCtx, n.ID, n.Content, vector.Encode(vec))
				if err != nil {
					m.logger.Warn("storing embedding failed", "note_id", n.ID, "error", err)
					mu.Lock()
					report.Failed++
					mu.Unlock()
					return nil
				}
				if !ok {
					// Note was edited or deleted mid-run; the synchronous
					// write path owns its vector now.
					m.logger.Debug("note changed during run, skipping", "note_id", n.ID)
					return nil
				}

				mu.Lock()
				report.Updated++
				mu.Unlock()
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			return report, err
		}
	}

	return report, nil
}

// needsRefresh decides whether a note's vector must be recomputed. A stored
// vector that fails to decode or has the wrong dimension counts as missing:
// both are invariant violations only regeneration can fix.
func (m *Maintainer) needsRefresh(n storage.Note, mode Mode) bool {
	if n.Content == "" {
		return false
	}
	if mode == ModeAll {
		return true
	}
	if !n.HasEmbedding() {
		return true
	}
	vec, err := vector.Decode(n.Embedding)
	if err != nil {
		return true
	}
	if dim := m.embedder.Dimension(); dim > 0 && len(vec) != dim {
		return true
	}
	return false
}
