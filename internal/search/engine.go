// Package search ranks notes against a query by cosine similarity of their
// embeddings. The scan is brute force over every vectored note; with
// collections in the tens of thousands that is well under query-latency
// budgets and needs no index.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/kalambet/noted/internal/storage"
	"github.com/kalambet/noted/internal/vector"
)

// DefaultTopK is the result count used when the caller does not specify one.
const DefaultTopK = 5

// Embedder generates the query vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorSource supplies the scan set: every note with a stored vector,
// in insertion order.
type VectorSource interface {
	ListEmbedded(ctx context.Context) ([]storage.NoteVector, error)
}

// Result is one ranked note.
type Result struct {
	NoteID string  `json:"note_id"`
	Title  string  `json:"title"`
	Score  float64 `json:"score"`
}

// Engine performs semantic search over the note collection.
type Engine struct {
	embedder Embedder
	source   VectorSource
	minScore float64
	logger   *slog.Logger
}

// NewEngine creates an Engine. Results scoring below minScore are dropped;
// even at 0 a negative-similarity note never surfaces. A nil logger falls
// back to slog.Default().
func NewEngine(embedder Embedder, source VectorSource, minScore float64, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{embedder: embedder, source: source, minScore: minScore, logger: logger}
}

// Search embeds query and returns up to topK notes ranked by cosine
// similarity, ties broken by insertion order. Notes without a vector are
// not scored at all; a stored vector that fails to decode is skipped and
// logged (it counts as vector-absent until maintenance repairs it).
// An empty collection yields an empty result, not an error.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if topK < 1 {
		return nil, fmt.Errorf("topK must be >= 1, got %d", topK)
	}

	qv, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	candidates, err := e.source.ListEmbedded(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading note vectors: %w", err)
	}

	results := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		nv, err := vector.Decode(c.Embedding)
		if err != nil {
			if errors.Is(err, vector.ErrCorrupt) {
				e.logger.Warn("skipping note with undecodable vector", "note_id", c.ID, "error", err)
				continue
			}
			return nil, fmt.Errorf("decoding vector for note %s: %w", c.ID, err)
		}

		score := vector.Cosine(qv, nv)
		if score < e.minScore {
			continue
		}
		results = append(results, Result{NoteID: c.ID, Title: c.Title, Score: score})
	}

	// Stable sort keeps insertion order among equal scores, so identical
	// inputs always rank identically.
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}
