// Package health aggregates liveness of the database and the embedding
// model plus vector-completeness statistics into one status report.
package health

import (
	"context"
	"fmt"
)

// Status values for the overall report.
const (
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

const probeText = "health check probe"

// NoteStats is the informational notes check. It never flips the overall
// status: a collection with many unembedded notes is degraded, not down.
type NoteStats struct {
	Total             int `json:"total"`
	WithEmbeddings    int `json:"with_embeddings"`
	WithoutEmbeddings int `json:"without_embeddings"`
}

// Checks holds the individual check results. Database and EmbeddingModel
// are "ok" or "error: ...".
type Checks struct {
	Database       string    `json:"database"`
	EmbeddingModel string    `json:"embedding_model"`
	Notes          NoteStats `json:"notes"`
}

// Report is the aggregate health status.
type Report struct {
	Status string `json:"status"`
	Checks Checks `json:"checks"`
}

// Healthy reports whether every hard check passed.
func (r Report) Healthy() bool {
	return r.Status == StatusHealthy
}

// Store is the storage surface the reporter probes.
type Store interface {
	Ping(ctx context.Context) error
	CountNotes(ctx context.Context) (int, error)
	CountEmbedded(ctx context.Context) (int, error)
}

// Prober embeds a fixed probe string to verify the model answers.
type Prober interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reporter runs the checks on demand.
type Reporter struct {
	store  Store
	prober Prober
}

// NewReporter creates a Reporter.
func NewReporter(store Store, prober Prober) *Reporter {
	return &Reporter{store: store, prober: prober}
}

// Check runs all checks. Overall status is unhealthy iff the database
// round-trip or the embedding probe fails.
func (r *Reporter) Check(ctx context.Context) Report {
	report := Report{Status: StatusHealthy}

	if err := r.store.Ping(ctx); err != nil {
		report.Checks.Database = fmt.Sprintf("error: %v", err)
		report.Status = StatusUnhealthy
	} else {
		report.Checks.Database = "ok"
	}

	if _, err := r.prober.Embed(ctx, probeText); err != nil {
		report.Checks.EmbeddingModel = fmt.Sprintf("error: %v", err)
		report.Status = StatusUnhealthy
	} else {
		report.Checks.EmbeddingModel = "ok"
	}

	// Stats are best-effort; a failure here leaves zeros and the database
	// check has already reported the real problem.
	if total, err := r.store.CountNotes(ctx); err == nil {
		report.Checks.Notes.Total = total
	}
	if embedded, err := r.store.CountEmbedded(ctx); err == nil {
		report.Checks.Notes.WithEmbeddings = embedded
		report.Checks.Notes.WithoutEmbeddings = report.Checks.Notes.Total - embedded
	}

	return report
}
