package embedding

import (
	"context"
	"fmt"
	"io"
)

// EnsureReady checks that the backend is reachable and the embedding model
// is available. A missing model is pulled automatically with progress
// output written to w.
func EnsureReady(ctx context.Context, b Backend, model string, w io.Writer) error {
	if !b.IsRunning(ctx) {
		return fmt.Errorf("%w: backend not running; please start Ollama first", ErrModelUnavailable)
	}

	if b.HasModel(ctx, model) {
		fmt.Fprintf(w, "model %s: ready\n", model)
		return nil
	}

	fmt.Fprintf(w, "model %s: pulling...\n", model)
	err := b.PullModel(ctx, model, func(p PullProgress) {
		if p.Total > 0 {
			pct := float64(p.Completed) / float64(p.Total) * 100
			fmt.Fprintf(w, "  %s %.0f%%\n", p.Status, pct)
		} else {
			fmt.Fprintf(w, "  %s\n", p.Status)
		}
	})
	if err != nil {
		return fmt.Errorf("%w: pulling model %s: %v", ErrModelUnavailable, model, err)
	}
	fmt.Fprintf(w, "model %s: ready\n", model)

	return nil
}
