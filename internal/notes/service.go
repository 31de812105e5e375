// Package notes owns the note write path: every create and edit embeds the
// content before the row is committed, so no reader ever sees a note whose
// vector lags its content.
package notes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/noted/internal/storage"
	"github.com/kalambet/noted/internal/vector"
)

// Embedder generates embeddings for note content.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service applies note semantics on top of the raw store.
//
// Embedding-failure policy: a note whose content cannot be embedded is
// persisted anyway with an empty vector and a logged warning. User content
// survives; the note is simply invisible to search until `noted reembed`
// repairs it. This is applied uniformly to create and update.
type Service struct {
	store    *storage.Store
	embedder Embedder
	logger   *slog.Logger
}

// NewService creates a Service. A nil logger falls back to slog.Default().
func NewService(store *storage.Store, embedder Embedder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, embedder: embedder, logger: logger}
}

// Create embeds content and persists a new note in a single write. An empty
// title is derived from the first line of content.
func (s *Service) Create(ctx context.Context, title, content string) (storage.Note, error) {
	if strings.TrimSpace(content) == "" {
		return storage.Note{}, fmt.Errorf("content must not be empty")
	}

	title = strings.TrimSpace(title)
	if title == "" {
		title = GuessTitle(content)
	}

	now := time.Now().UTC()
	n := storage.Note{
		ID:        uuid.New().String(),
		Title:     title,
		Content:   content,
		Embedding: s.embedOrEmpty(ctx, content),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.store.CreateNote(ctx, n); err != nil {
		return storage.Note{}, err
	}
	return n, nil
}

// Update rewrites a note. A changed content always gets a fresh vector in
// the same UPDATE; title-only edits keep the stored vector untouched.
// Empty title and content arguments leave the respective field unchanged.
func (s *Service) Update(ctx context.Context, id, title, content string) (storage.Note, error) {
	n, err := s.store.GetNote(ctx, id)
	if err != nil {
		return storage.Note{}, err
	}

	if title = strings.TrimSpace(title); title != "" {
		n.Title = title
	}
	if content != "" && content != n.Content {
		n.Content = content
		n.Embedding = s.embedOrEmpty(ctx, content)
	}
	n.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateNote(ctx, n); err != nil {
		return storage.Note{}, err
	}
	return n, nil
}

// Delete removes the note and its vector (same row, same statement).
func (s *Service) Delete(ctx context.Context, id string) error {
	return s.store.DeleteNote(ctx, id)
}

// Get returns a note by ID.
func (s *Service) Get(ctx context.Context, id string) (storage.Note, error) {
	return s.store.GetNote(ctx, id)
}

// List returns notes in insertion order.
func (s *Service) List(ctx context.Context, limit, offset int) ([]storage.Note, error) {
	return s.store.ListNotes(ctx, limit, offset)
}

// embedOrEmpty applies the persist-without-vector policy: on embedding
// failure it logs and returns "", leaving the note searchable-later.
func (s *Service) embedOrEmpty(ctx context.Context, content string) string {
	vec, err := s.embedder.Embed(ctx, content)
	if err != nil {
		s.logger.Warn("embedding failed, persisting note without vector", "error", err)
		return ""
	}
	return vector.Encode(vec)
}

const maxGuessedTitle = 80

// GuessTitle derives a title from the first non-empty line of content,
// truncated to 80 characters (runes, so multi-byte text stays valid UTF-8).
func GuessTitle(content string) string {
	head := ""
	for _, line := range strings.Split(strings.TrimSpace(content), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			head = line
			break
		}
	}
	// Truncate by runes, not bytes, so multi-byte content keeps a valid title.
	if runes := []rune(head); len(runes) > maxGuessedTitle {
		head = strings.TrimRight(string(runes[:maxGuessedTitle-3]), " ") + "..."
	}
	if head == "" {
		return "Untitled note"
	}
	return head
}
