package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Note is a persisted note. Embedding holds the encoded vector text
// (see internal/vector); the empty string means "not yet embedded".
type Note struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Embedding string    `json:"-"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasEmbedding reports whether the note carries a stored vector.
func (n Note) HasEmbedding() bool {
	return n.Embedding != ""
}

// NoteVector is the slim projection the search engine scans: identity plus
// the encoded vector, nothing else.
type NoteVector struct {
	ID        string
	Title     string
	Embedding string
}
