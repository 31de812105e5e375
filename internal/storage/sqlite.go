package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const dbFileName = "noted.db"

// Store wraps a SQLite database holding the note collection.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) a SQLite database in dataDir and runs pending
// migrations. Pass ":memory:" as dataDir for an in-memory database (used by
// tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, dbFileName)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Limit to single connection to avoid "database is locked" errors.
	db.SetMaxOpenConns(1)

	// Set busy timeout so concurrent access waits briefly instead of failing immediately.
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting journal mode: %w", err)
	}

	s := &Store{db: db, path: dsn}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path, or ":memory:" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Ping verifies the database connection with a round trip.
func (s *Store) Ping(ctx context.Context) error {
	var one int
	return s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one)
}

// SizeBytes returns the size of the database file on disk.
// In-memory databases report 0.
func (s *Store) SizeBytes() (int64, error) {
	if s.path == ":memory:" {
		return 0, nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return 0, fmt.Errorf("stat database file: %w", err)
	}
	return info.Size(), nil
}

// migrate reads embedded SQL migration files and applies any that haven't been run yet.
func (s *Store) migrate() error {
	// Ensure schema_version table exists (bootstrap).
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}

	// Sort by filename to guarantee ascending order.
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		version, err := parseMigrationVersion(entry.Name())
		if err != nil {
			return err
		}

		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
			return fmt.Errorf("checking migration %d: %w", version, err)
		}
		if exists > 0 {
			continue
		}

		content, err := migrationsFS.ReadFile("migrations/" + entry.Name())
		if err != nil {
			return fmt.Errorf("reading migration %s: %w", entry.Name(), err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
		}

		if _, err := tx.Exec(string(content)); err != nil {
			tx.Rollback()
			return fmt.Errorf("applying migration %d: %w", version, err)
		}

		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("recording migration %d: %w", version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("committing migration %d: %w", version, err)
		}
	}

	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Notes ---

// CreateNote inserts a note. Content and embedding land in a single INSERT,
// so readers never observe a note whose vector lags its content.
func (s *Store) CreateNote(ctx context.Context, n Note) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO notes (id, title, content, embedding, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Content, n.Embedding,
		n.CreatedAt.UTC().Format(time.RFC3339), n.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("inserting note %s: %w", n.ID, err)
	}
	return nil
}

// UpdateNote rewrites title, content, and embedding together in one UPDATE.
func (s *Store) UpdateNote(ctx context.Context, n Note) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE notes SET title = ?, content = ?, embedding = ?, updated_at = ?
		WHERE id = ?`,
		n.Title, n.Content, n.Embedding, n.UpdatedAt.UTC().Format(time.RFC3339), n.ID,
	)
	if err != nil {
		return fmt.Errorf("updating note %s: %w", n.ID, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// ReplaceEmbedding stores a freshly computed embedding for a note, but only
// while its content still matches the text the vector was computed from.
// Returns (false, nil) when the note was edited or deleted in the meantime;
// the synchronous write path has already re-embedded it in that case.
func (s *Store) ReplaceEmbedding(ctx context.Context, id, content, embedding string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE notes SET embedding = ? WHERE id = ? AND content = ?`,
		embedding, id, content,
	)
	if err != nil {
		return false, fmt.Errorf("replacing embedding for note %s: %w", id, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return count == 1, nil
}

// GetNote returns a note by ID.
func (s *Store) GetNote(ctx context.Context, id string) (Note, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, embedding, created_at, updated_at
		FROM notes WHERE id = ?`, id)
	n, err := scanNote(row)
	if err == sql.ErrNoRows {
		return Note{}, ErrNotFound
	}
	return n, err
}

// DeleteNote removes a note. The vector lives in the same row, so the
// deletion drops both together.
func (s *Store) DeleteNote(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM notes WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting note %s: %w", id, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return ErrNotFound
	}
	return nil
}

// ListNotes returns notes in insertion order. limit <= 0 means no limit.
func (s *Store) ListNotes(ctx context.Context, limit, offset int) ([]Note, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, embedding, created_at, updated_at
		FROM notes ORDER BY rowid ASC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ListRecent returns the most recently inserted notes, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]Note, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, content, embedding, created_at, updated_at
		FROM notes ORDER BY rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing recent notes: %w", err)
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// ListEmbedded returns id, title, and encoded vector for every note that
// carries an embedding, in insertion order. This is the search scan set.
func (s *Store) ListEmbedded(ctx context.Context) ([]NoteVector, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, embedding FROM notes
		WHERE embedding != '' ORDER BY rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing embedded notes: %w", err)
	}
	defer rows.Close()

	var vectors []NoteVector
	for rows.Next() {
		var v NoteVector
		if err := rows.Scan(&v.ID, &v.Title, &v.Embedding); err != nil {
			return nil, err
		}
		vectors = append(vectors, v)
	}
	return vectors, rows.Err()
}

// CountNotes returns the total number of notes.
func (s *Store) CountNotes(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes").Scan(&count)
	return count, err
}

// CountEmbedded returns the number of notes with a stored embedding.
func (s *Store) CountEmbedded(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM notes WHERE embedding != ''").Scan(&count)
	return count, err
}

// SnapshotTo writes a consistent copy of the database to destPath using
// VACUUM INTO, which is safe against concurrent writers in WAL mode.
func (s *Store) SnapshotTo(ctx context.Context, destPath string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", destPath); err != nil {
		return fmt.Errorf("snapshotting database to %s: %w", destPath, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(row rowScanner) (Note, error) {
	var n Note
	var createdAt, updatedAt string
	if err := row.Scan(&n.ID, &n.Title, &n.Content, &n.Embedding, &createdAt, &updatedAt); err != nil {
		return Note{}, err
	}
	var err error
	if n.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Note{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if n.UpdatedAt, err = time.Parse(time.RFC3339, updatedAt); err != nil {
		return Note{}, fmt.Errorf("parsing updated_at: %w", err)
	}
	return n, nil
}
