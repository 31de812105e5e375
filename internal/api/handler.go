// Package api exposes the note collection over HTTP (chi router) and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/noted/internal/health"
	"github.com/kalambet/noted/internal/notes"
	"github.com/kalambet/noted/internal/search"
	"github.com/kalambet/noted/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1MB
const maxURLFetchSize = 5 << 20    // 5MB

// Deps holds everything the HTTP surface needs.
type Deps struct {
	Notes       *notes.Service
	Search      *search.Engine
	Health      *health.Reporter
	Store       *storage.Store
	Token       string
	HTTPClient  *http.Client // for URL imports
	DefaultTopK int          // 0 means search.DefaultTopK
}

// NewHandler builds the router. Health and metrics stay unauthenticated so
// monitors can reach them; everything touching note content requires the
// bearer token.
func NewHandler(deps Deps) http.Handler {
	if deps.DefaultTopK <= 0 {
		deps.DefaultTopK = search.DefaultTopK
	}

	r := chi.NewRouter()

	r.Get("/health", handleHealth(deps))
	r.Get("/metrics", handleMetrics(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/notes", handleCreateNote(deps))
		r.Get("/notes", handleListNotes(deps))
		r.Get("/notes/{id}", handleGetNote(deps))
		r.Patch("/notes/{id}", handleUpdateNote(deps))
		r.Delete("/notes/{id}", handleDeleteNote(deps))
		r.Get("/search", handleSearch(deps))
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report := deps.Health.Check(r.Context())

		status := http.StatusOK
		if !report.Healthy() {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(report)
	}
}

func handleMetrics(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		total, err := deps.Store.CountNotes(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count notes: %v", err)
			return
		}
		embedded, err := deps.Store.CountEmbedded(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to count embedded notes: %v", err)
			return
		}
		size, err := deps.Store.SizeBytes()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to stat database: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"notes": map[string]int{
				"total":           total,
				"with_embeddings": embedded,
			},
			"database": map[string]any{
				"size_bytes": size,
				"size_mb":    float64(size) / (1024 * 1024),
			},
		})
	}
}

type noteRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
	URL     string `json:"url"`
}

func handleCreateNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req noteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		if req.Content == "" && req.URL == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "one of content or url is required")
			return
		}

		content := req.Content
		if req.URL != "" {
			fetched, err := fetchURLText(r.Context(), deps.HTTPClient, req.URL)
			if err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "failed to fetch url: %v", err)
				return
			}
			content = fetched
			if req.Title == "" {
				req.Title = req.URL
			}
		}

		note, err := deps.Notes.Create(r.Context(), req.Title, content)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to create note: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(noteResponse(note))
	}
}

func handleListNotes(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 50, 500)
		offset := parseIntParam(r, "offset", 0, 0)

		list, err := deps.Notes.List(r.Context(), limit, offset)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list notes: %v", err)
			return
		}

		out := make([]map[string]any, len(list))
		for i, n := range list {
			out[i] = noteResponse(n)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleGetNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		note, err := deps.Notes.Get(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get note: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(noteResponse(note))
	}
}

func handleUpdateNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req noteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Title == "" && req.Content == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "nothing to update")
			return
		}

		note, err := deps.Notes.Update(r.Context(), chi.URLParam(r, "id"), req.Title, req.Content)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to update note: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(noteResponse(note))
	}
}

func handleDeleteNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		err := deps.Notes.Delete(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "note not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete note: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("q")
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}

		topK := deps.DefaultTopK
		if raw := r.URL.Query().Get("top_k"); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 1 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "top_k must be a positive integer")
				return
			}
			topK = v
		}

		results, err := deps.Search.Search(r.Context(), query, topK)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "search failed: %v", err)
			return
		}
		if results == nil {
			results = []search.Result{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(results)
	}
}

// noteResponse shapes a note for the wire: the raw encoded vector stays
// server-side, clients only learn whether one exists.
func noteResponse(n storage.Note) map[string]any {
	return map[string]any{
		"id":            n.ID,
		"title":         n.Title,
		"content":       n.Content,
		"has_embedding": n.HasEmbedding(),
		"created_at":    n.CreatedAt.Format(time.RFC3339),
		"updated_at":    n.UpdatedAt.Format(time.RFC3339),
	}
}

// fetchURLText fetches a URL and reduces the response to plain text.
func fetchURLText(ctx context.Context, client *http.Client, url string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("invalid url: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("url returned status %d", resp.StatusCode)
	}

	body := io.LimitReader(resp.Body, maxURLFetchSize)
	return HTMLToText(body)
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
