package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kalambet/noted/internal/health"
	"github.com/kalambet/noted/internal/notes"
	"github.com/kalambet/noted/internal/search"
	"github.com/kalambet/noted/internal/storage"
)

const testToken = "test-token-123"

type stubEmbedder struct {
	err error
}

func (s *stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	// Deterministic per-text vector so distinct texts are distinguishable.
	v := []float32{0, 0, 0}
	for i, r := range text {
		v[i%3] += float32(r) / 1000
	}
	return v, nil
}

func newTestHandler(t *testing.T) (http.Handler, *storage.Store) {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:): %v", err)
	}
	t.Cleanup(func() { store.Close() })

	emb := &stubEmbedder{}
	svc := notes.NewService(store, emb, nil)
	engine := search.NewEngine(emb, store, 0, nil)
	reporter := health.NewReporter(store, emb)

	h := NewHandler(Deps{
		Notes:      svc,
		Search:     engine,
		Health:     reporter,
		Store:      store,
		Token:      testToken,
		HTTPClient: &http.Client{},
	})
	return h, store
}

func doRequest(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer "+testToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestAuth_RejectsMissingToken(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest("GET", "/notes", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuth_RejectsWrongToken(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest("GET", "/notes", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

func TestAuth_HealthIsPublic(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code == http.StatusUnauthorized {
		t.Error("health endpoint requires auth")
	}
}

func TestCreateNote(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doRequest(t, h, "POST", "/notes", map[string]string{
		"title":   "Errands",
		"content": "pick up the dry cleaning",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var note map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &note); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if note["title"] != "Errands" {
		t.Errorf("title = %v", note["title"])
	}
	if note["has_embedding"] != true {
		t.Errorf("has_embedding = %v, want true", note["has_embedding"])
	}
	if _, ok := note["embedding"]; ok {
		t.Error("raw embedding leaked into the response")
	}
}

func TestCreateNote_RequiresContent(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doRequest(t, h, "POST", "/notes", map[string]string{"title": "empty"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestGetNote_NotFound(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doRequest(t, h, "GET", "/notes/does-not-exist", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestNoteLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doRequest(t, h, "POST", "/notes", map[string]string{"content": "lifecycle note"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}
	var created map[string]any
	json.Unmarshal(w.Body.Bytes(), &created)
	id := created["id"].(string)

	w = doRequest(t, h, "GET", "/notes/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}

	w = doRequest(t, h, "PATCH", "/notes/"+id, map[string]string{"title": "renamed"})
	if w.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body = %s", w.Code, w.Body.String())
	}
	var patched map[string]any
	json.Unmarshal(w.Body.Bytes(), &patched)
	if patched["title"] != "renamed" {
		t.Errorf("patched title = %v", patched["title"])
	}

	w = doRequest(t, h, "DELETE", "/notes/"+id, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = doRequest(t, h, "GET", "/notes/"+id, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

func TestListNotes(t *testing.T) {
	h, _ := newTestHandler(t)

	for i := 0; i < 3; i++ {
		w := doRequest(t, h, "POST", "/notes", map[string]string{
			"content": fmt.Sprintf("note number %d", i),
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("create %d status = %d", i, w.Code)
		}
	}

	w := doRequest(t, h, "GET", "/notes", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d", w.Code)
	}
	var list []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 3 {
		t.Errorf("listed %d notes, want 3", len(list))
	}
}

func TestSearch_RequiresQuery(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doRequest(t, h, "GET", "/search", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestSearch_InvalidTopK(t *testing.T) {
	h, _ := newTestHandler(t)

	for _, raw := range []string{"0", "-2", "abc"} {
		w := doRequest(t, h, "GET", "/search?q=test&top_k="+raw, nil)
		if w.Code != http.StatusBadRequest {
			t.Errorf("top_k=%s: status = %d, want 400", raw, w.Code)
		}
	}
}

func TestSearch_EmptyCollectionReturnsEmptyArray(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doRequest(t, h, "GET", "/search?q=anything", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestSearch_FindsStoredNote(t *testing.T) {
	h, _ := newTestHandler(t)

	w := doRequest(t, h, "POST", "/notes", map[string]string{"content": "the cat sat on the mat"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d", w.Code)
	}

	w = doRequest(t, h, "GET", "/search?q=the+cat+sat+on+the+mat", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("search status = %d, body = %s", w.Code, w.Body.String())
	}
	var results []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &results); err != nil {
		t.Fatalf("decoding results: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("got %d results, want 1", len(results))
	}
	if _, ok := results[0]["note_id"]; !ok {
		t.Error("result missing note_id")
	}
}

func TestMetrics(t *testing.T) {
	h, _ := newTestHandler(t)

	doRequest(t, h, "POST", "/notes", map[string]string{"content": "counted"})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var payload struct {
		Notes struct {
			Total          int `json:"total"`
			WithEmbeddings int `json:"with_embeddings"`
		} `json:"notes"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decoding metrics: %v", err)
	}
	if payload.Notes.Total != 1 || payload.Notes.WithEmbeddings != 1 {
		t.Errorf("notes = %+v, want 1/1", payload.Notes)
	}
}

func TestHealth_UnhealthyReturns503(t *testing.T) {
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	broken := &stubEmbedder{err: fmt.Errorf("model gone")}
	h := NewHandler(Deps{
		Notes:  notes.NewService(store, broken, nil),
		Search: search.NewEngine(broken, store, 0, nil),
		Health: health.NewReporter(store, broken),
		Store:  store,
		Token:  testToken,
	})

	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", w.Code)
	}
	var report health.Report
	if err := json.Unmarshal(w.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if report.Status != health.StatusUnhealthy {
		t.Errorf("report status = %q", report.Status)
	}
}

func TestCreateNote_FromURL(t *testing.T) {
	page := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, "<html><head><title>x</title></head><body><p>Article body text.</p></body></html>")
	}))
	defer page.Close()

	h, _ := newTestHandler(t)

	w := doRequest(t, h, "POST", "/notes", map[string]string{"url": page.URL})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var note map[string]any
	json.Unmarshal(w.Body.Bytes(), &note)
	if content := note["content"].(string); !strings.Contains(content, "Article body text.") {
		t.Errorf("content = %q", content)
	}
	if note["title"] != page.URL {
		t.Errorf("title = %v, want source URL", note["title"])
	}
}

func TestCreateNote_URLFetchFailure(t *testing.T) {
	dead := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	dead.Close()

	h, _ := newTestHandler(t)

	w := doRequest(t, h, "POST", "/notes", map[string]string{"url": dead.URL})
	if w.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", w.Code)
	}
}
