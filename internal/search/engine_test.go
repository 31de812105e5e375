package search

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/kalambet/noted/internal/storage"
	"github.com/kalambet/noted/internal/vector"
)

// axisEmbedder maps text onto fixed topic axes so similarity between
// related texts is predictable: words from the same topic land on the
// same axis regardless of surface form.
type axisEmbedder struct {
	topics map[string]int // word -> axis
	dims   int
	err    error
}

func (e *axisEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	v := make([]float32, e.dims)
	for _, word := range strings.Fields(strings.ToLower(text)) {
		if axis, ok := e.topics[strings.Trim(word, ".,!?")]; ok {
			v[axis] += 1
		}
	}
	return v, nil
}

func newAnimalEmbedder() *axisEmbedder {
	return &axisEmbedder{
		dims: 3,
		topics: map[string]int{
			"cat": 0, "feline": 0, "kitten": 0,
			"pasta": 1, "recipe": 1, "dinner": 1,
			"bike": 2, "chain": 2, "cassette": 2,
		},
	}
}

type staticSource struct {
	vectors []storage.NoteVector
	err     error
}

func (s *staticSource) ListEmbedded(_ context.Context) ([]storage.NoteVector, error) {
	return s.vectors, s.err
}

func encoded(e *axisEmbedder, text string) string {
	v, _ := e.Embed(context.Background(), text)
	return vector.Encode(v)
}

func TestSearch_RanksByMeaning(t *testing.T) {
	emb := newAnimalEmbedder()
	source := &staticSource{vectors: []storage.NoteVector{
		{ID: "pasta", Title: "Dinner plan", Embedding: encoded(emb, "pasta recipe for dinner")},
		{ID: "cat", Title: "Cat note", Embedding: encoded(emb, "the cat needs a vet appointment")},
		{ID: "bike", Title: "Bike repair", Embedding: encoded(emb, "bike chain skipping, new cassette")},
	}}
	engine := NewEngine(emb, source, 0.1, nil)

	// The query never says "cat", but the shared topic axis must surface
	// the cat note first.
	results, err := engine.Search(context.Background(), "feline", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("no results")
	}
	if results[0].NoteID != "cat" {
		t.Errorf("top result = %q, want cat", results[0].NoteID)
	}
	for _, r := range results[1:] {
		if r.Score >= results[0].Score {
			t.Errorf("result %q score %v >= top score %v", r.NoteID, r.Score, results[0].Score)
		}
	}
}

func TestSearch_EmptyCollection(t *testing.T) {
	engine := NewEngine(newAnimalEmbedder(), &staticSource{}, 0, nil)

	results, err := engine.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search on empty collection: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("got %d results from empty collection", len(results))
	}
}

func TestSearch_TopKLimit(t *testing.T) {
	emb := newAnimalEmbedder()
	var vecs []storage.NoteVector
	for i := 0; i < 10; i++ {
		vecs = append(vecs, storage.NoteVector{
			ID:        fmt.Sprintf("n%d", i),
			Embedding: encoded(emb, "cat"),
		})
	}
	engine := NewEngine(emb, &staticSource{vectors: vecs}, 0, nil)

	results, err := engine.Search(context.Background(), "feline", 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 3 {
		t.Errorf("got %d results, want 3", len(results))
	}
}

func TestSearch_TopKValidation(t *testing.T) {
	engine := NewEngine(newAnimalEmbedder(), &staticSource{}, 0, nil)
	for _, k := range []int{0, -1} {
		if _, err := engine.Search(context.Background(), "q", k); err == nil {
			t.Errorf("Search accepted topK=%d", k)
		}
	}
}

func TestSearch_StableTieOrder(t *testing.T) {
	emb := newAnimalEmbedder()
	// Identical vectors, so every score ties; insertion order must hold.
	same := encoded(emb, "cat kitten")
	source := &staticSource{vectors: []storage.NoteVector{
		{ID: "first", Embedding: same},
		{ID: "second", Embedding: same},
		{ID: "third", Embedding: same},
	}}
	engine := NewEngine(emb, source, 0, nil)

	for run := 0; run < 5; run++ {
		results, err := engine.Search(context.Background(), "feline", 5)
		if err != nil {
			t.Fatalf("Search run %d: %v", run, err)
		}
		if len(results) != 3 {
			t.Fatalf("run %d: %d results, want 3", run, len(results))
		}
		order := []string{results[0].NoteID, results[1].NoteID, results[2].NoteID}
		if order[0] != "first" || order[1] != "second" || order[2] != "third" {
			t.Errorf("run %d: order = %v", run, order)
		}
	}
}

func TestSearch_SkipsCorruptVectors(t *testing.T) {
	emb := newAnimalEmbedder()
	source := &staticSource{vectors: []storage.NoteVector{
		{ID: "broken", Embedding: "not json at all"},
		{ID: "good", Embedding: encoded(emb, "cat")},
	}}
	engine := NewEngine(emb, source, 0, nil)

	results, err := engine.Search(context.Background(), "feline", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].NoteID != "good" {
		t.Errorf("results = %v, want only the good note", results)
	}
}

func TestSearch_MinScoreFilter(t *testing.T) {
	emb := newAnimalEmbedder()
	source := &staticSource{vectors: []storage.NoteVector{
		{ID: "cat", Embedding: encoded(emb, "cat")},
		{ID: "pasta", Embedding: encoded(emb, "pasta")},
	}}
	engine := NewEngine(emb, source, 0.5, nil)

	results, err := engine.Search(context.Background(), "feline", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, r := range results {
		if r.Score < 0.5 {
			t.Errorf("result %q score %v below threshold", r.NoteID, r.Score)
		}
		if r.NoteID == "pasta" {
			t.Error("orthogonal note passed the threshold")
		}
	}
}

func TestSearch_ZeroNormQueryScoresNothing(t *testing.T) {
	emb := newAnimalEmbedder()
	source := &staticSource{vectors: []storage.NoteVector{
		{ID: "cat", Embedding: encoded(emb, "cat")},
	}}
	engine := NewEngine(emb, source, 0.1, nil)

	// A query with no known topic words embeds to the zero vector, which
	// matches nothing above threshold and must not produce NaN scores.
	results, err := engine.Search(context.Background(), "zzz unknown words", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("zero-norm query returned %d results", len(results))
	}
}

func TestSearch_NegativeSimilarityExcluded(t *testing.T) {
	emb := newAnimalEmbedder()
	// A stored vector pointing away from the query axis scores below zero
	// and must stay out even with no threshold configured.
	source := &staticSource{vectors: []storage.NoteVector{
		{ID: "opposed", Embedding: "[-1,0,0]"},
		{ID: "aligned", Embedding: encoded(emb, "cat")},
	}}
	engine := NewEngine(emb, source, 0, nil)

	results, err := engine.Search(context.Background(), "feline", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 || results[0].NoteID != "aligned" {
		t.Errorf("results = %v, want only the aligned note", results)
	}
}

func TestSearch_EmbedderError(t *testing.T) {
	emb := newAnimalEmbedder()
	emb.err = fmt.Errorf("backend down")
	engine := NewEngine(emb, &staticSource{}, 0, nil)

	if _, err := engine.Search(context.Background(), "q", 5); err == nil {
		t.Fatal("Search swallowed embedder error")
	}
}
