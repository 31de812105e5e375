// Package vector holds the textual embedding codec and similarity math
// shared by the write path, the search engine, and the maintainer.
package vector

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrCorrupt is returned when a stored embedding cannot be decoded.
var ErrCorrupt = errors.New("corrupt embedding")

// Encode serializes an embedding as a JSON array of floats. The result is
// stored in a TEXT column; Decode is its exact inverse for finite values.
func Encode(v []float32) string {
	// json.Marshal cannot fail for a []float32 with finite values; Ollama
	// embeddings are always finite.
	b, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(b)
}

// Decode parses a JSON-encoded embedding. Malformed input (bad JSON,
// non-numeric element, empty array) returns ErrCorrupt rather than a
// truncated or zero-filled vector.
func Decode(s string) ([]float32, error) {
	var v []float32
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	if len(v) == 0 {
		return nil, fmt.Errorf("%w: empty vector", ErrCorrupt)
	}
	return v, nil
}

// Cosine returns the cosine similarity of a and b. A zero-norm vector or a
// dimension mismatch yields 0, never NaN.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, aNormSq, bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		aNormSq += float64(a[i]) * float64(a[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	if aNormSq == 0 || bNormSq == 0 {
		return 0
	}
	return dot / (math.Sqrt(aNormSq) * math.Sqrt(bNormSq))
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return math.Sqrt(sum)
}
