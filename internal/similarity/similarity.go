// Package similarity provides pure numeric operations over embedding
// vectors: cosine similarity, validation and in-memory top-K ranking.
// It performs no I/O.
package similarity

import (
	"fmt"
	"math"
	"sort"
)

// Cosine returns the cosine similarity of a and b, in [-1, 1]. The vectors
// must have equal length. When either vector has zero magnitude the result
// is 0 rather than a division by zero.
func Cosine(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d != %d", len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}

	if magA == 0 || magB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}

// Validate reports whether vec is usable as an embedding: non-empty, with
// every component finite. Vectors failing validation must never be persisted.
func Validate(vec []float32) bool {
	if len(vec) == 0 {
		return false
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Ranked pairs a candidate index with its similarity to a query vector.
type Ranked struct {
	// Index is the candidate's position in the input slice.
	Index int

	// Similarity is the cosine similarity to the query.
	Similarity float64
}

// TopK ranks candidates by descending cosine similarity to query and
// returns the best k. Candidates with a length mismatch are skipped rather
// than failing the whole ranking. This is the in-memory rerank used when
// the storage engine cannot run a vector query natively.
func TopK(query []float32, candidates [][]float32, k int) []Ranked {
	if k <= 0 || len(candidates) == 0 {
		return nil
	}

	ranked := make([]Ranked, 0, len(candidates))
	for i, c := range candidates {
		sim, err := Cosine(query, c)
		if err != nil {
			continue
		}
		ranked = append(ranked, Ranked{Index: i, Similarity: sim})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Similarity > ranked[j].Similarity
	})

	if k > len(ranked) {
		k = len(ranked)
	}
	return ranked[:k]
}
