package rag

import (
	"math"
	"sort"
)

// CosineSimilarity returns a value in [-1, 1]. Vectors of different length or
// with zero magnitude score 0.
func CosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}

// TopK ranks passages by similarity to query, highest first. Equal scores keep
// corpus order. k <= 0 returns every passage.
func TopK(passages []Passage, query []float32, k int) []Result {
	results := make([]Result, 0, len(passages))
	for _, p := range passages {
		results = append(results, Result{
			Text:  p.Text,
			Score: CosineSimilarity(query, p.Embedding),
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > 0 && k < len(results) {
		results = results[:k]
	}
	return results
}
