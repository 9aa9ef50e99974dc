package store

import (
	"math"
	"sort"

	"github.com/siherrmann/vaultrag/model"
)

// CosineSimilarity returns the cosine similarity of a and b, or 0 when the
// lengths differ or one of them is the zero vector.
func CosineSimilarity(a, b []float32) float64 {
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

	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// RankResults sorts results by descending score and assigns 1-based ranks.
// Ties are broken by document and chunk index so the order is deterministic.
func RankResults(results []*model.RetrievalResult) {
	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Chunk.DocumentID != b.Chunk.DocumentID {
			return a.Chunk.DocumentID < b.Chunk.DocumentID
		}
		return a.Chunk.ChunkIndex < b.Chunk.ChunkIndex
	})
	for i, result := range results {
		result.Rank = i + 1
	}
}
