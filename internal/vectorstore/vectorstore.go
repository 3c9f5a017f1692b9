// Package vectorstore ranks stored chunk, link, and finding embeddings by
// cosine similarity against a query vector. Everything stays in float32
// end to end, including the square root, so scores are reproducible across
// the serialization boundary.
package vectorstore

import (
	"context"

	"github.com/hyperifyio/seeker/internal/embeddings"
	"github.com/hyperifyio/seeker/internal/store"
)

// Scored pairs a stored embedding row with its similarity score against the
// query vector, plus the originating cache/finding id callers need to look
// the content back up.
type Scored struct {
	ID           int64
	Ordinal      int
	OriginalText string
	Href         string // only set for link rows
	Score        float32
}

// Store is the subset of *store.Store the vector store reads from.
type Store interface {
	LoadChunkEmbeddings(ctx context.Context, cacheID int64) ([]store.EmbeddingRow, error)
	LoadLinkEmbeddings(ctx context.Context, cacheID int64) ([]store.EmbeddingRow, error)
	LoadAllFindingEmbeddings(ctx context.Context) (map[int64][]store.EmbeddingRow, error)
}

// SearchChunks ranks the chunks cached for a single page (cacheID) by
// similarity to query, most relevant first.
func SearchChunks(ctx context.Context, s Store, cacheID int64, query []float32, topK int) ([]Scored, error) {
	rows, err := s.LoadChunkEmbeddings(ctx, cacheID)
	if err != nil {
		return nil, err
	}
	scored := scoreRows(rows, query, cacheID)
	sortByScoreDesc(scored)
	return truncate(scored, topK), nil
}

// RankLinksByRelevance ranks the links discovered on a single page (cacheID)
// by similarity to query, most relevant first.
func RankLinksByRelevance(ctx context.Context, s Store, cacheID int64, query []float32, topK int) ([]Scored, error) {
	rows, err := s.LoadLinkEmbeddings(ctx, cacheID)
	if err != nil {
		return nil, err
	}
	scored := scoreRows(rows, query, cacheID)
	sortByScoreDesc(scored)
	return truncate(scored, topK), nil
}

// SearchFindings ranks every saved finding across the whole research memory
// by similarity to query, most relevant first.
func SearchFindings(ctx context.Context, s Store, query []float32, topK int) ([]Scored, error) {
	byFinding, err := s.LoadAllFindingEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	var scored []Scored
	for findingID, rows := range byFinding {
		scored = append(scored, scoreRows(rows, query, findingID)...)
	}
	sortByScoreDesc(scored)
	return truncate(scored, topK), nil
}

func scoreRows(rows []store.EmbeddingRow, query []float32, id int64) []Scored {
	out := make([]Scored, 0, len(rows))
	for _, r := range rows {
		vec := embeddings.Deserialize(r.Vector)
		out = append(out, Scored{
			ID:           id,
			Ordinal:      r.Ordinal,
			OriginalText: r.OriginalText,
			Href:         r.Href,
			Score:        cosineSimilarity(query, vec),
		})
	}
	return out
}

func truncate(scored []Scored, topK int) []Scored {
	if topK <= 0 || topK >= len(scored) {
		return scored
	}
	return scored[:topK]
}

// cosineSimilarity computes the cosine of the angle between a and b,
// returning 0 for a zero-length or zero-norm vector instead of dividing by
// zero.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA <= 0 || normB <= 0 {
		return 0
	}
	return dot / (sqrt32(normA) * sqrt32(normB))
}

// sqrt32 is a Newton-Raphson square root kept in float32, avoiding a
// round-trip through float64.
func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	guess := x
	for i := 0; i < 10; i++ {
		guess = guess - (guess*guess-x)/(2*guess)
	}
	return guess
}

// sortByScoreDesc reorders scored in place, highest score first. Result
// sets are small enough that the quadratic pass never matters.
func sortByScoreDesc(scored []Scored) {
	for i := 0; i < len(scored); i++ {
		for j := i + 1; j < len(scored); j++ {
			if scored[j].Score > scored[i].Score {
				scored[i], scored[j] = scored[j], scored[i]
			}
		}
	}
}
