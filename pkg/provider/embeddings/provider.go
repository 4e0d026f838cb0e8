// Package embeddings defines the Provider interface for the vector-embedding
// backends used in name screening.
//
// A provider maps normalized names to dense float32 vectors. The knowledge
// base stores one vector per entity name and the screener embeds each query
// name, so every vector that ends up in a similarity comparison must come
// from the same model. ModelID is persisted next to each stored vector to
// enforce that.
//
// Implementations must be safe for concurrent use.
package embeddings

import (
	"context"
	"math"
)

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider instance share the same
// dimensionality (Dimensions). Callers must not mix vectors from providers
// with different ModelIDs in one similarity computation.
type Provider interface {
	// Embed computes the embedding vector for a single text. Returns a
	// float32 slice of length Dimensions() or an error if the request fails
	// or ctx is cancelled. The text is passed through verbatim; callers do
	// any model-specific formatting.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes vectors for a slice of texts in one provider call.
	// The returned slice has the same length as texts, element i matching
	// texts[i]. On error the entire result is nil, partial results are not
	// returned.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this
	// provider, constant for the provider's lifetime.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, e.g.
	// "text-embedding-3-small". Stored alongside every persisted vector.
	ModelID() string
}

// Normalize scales v to unit L2 norm in place and returns it. Zero and empty
// vectors are returned unchanged. Unit-norm vectors make inner product equal
// cosine similarity, which both the database and the file-backed index rely
// on.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	n := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / n)
	}
	return v
}
