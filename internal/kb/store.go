// Package kb stores watchlist entities and serves the two retrieval legs of
// screening: lexical full-text candidate search and vector similarity search.
package kb

import (
	"context"
	"errors"
)

// ErrNotFound is returned by FetchByID when no entity with that ID exists.
var ErrNotFound = errors.New("kb: entity not found")

// ErrStoreUnavailable is returned when the backing store cannot be reached.
// Callers treat it as fatal for the current request, never as "no matches".
var ErrStoreUnavailable = errors.New("kb: store unavailable")

// Store is the knowledge-base persistence contract.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// LexicalSearch returns up to limit entities whose indexed names share
	// tokens with the query. queryKey is the normalized matching key and
	// rawName the original input; both are searched so that tokens lost in
	// normalization can still hit. Order within the result carries no score
	// meaning. An unreachable backend is an error, not an empty result.
	LexicalSearch(ctx context.Context, queryKey, rawName string, limit int) ([]Entity, error)

	// FetchByID retrieves a single entity.
	// Returns [ErrNotFound] when the ID is unknown.
	FetchByID(ctx context.Context, id string) (Entity, error)

	// BulkUpsert inserts or replaces entities keyed by EntityID. Replacing a
	// record keeps its stored vector only while the normalized name is
	// unchanged; a renamed record drops the vector so the next backfill
	// re-embeds it.
	BulkUpsert(ctx context.Context, entities []Entity) error

	// MissingVectors returns up to limit entities that have no vector for
	// model, in stable order. Used by the backfill job.
	MissingVectors(ctx context.Context, model string, limit int) ([]Entity, error)

	// SetVectors stores unit-normalized vectors for the given entity IDs,
	// tagging each with model. Unknown IDs are ignored.
	SetVectors(ctx context.Context, model string, updates map[string][]float32) error

	// AllVectors returns every (id, vector) pair stored for model, for
	// building the file-backed index. The two slices are parallel.
	AllVectors(ctx context.Context, model string) ([]string, [][]float32, error)
}

// VectorSearcher finds the entities whose stored name vectors are most
// similar to a query vector. Only vectors tagged with the same model are
// considered. Implemented by [PostgresStore] natively and by the file-backed
// index in internal/ann.
type VectorSearcher interface {
	VectorSearch(ctx context.Context, vec []float32, model string, limit int) ([]Entity, error)
}
