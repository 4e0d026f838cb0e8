// Package ann provides a file-backed flat inner-product index over entity
// name vectors, plus atomic hot-swapping of a loaded index.
//
// The index is exact, not approximate: every query scans all vectors. For
// watchlist-sized corpora (tens to hundreds of thousands of names) a scan of
// contiguous float32 data is fast enough and removes any recall concern from
// the vector leg of retrieval. The index is immutable once built; updates
// are handled by building a new artifact and swapping it in via [Holder].
package ann

import (
	"fmt"
	"sort"
)

// Match is one vector search result.
type Match struct {
	// ID is the entity ID the vector belongs to.
	ID string
	// Score is the inner product with the query. For unit-norm vectors this
	// equals cosine similarity.
	Score float64
}

// Flat is an exact inner-product index. Vectors are stored row-major in one
// contiguous slice. Immutable after Build; safe for concurrent searches.
type Flat struct {
	dim   int
	ids   []string
	data  []float32 // len(ids) rows of dim values
	model string
}

// Build constructs a Flat index from parallel id and vector slices. Vectors
// must all have the same dimension and should be unit-normalized. model
// records which embedding model produced the vectors; searches with a
// different model are refused.
func Build(model string, ids []string, vecs [][]float32) (*Flat, error) {
	if len(ids) != len(vecs) {
		return nil, fmt.Errorf("ann: %d ids for %d vectors", len(ids), len(vecs))
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("ann: no vectors to index")
	}

	dim := len(vecs[0])
	if dim == 0 {
		return nil, fmt.Errorf("ann: zero-dimension vectors")
	}

	f := &Flat{
		dim:   dim,
		ids:   make([]string, len(ids)),
		data:  make([]float32, 0, len(vecs)*dim),
		model: model,
	}
	copy(f.ids, ids)
	for i, v := range vecs {
		if len(v) != dim {
			return nil, fmt.Errorf("ann: vector %d has dimension %d, want %d", i, len(v), dim)
		}
		f.data = append(f.data, v...)
	}
	return f, nil
}

// Len returns the number of indexed vectors.
func (f *Flat) Len() int { return len(f.ids) }

// Dimensions returns the vector dimension.
func (f *Flat) Dimensions() int { return f.dim }

// Model returns the embedding model ID the index was built from.
func (f *Flat) Model() string { return f.model }

// Search returns the k highest inner-product matches for query, best first.
// Ties break on insertion order, so results are deterministic. The query
// model and dimension must match the index.
func (f *Flat) Search(query []float32, model string, k int) ([]Match, error) {
	if model != f.model {
		return nil, fmt.Errorf("ann: index built for model %q, query for %q", f.model, model)
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("ann: query dimension %d, index dimension %d", len(query), f.dim)
	}
	if k <= 0 {
		return nil, nil
	}

	type scored struct {
		pos   int
		score float64
	}
	all := make([]scored, len(f.ids))
	for i := range f.ids {
		row := f.data[i*f.dim : (i+1)*f.dim]
		var dot float64
		for j, q := range query {
			dot += float64(q) * float64(row[j])
		}
		all[i] = scored{pos: i, score: dot}
	}

	sort.Slice(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].pos < all[j].pos
	})

	if k > len(all) {
		k = len(all)
	}
	out := make([]Match, k)
	for i := 0; i < k; i++ {
		out[i] = Match{ID: f.ids[all[i].pos], Score: all[i].score}
	}
	return out, nil
}
