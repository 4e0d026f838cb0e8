package kb

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Compile-time assertion that MemStore satisfies both retrieval contracts.
var (
	_ Store          = (*MemStore)(nil)
	_ VectorSearcher = (*MemStore)(nil)
)

// MemStore is a thread-safe, in-memory implementation of [Store] and
// [VectorSearcher]. It is suitable for tests and small embedded deployments.
// Lexical search is whitespace-token overlap against [Entity.SearchText];
// vector search is exhaustive inner product.
type MemStore struct {
	mu       sync.RWMutex
	entities map[string]Entity
	order    []string // insertion order, for deterministic iteration
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{entities: make(map[string]Entity)}
}

// LexicalSearch implements [Store.LexicalSearch].
func (s *MemStore) LexicalSearch(ctx context.Context, queryKey, rawName string, limit int) ([]Entity, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := make(map[string]struct{})
	for _, tok := range strings.Fields(queryKey) {
		query[tok] = struct{}{}
	}
	for _, tok := range strings.Fields(strings.ToLower(rawName)) {
		query[tok] = struct{}{}
	}
	if len(query) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entity
	for _, id := range s.order {
		e := s.entities[id]
		if !anyTokenIn(e.SearchText(), query) {
			continue
		}
		out = append(out, e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// FetchByID implements [Store.FetchByID].
func (s *MemStore) FetchByID(ctx context.Context, id string) (Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entities[id]
	if !ok {
		return Entity{}, ErrNotFound
	}
	return e, nil
}

// BulkUpsert implements [Store.BulkUpsert].
func (s *MemStore) BulkUpsert(ctx context.Context, entities []Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.entities == nil {
		s.entities = make(map[string]Entity)
	}

	for _, e := range entities {
		prev, exists := s.entities[e.EntityID]
		if exists && prev.NormalizedName == e.NormalizedName && e.NameVec == nil {
			// Unchanged name keeps the already-backfilled vector.
			e.NameVec = prev.NameVec
			e.NameVecModel = prev.NameVecModel
		}
		if !exists {
			s.order = append(s.order, e.EntityID)
		}
		s.entities[e.EntityID] = e
	}
	return nil
}

// MissingVectors implements [Store.MissingVectors].
func (s *MemStore) MissingVectors(ctx context.Context, model string, limit int) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entity
	for _, id := range s.order {
		e := s.entities[id]
		if e.NameVec != nil && e.NameVecModel == model {
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// SetVectors implements [Store.SetVectors].
func (s *MemStore) SetVectors(ctx context.Context, model string, updates map[string][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, vec := range updates {
		e, ok := s.entities[id]
		if !ok {
			continue
		}
		e.NameVec = vec
		e.NameVecModel = model
		s.entities[id] = e
	}
	return nil
}

// AllVectors implements [Store.AllVectors].
func (s *MemStore) AllVectors(ctx context.Context, model string) ([]string, [][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	var vecs [][]float32
	for _, id := range s.order {
		e := s.entities[id]
		if e.NameVec == nil || e.NameVecModel != model {
			continue
		}
		ids = append(ids, id)
		vecs = append(vecs, e.NameVec)
	}
	return ids, vecs, nil
}

// VectorSearch implements [VectorSearcher] by exhaustive inner product over
// all vectors stored for model. Ties break on insertion order.
func (s *MemStore) VectorSearch(ctx context.Context, vec []float32, model string, limit int) ([]Entity, error) {
	if limit <= 0 || len(vec) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	type scored struct {
		e     Entity
		score float64
		pos   int
	}
	var hits []scored
	for pos, id := range s.order {
		e := s.entities[id]
		if e.NameVec == nil || e.NameVecModel != model || len(e.NameVec) != len(vec) {
			continue
		}
		var dot float64
		for i := range vec {
			dot += float64(vec[i]) * float64(e.NameVec[i])
		}
		hits = append(hits, scored{e: e, score: dot, pos: pos})
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].pos < hits[j].pos
	})

	if len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Entity, len(hits))
	for i, h := range hits {
		out[i] = h.e
	}
	return out, nil
}

// anyTokenIn reports whether any whitespace token of text occurs in query.
func anyTokenIn(text string, query map[string]struct{}) bool {
	for _, tok := range strings.Fields(text) {
		if _, ok := query[tok]; ok {
			return true
		}
	}
	return false
}
