package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/watchgate/watchgate/internal/ann"
	"github.com/watchgate/watchgate/internal/kb"
	"github.com/watchgate/watchgate/internal/observe"
)

// Default per-leg retrieval limits.
const (
	defaultLexicalLimit = 50
	defaultVectorLimit  = 50
)

// IndexSearcher adapts the file-backed index in internal/ann to the
// [kb.VectorSearcher] contract by resolving matched IDs against the store.
// IDs present in the index but no longer in the store are skipped; that is
// the normal window between a snapshot reload and the next index build.
type IndexSearcher struct {
	Holder *ann.Holder
	Store  kb.Store
}

var _ kb.VectorSearcher = (*IndexSearcher)(nil)

// VectorSearch implements [kb.VectorSearcher].
func (s *IndexSearcher) VectorSearch(ctx context.Context, vec []float32, model string, limit int) ([]kb.Entity, error) {
	matches, err := s.Holder.Search(vec, model, limit)
	if err != nil {
		return nil, err
	}

	out := make([]kb.Entity, 0, len(matches))
	for _, m := range matches {
		e, err := s.Store.FetchByID(ctx, m.ID)
		if errors.Is(err, kb.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("screen: resolve index match %q: %w", m.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// Retriever produces the candidate set for one query by unioning the lexical
// and vector retrieval legs.
//
// The lexical leg is load-bearing: its errors fail the call, because an
// unreachable store must surface as an error, never as "no matches". The
// vector leg is additive: its errors are logged and retrieval degrades to
// lexical-only.
type Retriever struct {
	Store   kb.Store
	Vector  kb.VectorSearcher // nil disables the vector leg
	Logger  *slog.Logger
	Metrics *observe.Metrics

	// LexicalLimit and VectorLimit cap each leg. Zero means the defaults
	// (50 per leg).
	LexicalLimit int
	VectorLimit  int
}

// Retrieve returns the deduplicated union of both legs. Lexical hits come
// first in their original order, then vector-only hits; a candidate found by
// both legs keeps its lexical position.
func (r *Retriever) Retrieve(ctx context.Context, queryKey, rawName string, qvec []float32, model string) ([]kb.Entity, error) {
	lexLimit := r.LexicalLimit
	if lexLimit <= 0 {
		lexLimit = defaultLexicalLimit
	}
	vecLimit := r.VectorLimit
	if vecLimit <= 0 {
		vecLimit = defaultVectorLimit
	}

	lexical, err := r.Store.LexicalSearch(ctx, queryKey, rawName, lexLimit)
	if err != nil {
		return nil, fmt.Errorf("screen: lexical retrieval: %w", err)
	}
	r.Metrics.RecordCandidates(ctx, "lexical", len(lexical))

	var vector []kb.Entity
	if r.Vector != nil && len(qvec) > 0 {
		vector, err = r.Vector.VectorSearch(ctx, qvec, model, vecLimit)
		if err != nil {
			r.Logger.Warn("vector retrieval failed, degrading to lexical-only", "error", err)
			vector = nil
		}
		r.Metrics.RecordCandidates(ctx, "vector", len(vector))
	}

	seen := make(map[string]struct{}, len(lexical)+len(vector))
	out := make([]kb.Entity, 0, len(lexical)+len(vector))
	for _, e := range lexical {
		if _, dup := seen[e.EntityID]; dup {
			continue
		}
		seen[e.EntityID] = struct{}{}
		out = append(out, e)
	}
	for _, e := range vector {
		if _, dup := seen[e.EntityID]; dup {
			continue
		}
		seen[e.EntityID] = struct{}{}
		out = append(out, e)
	}
	return out, nil
}
