package screen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/watchgate/watchgate/internal/normalize"
	"github.com/watchgate/watchgate/internal/observe"
	"github.com/watchgate/watchgate/pkg/provider/embeddings"
)

// ErrEmptyName is returned when a request has no screenable name.
var ErrEmptyName = errors.New("screen: empty name")

// defaultK is the hit cap when a request does not specify one.
const defaultK = 10

// Screener runs the full screening pipeline for one request. All fields
// except Embedder are required. A nil Embedder turns the embedding signal
// and the vector retrieval leg off entirely. That is configuration, applied
// uniformly to every request, not a per-call fallback.
type Screener struct {
	Retriever *Retriever
	Scorer    *Scorer
	Embedder  embeddings.Provider
	Metrics   *observe.Metrics
	Logger    *slog.Logger

	// DefaultK caps the hits returned when a request does not set its own
	// cap. Zero falls back to the built-in default of 10.
	DefaultK int
}

// Screen screens one name and returns the ranked hits and the decision.
//
// When an embedder is configured, a failed embedding call fails the whole
// request: silently scoring without the embedding signal would produce
// systematically lower scores and could clear a name that should have hit.
// Callers surface the error as a retryable failure, distinct from any
// decision.
func (s *Screener) Screen(ctx context.Context, req Request) (Result, error) {
	start := time.Now()

	queryKey := normalize.ForMatching(req.Name)
	if queryKey == "" {
		return Result{}, ErrEmptyName
	}

	k := req.K
	if k <= 0 {
		k = s.DefaultK
	}
	if k <= 0 {
		k = defaultK
	}
	weights := s.Scorer.Weights
	if req.Weights != nil {
		weights = *req.Weights
	}

	var (
		qvec  []float32
		model string
	)
	if s.Embedder != nil {
		model = s.Embedder.ModelID()
		embedStart := time.Now()
		vec, err := s.Embedder.Embed(ctx, queryKey)
		s.Metrics.EmbedDuration.Record(ctx, time.Since(embedStart).Seconds())
		if err != nil {
			s.Metrics.RecordEmbeddingError(ctx, "screen")
			return Result{}, fmt.Errorf("screen: embed query: %w", err)
		}
		qvec = embeddings.Normalize(vec)
	}

	retrieveStart := time.Now()
	candidates, err := s.Retriever.Retrieve(ctx, queryKey, req.Name, qvec, model)
	s.Metrics.RetrieveDuration.Record(ctx, time.Since(retrieveStart).Seconds())
	if err != nil {
		return Result{}, err
	}

	hits := s.Scorer.Score(queryKey, qvec, model, req.Context, weights, candidates, k)
	decision := s.Scorer.Decide(hits)

	result := Result{
		Query:           req.Name,
		NormalizedQuery: queryKey,
		Decision:        decision,
		Hits:            hits,
	}
	if len(hits) > 0 {
		result.Score = hits[0].Score
	}

	s.Metrics.RecordDecision(ctx, string(decision))
	s.Metrics.ScreenDuration.Record(ctx, time.Since(start).Seconds())
	s.Logger.Info("screened name",
		"decision", decision,
		"score", result.Score,
		"candidates", len(candidates),
		"hits", len(hits),
		"duration", time.Since(start),
	)
	return result, nil
}
