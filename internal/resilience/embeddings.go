package resilience

import (
	"context"

	"github.com/watchgate/watchgate/pkg/provider/embeddings"
)

// Embeddings wraps an embedding provider with a circuit breaker. Embed and
// EmbedBatch trip the breaker on failure; while it is open, calls return
// [ErrCircuitOpen] immediately. Screening treats that like any other
// embedding failure: the request errors and the caller retries later.
type Embeddings struct {
	inner   embeddings.Provider
	breaker *CircuitBreaker
}

var _ embeddings.Provider = (*Embeddings)(nil)

// WrapEmbeddings guards provider with a breaker configured by cfg.
// Zero-value config fields take the breaker defaults.
func WrapEmbeddings(provider embeddings.Provider, cfg CircuitBreakerConfig) *Embeddings {
	if cfg.Name == "" {
		cfg.Name = "embeddings/" + provider.ModelID()
	}
	return &Embeddings{
		inner:   provider,
		breaker: NewCircuitBreaker(cfg),
	}
}

// Embed implements [embeddings.Provider].
func (e *Embeddings) Embed(ctx context.Context, text string) ([]float32, error) {
	var vec []float32
	err := e.breaker.Execute(func() error {
		var err error
		vec, err = e.inner.Embed(ctx, text)
		return err
	})
	return vec, err
}

// EmbedBatch implements [embeddings.Provider].
func (e *Embeddings) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	var vecs [][]float32
	err := e.breaker.Execute(func() error {
		var err error
		vecs, err = e.inner.EmbedBatch(ctx, texts)
		return err
	})
	return vecs, err
}

// Dimensions implements [embeddings.Provider].
func (e *Embeddings) Dimensions() int { return e.inner.Dimensions() }

// ModelID implements [embeddings.Provider].
func (e *Embeddings) ModelID() string { return e.inner.ModelID() }

// State exposes the breaker state for readiness reporting.
func (e *Embeddings) State() State { return e.breaker.State() }
