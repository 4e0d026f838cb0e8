// Package mock provides a deterministic test double for the
// embeddings.Provider interface.
//
// Unless a fixed result is configured, the mock derives a unit-norm vector
// from a hash of the input text, so equal texts embed identically and
// different texts almost never collide. That is enough for retrieval and
// scoring tests without a live model.
package mock

import (
	"context"
	"hash/fnv"
	"math"
	"sync"

	"github.com/watchgate/watchgate/pkg/provider/embeddings"
)

// Ensure Provider implements embeddings.Provider at compile time.
var _ embeddings.Provider = (*Provider)(nil)

// Provider is a mock implementation of embeddings.Provider.
// The zero value embeds into 8 dimensions under model id "mock-embed".
type Provider struct {
	mu sync.Mutex

	// Dim is the vector length. Zero means 8.
	Dim int

	// Model is returned by ModelID. Empty means "mock-embed".
	Model string

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error

	// Fixed, if non-nil, is returned verbatim for every text instead of the
	// derived vector.
	Fixed []float32

	// Texts records every text submitted, in order, across both methods.
	Texts []string
}

// Embed returns the deterministic vector for text.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.Texts = append(p.Texts, text)
	p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	return p.vectorFor(text), nil
}

// EmbedBatch returns one deterministic vector per text.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.Texts = append(p.Texts, texts...)
	p.mu.Unlock()
	if p.Err != nil {
		return nil, p.Err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = p.vectorFor(t)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	if p.Dim > 0 {
		return p.Dim
	}
	return 8
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	if p.Model != "" {
		return p.Model
	}
	return "mock-embed"
}

// vectorFor derives a unit-norm vector from an FNV hash chain over text.
func (p *Provider) vectorFor(text string) []float32 {
	if p.Fixed != nil {
		out := make([]float32, len(p.Fixed))
		copy(out, p.Fixed)
		return out
	}

	dim := p.Dimensions()
	v := make([]float32, dim)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		// Map the high bits onto [-1, 1).
		v[i] = float32(int32(seed>>32)) / float32(math.MaxInt32)
		norm += float64(v[i]) * float64(v[i])
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	n := float32(math.Sqrt(norm))
	for i := range v {
		v[i] /= n
	}
	return v
}
