package resilience

import (
	"context"
	"errors"
	"testing"

	"github.com/watchgate/watchgate/pkg/provider/embeddings/mock"
)

func TestWrapEmbeddings_PassThrough(t *testing.T) {
	e := WrapEmbeddings(&mock.Provider{}, CircuitBreakerConfig{})

	vec, err := e.Embed(context.Background(), "jane smith")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vec) != e.Dimensions() {
		t.Errorf("len(vec) = %d, want %d", len(vec), e.Dimensions())
	}
	if e.ModelID() != "mock-embed" {
		t.Errorf("ModelID = %q", e.ModelID())
	}
	if e.State() != StateClosed {
		t.Errorf("state = %v, want closed", e.State())
	}
}

func TestWrapEmbeddings_OpensAfterFailures(t *testing.T) {
	backendErr := errors.New("backend down")
	e := WrapEmbeddings(&mock.Provider{Err: backendErr}, CircuitBreakerConfig{MaxFailures: 2})

	for i := 0; i < 2; i++ {
		if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, backendErr) {
			t.Fatalf("Embed %d err = %v, want backend error", i, err)
		}
	}
	if e.State() != StateOpen {
		t.Fatalf("state = %v, want open", e.State())
	}
	if _, err := e.EmbedBatch(context.Background(), []string{"x"}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want ErrCircuitOpen", err)
	}
}
