package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/watchgate/watchgate/internal/kb"
	"github.com/watchgate/watchgate/pkg/provider/embeddings"
)

// Default batch sizing for the vector backfill job.
const (
	defaultFetchBatch = 512
	defaultEmbedBatch = 128
	defaultParallel   = 4
)

// Backfiller embeds the normalized names of entities that have no stored
// vector for the configured model and writes the vectors back. It only
// touches missing or stale vectors, so running it repeatedly is idempotent.
type Backfiller struct {
	Store    kb.Store
	Provider embeddings.Provider
	Logger   *slog.Logger

	// FetchBatch is how many missing entities are pulled from the store per
	// round. Zero means 512.
	FetchBatch int

	// EmbedBatch is how many names go into a single provider call.
	// Zero means 128.
	EmbedBatch int

	// Parallel bounds concurrent provider calls. Zero means 4.
	Parallel int
}

// Run backfills until no entity is missing a vector for the provider's
// model. Returns the number of vectors written. Any embedding or store error
// aborts the run; vectors written before the error remain in place.
func (b *Backfiller) Run(ctx context.Context) (int, error) {
	fetch := b.FetchBatch
	if fetch <= 0 {
		fetch = defaultFetchBatch
	}
	model := b.Provider.ModelID()

	total := 0
	skipped := make(map[string]struct{})
	for {
		batch, err := b.Store.MissingVectors(ctx, model, fetch+len(skipped))
		if err != nil {
			return total, fmt.Errorf("ingest: backfill fetch: %w", err)
		}

		// Entities whose normalized name is empty cannot be embedded and
		// would be returned again forever; drop them from every round.
		todo := batch[:0]
		for _, e := range batch {
			if e.NormalizedName == "" {
				if _, seen := skipped[e.EntityID]; !seen {
					skipped[e.EntityID] = struct{}{}
					b.Logger.Warn("skipping entity with empty normalized name", "entity_id", e.EntityID)
				}
				continue
			}
			todo = append(todo, e)
		}
		if len(todo) == 0 {
			break
		}

		n, err := b.embedAndStore(ctx, model, todo)
		total += n
		if err != nil {
			return total, err
		}
		b.Logger.Info("backfill round complete", "embedded", n, "total", total)
	}
	return total, nil
}

// embedAndStore embeds one fetch round in bounded-parallel provider batches.
func (b *Backfiller) embedAndStore(ctx context.Context, model string, batch []kb.Entity) (int, error) {
	embedBatch := b.EmbedBatch
	if embedBatch <= 0 {
		embedBatch = defaultEmbedBatch
	}
	parallel := b.Parallel
	if parallel <= 0 {
		parallel = defaultParallel
	}

	var (
		mu    sync.Mutex
		total int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	for start := 0; start < len(batch); start += embedBatch {
		chunk := batch[start:min(start+embedBatch, len(batch))]
		g.Go(func() error {
			texts := make([]string, len(chunk))
			for i, e := range chunk {
				texts[i] = e.NormalizedName
			}

			vecs, err := b.Provider.EmbedBatch(ctx, texts)
			if err != nil {
				return fmt.Errorf("ingest: backfill embed: %w", err)
			}
			if len(vecs) != len(chunk) {
				return fmt.Errorf("ingest: backfill embed: got %d vectors for %d names", len(vecs), len(chunk))
			}

			updates := make(map[string][]float32, len(chunk))
			for i, e := range chunk {
				updates[e.EntityID] = embeddings.Normalize(vecs[i])
			}
			if err := b.Store.SetVectors(ctx, model, updates); err != nil {
				return fmt.Errorf("ingest: backfill store: %w", err)
			}

			mu.Lock()
			total += len(updates)
			mu.Unlock()
			return nil
		})
	}

	err := g.Wait()
	return total, err
}
