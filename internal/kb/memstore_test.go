package kb_test

import (
	"context"
	"errors"
	"testing"

	"github.com/watchgate/watchgate/internal/kb"
	"github.com/watchgate/watchgate/internal/normalize"
)

func newEntity(id, primary string, aliases ...string) kb.Entity {
	return kb.Entity{
		EntityID:       id,
		Source:         "test",
		SourceID:       id,
		Type:           kb.TypePerson,
		PrimaryName:    primary,
		Aliases:        aliases,
		NormalizedName: normalize.ForMatching(primary),
	}
}

func TestMemStore_UpsertAndFetch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := kb.NewMemStore()

	e := newEntity("ofac:1", "Mohammad Ali", "Muhammad Ali")
	if err := s.BulkUpsert(ctx, []kb.Entity{e}); err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}

	got, err := s.FetchByID(ctx, "ofac:1")
	if err != nil {
		t.Fatalf("FetchByID: %v", err)
	}
	if got.PrimaryName != "Mohammad Ali" || got.NormalizedName != "mohammad ali" {
		t.Errorf("got %+v", got)
	}

	if _, err := s.FetchByID(ctx, "ofac:missing"); !errors.Is(err, kb.ErrNotFound) {
		t.Errorf("FetchByID(missing) err = %v, want ErrNotFound", err)
	}
}

func TestMemStore_LexicalSearchFindsAliases(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := kb.NewMemStore()

	err := s.BulkUpsert(ctx, []kb.Entity{
		newEntity("ofac:1", "Mohammad Ali"),
		newEntity("eu:2", "Acme Trading Ltd", "Acme Holdings"),
		newEntity("un:3", "Jane Smith"),
	})
	if err != nil {
		t.Fatalf("BulkUpsert: %v", err)
	}

	// Query token matches an alias, not the primary name.
	hits, err := s.LexicalSearch(ctx, normalize.ForMatching("Holdings Intl"), "Holdings Intl", 10)
	if err != nil {
		t.Fatalf("LexicalSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].EntityID != "eu:2" {
		t.Fatalf("hits = %+v, want only eu:2", hits)
	}

	// Shared token "ali" only hits the one record.
	hits, err = s.LexicalSearch(ctx, "muhammad ali", "Muhammad Ali", 10)
	if err != nil {
		t.Fatalf("LexicalSearch: %v", err)
	}
	if len(hits) != 1 || hits[0].EntityID != "ofac:1" {
		t.Fatalf("hits = %+v, want only ofac:1", hits)
	}

	// No token overlap at all.
	hits, err = s.LexicalSearch(ctx, "zzz qqq", "zzz qqq", 10)
	if err != nil {
		t.Fatalf("LexicalSearch: %v", err)
	}
	if len(hits) != 0 {
		t.Fatalf("hits = %+v, want none", hits)
	}
}

func TestMemStore_LexicalSearchHonorsLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := kb.NewMemStore()

	ents := []kb.Entity{
		newEntity("a:1", "John Alpha"),
		newEntity("a:2", "John Beta"),
		newEntity("a:3", "John Gamma"),
	}
	if err := s.BulkUpsert(ctx, ents); err != nil {
		t.Fatal(err)
	}

	hits, err := s.LexicalSearch(ctx, "john", "John", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 2 {
		t.Fatalf("len(hits) = %d, want 2", len(hits))
	}
	// Insertion order is preserved.
	if hits[0].EntityID != "a:1" || hits[1].EntityID != "a:2" {
		t.Errorf("hits = %v, %v; want a:1, a:2", hits[0].EntityID, hits[1].EntityID)
	}
}

func TestMemStore_VectorLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := kb.NewMemStore()
	const model = "mock-embed"

	if err := s.BulkUpsert(ctx, []kb.Entity{
		newEntity("a:1", "John Alpha"),
		newEntity("a:2", "John Beta"),
	}); err != nil {
		t.Fatal(err)
	}

	missing, err := s.MissingVectors(ctx, model, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 2 {
		t.Fatalf("missing = %d, want 2", len(missing))
	}

	err = s.SetVectors(ctx, model, map[string][]float32{
		"a:1": {1, 0},
		"a:2": {0, 1},
	})
	if err != nil {
		t.Fatal(err)
	}

	missing, err = s.MissingVectors(ctx, model, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 0 {
		t.Fatalf("missing after backfill = %d, want 0", len(missing))
	}

	// A different model sees every vector as missing.
	missing, err = s.MissingVectors(ctx, "other-model", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(missing) != 2 {
		t.Fatalf("missing for other model = %d, want 2", len(missing))
	}

	ids, vecs, err := s.AllVectors(ctx, model)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 2 || len(vecs) != 2 {
		t.Fatalf("AllVectors = %v, %v", ids, vecs)
	}

	hits, err := s.VectorSearch(ctx, []float32{1, 0}, model, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 1 || hits[0].EntityID != "a:1" {
		t.Fatalf("VectorSearch hits = %+v, want a:1", hits)
	}

	// Vectors tagged with a different model are invisible.
	hits, err = s.VectorSearch(ctx, []float32{1, 0}, "other-model", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(hits) != 0 {
		t.Fatalf("VectorSearch other model = %+v, want none", hits)
	}
}

func TestMemStore_UpsertPreservesVectorWhileNameUnchanged(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := kb.NewMemStore()
	const model = "mock-embed"

	e := newEntity("a:1", "John Alpha")
	if err := s.BulkUpsert(ctx, []kb.Entity{e}); err != nil {
		t.Fatal(err)
	}
	if err := s.SetVectors(ctx, model, map[string][]float32{"a:1": {1, 0}}); err != nil {
		t.Fatal(err)
	}

	// Re-ingesting the same name keeps the vector.
	e.Addresses = []string{"Somewhere 1"}
	if err := s.BulkUpsert(ctx, []kb.Entity{e}); err != nil {
		t.Fatal(err)
	}
	got, err := s.FetchByID(ctx, "a:1")
	if err != nil {
		t.Fatal(err)
	}
	if got.NameVec == nil || got.NameVecModel != model {
		t.Fatalf("vector dropped on same-name upsert: %+v", got)
	}

	// A renamed record drops the vector until the next backfill.
	renamed := newEntity("a:1", "Johnny Alpha")
	if err := s.BulkUpsert(ctx, []kb.Entity{renamed}); err != nil {
		t.Fatal(err)
	}
	got, err = s.FetchByID(ctx, "a:1")
	if err != nil {
		t.Fatal(err)
	}
	if got.NameVec != nil || got.NameVecModel != "" {
		t.Fatalf("vector kept across rename: %+v", got)
	}
}
