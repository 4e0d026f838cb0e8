package kb

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Schema returns the SQL DDL for the kb_entities table with the embedding
// dimension baked into the vector column type. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
//
// Changing the dimension after the first migration requires a manual schema
// update; it must match the configured embedding model.
func Schema(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS kb_entities (
    entity_id       TEXT        PRIMARY KEY,
    source          TEXT        NOT NULL DEFAULT '',
    source_id       TEXT        NOT NULL DEFAULT '',
    entity_type     TEXT        NOT NULL DEFAULT 'unknown',
    primary_name    TEXT        NOT NULL,
    aliases         TEXT[]      NOT NULL DEFAULT '{}',
    programs        TEXT[]      NOT NULL DEFAULT '{}',
    dobs            TEXT[]      NOT NULL DEFAULT '{}',
    nationalities   TEXT[]      NOT NULL DEFAULT '{}',
    addresses       TEXT[]      NOT NULL DEFAULT '{}',
    ids             TEXT[]      NOT NULL DEFAULT '{}',
    list_date       TEXT        NOT NULL DEFAULT '',
    last_updated    TEXT        NOT NULL DEFAULT '',
    remarks         TEXT        NOT NULL DEFAULT '',
    source_uri      TEXT        NOT NULL DEFAULT '',
    normalized_name TEXT        NOT NULL,
    search_text     TEXT        NOT NULL,
    name_vec        vector(%d),
    name_vec_model  TEXT        NOT NULL DEFAULT '',
    updated_at      TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_kb_entities_fts
    ON kb_entities USING GIN (to_tsvector('simple', search_text));

CREATE INDEX IF NOT EXISTS idx_kb_entities_vec
    ON kb_entities USING hnsw (name_vec vector_ip_ops);

CREATE INDEX IF NOT EXISTS idx_kb_entities_source
    ON kb_entities (source, source_id);
`, embeddingDimensions)
}

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewPool opens a pgx connection pool with pgvector types registered on every
// connection.
func NewPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("kb: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("kb: connect: %w", err)
	}
	return pool, nil
}

// PostgresStore is a [Store] and [VectorSearcher] backed by PostgreSQL with
// the pgvector extension. Lexical search uses a GIN full-text index over
// [Entity.SearchText]; vector search orders by inner product.
type PostgresStore struct {
	db DB
}

var (
	_ Store          = (*PostgresStore)(nil)
	_ VectorSearcher = (*PostgresStore)(nil)
)

// NewPostgresStore creates a [PostgresStore] on the given connection or pool.
// The caller is responsible for calling [PostgresStore.Migrate] to ensure the
// schema exists before issuing queries.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate executes the [Schema] DDL. Idempotent, safe on every start.
func (s *PostgresStore) Migrate(ctx context.Context, embeddingDimensions int) error {
	if _, err := s.db.Exec(ctx, Schema(embeddingDimensions)); err != nil {
		return fmt.Errorf("kb: migrate: %w", err)
	}
	return nil
}

const entityColumns = `entity_id, source, source_id, entity_type, primary_name,
       aliases, programs, dobs, nationalities, addresses, ids,
       list_date, last_updated, remarks, source_uri,
       normalized_name, name_vec, name_vec_model`

// LexicalSearch implements [Store.LexicalSearch]. The normalized key and the
// raw name are OR-combined so tokens lost in normalization can still match.
func (s *PostgresStore) LexicalSearch(ctx context.Context, queryKey, rawName string, limit int) ([]Entity, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `
		SELECT ` + entityColumns + `
		FROM kb_entities
		WHERE to_tsvector('simple', search_text) @@
		      (plainto_tsquery('simple', $1) || plainto_tsquery('simple', $2))
		LIMIT $3`

	rows, err := s.db.Query(ctx, query, queryKey, rawName, limit)
	if err != nil {
		return nil, fmt.Errorf("kb: lexical search: %w: %w", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	return collectEntities(rows, "lexical search")
}

// FetchByID implements [Store.FetchByID].
func (s *PostgresStore) FetchByID(ctx context.Context, id string) (Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM kb_entities
		WHERE entity_id = $1`

	e, err := scanEntity(s.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entity{}, ErrNotFound
		}
		return Entity{}, fmt.Errorf("kb: fetch %q: %w", id, err)
	}
	return e, nil
}

// BulkUpsert implements [Store.BulkUpsert]. A replaced record keeps its
// stored vector only when the normalized name is unchanged; otherwise the
// vector is cleared so the next backfill re-embeds the new name.
func (s *PostgresStore) BulkUpsert(ctx context.Context, entities []Entity) error {
	const query = `
		INSERT INTO kb_entities (
			entity_id, source, source_id, entity_type, primary_name,
			aliases, programs, dobs, nationalities, addresses, ids,
			list_date, last_updated, remarks, source_uri,
			normalized_name, search_text
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17)
		ON CONFLICT (entity_id) DO UPDATE SET
			source          = EXCLUDED.source,
			source_id       = EXCLUDED.source_id,
			entity_type     = EXCLUDED.entity_type,
			primary_name    = EXCLUDED.primary_name,
			aliases         = EXCLUDED.aliases,
			programs        = EXCLUDED.programs,
			dobs            = EXCLUDED.dobs,
			nationalities   = EXCLUDED.nationalities,
			addresses       = EXCLUDED.addresses,
			ids             = EXCLUDED.ids,
			list_date       = EXCLUDED.list_date,
			last_updated    = EXCLUDED.last_updated,
			remarks         = EXCLUDED.remarks,
			source_uri      = EXCLUDED.source_uri,
			normalized_name = EXCLUDED.normalized_name,
			search_text     = EXCLUDED.search_text,
			name_vec        = CASE WHEN kb_entities.normalized_name = EXCLUDED.normalized_name
			                       THEN kb_entities.name_vec ELSE NULL END,
			name_vec_model  = CASE WHEN kb_entities.normalized_name = EXCLUDED.normalized_name
			                       THEN kb_entities.name_vec_model ELSE '' END,
			updated_at      = now()`

	for _, e := range entities {
		_, err := s.db.Exec(ctx, query,
			e.EntityID, e.Source, e.SourceID, string(e.Type), e.PrimaryName,
			emptySlice(e.Aliases), emptySlice(e.Programs), emptySlice(e.DOBs),
			emptySlice(e.Nationalities), emptySlice(e.Addresses), emptySlice(e.IDs),
			e.ListDate, e.LastUpdated, e.Remarks, e.SourceURI,
			e.NormalizedName, e.SearchText(),
		)
		if err != nil {
			return fmt.Errorf("kb: upsert %q: %w", e.EntityID, err)
		}
	}
	return nil
}

// MissingVectors implements [Store.MissingVectors]. Entity ID order keeps
// backfill batches stable across runs.
func (s *PostgresStore) MissingVectors(ctx context.Context, model string, limit int) ([]Entity, error) {
	query := `
		SELECT ` + entityColumns + `
		FROM kb_entities
		WHERE name_vec IS NULL OR name_vec_model <> $1
		ORDER BY entity_id
		LIMIT $2`

	rows, err := s.db.Query(ctx, query, model, limit)
	if err != nil {
		return nil, fmt.Errorf("kb: missing vectors: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows, "missing vectors")
}

// SetVectors implements [Store.SetVectors].
func (s *PostgresStore) SetVectors(ctx context.Context, model string, updates map[string][]float32) error {
	const query = `
		UPDATE kb_entities
		SET name_vec = $2, name_vec_model = $3, updated_at = now()
		WHERE entity_id = $1`

	for id, vec := range updates {
		if _, err := s.db.Exec(ctx, query, id, pgvector.NewVector(vec), model); err != nil {
			return fmt.Errorf("kb: set vector %q: %w", id, err)
		}
	}
	return nil
}

// AllVectors implements [Store.AllVectors].
func (s *PostgresStore) AllVectors(ctx context.Context, model string) ([]string, [][]float32, error) {
	const query = `
		SELECT entity_id, name_vec
		FROM kb_entities
		WHERE name_vec IS NOT NULL AND name_vec_model = $1
		ORDER BY entity_id`

	rows, err := s.db.Query(ctx, query, model)
	if err != nil {
		return nil, nil, fmt.Errorf("kb: all vectors: %w", err)
	}
	defer rows.Close()

	var ids []string
	var vecs [][]float32
	for rows.Next() {
		var id string
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, nil, fmt.Errorf("kb: all vectors scan: %w", err)
		}
		ids = append(ids, id)
		vecs = append(vecs, vec.Slice())
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("kb: all vectors: %w", err)
	}
	return ids, vecs, nil
}

// VectorSearch implements [VectorSearcher]. `<#>` is pgvector's negative
// inner product operator, so ascending order returns the most similar first.
func (s *PostgresStore) VectorSearch(ctx context.Context, vec []float32, model string, limit int) ([]Entity, error) {
	if limit <= 0 || len(vec) == 0 {
		return nil, nil
	}

	query := `
		SELECT ` + entityColumns + `
		FROM kb_entities
		WHERE name_vec IS NOT NULL AND name_vec_model = $2
		ORDER BY name_vec <#> $1, entity_id
		LIMIT $3`

	rows, err := s.db.Query(ctx, query, pgvector.NewVector(vec), model, limit)
	if err != nil {
		return nil, fmt.Errorf("kb: vector search: %w", err)
	}
	defer rows.Close()

	return collectEntities(rows, "vector search")
}

// collectEntities drains rows into entities, wrapping errors with op.
func collectEntities(rows pgx.Rows, op string) ([]Entity, error) {
	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("kb: %s scan: %w", op, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("kb: %s: %w", op, err)
	}
	return out, nil
}

// scanEntity reads one entityColumns row. name_vec is nullable, so it is
// scanned through a pointer.
func scanEntity(row pgx.Row) (Entity, error) {
	var (
		e       Entity
		typ     string
		vec     *pgvector.Vector
		vecName string
	)
	err := row.Scan(
		&e.EntityID, &e.Source, &e.SourceID, &typ, &e.PrimaryName,
		&e.Aliases, &e.Programs, &e.DOBs, &e.Nationalities, &e.Addresses, &e.IDs,
		&e.ListDate, &e.LastUpdated, &e.Remarks, &e.SourceURI,
		&e.NormalizedName, &vec, &vecName,
	)
	if err != nil {
		return Entity{}, err
	}
	e.Type = EntityType(typ)
	if vec != nil {
		e.NameVec = vec.Slice()
		e.NameVecModel = vecName
	}
	return e, nil
}

// emptySlice returns s if non-nil, otherwise an empty non-nil slice, so
// inserts produce '{}' instead of NULL.
func emptySlice(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
