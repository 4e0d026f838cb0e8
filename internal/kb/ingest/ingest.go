// Package ingest loads watchlist snapshot files into the knowledge base and
// backfills name embeddings for records that do not have one yet.
//
// Snapshots are JSON Lines: one entity record per line. Ingestion is
// tolerant of bad lines: a malformed record is dropped and counted, never
// fatal, because list providers routinely ship a handful of broken rows in
// otherwise usable files.
package ingest

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/watchgate/watchgate/internal/kb"
	"github.com/watchgate/watchgate/internal/normalize"
	"github.com/watchgate/watchgate/internal/observe"
)

// upsertChunk is the number of entities sent to the store per BulkUpsert.
const upsertChunk = 500

// maxLineBytes bounds a single snapshot line. Records are small; anything
// beyond this is broken input.
const maxLineBytes = 1 << 20

// Report summarises one snapshot load.
type Report struct {
	Loaded  int
	Dropped int
}

// record is the JSONL wire shape of one snapshot row.
type record struct {
	Source        string   `json:"source"`
	SourceID      string   `json:"source_id"`
	EntityType    string   `json:"entity_type"`
	PrimaryName   string   `json:"primary_name"`
	Aliases       []string `json:"aliases"`
	Programs      []string `json:"programs"`
	DOBs          []string `json:"dobs"`
	Nationalities []string `json:"nationalities"`
	Addresses     []string `json:"addresses"`
	IDs           []string `json:"ids"`
	ListDate      string   `json:"list_date"`
	LastUpdated   string   `json:"last_updated"`
	Remarks       string   `json:"remarks"`
	SourceURI     string   `json:"source_uri"`
}

// LoadFile opens path and loads it via [Load].
func LoadFile(ctx context.Context, store kb.Store, path string, logger *slog.Logger, metrics *observe.Metrics) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("ingest: open snapshot: %w", err)
	}
	defer f.Close()
	return Load(ctx, store, f, logger, metrics)
}

// Load reads a JSONL snapshot from r and upserts every usable record.
// Records that fail to parse or lack a primary name are dropped, counted in
// the report, and recorded on the ingest drop counter. Store errors abort
// the load.
func Load(ctx context.Context, store kb.Store, r io.Reader, logger *slog.Logger, metrics *observe.Metrics) (Report, error) {
	var report Report
	var batch []kb.Entity

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}

		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			report.Dropped++
			metrics.RecordIngestDropped(ctx, "malformed")
			logger.Warn("dropping malformed snapshot record", "line", line, "error", err)
			continue
		}
		if strings.TrimSpace(rec.PrimaryName) == "" {
			report.Dropped++
			metrics.RecordIngestDropped(ctx, "missing_name")
			logger.Warn("dropping snapshot record without primary name", "line", line, "source", rec.Source)
			continue
		}

		batch = append(batch, toEntity(rec))
		if len(batch) >= upsertChunk {
			if err := store.BulkUpsert(ctx, batch); err != nil {
				return report, fmt.Errorf("ingest: upsert: %w", err)
			}
			report.Loaded += len(batch)
			batch = batch[:0]
		}
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("ingest: read snapshot: %w", err)
	}

	if len(batch) > 0 {
		if err := store.BulkUpsert(ctx, batch); err != nil {
			return report, fmt.Errorf("ingest: upsert: %w", err)
		}
		report.Loaded += len(batch)
	}

	logger.Info("snapshot loaded", "loaded", report.Loaded, "dropped", report.Dropped)
	return report, nil
}

// toEntity converts a wire record into a stored entity, deriving the stable
// entity ID and the normalized matching key.
func toEntity(rec record) kb.Entity {
	return kb.Entity{
		EntityID:       EntityID(rec.Source, rec.SourceID, rec.PrimaryName),
		Source:         rec.Source,
		SourceID:       rec.SourceID,
		Type:           kb.ParseEntityType(rec.EntityType),
		PrimaryName:    rec.PrimaryName,
		Aliases:        rec.Aliases,
		Programs:       rec.Programs,
		DOBs:           rec.DOBs,
		Nationalities:  rec.Nationalities,
		Addresses:      rec.Addresses,
		IDs:            rec.IDs,
		ListDate:       rec.ListDate,
		LastUpdated:    rec.LastUpdated,
		Remarks:        rec.Remarks,
		SourceURI:      rec.SourceURI,
		NormalizedName: normalize.ForMatching(rec.PrimaryName),
	}
}

// EntityID derives the stable identifier for a record: "source:source_id"
// when the source supplies its own ID, otherwise a digest of the source and
// primary name. Re-ingesting the same snapshot therefore replaces records
// instead of duplicating them.
func EntityID(source, sourceID, primaryName string) string {
	if source != "" && sourceID != "" {
		return source + ":" + sourceID
	}
	sum := sha256.Sum256([]byte(source + "\x00" + primaryName))
	return "sha:" + hex.EncodeToString(sum[:8])
}
