// Package country maps free-text country mentions (names, codes, historical
// and colloquial variants) onto one canonical token per country.
//
// A [Resolver] is built once from a JSON reference table, either an explicitly
// configured file, the bundled default table, or a minimal built-in fallback,
// in that order, optionally merged with an override file. It is immutable
// after construction and safe for unlimited concurrent readers; construct
// independent instances in tests rather than sharing process globals.
package country

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"

	"github.com/watchgate/watchgate/internal/normalize"
)

//go:embed country_aliases.json
var bundledTable []byte

// Entry is one canonical country in the reference table.
type Entry struct {
	Alpha2  string   `json:"alpha2"`
	Alpha3  string   `json:"alpha3"`
	Aliases []string `json:"aliases"`
}

// Table maps canonical country names to their codes and alias lists.
type Table map[string]Entry

// Resolver answers "which country is this?" for raw text input.
type Resolver struct {
	// lookup maps every normalized alias, code, and canonical name to the
	// normalized canonical token.
	lookup map[string]string
}

// NewResolver builds a Resolver. path selects the reference table file; when
// empty the bundled table is used, and if that fails to parse a minimal
// built-in fallback keeps lookups working. overridePath, when non-empty,
// names a second table whose aliases are merged in by union: overrides add
// aliases, they never remove them.
func NewResolver(path, overridePath string) (*Resolver, error) {
	table, err := loadTable(path)
	if err != nil {
		return nil, err
	}

	if overridePath != "" {
		override, err := readTable(overridePath)
		if err != nil {
			return nil, fmt.Errorf("country: override table: %w", err)
		}
		mergeTables(table, override)
	}

	return NewResolverFromTable(table), nil
}

// NewResolverFromTable builds a Resolver directly from an in-memory table.
// Useful in tests and for callers that manage table loading themselves.
func NewResolverFromTable(table Table) *Resolver {
	lookup := make(map[string]string, len(table)*4)
	for canonical, entry := range table {
		canon := normalize.ForMatching(canonical)
		if canon == "" {
			continue
		}
		lookup[canon] = canon
		for _, alias := range entry.Aliases {
			if key := normalize.ForMatching(alias); key != "" {
				lookup[key] = canon
			}
		}
		if key := normalize.ForMatching(entry.Alpha2); key != "" {
			lookup[key] = canon
		}
		if key := normalize.ForMatching(entry.Alpha3); key != "" {
			lookup[key] = canon
		}
	}
	return &Resolver{lookup: lookup}
}

// Canonical returns the canonical token for raw and whether it was
// recognised. Input is normalized with the same rules as name matching, so
// "U.K.", "uk" and "United Kingdom" all resolve identically. Unknown input
// is a miss, never an error.
func (r *Resolver) Canonical(raw string) (string, bool) {
	key := normalize.ForMatching(raw)
	if key == "" {
		return "", false
	}
	canon, ok := r.lookup[key]
	return canon, ok
}

// loadTable resolves the table source: explicit path, bundled default,
// built-in fallback.
func loadTable(path string) (Table, error) {
	if path != "" {
		t, err := readTable(path)
		if err != nil {
			return nil, fmt.Errorf("country: reference table: %w", err)
		}
		return t, nil
	}

	var t Table
	if err := json.Unmarshal(bundledTable, &t); err != nil || len(t) == 0 {
		return builtinFallback(), nil
	}
	return t, nil
}

func readTable(path string) (Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var t Table
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse %q: %w", path, err)
	}
	return t, nil
}

// mergeTables unions override into base: codes fill gaps, aliases append.
func mergeTables(base, override Table) {
	for canonical, ov := range override {
		entry, ok := base[canonical]
		if !ok {
			base[canonical] = ov
			continue
		}
		if entry.Alpha2 == "" {
			entry.Alpha2 = ov.Alpha2
		}
		if entry.Alpha3 == "" {
			entry.Alpha3 = ov.Alpha3
		}
		entry.Aliases = append(entry.Aliases, ov.Aliases...)
		base[canonical] = entry
	}
}

// builtinFallback keeps country lookups functional when no table can be
// loaded at all.
func builtinFallback() Table {
	return Table{
		"united states": {
			Alpha2:  "US",
			Alpha3:  "USA",
			Aliases: []string{"united states", "united states of america", "us", "usa", "u.s.", "u.s.a."},
		},
		"united kingdom": {
			Alpha2:  "GB",
			Alpha3:  "GBR",
			Aliases: []string{"united kingdom", "uk", "u.k.", "great britain", "gb", "gbr"},
		},
		"india": {
			Alpha2:  "IN",
			Alpha3:  "IND",
			Aliases: []string{"india", "in", "ind", "bharat"},
		},
	}
}
