package kb

import (
	"strings"

	"github.com/watchgate/watchgate/internal/normalize"
)

// EntityType classifies a watchlist record.
type EntityType string

const (
	TypePerson       EntityType = "person"
	TypeOrganization EntityType = "organization"
	TypeUnknown      EntityType = "unknown"
)

// ParseEntityType maps free-text type labels from snapshot feeds onto one of
// the three known types. Anything unrecognised is [TypeUnknown].
func ParseEntityType(s string) EntityType {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "person", "individual", "natural person":
		return TypePerson
	case "organization", "organisation", "entity", "company", "vessel":
		return TypeOrganization
	default:
		return TypeUnknown
	}
}

// Entity is one watchlist record in the knowledge base.
//
// EntityID is stable across re-ingestion of the same snapshot: it is derived
// from the source list and the source's own record ID, so loading a snapshot
// twice replaces records instead of duplicating them.
//
// NameVec, when present, is the unit-normalized embedding of NormalizedName
// and NameVecModel records which model produced it. A vector and its model ID
// always travel together; vectors from different models are never compared.
type Entity struct {
	EntityID      string     `json:"entity_id"`
	Source        string     `json:"source"`
	SourceID      string     `json:"source_id"`
	Type          EntityType `json:"entity_type"`
	PrimaryName   string     `json:"primary_name"`
	Aliases       []string   `json:"aliases,omitempty"`
	Programs      []string   `json:"programs,omitempty"`
	DOBs          []string   `json:"dobs,omitempty"`
	Nationalities []string   `json:"nationalities,omitempty"`
	Addresses     []string   `json:"addresses,omitempty"`
	IDs           []string   `json:"ids,omitempty"`
	ListDate      string     `json:"list_date,omitempty"`
	LastUpdated   string     `json:"last_updated,omitempty"`
	Remarks       string     `json:"remarks,omitempty"`
	SourceURI     string     `json:"source_uri,omitempty"`

	NormalizedName string    `json:"normalized_name"`
	NameVec        []float32 `json:"-"`
	NameVecModel   string    `json:"-"`
}

// SearchText is the lexical haystack for this entity: the normalized primary
// name followed by every normalized alias, space-joined. Both store
// implementations index and match against this text.
func (e Entity) SearchText() string {
	parts := make([]string, 0, 1+len(e.Aliases))
	if e.NormalizedName != "" {
		parts = append(parts, e.NormalizedName)
	}
	for _, a := range e.Aliases {
		if key := normalize.ForMatching(a); key != "" {
			parts = append(parts, key)
		}
	}
	return strings.Join(parts, " ")
}
