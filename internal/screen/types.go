// Package screen implements the screening pipeline: retrieve candidate
// watchlist entities for a query name, score each candidate across string,
// vector, and context signals, and map the best score to a decision.
package screen

// Decision is the outcome of screening one name.
type Decision string

const (
	// DecisionBlock means the match is strong enough to stop the transaction.
	DecisionBlock Decision = "block"
	// DecisionReview means a human analyst must look at the hit. This is the
	// default whenever the engine cannot confidently clear or block,
	// including when retrieval finds no candidates at all.
	DecisionReview Decision = "review"
	// DecisionClear means no candidate scored high enough to matter.
	DecisionClear Decision = "clear"
)

// Weights are the fusion weights for the per-candidate signals. They are not
// required to sum to 1; the fused score is clamped to [0, 1] instead.
type Weights struct {
	JaroWinkler  float64 `yaml:"jaro_winkler"`
	Edit         float64 `yaml:"edit"`
	TokenOverlap float64 `yaml:"token_overlap"`
	Embedding    float64 `yaml:"embedding"`
	DOB          float64 `yaml:"dob"`
	Country      float64 `yaml:"country"`
	IDSoft       float64 `yaml:"id_soft"`
}

// DefaultWeights returns the tuned production weights. Their sum is 0.70,
// deliberately below 1: a perfect string match alone cannot reach the block
// threshold without corroborating context.
func DefaultWeights() Weights {
	return Weights{
		JaroWinkler:  0.45,
		Edit:         0.20,
		TokenOverlap: 0.10,
		Embedding:    0.25,
		DOB:          0.05,
		Country:      0.03,
		IDSoft:       0.07,
	}
}

// Thresholds map a fused score to a decision. Block must exceed Clear;
// scores in between go to review.
type Thresholds struct {
	Block float64 `yaml:"block"`
	Clear float64 `yaml:"clear"`
}

// DefaultThresholds returns the production decision thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{Block: 0.93, Clear: 0.70}
}

// Features are the raw per-signal values for one candidate, before
// weighting. All values are in [0, 1].
type Features struct {
	JaroWinkler  float64 `json:"jaro_winkler"`
	Edit         float64 `json:"edit"`
	TokenOverlap float64 `json:"token_overlap"`
	Embedding    float64 `json:"embedding"`
	DOB          float64 `json:"dob"`
	Country      float64 `json:"country"`
	IDSoft       float64 `json:"id_soft"`
}

// Context is optional corroborating information about the screened subject.
// Absent fields contribute nothing to the score; they never penalize.
type Context struct {
	DOB     string `json:"dob,omitempty"`
	Country string `json:"country,omitempty"`
	ID      string `json:"id,omitempty"`
}

// Request is one screening query.
type Request struct {
	// Name is the name to screen. Required.
	Name string `json:"name"`

	// K caps the number of returned hits. Zero means the service default.
	K int `json:"k,omitempty"`

	// Context carries optional corroborating attributes.
	Context Context `json:"context"`

	// Weights overrides the configured fusion weights for this request
	// when non-nil. Thresholds are never overridable per request.
	Weights *Weights `json:"weights,omitempty"`
}

// Hit is one scored candidate, carrying the display fields an analyst needs
// to act on it without a second lookup.
type Hit struct {
	EntityID      string   `json:"entity_id"`
	Source        string   `json:"source"`
	EntityType    string   `json:"entity_type"`
	PrimaryName   string   `json:"primary_name"`
	Aliases       []string `json:"aliases,omitempty"`
	Programs      []string `json:"programs,omitempty"`
	DOBs          []string `json:"dobs,omitempty"`
	Nationalities []string `json:"nationalities,omitempty"`
	Addresses     []string `json:"addresses,omitempty"`
	IDs           []string `json:"ids,omitempty"`
	Score         float64  `json:"score"`
	Features      Features `json:"features"`
}

// Result is the outcome of one screening call.
type Result struct {
	Query           string   `json:"query"`
	NormalizedQuery string   `json:"normalized_query"`
	Decision        Decision `json:"decision"`
	// Score is the top hit's fused score, 0 when there are no hits.
	Score float64 `json:"score"`
	Hits  []Hit   `json:"hits"`
}
