package screen

import (
	"sort"

	"github.com/watchgate/watchgate/internal/corroborate"
	"github.com/watchgate/watchgate/internal/country"
	"github.com/watchgate/watchgate/internal/kb"
	"github.com/watchgate/watchgate/internal/normalize"
	"github.com/watchgate/watchgate/internal/similarity"
)

// Scorer fuses per-candidate signals into one score and maps the best score
// to a decision.
type Scorer struct {
	Resolver   *country.Resolver
	Weights    Weights
	Thresholds Thresholds
}

// Score ranks candidates against the query and returns the top k hits, best
// first. queryKey is the normalized query name; qvec is its embedding under
// model, or nil when embedding is off. Sorting is stable, so equal scores
// keep retrieval order.
func (s *Scorer) Score(queryKey string, qvec []float32, model string, reqCtx Context, weights Weights, candidates []kb.Entity, k int) []Hit {
	hits := make([]Hit, 0, len(candidates))
	for _, cand := range candidates {
		feat := s.features(queryKey, qvec, model, reqCtx, weights, cand)
		hits = append(hits, Hit{
			EntityID:      cand.EntityID,
			Source:        cand.Source,
			EntityType:    string(cand.Type),
			PrimaryName:   cand.PrimaryName,
			Aliases:       cand.Aliases,
			Programs:      cand.Programs,
			DOBs:          cand.DOBs,
			Nationalities: cand.Nationalities,
			Addresses:     cand.Addresses,
			IDs:           cand.IDs,
			Score:         fuse(weights, feat),
			Features:      feat,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Score > hits[j].Score
	})

	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Decide maps the top score to a decision. No hits at all is always review:
// an empty candidate set proves nothing about the subject.
func (s *Scorer) Decide(hits []Hit) Decision {
	if len(hits) == 0 {
		return DecisionReview
	}
	top := hits[0].Score
	switch {
	case top >= s.Thresholds.Block:
		return DecisionBlock
	case top <= s.Thresholds.Clear:
		return DecisionClear
	default:
		return DecisionReview
	}
}

// features computes all raw signals for one candidate.
func (s *Scorer) features(queryKey string, qvec []float32, model string, reqCtx Context, weights Weights, cand kb.Entity) Features {
	jw, lev, tok := bestNameFeatures(queryKey, weights, cand)

	var feat Features
	feat.JaroWinkler = jw
	feat.Edit = lev
	feat.TokenOverlap = tok

	// Negative cosine carries no meaning for name matching; floor at zero so
	// an opposed vector cannot drag the fused score down.
	if len(qvec) > 0 && cand.NameVec != nil && cand.NameVecModel == model {
		if cos := similarity.Cosine(qvec, cand.NameVec); cos > 0 {
			feat.Embedding = cos
		}
	}

	if reqCtx.DOB != "" {
		for _, dob := range cand.DOBs {
			if corroborate.DOBMatch(reqCtx.DOB, dob) == 1.0 {
				feat.DOB = 1.0
				break
			}
		}
	}
	if reqCtx.Country != "" {
		feat.Country = corroborate.CountryMatch(s.Resolver, reqCtx.Country, cand.Nationalities, cand.Addresses)
	}
	if reqCtx.ID != "" {
		feat.IDSoft = corroborate.IDSoftMatch(reqCtx.ID, cand.IDs)
	}
	return feat
}

// bestNameFeatures compares the query key against the candidate's normalized
// primary name and every normalized alias, and returns the string features
// of the best-matching name. "Best" is judged by the weighted string combo
// under the same weights the fused score will use, so the selected name is
// the one that maximises the candidate's score and all three features
// describe that one name.
func bestNameFeatures(queryKey string, w Weights, cand kb.Entity) (jw, lev, tok float64) {
	names := make([]string, 0, 1+len(cand.Aliases))
	if cand.NormalizedName != "" {
		names = append(names, cand.NormalizedName)
	}
	for _, a := range cand.Aliases {
		if key := normalize.ForMatching(a); key != "" {
			names = append(names, key)
		}
	}
	if len(names) == 0 {
		return 0, 0, 0
	}

	best := -1.0
	for _, name := range names {
		j := similarity.Prefix(queryKey, name)
		l := similarity.Edit(queryKey, name)
		t := similarity.TokenOverlap(queryKey, name)
		combo := w.JaroWinkler*j + w.Edit*l + w.TokenOverlap*t
		if combo > best {
			best, jw, lev, tok = combo, j, l, t
		}
	}
	return jw, lev, tok
}

// fuse computes the weighted sum of all signals, clamped to [0, 1].
func fuse(w Weights, f Features) float64 {
	score := w.JaroWinkler*f.JaroWinkler +
		w.Edit*f.Edit +
		w.TokenOverlap*f.TokenOverlap +
		w.Embedding*f.Embedding +
		w.DOB*f.DOB +
		w.Country*f.Country +
		w.IDSoft*f.IDSoft
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
