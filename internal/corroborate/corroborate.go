// Package corroborate computes the boolean context features that back up a
// name match: date of birth, country, and identifier agreement. Each feature
// returns 1.0 on agreement and 0.0 otherwise, including when either side is
// missing. Absent context never penalizes a candidate, it simply contributes
// nothing.
package corroborate

import (
	"strings"
	"time"

	"github.com/watchgate/watchgate/internal/country"
	"github.com/watchgate/watchgate/internal/normalize"
)

// dobLayouts are tried in order. Day-first layouts come before month-first
// ones, so "04/05/1980" is the 4th of May.
var dobLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02-01-2006",
	"02/01/2006",
	"20060102",
}

// DOBMatch returns 1.0 when both dates parse and name the same calendar day.
// Either side missing or unparseable is 0.0.
func DOBMatch(query, candidate string) float64 {
	q, ok := parseDOB(query)
	if !ok {
		return 0.0
	}
	c, ok := parseDOB(candidate)
	if !ok {
		return 0.0
	}
	if q.Equal(c) {
		return 1.0
	}
	return 0.0
}

func parseDOB(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range dobLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// CountryMatch returns 1.0 when the query country resolves to a canonical
// country that either appears among the candidate's nationalities or occurs
// as a substring of one of the candidate's normalized addresses. Unresolvable
// query countries and empty candidate context score 0.0.
func CountryMatch(r *country.Resolver, query string, nationalities, addresses []string) float64 {
	canon, ok := r.Canonical(query)
	if !ok {
		return 0.0
	}
	for _, nat := range nationalities {
		if c, ok := r.Canonical(nat); ok && c == canon {
			return 1.0
		}
	}
	for _, addr := range addresses {
		if strings.Contains(normalize.ForMatching(addr), canon) {
			return 1.0
		}
	}
	return 0.0
}

// IDSoftMatch returns 1.0 when a suffix of the query identifier occurs
// inside any candidate identifier, both stripped to uppercase alphanumerics.
// Exactly one suffix length is used: the first of 6, 5, 4 that does not
// exceed the query length. A longer query never falls back to a shorter
// suffix, and ids under 4 alphanumeric characters never soft-match.
func IDSoftMatch(query string, candidateIDs []string) float64 {
	q := alnumUpper(query)
	if len(q) < 4 {
		return 0.0
	}

	cleaned := make([]string, 0, len(candidateIDs))
	for _, id := range candidateIDs {
		if c := alnumUpper(id); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return 0.0
	}

	var suffix string
	for _, n := range []int{6, 5, 4} {
		if len(q) >= n {
			suffix = q[len(q)-n:]
			break
		}
	}
	for _, c := range cleaned {
		if strings.Contains(c, suffix) {
			return 1.0
		}
	}
	return 0.0
}

// alnumUpper keeps ASCII letters and digits, uppercasing the letters.
func alnumUpper(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= 'a' && r <= 'z':
			b.WriteRune(r - ('a' - 'A'))
		}
	}
	return b.String()
}
