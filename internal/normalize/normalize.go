// Package normalize canonicalizes names into a single matching key.
//
// Watchlist sources deliver names with wildly inconsistent encodings: mixed
// Unicode forms, zero-width characters smuggled in from copy-paste, curly
// quotes, diacritics, and arbitrary punctuation. [ForMatching] flattens all
// of that into one deterministic key that is used for lexical comparison and
// indexing everywhere in the engine. The key is never shown to users;
// display always uses the original field values.
//
// ForMatching is total (never fails, empty in → empty out) and idempotent.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// literalEscapes strips zero-width characters that appear as literal
// backslash-u text rather than real control codes. XML and CSV feeds do not
// decode these the way a string literal would, so they survive ingestion as
// six plain ASCII characters.
var literalEscapes = strings.NewReplacer(
	`\u200b`, "", `\u200B`, "",
	`\u200c`, "", `\u200C`, "",
	`\u200d`, "", `\u200D`, "",
	`\ufeff`, "", `\uFEFF`, "",
)

// typographic maps curly quotes and typographic space variants to their
// plain ASCII equivalents before punctuation collapse.
var typographic = strings.NewReplacer(
	"‘", "'", // left single quote
	"’", "'", // right single quote
	"“", `"`, // left double quote
	"”", `"`, // right double quote
	"\u00a0", " ", // no-break space
	"\u3000", " ", // ideographic space
	"\u2003", " ", // em space
	"\u2002", " ", // en space
)

// ForMatching runs the full normalization pipeline:
//
//  1. Unicode NFKC plus removal of zero-width characters
//  2. Removal of literal \uXXXX escape text for the same zero-width set
//  3. Typographic quote/space variants mapped to plain ASCII
//  4. Diacritic stripping (decompose, drop combining marks, recompose)
//  5. Unicode case folding
//  6. Selected punctuation collapsed to spaces, whitespace collapsed, trimmed
//
// The order matters: folding before diacritic stripping would miss marks
// that only appear after decomposition, and punctuation collapse must run
// after the typographic mapping so curly quotes hit the same rules as
// ASCII ones.
func ForMatching(text string) string {
	if text == "" {
		return ""
	}
	t := norm.NFKC.String(text)
	t = strings.Map(dropZeroWidth, t)
	t = literalEscapes.Replace(t)
	t = typographic.Replace(t)
	t = stripDiacritics(t)
	t = cases.Fold().String(t)
	t = strings.Map(punctToSpace, t)
	return strings.Join(strings.Fields(t), " ")
}

// stripDiacritics decomposes to NFKD, drops combining marks, and recomposes
// to NFC. The transform chain is built per call because chained transformers
// carry internal buffers and are not safe for concurrent use.
func stripDiacritics(s string) string {
	chain := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(chain, s)
	if err != nil {
		// Totality over purity: keep the un-stripped text rather than fail.
		return s
	}
	return out
}

// dropZeroWidth removes the zero-width characters that most frequently leak
// into watchlist feeds.
func dropZeroWidth(r rune) rune {
	switch r {
	case '\u200b', // zero width space
		'\u200c', // zero width non-joiner
		'\u200d', // zero width joiner
		'\u2060', // word joiner
		'\ufeff': // BOM / zero width no-break space
		return -1
	}
	return r
}

// punctToSpace maps the defined punctuation set, hyphen-like Unicode runes,
// and any remaining control characters to spaces. The subsequent whitespace
// collapse removes the resulting runs.
func punctToSpace(r rune) rune {
	switch r {
	case '-', '_', '\'', '`', '"', ',', '.', ';', ':',
		'(', ')', '{', '}', '[', ']', '/', '\\':
		return ' '
	case '\u2212', // minus sign
		'\u00b7': // middle dot
		return ' '
	}
	if r >= '\u2010' && r <= '\u2015' { // hyphens and horizontal bars
		return ' '
	}
	if unicode.IsControl(r) {
		return ' '
	}
	return r
}
