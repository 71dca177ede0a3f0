// Package normalize produces canonical search keys and display strings for
// song metadata scraped from Textage.
//
// Search-key normalization is a fixed, ordered pipeline. Every key stored in
// music.title_search_key was produced by this exact pipeline, so changing the
// substitution table or the step order is a breaking change to all previously
// published artifacts and requires a schema version bump.
package normalize

import (
	"html"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	tagRE = regexp.MustCompile(`<[^>]+>`)

	// \s alone is ASCII-only in RE2; Textage titles carry U+3000 ideographic
	// spaces and the occasional U+00A0, which must collapse like ASCII runs.
	spaceRE = regexp.MustCompile(`[\s\p{Zs}]+`)
)

// searchKeyReplacements maps accented and specialty Latin letters to their
// base-Latin equivalents. Applied before NFD decomposition so multi-character
// expansions (ß, æ, œ) survive; single-accent entries keep the table
// authoritative even if the decomposition step changes.
//
// Search compatibility depends on this table; it is managed in this one place.
var searchKeyReplacements = []struct {
	from string
	to   string
}{
	{"ä", "a"},
	{"ö", "o"},
	{"ü", "u"},
	{"ß", "ss"},
	{"æ", "ae"},
	{"œ", "oe"},
	{"ø", "o"},
	{"å", "a"},
	{"ç", "c"},
	{"ñ", "n"},
	{"á", "a"},
	{"à", "a"},
	{"â", "a"},
	{"ã", "a"},
	{"é", "e"},
	{"è", "e"},
	{"ê", "e"},
	{"ë", "e"},
	{"í", "i"},
	{"ì", "i"},
	{"î", "i"},
	{"ï", "i"},
	{"ó", "o"},
	{"ò", "o"},
	{"ô", "o"},
	{"õ", "o"},
	{"ú", "u"},
	{"ù", "u"},
	{"û", "u"},
	{"ý", "y"},
	{"ÿ", "y"},
}

// stripMarks decomposes to NFD and removes all combining marks.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))

// SearchKey normalizes a display title into its canonical search key.
//
// Pipeline (order is frozen):
//  1. lowercase
//  2. trim leading/trailing whitespace
//  3. static substitution table
//  4. NFD decomposition + removal of combining marks
//  5. collapse whitespace runs to a single space
//
// The pipeline is idempotent: SearchKey(SearchKey(s)) == SearchKey(s).
func SearchKey(title string) string {
	value := strings.ToLower(title)
	value = strings.TrimSpace(value)

	for _, r := range searchKeyReplacements {
		value = strings.ReplaceAll(value, r.from, r.to)
	}

	stripped, _, err := transform.String(stripMarks, value)
	if err == nil {
		value = stripped
	}

	// Mark removal can expose new edge whitespace, so trim again after the
	// collapse to keep the pipeline idempotent for every input.
	value = spaceRE.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}

// Display cleans a raw Textage-provided text field (title, artist, genre)
// for storage: decode HTML entities, strip markup tags, collapse whitespace,
// trim.
func Display(s string) string {
	value := html.UnescapeString(s)
	value = tagRE.ReplaceAllString(value, "")
	value = spaceRE.ReplaceAllString(value, " ")
	return strings.TrimSpace(value)
}
