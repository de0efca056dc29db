package frame

import (
	"regexp"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	specialChars    = regexp.MustCompile(`[^a-zA-Z0-9_\s]`)
	whitespaceRuns  = regexp.MustCompile(`\s`)
	underscoreRuns  = regexp.MustCompile(`_+`)
	foldTransformer = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// CleanColumn scrubs a single column name: diacritics are folded to their
// base letters, characters outside [A-Za-z0-9_ and whitespace] are removed,
// whitespace becomes underscores, and underscore runs collapse.
func CleanColumn(name string) string {
	folded, _, err := transform.String(foldTransformer, name)
	if err != nil {
		folded = name
	}
	noSpecial := specialChars.ReplaceAllString(folded, "")
	noSpaces := whitespaceRuns.ReplaceAllString(noSpecial, "_")
	return underscoreRuns.ReplaceAllString(noSpaces, "_")
}

// CleanColumns scrubs a list of column names.
func CleanColumns(names []string) []string {
	out := make([]string, len(names))
	for i, name := range names {
		out[i] = CleanColumn(name)
	}
	return out
}
