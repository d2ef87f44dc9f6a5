package dict

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Entry is one line of the dictionary file.
type Entry struct {
	Acronym    string `json:"acronym"`
	Definition string `json:"definition"`
}

// Delimiter separates the acronym from its definition on a line.
const Delimiter = "\t"

var dottedRe = regexp.MustCompile(`[A-Z]\.`)

// NormalizeAcronym maps user input to an index key: upper-cased, with all
// periods removed when the input looks dotted ("u.s.a." -> "USA").
// Input without a letter-period pair keeps its periods.
func NormalizeAcronym(s string) string {
	key := cases.Upper(language.Und).String(s)
	if dottedRe.MatchString(key) {
		key = strings.ReplaceAll(key, ".", "")
	}
	return key
}

// ParseLine splits a dictionary line at its first tab. ok is false when the
// line carries no tab.
func ParseLine(line string) (Entry, bool) {
	acronym, def, ok := strings.Cut(line, Delimiter)
	if !ok {
		return Entry{}, false
	}
	return Entry{Acronym: acronym, Definition: def}, true
}
