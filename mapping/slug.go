package mapping

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// mis-decoded UTF-8 seen in thesaurus names
var encodingRepairs = strings.NewReplacer(
	"Ã¶", "ö",
	"Ã³", "ó",
	"Ã©", "é",
	"Ã¨", "è",
	"Ã¤", "ä",
	"Ã¼", "ü",
	"Ã±", "ñ",
)

// letters NFKD leaves whole
var transliterations = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae",
	"Æ", "AE",
	"œ", "oe",
	"Œ", "OE",
	"ø", "o",
	"Ø", "O",
	"ł", "l",
	"Ł", "L",
)

var symbolWords = strings.NewReplacer(
	"%", "pct",
	"μ", "u",
	"β", "b",
	"α", "a",
)

var (
	strippedChars = regexp.MustCompile(`[",+().'’‘“”\[\]：:*\\]`)
	// \s only matches ASCII whitespace; \p{Z} and U+0085 cover the rest
	separators   = regexp.MustCompile(`[\s\p{Z}\x{85};_&–—/-]+`)
	nonSlugChars = regexp.MustCompile(`[^a-z0-9-]`)
	hyphenRuns   = regexp.MustCompile(`-{2,}`)

	// SlugPattern is the character class every published URL must match.
	SlugPattern = regexp.MustCompile(`^[a-z0-9-]+$`)
)

// FriendlyURL derives the URL slug for a display name.
func FriendlyURL(name string) string {
	s := encodingRepairs.Replace(name)
	// ª would otherwise fold to a
	s = strings.Replace(s, "ª", "", -1)
	s = stripDiacritics(s)
	s = strings.ToLower(s)
	s = strippedChars.ReplaceAllString(s, "")
	s = separators.ReplaceAllString(s, "-")
	s = symbolWords.Replace(s)
	s = nonSlugChars.ReplaceAllString(s, "")
	s = hyphenRuns.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// stripDiacritics folds compatibility forms (fullwidth, superscripts, ligatures)
// to their plain letters and drops combining marks.
func stripDiacritics(s string) string {
	t := transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		out = s
	}
	return transliterations.Replace(out)
}
