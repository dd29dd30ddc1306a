package textfilter

import (
	"cmp"
	"regexp"
	"slices"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// softenings maps profanity to a milder word. Matching is case-insensitive
// and on whole words only.
var softenings = map[string]string{
	"fuck":         "fudge",
	"fucking":      "flipping",
	"motherfucker": "mother-trucker",
	"shit":         "shoot",
	"bullshit":     "baloney",
	"horseshit":    "nonsense",
	"shithead":     "jerk",
	"dipshit":      "dummy",
	"damn":         "dang",
	"goddamn":      "gosh-dang",
	"hell":         "heck",
	"ass":          "butt",
	"asshole":      "jerk",
	"dumbass":      "dummy",
	"jackass":      "jerk",
	"smartass":     "smarty",
	"bitch":        "jerk",
	"bastard":      "scoundrel",
	"crap":         "crud",
	"piss":         "ticked",
	"pissed":       "ticked",
	"dick":         "jerk",
	"dickhead":     "jerk",
	"prick":        "jerk",
	"douche":       "jerk",
	"douchebag":    "jerk",
	"whore":        "[censored]",
	"slut":         "[censored]",
}

// ProfanityFilter replaces profanity with family-friendly alternatives.
type ProfanityFilter struct {
	re *regexp.Regexp
}

// NewProfanityFilter compiles a single alternation over all known words,
// longest first so compound words win over their parts.
func NewProfanityFilter() *ProfanityFilter {
	words := make([]string, 0, len(softenings))
	for w := range softenings {
		words = append(words, regexp.QuoteMeta(w))
	}
	slices.SortFunc(words, func(a, b string) int {
		return cmp.Or(cmp.Compare(len(b), len(a)), strings.Compare(a, b))
	})
	return &ProfanityFilter{
		re: regexp.MustCompile(`(?i)\b(?:` + strings.Join(words, "|") + `)\b`),
	}
}

// FilterText replaces profanity in text, keeping the case pattern of each match.
func (pf *ProfanityFilter) FilterText(text string) string {
	return pf.re.ReplaceAllStringFunc(text, func(match string) string {
		return preserveCase(match, softenings[strings.ToLower(match)])
	})
}

// ContainsProfanity reports whether text contains any known profanity.
func (pf *ProfanityFilter) ContainsProfanity(text string) bool {
	return pf.re.MatchString(text)
}

// preserveCase applies the case pattern of original to replacement.
func preserveCase(original, replacement string) string {
	switch {
	case original == "":
		return replacement
	case strings.ToUpper(original) == original:
		return strings.ToUpper(replacement)
	case strings.ToLower(original) == original:
		return replacement
	}

	title := cases.Title(language.English)
	if title.String(strings.ToLower(original)) == original {
		return title.String(replacement)
	}

	// Mixed case: copy the case rune by rune, lowercasing any overflow.
	orig := []rune(original)
	out := []rune(replacement)
	for i, r := range out {
		if i < len(orig) && unicode.IsUpper(orig[i]) {
			out[i] = unicode.ToUpper(r)
		} else {
			out[i] = unicode.ToLower(r)
		}
	}
	return string(out)
}
