// Package textfilter cleans narrator output before it is shown to the player.
package textfilter

import "strings"

// Filter applies the narrative clean-up rules for a content rating.
type Filter struct {
	profanity *ProfanityFilter
}

// New creates a filter.
func New() *Filter {
	return &Filter{profanity: NewProfanityFilter()}
}

// Clean strips mechanics prompts from text and softens profanity when the
// rating calls for it. If stripping would remove everything the original
// text is kept.
func (f *Filter) Clean(text, rating string) string {
	out := StripMechanicsPrompts(text)
	if out == "" {
		out = strings.TrimSpace(text)
	}
	if ShouldFilterContent(rating) {
		out = f.profanity.FilterText(out)
	}
	return out
}

// ShouldFilterContent reports whether profanity is softened for a rating.
func ShouldFilterContent(rating string) bool {
	switch strings.ToUpper(strings.TrimSpace(rating)) {
	case "G", "PG", "PG13", "PG-13", "":
		return true
	default:
		return false
	}
}
