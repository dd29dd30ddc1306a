package textfilter

import (
	"regexp"
	"strings"
)

// mechanicsPrompts match sentences that ask the player to perform game mechanics.
var mechanicsPrompts = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\broll\s+(?:(?:a|an|the|your|some)\s+)?(?:d\d+|dice|die)\b`),
	regexp.MustCompile(`(?i)\broll\s+for\s+[a-z]+`),
	regexp.MustCompile(`(?i)\bmake\s+(?:a|an)\s+[a-z]+\s+(?:check|save|saving throw)\b`),
	regexp.MustCompile(`(?i)\b(?:choose|pick|select)\s+(?:an?\s+|one\s+)?option\b`),
}

var sentenceRe = regexp.MustCompile(`[^.!?\n]*[.!?]+["”']?\s*|[^.!?\n]+\s*|\n+`)

// StripMechanicsPrompts removes sentences that ask the player to roll dice or
// make mechanical choices. Outcomes such as "your roll fails" are kept.
func StripMechanicsPrompts(text string) string {
	var sb strings.Builder
	for _, sentence := range sentenceRe.FindAllString(text, -1) {
		if isMechanicsPrompt(sentence) {
			continue
		}
		sb.WriteString(sentence)
	}
	return strings.TrimSpace(sb.String())
}

func isMechanicsPrompt(sentence string) bool {
	for _, re := range mechanicsPrompts {
		if re.MatchString(sentence) {
			return true
		}
	}
	return false
}
