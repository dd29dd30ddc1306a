package state

import (
	"maps"

	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
)

// ResolveAttributes combines base attributes with the bonuses of the selected
// customization options. Selections whose category or option the scenario does
// not define are ignored. The inputs are never modified.
func ResolveAttributes(base map[string]int, selections map[string]string, scen *scenario.Scenario) map[string]int {
	effective := make(map[string]int, len(base))
	maps.Copy(effective, base)
	if scen == nil {
		return effective
	}

	for category, option := range selections {
		bonuses, ok := scen.Bonuses(category, option)
		if !ok {
			continue
		}
		for attr, bonus := range bonuses {
			effective[attr] += bonus
		}
	}
	return effective
}
