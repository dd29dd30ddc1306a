package scenario

import (
	"fmt"
	"slices"
	"strings"
)

// Content ratings understood by the narrator prompts.
const (
	RatingG    = "G"
	RatingPG   = "PG"
	RatingPG13 = "PG13"
	RatingR    = "R"
)

// Skill describes a scenario skill and the attribute that governs its checks.
type Skill struct {
	Attribute   string `json:"attribute"`             // Governing attribute name
	Description string `json:"description,omitempty"` // Shown to the player and the narrator
}

// Option is one selectable choice within a customization category.
type Option struct {
	Description string         `json:"description,omitempty"`
	Bonuses     map[string]int `json:"bonuses,omitempty"` // Attribute name -> bonus
}

// Customization is a category of character choices, e.g. "background" or "species".
type Customization struct {
	Description string            `json:"description,omitempty"`
	Options     map[string]Option `json:"options"`
}

// Scenario is the static template for a roleplay game session.
type Scenario struct {
	ID               string                   `json:"id"`                    // Catalog key, defaults to the file name
	Name             string                   `json:"name"`                  // Display name
	Description      string                   `json:"description,omitempty"` // Brief summary of the setting
	Rating           string                   `json:"rating,omitempty"`      // Content rating, defaults to PG13
	Attributes       map[string]string        `json:"attributes"`            // Attribute name -> description
	Skills           map[string]Skill         `json:"skills,omitempty"`      // Skill name -> definition
	StartingLocation string                   `json:"starting_location"`
	OpeningPrompt    string                   `json:"opening_prompt"` // First narrator entry of every session
	Customizations   map[string]Customization `json:"customizations,omitempty"`
}

// AttributeNames returns the scenario's attribute names in sorted order.
func (s *Scenario) AttributeNames() []string {
	return sortedKeys(s.Attributes)
}

// CategoryNames returns the customization categories in sorted order.
func (s *Scenario) CategoryNames() []string {
	return sortedKeys(s.Customizations)
}

// OptionNames returns the options of a category in sorted order.
// An unknown category yields nil.
func (s *Scenario) OptionNames(category string) []string {
	c, ok := s.Customizations[category]
	if !ok {
		return nil
	}
	return sortedKeys(c.Options)
}

// DefaultSelections picks the first option, by sorted key, of every category.
func (s *Scenario) DefaultSelections() map[string]string {
	selections := make(map[string]string, len(s.Customizations))
	for _, category := range s.CategoryNames() {
		if options := s.OptionNames(category); len(options) > 0 {
			selections[category] = options[0]
		}
	}
	return selections
}

// Bonuses returns the attribute bonuses of a selected option.
// The second return is false when the category or option is unknown.
func (s *Scenario) Bonuses(category, option string) (map[string]int, bool) {
	c, ok := s.Customizations[category]
	if !ok {
		return nil, false
	}
	o, ok := c.Options[option]
	if !ok {
		return nil, false
	}
	return o.Bonuses, true
}

// HasAttribute reports whether the attribute is defined by the scenario.
func (s *Scenario) HasAttribute(name string) bool {
	_, ok := s.Attributes[name]
	return ok
}

// GetRating returns the content rating, defaulting to PG13.
func (s *Scenario) GetRating() string {
	r := strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s.Rating), "-", ""))
	switch r {
	case RatingG, RatingPG, RatingPG13, RatingR:
		return r
	default:
		return RatingPG13
	}
}

// Validate checks the internal references of a scenario.
// It returns every problem found, not only the first.
func (s *Scenario) Validate() []error {
	var errs []error
	if strings.TrimSpace(s.Name) == "" {
		errs = append(errs, fmt.Errorf("name is required"))
	}
	if len(s.Attributes) == 0 {
		errs = append(errs, fmt.Errorf("at least one attribute is required"))
	}
	for _, name := range sortedKeys(s.Skills) {
		skill := s.Skills[name]
		if !s.HasAttribute(skill.Attribute) {
			errs = append(errs, fmt.Errorf("skill %q references unknown attribute %q", name, skill.Attribute))
		}
	}
	for _, category := range s.CategoryNames() {
		options := s.Customizations[category].Options
		if len(options) == 0 {
			errs = append(errs, fmt.Errorf("customization %q has no options", category))
			continue
		}
		for _, option := range sortedKeys(options) {
			for _, attr := range sortedKeys(options[option].Bonuses) {
				if !s.HasAttribute(attr) {
					errs = append(errs, fmt.Errorf("option %s/%s grants bonus to unknown attribute %q", category, option, attr))
				}
			}
		}
	}
	return errs
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
