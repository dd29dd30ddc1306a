package state

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
)

// Base attribute limits for character edits.
const (
	MinAttributeValue = 0
	MaxAttributeValue = 20
)

// ErrCharacterLocked is returned when a character is edited after play started.
var ErrCharacterLocked = errors.New("character can no longer be edited")

// CharacterEdit carries the fields a player may set before their first turn.
// Nil fields are left unchanged.
type CharacterEdit struct {
	CharacterName  *string           `json:"character_name,omitempty"`
	BaseAttributes map[string]int    `json:"base_attributes,omitempty"`
	Selections     map[string]string `json:"selections,omitempty"`
}

// ApplyCharacterEdit validates an edit against the scenario and applies it.
// Nothing is changed when validation fails.
func (gs *GameState) ApplyCharacterEdit(edit CharacterEdit, scen *scenario.Scenario) error {
	if gs.HasPlayed() {
		return ErrCharacterLocked
	}

	var problems []string
	var name string
	if edit.CharacterName != nil {
		name = strings.TrimSpace(*edit.CharacterName)
		if name == "" {
			problems = append(problems, "character name cannot be empty")
		}
	}
	for attr, v := range edit.BaseAttributes {
		if !scen.HasAttribute(attr) {
			problems = append(problems, fmt.Sprintf("unknown attribute %q", attr))
			continue
		}
		if v < MinAttributeValue || v > MaxAttributeValue {
			problems = append(problems, fmt.Sprintf("attribute %q must be between %d and %d", attr, MinAttributeValue, MaxAttributeValue))
		}
	}
	for category, option := range edit.Selections {
		if _, ok := scen.Bonuses(category, option); !ok {
			problems = append(problems, fmt.Sprintf("unknown option %q for %q", option, category))
		}
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid character: %s", strings.Join(problems, "; "))
	}

	if edit.CharacterName != nil {
		gs.CharacterName = name
	}
	if gs.BaseAttributes == nil {
		gs.BaseAttributes = make(map[string]int)
	}
	for attr, v := range edit.BaseAttributes {
		gs.BaseAttributes[attr] = v
	}
	if gs.Selections == nil {
		gs.Selections = make(map[string]string)
	}
	for category, option := range edit.Selections {
		gs.Selections[category] = option
	}
	return nil
}
