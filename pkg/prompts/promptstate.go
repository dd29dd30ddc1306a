package prompts

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"

	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
)

// PromptState is the compact game state summary sent to the backend model.
type PromptState struct {
	Scenario       string                     `json:"scenario"`
	Character      string                     `json:"character"`
	Location       string                     `json:"location"`
	Attributes     map[string]int             `json:"attributes"`                // Effective values
	ScenarioSkills map[string]string          `json:"scenario_skills,omitempty"` // Skill -> governing attribute
	Inventory      []state.Item               `json:"inventory"`
	Skills         []PromptSkill              `json:"skills"`
	Flags          map[string]state.FlagValue `json:"flags"`
}

// PromptSkill is a learned skill as shown to the model.
type PromptSkill struct {
	Name  string `json:"name"`
	Level int    `json:"level"`
}

// ToPromptState summarizes a game state with the given effective attributes.
func ToPromptState(gs *state.GameState, scen *scenario.Scenario, effective map[string]int) *PromptState {
	ps := &PromptState{
		Character:  gs.CharacterName,
		Location:   gs.Location,
		Attributes: maps.Clone(effective),
		Inventory:  slices.Clone(gs.Inventory),
		Skills:     make([]PromptSkill, 0, len(gs.Skills)),
		Flags:      maps.Clone(gs.Flags),
	}
	if ps.Attributes == nil {
		ps.Attributes = map[string]int{}
	}
	if ps.Inventory == nil {
		ps.Inventory = []state.Item{}
	}
	if ps.Flags == nil {
		ps.Flags = map[string]state.FlagValue{}
	}
	for _, s := range gs.Skills {
		ps.Skills = append(ps.Skills, PromptSkill{Name: s.Name, Level: s.LevelOrZero()})
	}

	if scen != nil {
		ps.Scenario = scen.Name
		if len(scen.Skills) > 0 {
			ps.ScenarioSkills = make(map[string]string, len(scen.Skills))
			for name, skill := range scen.Skills {
				ps.ScenarioSkills[name] = skill.Attribute
			}
		}
	} else {
		ps.Scenario = gs.ScenarioName
	}
	return ps
}

// ToString renders the summary as indented JSON.
func (ps *PromptState) ToString() (string, error) {
	data, err := json.MarshalIndent(ps, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal prompt state: %w", err)
	}
	return string(data), nil
}
