package state

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jwebster45206/roleplay-agent/pkg/scenario"
)

// DefaultAttributeValue is the starting base value of every scenario attribute.
const DefaultAttributeValue = 5

// Speaker identifies who produced a dialogue entry.
type Speaker string

const (
	SpeakerPlayer   Speaker = "player"
	SpeakerNarrator Speaker = "narrator"
)

// DialogueEntry is one line of the session's conversation.
type DialogueEntry struct {
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Item is an inventory entry. Quantity is always positive.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// Skill is a learned skill. Names are unique within a character.
type Skill struct {
	Name        string `json:"name"`
	Level       *int   `json:"level,omitempty"`
	Description string `json:"description,omitempty"`
}

// LevelOrZero returns the skill level, treating a missing level as 0.
func (s Skill) LevelOrZero() int {
	if s.Level == nil {
		return 0
	}
	return *s.Level
}

// GameState is the persisted document of one game session.
// Effective attributes are derived on demand and never stored here.
type GameState struct {
	ID             uuid.UUID            `json:"id"`
	OwnerID        string               `json:"owner_id"`
	ScenarioID     string               `json:"scenario_id"`
	ScenarioName   string               `json:"scenario_name"` // Cached display name
	CharacterName  string               `json:"character_name"`
	BaseAttributes map[string]int       `json:"base_attributes"`
	Selections     map[string]string    `json:"selections"` // Category -> chosen option
	Location       string               `json:"location"`
	Inventory      []Item               `json:"inventory"`
	Skills         []Skill              `json:"skills"`
	Flags          map[string]FlagValue `json:"flags"`
	History        []DialogueEntry      `json:"history"`
	IsActive       bool                 `json:"is_active"`
	Turn           int                  `json:"turn"` // Completed turns, including degraded ones
	CreatedAt      time.Time            `json:"created_at"`
	UpdatedAt      time.Time            `json:"updated_at"`
}

// NewGameState creates the initial state of a character in a scenario.
func NewGameState(ownerID, characterName string, scen *scenario.Scenario) *GameState {
	now := time.Now().UTC()
	gs := &GameState{
		ID:             uuid.New(),
		OwnerID:        ownerID,
		CharacterName:  characterName,
		BaseAttributes: make(map[string]int),
		Selections:     make(map[string]string),
		Inventory:      make([]Item, 0),
		Skills:         make([]Skill, 0),
		Flags:          make(map[string]FlagValue),
		History:        make([]DialogueEntry, 0, 1),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if scen == nil {
		return gs
	}

	gs.ScenarioID = scen.ID
	gs.ScenarioName = scen.Name
	gs.Location = scen.StartingLocation
	for _, attr := range scen.AttributeNames() {
		gs.BaseAttributes[attr] = DefaultAttributeValue
	}
	gs.Selections = scen.DefaultSelections()
	if scen.OpeningPrompt != "" {
		gs.History = append(gs.History, DialogueEntry{
			Speaker:   SpeakerNarrator,
			Text:      scen.OpeningPrompt,
			Timestamp: now,
		})
	}
	return gs
}

// EffectiveAttributes resolves base attributes and selections against the scenario.
func (gs *GameState) EffectiveAttributes(scen *scenario.Scenario) map[string]int {
	return ResolveAttributes(gs.BaseAttributes, gs.Selections, scen)
}

// AppendPlayer records the player's action in history.
func (gs *GameState) AppendPlayer(text string) {
	gs.appendEntry(SpeakerPlayer, text)
}

// AppendNarrator records a narrator response in history.
func (gs *GameState) AppendNarrator(text string) {
	gs.appendEntry(SpeakerNarrator, text)
}

func (gs *GameState) appendEntry(speaker Speaker, text string) {
	gs.History = append(gs.History, DialogueEntry{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Now().UTC(),
	})
}

// HasPlayed reports whether the player has taken at least one turn.
func (gs *GameState) HasPlayed() bool {
	return slices.ContainsFunc(gs.History, func(e DialogueEntry) bool {
		return e.Speaker == SpeakerPlayer
	})
}

// LastNarration returns the most recent narrator entry, if any.
func (gs *GameState) LastNarration() (DialogueEntry, bool) {
	for i := len(gs.History) - 1; i >= 0; i-- {
		if gs.History[i].Speaker == SpeakerNarrator {
			return gs.History[i], true
		}
	}
	return DialogueEntry{}, false
}

// RecentHistory returns at most limit entries from the end of history.
// A limit of zero or less returns the whole history.
func (gs *GameState) RecentHistory(limit int) []DialogueEntry {
	if limit <= 0 || len(gs.History) <= limit {
		return gs.History
	}
	return gs.History[len(gs.History)-limit:]
}

func (gs *GameState) itemIndex(name string) int {
	return slices.IndexFunc(gs.Inventory, func(it Item) bool { return it.Name == name })
}

func (gs *GameState) skillIndex(name string) int {
	return slices.IndexFunc(gs.Skills, func(s Skill) bool { return s.Name == name })
}

// ItemQuantity returns how many of an item the character carries.
func (gs *GameState) ItemQuantity(name string) int {
	if i := gs.itemIndex(name); i >= 0 {
		return gs.Inventory[i].Quantity
	}
	return 0
}

// Skill returns a skill by name.
func (gs *GameState) Skill(name string) (Skill, bool) {
	if i := gs.skillIndex(name); i >= 0 {
		return gs.Skills[i], true
	}
	return Skill{}, false
}
