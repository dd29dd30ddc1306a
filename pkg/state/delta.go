package state

// SkillOperation is the kind of change applied to a skill.
type SkillOperation string

const (
	SkillLearn       SkillOperation = "learn"
	SkillForget      SkillOperation = "forget"
	SkillImprove     SkillOperation = "improve"
	SkillDeteriorate SkillOperation = "deteriorate"
)

// ItemChange adds (positive) or removes (negative) a quantity of an item.
type ItemChange struct {
	Item     string `json:"item"`
	Quantity int    `json:"quantity"`
}

// AttributeChange adjusts a base attribute by a signed amount.
type AttributeChange struct {
	Attribute string `json:"attribute"`
	Delta     int    `json:"delta"`
}

// SkillChange learns, forgets, improves or deteriorates a skill.
type SkillChange struct {
	Skill     string         `json:"skill"`
	Operation SkillOperation `json:"operation"`
	Value     *int           `json:"value,omitempty"`
}

// FlagUpdate sets a story flag.
type FlagUpdate struct {
	Flag  string    `json:"flag"`
	Value FlagValue `json:"value"`
}

// SkillCheck asks for a d20 roll against a difficulty.
// Only intent parsing produces one.
type SkillCheck struct {
	Attribute    string `json:"attribute"`
	Difficulty   int    `json:"difficulty"`
	RequiresRoll bool   `json:"requires_roll"`
}

// Delta is a set of proposed changes produced by one narration call.
// A Delta is consumed immediately and never persisted.
type Delta struct {
	ItemChanges      []ItemChange      `json:"item_changes,omitempty"`
	AttributeChanges []AttributeChange `json:"attribute_changes,omitempty"`
	SkillChanges     []SkillChange     `json:"skill_changes,omitempty"`
	Location         *string           `json:"location,omitempty"`
	FlagUpdates      []FlagUpdate      `json:"flag_updates,omitempty"`
	SkillCheck       *SkillCheck       `json:"skill_check,omitempty"`
}

// IsEmpty reports whether the delta proposes no changes at all.
func (d *Delta) IsEmpty() bool {
	return d == nil || (len(d.ItemChanges) == 0 &&
		len(d.AttributeChanges) == 0 &&
		len(d.SkillChanges) == 0 &&
		(d.Location == nil || *d.Location == "") &&
		len(d.FlagUpdates) == 0 &&
		(d.SkillCheck == nil || !d.SkillCheck.RequiresRoll))
}
