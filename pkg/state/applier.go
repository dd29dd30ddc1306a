package state

import (
	"fmt"
	"log/slog"
	"slices"
	"strings"
)

// Applier merges a Delta into a GameState.
// Every step is best-effort: malformed entries are logged and skipped.
type Applier struct {
	gs         *GameState
	delta      *Delta
	effective  map[string]int
	logger     *slog.Logger
	roller     Roller
	skipChecks bool
	lines      []string
	check      *SkillCheckResult
}

// NewApplier creates an applier. effective holds the effective attributes at
// the time of the call and is only read by the skill check.
func NewApplier(gs *GameState, delta *Delta, effective map[string]int, logger *slog.Logger) *Applier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Applier{
		gs:        gs,
		delta:     delta,
		effective: effective,
		logger:    logger,
		roller:    NewRandomRoller(),
	}
}

// WithRoller replaces the d20 roller.
func (a *Applier) WithRoller(r Roller) *Applier {
	if r != nil {
		a.roller = r
	}
	return a
}

// WithoutSkillCheck ignores any skill check in the delta. Deltas extracted
// from narrative never resolve checks.
func (a *Applier) WithoutSkillCheck() *Applier {
	a.skipChecks = true
	return a
}

// SkillCheck returns the resolved check, or nil if none was rolled.
func (a *Applier) SkillCheck() *SkillCheckResult {
	return a.check
}

// Apply mutates the game state and returns a summary of what changed,
// one line per change. An empty delta returns an empty summary.
func (a *Applier) Apply() string {
	a.lines = a.lines[:0]
	if a.gs == nil || a.delta == nil {
		return ""
	}

	a.applyItems()
	a.applyAttributes()
	a.applySkills()
	a.applyLocation()
	a.applyFlags()
	if !a.skipChecks {
		a.applySkillCheck()
	}

	return strings.Join(a.lines, "\n")
}

func (a *Applier) note(format string, args ...any) {
	a.lines = append(a.lines, fmt.Sprintf(format, args...))
}

func (a *Applier) applyItems() {
	if len(a.delta.ItemChanges) == 0 {
		return
	}
	for _, change := range a.delta.ItemChanges {
		name := strings.TrimSpace(change.Item)
		if name == "" || change.Quantity == 0 {
			a.logger.Debug("Skipping item change", "item", change.Item, "quantity", change.Quantity)
			continue
		}

		idx := a.gs.itemIndex(name)
		switch {
		case idx >= 0:
			a.gs.Inventory[idx].Quantity += change.Quantity
			if a.gs.Inventory[idx].Quantity <= 0 {
				a.gs.Inventory = slices.Delete(a.gs.Inventory, idx, idx+1)
				a.note("No longer carrying %s.", name)
			} else if change.Quantity > 0 {
				a.note("Gained %d %s (now %d).", change.Quantity, name, a.gs.Inventory[idx].Quantity)
			} else {
				a.note("Lost %d %s (now %d).", -change.Quantity, name, a.gs.Inventory[idx].Quantity)
			}
		case change.Quantity > 0:
			a.gs.Inventory = append(a.gs.Inventory, Item{Name: name, Quantity: change.Quantity})
			a.note("Gained %d %s.", change.Quantity, name)
		default:
			a.logger.Debug("Ignoring removal of item not carried", "item", name)
		}
	}

	// Entries loaded from an older document may already be non-positive.
	a.gs.Inventory = slices.DeleteFunc(a.gs.Inventory, func(it Item) bool { return it.Quantity <= 0 })
}

func (a *Applier) applyAttributes() {
	for _, change := range a.delta.AttributeChanges {
		name := strings.TrimSpace(change.Attribute)
		if name == "" || change.Delta == 0 {
			continue
		}
		if a.gs.BaseAttributes == nil {
			a.gs.BaseAttributes = make(map[string]int)
		}
		if _, ok := a.gs.BaseAttributes[name]; !ok {
			a.logger.Warn("Delta creates unknown attribute", "attribute", name, "delta", change.Delta)
		}
		a.gs.BaseAttributes[name] += change.Delta
		a.note("%s %+d (base now %d).", name, change.Delta, a.gs.BaseAttributes[name])
	}
}

func (a *Applier) applySkills() {
	for _, change := range a.delta.SkillChanges {
		name := strings.TrimSpace(change.Skill)
		if name == "" {
			continue
		}
		idx := a.gs.skillIndex(name)

		switch change.Operation {
		case SkillLearn:
			if idx >= 0 {
				a.logger.Debug("Skill already known", "skill", name)
				continue
			}
			level := 1
			if change.Value != nil {
				level = max(*change.Value, 0)
			}
			a.gs.Skills = append(a.gs.Skills, Skill{Name: name, Level: &level})
			a.note("Learned %s (level %d).", name, level)

		case SkillImprove:
			if idx < 0 {
				a.logger.Debug("Cannot improve unknown skill", "skill", name)
				continue
			}
			level := max(a.gs.Skills[idx].LevelOrZero()+valueOrOne(change.Value), 0)
			a.gs.Skills[idx].Level = &level
			a.note("%s improved to level %d.", name, level)

		case SkillDeteriorate:
			if idx < 0 {
				a.logger.Debug("Cannot deteriorate unknown skill", "skill", name)
				continue
			}
			level := max(a.gs.Skills[idx].LevelOrZero()-valueOrOne(change.Value), 0)
			a.gs.Skills[idx].Level = &level
			a.note("%s deteriorated to level %d.", name, level)

		case SkillForget:
			if idx < 0 {
				continue
			}
			a.gs.Skills = slices.Delete(a.gs.Skills, idx, idx+1)
			a.note("Forgot %s.", name)

		default:
			a.logger.Warn("Unknown skill operation", "skill", name, "operation", change.Operation)
		}
	}
}

func valueOrOne(v *int) int {
	if v == nil {
		return 1
	}
	return *v
}

func (a *Applier) applyLocation() {
	if a.delta.Location == nil {
		return
	}
	// Blank locations are ignored.
	loc := strings.TrimSpace(*a.delta.Location)
	if loc == "" || loc == a.gs.Location {
		return
	}
	a.logger.Info("Location changed", "from", a.gs.Location, "to", loc)
	a.gs.Location = loc
	a.note("Moved to %s.", loc)
}

func (a *Applier) applyFlags() {
	for _, update := range a.delta.FlagUpdates {
		name := strings.TrimSpace(update.Flag)
		if name == "" || !update.Value.IsValid() {
			a.logger.Debug("Skipping flag update", "flag", update.Flag)
			continue
		}
		if a.gs.Flags == nil {
			a.gs.Flags = make(map[string]FlagValue)
		}
		a.gs.Flags[name] = update.Value
		a.note("Flag %s set to %s.", name, update.Value)
	}
}

func (a *Applier) applySkillCheck() {
	check := a.delta.SkillCheck
	if check == nil || !check.RequiresRoll || strings.TrimSpace(check.Attribute) == "" {
		return
	}

	res := ResolveSkillCheck(*check, a.effective, a.roller)
	a.check = &res
	a.logger.Info("Skill check resolved",
		"attribute", res.Attribute,
		"difficulty", res.Difficulty,
		"roll", res.Roll,
		"modifier", res.Modifier,
		"success", res.Success)
	a.lines = append(a.lines, res.String())
}
