package state

import (
	"fmt"
	"sync"

	"github.com/jwebster45206/d20"
)

const (
	criticalFailure = 1
	criticalSuccess = 20
)

// Roller draws a d20 roll in [1, 20].
type Roller interface {
	Roll() int
}

// RandomRoller rolls a d20 with a time-seeded d20.Roller. It is safe for
// concurrent use.
type RandomRoller struct {
	mu     sync.Mutex
	roller *d20.Roller
}

func NewRandomRoller() *RandomRoller {
	return &RandomRoller{roller: d20.NewRandomRoller()}
}

func (r *RandomRoller) Roll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	out, err := r.roller.Dice(1, 20).Roll()
	if err != nil {
		return criticalFailure
	}
	return out.Value
}

// FixedRoller always returns the same roll.
type FixedRoller int

func (f FixedRoller) Roll() int { return int(f) }

// SkillCheckResult records how a check was resolved.
type SkillCheckResult struct {
	Attribute  string `json:"attribute"`
	Difficulty int    `json:"difficulty"`
	Roll       int    `json:"roll"`
	Modifier   int    `json:"modifier"`
	Total      int    `json:"total"`
	Success    bool   `json:"success"`
	Critical   bool   `json:"critical"`
}

// ResolveSkillCheck rolls against the check's difficulty. A natural 1 always
// fails and a natural 20 always succeeds, whatever the arithmetic says.
// The modifier is the effective attribute under its exact name, or 0.
func ResolveSkillCheck(check SkillCheck, effective map[string]int, roller Roller) SkillCheckResult {
	roll := min(max(roller.Roll(), 1), 20)
	mod := effective[check.Attribute]

	res := SkillCheckResult{
		Attribute:  check.Attribute,
		Difficulty: check.Difficulty,
		Roll:       roll,
		Modifier:   mod,
		Total:      roll + mod,
	}
	switch roll {
	case criticalFailure:
		res.Success, res.Critical = false, true
	case criticalSuccess:
		res.Success, res.Critical = true, true
	default:
		res.Success = res.Total >= check.Difficulty
	}
	return res
}

func (r SkillCheckResult) String() string {
	outcome := "failure"
	if r.Success {
		outcome = "success"
	}
	if r.Critical {
		return fmt.Sprintf("Skill check (%s vs %d): natural %d, critical %s.", r.Attribute, r.Difficulty, r.Roll, outcome)
	}
	return fmt.Sprintf("Skill check (%s vs %d): rolled %d %+d = %d, %s.", r.Attribute, r.Difficulty, r.Roll, r.Modifier, r.Total, outcome)
}
