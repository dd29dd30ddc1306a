package runner

import (
	"time"

	"github.com/google/uuid"
)

// Special action values that trigger non-turn steps
const (
	// NewCharacterAction replaces the session with a fresh one built from the suite seed.
	NewCharacterAction = "NEW_CHARACTER"
)

// TestSuite defines a complete integration test scenario
// Can either be a regular test with Steps, or a suite that references other Cases
type TestSuite struct {
	Name     string     `json:"name"`
	Scenario string     `json:"scenario,omitempty"` // Scenario id, used for regular tests
	Seed     Seed       `json:"seed,omitempty"`     // Character creation options
	Steps    []TestStep `json:"steps,omitempty"`    // Used for regular tests
	Cases    []string   `json:"cases,omitempty"`    // Used for suite tests (list of case files)
}

// Seed is the character a suite plays.
type Seed struct {
	CharacterName  string            `json:"character_name,omitempty"`
	BaseAttributes map[string]int    `json:"base_attributes,omitempty"`
	Selections     map[string]string `json:"selections,omitempty"`
}

// IsSequence returns true if this is a suite that sequences other cases
func (ts *TestSuite) IsSequence() bool {
	return len(ts.Cases) > 0
}

// TestStep defines a single player action and its expected outcomes
// Use action: "NEW_CHARACTER" to start over from the seed
type TestStep struct {
	Name         string       `json:"name,omitempty"`
	Action       string       `json:"action"`
	Expectations Expectations `json:"expect"`
}

// Expectations defines what to check after a test step executes
type Expectations struct {
	// Session properties, aligned with pkg/state/gamestate.go
	Location   *string           `json:"location,omitempty"`
	Inventory  map[string]int    `json:"inventory,omitempty"`  // Listed items only; 0 means absent
	Skills     []string          `json:"skills,omitempty"`     // Must all be learned
	Flags      map[string]string `json:"flags,omitempty"`      // Compared by string form
	Attributes map[string]int    `json:"attributes,omitempty"` // Effective values
	Turn       *int              `json:"turn,omitempty"`

	// Turn result
	Outcome    *string `json:"outcome,omitempty"`     // success or degraded
	SkillCheck *bool   `json:"skill_check,omitempty"` // Whether a roll was made

	// Response Analysis
	ResponseContains    []string `json:"response_contains,omitempty"`
	ResponseNotContains []string `json:"response_not_contains,omitempty"`
	ResponseRegex       string   `json:"response_regex,omitempty"`
	ResponseMinLength   *int     `json:"response_min_length,omitempty"`
	ResponseMaxLength   *int     `json:"response_max_length,omitempty"`
}

// TestResult contains the outcome of running a test step
type TestResult struct {
	TestName     string
	StepName     string
	Success      bool
	Error        error
	Duration     time.Duration
	ResponseText string
	IsReset      bool // True for NEW_CHARACTER steps (should not count toward pass/fail metrics)
}

// TestJob represents a test suite to be executed
type TestJob struct {
	Name     string
	Suite    TestSuite
	CaseFile string
}

// TestRunResult contains the results of running an entire test suite
type TestRunResult struct {
	Job      TestJob
	Results  []TestResult
	Error    error
	Duration time.Duration
	Session  uuid.UUID // ID of the last session used for this test
}
