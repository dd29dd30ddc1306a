package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/roleplay-agent/internal/turn"
	"github.com/jwebster45206/roleplay-agent/pkg/state"
)

type ErrorHandlingMode string

const ErrorHandlingExit ErrorHandlingMode = "exit"
const ErrorHandlingContinue ErrorHandlingMode = "continue"

// errBusy marks a 409 from the turn endpoint, the one failure worth a retry.
var errBusy = errors.New("session busy")

// Runner executes integration tests against a running roleplay API
type Runner struct {
	BaseURL           string
	Token             string
	Client            *http.Client
	Logger            func(format string, args ...any)
	ErrorHandlingMode ErrorHandlingMode
	ScenarioOverride  string // If set, overrides the scenario for all test cases
}

// NewRunner creates a new test runner authenticated with a bearer token
func NewRunner(baseURL, token string) *Runner {
	return &Runner{
		BaseURL:           strings.TrimSuffix(baseURL, "/"),
		Token:             token,
		Client:            &http.Client{Timeout: 3 * time.Minute},
		Logger:            func(string, ...any) {},
		ErrorHandlingMode: ErrorHandlingContinue,
	}
}

// SessionView is a session document with its effective attributes.
type SessionView struct {
	state.GameState
	EffectiveAttributes map[string]int `json:"effective_attributes"`
}

// LoadTestSuite loads a test suite from a JSON file
func LoadTestSuite(filename string) (TestSuite, error) {
	content, err := os.ReadFile(filename)
	if err != nil {
		return TestSuite{}, fmt.Errorf("failed to read test file %s: %w", filename, err)
	}

	var suite TestSuite
	if err := json.Unmarshal(content, &suite); err != nil {
		return TestSuite{}, fmt.Errorf("failed to parse JSON in %s: %w", filename, err)
	}

	return suite, nil
}

// LoadTestSuiteWithExpansion loads a test suite and expands it if it's a sequence
// Returns a list of actual test suites (expanded from the sequence if needed)
func LoadTestSuiteWithExpansion(filename string, casesDir string) ([]TestJob, error) {
	suite, err := LoadTestSuite(filename)
	if err != nil {
		return nil, err
	}

	if !suite.IsSequence() {
		return []TestJob{{
			Name:     suite.Name,
			Suite:    suite,
			CaseFile: filename,
		}}, nil
	}

	var jobs []TestJob
	for _, caseFile := range suite.Cases {
		casePath := filepath.Join(casesDir, caseFile)

		// Recursively load (in case a sequence references another sequence)
		subJobs, err := LoadTestSuiteWithExpansion(casePath, casesDir)
		if err != nil {
			return nil, fmt.Errorf("failed to load case '%s' referenced by sequence '%s': %w", caseFile, suite.Name, err)
		}

		jobs = append(jobs, subJobs...)
	}

	return jobs, nil
}

// RunSuite executes a complete test suite on a freshly created character
func (r *Runner) RunSuite(ctx context.Context, suite TestSuite) (TestRunResult, error) {
	start := time.Now()
	result := TestRunResult{
		Job: TestJob{
			Name:  suite.Name,
			Suite: suite,
		},
		Results: make([]TestResult, 0, len(suite.Steps)),
	}

	scenarioID := suite.Scenario
	if r.ScenarioOverride != "" {
		scenarioID = r.ScenarioOverride
	}

	session, err := r.createSession(ctx, scenarioID, suite.Seed)
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		result.Duration = time.Since(start)
		return result, result.Error
	}
	result.Session = session.ID

	for i, step := range suite.Steps {
		r.Logger("    [%d/%d] Running step: %s", i+1, len(suite.Steps), step.Name)

		var stepResult TestResult
		if step.Action == NewCharacterAction {
			stepResult, session = r.resetStep(ctx, scenarioID, suite.Seed, step)
			if session != nil {
				result.Session = session.ID
			}
		} else {
			stepResult = r.runStep(ctx, session.ID, step)
		}
		stepResult.TestName = suite.Name
		result.Results = append(result.Results, stepResult)

		if stepResult.Error != nil {
			r.Logger("    [%d/%d] ✗ %s: %v", i+1, len(suite.Steps), step.Name, stepResult.Error)
			if result.Error == nil {
				result.Error = fmt.Errorf("step %d (%s) failed: %w", i, step.Name, stepResult.Error)
			}
			if r.ErrorHandlingMode == ErrorHandlingExit || session == nil {
				break
			}
			continue
		}

		r.Logger("    [%d/%d] ✓ %s (%v)", i+1, len(suite.Steps), step.Name, stepResult.Duration)
	}

	result.Duration = time.Since(start)
	return result, result.Error
}

// resetStep replaces the session with a new character built from the seed.
func (r *Runner) resetStep(ctx context.Context, scenarioID string, seed Seed, step TestStep) (TestResult, *SessionView) {
	start := time.Now()
	result := TestResult{StepName: step.Name, IsReset: true, ResponseText: "[NEW CHARACTER]"}

	session, err := r.createSession(ctx, scenarioID, seed)
	if err != nil {
		result.Error = fmt.Errorf("failed to create session: %w", err)
		result.Duration = time.Since(start)
		return result, nil
	}

	if err := checkExpectations(step.Expectations, session, nil); err != nil {
		result.Error = fmt.Errorf("new character expectation failed: %w", err)
	} else {
		result.Success = true
	}
	result.Duration = time.Since(start)
	return result, session
}

// runStep executes a single test step and checks expectations
// Will retry once when the session is busy
func (r *Runner) runStep(ctx context.Context, sessionID uuid.UUID, step TestStep) TestResult {
	for attempt := 1; ; attempt++ {
		result := r.executeStep(ctx, sessionID, step)
		if result.Success || !errors.Is(result.Error, errBusy) || attempt == 2 {
			return result
		}
		r.Logger("    Session busy, retrying step: %s", step.Name)
	}
}

// executeStep performs the actual step execution
func (r *Runner) executeStep(ctx context.Context, sessionID uuid.UUID, step TestStep) TestResult {
	start := time.Now()
	result := TestResult{
		StepName: step.Name,
	}

	res, err := r.takeTurn(ctx, sessionID, step.Action)
	if err != nil {
		result.Error = fmt.Errorf("failed to take turn: %w", err)
		result.Duration = time.Since(start)
		return result
	}
	result.ResponseText = res.Narrative

	view := &SessionView{GameState: *res.State, EffectiveAttributes: res.Effective}
	if err := checkExpectations(step.Expectations, view, res); err != nil {
		result.Error = fmt.Errorf("expectation failed: %w", err)
		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Duration = time.Since(start)
	return result
}

func (r *Runner) createSession(ctx context.Context, scenarioID string, seed Seed) (*SessionView, error) {
	name := seed.CharacterName
	if name == "" {
		name = "Tester"
	}
	body := map[string]any{
		"scenario_id":    scenarioID,
		"character_name": name,
	}
	if len(seed.BaseAttributes) > 0 {
		body["base_attributes"] = seed.BaseAttributes
	}
	if len(seed.Selections) > 0 {
		body["selections"] = seed.Selections
	}

	var view SessionView
	if err := r.call(ctx, http.MethodPost, "/v1/sessions", body, &view, http.StatusCreated); err != nil {
		return nil, err
	}
	return &view, nil
}

// GetSession retrieves the stored session
func (r *Runner) GetSession(ctx context.Context, id uuid.UUID) (*SessionView, error) {
	var view SessionView
	if err := r.call(ctx, http.MethodGet, "/v1/sessions/"+id.String(), nil, &view, http.StatusOK); err != nil {
		return nil, err
	}
	return &view, nil
}

func (r *Runner) takeTurn(ctx context.Context, id uuid.UUID, action string) (*turn.Result, error) {
	var res turn.Result
	body := map[string]string{"action": action}
	if err := r.call(ctx, http.MethodPost, "/v1/sessions/"+id.String()+"/turns", body, &res, http.StatusOK); err != nil {
		return nil, err
	}
	if res.State == nil {
		return nil, fmt.Errorf("turn response has no state")
	}
	return &res, nil
}

func (r *Runner) call(ctx context.Context, method, path string, body, out any, want int) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+r.Token)

	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute %s request: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != want {
		data, _ := io.ReadAll(resp.Body)
		if resp.StatusCode == http.StatusConflict {
			return fmt.Errorf("%w: %s", errBusy, string(data))
		}
		return fmt.Errorf("%s %s returned %d: %s", method, path, resp.StatusCode, string(data))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// checkExpectations validates the expectations against the session after a
// step. res is nil for steps that did not play a turn.
func checkExpectations(exp Expectations, post *SessionView, res *turn.Result) error {
	if exp.Location != nil && post.Location != *exp.Location {
		return fmt.Errorf("expected location %s, got %s", *exp.Location, post.Location)
	}

	for item, want := range exp.Inventory {
		if got := post.ItemQuantity(item); got != want {
			return fmt.Errorf("expected %d of '%s' in inventory, got %d. Actual inventory: %v", want, item, got, post.Inventory)
		}
	}

	for _, skill := range exp.Skills {
		if !slices.ContainsFunc(post.Skills, func(s state.Skill) bool { return s.Name == skill }) {
			return fmt.Errorf("expected skill '%s' to be learned, got %v", skill, post.Skills)
		}
	}

	for key, want := range exp.Flags {
		got, ok := post.Flags[key]
		if !ok {
			return fmt.Errorf("expected flag %s to be set, but it doesn't exist", key)
		}
		text := got.String()
		if str, isString := got.AsString(); isString {
			text = str
		}
		if text != want {
			return fmt.Errorf("expected flag %s to be %s, got %s", key, want, text)
		}
	}

	for attr, want := range exp.Attributes {
		if got := post.EffectiveAttributes[attr]; got != want {
			return fmt.Errorf("expected effective %s to be %d, got %d", attr, want, got)
		}
	}

	if exp.Turn != nil && post.Turn != *exp.Turn {
		return fmt.Errorf("expected turn to be %d, got %d", *exp.Turn, post.Turn)
	}

	if res == nil {
		return nil
	}

	if exp.Outcome != nil && string(res.Outcome) != *exp.Outcome {
		return fmt.Errorf("expected outcome %s, got %s (failed stage %q)", *exp.Outcome, res.Outcome, res.FailedStage)
	}

	if exp.SkillCheck != nil && (res.SkillCheck != nil) != *exp.SkillCheck {
		return fmt.Errorf("expected skill check %t, got %v", *exp.SkillCheck, res.SkillCheck)
	}

	return checkResponse(exp, res.Narrative)
}

func checkResponse(exp Expectations, responseText string) error {
	lowerResponse := strings.ToLower(responseText)
	for _, expectedText := range exp.ResponseContains {
		if !strings.Contains(lowerResponse, strings.ToLower(expectedText)) {
			return fmt.Errorf("expected response to contain '%s', but it didn't", expectedText)
		}
	}

	for _, unexpectedText := range exp.ResponseNotContains {
		if strings.Contains(lowerResponse, strings.ToLower(unexpectedText)) {
			return fmt.Errorf("expected response to NOT contain '%s', but it did", unexpectedText)
		}
	}

	if exp.ResponseRegex != "" {
		matched, err := regexp.MatchString(exp.ResponseRegex, responseText)
		if err != nil {
			return fmt.Errorf("invalid regex pattern: %w", err)
		}
		if !matched {
			return fmt.Errorf("response didn't match regex pattern: %s", exp.ResponseRegex)
		}
	}

	if exp.ResponseMinLength != nil && len(responseText) < *exp.ResponseMinLength {
		return fmt.Errorf("expected response length >= %d, got %d", *exp.ResponseMinLength, len(responseText))
	}
	if exp.ResponseMaxLength != nil && len(responseText) > *exp.ResponseMaxLength {
		return fmt.Errorf("expected response length <= %d, got %d", *exp.ResponseMaxLength, len(responseText))
	}

	return nil
}
