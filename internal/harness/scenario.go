package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/editledger/internal/ir"
)

// Scenario defines a ledger test scenario.
// Scenarios drive the ledger through a sequence of steps with a manual
// clock and deterministic edit ids, then assert on the resulting state.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names the golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Types is an optional directory of CUE entity types, relative to the
	// scenario file. Empty means the built-in types.
	Types string `yaml:"types,omitempty"`

	// Steps are executed in order against a fresh in-memory ledger.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final state.
	// Supported types: value, status, history_count, chain, undone, counter, verify
	Assertions []Assertion `yaml:"assertions"`
}

// Step is a single ledger operation. Exactly one of the operation fields
// (Create, Change, Destroy, Undo, Redo, Advance) is set.
type Step struct {
	// Create, Change, and Destroy name a target as "type/id".
	Create  string `yaml:"create,omitempty"`
	Change  string `yaml:"change,omitempty"`
	Destroy string `yaml:"destroy,omitempty"`

	// Undo and Redo name an edit, either by an alias bound with As or by id.
	Undo string `yaml:"undo,omitempty"`
	Redo string `yaml:"redo,omitempty"`

	// Advance moves the clock forward by a Go duration, e.g. "31m".
	Advance string `yaml:"advance,omitempty"`

	// Key and Value apply to Change. A missing or null value clears the key.
	Key   string `yaml:"key,omitempty"`
	Value any    `yaml:"value,omitempty"`

	// Actor performs the step. Defaults to DefaultActor.
	Actor string `yaml:"actor,omitempty"`

	// Policy applies to Destroy: "clear" (default) or "restrict".
	Policy string `yaml:"policy,omitempty"`

	// As binds the id of the edit this step produced to an alias.
	As string `yaml:"as,omitempty"`

	// Expect validates the step outcome. If nil the step must succeed.
	Expect *StepExpect `yaml:"expect,omitempty"`
}

// StepExpect specifies the expected outcome of a step.
type StepExpect struct {
	// Outcome is the expected change outcome: applied, merged, or noop.
	Outcome string `yaml:"outcome,omitempty"`

	// Error is the expected ledger error code, e.g. NOT_UNDOABLE.
	// When set the step must fail with this code.
	Error string `yaml:"error,omitempty"`

	// Children and Skipped are the expected cascade sizes.
	Children *int `yaml:"children,omitempty"`
	Skipped  *int `yaml:"skipped,omitempty"`
}

// Assertion validates final ledger state.
type Assertion struct {
	// Type specifies the assertion type:
	// - "value": live value of Target.Key equals Expect
	// - "status": lifecycle of Target equals Expect (live, deleted, missing)
	// - "history_count": Target has exactly Count edit records
	// - "chain": applied records for Target.Key, oldest first, carry Values
	// - "undone": edit Edit has undone flag Expect
	// - "counter": counter Counter on Target equals Count
	// - "verify": live state matches the ledger
	Type string `yaml:"type"`

	Target  string `yaml:"target,omitempty"`
	Key     string `yaml:"key,omitempty"`
	Edit    string `yaml:"edit,omitempty"`
	Counter string `yaml:"counter,omitempty"`
	Count   int    `yaml:"count,omitempty"`
	Values  []any  `yaml:"values,omitempty"`
	Expect  any    `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertValue        = "value"
	AssertStatus       = "status"
	AssertHistoryCount = "history_count"
	AssertChain        = "chain"
	AssertUndone       = "undone"
	AssertCounter      = "counter"
	AssertVerify       = "verify"
)

// Step operation names.
const (
	OpCreate  = "create"
	OpChange  = "change"
	OpDestroy = "destroy"
	OpUndo    = "undo"
	OpRedo    = "redo"
	OpAdvance = "advance"
)

// DefaultActor performs steps that name no actor.
const DefaultActor = "scenario"

// Op returns the operation name and its operand.
func (s Step) Op() (op, operand string) {
	switch {
	case s.Create != "":
		return OpCreate, s.Create
	case s.Change != "":
		return OpChange, s.Change
	case s.Destroy != "":
		return OpDestroy, s.Destroy
	case s.Undo != "":
		return OpUndo, s.Undo
	case s.Redo != "":
		return OpRedo, s.Redo
	case s.Advance != "":
		return OpAdvance, s.Advance
	}
	return "", ""
}

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
// A relative Types path is resolved against the scenario's directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	scenario, err := ParseScenario(data)
	if err != nil {
		return nil, err
	}

	if scenario.Types != "" && !filepath.IsAbs(scenario.Types) {
		scenario.Types = filepath.Join(filepath.Dir(path), scenario.Types)
	}
	if scenario.Types != "" {
		if _, err := os.Stat(scenario.Types); os.IsNotExist(err) {
			return nil, fmt.Errorf("invalid scenario: types directory not found: %s", scenario.Types)
		}
	}

	return scenario, nil
}

// ParseScenario parses scenario YAML with strict field validation.
func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}

	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}

	if s.Description == "" {
		return fmt.Errorf("description is required")
	}

	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	aliases := map[string]bool{}
	for i, step := range s.Steps {
		if err := validateStep(i, step, aliases); err != nil {
			return err
		}
		if step.As != "" {
			aliases[step.As] = true
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}

	return nil
}

func validateStep(index int, step Step, aliases map[string]bool) error {
	set := 0
	for _, field := range []string{step.Create, step.Change, step.Destroy, step.Undo, step.Redo, step.Advance} {
		if field != "" {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("steps[%d]: exactly one of create, change, destroy, undo, redo, advance is required", index)
	}

	op, operand := step.Op()
	switch op {
	case OpCreate, OpChange, OpDestroy:
		if _, err := ir.ParseEntityRef(operand); err != nil {
			return fmt.Errorf("steps[%d]: %w", index, err)
		}
	case OpAdvance:
		if d, err := time.ParseDuration(operand); err != nil || d < 0 {
			return fmt.Errorf("steps[%d]: invalid advance duration %q", index, operand)
		}
		if step.As != "" || step.Expect != nil {
			return fmt.Errorf("steps[%d]: advance takes no alias or expect", index)
		}
	}

	if op == OpChange && step.Key == "" {
		return fmt.Errorf("steps[%d]: key is required for change", index)
	}
	if op != OpChange && (step.Key != "" || step.Value != nil) {
		return fmt.Errorf("steps[%d]: key and value only apply to change", index)
	}
	if step.Policy != "" {
		if op != OpDestroy {
			return fmt.Errorf("steps[%d]: policy only applies to destroy", index)
		}
		if step.Policy != "clear" && step.Policy != "restrict" {
			return fmt.Errorf("steps[%d]: invalid policy %q, must be \"clear\" or \"restrict\"", index, step.Policy)
		}
	}
	if step.As != "" && aliases[step.As] {
		return fmt.Errorf("steps[%d]: alias %q is already bound", index, step.As)
	}
	if e := step.Expect; e != nil {
		if e.Outcome != "" && op != OpChange {
			return fmt.Errorf("steps[%d].expect: outcome only applies to change", index)
		}
		if e.Error != "" && (e.Outcome != "" || e.Children != nil || e.Skipped != nil) {
			return fmt.Errorf("steps[%d].expect: error excludes other expectations", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	needTarget := func() error {
		if a.Target == "" {
			return fmt.Errorf("assertions[%d]: target is required for %s", index, a.Type)
		}
		if _, err := ir.ParseEntityRef(a.Target); err != nil {
			return fmt.Errorf("assertions[%d]: %w", index, err)
		}
		return nil
	}

	switch a.Type {
	case AssertValue, AssertChain:
		if err := needTarget(); err != nil {
			return err
		}
		if a.Key == "" {
			return fmt.Errorf("assertions[%d]: key is required for %s", index, a.Type)
		}
	case AssertStatus:
		if err := needTarget(); err != nil {
			return err
		}
		if _, ok := a.Expect.(string); !ok {
			return fmt.Errorf("assertions[%d]: expect must be live, deleted, or missing for status", index)
		}
	case AssertHistoryCount:
		if err := needTarget(); err != nil {
			return err
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for history_count", index)
		}
	case AssertUndone:
		if a.Edit == "" {
			return fmt.Errorf("assertions[%d]: edit is required for undone", index)
		}
		if _, ok := a.Expect.(bool); !ok {
			return fmt.Errorf("assertions[%d]: expect must be a bool for undone", index)
		}
	case AssertCounter:
		if err := needTarget(); err != nil {
			return err
		}
		if a.Counter == "" {
			return fmt.Errorf("assertions[%d]: counter is required for counter", index)
		}
	case AssertVerify:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}

	return nil
}
