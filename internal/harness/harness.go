package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/editledger/internal/compiler"
	"github.com/roach88/editledger/internal/entity"
	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/ledger"
	"github.com/roach88/editledger/internal/store"
	"github.com/roach88/editledger/internal/testutil"
)

// Harness is the test execution engine.
// It runs scenarios with a manual clock and fixed edit ids.
type Harness struct {
	ledger  *ledger.Ledger
	clock   *testutil.ManualClock
	logger  *slog.Logger
	aliases map[string]string
}

// Run executes a test scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database for isolation.
// Deterministic helpers ensure reproducible results.
//
// Execution flow:
// 1. Create fresh in-memory database
// 2. Load the scenario's entity types (or the built-in ones)
// 3. Execute steps, checking each step's expect clause
// 4. Evaluate assertions against the final state
// 5. Return result with pass/fail, trace, records, and errors
//
// A returned error means the scenario could not be executed at all;
// failed expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	registry, err := scenarioRegistry(scenario)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil)) // Suppress logs in tests
	clock := testutil.NewManualClock(testutil.Epoch)
	h := &Harness{
		ledger: ledger.New(st, registry,
			ledger.WithClock(clock),
			ledger.WithIDGenerator(ledger.NewFixedGenerator("edit")),
			ledger.WithLogger(logger),
		),
		clock:   clock,
		logger:  logger,
		aliases: map[string]string{},
	}

	ctx := context.Background()
	result := NewResult()

	for i, step := range scenario.Steps {
		if err := h.executeStep(ctx, i, step, result); err != nil {
			return nil, fmt.Errorf("step %d: %w", i, err)
		}
	}

	records, err := st.ReadAllEdits(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	for _, e := range records {
		result.Records = append(result.Records, ir.Flatten(e))
	}
	for alias, id := range h.aliases {
		result.Aliases[alias] = id
	}

	actx := &AssertionContext{
		Ctx:     ctx,
		Ledger:  h.ledger,
		Aliases: h.aliases,
	}
	for _, errMsg := range EvaluateAssertions(scenario.Assertions, actx) {
		result.AddError(errMsg)
	}

	return result, nil
}

func scenarioRegistry(scenario *Scenario) (*entity.Registry, error) {
	if scenario.Types == "" {
		return entity.NewRegistry(entity.BuiltinTypes()...)
	}
	registry, err := compiler.LoadRegistry(scenario.Types)
	if err != nil {
		return nil, fmt.Errorf("failed to load entity types: %w", err)
	}
	return registry, nil
}

// executeStep runs one step and checks its expect clause.
// Only failures of the harness itself are returned as errors.
func (h *Harness) executeStep(ctx context.Context, i int, step Step, result *Result) error {
	op, operand := step.Op()
	actor := ir.ActorRef(step.Actor)
	if actor == "" {
		actor = DefaultActor
	}

	event := TraceEvent{Step: i, Op: op}

	var (
		opErr    error
		children int
		skipped  int
	)

	switch op {
	case OpAdvance:
		d, err := time.ParseDuration(operand)
		if err != nil {
			return err
		}
		h.clock.Advance(d)
		event.Advance = operand
		result.AddTrace(event)
		return nil

	case OpCreate:
		ref, err := ir.ParseEntityRef(operand)
		if err != nil {
			return err
		}
		event.Target = ref.String()
		ce, err := h.ledger.RecordCreation(ctx, ref, actor)
		if opErr = err; err == nil {
			event.EditID = ce.ID
		}

	case OpChange:
		ref, err := ir.ParseEntityRef(operand)
		if err != nil {
			return err
		}
		value, err := ir.FromAny(step.Value)
		if err != nil {
			return fmt.Errorf("value: %w", err)
		}
		event.Target = ref.String()
		event.Key = step.Key
		res, err := h.ledger.RecordChange(ctx, ref, actor, step.Key, value)
		if opErr = err; err == nil {
			event.Outcome = string(res.Outcome)
			if res.Edit != nil {
				event.EditID = res.Edit.ID
			}
		}

	case OpDestroy:
		ref, err := ir.ParseEntityRef(operand)
		if err != nil {
			return err
		}
		event.Target = ref.String()
		res, err := h.ledger.RecordDestruction(ctx, ref, actor, ledger.CascadePolicy(step.Policy))
		if opErr = err; err == nil {
			event.EditID = res.Destroy.ID
			children, skipped = traceCascade(&event, &res)
		}

	case OpUndo, OpRedo:
		id := h.resolve(operand)
		reverse := h.ledger.Undo
		if op == OpRedo {
			reverse = h.ledger.Redo
		}
		res, err := reverse(ctx, id, actor)
		if opErr = err; err == nil {
			head := res.Edit.Head()
			event.EditID = head.ID
			event.Target = head.Target.String()
			if pe, ok := res.Edit.(*ir.PropertyEdit); ok {
				event.Key = pe.Key
			}
			if res.Cascade != nil {
				children, skipped = traceCascade(&event, res.Cascade)
			}
		} else {
			event.EditID = id
		}
	}

	if opErr != nil {
		code := ledger.CodeOf(opErr)
		if code == "" {
			return opErr
		}
		event.Error = string(code)
	}
	result.AddTrace(event)

	h.logger.Info("scenario step completed",
		"step", i,
		"op", op,
		"edit_id", event.EditID,
		"error", event.Error,
	)

	fail := func(format string, args ...any) {
		result.AddError(fmt.Sprintf("step %d (%s %s): %s", i, op, operand, fmt.Sprintf(format, args...)))
	}

	expect := step.Expect
	if expect == nil {
		expect = &StepExpect{}
	}

	switch {
	case expect.Error != "" && opErr == nil:
		fail("expected error %s, got success", expect.Error)
		return nil
	case expect.Error != "" && event.Error != expect.Error:
		fail("expected error %s, got %v", expect.Error, opErr)
		return nil
	case expect.Error == "" && opErr != nil:
		fail("unexpected error: %v", opErr)
		return nil
	case opErr != nil:
		return nil
	}

	if expect.Outcome != "" && event.Outcome != expect.Outcome {
		fail("expected outcome %s, got %s", expect.Outcome, event.Outcome)
	}
	if expect.Children != nil && *expect.Children != children {
		fail("expected %d cascade children, got %d", *expect.Children, children)
	}
	if expect.Skipped != nil && *expect.Skipped != skipped {
		fail("expected %d skipped children, got %d", *expect.Skipped, skipped)
	}

	if step.As != "" {
		if event.EditID == "" {
			fail("alias %q bound to no edit (outcome %s)", step.As, event.Outcome)
			return nil
		}
		h.aliases[step.As] = event.EditID
	}
	return nil
}

// resolve maps an alias to its edit id. Unbound names are taken as ids.
func (h *Harness) resolve(name string) string {
	if id, ok := h.aliases[name]; ok {
		return id
	}
	return name
}

func traceCascade(event *TraceEvent, res *ledger.CascadeResult) (children, skipped int) {
	for _, c := range res.Children {
		event.Children = append(event.Children, c.ID)
	}
	for _, s := range res.Skipped {
		event.Skipped = append(event.Skipped, fmt.Sprintf("%s: %s", s.Edit.ID, s.Reason))
	}
	return len(res.Children), len(res.Skipped)
}
