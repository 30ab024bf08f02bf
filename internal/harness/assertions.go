package harness

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/ledger"
	"github.com/roach88/editledger/internal/store"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Type     string // Assertion type for categorization
	Subject  string // What was checked, e.g. "project/p1.name"
	Expected string // Human-readable expected outcome
	Actual   string // Human-readable actual outcome
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s", e.Type)
	if e.Subject != "" {
		fmt.Fprintf(&buf, " (%s)", e.Subject)
	}
	fmt.Fprintf(&buf, "\n  Expected: %s\n  Actual: %s", e.Expected, e.Actual)
	return buf.String()
}

// AssertionContext provides what assertions need to read final state.
type AssertionContext struct {
	Ctx     context.Context
	Ledger  *ledger.Ledger
	Aliases map[string]string
}

// EvaluateAssertions runs all assertions and returns failure messages.
// Every assertion is evaluated; failures do not stop later assertions.
func EvaluateAssertions(assertions []Assertion, actx *AssertionContext) []string {
	var errs []string
	for i, a := range assertions {
		if err := evaluate(a, actx); err != nil {
			errs = append(errs, fmt.Sprintf("assertions[%d]: %v", i, err))
		}
	}
	return errs
}

func evaluate(a Assertion, actx *AssertionContext) error {
	switch a.Type {
	case AssertValue:
		return assertValue(a, actx)
	case AssertStatus:
		return assertStatus(a, actx)
	case AssertHistoryCount:
		return assertHistoryCount(a, actx)
	case AssertChain:
		return assertChain(a, actx)
	case AssertUndone:
		return assertUndone(a, actx)
	case AssertCounter:
		return assertCounter(a, actx)
	case AssertVerify:
		return assertVerify(actx)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

// assertValue checks the live value of target.key. Absent keys read as null.
func assertValue(a Assertion, actx *AssertionContext) error {
	ref, err := ir.ParseEntityRef(a.Target)
	if err != nil {
		return err
	}
	want, err := ir.FromAny(a.Expect)
	if err != nil {
		return fmt.Errorf("expect: %w", err)
	}
	ent, err := actx.Ledger.Entity(actx.Ctx, ref)
	if err != nil {
		return err
	}
	got, ok := ent.Attributes[a.Key]
	if !ok {
		got = ir.Null{}
	}
	if !ir.Equal(want, got) {
		return &AssertionError{
			Type:     AssertValue,
			Subject:  fmt.Sprintf("%s.%s", ref, a.Key),
			Expected: describeValue(want),
			Actual:   describeValue(got),
		}
	}
	return nil
}

func assertStatus(a Assertion, actx *AssertionContext) error {
	ref, err := ir.ParseEntityRef(a.Target)
	if err != nil {
		return err
	}
	got := store.EntityMissing.String()
	ent, err := actx.Ledger.Entity(actx.Ctx, ref)
	switch {
	case ledger.IsNotFound(err):
	case err != nil:
		return err
	default:
		got = ent.Status.String()
	}
	if want := fmt.Sprint(a.Expect); got != want {
		return &AssertionError{Type: AssertStatus, Subject: ref.String(), Expected: want, Actual: got}
	}
	return nil
}

func assertHistoryCount(a Assertion, actx *AssertionContext) error {
	ref, err := ir.ParseEntityRef(a.Target)
	if err != nil {
		return err
	}
	edits, err := actx.Ledger.History(actx.Ctx, ref, store.Page{})
	if err != nil {
		return err
	}
	if len(edits) != a.Count {
		return &AssertionError{
			Type:     AssertHistoryCount,
			Subject:  ref.String(),
			Expected: fmt.Sprintf("%d edits", a.Count),
			Actual:   fmt.Sprintf("%d edits", len(edits)),
		}
	}
	return nil
}

// assertChain checks the new values of the applied records for target.key,
// oldest first.
func assertChain(a Assertion, actx *AssertionContext) error {
	ref, err := ir.ParseEntityRef(a.Target)
	if err != nil {
		return err
	}
	want := make([]string, 0, len(a.Values))
	for i, raw := range a.Values {
		v, err := ir.FromAny(raw)
		if err != nil {
			return fmt.Errorf("values[%d]: %w", i, err)
		}
		want = append(want, describeValue(v))
	}

	edits, err := actx.Ledger.History(actx.Ctx, ref, store.Page{})
	if err != nil {
		return err
	}
	got := []string{}
	for _, e := range edits {
		pe, ok := e.(*ir.PropertyEdit)
		if !ok || pe.Key != a.Key || pe.Undone {
			continue
		}
		got = append(got, describeValue(pe.New))
	}

	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertChain,
			Subject:  fmt.Sprintf("%s.%s", ref, a.Key),
			Expected: "[" + strings.Join(want, ", ") + "]",
			Actual:   "[" + strings.Join(got, ", ") + "]",
		}
	}
	return nil
}

func assertUndone(a Assertion, actx *AssertionContext) error {
	id := a.Edit
	if bound, ok := actx.Aliases[id]; ok {
		id = bound
	}
	e, err := actx.Ledger.Edit(actx.Ctx, id)
	if err != nil {
		return err
	}

	var got bool
	switch v := e.(type) {
	case *ir.PropertyEdit:
		got = v.Undone
	case *ir.DestroyEdit:
		got = v.Undone
	case *ir.CreateEdit:
	}

	want, _ := a.Expect.(bool)
	if got != want {
		return &AssertionError{
			Type:     AssertUndone,
			Subject:  fmt.Sprintf("%s (%s)", a.Edit, id),
			Expected: fmt.Sprint(want),
			Actual:   fmt.Sprint(got),
		}
	}
	return nil
}

func assertCounter(a Assertion, actx *AssertionContext) error {
	ref, err := ir.ParseEntityRef(a.Target)
	if err != nil {
		return err
	}
	ent, err := actx.Ledger.Entity(actx.Ctx, ref)
	if err != nil {
		return err
	}
	if got := ent.Counters[a.Counter]; got != int64(a.Count) {
		return &AssertionError{
			Type:     AssertCounter,
			Subject:  fmt.Sprintf("%s.%s", ref, a.Counter),
			Expected: fmt.Sprint(a.Count),
			Actual:   fmt.Sprint(got),
		}
	}
	return nil
}

func assertVerify(actx *AssertionContext) error {
	divergences, err := actx.Ledger.Verify(actx.Ctx)
	if err != nil {
		return err
	}
	if len(divergences) > 0 {
		lines := make([]string, 0, len(divergences))
		for _, d := range divergences {
			lines = append(lines, d.String())
		}
		return &AssertionError{
			Type:     AssertVerify,
			Expected: "no divergences",
			Actual:   strings.Join(lines, "; "),
		}
	}
	return nil
}

func describeValue(v ir.Value) string {
	if ir.IsEmpty(v) {
		return "null"
	}
	return fmt.Sprintf("%q", ir.Text(v))
}
