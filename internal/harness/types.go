package harness

import "github.com/roach88/editledger/internal/ir"

// TraceEvent records what one step did.
type TraceEvent struct {
	Step     int      `json:"step"`
	Op       string   `json:"op"`
	Target   string   `json:"target,omitempty"`
	Key      string   `json:"key,omitempty"`
	Advance  string   `json:"advance,omitempty"`
	EditID   string   `json:"edit_id,omitempty"`
	Outcome  string   `json:"outcome,omitempty"`
	Error    string   `json:"error,omitempty"`
	Children []string `json:"children,omitempty"`
	Skipped  []string `json:"skipped,omitempty"` // "edit_id: reason"
}

// Result is the outcome of a test scenario execution.
type Result struct {
	// Pass indicates overall test success.
	// True if every step expectation and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per executed step.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Records is every edit in the ledger, in seq order, after the last step.
	Records []ir.Record `json:"records"`

	// Aliases maps step aliases to the edit ids they bound.
	Aliases map[string]string `json:"aliases,omitempty"`
}

// NewResult creates a new passing result.
// Used as the starting point for test execution.
func NewResult() *Result {
	return &Result{
		Pass:    true,
		Trace:   []TraceEvent{},
		Errors:  []string{},
		Records: []ir.Record{},
		Aliases: map[string]string{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step event to the trace.
func (r *Result) AddTrace(event TraceEvent) {
	r.Trace = append(r.Trace, event)
}
