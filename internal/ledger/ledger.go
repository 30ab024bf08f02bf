package ledger

import (
	"context"
	"io"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/editledger/internal/entity"
	"github.com/roach88/editledger/internal/ir"
	"github.com/roach88/editledger/internal/store"
)

const (
	// DefaultTxTimeout bounds a single transaction attempt.
	DefaultTxTimeout = 5 * time.Second

	// DefaultMaxRetries is how many times a contended attempt is retried.
	DefaultMaxRetries = 3
)

// Outcome reports what RecordChange did.
type Outcome string

const (
	OutcomeApplied Outcome = "applied" // New record inserted
	OutcomeMerged  Outcome = "merged"  // Latest record amended
	OutcomeNoop    Outcome = "noop"    // Value unchanged, nothing written
)

// CascadePolicy selects how a destroy treats live dependents.
type CascadePolicy string

const (
	// CascadeClear clears every reference to the destroyed entity.
	CascadeClear CascadePolicy = "clear"

	// CascadeRestrict refuses the destroy while dependents exist.
	CascadeRestrict CascadePolicy = "restrict"
)

// ChangeResult is returned by RecordChange.
// Edit is nil when Outcome is OutcomeNoop.
type ChangeResult struct {
	Outcome Outcome
	Edit    *ir.PropertyEdit
}

// CascadeResult reports the child edits a destroy, restore, or re-clear
// touched. Skipped children were left as they were; partial cascades are
// not errors.
type CascadeResult struct {
	Destroy  *ir.DestroyEdit
	Children []*ir.PropertyEdit
	Skipped  []SkippedChild
}

// SkippedChild is a cascade child that could not be restored or re-cleared.
type SkippedChild struct {
	Edit   *ir.PropertyEdit
	Reason string
}

// Result is returned by Undo and Redo. Cascade is set when the edit was a
// create or destroy.
type Result struct {
	Edit    ir.Edit
	Cascade *CascadeResult
}

// Ledger records, coalesces, undoes, and redoes edits to tracked entities.
//
// Every operation runs in one store transaction: the entity write, the
// edit record, every cascade child, and counter refreshes commit together
// or not at all.
//
// Thread-safety: Ledger is safe for concurrent use. Writers serialize on
// the store's IMMEDIATE transactions.
type Ledger struct {
	store      *store.Store
	registry   *entity.Registry
	clock      Clock
	ids        IDGenerator
	logger     *slog.Logger
	maxRetries int
	txTimeout  time.Duration
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithClock sets the timestamp source. Default: SystemClock.
func WithClock(c Clock) Option {
	return func(l *Ledger) { l.clock = c }
}

// WithIDGenerator sets the edit id source. Default: UUIDv7Generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(l *Ledger) { l.ids = g }
}

// WithLogger sets the logger. Default: discards.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithMaxRetries sets how many times a contended transaction is retried.
func WithMaxRetries(n int) Option {
	return func(l *Ledger) {
		if n >= 0 {
			l.maxRetries = n
		}
	}
}

// WithTxTimeout bounds each transaction attempt.
func WithTxTimeout(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.txTimeout = d
		}
	}
}

// New creates a Ledger over s for the types in registry.
func New(s *store.Store, registry *entity.Registry, opts ...Option) *Ledger {
	l := &Ledger{
		store:      s,
		registry:   registry,
		clock:      SystemClock{},
		ids:        UUIDv7Generator{},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxRetries: DefaultMaxRetries,
		txTimeout:  DefaultTxTimeout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Registry returns the entity types this ledger tracks.
func (l *Ledger) Registry() *entity.Registry { return l.registry }

// txn is the state of one transaction attempt.
type txn struct {
	l   *Ledger
	tx  *store.Tx
	now time.Time
}

// run executes fn in a retried, traced transaction and maps its error.
// fn may run more than once; it must assign its results rather than
// accumulate them across attempts.
func (l *Ledger) run(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(ctx context.Context, t *txn) error) error {
	ctx, span := tracer.Start(ctx, "ledger.Ledger."+op, trace.WithAttributes(attrs...))
	defer span.End()

	start := time.Now()
	err := l.withRetry(ctx, op, func(ctx context.Context) error {
		return l.store.WithTx(ctx, func(tx *store.Tx) error {
			return fn(ctx, &txn{l: l, tx: tx, now: l.clock.Now().UTC()})
		})
	})
	opDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())

	err = classify(err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// lookup resolves the type of ref and checks the actor.
func (l *Ledger) lookup(ref ir.EntityRef, actor ir.ActorRef) (*entity.Type, error) {
	if ref.Type == "" || ref.ID == "" {
		return nil, validationError(ref, "", "entity reference must have a type and an id")
	}
	if actor == "" {
		return nil, validationError(ref, "", "actor is required")
	}
	typ, err := l.registry.Lookup(ref.Type)
	if err != nil {
		return nil, &Error{Code: ErrCodeValidation, Message: "entity type is not tracked", Target: ref, Err: err}
	}
	return typ, nil
}

// Verify checks live state against the ledger.
func (l *Ledger) Verify(ctx context.Context) ([]store.Divergence, error) {
	divergences, err := l.store.Verify(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return divergences, nil
}

func refAttrs(ref ir.EntityRef, actor ir.ActorRef) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("target", ref.String()),
		attribute.String("actor", string(actor)),
	}
}
