package ledger

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("editledger.ledger")

var (
	editsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editledger_edits_total",
			Help: "Total edits recorded by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	undoRedoTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "editledger_undo_redo_total",
			Help: "Total undo and redo requests by result",
		},
		[]string{"op", "result"},
	)

	cascadeChildren = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "editledger_cascade_children",
			Help:    "Number of child edits touched per cascade",
			Buckets: []float64{0, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"op"},
	)

	cascadeSkippedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "editledger_cascade_skipped_total",
			Help: "Total cascade children skipped during restore or re-clear",
		},
	)

	txRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "editledger_tx_retries_total",
			Help: "Total transaction attempts retried after lock contention",
		},
	)

	opDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "editledger_op_duration_seconds",
			Help:    "Duration of ledger operations including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"op"},
	)
)

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if code := CodeOf(err); code != "" {
		return string(code)
	}
	return "error"
}
