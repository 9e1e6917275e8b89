// Package metrics exposes operator metrics in Prometheus format. All
// collectors live in Registry so they are reachable without passing a
// registry around.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "plasma"

// Registry holds every operator collector plus the Go runtime and process
// collectors.
var Registry = prometheus.NewRegistry()

var (
	// ---- Chain metrics ----

	// ChainHeight tracks the latest block number.
	ChainHeight = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "chain", Name: "height",
		Help: "Number of the last appended block.",
	})
	// BlocksAppended counts blocks appended to the chain.
	BlocksAppended = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "chain", Name: "blocks_appended_total",
		Help: "Blocks appended to the chain.",
	})
	// BlockTransactions records the number of non-empty slots per block.
	BlockTransactions = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "chain", Name: "block_transactions",
		Help:    "Non-empty transaction slots per appended block.",
		Buckets: []float64{0, 1, 2, 4, 8, 16, 32, 64, 128, 256},
	})
	// CycleDuration records the wall time of block cycles.
	CycleDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace, Subsystem: "chain", Name: "cycle_duration_seconds",
		Help:    "Duration of block production cycles.",
		Buckets: prometheus.DefBuckets,
	})
	// CycleState is 1 for the stage the block cycle is in and 0 otherwise.
	CycleState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "chain", Name: "cycle_state",
		Help: "Current stage of the block cycle.",
	}, []string{"state"})
	// CycleFailures counts aborted cycles by the stage they failed in.
	CycleFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "chain", Name: "cycle_failures_total",
		Help: "Block cycles aborted, by stage.",
	}, []string{"state"})
	// TxsApplied counts transactions placed in blocks, by type.
	TxsApplied = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "chain", Name: "transactions_total",
		Help: "Transactions included in blocks, by type.",
	}, []string{"type"})
	// TxsSkipped counts synthesized transactions that failed validation.
	TxsSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "chain", Name: "transactions_skipped_total",
		Help: "Transactions dropped during block collection, by type.",
	}, []string{"type"})

	// TxsDeferred counts root-chain events carried to a later block because
	// the block was full.
	TxsDeferred = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "chain", Name: "transactions_deferred_total",
		Help: "Deposits and withdrawals deferred to the next block, by type.",
	}, []string{"type"})

	// ---- Admission metrics ----

	// TransfersAdmitted counts transfers accepted into the pool.
	TransfersAdmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "txpool", Name: "admitted_total",
		Help: "Transfers admitted to the pool.",
	})
	// TransfersRejected counts refused transfers by reason.
	TransfersRejected = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "txpool", Name: "rejected_total",
		Help: "Transfers refused at admission, by reason.",
	}, []string{"reason"})
	// TxPoolPending tracks the number of pending transfers.
	TxPoolPending = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "txpool", Name: "pending",
		Help: "Transfers waiting for the next block.",
	})

	// ---- Ledger metrics ----

	// LedgerUTXOs tracks the number of unspent outputs.
	LedgerUTXOs = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace, Subsystem: "ledger", Name: "utxos",
		Help: "Unspent outputs in the ledger.",
	})

	// ---- API metrics ----

	// APIRequests counts HTTP requests by route and status code.
	APIRequests = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace, Subsystem: "api", Name: "requests_total",
		Help: "HTTP requests served, by route and status.",
	}, []string{"route", "code"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		ChainHeight, BlocksAppended, BlockTransactions, CycleDuration,
		CycleState, CycleFailures, TxsApplied, TxsSkipped, TxsDeferred,
		TransfersAdmitted, TransfersRejected, TxPoolPending,
		LedgerUTXOs, APIRequests,
	)
}

// Handler serves Registry in the Prometheus text exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// SetCycleState marks state as the active stage of the block cycle.
func SetCycleState(states []string, active string) {
	for _, s := range states {
		v := 0.0
		if s == active {
			v = 1
		}
		CycleState.WithLabelValues(s).Set(v)
	}
}
