package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "rentflow_"

	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

var (
	registerOnce sync.Once

	contractRegisterTotal    *prometheus.CounterVec
	contractTransitionsTotal *prometheus.CounterVec

	executionOutcomesTotal  *prometheus.CounterVec
	orphanedExecutionsTotal prometheus.Counter
	executorRunTotal        *prometheus.CounterVec
	executorRunLatency      *prometheus.HistogramVec

	reconcileRecordsTotal     *prometheus.CounterVec
	reconcileAmbiguitiesTotal prometheus.Counter

	loanClassificationsTotal *prometheus.CounterVec
	disbursementMatchesTotal *prometheus.CounterVec

	historyExportTotal   *prometheus.CounterVec
	historyExportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		contractRegisterTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "contract_register_total",
				Help: "Total auto-transfer contract registrations by result",
			},
			[]string{"result"},
		)
		contractTransitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "contract_transitions_total",
				Help: "Total contract lifecycle transitions by transition and result",
			},
			[]string{"transition", "result"},
		)

		executionOutcomesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "execution_outcomes_total",
				Help: "Total transfer executions by outcome",
			},
			[]string{"outcome"},
		)
		orphanedExecutionsTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "orphaned_executions_total",
				Help: "PENDING executions resent after outliving the executor lock",
			},
		)
		executorRunTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "executor_run_total",
				Help: "Total due-transfer executor runs by result",
			},
			[]string{"result"},
		)
		executorRunLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "executor_run_latency_seconds",
				Help:    "Due-transfer executor run latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		reconcileRecordsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_records_total",
				Help: "Total reconciled history records by canonical outcome",
			},
			[]string{"outcome"},
		)
		reconcileAmbiguitiesTotal = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconcile_ambiguities_total",
				Help: "History records whose outcome label matched no known label",
			},
		)

		loanClassificationsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "loan_classifications_total",
				Help: "Total loan application classifications by canonical stage",
			},
			[]string{"stage"},
		)
		disbursementMatchesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "disbursement_matches_total",
				Help: "Disbursement dedup matches by correlation field",
			},
			[]string{"field"},
		)

		historyExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "history_export_total",
				Help: "Total execution history exports by format and result",
			},
			[]string{"format", "result"},
		)
		historyExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "history_export_latency_seconds",
				Help:    "Execution history export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			contractRegisterTotal,
			contractTransitionsTotal,
			executionOutcomesTotal,
			orphanedExecutionsTotal,
			executorRunTotal,
			executorRunLatency,
			reconcileRecordsTotal,
			reconcileAmbiguitiesTotal,
			loanClassificationsTotal,
			disbursementMatchesTotal,
			historyExportTotal,
			historyExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// IncContractRegister increments the registration counter.
func IncContractRegister(result string) {
	if result == "" {
		result = resultSuccess
	}
	if contractRegisterTotal != nil {
		contractRegisterTotal.WithLabelValues(result).Inc()
	}
}

// IncContractTransition increments the lifecycle transition counter.
func IncContractTransition(transition, result string) {
	if transition == "" {
		transition = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if contractTransitionsTotal != nil {
		contractTransitionsTotal.WithLabelValues(transition, result).Inc()
	}
}

// IncExecutionOutcome increments the execution outcome counter.
func IncExecutionOutcome(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if executionOutcomesTotal != nil {
		executionOutcomesTotal.WithLabelValues(outcome).Inc()
	}
}

// ObserveExecutorRun records executor run latency and result.
func ObserveExecutorRun(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if executorRunTotal != nil {
		executorRunTotal.WithLabelValues(result).Inc()
	}
	if executorRunLatency != nil {
		executorRunLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncReconcileRecord increments the reconciled record counter.
func IncReconcileRecord(outcome string) {
	if outcome == "" {
		outcome = "unknown"
	}
	if reconcileRecordsTotal != nil {
		reconcileRecordsTotal.WithLabelValues(outcome).Inc()
	}
}

// IncOrphanedExecution increments the orphaned-execution counter.
func IncOrphanedExecution() {
	if orphanedExecutionsTotal != nil {
		orphanedExecutionsTotal.Inc()
	}
}

// IncReconcileAmbiguity increments the unknown-label counter.
func IncReconcileAmbiguity() {
	if reconcileAmbiguitiesTotal != nil {
		reconcileAmbiguitiesTotal.Inc()
	}
}

// IncLoanClassification increments the classification counter.
func IncLoanClassification(stage string) {
	if stage == "" {
		stage = "unknown"
	}
	if loanClassificationsTotal != nil {
		loanClassificationsTotal.WithLabelValues(stage).Inc()
	}
}

// IncDisbursementMatch increments the dedup counter for the matching field.
func IncDisbursementMatch(field string) {
	if field == "" {
		field = "unknown"
	}
	if disbursementMatchesTotal != nil {
		disbursementMatchesTotal.WithLabelValues(field).Inc()
	}
}

// ObserveHistoryExport records export latency and result.
func ObserveHistoryExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if historyExportTotal != nil {
		historyExportTotal.WithLabelValues(format, result).Inc()
	}
	if historyExportLatency != nil {
		historyExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError
	ResultSkipped = resultSkipped
)
