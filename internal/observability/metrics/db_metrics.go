package metrics

import (
	"database/sql"
	"log"

	"github.com/prometheus/client_golang/prometheus"
)

func registerDBMetrics(db *sql.DB, logger *log.Logger) {
	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "contracts_active",
			Help: "Active auto-transfer contracts",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM auto_transfer_contracts WHERE status = 'ACTIVE'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "contracts_suspended",
			Help: "Suspended auto-transfer contracts",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM auto_transfer_contracts WHERE status = 'SUSPENDED'")
		},
	))

	prometheus.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: metricPrefix + "executions_pending",
			Help: "Unresolved transfer executions",
		},
		func() float64 {
			return queryCount(db, logger, "SELECT COUNT(*) FROM auto_transfer_executions WHERE outcome = 'PENDING'")
		},
	))
}

func queryCount(db *sql.DB, logger *log.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	var count int64
	if err := db.QueryRow(query).Scan(&count); err != nil {
		if logger != nil {
			logger.Printf("metrics query failed: %v", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
