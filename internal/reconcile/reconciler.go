package reconcile

import (
	"log"
	"sort"
	"strings"
	"time"

	autotransfer "rentflow-cloud/internal/autotransfer/domain"
	"rentflow-cloud/internal/observability/metrics"
)

const (
	dayKeyLayout = "2006-01-02"
	// UndatedDay keys the bucket of records with no resolvable date.
	UndatedDay = "undated"

	unknownFailure = "unknown failure"
)

var outcomeLabels = map[string]autotransfer.Outcome{
	"PAID":       autotransfer.OutcomeSuccess,
	"COMPLETED":  autotransfer.OutcomeSuccess,
	"SUCCESS":    autotransfer.OutcomeSuccess,
	"FAILED":     autotransfer.OutcomeFailed,
	"PENDING":    autotransfer.OutcomePending,
	"SCHEDULED":  autotransfer.OutcomePending,
	"PROCESSING": autotransfer.OutcomePending,
}

// NormalizeOutcome maps an upstream status label to a canonical outcome.
// Unrecognized labels map to PENDING with known=false. Empty labels are
// PENDING and count as known.
func NormalizeOutcome(label string) (outcome autotransfer.Outcome, known bool) {
	key := strings.ToUpper(strings.TrimSpace(label))
	if key == "" {
		return autotransfer.OutcomePending, true
	}
	if outcome, ok := outcomeLabels[key]; ok {
		return outcome, true
	}
	return autotransfer.OutcomePending, false
}

// Stats summarizes a reconciled history.
type Stats struct {
	Total       int     `json:"total"`
	Success     int     `json:"success"`
	Failed      int     `json:"failed"`
	Pending     int     `json:"pending"`
	SuccessRate float64 `json:"successRate"`
}

// DayBucket holds the records resolved to one calendar day.
type DayBucket struct {
	Day     string                         `json:"day"`
	Records []autotransfer.ExecutionRecord `json:"records"`
}

// Ambiguity reports an entry whose label matched no known outcome.
type Ambiguity struct {
	Index    int    `json:"index"`
	RecordID string `json:"recordId,omitempty"`
	Label    string `json:"label"`
}

// Result is the reconciliation of one history snapshot.
type Result struct {
	Normalized   []autotransfer.ExecutionRecord `json:"normalized"`
	Stats        Stats                          `json:"stats"`
	GroupedByDay []DayBucket                    `json:"groupedByDay"`
	Ambiguities  []Ambiguity                    `json:"ambiguities,omitempty"`
}

// Reconciler normalizes and summarizes execution history.
type Reconciler struct {
	loc    *time.Location
	logger *log.Logger
}

// NewReconciler constructs a Reconciler. Naive timestamps and day buckets use loc.
func NewReconciler(loc *time.Location, logger *log.Logger) *Reconciler {
	if loc == nil {
		loc = time.UTC
	}
	return &Reconciler{loc: loc, logger: logger}
}

// Location returns the zone used for day keys.
func (r *Reconciler) Location() *time.Location { return r.loc }

// Reconcile normalizes raw entries and summarizes them. It never fails:
// unknown labels resolve to PENDING and are reported as ambiguities.
func (r *Reconciler) Reconcile(entries []Entry) Result {
	records := make([]autotransfer.ExecutionRecord, 0, len(entries))
	var ambiguities []Ambiguity
	for i, entry := range entries {
		record, known := r.Normalize(entry)
		if !known {
			ambiguities = append(ambiguities, Ambiguity{Index: i, RecordID: entry.ID, Label: entry.Label()})
			metrics.IncReconcileAmbiguity()
			if r.logger != nil {
				r.logger.Printf("reconcile ambiguity: index=%d record=%s label=%q", i, entry.ID, entry.Label())
			}
		}
		metrics.IncReconcileRecord(string(record.Outcome))
		records = append(records, record)
	}
	result := r.Summarize(records)
	result.Ambiguities = ambiguities
	return result
}

// Normalize converts one entry into a canonical record.
func (r *Reconciler) Normalize(entry Entry) (autotransfer.ExecutionRecord, bool) {
	outcome, known := NormalizeOutcome(entry.Label())
	record := autotransfer.ExecutionRecord{
		ID:         entry.ID,
		ContractID: entry.ContractID,
		Amount:     entry.AmountValue(),
		Outcome:    outcome,
		RetryCount: entry.RetryCount,
	}
	if ts, ok := ResolveDate(entry, r.loc); ok {
		record.ExecutionDate = &ts
	}
	if scheduled, ok := ResolveScheduled(entry, r.loc); ok {
		record.ScheduledDate = scheduled
	}
	if created, err := ParseTimestamp(entry.CreatedAt, r.loc); err == nil {
		record.CreatedAt = created
	}
	switch outcome {
	case autotransfer.OutcomeSuccess:
		record.TransactionID = entry.TransactionRef()
	case autotransfer.OutcomeFailed:
		record.FailureReason = entry.FailureText()
		if record.FailureReason == "" {
			record.FailureReason = unknownFailure
		}
	}
	return record, known
}

// Summarize sorts canonical records newest first and computes stats and day buckets.
// The input slice is not modified.
func (r *Reconciler) Summarize(records []autotransfer.ExecutionRecord) Result {
	sorted := SortByDateDesc(records)
	return Result{
		Normalized:   sorted,
		Stats:        ComputeStats(sorted),
		GroupedByDay: r.GroupByDay(sorted),
	}
}

// ComputeStats counts outcomes. SuccessRate is a 0..1 fraction, 0 when empty.
func ComputeStats(records []autotransfer.ExecutionRecord) Stats {
	var stats Stats
	for i := range records {
		stats.Total++
		switch records[i].Outcome {
		case autotransfer.OutcomeSuccess:
			stats.Success++
		case autotransfer.OutcomeFailed:
			stats.Failed++
		default:
			stats.Pending++
		}
	}
	if stats.Total > 0 {
		stats.SuccessRate = float64(stats.Success) / float64(stats.Total)
	}
	return stats
}

// SortByDateDesc returns a copy ordered by execution date, newest first.
// Ties keep input order. Undated records go last.
func SortByDateDesc(records []autotransfer.ExecutionRecord) []autotransfer.ExecutionRecord {
	sorted := make([]autotransfer.ExecutionRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i].ExecutionDate, sorted[j].ExecutionDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})
	return sorted
}

// DayKey returns the calendar day of ts in the reconciler's zone.
func (r *Reconciler) DayKey(ts time.Time) string {
	return ts.In(r.loc).Format(dayKeyLayout)
}

// GroupByDay buckets records by calendar day in the reconciler's zone. Buckets
// are ordered newest day first and keep the order of records within a day.
// Records without a date form a trailing UndatedDay bucket.
func (r *Reconciler) GroupByDay(records []autotransfer.ExecutionRecord) []DayBucket {
	sorted := SortByDateDesc(records)
	buckets := make([]DayBucket, 0)
	index := make(map[string]int)
	for _, record := range sorted {
		key := UndatedDay
		if record.ExecutionDate != nil {
			key = r.DayKey(*record.ExecutionDate)
		}
		pos, ok := index[key]
		if !ok {
			pos = len(buckets)
			index[key] = pos
			buckets = append(buckets, DayBucket{Day: key})
		}
		buckets[pos].Records = append(buckets[pos].Records, record)
	}
	sort.SliceStable(buckets, func(i, j int) bool {
		if buckets[i].Day == UndatedDay {
			return false
		}
		if buckets[j].Day == UndatedDay {
			return true
		}
		return buckets[i].Day > buckets[j].Day
	})
	return buckets
}
