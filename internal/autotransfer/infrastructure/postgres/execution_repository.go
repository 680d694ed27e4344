package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	autotransfer "rentflow-cloud/internal/autotransfer/domain"
)

const executionColumns = `id, contract_id, scheduled_date, execution_date, amount, outcome,
	transaction_id, failure_reason, retry_count, created_at`

// ExecutionRepository persists execution attempts, one row per contract and scheduled day.
type ExecutionRepository struct {
	db  *sql.DB
	loc *time.Location
}

// NewExecutionRepository constructs a repository.
func NewExecutionRepository(db *sql.DB, loc *time.Location) *ExecutionRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &ExecutionRepository{db: db, loc: loc}
}

// FindByKey returns the attempt for contract+scheduled day or nil.
func (r *ExecutionRepository) FindByKey(ctx context.Context, contractID string, scheduled time.Time) (*autotransfer.ExecutionRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("execution repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+executionColumns+`
FROM auto_transfer_executions
WHERE contract_id = $1 AND scheduled_date = $2::date`, contractID, autotransfer.DateKey(scheduled.In(r.loc)))
	return r.scanExecution(row)
}

// ListByContract lists a contract's attempts, newest scheduled first.
func (r *ExecutionRepository) ListByContract(ctx context.Context, contractID string) ([]autotransfer.ExecutionRecord, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("execution repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+executionColumns+`
FROM auto_transfer_executions
WHERE contract_id = $1
ORDER BY scheduled_date DESC, created_at DESC`, contractID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []autotransfer.ExecutionRecord
	for rows.Next() {
		rec, err := r.scanExecution(rows)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			result = append(result, *rec)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Save upserts an attempt on (contract_id, scheduled_date).
func (r *ExecutionRepository) Save(ctx context.Context, rec *autotransfer.ExecutionRecord) error {
	if r == nil || r.db == nil {
		return errors.New("execution repo: nil db")
	}
	if rec == nil {
		return autotransfer.ErrNilExecution
	}
	var executionDate any
	if rec.ExecutionDate != nil {
		executionDate = rec.ExecutionDate.UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO auto_transfer_executions (
	id, contract_id, scheduled_date, execution_date, amount, outcome,
	transaction_id, failure_reason, retry_count, created_at
) VALUES (
	$1,$2,$3::date,$4,$5,$6,$7,$8,$9,$10
)
ON CONFLICT (contract_id, scheduled_date) DO UPDATE SET
	execution_date = EXCLUDED.execution_date,
	outcome = EXCLUDED.outcome,
	transaction_id = EXCLUDED.transaction_id,
	failure_reason = EXCLUDED.failure_reason,
	retry_count = EXCLUDED.retry_count`,
		rec.ID, rec.ContractID, autotransfer.DateKey(rec.ScheduledDate.In(r.loc)), executionDate, rec.Amount,
		string(rec.Outcome), nullString(rec.TransactionID), nullString(rec.FailureReason), rec.RetryCount, rec.CreatedAt.UTC(),
	)
	return err
}

func (r *ExecutionRepository) scanExecution(row rowScanner) (*autotransfer.ExecutionRecord, error) {
	var rec autotransfer.ExecutionRecord
	var scheduled time.Time
	var executed sql.NullTime
	var outcome string
	var transactionID sql.NullString
	var failureReason sql.NullString
	err := row.Scan(
		&rec.ID,
		&rec.ContractID,
		&scheduled,
		&executed,
		&rec.Amount,
		&outcome,
		&transactionID,
		&failureReason,
		&rec.RetryCount,
		&rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	rec.ScheduledDate = localDate(scheduled, r.loc)
	if executed.Valid {
		at := executed.Time.In(r.loc)
		rec.ExecutionDate = &at
	}
	rec.Outcome = autotransfer.Outcome(outcome)
	if transactionID.Valid {
		rec.TransactionID = transactionID.String
	}
	if failureReason.Valid {
		rec.FailureReason = failureReason.String
	}
	rec.CreatedAt = rec.CreatedAt.In(r.loc)
	return &rec, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
