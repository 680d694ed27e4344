package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	autotransfer "rentflow-cloud/internal/autotransfer/domain"
)

const contractColumns = `id, owner_id, from_account, to_account, to_bank_code, to_bank_name, beneficiary_name,
	amount, billing_day, memo, status, next_transfer_date, total_executions, successful_executions,
	failed_executions, last_execution_date, created_at, updated_at`

const (
	uniqueViolation       = "23505"
	openAccountConstraint = "uq_auto_transfer_contracts_open_account"
)

// ContractRepository persists auto-transfer contracts.
type ContractRepository struct {
	db  *sql.DB
	loc *time.Location
}

// NewContractRepository constructs a repository. Dates are read back in loc.
func NewContractRepository(db *sql.DB, loc *time.Location) *ContractRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &ContractRepository{db: db, loc: loc}
}

// FindByID returns a contract or nil when absent.
func (r *ContractRepository) FindByID(ctx context.Context, id string) (*autotransfer.Contract, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("contract repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+contractColumns+`
FROM auto_transfer_contracts
WHERE id = $1`, id)
	return r.scanContract(row)
}

// FindOpenByAccount returns the owner's ACTIVE or SUSPENDED contract on a source account.
func (r *ContractRepository) FindOpenByAccount(ctx context.Context, ownerID, fromAccount string) (*autotransfer.Contract, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("contract repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+contractColumns+`
FROM auto_transfer_contracts
WHERE owner_id = $1 AND from_account = $2 AND status IN ('ACTIVE','SUSPENDED')
LIMIT 1`, ownerID, fromAccount)
	return r.scanContract(row)
}

// ListByOwner lists an owner's contracts, oldest first.
func (r *ContractRepository) ListByOwner(ctx context.Context, ownerID string) ([]autotransfer.Contract, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("contract repo: nil db")
	}
	return r.query(ctx, `
SELECT `+contractColumns+`
FROM auto_transfer_contracts
WHERE owner_id = $1
ORDER BY created_at ASC, id ASC`, ownerID)
}

// ListDue lists ACTIVE contracts whose next transfer date is on or before day.
func (r *ContractRepository) ListDue(ctx context.Context, day time.Time) ([]autotransfer.Contract, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("contract repo: nil db")
	}
	local := day.In(r.loc)
	return r.query(ctx, `
SELECT `+contractColumns+`
FROM auto_transfer_contracts
WHERE status = 'ACTIVE' AND next_transfer_date <= $1::date
ORDER BY next_transfer_date ASC, id ASC`, autotransfer.DateKey(local))
}

// Save upserts a contract.
func (r *ContractRepository) Save(ctx context.Context, c *autotransfer.Contract) error {
	if r == nil || r.db == nil {
		return errors.New("contract repo: nil db")
	}
	if c == nil {
		return autotransfer.ErrNilContract
	}
	var lastExecution any
	if c.LastExecutionDate != nil {
		lastExecution = c.LastExecutionDate.UTC()
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO auto_transfer_contracts (
	id, owner_id, from_account, to_account, to_bank_code, to_bank_name, beneficiary_name,
	amount, billing_day, memo, status, next_transfer_date, total_executions, successful_executions,
	failed_executions, last_execution_date, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12::date,$13,$14,$15,$16,$17,$18
)
ON CONFLICT (id) DO UPDATE SET
	status = EXCLUDED.status,
	next_transfer_date = EXCLUDED.next_transfer_date,
	total_executions = EXCLUDED.total_executions,
	successful_executions = EXCLUDED.successful_executions,
	failed_executions = EXCLUDED.failed_executions,
	last_execution_date = EXCLUDED.last_execution_date,
	memo = EXCLUDED.memo,
	updated_at = EXCLUDED.updated_at`,
		c.ID, c.OwnerID, c.FromAccount, c.ToAccount, c.ToBankCode, c.ToBankName, c.BeneficiaryName,
		c.Amount, c.BillingDay, c.Memo, string(c.Status), autotransfer.DateKey(c.NextTransferDate.In(r.loc)),
		c.TotalExecutions, c.SuccessfulExecutions, c.FailedExecutions, lastExecution,
		c.CreatedAt.UTC(), c.UpdatedAt.UTC(),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == openAccountConstraint {
		return autotransfer.ErrDuplicateContract
	}
	return err
}

func (r *ContractRepository) query(ctx context.Context, query string, args ...any) ([]autotransfer.Contract, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []autotransfer.Contract
	for rows.Next() {
		c, err := r.scanContract(rows)
		if err != nil {
			return nil, err
		}
		if c != nil {
			result = append(result, *c)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *ContractRepository) scanContract(row rowScanner) (*autotransfer.Contract, error) {
	var c autotransfer.Contract
	var status string
	var nextDate time.Time
	var lastExecution sql.NullTime
	err := row.Scan(
		&c.ID,
		&c.OwnerID,
		&c.FromAccount,
		&c.ToAccount,
		&c.ToBankCode,
		&c.ToBankName,
		&c.BeneficiaryName,
		&c.Amount,
		&c.BillingDay,
		&c.Memo,
		&status,
		&nextDate,
		&c.TotalExecutions,
		&c.SuccessfulExecutions,
		&c.FailedExecutions,
		&lastExecution,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	parsed, ok := autotransfer.ParseStatus(status)
	if !ok {
		return nil, &autotransfer.ValidationError{Field: "status", Message: "unknown persisted status " + status}
	}
	c.Status = parsed
	c.NextTransferDate = localDate(nextDate, r.loc)
	if lastExecution.Valid {
		at := lastExecution.Time.In(r.loc)
		c.LastExecutionDate = &at
	}
	c.CreatedAt = c.CreatedAt.In(r.loc)
	c.UpdatedAt = c.UpdatedAt.In(r.loc)
	return &c, nil
}

// localDate rebuilds a DATE column as midnight in loc.
func localDate(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
