package postgres

import (
	"context"
	"database/sql"
	"errors"

	loan "rentflow-cloud/internal/loan/domain"
)

// PaymentRepository reads disbursement records.
type PaymentRepository struct {
	db *sql.DB
}

// NewPaymentRepository constructs a repository.
func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// ListByOwner lists an owner's disbursement records. Null correlation
// columns come back as empty strings, which never match.
func (r *PaymentRepository) ListByOwner(ctx context.Context, ownerID string) ([]loan.Payment, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("loan payment repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, application_id, loan_id, contract_number, payment_amount, status, executed_at, created_at
FROM loan_payments
WHERE owner_id = $1
ORDER BY COALESCE(executed_at, created_at) DESC NULLS LAST, id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]loan.Payment, 0)
	for rows.Next() {
		var (
			p              loan.Payment
			applicationID  sql.NullString
			loanID         sql.NullString
			contractNumber sql.NullString
			executedAt     sql.NullTime
			createdAt      sql.NullTime
		)
		if err := rows.Scan(&p.ID, &applicationID, &loanID, &contractNumber, &p.PaymentAmount, &p.Status, &executedAt, &createdAt); err != nil {
			return nil, err
		}
		p.ApplicationID = applicationID.String
		p.LoanID = loanID.String
		p.ContractNumber = contractNumber.String
		if executedAt.Valid {
			at := executedAt.Time
			p.ExecutedAt = &at
		}
		if createdAt.Valid {
			at := createdAt.Time
			p.CreatedAt = &at
		}
		result = append(result, p)
	}
	return result, rows.Err()
}
