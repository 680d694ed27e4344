package postgres

import (
	"context"
	"database/sql"
	"errors"

	loan "rentflow-cloud/internal/loan/domain"
)

const applicationColumns = `id, owner_id, loan_type, status, current_step, max_amount, interest_rate,
	loan_term, created_at, updated_at`

// ApplicationRepository reads loan applications written by the approval pipeline.
type ApplicationRepository struct {
	db *sql.DB
}

// NewApplicationRepository constructs a repository.
func NewApplicationRepository(db *sql.DB) *ApplicationRepository {
	return &ApplicationRepository{db: db}
}

// FindByID returns an application or nil when absent.
func (r *ApplicationRepository) FindByID(ctx context.Context, id string) (*loan.Application, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("loan application repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT `+applicationColumns+`
FROM loan_applications
WHERE id = $1`, id)
	app, err := scanApplication(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &app, nil
}

// ListByOwner lists an owner's applications, newest first.
func (r *ApplicationRepository) ListByOwner(ctx context.Context, ownerID string) ([]loan.Application, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("loan application repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT `+applicationColumns+`
FROM loan_applications
WHERE owner_id = $1
ORDER BY created_at DESC, id ASC`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make([]loan.Application, 0)
	for rows.Next() {
		app, err := scanApplication(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, app)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApplication(row rowScanner) (loan.Application, error) {
	var (
		app  loan.Application
		term sql.NullInt32
	)
	if err := row.Scan(
		&app.ID,
		&app.OwnerID,
		&app.LoanType,
		&app.Status,
		&app.CurrentStep,
		&app.MaxAmount,
		&app.InterestRate,
		&term,
		&app.CreatedAt,
		&app.UpdatedAt,
	); err != nil {
		return loan.Application{}, err
	}
	if term.Valid {
		value := int(term.Int32)
		app.LoanTerm = &value
	}
	return app, nil
}
