package loan

import (
	"time"

	"github.com/shopspring/decimal"
)

// Application is a loan application as the approval pipeline last wrote it.
// Status carries whichever vocabulary the backend emitted.
type Application struct {
	ID           string              `json:"id"`
	OwnerID      string              `json:"owner_id"`
	LoanType     string              `json:"loan_type"`
	Status       string              `json:"status"`
	CurrentStep  int                 `json:"current_step"`
	MaxAmount    decimal.Decimal     `json:"max_amount"`
	InterestRate decimal.NullDecimal `json:"interest_rate"`
	LoanTerm     *int                `json:"loan_term"`
	CreatedAt    time.Time           `json:"created_at"`
	UpdatedAt    time.Time           `json:"updated_at"`
}

// Payment is a disbursement record. Any of ApplicationID, LoanID or
// ContractNumber may be empty depending on the source that wrote it.
type Payment struct {
	ID             string          `json:"id"`
	ApplicationID  string          `json:"application_id,omitempty"`
	LoanID         string          `json:"loan_id,omitempty"`
	ContractNumber string          `json:"contract_number,omitempty"`
	PaymentAmount  decimal.Decimal `json:"payment_amount"`
	Status         string          `json:"status"`
	ExecutedAt     *time.Time      `json:"executed_at"`
	CreatedAt      *time.Time      `json:"created_at"`
}
