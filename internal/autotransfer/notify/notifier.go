package notify

import "context"

// TransferAlert describes an obligation that exhausted its retries.
type TransferAlert struct {
	ContractID    string `json:"contract_id"`
	OwnerID       string `json:"owner_id"`
	ScheduledDate string `json:"scheduled_date"`
	Amount        string `json:"amount"`
	FailureReason string `json:"failure_reason"`
	RetryCount    int    `json:"retry_count"`
	NextTransfer  string `json:"next_transfer_date,omitempty"`
}

// Notifier sends operator alerts.
type Notifier interface {
	Notify(ctx context.Context, alert TransferAlert) error
}
