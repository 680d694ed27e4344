package loan

import "strings"

// ContractSeparator splits an application id from its contract-number suffix.
const ContractSeparator = ":"

// MatchField names the correlation field a disbursement matched on.
type MatchField string

const (
	MatchApplicationID  MatchField = "application_id"
	MatchLoanID         MatchField = "loan_id"
	MatchContractNumber MatchField = "contract_number"
)

// ExtractContractNumber returns the trailing segment after the last separator.
// An id without a separator has no contract number and yields "", nil.
func ExtractContractNumber(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", &ValidationError{Field: "application_id", Message: "empty identifier"}
	}
	pos := strings.LastIndex(id, ContractSeparator)
	if pos < 0 {
		return "", nil
	}
	suffix := strings.TrimSpace(id[pos+len(ContractSeparator):])
	if suffix == "" {
		return "", &ValidationError{Field: "application_id", Message: "empty contract number after separator"}
	}
	return suffix, nil
}

// HasContractSuffix reports whether the id carries a well-formed contract number.
func HasContractSuffix(id string) bool {
	number, err := ExtractContractNumber(id)
	return err == nil && number != ""
}

// MatchDisbursement finds the first payment correlated to the application.
// Fields are compared independently and an empty field never matches.
func MatchDisbursement(app Application, payments []Payment) (Payment, MatchField, bool) {
	if app.ID == "" {
		return Payment{}, "", false
	}
	contractNumber, _ := ExtractContractNumber(app.ID)
	for _, payment := range payments {
		switch {
		case sameID(payment.ApplicationID, app.ID):
			return payment, MatchApplicationID, true
		case sameID(payment.LoanID, app.ID):
			return payment, MatchLoanID, true
		case sameID(payment.ContractNumber, contractNumber):
			return payment, MatchContractNumber, true
		}
	}
	return Payment{}, "", false
}

// HasDisbursed reports whether any payment already disbursed the application.
func HasDisbursed(app Application, payments []Payment) bool {
	_, _, ok := MatchDisbursement(app, payments)
	return ok
}

// ActiveObligations drops applications that are disbursed or COMPLETED.
func ActiveObligations(apps []Application, payments []Payment) []Application {
	active := make([]Application, 0, len(apps))
	for _, app := range apps {
		if stage, _ := NormalizeStage(app.Status); stage == StageCompleted {
			continue
		}
		if HasDisbursed(app, payments) {
			continue
		}
		active = append(active, app)
	}
	return active
}

func sameID(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	return a != "" && b != "" && a == b
}
