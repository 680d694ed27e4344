package loan

import (
	"errors"
	"testing"
)

func TestExtractContractNumber(t *testing.T) {
	number, err := ExtractContractNumber("app-1:C-2024-07")
	if err != nil || number != "C-2024-07" {
		t.Fatalf("expected C-2024-07, got %q %v", number, err)
	}
	number, err = ExtractContractNumber("app-1")
	if err != nil || number != "" {
		t.Fatalf("expected no contract number, got %q %v", number, err)
	}
	if _, err := ExtractContractNumber(""); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty id, got %v", err)
	}
	if _, err := ExtractContractNumber("app-1:"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for empty suffix, got %v", err)
	}
}

func TestHasDisbursed_EachCorrelationPath(t *testing.T) {
	app := Application{ID: "app-1:C-9"}
	cases := []struct {
		name    string
		payment Payment
		field   MatchField
	}{
		{"application id", Payment{ApplicationID: "app-1:C-9"}, MatchApplicationID},
		{"loan id", Payment{LoanID: "app-1:C-9"}, MatchLoanID},
		{"contract number", Payment{ContractNumber: "C-9"}, MatchContractNumber},
	}
	for _, tc := range cases {
		_, field, ok := MatchDisbursement(app, []Payment{{ApplicationID: "other"}, tc.payment})
		if !ok || field != tc.field {
			t.Fatalf("%s: expected match on %s, got %s/%v", tc.name, tc.field, field, ok)
		}
		if !HasDisbursed(app, []Payment{tc.payment}) {
			t.Fatalf("%s: expected disbursed", tc.name)
		}
	}
}

func TestHasDisbursed_NoMatch(t *testing.T) {
	app := Application{ID: "app-1"}
	payments := []Payment{
		{ApplicationID: "app-2"},
		{LoanID: "app-3"},
		{ContractNumber: "app-1"},
		{},
	}
	if HasDisbursed(app, payments) {
		t.Fatalf("expected no match")
	}
	if HasDisbursed(Application{}, []Payment{{}}) {
		t.Fatalf("empty fields must never match")
	}
	if HasDisbursed(Application{ID: "app-1:"}, []Payment{{ContractNumber: ""}}) {
		t.Fatalf("malformed id must not match")
	}
	if HasDisbursed(app, nil) {
		t.Fatalf("expected false on empty payments")
	}
}

func TestActiveObligations(t *testing.T) {
	apps := []Application{
		{ID: "a", Status: "승인완료"},
		{ID: "b", Status: "COMPLETED"},
		{ID: "c:C-1", Status: "CONTRACT_CREATED"},
		{ID: "d", Status: "mystery"},
	}
	payments := []Payment{{ContractNumber: "C-1"}}
	active := ActiveObligations(apps, payments)
	if len(active) != 2 || active[0].ID != "a" || active[1].ID != "d" {
		t.Fatalf("unexpected active obligations %+v", active)
	}
}
