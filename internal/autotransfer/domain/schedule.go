package autotransfer

import "time"

const (
	MinBillingDay = 1
	MaxBillingDay = 31

	dateLayout = "2006-01-02"
)

// ValidateBillingDay checks the billing day range.
func ValidateBillingDay(billingDay int) error {
	if billingDay < MinBillingDay || billingDay > MaxBillingDay {
		return &ValidationError{Field: "billing_day", Message: "billing day out of range"}
	}
	return nil
}

// DaysInMonth returns the number of days of month in year.
func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// NextDueDate returns the first billing date strictly after the calendar day of ref.
// The day of month is clamped to the month length, so billing day 31 falls on
// Feb 28/29, Apr 30 and so on. A due date equal to ref's calendar day counts as
// already reached: calling on the due date yields next month's date.
// The result is midnight in ref's location.
func NextDueDate(billingDay int, ref time.Time) (time.Time, error) {
	if err := ValidateBillingDay(billingDay); err != nil {
		return time.Time{}, err
	}
	loc := ref.Location()
	today := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, loc)

	candidate := clampedDate(ref.Year(), ref.Month(), billingDay, loc)
	if !candidate.After(today) {
		year, month := ref.Year(), ref.Month()+1
		if month > time.December {
			year, month = year+1, time.January
		}
		candidate = clampedDate(year, month, billingDay, loc)
	}
	return candidate, nil
}

// IsDue reports whether due falls on or before the calendar day of now.
func IsDue(due, now time.Time) bool {
	if due.IsZero() {
		return false
	}
	return DateKey(due) <= DateKey(now.In(due.Location()))
}

// DateKey formats the calendar date of t in its own location.
func DateKey(t time.Time) string {
	return t.Format(dateLayout)
}

// IdempotencyKey identifies one billing obligation of a contract.
func IdempotencyKey(contractID string, scheduled time.Time) string {
	return contractID + "|" + DateKey(scheduled)
}

func clampedDate(year int, month time.Month, billingDay int, loc *time.Location) time.Time {
	day := billingDay
	if last := DaysInMonth(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}
