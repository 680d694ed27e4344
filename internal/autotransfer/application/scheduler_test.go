package application

import (
	"context"
	"testing"
	"time"
)

type countingRunner struct {
	calls int
}

func (r *countingRunner) RunDue(ctx context.Context) (RunSummary, error) {
	r.calls++
	return RunSummary{}, nil
}

func TestScheduler_RunsOncePerDayAtConfiguredMinute(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Seoul")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	runner := &countingRunner{}
	scheduler := NewScheduler(runner, "09:00", loc, nil)

	cases := []struct {
		at   time.Time
		runs bool
	}{
		{time.Date(2024, 3, 25, 8, 59, 0, 0, loc), false},
		{time.Date(2024, 3, 25, 9, 0, 0, 0, loc), true},
		{time.Date(2024, 3, 25, 9, 0, 30, 0, loc), false},
		{time.Date(2024, 3, 26, 9, 0, 0, 0, loc), true},
	}
	for _, tc := range cases {
		if got := scheduler.shouldRun(tc.at); got != tc.runs {
			t.Fatalf("shouldRun(%s)=%v, want %v", tc.at, got, tc.runs)
		}
		if tc.runs {
			scheduler.runOnce(context.Background(), tc.at)
		}
	}
	if runner.calls != 2 {
		t.Fatalf("expected 2 runs, got %d", runner.calls)
	}
}

func TestScheduler_InvalidDailyAtNeverRuns(t *testing.T) {
	scheduler := NewScheduler(&countingRunner{}, "9am", nil, nil)
	if scheduler.shouldRun(time.Date(2024, 3, 25, 9, 0, 0, 0, time.UTC)) {
		t.Fatalf("expected no run for invalid daily_at")
	}
}
