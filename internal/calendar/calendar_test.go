package calendar

import (
	"errors"
	"testing"
	"time"

	"docketline/internal/rules"
)

func provider() *Business {
	return NewBusiness(rules.Default())
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestComputeDueDateWeekday(t *testing.T) {
	// Friday 2024-03-01 + 90 days is Thursday 2024-05-30, no roll needed
	due, err := provider().ComputeDueDate(date(2024, 3, 1), 90, "TW")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := due.Format("2006-01-02"); got != "2024-05-30" {
		t.Fatalf("due = %s, want 2024-05-30", got)
	}
}

func TestComputeDueDateRollsPastWeekend(t *testing.T) {
	// Friday + 1 day is Saturday; rolls to Monday
	due, err := provider().ComputeDueDate(date(2024, 3, 1), 1, "TW")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := due.Format("2006-01-02"); got != "2024-03-04" {
		t.Fatalf("due = %s, want the following Monday", got)
	}
}

func TestComputeDueDateRollsPastHoliday(t *testing.T) {
	// 2024-07-01 + 3 days lands on the US July 4 holiday; rolls to the 5th
	due, err := provider().ComputeDueDate(date(2024, 7, 1), 3, "US")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := due.Format("2006-01-02"); got != "2024-07-05" {
		t.Fatalf("due = %s, want 2024-07-05", got)
	}
}

func TestComputeDueDateHolidayThenWeekend(t *testing.T) {
	// 2024-12-24 + 1 is Christmas (US holiday, a Wednesday); rolls to the 26th
	due, err := provider().ComputeDueDate(date(2024, 12, 24), 1, "US")
	if err != nil {
		t.Fatalf("compute: %v", err)
	}
	if got := due.Format("2006-01-02"); got != "2024-12-26" {
		t.Fatalf("due = %s, want 2024-12-26", got)
	}
}

func TestComputeDueDateUnknownJurisdiction(t *testing.T) {
	_, err := provider().ComputeDueDate(date(2024, 3, 1), 30, "JP")
	var uj UnsupportedJurisdictionError
	if !errors.As(err, &uj) || uj.Jurisdiction != "JP" {
		t.Fatalf("expected UnsupportedJurisdictionError, got %v", err)
	}
}

func TestComputeDueDateBadInputs(t *testing.T) {
	var ce CalculationError
	if _, err := provider().ComputeDueDate(date(2024, 3, 1), 0, "TW"); !errors.As(err, &ce) {
		t.Fatalf("zero days: %v", err)
	}
	if _, err := provider().ComputeDueDate(time.Time{}, 30, "TW"); !errors.As(err, &ce) {
		t.Fatalf("zero start: %v", err)
	}
}

func TestComputeDueDateAllDaysBlocked(t *testing.T) {
	b := &Business{Calendars: map[string]rules.CalendarSpec{
		"XX": {Weekend: []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}},
	}}
	_, err := b.ComputeDueDate(date(2024, 3, 1), 10, "XX")
	var ce CalculationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CalculationError when no day qualifies, got %v", err)
	}
}
