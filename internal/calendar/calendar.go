package calendar

import (
	"fmt"
	"time"

	"docketline/internal/rules"
)

// Provider computes concrete due dates. The engine depends only on this
// interface; the default implementation below is business-day aware but a
// deployment may plug an external docketing calendar instead.
type Provider interface {
	ComputeDueDate(start time.Time, days int, jurisdiction string) (time.Time, error)
}

// UnsupportedJurisdictionError reports a jurisdiction the provider has no
// calendar data for.
type UnsupportedJurisdictionError struct {
	Jurisdiction string
}

func (e UnsupportedJurisdictionError) Error() string {
	return fmt.Sprintf("UNSUPPORTED_JURISDICTION: no calendar for %s", e.Jurisdiction)
}

// CalculationError reports an input the provider cannot compute a date from.
type CalculationError struct {
	Detail string
}

func (e CalculationError) Error() string {
	return fmt.Sprintf("CALCULATION_ERROR: %s", e.Detail)
}

// Business rolls due dates forward past weekends and holidays using the
// per-jurisdiction data carried in the rule catalog.
type Business struct {
	Calendars map[string]rules.CalendarSpec
}

// NewBusiness builds a provider from a catalog's calendar tables.
func NewBusiness(c *rules.Catalog) *Business {
	return &Business{Calendars: c.Calendars}
}

const maxRoll = 366

func (b *Business) ComputeDueDate(start time.Time, days int, jurisdiction string) (time.Time, error) {
	spec, ok := b.Calendars[jurisdiction]
	if !ok {
		return time.Time{}, UnsupportedJurisdictionError{Jurisdiction: jurisdiction}
	}
	if days <= 0 {
		return time.Time{}, CalculationError{Detail: fmt.Sprintf("non-positive duration %d", days)}
	}
	if start.IsZero() {
		return time.Time{}, CalculationError{Detail: "zero start date"}
	}
	weekend := map[time.Weekday]bool{}
	for _, name := range spec.Weekend {
		weekend[weekdayFromName(name)] = true
	}
	holidays := map[string]bool{}
	for _, h := range spec.Holidays {
		holidays[h] = true
	}
	due := start.AddDate(0, 0, days)
	for i := 0; ; i++ {
		if i > maxRoll {
			return time.Time{}, CalculationError{Detail: fmt.Sprintf("no business day within %d days of %s", maxRoll, due.Format("2006-01-02"))}
		}
		if !weekend[due.Weekday()] && !holidays[due.Format("2006-01-02")] {
			return due, nil
		}
		due = due.AddDate(0, 0, 1)
	}
}

func weekdayFromName(name string) time.Weekday {
	switch name {
	case "Sunday":
		return time.Sunday
	case "Monday":
		return time.Monday
	case "Tuesday":
		return time.Tuesday
	case "Wednesday":
		return time.Wednesday
	case "Thursday":
		return time.Thursday
	case "Friday":
		return time.Friday
	case "Saturday":
		return time.Saturday
	}
	return time.Sunday
}
