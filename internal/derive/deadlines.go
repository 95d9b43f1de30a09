package derive

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"docketline/internal/calendar"
	"docketline/internal/domain"
	"docketline/internal/rules"
)

// SpecFailure reports one deadline spec the calendar could not resolve.
// Sibling specs are unaffected.
type SpecFailure struct {
	DeadlineType string `json:"deadline_type"`
	Reason       string `json:"reason"`
	Detail       string `json:"detail,omitempty"`
}

// DeadlineResult is the calculator's structured output for the ordinary
// (non-extension) path.
type DeadlineResult struct {
	Created  []domain.Deadline `json:"created"`
	Failures []SpecFailure     `json:"failures,omitempty"`
}

// Extension is the structured output of the extension path: one new OPEN
// deadline plus the instruction to mark the prior one SUPERSEDED by it.
// The engine applies both in the same transaction.
type Extension struct {
	New     domain.Deadline `json:"new"`
	PriorID string          `json:"prior_id"`
}

// ComputeDeadlines fans an event out into the deadlines its specs call for.
// One unresolvable spec does not abort its siblings.
func ComputeDeadlines(event domain.Event, kase domain.Case, catalog *rules.Catalog, provider calendar.Provider, now string) DeadlineResult {
	var res DeadlineResult
	specs := catalog.DeadlineSpecsFor(event.Type, kase.Jurisdiction)
	for _, spec := range specs {
		due, err := dueDate(event.OccurredAt, spec.Days, kase.Jurisdiction, provider)
		if err != nil {
			res.Failures = append(res.Failures, SpecFailure{
				DeadlineType: spec.DeadlineType,
				Reason:       domain.SkipUnresolvableCalendar,
				Detail:       err.Error(),
			})
			continue
		}
		res.Created = append(res.Created, domain.Deadline{
			ID:        uuid.New().String(),
			CaseID:    kase.ID,
			EventID:   event.ID,
			Type:      spec.DeadlineType,
			DueDate:   due,
			Status:    domain.DeadlineOpen,
			RuleBasis: spec.Basis,
			CreatedAt: now,
		})
	}
	return res
}

// ComputeExtension recomputes a superseded deadline's due date from the
// extension event's occurrence plus the granted duration. The new deadline
// keeps the prior's type, rule basis, and triggering event.
func ComputeExtension(event domain.Event, prior domain.Deadline, days int, kase domain.Case, provider calendar.Provider, now string) (Extension, error) {
	due, err := dueDate(event.OccurredAt, days, kase.Jurisdiction, provider)
	if err != nil {
		return Extension{}, err
	}
	basis := prior.RuleBasis
	if basis != "" {
		basis = fmt.Sprintf("%s (extended %d days)", basis, days)
	}
	return Extension{
		New: domain.Deadline{
			ID:        uuid.New().String(),
			CaseID:    kase.ID,
			EventID:   prior.EventID,
			Type:      prior.Type,
			DueDate:   due,
			Status:    domain.DeadlineOpen,
			RuleBasis: basis,
			CreatedAt: now,
		},
		PriorID: prior.ID,
	}, nil
}

func dueDate(occurredAt string, days int, jurisdiction string, provider calendar.Provider) (string, error) {
	start, err := time.Parse(time.RFC3339, occurredAt)
	if err != nil {
		// occurred timestamps may arrive as bare dates from manual entry
		start, err = time.Parse("2006-01-02", occurredAt)
		if err != nil {
			return "", calendar.CalculationError{Detail: "unparseable occurrence date " + occurredAt}
		}
	}
	due, err := provider.ComputeDueDate(start, days, jurisdiction)
	if err != nil {
		return "", err
	}
	return due.Format("2006-01-02"), nil
}
