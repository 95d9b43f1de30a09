package engine

import (
	"context"
	"database/sql"

	"docketline/internal/domain"
	"docketline/internal/repo"
)

// validateCaseTx re-checks the cross-entity invariants over the staged state
// of one case before commit. A failure here means the components were
// composed incorrectly; the transaction rolls back untouched. Cases are small
// enough to load whole, which keeps the checks direct.
func (e *Engine) validateCaseTx(ctx context.Context, tx *sql.Tx, caseID string) error {
	events, err := e.Repo.ListEventsTx(ctx, tx, caseID)
	if err != nil {
		return err
	}
	deadlines, err := e.Repo.ListDeadlinesTx(ctx, tx, caseID)
	if err != nil {
		return err
	}
	tasks, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{CaseID: caseID})
	if err != nil {
		return err
	}

	docs, err := e.Repo.ListDocumentsTx(ctx, tx, caseID)
	if err != nil {
		return err
	}
	docIDs := map[string]bool{}
	for _, d := range docs {
		docIDs[d.ID] = true
	}
	eventByID := map[string]domain.Event{}
	for _, ev := range events {
		eventByID[ev.ID] = ev
		if ev.DocumentID != nil && !docIDs[*ev.DocumentID] {
			return domain.InvariantViolation{
				Invariant: "same-case-references",
				Detail:    "event references document outside the case",
				EntityIDs: []string{ev.ID, *ev.DocumentID},
			}
		}
	}
	deadlineByID := map[string]domain.Deadline{}
	for _, d := range deadlines {
		deadlineByID[d.ID] = d
	}

	// referential integrity: deadline -> event within the same case
	for _, d := range deadlines {
		ev, ok := eventByID[d.EventID]
		if !ok {
			return domain.InvariantViolation{
				Invariant: "same-case-references",
				Detail:    "deadline references event outside the case",
				EntityIDs: []string{d.ID, d.EventID},
			}
		}
		// cancelled events must not leave open deadlines behind
		if d.Status == domain.DeadlineOpen && ev.Status == domain.EventCancelled {
			return domain.InvariantViolation{
				Invariant: "cascade-on-cancel",
				Detail:    "open deadline triggered by cancelled event",
				EntityIDs: []string{d.ID, ev.ID},
			}
		}
	}

	for _, t := range tasks {
		open := t.Status == domain.TaskPending || t.Status == domain.TaskInProgress
		switch t.TriggerKind {
		case domain.TriggerEvent:
			if t.EventID == nil {
				return domain.InvariantViolation{
					Invariant: "single-trigger",
					Detail:    "event-triggered task with no event reference",
					EntityIDs: []string{t.ID},
				}
			}
			ev, ok := eventByID[*t.EventID]
			if !ok {
				return domain.InvariantViolation{
					Invariant: "same-case-references",
					Detail:    "task references event outside the case",
					EntityIDs: []string{t.ID, *t.EventID},
				}
			}
			if open && ev.Status == domain.EventCancelled {
				return domain.InvariantViolation{
					Invariant: "cascade-on-cancel",
					Detail:    "open task triggered by cancelled event",
					EntityIDs: []string{t.ID, ev.ID},
				}
			}
		case domain.TriggerDeadline:
			if t.DeadlineID == nil {
				return domain.InvariantViolation{
					Invariant: "single-trigger",
					Detail:    "deadline-triggered task with no deadline reference",
					EntityIDs: []string{t.ID},
				}
			}
			d, ok := deadlineByID[*t.DeadlineID]
			if !ok {
				return domain.InvariantViolation{
					Invariant: "same-case-references",
					Detail:    "task references deadline outside the case",
					EntityIDs: []string{t.ID, *t.DeadlineID},
				}
			}
			if open && d.Status == domain.DeadlineSuperseded {
				return domain.InvariantViolation{
					Invariant: "superseded-task-replacement",
					Detail:    "open task still attached to superseded deadline",
					EntityIDs: []string{t.ID, d.ID},
				}
			}
			if open {
				if ev, ok := eventByID[d.EventID]; ok && ev.Status == domain.EventCancelled && d.Status == domain.DeadlineCancelled {
					// task should have been cancelled in the same cascade
					return domain.InvariantViolation{
						Invariant: "cascade-on-cancel",
						Detail:    "open task triggered by deadline of cancelled event",
						EntityIDs: []string{t.ID, d.ID, ev.ID},
					}
				}
			}
		default:
			return domain.InvariantViolation{
				Invariant: "single-trigger",
				Detail:    "task with unknown trigger kind " + t.TriggerKind,
				EntityIDs: []string{t.ID},
			}
		}
	}

	// every superseded deadline must point at its successor
	for _, d := range deadlines {
		if d.Status == domain.DeadlineSuperseded {
			if d.SupersededBy == nil {
				return domain.InvariantViolation{
					Invariant: "supersession-link",
					Detail:    "superseded deadline with no successor reference",
					EntityIDs: []string{d.ID},
				}
			}
			if _, ok := deadlineByID[*d.SupersededBy]; !ok {
				return domain.InvariantViolation{
					Invariant: "supersession-link",
					Detail:    "superseded deadline points outside the case",
					EntityIDs: []string{d.ID, *d.SupersededBy},
				}
			}
		}
	}
	return nil
}
