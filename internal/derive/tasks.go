package derive

import (
	"time"

	"github.com/google/uuid"

	"docketline/internal/domain"
	"docketline/internal/rules"
)

// Trigger is the one entity a task generation run is keyed on: an event or a
// deadline, never both.
type Trigger struct {
	Event    *domain.Event
	Deadline *domain.Deadline
}

func (t Trigger) kind() string {
	if t.Deadline != nil {
		return domain.TriggerDeadline
	}
	return domain.TriggerEvent
}

func (t Trigger) typeName() string {
	if t.Deadline != nil {
		return t.Deadline.Type
	}
	return t.Event.Type
}

func (t Trigger) id() string {
	if t.Deadline != nil {
		return t.Deadline.ID
	}
	return t.Event.ID
}

// GenerateTasks instantiates the catalog's templates for a trigger. A
// template is skipped when an open task for the same (trigger, type) pair
// already exists, mirroring the deriver's idempotency discipline.
func GenerateTasks(trigger Trigger, kase domain.Case, catalog *rules.Catalog, existing []domain.Task, now string) []domain.Task {
	templates := catalog.TaskTemplatesFor(trigger.typeName())
	var out []domain.Task
	for _, tpl := range templates {
		if hasOpenTask(existing, trigger, tpl.TaskType) {
			continue
		}
		priority := tpl.Priority
		if priority == "" {
			priority = "NORMAL"
		}
		task := domain.Task{
			ID:          uuid.New().String(),
			CaseID:      kase.ID,
			TriggerKind: trigger.kind(),
			Type:        tpl.TaskType,
			Title:       tpl.Title,
			Priority:    priority,
			Status:      domain.TaskPending,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if trigger.Deadline != nil {
			id := trigger.Deadline.ID
			task.DeadlineID = &id
			due := taskDueFromDeadline(trigger.Deadline.DueDate, tpl.LeadDays)
			task.DueDate = &due
		} else {
			id := trigger.Event.ID
			task.EventID = &id
			if tpl.OffsetDays > 0 {
				if due, ok := taskDueFromEvent(trigger.Event.OccurredAt, tpl.OffsetDays); ok {
					task.DueDate = &due
				}
			}
		}
		out = append(out, task)
	}
	return out
}

func hasOpenTask(existing []domain.Task, trigger Trigger, taskType string) bool {
	for _, t := range existing {
		if t.Type != taskType {
			continue
		}
		if t.Status != domain.TaskPending && t.Status != domain.TaskInProgress {
			continue
		}
		if t.TriggerKind == trigger.kind() && t.TriggerID() == trigger.id() {
			return true
		}
	}
	return false
}

func taskDueFromDeadline(dueDate string, leadDays int) string {
	if leadDays <= 0 {
		return dueDate
	}
	d, err := time.Parse("2006-01-02", dueDate)
	if err != nil {
		return dueDate
	}
	return d.AddDate(0, 0, -leadDays).Format("2006-01-02")
}

func taskDueFromEvent(occurredAt string, offsetDays int) (string, bool) {
	t, err := time.Parse(time.RFC3339, occurredAt)
	if err != nil {
		t, err = time.Parse("2006-01-02", occurredAt)
		if err != nil {
			return "", false
		}
	}
	return t.AddDate(0, 0, offsetDays).Format("2006-01-02"), true
}
