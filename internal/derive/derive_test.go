package derive

import (
	"strings"
	"testing"

	"docketline/internal/calendar"
	"docketline/internal/domain"
	"docketline/internal/rules"
)

const testNow = "2024-03-01T00:00:00Z"

func twCase() domain.Case {
	return domain.Case{ID: "case-1", Jurisdiction: "TW", Status: "OPEN"}
}

func oaDoc() domain.Document {
	return domain.Document{ID: "doc-1", CaseID: "case-1", Kind: domain.DocKindOfficeAction, ReceivedAt: testNow}
}

func TestDerivationKeyStable(t *testing.T) {
	a := DerivationKey("doc-1", "2024.1", "OA_RECEIVED")
	b := DerivationKey("doc-1", "2024.1", "OA_RECEIVED")
	if a != b {
		t.Fatalf("key not deterministic: %s vs %s", a, b)
	}
	if DerivationKey("doc-2", "2024.1", "OA_RECEIVED") == a {
		t.Fatalf("key ignores document id")
	}
	if DerivationKey("doc-1", "2024.2", "OA_RECEIVED") == a {
		t.Fatalf("key ignores catalog version")
	}
}

func TestDeriveEvents(t *testing.T) {
	cat := rules.Default()
	res := DeriveEvents(oaDoc(), twCase(), cat, nil, "", testNow)
	if len(res.Created) != 1 || res.Created[0].AlreadyExisted {
		t.Fatalf("expected one fresh event, got %+v", res)
	}
	ev := res.Created[0].Event
	if ev.Type != "OA_RECEIVED" || ev.Status != domain.EventActive {
		t.Fatalf("unexpected event %+v", ev)
	}
	if ev.DocumentID == nil || *ev.DocumentID != "doc-1" {
		t.Fatalf("event not linked to document")
	}
	if ev.OccurredAt != testNow {
		t.Fatalf("occurrence should default to receipt: %s", ev.OccurredAt)
	}

	// a matching ACTIVE event short-circuits the derivation
	again := DeriveEvents(oaDoc(), twCase(), cat, []domain.Event{ev}, "", testNow)
	if len(again.Created) != 1 || !again.Created[0].AlreadyExisted {
		t.Fatalf("expected idempotency hit, got %+v", again)
	}
	if again.Created[0].Event.ID != ev.ID {
		t.Fatalf("idempotency hit should return the existing event")
	}

	// a CANCELLED twin does not block re-derivation
	cancelled := ev
	cancelled.Status = domain.EventCancelled
	redo := DeriveEvents(oaDoc(), twCase(), cat, []domain.Event{cancelled}, "", testNow)
	if len(redo.Created) != 1 || redo.Created[0].AlreadyExisted {
		t.Fatalf("cancelled event should not satisfy idempotency: %+v", redo)
	}
}

func TestDeriveEventsUnmappedKind(t *testing.T) {
	cat := rules.Default()
	doc := oaDoc()
	doc.Kind = "misc-letter"
	res := DeriveEvents(doc, twCase(), cat, nil, "", testNow)
	if len(res.Created) != 0 {
		t.Fatalf("unexpected events: %+v", res.Created)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Reason != domain.SkipUnmappedDocumentKind {
		t.Fatalf("expected unmapped skip, got %+v", res.Skipped)
	}
}

func TestDeriveEventsExtensionKindSkips(t *testing.T) {
	cat := rules.Default()
	custom := *cat
	custom.Events = append(custom.Events, rules.EventRule{
		DocumentKind: "extension-grant", EventType: "EXTENSION_GRANTED",
	})
	doc := oaDoc()
	doc.Kind = "extension-grant"
	res := DeriveEvents(doc, twCase(), &custom, nil, "", testNow)
	if len(res.Created) != 0 {
		t.Fatalf("extension kind derived a bare event: %+v", res.Created)
	}
	if len(res.Skipped) != 1 || res.Skipped[0].Reason != domain.SkipExtensionNeedsDeadline {
		t.Fatalf("expected EXTENSION_NEEDS_DEADLINE skip, got %+v", res.Skipped)
	}
}

func TestDeriveEventsOccurredAtOverride(t *testing.T) {
	cat := rules.Default()
	res := DeriveEvents(oaDoc(), twCase(), cat, nil, "2024-02-15T00:00:00Z", testNow)
	if res.Created[0].Event.OccurredAt != "2024-02-15T00:00:00Z" {
		t.Fatalf("occurred_at override ignored: %s", res.Created[0].Event.OccurredAt)
	}
}

func TestComputeDeadlines(t *testing.T) {
	cat := rules.Default()
	provider := calendar.NewBusiness(cat)
	event := domain.Event{ID: "ev-1", CaseID: "case-1", Type: "OA_RECEIVED", OccurredAt: testNow, Status: domain.EventActive}

	res := ComputeDeadlines(event, twCase(), cat, provider, testNow)
	if len(res.Created) != 1 || len(res.Failures) != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	d := res.Created[0]
	if d.Type != "OA_RESPONSE_DUE" || d.EventID != "ev-1" || d.Status != domain.DeadlineOpen {
		t.Fatalf("unexpected deadline %+v", d)
	}
	if d.DueDate != "2024-05-30" {
		t.Fatalf("due = %s, want 2024-05-30", d.DueDate)
	}
}

func TestComputeDeadlinesFailureIsolation(t *testing.T) {
	cat := rules.Default()
	custom := *cat
	custom.Deadlines = []rules.DeadlineSpec{
		{EventType: "OA_RECEIVED", DeadlineType: "OA_RESPONSE_DUE", Days: 90},
		{EventType: "OA_RECEIVED", DeadlineType: "BROKEN_DUE", Days: 0},
	}
	provider := calendar.NewBusiness(&custom)
	event := domain.Event{ID: "ev-1", Type: "OA_RECEIVED", OccurredAt: testNow}

	res := ComputeDeadlines(event, twCase(), &custom, provider, testNow)
	if len(res.Created) != 1 || res.Created[0].Type != "OA_RESPONSE_DUE" {
		t.Fatalf("resolvable spec should survive its broken sibling: %+v", res.Created)
	}
	if len(res.Failures) != 1 || res.Failures[0].DeadlineType != "BROKEN_DUE" || res.Failures[0].Reason != domain.SkipUnresolvableCalendar {
		t.Fatalf("expected UNRESOLVABLE_CALENDAR failure for BROKEN_DUE, got %+v", res.Failures)
	}
}

func TestComputeDeadlinesUnsupportedJurisdiction(t *testing.T) {
	cat := rules.Default()
	custom := *cat
	custom.Deadlines = []rules.DeadlineSpec{{EventType: "OA_RECEIVED", DeadlineType: "OA_RESPONSE_DUE", Days: 90}}
	provider := calendar.NewBusiness(&custom)
	kase := twCase()
	kase.Jurisdiction = "JP" // no calendar data in the default catalog
	event := domain.Event{ID: "ev-1", Type: "OA_RECEIVED", OccurredAt: testNow}

	res := ComputeDeadlines(event, kase, &custom, provider, testNow)
	if len(res.Created) != 0 || len(res.Failures) != 1 {
		t.Fatalf("expected one failure, got %+v", res)
	}
}

func TestComputeExtension(t *testing.T) {
	cat := rules.Default()
	provider := calendar.NewBusiness(cat)
	prior := domain.Deadline{
		ID: "dl-1", CaseID: "case-1", EventID: "ev-1", Type: "OA_RESPONSE_DUE",
		DueDate: "2024-05-30", Status: domain.DeadlineOpen, RuleBasis: "OA response: 90 days",
	}
	grant := domain.Event{ID: "ev-2", CaseID: "case-1", Type: "EXTENSION_GRANTED", OccurredAt: "2024-06-03T00:00:00Z"}

	ext, err := ComputeExtension(grant, prior, 30, twCase(), provider, testNow)
	if err != nil {
		t.Fatalf("extension: %v", err)
	}
	if ext.PriorID != "dl-1" {
		t.Fatalf("prior id = %s", ext.PriorID)
	}
	if ext.New.Type != prior.Type || ext.New.EventID != prior.EventID {
		t.Fatalf("replacement should keep type and event: %+v", ext.New)
	}
	if ext.New.DueDate != "2024-07-03" {
		t.Fatalf("due = %s, want recomputed from grant date", ext.New.DueDate)
	}
	if !strings.Contains(ext.New.RuleBasis, "extended 30 days") {
		t.Fatalf("basis should record the extension: %s", ext.New.RuleBasis)
	}
}

func TestGenerateTasksFromDeadline(t *testing.T) {
	cat := rules.Default()
	dl := domain.Deadline{ID: "dl-1", CaseID: "case-1", Type: "OA_RESPONSE_DUE", DueDate: "2024-05-30", Status: domain.DeadlineOpen}

	tasks := GenerateTasks(Trigger{Deadline: &dl}, twCase(), cat, nil, testNow)
	if len(tasks) != 2 {
		t.Fatalf("expected DRAFT and FILE tasks, got %d", len(tasks))
	}
	byType := map[string]domain.Task{}
	for _, tk := range tasks {
		byType[tk.Type] = tk
		if tk.TriggerKind != domain.TriggerDeadline || tk.DeadlineID == nil || *tk.DeadlineID != "dl-1" {
			t.Fatalf("task not pinned to deadline: %+v", tk)
		}
		if tk.Status != domain.TaskPending {
			t.Fatalf("fresh task not pending: %+v", tk)
		}
	}
	if due := byType["DRAFT_OA_RESPONSE"].DueDate; due == nil || *due != "2024-05-16" {
		t.Fatalf("lead days not applied: %v", due)
	}
	if due := byType["FILE_RESPONSE"].DueDate; due == nil || *due != "2024-05-30" {
		t.Fatalf("zero lead should match the deadline: %v", due)
	}
}

func TestGenerateTasksFromEvent(t *testing.T) {
	cat := rules.Default()
	ev := domain.Event{ID: "ev-1", CaseID: "case-1", Type: "OA_RECEIVED", OccurredAt: testNow}

	tasks := GenerateTasks(Trigger{Event: &ev}, twCase(), cat, nil, testNow)
	if len(tasks) != 1 || tasks[0].Type != "DOCKET_REVIEW" {
		t.Fatalf("expected DOCKET_REVIEW, got %+v", tasks)
	}
	if tasks[0].DueDate == nil || *tasks[0].DueDate != "2024-03-08" {
		t.Fatalf("offset days not applied: %v", tasks[0].DueDate)
	}
	// ASSIGNMENT_RECORDED's template has no offset, so no due date
	ev2 := domain.Event{ID: "ev-2", CaseID: "case-1", Type: "ASSIGNMENT_RECORDED", OccurredAt: testNow}
	tasks = GenerateTasks(Trigger{Event: &ev2}, twCase(), cat, nil, testNow)
	if len(tasks) != 1 || tasks[0].DueDate != nil {
		t.Fatalf("zero offset should leave due date empty: %+v", tasks)
	}
	if tasks[0].Priority != "LOW" {
		t.Fatalf("template priority not carried: %s", tasks[0].Priority)
	}
}

func TestGenerateTasksDedup(t *testing.T) {
	cat := rules.Default()
	ev := domain.Event{ID: "ev-1", CaseID: "case-1", Type: "OA_RECEIVED", OccurredAt: testNow}
	evID := ev.ID
	open := domain.Task{
		ID: "task-1", CaseID: "case-1", Type: "DOCKET_REVIEW",
		TriggerKind: domain.TriggerEvent, EventID: &evID, Status: domain.TaskPending,
	}

	if got := GenerateTasks(Trigger{Event: &ev}, twCase(), cat, []domain.Task{open}, testNow); len(got) != 0 {
		t.Fatalf("open duplicate not suppressed: %+v", got)
	}
	// a terminal twin does not suppress regeneration
	done := open
	done.Status = domain.TaskDone
	if got := GenerateTasks(Trigger{Event: &ev}, twCase(), cat, []domain.Task{done}, testNow); len(got) != 1 {
		t.Fatalf("done task should not block a fresh one: %+v", got)
	}
	// same type against a different trigger is a different task
	otherID := "ev-other"
	other := open
	other.EventID = &otherID
	if got := GenerateTasks(Trigger{Event: &ev}, twCase(), cat, []domain.Task{other}, testNow); len(got) != 1 {
		t.Fatalf("different trigger should not suppress: %+v", got)
	}
}

func TestGenerateTasksDefaultPriority(t *testing.T) {
	cat := &rules.Catalog{
		Version: "test",
		Tasks:   []rules.TaskTemplate{{Trigger: "X_EVENT", TaskType: "X_TASK"}},
	}
	ev := domain.Event{ID: "ev-1", CaseID: "case-1", Type: "X_EVENT", OccurredAt: testNow}
	tasks := GenerateTasks(Trigger{Event: &ev}, twCase(), cat, nil, testNow)
	if len(tasks) != 1 || tasks[0].Priority != "NORMAL" {
		t.Fatalf("missing NORMAL default: %+v", tasks)
	}
}

func TestDueDateParsesBareDates(t *testing.T) {
	cat := rules.Default()
	provider := calendar.NewBusiness(cat)
	event := domain.Event{ID: "ev-1", Type: "OA_RECEIVED", OccurredAt: "2024-03-01"}
	res := ComputeDeadlines(event, twCase(), cat, provider, testNow)
	if len(res.Created) != 1 || res.Created[0].DueDate != "2024-05-30" {
		t.Fatalf("bare date occurrence not handled: %+v", res)
	}
}
