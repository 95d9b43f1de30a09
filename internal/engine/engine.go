package engine

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"docketline/internal/calendar"
	"docketline/internal/caselog"
	"docketline/internal/derive"
	"docketline/internal/domain"
	"docketline/internal/repo"
	"docketline/internal/rules"
)

// Engine is the case aggregate: the sole mutation authority. Every operation
// runs under the target case's lock and inside one transaction, so cascades
// are all-or-nothing and readers never observe a half-applied correction.
// Derivation itself is delegated to the pure functions in internal/derive;
// the engine computes first, then commits.
type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Log      caselog.Writer
	Catalog  *rules.Catalog
	Calendar calendar.Provider
	Now      func() time.Time

	locks sync.Map // case id -> *sync.Mutex
}

func New(db *sql.DB, catalog *rules.Catalog, provider calendar.Provider) *Engine {
	return &Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Log:      caselog.Writer{DB: db},
		Catalog:  catalog,
		Calendar: provider,
		Now:      time.Now,
	}
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) nowStr() string {
	return e.now().UTC().Format(time.RFC3339)
}

// lockCase serializes mutating operations per case. Operations on different
// cases proceed in parallel.
func (e *Engine) lockCase(caseID string) func() {
	v, _ := e.locks.LoadOrStore(caseID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// CaseCreateOptions are parameters for opening a case.
type CaseCreateOptions struct {
	ID                string
	Jurisdiction      string
	ApplicationNumber string
	FilingDate        string
	ActorID           string
}

func (e *Engine) CreateCase(ctx context.Context, opts CaseCreateOptions) (domain.Case, error) {
	if opts.Jurisdiction == "" {
		return domain.Case{}, errors.New("jurisdiction is required")
	}
	id := opts.ID
	if id == "" {
		id = uuid.New().String()
	}
	c := domain.Case{
		ID:                id,
		Jurisdiction:      opts.Jurisdiction,
		ApplicationNumber: optionalString(opts.ApplicationNumber),
		FilingDate:        optionalString(opts.FilingDate),
		Status:            "OPEN",
		CreatedAt:         e.nowStr(),
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `INSERT INTO cases(id,jurisdiction,application_number,filing_date,status,created_at) VALUES (?,?,?,?,?,?)`,
		c.ID, c.Jurisdiction, nullableStringPtr(c.ApplicationNumber), nullableStringPtr(c.FilingDate), c.Status, c.CreatedAt); err != nil {
		return domain.Case{}, err
	}
	if err := e.Log.Append(ctx, tx, "case.created", c.ID, "case", c.ID, opts.ActorID, caselog.Payload{"jurisdiction": c.Jurisdiction}); err != nil {
		return domain.Case{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Case{}, err
	}
	return c, nil
}

// DocumentSubmitOptions are parameters for document intake. Kind is supplied
// by the intake collaborator; the engine trusts its classification.
type DocumentSubmitOptions struct {
	CaseID        string
	Kind          string
	Source        string
	ReceivedAt    string
	ExternalRef   string
	ContentHandle string
	// OccurredAt overrides the derived events' occurrence timestamp; the
	// default is the document's received timestamp.
	OccurredAt string
	// ApplicationNumber, when the document reveals one the case lacks, is
	// recorded on the case.
	ApplicationNumber string
	ActorID           string
}

// IngestReport is the structured outcome of one ingest call.
type IngestReport struct {
	Document         domain.Document       `json:"document"`
	Events           []derive.EventOutcome `json:"events,omitempty"`
	Skipped          []derive.Skip         `json:"skipped,omitempty"`
	Deadlines        []domain.Deadline     `json:"deadlines,omitempty"`
	DeadlineFailures []derive.SpecFailure  `json:"deadline_failures,omitempty"`
	Tasks            []domain.Task         `json:"tasks,omitempty"`
}

// SubmitDocument persists a document and runs the full derivation cascade:
// document -> events -> deadlines -> tasks, all in one transaction.
func (e *Engine) SubmitDocument(ctx context.Context, opts DocumentSubmitOptions) (IngestReport, error) {
	if opts.CaseID == "" {
		return IngestReport{}, errors.New("case is required")
	}
	if opts.Kind == "" {
		return IngestReport{}, errors.New("kind is required")
	}
	if opts.Source == "" {
		opts.Source = "issuing-office"
	}
	unlock := e.lockCase(opts.CaseID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return IngestReport{}, err
	}
	defer tx.Rollback()

	kase, err := e.Repo.GetCaseTx(ctx, tx, opts.CaseID)
	if err != nil {
		return IngestReport{}, notFound(err, "case", opts.CaseID)
	}
	if kase.Status == "CLOSED" {
		return IngestReport{}, domain.ValidationError{Code: domain.CodeCaseClosed, Entity: "case", ID: kase.ID, Detail: "closed cases accept no new derivations"}
	}

	now := e.nowStr()
	received := opts.ReceivedAt
	if received == "" {
		received = now
	}
	// An external reference names the document; a repeat submit with the same
	// reference and kind resolves to the stored row so derivation recognizes
	// the earlier pass instead of minting a second identity.
	var doc domain.Document
	if opts.ExternalRef != "" {
		prior, err := e.Repo.FindDocumentByRefTx(ctx, tx, kase.ID, opts.ExternalRef)
		switch {
		case err == nil && prior.Kind == opts.Kind:
			doc = prior
		case err != nil && !errors.Is(err, repo.ErrNotFound):
			return IngestReport{}, err
		}
	}
	repeat := doc.ID != ""
	if !repeat {
		doc = domain.Document{
			ID:            uuid.New().String(),
			CaseID:        kase.ID,
			Kind:          opts.Kind,
			Source:        opts.Source,
			ReceivedAt:    received,
			ExternalRef:   opts.ExternalRef,
			ContentHandle: opts.ContentHandle,
			CreatedAt:     now,
		}
		if err := e.Repo.InsertDocumentTx(ctx, tx, doc); err != nil {
			return IngestReport{}, err
		}
	}
	if opts.ApplicationNumber != "" && kase.ApplicationNumber == nil {
		appNo := opts.ApplicationNumber
		if err := e.Repo.UpdateCaseIdentityTx(ctx, tx, kase.ID, &appNo, nil); err != nil {
			return IngestReport{}, err
		}
	}

	report, err := e.deriveFromDocumentTx(ctx, tx, kase, doc, opts.OccurredAt, opts.ActorID)
	if err != nil {
		return IngestReport{}, err
	}
	if err := e.Log.Append(ctx, tx, "document.ingested", kase.ID, "document", doc.ID, opts.ActorID, caselog.Payload{
		"kind":      doc.Kind,
		"repeat":    repeat,
		"events":    len(report.Events),
		"deadlines": len(report.Deadlines),
		"tasks":     len(report.Tasks),
		"skipped":   len(report.Skipped),
	}); err != nil {
		return IngestReport{}, err
	}
	if err := e.validateCaseTx(ctx, tx, kase.ID); err != nil {
		return IngestReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return IngestReport{}, err
	}
	return report, nil
}

// deriveFromDocumentTx runs the three pure derivation components against one
// document and stages every result in the transaction.
func (e *Engine) deriveFromDocumentTx(ctx context.Context, tx *sql.Tx, kase domain.Case, doc domain.Document, occurredAt, actorID string) (IngestReport, error) {
	report := IngestReport{Document: doc}
	now := e.nowStr()

	existing, err := e.Repo.ListEventsTx(ctx, tx, kase.ID)
	if err != nil {
		return report, err
	}
	res := derive.DeriveEvents(doc, kase, e.Catalog, existing, occurredAt, now)
	report.Events = res.Created
	report.Skipped = res.Skipped
	for _, s := range res.Skipped {
		if err := e.Log.Append(ctx, tx, "derivation.skipped", kase.ID, "document", doc.ID, actorID, caselog.Payload{
			"reason": s.Reason, "detail": s.Detail,
		}); err != nil {
			return report, err
		}
	}
	for _, out := range res.Created {
		if out.AlreadyExisted {
			continue
		}
		if err := e.Repo.InsertEventTx(ctx, tx, out.Event); err != nil {
			return report, err
		}
		if err := e.Log.Append(ctx, tx, "event.derived", kase.ID, "event", out.Event.ID, actorID, caselog.Payload{
			"type": out.Event.Type, "document_id": doc.ID,
		}); err != nil {
			return report, err
		}
		cascaded, err := e.cascadeFromEventTx(ctx, tx, kase, out.Event, actorID)
		if err != nil {
			return report, err
		}
		report.Deadlines = append(report.Deadlines, cascaded.Deadlines...)
		report.DeadlineFailures = append(report.DeadlineFailures, cascaded.DeadlineFailures...)
		report.Tasks = append(report.Tasks, cascaded.Tasks...)
	}
	return report, nil
}

type cascadeResult struct {
	Deadlines        []domain.Deadline
	DeadlineFailures []derive.SpecFailure
	Tasks            []domain.Task
}

// cascadeFromEventTx computes and stages the deadlines and tasks one new
// event gives rise to.
func (e *Engine) cascadeFromEventTx(ctx context.Context, tx *sql.Tx, kase domain.Case, event domain.Event, actorID string) (cascadeResult, error) {
	var out cascadeResult
	now := e.nowStr()

	dres := derive.ComputeDeadlines(event, kase, e.Catalog, e.Calendar, now)
	out.Deadlines = dres.Created
	out.DeadlineFailures = dres.Failures
	for _, f := range dres.Failures {
		if err := e.Log.Append(ctx, tx, "deadline.failed", kase.ID, "event", event.ID, actorID, caselog.Payload{
			"deadline_type": f.DeadlineType, "reason": f.Reason, "detail": f.Detail,
		}); err != nil {
			return out, err
		}
	}
	for _, d := range dres.Created {
		if err := e.Repo.InsertDeadlineTx(ctx, tx, d); err != nil {
			return out, err
		}
		if err := e.Log.Append(ctx, tx, "deadline.computed", kase.ID, "deadline", d.ID, actorID, caselog.Payload{
			"type": d.Type, "due_date": d.DueDate, "rule_basis": d.RuleBasis, "base_date": event.OccurredAt,
		}); err != nil {
			return out, err
		}
	}

	openTasks, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{CaseID: kase.ID})
	if err != nil {
		return out, err
	}
	tasks := derive.GenerateTasks(derive.Trigger{Event: &event}, kase, e.Catalog, openTasks, now)
	for _, d := range dres.Created {
		dl := d
		tasks = append(tasks, derive.GenerateTasks(derive.Trigger{Deadline: &dl}, kase, e.Catalog, openTasks, now)...)
	}
	for _, t := range tasks {
		if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			return out, err
		}
		if err := e.Log.Append(ctx, tx, "task.generated", kase.ID, "task", t.ID, actorID, caselog.Payload{
			"type": t.Type, "trigger_kind": t.TriggerKind, "trigger_id": t.TriggerID(),
		}); err != nil {
			return out, err
		}
	}
	out.Tasks = tasks
	return out, nil
}

// EventLogOptions are parameters for a manually logged, case-internal event.
type EventLogOptions struct {
	CaseID     string
	Type       string
	OccurredAt string
	Note       string
	ActorID    string
}

// LogEvent records an event with no source document and cascades deadlines
// and tasks from it like any derived event.
func (e *Engine) LogEvent(ctx context.Context, opts EventLogOptions) (IngestReport, error) {
	if opts.CaseID == "" || opts.Type == "" {
		return IngestReport{}, errors.New("case and type are required")
	}
	if e.Catalog.IsExtension(opts.Type) {
		return IngestReport{}, errors.New("extension events must be applied to a deadline, not logged directly")
	}
	unlock := e.lockCase(opts.CaseID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return IngestReport{}, err
	}
	defer tx.Rollback()

	kase, err := e.Repo.GetCaseTx(ctx, tx, opts.CaseID)
	if err != nil {
		return IngestReport{}, notFound(err, "case", opts.CaseID)
	}
	if kase.Status == "CLOSED" {
		return IngestReport{}, domain.ValidationError{Code: domain.CodeCaseClosed, Entity: "case", ID: kase.ID, Detail: "closed cases accept no new derivations"}
	}
	now := e.nowStr()
	occurred := opts.OccurredAt
	if occurred == "" {
		occurred = now
	}
	ev := domain.Event{
		ID:         uuid.New().String(),
		CaseID:     kase.ID,
		Type:       opts.Type,
		OccurredAt: occurred,
		Status:     domain.EventActive,
		Note:       opts.Note,
		CreatedAt:  now,
	}
	if err := e.Repo.InsertEventTx(ctx, tx, ev); err != nil {
		return IngestReport{}, err
	}
	if err := e.Log.Append(ctx, tx, "event.logged", kase.ID, "event", ev.ID, opts.ActorID, caselog.Payload{"type": ev.Type}); err != nil {
		return IngestReport{}, err
	}
	report := IngestReport{Events: []derive.EventOutcome{{Event: ev}}}
	cascaded, err := e.cascadeFromEventTx(ctx, tx, kase, ev, opts.ActorID)
	if err != nil {
		return IngestReport{}, err
	}
	report.Deadlines = cascaded.Deadlines
	report.DeadlineFailures = cascaded.DeadlineFailures
	report.Tasks = cascaded.Tasks
	if err := e.validateCaseTx(ctx, tx, kase.ID); err != nil {
		return IngestReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return IngestReport{}, err
	}
	return report, nil
}

// CancelEvent cancels an event and synchronously cascades: every OPEN
// deadline it triggered and every PENDING/IN_PROGRESS task triggered by it or
// by those deadlines is cancelled. Satisfied deadlines and done tasks are
// untouched. Repeating a cancellation with the same reason is a no-op;
// repeating with a different reason is rejected.
func (e *Engine) CancelEvent(ctx context.Context, eventID, reason, actorID string) (domain.Event, error) {
	ev, err := e.Repo.GetEvent(ctx, eventID)
	if err != nil {
		return domain.Event{}, notFound(err, "event", eventID)
	}
	unlock := e.lockCase(ev.CaseID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Event{}, err
	}
	defer tx.Rollback()

	ev, err = e.Repo.GetEventTx(ctx, tx, eventID)
	if err != nil {
		return domain.Event{}, notFound(err, "event", eventID)
	}
	if ev.Status == domain.EventCancelled {
		if ev.Note == reason {
			return ev, nil
		}
		return ev, domain.ValidationError{Code: domain.CodeAlreadyTerminal, Entity: "event", ID: ev.ID, Detail: "already cancelled with reason: " + ev.Note}
	}
	if err := e.Repo.CancelEventTx(ctx, tx, ev.ID, reason); err != nil {
		return ev, err
	}
	ev.Status = domain.EventCancelled
	ev.Note = reason
	if err := e.Log.Append(ctx, tx, "event.cancelled", ev.CaseID, "event", ev.ID, actorID, caselog.Payload{"reason": reason}); err != nil {
		return ev, err
	}
	if err := e.cancelDependentsTx(ctx, tx, ev, actorID); err != nil {
		return ev, err
	}
	if err := e.validateCaseTx(ctx, tx, ev.CaseID); err != nil {
		return ev, err
	}
	if err := tx.Commit(); err != nil {
		return ev, err
	}
	return ev, nil
}

func (e *Engine) cancelDependentsTx(ctx context.Context, tx *sql.Tx, ev domain.Event, actorID string) error {
	deadlines, err := e.Repo.ListDeadlinesByEventTx(ctx, tx, ev.ID)
	if err != nil {
		return err
	}
	for _, d := range deadlines {
		if d.Status != domain.DeadlineOpen {
			continue
		}
		if err := e.Repo.UpdateDeadlineStatusTx(ctx, tx, d.ID, domain.DeadlineCancelled, d.SupersededBy); err != nil {
			return err
		}
		if err := e.Log.Append(ctx, tx, "deadline.cancelled", ev.CaseID, "deadline", d.ID, actorID, caselog.Payload{"cascade_from": ev.ID}); err != nil {
			return err
		}
	}
	tasks, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{CaseID: ev.CaseID})
	if err != nil {
		return err
	}
	affected := map[string]bool{}
	for _, d := range deadlines {
		affected[d.ID] = true
	}
	now := e.nowStr()
	for _, t := range tasks {
		if t.Status != domain.TaskPending && t.Status != domain.TaskInProgress {
			continue
		}
		hit := t.EventID != nil && *t.EventID == ev.ID
		if !hit && t.DeadlineID != nil {
			hit = affected[*t.DeadlineID]
		}
		if !hit {
			continue
		}
		t.Status = domain.TaskCancelled
		t.UpdatedAt = now
		if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
			return err
		}
		if err := e.Log.Append(ctx, tx, "task.cancelled", ev.CaseID, "task", t.ID, actorID, caselog.Payload{"cascade_from": ev.ID}); err != nil {
			return err
		}
	}
	return nil
}

// SatisfyDeadline marks an OPEN deadline SATISFIED.
func (e *Engine) SatisfyDeadline(ctx context.Context, deadlineID, actorID string) (domain.Deadline, error) {
	d, err := e.Repo.GetDeadline(ctx, deadlineID)
	if err != nil {
		return domain.Deadline{}, notFound(err, "deadline", deadlineID)
	}
	unlock := e.lockCase(d.CaseID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return d, err
	}
	defer tx.Rollback()
	d, err = e.Repo.GetDeadlineTx(ctx, tx, deadlineID)
	if err != nil {
		return d, notFound(err, "deadline", deadlineID)
	}
	if d.Status != domain.DeadlineOpen {
		return d, domain.ValidationError{Code: domain.CodeInvalidTransition, Entity: "deadline", ID: d.ID, Detail: d.Status + " -> SATISFIED"}
	}
	if err := e.Repo.UpdateDeadlineStatusTx(ctx, tx, d.ID, domain.DeadlineSatisfied, d.SupersededBy); err != nil {
		return d, err
	}
	d.Status = domain.DeadlineSatisfied
	if err := e.Log.Append(ctx, tx, "deadline.satisfied", d.CaseID, "deadline", d.ID, actorID, nil); err != nil {
		return d, err
	}
	if err := tx.Commit(); err != nil {
		return d, err
	}
	return d, nil
}

// ExtensionOptions are parameters for applying an extension grant.
type ExtensionOptions struct {
	DeadlineID string
	Days       int
	// OccurredAt is the grant date; defaults to now.
	OccurredAt string
	ActorID    string
}

// ExtensionReport carries everything one extension changed.
type ExtensionReport struct {
	Event    domain.Event    `json:"event"`
	Prior    domain.Deadline `json:"prior"`
	New      domain.Deadline `json:"new"`
	Tasks    []domain.Task   `json:"tasks,omitempty"`
	Replaced []string        `json:"replaced_task_ids,omitempty"`
}

// ApplyExtension supersedes an OPEN deadline with a recomputed one: records
// the EXTENSION_GRANTED event, marks the prior deadline SUPERSEDED pointing
// at its replacement, cancels the prior's open tasks, and generates fresh
// tasks against the new deadline. One transaction.
func (e *Engine) ApplyExtension(ctx context.Context, opts ExtensionOptions) (ExtensionReport, error) {
	if opts.Days <= 0 {
		return ExtensionReport{}, errors.New("days must be positive")
	}
	prior, err := e.Repo.GetDeadline(ctx, opts.DeadlineID)
	if err != nil {
		return ExtensionReport{}, notFound(err, "deadline", opts.DeadlineID)
	}
	unlock := e.lockCase(prior.CaseID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return ExtensionReport{}, err
	}
	defer tx.Rollback()

	prior, err = e.Repo.GetDeadlineTx(ctx, tx, opts.DeadlineID)
	if err != nil {
		return ExtensionReport{}, notFound(err, "deadline", opts.DeadlineID)
	}
	if prior.Status != domain.DeadlineOpen {
		return ExtensionReport{}, domain.ValidationError{Code: domain.CodeNotOpen, Entity: "deadline", ID: prior.ID, Detail: "status " + prior.Status}
	}
	kase, err := e.Repo.GetCaseTx(ctx, tx, prior.CaseID)
	if err != nil {
		return ExtensionReport{}, notFound(err, "case", prior.CaseID)
	}
	if kase.Status == "CLOSED" {
		return ExtensionReport{}, domain.ValidationError{Code: domain.CodeCaseClosed, Entity: "case", ID: kase.ID, Detail: "closed cases accept no new derivations"}
	}

	now := e.nowStr()
	occurred := opts.OccurredAt
	if occurred == "" {
		occurred = now
	}
	extType := "EXTENSION_GRANTED"
	if len(e.Catalog.Extensions) > 0 {
		extType = e.Catalog.Extensions[0]
	}
	ev := domain.Event{
		ID:         uuid.New().String(),
		CaseID:     kase.ID,
		Type:       extType,
		OccurredAt: occurred,
		Status:     domain.EventActive,
		Note:       "extends deadline " + prior.ID,
		CreatedAt:  now,
	}
	ext, err := derive.ComputeExtension(ev, prior, opts.Days, kase, e.Calendar, now)
	if err != nil {
		return ExtensionReport{}, err
	}
	if err := e.Repo.InsertEventTx(ctx, tx, ev); err != nil {
		return ExtensionReport{}, err
	}
	if err := e.Repo.InsertDeadlineTx(ctx, tx, ext.New); err != nil {
		return ExtensionReport{}, err
	}
	newID := ext.New.ID
	if err := e.Repo.UpdateDeadlineStatusTx(ctx, tx, prior.ID, domain.DeadlineSuperseded, &newID); err != nil {
		return ExtensionReport{}, err
	}
	if err := e.Log.Append(ctx, tx, "deadline.superseded", kase.ID, "deadline", prior.ID, opts.ActorID, caselog.Payload{
		"superseded_by": newID, "days": opts.Days, "new_due_date": ext.New.DueDate,
	}); err != nil {
		return ExtensionReport{}, err
	}

	report := ExtensionReport{Event: ev, Prior: prior, New: ext.New}
	report.Prior.Status = domain.DeadlineSuperseded
	report.Prior.SupersededBy = &newID

	// invariant 4: open tasks against the superseded deadline are replaced,
	// not carried over
	tasks, err := e.Repo.ListTasksTx(ctx, tx, repo.TaskFilters{CaseID: kase.ID})
	if err != nil {
		return ExtensionReport{}, err
	}
	for _, t := range tasks {
		if t.DeadlineID == nil || *t.DeadlineID != prior.ID {
			continue
		}
		if t.Status != domain.TaskPending && t.Status != domain.TaskInProgress {
			continue
		}
		t.Status = domain.TaskCancelled
		t.UpdatedAt = now
		if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
			return ExtensionReport{}, err
		}
		if err := e.Log.Append(ctx, tx, "task.cancelled", kase.ID, "task", t.ID, opts.ActorID, caselog.Payload{"cascade_from": prior.ID}); err != nil {
			return ExtensionReport{}, err
		}
		report.Replaced = append(report.Replaced, t.ID)
	}
	newDL := ext.New
	fresh := derive.GenerateTasks(derive.Trigger{Deadline: &newDL}, kase, e.Catalog, nil, now)
	for _, t := range fresh {
		if err := e.Repo.InsertTaskTx(ctx, tx, t); err != nil {
			return ExtensionReport{}, err
		}
		if err := e.Log.Append(ctx, tx, "task.generated", kase.ID, "task", t.ID, opts.ActorID, caselog.Payload{
			"type": t.Type, "trigger_kind": t.TriggerKind, "trigger_id": t.TriggerID(),
		}); err != nil {
			return ExtensionReport{}, err
		}
	}
	report.Tasks = fresh
	if err := e.validateCaseTx(ctx, tx, kase.ID); err != nil {
		return ExtensionReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return ExtensionReport{}, err
	}
	return report, nil
}

// StartTask moves a PENDING task to IN_PROGRESS.
func (e *Engine) StartTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	return e.transitionTask(ctx, taskID, actorID, domain.TaskInProgress, "task.started", []string{domain.TaskPending})
}

// CompleteTask marks a task DONE. Allowed on closed cases for record-keeping.
func (e *Engine) CompleteTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	return e.transitionTask(ctx, taskID, actorID, domain.TaskDone, "task.done", []string{domain.TaskPending, domain.TaskInProgress})
}

// CancelTask cancels a PENDING or IN_PROGRESS task.
func (e *Engine) CancelTask(ctx context.Context, taskID, actorID string) (domain.Task, error) {
	return e.transitionTask(ctx, taskID, actorID, domain.TaskCancelled, "task.cancelled", []string{domain.TaskPending, domain.TaskInProgress})
}

func (e *Engine) transitionTask(ctx context.Context, taskID, actorID, target, logType string, from []string) (domain.Task, error) {
	t, err := e.Repo.GetTask(ctx, taskID)
	if err != nil {
		return domain.Task{}, notFound(err, "task", taskID)
	}
	unlock := e.lockCase(t.CaseID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return t, err
	}
	defer tx.Rollback()
	t, err = e.Repo.GetTaskTx(ctx, tx, taskID)
	if err != nil {
		return t, notFound(err, "task", taskID)
	}
	allowed := false
	for _, s := range from {
		if t.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return t, domain.ValidationError{Code: domain.CodeInvalidTransition, Entity: "task", ID: t.ID, Detail: t.Status + " -> " + target}
	}
	now := e.nowStr()
	t.Status = target
	t.UpdatedAt = now
	if target == domain.TaskDone {
		t.CompletedAt = &now
	}
	if err := e.Repo.UpdateTaskTx(ctx, tx, t); err != nil {
		return t, err
	}
	if err := e.Log.Append(ctx, tx, logType, t.CaseID, "task", t.ID, actorID, caselog.Payload{"status": t.Status}); err != nil {
		return t, err
	}
	if err := tx.Commit(); err != nil {
		return t, err
	}
	return t, nil
}

// CloseCase stops new derivations; corrections stay permitted.
func (e *Engine) CloseCase(ctx context.Context, caseID, actorID string) (domain.Case, error) {
	return e.transitionCase(ctx, caseID, actorID, "CLOSED", "case.closed")
}

// ReopenCase reverses CloseCase.
func (e *Engine) ReopenCase(ctx context.Context, caseID, actorID string) (domain.Case, error) {
	return e.transitionCase(ctx, caseID, actorID, "OPEN", "case.reopened")
}

func (e *Engine) transitionCase(ctx context.Context, caseID, actorID, target, logType string) (domain.Case, error) {
	unlock := e.lockCase(caseID)
	defer unlock()
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Case{}, err
	}
	defer tx.Rollback()
	c, err := e.Repo.GetCaseTx(ctx, tx, caseID)
	if err != nil {
		return domain.Case{}, notFound(err, "case", caseID)
	}
	if c.Status == target {
		return c, nil
	}
	if err := e.Repo.UpdateCaseStatusTx(ctx, tx, caseID, target); err != nil {
		return c, err
	}
	c.Status = target
	if err := e.Log.Append(ctx, tx, logType, c.ID, "case", c.ID, actorID, nil); err != nil {
		return c, err
	}
	if err := tx.Commit(); err != nil {
		return c, err
	}
	return c, nil
}

// ReclassifyOptions are parameters for correcting a document's kind.
type ReclassifyOptions struct {
	DocumentID string
	NewKind    string
	ActorID    string
}

// ReclassifyDocument supersedes a misclassified document with a corrected
// copy: the old document's active events are cancelled (normal cascade) and
// derivation runs again under the new kind.
func (e *Engine) ReclassifyDocument(ctx context.Context, opts ReclassifyOptions) (IngestReport, error) {
	if opts.NewKind == "" {
		return IngestReport{}, errors.New("new kind is required")
	}
	old, err := e.Repo.GetDocument(ctx, opts.DocumentID)
	if err != nil {
		return IngestReport{}, notFound(err, "document", opts.DocumentID)
	}
	unlock := e.lockCase(old.CaseID)
	defer unlock()

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return IngestReport{}, err
	}
	defer tx.Rollback()

	old, err = e.Repo.GetDocumentTx(ctx, tx, opts.DocumentID)
	if err != nil {
		return IngestReport{}, notFound(err, "document", opts.DocumentID)
	}
	if old.Superseded {
		return IngestReport{}, domain.ValidationError{Code: domain.CodeAlreadyTerminal, Entity: "document", ID: old.ID, Detail: "already superseded"}
	}
	kase, err := e.Repo.GetCaseTx(ctx, tx, old.CaseID)
	if err != nil {
		return IngestReport{}, notFound(err, "case", old.CaseID)
	}
	if kase.Status == "CLOSED" {
		return IngestReport{}, domain.ValidationError{Code: domain.CodeCaseClosed, Entity: "case", ID: kase.ID, Detail: "closed cases accept no new derivations"}
	}

	now := e.nowStr()
	replacement := old
	replacement.ID = uuid.New().String()
	replacement.Kind = opts.NewKind
	replacement.Superseded = false
	replacement.SupersededBy = nil
	replacement.CreatedAt = now
	if err := e.Repo.InsertDocumentTx(ctx, tx, replacement); err != nil {
		return IngestReport{}, err
	}
	if err := e.Repo.MarkDocumentSupersededTx(ctx, tx, old.ID, replacement.ID); err != nil {
		return IngestReport{}, err
	}
	if err := e.Log.Append(ctx, tx, "document.reclassified", kase.ID, "document", old.ID, opts.ActorID, caselog.Payload{
		"old_kind": old.Kind, "new_kind": opts.NewKind, "replacement": replacement.ID,
	}); err != nil {
		return IngestReport{}, err
	}

	events, err := e.Repo.ListEventsByDocumentTx(ctx, tx, old.ID)
	if err != nil {
		return IngestReport{}, err
	}
	reason := "document " + old.ID + " reclassified"
	for _, ev := range events {
		if ev.Status != domain.EventActive {
			continue
		}
		if err := e.Repo.CancelEventTx(ctx, tx, ev.ID, reason); err != nil {
			return IngestReport{}, err
		}
		ev.Status = domain.EventCancelled
		if err := e.Log.Append(ctx, tx, "event.cancelled", kase.ID, "event", ev.ID, opts.ActorID, caselog.Payload{"reason": reason}); err != nil {
			return IngestReport{}, err
		}
		if err := e.cancelDependentsTx(ctx, tx, ev, opts.ActorID); err != nil {
			return IngestReport{}, err
		}
	}

	report, err := e.deriveFromDocumentTx(ctx, tx, kase, replacement, "", opts.ActorID)
	if err != nil {
		return IngestReport{}, err
	}
	if err := e.validateCaseTx(ctx, tx, kase.ID); err != nil {
		return IngestReport{}, err
	}
	if err := tx.Commit(); err != nil {
		return IngestReport{}, err
	}
	return report, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullableStringPtr(v *string) any {
	if v == nil || *v == "" {
		return nil
	}
	return *v
}

func notFound(err error, entity, id string) error {
	if errors.Is(err, repo.ErrNotFound) {
		return domain.ValidationError{Code: domain.CodeNotFound, Entity: entity, ID: id}
	}
	return err
}
