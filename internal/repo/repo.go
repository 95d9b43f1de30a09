package repo

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"docketline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

// querier is satisfied by both *sql.DB and *sql.Tx so reads can run inside
// or outside a unit of work.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// --- cases ---

const caseCols = `id,jurisdiction,application_number,filing_date,status,created_at`

func scanCase(row *sql.Row) (domain.Case, error) {
	var c domain.Case
	var appNo, filing sql.NullString
	err := row.Scan(&c.ID, &c.Jurisdiction, &appNo, &filing, &c.Status, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return c, ErrNotFound
	}
	if appNo.Valid {
		c.ApplicationNumber = &appNo.String
	}
	if filing.Valid {
		c.FilingDate = &filing.String
	}
	return c, err
}

func (r Repo) InsertCase(ctx context.Context, c domain.Case) error {
	_, err := r.DB.ExecContext(ctx, `INSERT INTO cases(`+caseCols+`) VALUES (?,?,?,?,?,?)`,
		c.ID, c.Jurisdiction, nullableStringPtr(c.ApplicationNumber), nullableStringPtr(c.FilingDate), c.Status, c.CreatedAt)
	return err
}

func (r Repo) GetCase(ctx context.Context, id string) (domain.Case, error) {
	return scanCase(r.DB.QueryRowContext(ctx, `SELECT `+caseCols+` FROM cases WHERE id=?`, id))
}

func (r Repo) GetCaseTx(ctx context.Context, tx *sql.Tx, id string) (domain.Case, error) {
	return scanCase(tx.QueryRowContext(ctx, `SELECT `+caseCols+` FROM cases WHERE id=?`, id))
}

func (r Repo) ListCases(ctx context.Context) ([]domain.Case, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT `+caseCols+` FROM cases ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Case
	for rows.Next() {
		var c domain.Case
		var appNo, filing sql.NullString
		if err := rows.Scan(&c.ID, &c.Jurisdiction, &appNo, &filing, &c.Status, &c.CreatedAt); err != nil {
			return nil, err
		}
		if appNo.Valid {
			c.ApplicationNumber = &appNo.String
		}
		if filing.Valid {
			c.FilingDate = &filing.String
		}
		res = append(res, c)
	}
	return res, nil
}

func (r Repo) UpdateCaseStatusTx(ctx context.Context, tx *sql.Tx, id, status string) error {
	res, err := tx.ExecContext(ctx, `UPDATE cases SET status=? WHERE id=?`, status, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r Repo) UpdateCaseIdentityTx(ctx context.Context, tx *sql.Tx, id string, applicationNumber, filingDate *string) error {
	var fields []string
	var args []any
	if applicationNumber != nil {
		fields = append(fields, "application_number=?")
		args = append(args, nullableStringPtr(applicationNumber))
	}
	if filingDate != nil {
		fields = append(fields, "filing_date=?")
		args = append(args, nullableStringPtr(filingDate))
	}
	if len(fields) == 0 {
		return nil
	}
	args = append(args, id)
	_, err := tx.ExecContext(ctx, `UPDATE cases SET `+strings.Join(fields, ",")+` WHERE id=?`, args...)
	return err
}

// --- documents ---

const docCols = `id,case_id,kind,source,received_at,external_ref,content_handle,superseded,superseded_by,created_at`

func (r Repo) InsertDocumentTx(ctx context.Context, tx *sql.Tx, d domain.Document) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO documents(`+docCols+`) VALUES (?,?,?,?,?,?,?,?,?,?)`,
		d.ID, d.CaseID, d.Kind, d.Source, d.ReceivedAt, nullable(d.ExternalRef), nullable(d.ContentHandle),
		boolInt(d.Superseded), nullableStringPtr(d.SupersededBy), d.CreatedAt)
	return err
}

func scanDocumentRow(scan func(dest ...any) error) (domain.Document, error) {
	var d domain.Document
	var extRef, handle, supBy sql.NullString
	var superseded int
	err := scan(&d.ID, &d.CaseID, &d.Kind, &d.Source, &d.ReceivedAt, &extRef, &handle, &superseded, &supBy, &d.CreatedAt)
	if err != nil {
		return d, err
	}
	if extRef.Valid {
		d.ExternalRef = extRef.String
	}
	if handle.Valid {
		d.ContentHandle = handle.String
	}
	d.Superseded = superseded != 0
	if supBy.Valid {
		d.SupersededBy = &supBy.String
	}
	return d, nil
}

func (r Repo) getDocument(ctx context.Context, q querier, id string) (domain.Document, error) {
	row := q.QueryRowContext(ctx, `SELECT `+docCols+` FROM documents WHERE id=?`, id)
	d, err := scanDocumentRow(row.Scan)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) GetDocument(ctx context.Context, id string) (domain.Document, error) {
	return r.getDocument(ctx, r.DB, id)
}

func (r Repo) GetDocumentTx(ctx context.Context, tx *sql.Tx, id string) (domain.Document, error) {
	return r.getDocument(ctx, tx, id)
}

func (r Repo) ListDocuments(ctx context.Context, caseID string) ([]domain.Document, error) {
	return r.listDocuments(ctx, r.DB, caseID)
}

func (r Repo) ListDocumentsTx(ctx context.Context, tx *sql.Tx, caseID string) ([]domain.Document, error) {
	return r.listDocuments(ctx, tx, caseID)
}

func (r Repo) listDocuments(ctx context.Context, q querier, caseID string) ([]domain.Document, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+docCols+` FROM documents WHERE case_id=? ORDER BY created_at DESC, id DESC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Document
	for rows.Next() {
		d, err := scanDocumentRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

// FindDocumentByRefTx returns the newest live document in the case carrying
// the external reference, so a repeat ingest resolves to the same identity.
func (r Repo) FindDocumentByRefTx(ctx context.Context, tx *sql.Tx, caseID, externalRef string) (domain.Document, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+docCols+` FROM documents
		WHERE case_id=? AND external_ref=? AND superseded=0
		ORDER BY created_at DESC, id DESC LIMIT 1`, caseID, externalRef)
	d, err := scanDocumentRow(row.Scan)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) MarkDocumentSupersededTx(ctx context.Context, tx *sql.Tx, id, supersededBy string) error {
	res, err := tx.ExecContext(ctx, `UPDATE documents SET superseded=1, superseded_by=? WHERE id=?`, supersededBy, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- events ---

const eventCols = `id,case_id,document_id,type,occurred_at,status,derivation_key,note,created_at`

func (r Repo) InsertEventTx(ctx context.Context, tx *sql.Tx, e domain.Event) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO events(`+eventCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		e.ID, e.CaseID, nullableStringPtr(e.DocumentID), e.Type, e.OccurredAt, e.Status,
		nullable(e.DerivationKey), nullable(e.Note), e.CreatedAt)
	return err
}

func scanEventRow(scan func(dest ...any) error) (domain.Event, error) {
	var e domain.Event
	var docID, key, note sql.NullString
	err := scan(&e.ID, &e.CaseID, &docID, &e.Type, &e.OccurredAt, &e.Status, &key, &note, &e.CreatedAt)
	if err != nil {
		return e, err
	}
	if docID.Valid {
		e.DocumentID = &docID.String
	}
	if key.Valid {
		e.DerivationKey = key.String
	}
	if note.Valid {
		e.Note = note.String
	}
	return e, nil
}

func (r Repo) getEvent(ctx context.Context, q querier, id string) (domain.Event, error) {
	row := q.QueryRowContext(ctx, `SELECT `+eventCols+` FROM events WHERE id=?`, id)
	e, err := scanEventRow(row.Scan)
	if err == sql.ErrNoRows {
		return e, ErrNotFound
	}
	return e, err
}

func (r Repo) GetEvent(ctx context.Context, id string) (domain.Event, error) {
	return r.getEvent(ctx, r.DB, id)
}

func (r Repo) GetEventTx(ctx context.Context, tx *sql.Tx, id string) (domain.Event, error) {
	return r.getEvent(ctx, tx, id)
}

func (r Repo) listEvents(ctx context.Context, q querier, caseID string) ([]domain.Event, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+eventCols+` FROM events WHERE case_id=? ORDER BY created_at DESC, id DESC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEventRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

func (r Repo) ListEvents(ctx context.Context, caseID string) ([]domain.Event, error) {
	return r.listEvents(ctx, r.DB, caseID)
}

func (r Repo) ListEventsTx(ctx context.Context, tx *sql.Tx, caseID string) ([]domain.Event, error) {
	return r.listEvents(ctx, tx, caseID)
}

func (r Repo) ListEventsByDocumentTx(ctx context.Context, tx *sql.Tx, documentID string) ([]domain.Event, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+eventCols+` FROM events WHERE document_id=?`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		e, err := scanEventRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, e)
	}
	return res, nil
}

// CancelEventTx retires an event, recording the reason in its note.
func (r Repo) CancelEventTx(ctx context.Context, tx *sql.Tx, id, reason string) error {
	res, err := tx.ExecContext(ctx, `UPDATE events SET status='CANCELLED', note=? WHERE id=?`, nullable(reason), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- deadlines ---

const deadlineCols = `id,case_id,event_id,type,due_date,status,superseded_by,rule_basis,created_at`

func (r Repo) InsertDeadlineTx(ctx context.Context, tx *sql.Tx, d domain.Deadline) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO deadlines(`+deadlineCols+`) VALUES (?,?,?,?,?,?,?,?,?)`,
		d.ID, d.CaseID, d.EventID, d.Type, d.DueDate, d.Status,
		nullableStringPtr(d.SupersededBy), nullable(d.RuleBasis), d.CreatedAt)
	return err
}

func scanDeadlineRow(scan func(dest ...any) error) (domain.Deadline, error) {
	var d domain.Deadline
	var supBy, basis sql.NullString
	err := scan(&d.ID, &d.CaseID, &d.EventID, &d.Type, &d.DueDate, &d.Status, &supBy, &basis, &d.CreatedAt)
	if err != nil {
		return d, err
	}
	if supBy.Valid {
		d.SupersededBy = &supBy.String
	}
	if basis.Valid {
		d.RuleBasis = basis.String
	}
	return d, nil
}

func (r Repo) getDeadline(ctx context.Context, q querier, id string) (domain.Deadline, error) {
	row := q.QueryRowContext(ctx, `SELECT `+deadlineCols+` FROM deadlines WHERE id=?`, id)
	d, err := scanDeadlineRow(row.Scan)
	if err == sql.ErrNoRows {
		return d, ErrNotFound
	}
	return d, err
}

func (r Repo) GetDeadline(ctx context.Context, id string) (domain.Deadline, error) {
	return r.getDeadline(ctx, r.DB, id)
}

func (r Repo) GetDeadlineTx(ctx context.Context, tx *sql.Tx, id string) (domain.Deadline, error) {
	return r.getDeadline(ctx, tx, id)
}

func (r Repo) listDeadlines(ctx context.Context, q querier, caseID string) ([]domain.Deadline, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+deadlineCols+` FROM deadlines WHERE case_id=? ORDER BY due_date ASC, id ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Deadline
	for rows.Next() {
		d, err := scanDeadlineRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

func (r Repo) ListDeadlines(ctx context.Context, caseID string) ([]domain.Deadline, error) {
	return r.listDeadlines(ctx, r.DB, caseID)
}

func (r Repo) ListDeadlinesTx(ctx context.Context, tx *sql.Tx, caseID string) ([]domain.Deadline, error) {
	return r.listDeadlines(ctx, tx, caseID)
}

func (r Repo) ListDeadlinesByEventTx(ctx context.Context, tx *sql.Tx, eventID string) ([]domain.Deadline, error) {
	rows, err := tx.QueryContext(ctx, `SELECT `+deadlineCols+` FROM deadlines WHERE event_id=?`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Deadline
	for rows.Next() {
		d, err := scanDeadlineRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, d)
	}
	return res, nil
}

func (r Repo) UpdateDeadlineStatusTx(ctx context.Context, tx *sql.Tx, id, status string, supersededBy *string) error {
	res, err := tx.ExecContext(ctx, `UPDATE deadlines SET status=?, superseded_by=? WHERE id=?`,
		status, nullableStringPtr(supersededBy), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- tasks ---

const taskCols = `id,case_id,trigger_kind,event_id,deadline_id,type,title,priority,status,due_date,created_at,updated_at,completed_at`

func (r Repo) InsertTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO tasks(`+taskCols+`) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.ID, t.CaseID, t.TriggerKind, nullableStringPtr(t.EventID), nullableStringPtr(t.DeadlineID),
		t.Type, nullable(t.Title), t.Priority, t.Status, nullableStringPtr(t.DueDate),
		t.CreatedAt, t.UpdatedAt, nullableStringPtr(t.CompletedAt))
	return err
}

func scanTaskRow(scan func(dest ...any) error) (domain.Task, error) {
	var t domain.Task
	var eventID, deadlineID, title, dueDate, completedAt sql.NullString
	err := scan(&t.ID, &t.CaseID, &t.TriggerKind, &eventID, &deadlineID, &t.Type, &title, &t.Priority,
		&t.Status, &dueDate, &t.CreatedAt, &t.UpdatedAt, &completedAt)
	if err != nil {
		return t, err
	}
	if eventID.Valid {
		t.EventID = &eventID.String
	}
	if deadlineID.Valid {
		t.DeadlineID = &deadlineID.String
	}
	if title.Valid {
		t.Title = title.String
	}
	if dueDate.Valid {
		t.DueDate = &dueDate.String
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.String
	}
	return t, nil
}

func (r Repo) getTask(ctx context.Context, q querier, id string) (domain.Task, error) {
	row := q.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id=?`, id)
	t, err := scanTaskRow(row.Scan)
	if err == sql.ErrNoRows {
		return t, ErrNotFound
	}
	return t, err
}

func (r Repo) GetTask(ctx context.Context, id string) (domain.Task, error) {
	return r.getTask(ctx, r.DB, id)
}

func (r Repo) GetTaskTx(ctx context.Context, tx *sql.Tx, id string) (domain.Task, error) {
	return r.getTask(ctx, tx, id)
}

type TaskFilters struct {
	CaseID string
	Status string
	Type   string
}

func (r Repo) listTasks(ctx context.Context, q querier, f TaskFilters) ([]domain.Task, error) {
	var clauses []string
	var args []any
	if f.CaseID != "" {
		clauses = append(clauses, "case_id=?")
		args = append(args, f.CaseID)
	}
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Type != "" {
		clauses = append(clauses, "type=?")
		args = append(args, f.Type)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	rows, err := q.QueryContext(ctx, `SELECT `+taskCols+` FROM tasks `+where+` ORDER BY created_at DESC, id DESC`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Task
	for rows.Next() {
		t, err := scanTaskRow(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	return res, nil
}

func (r Repo) ListTasks(ctx context.Context, f TaskFilters) ([]domain.Task, error) {
	return r.listTasks(ctx, r.DB, f)
}

func (r Repo) ListTasksTx(ctx context.Context, tx *sql.Tx, f TaskFilters) ([]domain.Task, error) {
	return r.listTasks(ctx, tx, f)
}

func (r Repo) UpdateTaskTx(ctx context.Context, tx *sql.Tx, t domain.Task) error {
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=?, due_date=?, updated_at=?, completed_at=? WHERE id=?`,
		t.Status, nullableStringPtr(t.DueDate), t.UpdatedAt, nullableStringPtr(t.CompletedAt), t.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- case log ---

func (r Repo) ListLog(ctx context.Context, caseID string, limit int, cursor int64) ([]domain.LogEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	clauses := []string{"1=1"}
	var args []any
	if caseID != "" {
		clauses = append(clauses, "case_id=?")
		args = append(args, caseID)
	}
	if cursor > 0 {
		clauses = append(clauses, "id<?")
		args = append(args, cursor)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, `SELECT id,ts,type,case_id,entity_kind,entity_id,actor_id,payload_json FROM case_log `+where+` ORDER BY id DESC LIMIT ?`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.LogEntry
	for rows.Next() {
		var e domain.LogEntry
		var caseID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &caseID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if caseID.Valid {
			e.CaseID = caseID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, nil
}

// --- catalogs ---

// SaveCatalog stores an imported catalog version and marks it active.
func (r Repo) SaveCatalog(ctx context.Context, version, catalogYAML, importedAt string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `UPDATE catalogs SET active=0`); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO catalogs(version,catalog_yaml,active,imported_at) VALUES (?,?,1,?)
ON CONFLICT(version) DO UPDATE SET catalog_yaml=excluded.catalog_yaml, active=1, imported_at=excluded.imported_at`,
		version, catalogYAML, importedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// ActiveCatalogYAML returns the currently active catalog, or ErrNotFound when
// none has been imported.
func (r Repo) ActiveCatalogYAML(ctx context.Context) (string, error) {
	var payload string
	err := r.DB.QueryRowContext(ctx, `SELECT catalog_yaml FROM catalogs WHERE active=1 ORDER BY imported_at DESC LIMIT 1`).Scan(&payload)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return payload, err
}

// --- helpers ---

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
