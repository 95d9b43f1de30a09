package domain

// Case is the root aggregate for one patent matter. All other entities belong
// to exactly one case, and all mutations are serialized per case.
type Case struct {
	ID                string  `json:"id"`
	Jurisdiction      string  `json:"jurisdiction"`
	ApplicationNumber *string `json:"application_number,omitempty"`
	FilingDate        *string `json:"filing_date,omitempty" format:"date"`
	Status            string  `json:"status" enum:"OPEN,CLOSED"`
	CreatedAt         string  `json:"created_at" format:"date-time"`
}

// Document kinds and sources are open sets driven by the rule catalog; the
// constants below are the ones the default catalog knows about.
const (
	DocKindOfficeAction      = "office-action"
	DocKindApplicantResponse = "applicant-response"
	DocKindFeeNotice         = "fee-notice"
	DocKindAssignment        = "assignment"
	DocKindOther             = "other"
)

type Document struct {
	ID            string  `json:"id"`
	CaseID        string  `json:"case_id"`
	Kind          string  `json:"kind"`
	Source        string  `json:"source" enum:"issuing-office,agent,client,internal"`
	ReceivedAt    string  `json:"received_at" format:"date-time"`
	ExternalRef   string  `json:"external_ref,omitempty"`
	ContentHandle string  `json:"content_handle,omitempty"`
	Superseded    bool    `json:"superseded,omitempty"`
	SupersededBy  *string `json:"superseded_by,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

const (
	EventActive    = "ACTIVE"
	EventCancelled = "CANCELLED"
)

type Event struct {
	ID            string  `json:"id"`
	CaseID        string  `json:"case_id"`
	DocumentID    *string `json:"document_id,omitempty"`
	Type          string  `json:"type"`
	OccurredAt    string  `json:"occurred_at" format:"date-time"`
	Status        string  `json:"status" enum:"ACTIVE,CANCELLED"`
	DerivationKey string  `json:"derivation_key,omitempty"`
	Note          string  `json:"note,omitempty"`
	CreatedAt     string  `json:"created_at" format:"date-time"`
}

const (
	DeadlineOpen       = "OPEN"
	DeadlineSatisfied  = "SATISFIED"
	DeadlineCancelled  = "CANCELLED"
	DeadlineSuperseded = "SUPERSEDED"
)

type Deadline struct {
	ID           string  `json:"id"`
	CaseID       string  `json:"case_id"`
	EventID      string  `json:"event_id"`
	Type         string  `json:"type"`
	DueDate      string  `json:"due_date" format:"date"`
	Status       string  `json:"status" enum:"OPEN,SATISFIED,CANCELLED,SUPERSEDED"`
	SupersededBy *string `json:"superseded_by,omitempty"`
	RuleBasis    string  `json:"rule_basis,omitempty"`
	CreatedAt    string  `json:"created_at" format:"date-time"`
}

const (
	TaskPending    = "PENDING"
	TaskInProgress = "IN_PROGRESS"
	TaskDone       = "DONE"
	TaskCancelled  = "CANCELLED"
)

// Trigger kinds: exactly one of a task's event or deadline references is set,
// matching the kind.
const (
	TriggerEvent    = "event"
	TriggerDeadline = "deadline"
)

type Task struct {
	ID          string  `json:"id"`
	CaseID      string  `json:"case_id"`
	TriggerKind string  `json:"trigger_kind" enum:"event,deadline"`
	EventID     *string `json:"event_id,omitempty"`
	DeadlineID  *string `json:"deadline_id,omitempty"`
	Type        string  `json:"type"`
	Title       string  `json:"title,omitempty"`
	Priority    string  `json:"priority,omitempty" enum:"LOW,NORMAL,HIGH,URGENT"`
	Status      string  `json:"status" enum:"PENDING,IN_PROGRESS,DONE,CANCELLED"`
	DueDate     *string `json:"due_date,omitempty" format:"date"`
	CreatedAt   string  `json:"created_at" format:"date-time"`
	UpdatedAt   string  `json:"updated_at" format:"date-time"`
	CompletedAt *string `json:"completed_at,omitempty" format:"date-time"`
}

// LogEntry is one row of the append-only per-case audit log.
type LogEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	CaseID     string `json:"case_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// TriggerID returns the id of whichever entity caused the task.
func (t Task) TriggerID() string {
	if t.TriggerKind == TriggerDeadline && t.DeadlineID != nil {
		return *t.DeadlineID
	}
	if t.EventID != nil {
		return *t.EventID
	}
	return ""
}
