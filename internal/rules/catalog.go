package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Catalog is the versioned rule data driving all derivation decisions:
// which event a document kind maps to, which deadlines an event creates,
// and which tasks an event or deadline spawns. It is configuration, not
// code; new types may appear in the data without a rebuild.
type Catalog struct {
	Version   string         `yaml:"version"`
	Events    []EventRule    `yaml:"events"`
	Deadlines []DeadlineSpec `yaml:"deadlines"`
	// Extensions lists event types that represent extension grants; such
	// events supersede a prior deadline instead of creating fresh ones.
	Extensions []string                `yaml:"extensions"`
	Tasks      []TaskTemplate          `yaml:"tasks"`
	Calendars  map[string]CalendarSpec `yaml:"calendars"`
}

// EventRule maps (document kind, jurisdiction) to a canonical event type.
// An empty jurisdiction matches any.
type EventRule struct {
	DocumentKind string `yaml:"document_kind"`
	Jurisdiction string `yaml:"jurisdiction,omitempty"`
	EventType    string `yaml:"event_type"`
}

// DeadlineSpec maps (event type, jurisdiction) to one statutory deadline.
// Multiple specs for the same key fan out into independent deadlines.
type DeadlineSpec struct {
	EventType    string `yaml:"event_type"`
	Jurisdiction string `yaml:"jurisdiction,omitempty"`
	DeadlineType string `yaml:"deadline_type"`
	Days         int    `yaml:"days"`
	Basis        string `yaml:"basis,omitempty"`
}

// TaskTemplate maps a trigger type (event type or deadline type) to one task.
// LeadDays pulls a deadline-triggered task's due date that many days before
// the deadline. OffsetDays gives an event-triggered task a due date that many
// days after occurrence; zero means no due date.
type TaskTemplate struct {
	Trigger    string `yaml:"trigger"`
	TaskType   string `yaml:"task_type"`
	Title      string `yaml:"title,omitempty"`
	Priority   string `yaml:"priority,omitempty"`
	LeadDays   int    `yaml:"lead_days,omitempty"`
	OffsetDays int    `yaml:"offset_days,omitempty"`
}

// CalendarSpec carries the business-day data for one jurisdiction.
type CalendarSpec struct {
	Weekend  []string `yaml:"weekend,omitempty"`
	Holidays []string `yaml:"holidays,omitempty"`
}

// EventTypeFor resolves the event type for a document kind in a jurisdiction.
// Jurisdiction-specific rules win over catch-all rules.
func (c *Catalog) EventTypeFor(documentKind, jurisdiction string) (string, bool) {
	fallback := ""
	for _, r := range c.Events {
		if r.DocumentKind != documentKind {
			continue
		}
		if r.Jurisdiction == jurisdiction {
			return r.EventType, true
		}
		if r.Jurisdiction == "" {
			fallback = r.EventType
		}
	}
	if fallback != "" {
		return fallback, true
	}
	return "", false
}

// DeadlineSpecsFor returns all deadline specs that fire for an event type in
// a jurisdiction. Zero specs is valid.
func (c *Catalog) DeadlineSpecsFor(eventType, jurisdiction string) []DeadlineSpec {
	var specs []DeadlineSpec
	for _, s := range c.Deadlines {
		if s.EventType != eventType {
			continue
		}
		if s.Jurisdiction == "" || s.Jurisdiction == jurisdiction {
			specs = append(specs, s)
		}
	}
	return specs
}

// IsExtension reports whether an event type is an extension grant.
func (c *Catalog) IsExtension(eventType string) bool {
	for _, t := range c.Extensions {
		if t == eventType {
			return true
		}
	}
	return false
}

// TaskTemplatesFor returns templates keyed by a trigger type.
func (c *Catalog) TaskTemplatesFor(trigger string) []TaskTemplate {
	var out []TaskTemplate
	for _, t := range c.Tasks {
		if t.Trigger == trigger {
			out = append(out, t)
		}
	}
	return out
}

var priorities = map[string]bool{"": true, "LOW": true, "NORMAL": true, "HIGH": true, "URGENT": true}

// Validate ensures the catalog meets required structure.
func (c *Catalog) Validate() error {
	if c.Version == "" {
		return fmt.Errorf("catalog.version is required")
	}
	for i, r := range c.Events {
		if r.DocumentKind == "" || r.EventType == "" {
			return fmt.Errorf("events[%d]: document_kind and event_type are required", i)
		}
	}
	for i, s := range c.Deadlines {
		if s.EventType == "" || s.DeadlineType == "" {
			return fmt.Errorf("deadlines[%d]: event_type and deadline_type are required", i)
		}
		if s.Days <= 0 {
			return fmt.Errorf("deadlines[%d]: days must be positive", i)
		}
	}
	for i, t := range c.Tasks {
		if t.Trigger == "" || t.TaskType == "" {
			return fmt.Errorf("tasks[%d]: trigger and task_type are required", i)
		}
		if !priorities[t.Priority] {
			return fmt.Errorf("tasks[%d]: unknown priority %s", i, t.Priority)
		}
		if t.LeadDays < 0 || t.OffsetDays < 0 {
			return fmt.Errorf("tasks[%d]: lead_days and offset_days must not be negative", i)
		}
	}
	for j, cal := range c.Calendars {
		if j == "" {
			return fmt.Errorf("calendars contains empty jurisdiction")
		}
		for _, d := range cal.Weekend {
			if _, ok := weekdayNames[d]; !ok {
				return fmt.Errorf("calendar %s: unknown weekday %s", j, d)
			}
		}
	}
	return nil
}

var weekdayNames = map[string]int{
	"Sunday": 0, "Monday": 1, "Tuesday": 2, "Wednesday": 3,
	"Thursday": 4, "Friday": 5, "Saturday": 6,
}

// Default returns the built-in catalog.
func Default() *Catalog {
	var c Catalog
	_ = yaml.Unmarshal([]byte(defaultTemplate), &c)
	return &c
}

// FromYAML parses and validates a catalog from raw YAML bytes.
func FromYAML(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// FromFile reads a YAML catalog from the given path.
func FromFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML renders the catalog for export.
func (c *Catalog) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `version: "2024.1"

events:
  - document_kind: office-action
    event_type: OA_RECEIVED
  - document_kind: applicant-response
    event_type: RESPONSE_FILED
  - document_kind: fee-notice
    event_type: FEE_NOTICE_RECEIVED
  - document_kind: assignment
    event_type: ASSIGNMENT_RECORDED

deadlines:
  - event_type: OA_RECEIVED
    jurisdiction: TW
    deadline_type: OA_RESPONSE_DUE
    days: 90
    basis: "OA response: 90 days"
  - event_type: OA_RECEIVED
    jurisdiction: US
    deadline_type: OA_RESPONSE_DUE
    days: 90
    basis: "OA response: 3 months shortened statutory period"
  - event_type: FEE_NOTICE_RECEIVED
    jurisdiction: TW
    deadline_type: FEE_PAYMENT_DUE
    days: 60
    basis: "Fee payment: 60 days from notice"
  - event_type: FEE_NOTICE_RECEIVED
    jurisdiction: US
    deadline_type: FEE_PAYMENT_DUE
    days: 90
    basis: "Issue fee: 3 months from notice of allowance"

extensions:
  - EXTENSION_GRANTED

tasks:
  - trigger: OA_RECEIVED
    task_type: DOCKET_REVIEW
    title: "Review office action"
    priority: NORMAL
    offset_days: 7
  - trigger: OA_RESPONSE_DUE
    task_type: DRAFT_OA_RESPONSE
    title: "Draft OA response"
    priority: HIGH
    lead_days: 14
  - trigger: OA_RESPONSE_DUE
    task_type: FILE_RESPONSE
    title: "File response with office"
    priority: URGENT
  - trigger: FEE_PAYMENT_DUE
    task_type: PAY_FEE
    title: "Pay official fee"
    priority: HIGH
    lead_days: 7
  - trigger: ASSIGNMENT_RECORDED
    task_type: UPDATE_REGISTER
    title: "Update ownership register"
    priority: LOW

calendars:
  TW:
    weekend: [Saturday, Sunday]
    holidays:
      - "2024-01-01"
      - "2024-02-28"
      - "2024-04-04"
      - "2024-10-10"
  US:
    weekend: [Saturday, Sunday]
    holidays:
      - "2024-01-01"
      - "2024-07-04"
      - "2024-11-28"
      - "2024-12-25"
`
