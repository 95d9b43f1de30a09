package docketlinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Docketline HTTP API client.
type Client struct {
	BaseURL    string
	ActorID    string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Case represents the API case model.
type Case struct {
	ID                string `json:"id"`
	Jurisdiction      string `json:"jurisdiction"`
	ApplicationNumber string `json:"application_number,omitempty"`
	FilingDate        string `json:"filing_date,omitempty"`
	Status            string `json:"status"`
}

// Document represents a submitted document.
type Document struct {
	ID          string `json:"id"`
	CaseID      string `json:"case_id"`
	Kind        string `json:"kind"`
	Source      string `json:"source"`
	ReceivedAt  string `json:"received_at"`
	ExternalRef string `json:"external_ref,omitempty"`
	Superseded  bool   `json:"superseded"`
}

// Event represents a derived or logged case event.
type Event struct {
	ID         string  `json:"id"`
	CaseID     string  `json:"case_id"`
	DocumentID *string `json:"document_id,omitempty"`
	Type       string  `json:"type"`
	OccurredAt string  `json:"occurred_at"`
	Status     string  `json:"status"`
	Note       string  `json:"note,omitempty"`
}

// Deadline represents a computed deadline.
type Deadline struct {
	ID        string `json:"id"`
	CaseID    string `json:"case_id"`
	EventID   string `json:"event_id"`
	Type      string `json:"type"`
	DueDate   string `json:"due_date"`
	Status    string `json:"status"`
	RuleBasis string `json:"rule_basis,omitempty"`
}

// Task represents a generated work item.
type Task struct {
	ID          string  `json:"id"`
	CaseID      string  `json:"case_id"`
	Type        string  `json:"type"`
	TriggerKind string  `json:"trigger_kind"`
	EventID     *string `json:"event_id,omitempty"`
	DeadlineID  *string `json:"deadline_id,omitempty"`
	Status      string  `json:"status"`
	Priority    string  `json:"priority"`
	DueDate     *string `json:"due_date,omitempty"`
}

// IngestReport is the structured outcome of a document submission or a
// logged event.
type IngestReport struct {
	Document  Document   `json:"document"`
	Events    []struct {
		Event          Event `json:"event"`
		AlreadyExisted bool  `json:"already_existed"`
	} `json:"events,omitempty"`
	Skipped []struct {
		Reason string `json:"reason"`
		Detail string `json:"detail,omitempty"`
	} `json:"skipped,omitempty"`
	Deadlines []Deadline `json:"deadlines,omitempty"`
	Tasks     []Task     `json:"tasks,omitempty"`
}

// LogEntry is one audit log record.
type LogEntry struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts"`
	Type       string `json:"type"`
	CaseID     string `json:"case_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// CreateCase opens a case.
func (c *Client) CreateCase(ctx context.Context, jurisdiction, applicationNumber string) (Case, error) {
	body := map[string]any{
		"jurisdiction":       jurisdiction,
		"application_number": applicationNumber,
	}
	var resp Case
	err := c.do(ctx, http.MethodPost, "v0/cases", body, &resp)
	return resp, err
}

// GetCase fetches a case by id.
func (c *Client) GetCase(ctx context.Context, caseID string) (Case, error) {
	var resp Case
	err := c.do(ctx, http.MethodGet, c.casePath(caseID, ""), nil, &resp)
	return resp, err
}

// SubmitDocument submits a document and returns the derivation report.
func (c *Client) SubmitDocument(ctx context.Context, caseID, kind string, opts map[string]any) (IngestReport, error) {
	body := map[string]any{"kind": kind}
	for k, v := range opts {
		body[k] = v
	}
	var resp IngestReport
	err := c.do(ctx, http.MethodPost, c.casePath(caseID, "documents"), body, &resp)
	return resp, err
}

// LogEvent records a case-internal event.
func (c *Client) LogEvent(ctx context.Context, caseID, eventType, occurredAt, note string) (IngestReport, error) {
	body := map[string]any{
		"type":        eventType,
		"occurred_at": occurredAt,
		"note":        note,
	}
	var resp IngestReport
	err := c.do(ctx, http.MethodPost, c.casePath(caseID, "events"), body, &resp)
	return resp, err
}

// CancelEvent cancels an event, cascading to its deadlines and tasks.
func (c *Client) CancelEvent(ctx context.Context, eventID, reason string) (Event, error) {
	var resp Event
	endpoint := fmt.Sprintf("v0/events/%s/cancel", url.PathEscape(eventID))
	err := c.do(ctx, http.MethodPost, endpoint, map[string]any{"reason": reason}, &resp)
	return resp, err
}

// Deadlines lists a case's deadlines.
func (c *Client) Deadlines(ctx context.Context, caseID string) ([]Deadline, error) {
	var resp struct {
		Items []Deadline `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, c.casePath(caseID, "deadlines"), nil, &resp)
	return resp.Items, err
}

// SatisfyDeadline marks a deadline satisfied.
func (c *Client) SatisfyDeadline(ctx context.Context, deadlineID string) (Deadline, error) {
	var resp Deadline
	endpoint := fmt.Sprintf("v0/deadlines/%s/satisfy", url.PathEscape(deadlineID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// ExtendDeadline applies an extension grant of the given number of days.
func (c *Client) ExtendDeadline(ctx context.Context, deadlineID string, days int) error {
	endpoint := fmt.Sprintf("v0/deadlines/%s/extend", url.PathEscape(deadlineID))
	return c.do(ctx, http.MethodPost, endpoint, map[string]any{"days": days}, nil)
}

// Tasks lists a case's tasks, optionally filtered by status.
func (c *Client) Tasks(ctx context.Context, caseID, status string) ([]Task, error) {
	endpoint := c.casePath(caseID, "tasks")
	if status != "" {
		endpoint += "?status=" + url.QueryEscape(status)
	}
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

// CompleteTask marks a task done.
func (c *Client) CompleteTask(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	endpoint := fmt.Sprintf("v0/tasks/%s/complete", url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// Log returns recent audit log entries for a case.
func (c *Client) Log(ctx context.Context, caseID string, limit int) ([]LogEntry, error) {
	endpoint := c.casePath(caseID, "log")
	if limit > 0 {
		endpoint = fmt.Sprintf("%s?limit=%d", endpoint, limit)
	}
	var resp struct {
		Items []LogEntry `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp.Items, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.ActorID != "" {
		req.Header.Set("X-Actor-Id", c.ActorID)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return &APIError{StatusCode: resp.StatusCode, Body: string(b)}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) casePath(caseID, p string) string {
	base := fmt.Sprintf("v0/cases/%s", url.PathEscape(caseID))
	if p == "" {
		return base
	}
	return base + "/" + strings.TrimLeft(p, "/")
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
