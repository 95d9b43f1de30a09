package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"docketline/internal/calendar"
	"docketline/internal/db"
	"docketline/internal/engine"
	"docketline/internal/migrate"
	"docketline/internal/rules"
)

type testServer struct {
	URL    string
	client *http.Client
	close  func()
}

func (s *testServer) Client() *http.Client { return s.client }
func (s *testServer) Close()               { s.close() }

func newTestServer(t *testing.T) (*testServer, func()) {
	t.Helper()
	workspace := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	cat := rules.Default()
	e := engine.New(conn, cat, calendar.NewBusiness(cat))
	e.Now = func() time.Time { return time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC) }
	handler, err := New(Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		t.Fatalf("build handler: %v", err)
	}
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	srv := &http.Server{Handler: handler}
	go srv.Serve(ln)
	testSrv := &testServer{
		URL:    "http://" + ln.Addr().String(),
		client: &http.Client{},
		close: func() {
			srv.Shutdown(context.Background())
			ln.Close()
			conn.Close()
		},
	}
	return testSrv, func() { testSrv.Close() }
}

func doJSON(t *testing.T, client *http.Client, method, url string, body any) (*http.Response, []byte) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(b)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Actor-Id", "tester")
	res, err := client.Do(req)
	if err != nil {
		t.Fatalf("do request: %v", err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return res, data
}

func createCase(t *testing.T, srv *testServer, jurisdiction string) string {
	t.Helper()
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/cases", map[string]any{
		"jurisdiction": jurisdiction,
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("create case: status=%d body=%s", res.StatusCode, data)
	}
	var c struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(data, &c); err != nil || c.ID == "" {
		t.Fatalf("decode case: %v %s", err, data)
	}
	return c.ID
}

func TestSubmitDocumentEndToEnd(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	caseID := createCase(t, srv, "TW")

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/cases/"+caseID+"/documents", map[string]any{
		"kind": "office-action",
	})
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("submit: status=%d body=%s", res.StatusCode, data)
	}
	var report struct {
		Document struct {
			ID string `json:"id"`
		} `json:"document"`
		Events []struct {
			Event struct {
				ID   string `json:"id"`
				Type string `json:"type"`
			} `json:"event"`
		} `json:"events"`
		Deadlines []struct {
			ID      string `json:"id"`
			Type    string `json:"type"`
			DueDate string `json:"due_date"`
		} `json:"deadlines"`
		Tasks []struct {
			ID   string `json:"id"`
			Type string `json:"type"`
		} `json:"tasks"`
	}
	if err := json.Unmarshal(data, &report); err != nil {
		t.Fatalf("decode report: %v %s", err, data)
	}
	if len(report.Events) != 1 || report.Events[0].Event.Type != "OA_RECEIVED" {
		t.Fatalf("events: %s", data)
	}
	if len(report.Deadlines) != 1 || report.Deadlines[0].DueDate != "2024-05-30" {
		t.Fatalf("deadlines: %s", data)
	}
	if len(report.Tasks) != 3 {
		t.Fatalf("tasks: %s", data)
	}

	// the deadline list endpoint sees the same state
	res, data = doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/cases/"+caseID+"/deadlines", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("list deadlines: status=%d body=%s", res.StatusCode, data)
	}
	var list struct {
		Items []struct {
			Status string `json:"status"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil || len(list.Items) != 1 || list.Items[0].Status != "OPEN" {
		t.Fatalf("deadline list: %v %s", err, data)
	}
}

func TestCancelEventConflict(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	caseID := createCase(t, srv, "TW")

	_, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/cases/"+caseID+"/documents", map[string]any{
		"kind": "office-action",
	})
	var report struct {
		Events []struct {
			Event struct {
				ID string `json:"id"`
			} `json:"event"`
		} `json:"events"`
	}
	if err := json.Unmarshal(data, &report); err != nil || len(report.Events) != 1 {
		t.Fatalf("report: %v %s", err, data)
	}
	eventID := report.Events[0].Event.ID

	res, _ := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/events/"+eventID+"/cancel", map[string]any{
		"reason": "wrong case",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("cancel: status=%d", res.StatusCode)
	}
	// same reason is idempotent
	res, _ = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/events/"+eventID+"/cancel", map[string]any{
		"reason": "wrong case",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("repeat cancel: status=%d", res.StatusCode)
	}
	// a different reason is a conflict with the error envelope
	res, data = doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/events/"+eventID+"/cancel", map[string]any{
		"reason": "misread",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("conflicting cancel: status=%d body=%s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "already_terminal" {
		t.Fatalf("error envelope: %v %s", err, data)
	}
}

func TestExtendDeadlineEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	caseID := createCase(t, srv, "TW")

	_, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/cases/"+caseID+"/documents", map[string]any{
		"kind": "office-action",
	})
	var report struct {
		Deadlines []struct {
			ID string `json:"id"`
		} `json:"deadlines"`
	}
	if err := json.Unmarshal(data, &report); err != nil || len(report.Deadlines) != 1 {
		t.Fatalf("report: %v %s", err, data)
	}

	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/deadlines/"+report.Deadlines[0].ID+"/extend", map[string]any{
		"days":        30,
		"occurred_at": "2024-06-03T00:00:00Z",
	})
	if res.StatusCode != http.StatusOK {
		t.Fatalf("extend: status=%d body=%s", res.StatusCode, data)
	}
	var ext struct {
		Prior struct {
			Status string `json:"status"`
		} `json:"prior"`
		New struct {
			Status  string `json:"status"`
			DueDate string `json:"due_date"`
		} `json:"new"`
	}
	if err := json.Unmarshal(data, &ext); err != nil {
		t.Fatalf("decode: %v %s", err, data)
	}
	if ext.Prior.Status != "SUPERSEDED" || ext.New.Status != "OPEN" || ext.New.DueDate != "2024-07-03" {
		t.Fatalf("extension result: %s", data)
	}
}

func TestClosedCaseRejectsSubmission(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	caseID := createCase(t, srv, "US")

	if res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/cases/"+caseID+"/close", nil); res.StatusCode != http.StatusOK {
		t.Fatalf("close: status=%d body=%s", res.StatusCode, data)
	}
	res, data := doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/cases/"+caseID+"/documents", map[string]any{
		"kind": "fee-notice",
	})
	if res.StatusCode != http.StatusConflict {
		t.Fatalf("submit on closed case: status=%d body=%s", res.StatusCode, data)
	}
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || envelope.Error.Code != "case_closed" {
		t.Fatalf("error envelope: %v %s", err, data)
	}
}

func TestUnknownCaseIs404(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/cases/nope", nil)
	if res.StatusCode != http.StatusNotFound {
		t.Fatalf("status=%d body=%s", res.StatusCode, data)
	}
}

func TestCaseLogEndpoint(t *testing.T) {
	srv, cleanup := newTestServer(t)
	defer cleanup()
	caseID := createCase(t, srv, "TW")
	doJSON(t, srv.Client(), http.MethodPost, srv.URL+"/v0/cases/"+caseID+"/documents", map[string]any{
		"kind": "office-action",
	})

	res, data := doJSON(t, srv.Client(), http.MethodGet, srv.URL+"/v0/cases/"+caseID+"/log?limit=50", nil)
	if res.StatusCode != http.StatusOK {
		t.Fatalf("log: status=%d body=%s", res.StatusCode, data)
	}
	var list struct {
		Items []struct {
			Type    string `json:"type"`
			ActorID string `json:"actor_id"`
		} `json:"items"`
	}
	if err := json.Unmarshal(data, &list); err != nil || len(list.Items) == 0 {
		t.Fatalf("log items: %v %s", err, data)
	}
	seen := map[string]bool{}
	for _, e := range list.Items {
		seen[e.Type] = true
		if e.ActorID != "tester" {
			t.Fatalf("actor header not recorded: %+v", e)
		}
	}
	if !seen["document.ingested"] || !seen["event.derived"] {
		t.Fatalf("missing log entries: %s", data)
	}
}
