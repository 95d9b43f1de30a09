package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"

	"docketline/internal/calendar"
	"docketline/internal/db"
	"docketline/internal/engine"
	"docketline/internal/migrate"
	"docketline/internal/rules"
	"docketline/internal/server"
)

func main() {
	workspace := "/tmp/docketline-check1"
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		panic(err)
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		panic(err)
	}
	cat := rules.Default()
	e := engine.New(conn, cat, calendar.NewBusiness(cat))
	h, err := server.New(server.Config{Engine: e, BasePath: "/v0"})
	if err != nil {
		panic(err)
	}
	ts := httptest.NewServer(h)
	defer ts.Close()

	post := func(path string, body map[string]any) map[string]any {
		b, _ := json.Marshal(body)
		req, _ := http.NewRequest(http.MethodPost, ts.URL+path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
		res, err := http.DefaultClient.Do(req)
		if err != nil {
			panic(err)
		}
		defer res.Body.Close()
		var out map[string]any
		_ = json.NewDecoder(res.Body).Decode(&out)
		fmt.Printf("POST %s status=%d\n", path, res.StatusCode)
		return out
	}

	c := post("/v0/cases", map[string]any{"jurisdiction": "TW"})
	caseID, _ := c["id"].(string)
	report := post("/v0/cases/"+caseID+"/documents", map[string]any{"kind": "office-action"})
	out, _ := json.MarshalIndent(report, "", "  ")
	fmt.Println(string(out))
}
