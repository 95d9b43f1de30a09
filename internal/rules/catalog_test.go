package rules

import (
	"strings"
	"testing"
)

func TestDefaultCatalogValid(t *testing.T) {
	cat := Default()
	if err := cat.Validate(); err != nil {
		t.Fatalf("built-in catalog invalid: %v", err)
	}
	if cat.Version == "" {
		t.Fatalf("built-in catalog has no version")
	}
	if !cat.IsExtension("EXTENSION_GRANTED") {
		t.Fatalf("EXTENSION_GRANTED missing from extensions")
	}
	if cat.IsExtension("OA_RECEIVED") {
		t.Fatalf("ordinary event treated as extension")
	}
}

func TestEventTypeForJurisdictionPrecedence(t *testing.T) {
	cat := &Catalog{
		Version: "test",
		Events: []EventRule{
			{DocumentKind: "office-action", EventType: "OA_GENERIC"},
			{DocumentKind: "office-action", Jurisdiction: "US", EventType: "OA_US"},
		},
	}
	if got, ok := cat.EventTypeFor("office-action", "US"); !ok || got != "OA_US" {
		t.Fatalf("specific rule should win: %s %v", got, ok)
	}
	if got, ok := cat.EventTypeFor("office-action", "TW"); !ok || got != "OA_GENERIC" {
		t.Fatalf("catch-all should apply: %s %v", got, ok)
	}
	if _, ok := cat.EventTypeFor("postcard", "US"); ok {
		t.Fatalf("unknown kind resolved")
	}
}

func TestDeadlineSpecsForFansOut(t *testing.T) {
	cat := &Catalog{
		Version: "test",
		Deadlines: []DeadlineSpec{
			{EventType: "E", DeadlineType: "D1", Days: 10},
			{EventType: "E", Jurisdiction: "TW", DeadlineType: "D2", Days: 20},
			{EventType: "E", Jurisdiction: "US", DeadlineType: "D3", Days: 30},
			{EventType: "OTHER", DeadlineType: "D4", Days: 40},
		},
	}
	specs := cat.DeadlineSpecsFor("E", "TW")
	if len(specs) != 2 {
		t.Fatalf("expected catch-all plus TW spec, got %+v", specs)
	}
	if cat.DeadlineSpecsFor("NONE", "TW") != nil {
		t.Fatalf("unknown event should yield zero specs")
	}
}

func TestFromYAMLRoundTrip(t *testing.T) {
	cat := Default()
	out, err := cat.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	back, err := FromYAML(out)
	if err != nil {
		t.Fatalf("from yaml: %v", err)
	}
	if back.Version != cat.Version || len(back.Events) != len(cat.Events) {
		t.Fatalf("round trip lost data")
	}
}

func TestFromYAMLRejectsBadCatalogs(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"no version", "events: []\n", "version"},
		{"bad days", "version: \"1\"\ndeadlines:\n  - event_type: E\n    deadline_type: D\n    days: 0\n", "days"},
		{"bad priority", "version: \"1\"\ntasks:\n  - trigger: E\n    task_type: T\n    priority: MEDIUM\n", "priority"},
		{"bad weekday", "version: \"1\"\ncalendars:\n  TW:\n    weekend: [Caturday]\n", "weekday"},
		{"not yaml", "{{{", "yaml"},
	}
	for _, tc := range cases {
		if _, err := FromYAML([]byte(tc.yaml)); err == nil || !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q error, got %v", tc.name, tc.want, err)
		}
	}
}

func TestTaskTemplatesFor(t *testing.T) {
	cat := Default()
	tpls := cat.TaskTemplatesFor("OA_RESPONSE_DUE")
	if len(tpls) != 2 {
		t.Fatalf("expected two templates for OA_RESPONSE_DUE, got %d", len(tpls))
	}
	if cat.TaskTemplatesFor("NO_SUCH_TRIGGER") != nil {
		t.Fatalf("unknown trigger should yield no templates")
	}
}
