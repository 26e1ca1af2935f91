package fhir

import (
	"encoding/json"
	"testing"
)

func TestNewSearchBundle(t *testing.T) {
	resources := []map[string]interface{}{
		{"resourceType": "DiagnosticReport", "id": "a1"},
		{"resourceType": "DiagnosticReport"},
	}
	b, err := NewSearchBundle(resources, 7, []BundleLink{{Relation: "self", URL: "/fhir/DiagnosticReport"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.Type != "searchset" || *b.Total != 7 {
		t.Errorf("unexpected bundle header: type=%s total=%d", b.Type, *b.Total)
	}
	if len(b.Link) != 1 || b.Link[0].Relation != "self" {
		t.Errorf("unexpected links %+v", b.Link)
	}
	if len(b.Entry) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(b.Entry))
	}
	if b.Entry[0].FullURL != "DiagnosticReport/a1" {
		t.Errorf("unexpected fullUrl %q", b.Entry[0].FullURL)
	}
	if b.Entry[1].FullURL != "" {
		t.Errorf("expected empty fullUrl without id, got %q", b.Entry[1].FullURL)
	}
	var decoded map[string]interface{}
	if err := json.Unmarshal(b.Entry[0].Resource, &decoded); err != nil {
		t.Fatalf("entry is not json: %v", err)
	}
	if decoded["id"] != "a1" {
		t.Errorf("unexpected entry %v", decoded)
	}
}

func TestNotFoundOutcome(t *testing.T) {
	oo := NotFoundOutcome("DiagnosticReport", "x")
	if oo.ResourceType != "OperationOutcome" || len(oo.Issue) != 1 {
		t.Fatalf("unexpected outcome %+v", oo)
	}
	if oo.Issue[0].Code != "not-found" || oo.Issue[0].Diagnostics != "DiagnosticReport/x not found" {
		t.Errorf("unexpected issue %+v", oo.Issue[0])
	}
}
