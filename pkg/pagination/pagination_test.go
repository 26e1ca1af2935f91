package pagination

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/labstack/echo/v4"
)

func TestFromContext(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int
	}{
		{"", DefaultLimit, 0},
		{"limit=50&offset=10", 50, 10},
		{"_count=25&_offset=5", 25, 5},
		{"_count=25&limit=50", 25, 0},
		{"limit=1000", MaxLimit, 0},
		{"limit=-3&offset=-1", DefaultLimit, 0},
		{"limit=abc&offset=xyz", DefaultLimit, 0},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/?"+tt.query, nil)
			p := FromContext(e.NewContext(req, httptest.NewRecorder()))
			if p.Limit != tt.wantLimit || p.Offset != tt.wantOffset {
				t.Errorf("got limit=%d offset=%d, want %d %d", p.Limit, p.Offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}

func TestNewResponse(t *testing.T) {
	r := NewResponse([]string{"a", "b"}, 10, 2, 0)
	if r.Total != 10 || r.Limit != 2 || r.Offset != 0 || !r.HasMore {
		t.Errorf("unexpected response %+v", r)
	}
	if last := NewResponse(nil, 10, 5, 5); last.HasMore {
		t.Error("expected no more results on the last page")
	}
}

func TestParams_PreviousOffset(t *testing.T) {
	tests := []struct {
		params Params
		want   int
	}{
		{Params{Limit: 10, Offset: 20}, 10},
		{Params{Limit: 10, Offset: 5}, 0},
		{Params{Limit: 10, Offset: 0}, 0},
	}
	for _, tt := range tests {
		if got := tt.params.PreviousOffset(); got != tt.want {
			t.Errorf("%+v.PreviousOffset() = %d, want %d", tt.params, got, tt.want)
		}
	}
}

func linkMap(links []Link) map[string]string {
	m := make(map[string]string)
	for _, l := range links {
		m[l.Relation] = l.URL
	}
	return m
}

func TestParams_Links(t *testing.T) {
	const path = "/fhir/DiagnosticReport"

	first := linkMap(Params{Limit: 10, Offset: 0}.Links(path, nil, 25))
	if first["self"] != path+"?_count=10&_offset=0" {
		t.Errorf("unexpected self %q", first["self"])
	}
	if first["next"] != path+"?_count=10&_offset=10" {
		t.Errorf("unexpected next %q", first["next"])
	}
	if _, ok := first["previous"]; ok {
		t.Error("did not expect 'previous' link on first page")
	}

	middle := linkMap(Params{Limit: 10, Offset: 10}.Links(path, nil, 25))
	if middle["previous"] != path+"?_count=10&_offset=0" || middle["next"] == "" {
		t.Errorf("unexpected middle page links %v", middle)
	}

	last := linkMap(Params{Limit: 10, Offset: 20}.Links(path, nil, 25))
	if _, ok := last["next"]; ok {
		t.Error("did not expect 'next' link on last page")
	}

	if empty := (Params{Limit: 10}).Links(path, nil, 0); len(empty) != 1 || empty[0].Relation != "self" {
		t.Errorf("expected only a self link, got %v", empty)
	}
}

func TestParams_LinksKeepFilters(t *testing.T) {
	query := url.Values{"status": {"final"}, "limit": {"10"}, "offset": {"0"}}
	links := linkMap(Params{Limit: 10}.Links("/fhir/DiagnosticReport", query, 30))

	if links["next"] != "/fhir/DiagnosticReport?_count=10&_offset=10&status=final" {
		t.Errorf("unexpected next %q", links["next"])
	}
	if query.Get("_count") != "" {
		t.Error("expected the caller's query to be left untouched")
	}
}
