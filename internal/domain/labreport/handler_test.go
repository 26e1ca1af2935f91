package labreport

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labtranscriber/labtranscriber/internal/platform/auth"
	"github.com/labtranscriber/labtranscriber/internal/platform/blobstore"
)

func newTestHandler() (*Handler, *echo.Echo) {
	svc := newTestService()
	h := NewHandler(svc)
	e := echo.New()
	return h, e
}

func jsonRequest(method, body string) *http.Request {
	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}

func textBody(t *testing.T, text string) string {
	t.Helper()
	b, err := json.Marshal(map[string]string{"text": text, "source_name": "pegado"})
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func expectHTTPError(t *testing.T, err error, code int) {
	t.Helper()
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected *echo.HTTPError with %d, got %v", code, err)
	}
	if httpErr.Code != code {
		t.Errorf("expected %d, got %d (%v)", code, httpErr.Code, httpErr.Message)
	}
}

func TestHandler_Parse(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, textBody(t, sampleText)), rec)

	if err := h.Parse(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var out ParseOutput
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Summary != sampleSummary {
		t.Errorf("unexpected summary %q", out.Summary)
	}
	if got := out.Result.Table["Hemograma"]["Hematocrito"].Display; got != "Hematocrito: 41 %" {
		t.Errorf("unexpected hematocrit display %q", got)
	}
}

func TestHandler_Parse_EmptyText(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"text":""}`), rec)

	if err := h.Parse(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	var out map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &out)
	result := out["result"].(map[string]interface{})
	if table := result["table"].(map[string]interface{}); len(table) != 0 {
		t.Errorf("expected empty table, got %v", table)
	}
}

func TestHandler_CreateLabReport_JSON(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, textBody(t, sampleText)), rec)

	if err := h.CreateLabReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var lr LabReport
	if err := json.Unmarshal(rec.Body.Bytes(), &lr); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if lr.SourceName != "pegado" || len(lr.Results) != 4 {
		t.Errorf("unexpected report %+v", lr)
	}
}

func TestHandler_CreateLabReport_EmptyText(t *testing.T) {
	h, e := newTestHandler()
	c := e.NewContext(jsonRequest(http.MethodPost, `{"text":"   "}`), httptest.NewRecorder())

	expectHTTPError(t, h.CreateLabReport(c), http.StatusUnprocessableEntity)
}

func TestHandler_CreateLabReport_Multipart(t *testing.T) {
	h, e := newTestHandler()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", "informe.txt")
	if err != nil {
		t.Fatal(err)
	}
	part.Write([]byte(sampleText))
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.CreateLabReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"source_name":"informe.txt"`) {
		t.Errorf("expected upload name as source, got %s", rec.Body.String())
	}
}

func TestHandler_CreateLabReport_MultipartUnsupported(t *testing.T) {
	h, e := newTestHandler()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, _ := w.CreateFormFile("file", "foto.png")
	part.Write([]byte{0x89, 'P', 'N', 'G', 0x00, 0x00})
	w.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &body)
	req.Header.Set(echo.HeaderContentType, w.FormDataContentType())
	c := e.NewContext(req, httptest.NewRecorder())

	expectHTTPError(t, h.CreateLabReport(c), http.StatusUnsupportedMediaType)
}

func TestHandler_GetLabReport(t *testing.T) {
	h, e := newTestHandler()
	lr, _ := h.svc.CreateFromText(context.Background(), "doc", sampleText)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(lr.ID.String())

	if err := h.GetLabReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetLabReport_Errors(t *testing.T) {
	h, e := newTestHandler()

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	expectHTTPError(t, h.GetLabReport(c), http.StatusBadRequest)

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())
	expectHTTPError(t, h.GetLabReport(c), http.StatusNotFound)
}

func TestHandler_GetDocument(t *testing.T) {
	h, e := newTestHandler()
	h.svc.SetDocumentStore(blobstore.NewInMemoryBlobStore())
	lr, err := h.svc.CreateFromDocument(context.Background(), "informe.txt", strings.NewReader(sampleText))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(lr.ID.String())

	if err := h.GetDocument(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Body.String() != sampleText {
		t.Errorf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get(echo.HeaderContentDisposition); got != `attachment; filename="informe.txt"` {
		t.Errorf("Content-Disposition = %q", got)
	}
	if got := rec.Header().Get(echo.HeaderContentType); got != "text/plain" {
		t.Errorf("Content-Type = %q", got)
	}
}

func TestHandler_GetDocument_NotKept(t *testing.T) {
	h, e := newTestHandler()
	lr, _ := h.svc.CreateFromText(context.Background(), "doc", sampleText)

	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(lr.ID.String())
	expectHTTPError(t, h.GetDocument(c), http.StatusNotFound)
}

func TestHandler_GetLabReportFHIR(t *testing.T) {
	h, e := newTestHandler()
	lr, _ := h.svc.CreateFromText(context.Background(), "doc", sampleText)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(lr.ID.String())

	if err := h.GetLabReportFHIR(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var doc map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &doc)
	if doc["resourceType"] != "DiagnosticReport" {
		t.Errorf("expected DiagnosticReport, got %v", doc["resourceType"])
	}
	if contained, _ := doc["contained"].([]interface{}); len(contained) != 4 {
		t.Errorf("expected 4 contained observations, got %d", len(contained))
	}
}

func TestHandler_GetLabReportFHIR_NotFound(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	if err := h.GetLabReportFHIR(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "OperationOutcome") {
		t.Errorf("expected an OperationOutcome, got %s", rec.Body.String())
	}
}

func TestHandler_ListLabReports(t *testing.T) {
	h, e := newTestHandler()
	for i := 0; i < 3; i++ {
		h.svc.CreateFromText(context.Background(), "doc", sampleText)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=2", nil), rec)
	if err := h.ListLabReports(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var page struct {
		Data    []LabReport `json:"data"`
		Total   int         `json:"total"`
		HasMore bool        `json:"has_more"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &page); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if page.Total != 3 || len(page.Data) != 2 || !page.HasMore {
		t.Errorf("unexpected page: total=%d len=%d more=%v", page.Total, len(page.Data), page.HasMore)
	}
}

func TestHandler_SearchDiagnosticReportsFHIR(t *testing.T) {
	h, e := newTestHandler()
	h.svc.CreateFromText(context.Background(), "doc", sampleText)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/fhir/DiagnosticReport", nil), rec)
	if err := h.SearchDiagnosticReportsFHIR(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var bundle map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &bundle)
	if bundle["type"] != "searchset" || bundle["total"] != float64(1) {
		t.Errorf("unexpected bundle %v", bundle)
	}
}

func TestHandler_DeleteLabReport(t *testing.T) {
	h, e := newTestHandler()
	lr, _ := h.svc.CreateFromText(context.Background(), "doc", sampleText)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(lr.ID.String())
	if err := h.DeleteLabReport(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}

	c = e.NewContext(httptest.NewRequest(http.MethodDelete, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(lr.ID.String())
	expectHTTPError(t, h.DeleteLabReport(c), http.StatusNotFound)
}

func TestHandler_Diagnose(t *testing.T) {
	h, e := newTestHandler()
	rec := httptest.NewRecorder()
	c := e.NewContext(jsonRequest(http.MethodPost, textBody(t, "Glucosa 95 mg/dl\nColesterol 180 mg/dl")), rec)

	if err := h.Diagnose(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), "Colesterol 180 mg/dl") {
		t.Errorf("expected the unrecognized line in the response, got %s", rec.Body.String())
	}

	c = e.NewContext(jsonRequest(http.MethodPost, `{"text":"x","threshold":1.5}`), httptest.NewRecorder())
	expectHTTPError(t, h.Diagnose(c), http.StatusBadRequest)
}

func TestHandler_ListParametersAndReload(t *testing.T) {
	h, e := newTestHandler()

	rec := httptest.NewRecorder()
	if err := h.ListParameters(e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"Hemograma"`) {
		t.Errorf("expected categories in response, got %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	if err := h.ReloadConfig(e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"version":2`) {
		t.Errorf("expected version 2 after reload, got %s", rec.Body.String())
	}
}

func TestHandler_RoutesRequireRoles(t *testing.T) {
	h, _ := newTestHandler()

	withRoles := func(roles ...string) echo.MiddlewareFunc {
		return func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				ctx := context.WithValue(c.Request().Context(), auth.UserRolesKey, roles)
				c.SetRequest(c.Request().WithContext(ctx))
				return next(c)
			}
		}
	}

	tests := []struct {
		name   string
		roles  []string
		method string
		path   string
		want   int
	}{
		{"viewer reads parameters", []string{"viewer"}, http.MethodGet, "/api/v1/parameters", http.StatusOK},
		{"viewer cannot parse", []string{"viewer"}, http.MethodPost, "/api/v1/parse", http.StatusForbidden},
		{"lab tech parses", []string{"lab_tech"}, http.MethodPost, "/api/v1/parse", http.StatusOK},
		{"lab tech cannot reload", []string{"lab_tech"}, http.MethodPost, "/api/v1/config/reload", http.StatusForbidden},
		{"admin reloads", []string{"admin"}, http.MethodPost, "/api/v1/config/reload", http.StatusOK},
		{"no roles", nil, http.MethodGet, "/fhir/DiagnosticReport", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := echo.New()
			srv.Use(withRoles(tt.roles...))
			h.RegisterRoutes(srv.Group("/api/v1"), srv.Group("/fhir"))

			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(`{"text":"Glucosa 95 mg/dl"}`))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			srv.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("%s %s with %v: expected %d, got %d", tt.method, tt.path, tt.roles, tt.want, rec.Code)
			}
		})
	}
}
