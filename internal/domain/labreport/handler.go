package labreport

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/labtranscriber/labtranscriber/internal/extract"
	"github.com/labtranscriber/labtranscriber/internal/platform/auth"
	"github.com/labtranscriber/labtranscriber/internal/platform/fhir"
	"github.com/labtranscriber/labtranscriber/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group, fhirGroup *echo.Group) {
	readGroup := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleLabTech, auth.RoleViewer))
	readGroup.GET("/lab-reports", h.ListLabReports)
	readGroup.GET("/lab-reports/:id", h.GetLabReport)
	readGroup.GET("/lab-reports/:id/fhir", h.GetLabReportFHIR)
	readGroup.GET("/lab-reports/:id/document", h.GetDocument)
	readGroup.GET("/parameters", h.ListParameters)

	writeGroup := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleLabTech))
	writeGroup.POST("/parse", h.Parse)
	writeGroup.POST("/diagnose", h.Diagnose)
	writeGroup.POST("/lab-reports", h.CreateLabReport)
	writeGroup.DELETE("/lab-reports/:id", h.DeleteLabReport)

	adminGroup := api.Group("", auth.RequireRole(auth.RoleAdmin))
	adminGroup.POST("/config/reload", h.ReloadConfig)

	fhirRead := fhirGroup.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleLabTech, auth.RoleViewer))
	fhirRead.GET("/DiagnosticReport", h.SearchDiagnosticReportsFHIR)
	fhirRead.GET("/DiagnosticReport/:id", h.GetLabReportFHIR)
}

type textRequest struct {
	Text       string  `json:"text"`
	SourceName string  `json:"source_name"`
	Threshold  float64 `json:"threshold"`
}

func (h *Handler) Parse(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return c.JSON(http.StatusOK, h.svc.Parse(c.Request().Context(), req.Text))
}

func (h *Handler) Diagnose(c echo.Context) error {
	var req textRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Threshold < 0 || req.Threshold > 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "threshold must be between 0 and 1")
	}
	return c.JSON(http.StatusOK, h.svc.Diagnose(c.Request().Context(), req.Text, req.Threshold))
}

// CreateLabReport accepts either a multipart upload in the "file" field or a
// JSON body with the text.
func (h *Handler) CreateLabReport(c echo.Context) error {
	ctx := c.Request().Context()
	var (
		lr  *LabReport
		err error
	)
	if strings.HasPrefix(c.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		fh, ferr := c.FormFile("file")
		if ferr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "missing file")
		}
		f, ferr := fh.Open()
		if ferr != nil {
			return echo.NewHTTPError(http.StatusBadRequest, ferr.Error())
		}
		defer f.Close()
		lr, err = h.svc.CreateFromDocument(ctx, fh.Filename, f)
	} else {
		var req textRequest
		if err := c.Bind(&req); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
		lr, err = h.svc.CreateFromText(ctx, req.SourceName, req.Text)
	}
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, lr)
}

func (h *Handler) GetLabReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	lr, err := h.svc.Get(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, lr)
}

// GetDocument streams the original upload of a report.
func (h *Handler) GetDocument(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	rc, meta, err := h.svc.Document(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	defer rc.Close()
	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", meta.FileName))
	return c.Stream(http.StatusOK, meta.ContentType, rc)
}

func (h *Handler) ListLabReports(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

func (h *Handler) DeleteLabReport(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) ListParameters(c echo.Context) error {
	return c.JSON(http.StatusOK, h.svc.Parameters())
}

func (h *Handler) ReloadConfig(c echo.Context) error {
	catalog, err := h.svc.ReloadConfig()
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, "configuration not reloaded: "+err.Error())
	}
	return c.JSON(http.StatusOK, catalog)
}

// -- FHIR --

func (h *Handler) GetLabReportFHIR(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return c.JSON(http.StatusBadRequest, fhir.NewOperationOutcome("error", "invalid", "invalid id"))
	}
	lr, err := h.svc.Get(c.Request().Context(), id)
	if errors.Is(err, ErrNotFound) {
		return c.JSON(http.StatusNotFound, fhir.NotFoundOutcome("DiagnosticReport", c.Param("id")))
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.NewOperationOutcome("error", "exception", err.Error()))
	}
	return c.JSON(http.StatusOK, lr.ToFHIR())
}

func (h *Handler) SearchDiagnosticReportsFHIR(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.List(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.NewOperationOutcome("error", "exception", err.Error()))
	}
	resources := make([]map[string]interface{}, len(items))
	for i, lr := range items {
		resources[i] = lr.ToFHIR()
	}
	links := make([]fhir.BundleLink, 0, 3)
	for _, l := range pg.Links(c.Request().URL.Path, c.QueryParams(), total) {
		links = append(links, fhir.BundleLink{Relation: l.Relation, URL: l.URL})
	}
	bundle, err := fhir.NewSearchBundle(resources, total, links)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, fhir.NewOperationOutcome("error", "exception", err.Error()))
	}
	return c.JSON(http.StatusOK, bundle)
}

func httpError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "lab report not found")
	case errors.Is(err, ErrNoDocument):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrEmptyText), errors.Is(err, extract.ErrNoTextLayer), errors.Is(err, extract.ErrEncrypted):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, extract.ErrUnsupportedFormat):
		return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, extract.ErrTooLarge):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, err.Error())
	}
	return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
}
