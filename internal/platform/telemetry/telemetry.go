// Package telemetry keeps in-process HTTP and parse metrics and serves them
// in the Prometheus text exposition format.
package telemetry

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/labtranscriber/labtranscriber/internal/labparse"
)

// Request durations in seconds.
var durationBuckets = []float64{0.010, 0.025, 0.050, 0.100, 0.250, 0.500, 1.0, 2.5, 5.0, 10.0}

// Parse durations in seconds. Parsing is CPU bound and usually fast.
var parseBuckets = []float64{0.0005, 0.001, 0.005, 0.010, 0.050, 0.100, 0.500, 1.0}

const labelSep = "\x1f"

// Provider owns every metric the service exports.
type Provider struct {
	service string
	version string

	httpDuration   *histogramVec
	parseDuration  *histogram
	activeRequests int64

	counters *valueStore
	gauges   *valueStore
}

func NewProvider(service, version string) *Provider {
	return &Provider{
		service:       service,
		version:       version,
		httpDuration:  newHistogramVec(durationBuckets),
		parseDuration: newHistogram(parseBuckets),
		counters:      newValueStore(),
		gauges:        newValueStore(),
	}
}

// MetricsMiddleware records the duration of every request except scrapes of
// /metrics itself.
func (p *Provider) MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().URL.Path == "/metrics" {
				return next(c)
			}
			atomic.AddInt64(&p.activeRequests, 1)
			defer atomic.AddInt64(&p.activeRequests, -1)

			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			} else if err != nil {
				status = http.StatusInternalServerError
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			key := strings.Join([]string{c.Request().Method, route, strconv.Itoa(status)}, labelSep)
			p.httpDuration.with(key).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// ObserveParse records one parsed document.
func (p *Provider) ObserveParse(elapsed time.Duration, stats labparse.Stats) {
	p.parseDuration.Observe(elapsed.Seconds())
	p.counters.add("documents", 1)
	p.counters.add("lines", int64(stats.Lines))
	p.counters.add("matches"+labelSep+string(labparse.MethodExact), int64(stats.Exact))
	p.counters.add("matches"+labelSep+string(labparse.MethodFuzzy), int64(stats.Fuzzy))
	p.counters.add("unresolved", int64(stats.Unresolved))
}

// ObserveReload records a configuration reload. version is the active
// version afterwards.
func (p *Provider) ObserveReload(version int64, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	p.counters.add("reloads"+labelSep+result, 1)
	p.gauges.set("config_version", version)
}

// PrometheusHandler serves GET /metrics.
func (p *Provider) PrometheusHandler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var b strings.Builder

		writeHeader(&b, "labtranscriber_build_info", "Build information.", "gauge")
		fmt.Fprintf(&b, "labtranscriber_build_info{service=%q,version=%q} 1\n\n", p.service, p.version)

		writeHeader(&b, "http_server_request_duration_seconds", "Duration of HTTP requests in seconds.", "histogram")
		for _, key := range p.httpDuration.keys() {
			parts := strings.SplitN(key, labelSep, 3)
			labels := fmt.Sprintf("method=%q,route=%q,status_code=%q", parts[0], parts[1], parts[2])
			writeHistogram(&b, "http_server_request_duration_seconds", labels, p.httpDuration.with(key))
		}
		b.WriteByte('\n')

		writeHeader(&b, "http_server_active_requests", "Number of in-flight HTTP requests.", "gauge")
		fmt.Fprintf(&b, "http_server_active_requests %d\n\n", atomic.LoadInt64(&p.activeRequests))

		writeHeader(&b, "labtranscriber_parse_duration_seconds", "Time spent matching one document.", "histogram")
		writeHistogram(&b, "labtranscriber_parse_duration_seconds", "", p.parseDuration)
		b.WriteByte('\n')

		p.writeCounter(&b, "labtranscriber_documents_parsed_total", "Documents parsed.", "documents")
		p.writeCounter(&b, "labtranscriber_lines_scanned_total", "Lines scanned for parameter names.", "lines")
		p.writeCounter(&b, "labtranscriber_unresolved_total", "Parameters found without a usable value.", "unresolved")

		writeHeader(&b, "labtranscriber_matches_total", "Reported parameters by matching pass.", "counter")
		for _, m := range []labparse.Method{labparse.MethodExact, labparse.MethodFuzzy} {
			fmt.Fprintf(&b, "labtranscriber_matches_total{method=%q} %d\n", m, p.counters.get("matches"+labelSep+string(m)))
		}
		b.WriteByte('\n')

		writeHeader(&b, "labtranscriber_config_reloads_total", "Parameter configuration reloads by result.", "counter")
		for _, r := range []string{"ok", "error"} {
			fmt.Fprintf(&b, "labtranscriber_config_reloads_total{result=%q} %d\n", r, p.counters.get("reloads"+labelSep+r))
		}
		b.WriteByte('\n')

		writeHeader(&b, "labtranscriber_config_version", "Active parameter configuration version.", "gauge")
		fmt.Fprintf(&b, "labtranscriber_config_version %d\n", p.gauges.get("config_version"))

		c.Response().Header().Set(echo.HeaderContentType, "text/plain; version=0.0.4; charset=utf-8")
		return c.String(http.StatusOK, b.String())
	}
}

func (p *Provider) writeCounter(b *strings.Builder, name, help, key string) {
	writeHeader(b, name, help, "counter")
	fmt.Fprintf(b, "%s %d\n\n", name, p.counters.get(key))
}

func writeHeader(b *strings.Builder, name, help, typ string) {
	fmt.Fprintf(b, "# HELP %s %s\n", name, help)
	fmt.Fprintf(b, "# TYPE %s %s\n", name, typ)
}

func writeHistogram(b *strings.Builder, name, labels string, h *histogram) {
	prefix, suffix := "", ""
	if labels != "" {
		prefix = labels + ","
		suffix = "{" + labels + "}"
	}
	cum := h.cumulativeBuckets()
	for i, le := range h.boundaries {
		fmt.Fprintf(b, "%s_bucket{%sle=\"%g\"} %d\n", name, prefix, le, cum[i])
	}
	fmt.Fprintf(b, "%s_bucket{%sle=\"+Inf\"} %d\n", name, prefix, h.Count())
	fmt.Fprintf(b, "%s_sum%s %g\n", name, suffix, h.Sum())
	fmt.Fprintf(b, "%s_count%s %d\n", name, suffix, h.Count())
}
