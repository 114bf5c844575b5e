package observe

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

// newMiddlewareHarness wraps a mux with a phonospell-like route set in
// [Middleware], recording metrics to a manual reader and spans in memory.
func newMiddlewareHarness(t *testing.T) (http.Handler, *sdkmetric.ManualReader, *tracetest.InMemoryExporter) {
	t.Helper()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	exp := useTestTracer(t)

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/correct", func(w http.ResponseWriter, r *http.Request) {
		Logger(r.Context()).Info("spelling: handled")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("DELETE /v1/cache/{word}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("POST /v1/correct/batch", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	return Middleware(m)(mux), reader, exp
}

func serve(h http.Handler, method, target string, header http.Header) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, nil)
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_CorrelationID(t *testing.T) {
	h, _, exp := newMiddlewareHarness(t)

	rec := serve(h, http.MethodPost, "/v1/correct", nil)
	cid := rec.Header().Get("X-Correlation-ID")
	if len(cid) != 32 {
		t.Fatalf("X-Correlation-ID = %q, want a 32-char trace ID", cid)
	}
	if got := exp.GetSpans()[0].SpanContext.TraceID().String(); got != cid {
		t.Errorf("span trace ID = %s, header = %s", got, cid)
	}

	const incoming = "4bf92f3577b34da6a3ce929d0e0e4736"
	rec = serve(h, http.MethodPost, "/v1/correct", http.Header{
		"Traceparent": {"00-" + incoming + "-00f067aa0ba902b7-01"},
	})
	if got := rec.Header().Get("X-Correlation-ID"); got != incoming {
		t.Errorf("X-Correlation-ID = %q, want the incoming trace %q", got, incoming)
	}
}

func TestMiddleware_SpanNamedAfterRoute(t *testing.T) {
	h, _, exp := newMiddlewareHarness(t)

	serve(h, http.MethodDelete, "/v1/cache/enuff", nil)
	serve(h, http.MethodPost, "/v1/correct/batch", nil)

	spans := exp.GetSpans()
	if len(spans) != 2 {
		t.Fatalf("recorded %d spans, want 2", len(spans))
	}
	if got := spans[0].Name; got != "HTTP DELETE /v1/cache/{word}" {
		t.Errorf("span name = %q", got)
	}
	if got := spans[1].Status.Code; got != codes.Error {
		t.Errorf("5xx span status = %v, want Error", got)
	}
	var status int64
	for _, a := range spans[0].Attributes {
		if a.Key == "http.response.status_code" {
			status = a.Value.AsInt64()
		}
	}
	if status != http.StatusNoContent {
		t.Errorf("http.response.status_code = %d, want 204", status)
	}
}

func TestMiddleware_DurationLabelledByRoute(t *testing.T) {
	h, reader, _ := newMiddlewareHarness(t)

	for _, word := range []string{"enuff", "fud", "platem"} {
		serve(h, http.MethodDelete, "/v1/cache/"+word, nil)
	}
	serve(h, http.MethodGet, "/nope", nil)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	hist := findMetric(rm, "phonospell.http.request.duration").Data.(metricdata.Histogram[float64])

	got := make(map[string]uint64)
	for _, dp := range hist.DataPoints {
		path, _ := dp.Attributes.Value("path")
		status, _ := dp.Attributes.Value("status")
		got[path.AsString()+" "+status.AsString()] = dp.Count
	}
	want := map[string]uint64{
		"DELETE /v1/cache/{word} 2xx": 3,
		"GET /nope 4xx":               1,
	}
	for k, n := range want {
		if got[k] != n {
			t.Errorf("count[%q] = %d, want %d (all: %v)", k, got[k], n, got)
		}
	}
}

func TestMiddleware_LogLevels(t *testing.T) {
	h, _, _ := newMiddlewareHarness(t)

	var buf bytes.Buffer
	orig := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo})))
	t.Cleanup(func() { slog.SetDefault(orig) })

	serve(h, http.MethodGet, "/healthz", nil)
	if buf.Len() != 0 {
		t.Errorf("health poll logged at info level: %s", buf.String())
	}

	serve(h, http.MethodPost, "/v1/correct", nil)
	out := buf.String()
	if !strings.Contains(out, `msg="spelling: handled"`) || !strings.Contains(out, "path=/v1/correct") {
		t.Errorf("handler log lacks the bound request attributes: %s", out)
	}
	if !strings.Contains(out, `msg="request completed"`) {
		t.Errorf("completion not logged: %s", out)
	}

	buf.Reset()
	serve(h, http.MethodPost, "/v1/correct/batch", nil)
	if !strings.Contains(buf.String(), "level=ERROR") {
		t.Errorf("5xx not logged at error level: %s", buf.String())
	}
}

func TestCompletionLevel(t *testing.T) {
	tests := []struct {
		route  string
		status int
		want   slog.Level
	}{
		{"POST /v1/correct", 200, slog.LevelInfo},
		{"GET /metrics", 200, slog.LevelDebug},
		{"GET /readyz", 503, slog.LevelError},
		{"POST /v1/correct", 400, slog.LevelWarn},
		{"GET /v1/live", 101, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := completionLevel(tt.route, tt.status); got != tt.want {
			t.Errorf("completionLevel(%q, %d) = %v, want %v", tt.route, tt.status, got, tt.want)
		}
	}
}
