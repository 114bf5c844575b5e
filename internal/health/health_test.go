package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/MrWong99/phonospell/internal/resilience"
)

func ok(context.Context) error { return nil }

func failing(msg string) func(context.Context) error {
	return func(context.Context) error { return errors.New(msg) }
}

func readyz(t *testing.T, h *Handler, ctx context.Context) (int, result) {
	t.Helper()
	req := httptest.NewRequest("GET", "/readyz", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	h.Readyz(rec, req)

	var body result
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode JSON: %v", err)
	}
	return rec.Code, body
}

func TestHealthz_AlwaysReturns200(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "cache", Critical: true, Check: failing("down")})
	req := httptest.NewRequest("GET", "/healthz", nil)
	rec := httptest.NewRecorder()
	h.Healthz(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json; charset=utf-8" {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestReadyz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		checkers   []Checker
		wantCode   int
		wantStatus string
		wantChecks map[string]string
	}{
		{
			name:       "no checkers",
			wantCode:   http.StatusOK,
			wantStatus: "ok",
		},
		{
			name: "all pass",
			checkers: []Checker{
				{Name: "cache", Critical: true, Check: ok},
				{Name: "model", Check: ok},
			},
			wantCode:   http.StatusOK,
			wantStatus: "ok",
			wantChecks: map[string]string{"cache": "ok", "model": "ok"},
		},
		{
			name: "non-critical fails",
			checkers: []Checker{
				{Name: "cache", Critical: true, Check: ok},
				{Name: "model", Check: failing("breaker open")},
			},
			wantCode:   http.StatusOK,
			wantStatus: "degraded",
			wantChecks: map[string]string{"cache": "ok", "model": "fail: breaker open"},
		},
		{
			name: "critical fails",
			checkers: []Checker{
				{Name: "cache", Critical: true, Check: failing("connection refused")},
				{Name: "model", Check: failing("breaker open")},
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "fail",
			wantChecks: map[string]string{"cache": "fail: connection refused", "model": "fail: breaker open"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			code, body := readyz(t, New(tt.checkers...), context.Background())
			if code != tt.wantCode {
				t.Errorf("code = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			for name, want := range tt.wantChecks {
				if got := body.Checks[name]; got != want {
					t.Errorf("checks[%q] = %q, want %q", name, got, want)
				}
			}
		})
	}
}

func TestReadyz_ChecksRunConcurrently(t *testing.T) {
	t.Parallel()

	slow := func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	h := New(
		Checker{Name: "a", Check: slow},
		Checker{Name: "b", Check: slow},
		Checker{Name: "c", Check: slow},
	)

	start := time.Now()
	code, _ := readyz(t, h, context.Background())
	if code != http.StatusOK {
		t.Fatalf("code = %d", code)
	}
	if elapsed := time.Since(start); elapsed > 500*time.Millisecond {
		t.Errorf("readyz took %s, checks did not run concurrently", elapsed)
	}
}

func TestReadyz_RespectsContextCancellation(t *testing.T) {
	t.Parallel()

	h := New(Checker{Name: "slow", Critical: true, Check: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if code, _ := readyz(t, h, ctx); code != http.StatusServiceUnavailable {
		t.Errorf("code = %d, want %d", code, http.StatusServiceUnavailable)
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestPingChecker(t *testing.T) {
	t.Parallel()

	c := PingChecker("cache", pinger{err: errors.New("disk gone")})
	if !c.Critical {
		t.Error("PingChecker should be critical")
	}
	if err := c.Check(context.Background()); err == nil {
		t.Error("expected ping error")
	}
}

func TestBreakerChecker(t *testing.T) {
	t.Parallel()

	open := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour})
	_ = open.Execute(func() error { return errors.New("down") })
	closed := resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})

	if err := BreakerChecker("model", open, closed).Check(context.Background()); err != nil {
		t.Errorf("one healthy backend: err = %v, want nil", err)
	}
	if err := BreakerChecker("model", open).Check(context.Background()); err == nil {
		t.Error("all breakers open: want error")
	}
	if err := BreakerChecker("model").Check(context.Background()); err != nil {
		t.Errorf("no breakers: err = %v, want nil", err)
	}
	if BreakerChecker("model").Critical {
		t.Error("BreakerChecker should not be critical")
	}
}

func TestRegister_RoutesWork(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	New(Checker{Name: "test", Check: ok}).Register(mux)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, http.StatusOK)
		}
	}
}
