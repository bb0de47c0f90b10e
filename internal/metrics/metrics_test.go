package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/caffeineduck/jsxpad/compiler"
	"github.com/caffeineduck/jsxpad/executor"
	"github.com/caffeineduck/jsxpad/playground"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveRun("ok", 10*time.Millisecond)
	m.ObserveRun("ok", 20*time.Millisecond)
	m.ObserveRun("compile_error", time.Millisecond)
	m.ObserveCompile(time.Millisecond, nil)
	m.ObserveCompile(time.Millisecond, errors.New("bad"))
	m.SessionOpened()
	m.SessionOpened()
	m.SessionClosed()

	out := scrape(t, m)
	assert.Contains(t, out, `jsxpad_runs_total{outcome="ok"} 2`)
	assert.Contains(t, out, `jsxpad_runs_total{outcome="compile_error"} 1`)
	assert.Contains(t, out, "jsxpad_run_duration_seconds_count 3")
	assert.Contains(t, out, `jsxpad_compile_duration_seconds_count{result="ok"} 1`)
	assert.Contains(t, out, `jsxpad_compile_duration_seconds_count{result="error"} 1`)
	assert.Contains(t, out, "jsxpad_active_sessions 1")
}

func TestNewNilRegistry(t *testing.T) {
	m := New(nil)
	m.ObserveRun("ok", time.Millisecond)
	assert.Contains(t, scrape(t, m), `jsxpad_runs_total{outcome="ok"} 1`)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		r    playground.Report
		want string
	}{
		{"ok", playground.Report{}, "ok"},
		{"not ready", playground.Report{Err: compiler.ErrNotReady}, "not_ready"},
		{"compile", playground.Report{Err: &compiler.Error{}}, "compile_error"},
		{"runtime", playground.Report{Render: executor.Result{RuntimeError: "boom"}}, "runtime_error"},
		{"timeout", playground.Report{Render: executor.Result{RuntimeError: "timeout after 1s", Error: errors.New("timeout after 1s")}}, "runtime_error"},
		{"failed", playground.Report{Render: executor.Result{Error: errors.New("executor closed")}}, "failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Outcome(tt.r))
		})
	}
}

func TestHooksFeedMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())
	svc := compiler.NewService()
	_, err := svc.EnsureLoaded(context.Background())
	require.NoError(t, err)

	p := playground.New(svc, playground.WithHooks(m.Hooks()))
	p.Run(context.Background())
	p.SetSource("{{")
	p.Run(context.Background())

	out := scrape(t, m)
	assert.Contains(t, out, `jsxpad_runs_total{outcome="ok"} 1`)
	assert.Contains(t, out, `jsxpad_runs_total{outcome="compile_error"} 1`)
	assert.Contains(t, out, `jsxpad_compile_duration_seconds_count{result="error"} 1`)
}
