package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestMetricsExposure(t *testing.T) {
	IncPublish("ok")
	IncGateTick("roll_miss")
	IncReaction("like", "ok")
	IncSweep("completed")
	IncAPIRetry("/feed/user/casts")
	IncCommandRun("post")
	IncCommandError("post")
	ObserveTask("publish", time.Now().Add(-1500*time.Millisecond))

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	promhttp.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status: %d", rec.Code)
	}
	body := rec.Body.String()
	for _, m := range []string{
		"herald_publish_total",
		"herald_gate_ticks_total",
		"herald_reactions_total",
		"herald_engagement_sweeps_total",
		"herald_api_retries_total",
		"herald_command_runs_total",
		"herald_command_errors_total",
		"herald_task_duration_seconds",
	} {
		if !strings.Contains(body, m) {
			t.Fatalf("expected metric %s in body", m)
		}
	}
}
