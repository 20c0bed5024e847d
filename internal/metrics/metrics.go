package metrics

import (
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PublishAttempts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_publish_total",
		Help: "Publish attempts by outcome",
	}, []string{"outcome"})
	GateTicks = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_gate_ticks_total",
		Help: "Publish gate ticks by decision",
	}, []string{"decision"})
	Reactions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_reactions_total",
		Help: "Reaction attempts by kind and outcome",
	}, []string{"kind", "outcome"})
	Sweeps = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_engagement_sweeps_total",
		Help: "Engagement sweeps by result",
	}, []string{"result"})
	TaskDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "herald_task_duration_seconds",
		Help:    "Scheduled task duration seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"task"})
	APIRetries = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_api_retries_total",
		Help: "Total API retry attempts",
	}, []string{"endpoint"})
	CommandRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_command_runs_total",
		Help: "CLI command runs",
	}, []string{"command"})
	CommandErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "herald_command_errors_total",
		Help: "CLI command errors",
	}, []string{"command"})
)

func init() {
	prometheus.MustRegister(PublishAttempts, GateTicks, Reactions, Sweeps, TaskDuration, APIRetries, CommandRuns, CommandErrors)
}

// StartServer starts a metrics HTTP server on addr (e.g., ":9090").
func StartServer(addr string) {
	if addr == "" {
		addr = os.Getenv("METRICS_ADDR")
	}
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	go func() { _ = http.ListenAndServe(addr, mux) }()
}

// ObserveTask records how long a scheduled task ran.
func ObserveTask(task string, start time.Time) {
	TaskDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
}

// IncAPIRetry increments the retry counter for an endpoint.
func IncAPIRetry(endpoint string) { APIRetries.WithLabelValues(endpoint).Inc() }

func IncReaction(kind, outcome string) { Reactions.WithLabelValues(kind, outcome).Inc() }

func IncPublish(outcome string) { PublishAttempts.WithLabelValues(outcome).Inc() }

func IncGateTick(decision string) { GateTicks.WithLabelValues(decision).Inc() }

func IncSweep(result string) { Sweeps.WithLabelValues(result).Inc() }

func IncCommandRun(cmd string)   { CommandRuns.WithLabelValues(cmd).Inc() }
func IncCommandError(cmd string) { CommandErrors.WithLabelValues(cmd).Inc() }
