// Package metrics registers the engine's Prometheus collectors and
// exposes the scrape handler mounted at /metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	TapEvents = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "accrual", Name: "tap_events_total", Help: "Recorded tap events",
	})
	PayrollRuns = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "accrual", Name: "payroll_runs_total", Help: "Committed payroll runs",
	})
	RunConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "accrual", Name: "payroll_run_conflicts_total", Help: "Payroll runs rejected by per-teacher lock",
	})
	RunFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "accrual", Name: "payroll_run_failures_total", Help: "Payroll runs rolled back",
	})
	StudentsPaid = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "accrual", Name: "students_paid_total", Help: "Wage transactions written by payroll runs",
	})
)

func init() {
	prometheus.MustRegister(TapEvents, PayrollRuns, RunConflicts, RunFailures, StudentsPaid)
}

func Handler() http.Handler { return promhttp.Handler() }
