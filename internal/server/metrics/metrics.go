// Package metrics exposes authentication outcome counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels.
const (
	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Recorder is what the services report to. A nil Recorder is never passed
// around; use Nop instead.
type Recorder interface {
	AuthOperation(operation, outcome string)
	RefreshReplay()
}

// Collector records into Prometheus counters.
type Collector struct {
	operations *prometheus.CounterVec
	replays    prometheus.Counter
}

// NewCollector registers its counters with reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "authkeeper_auth_operations_total",
			Help: "Authentication operations by name and outcome.",
		}, []string{"operation", "outcome"}),
		replays: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "authkeeper_refresh_replays_total",
			Help: "Refresh attempts with a signed token that is no longer live.",
		}),
	}

	reg.MustRegister(c.operations, c.replays)
	return c
}

func (c *Collector) AuthOperation(operation, outcome string) {
	c.operations.WithLabelValues(operation, outcome).Inc()
}

func (c *Collector) RefreshReplay() {
	c.replays.Inc()
}

// Handler serves the scrape endpoint on /metrics.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

type Nop struct{}

func (Nop) AuthOperation(string, string) {}
func (Nop) RefreshReplay()               {}
