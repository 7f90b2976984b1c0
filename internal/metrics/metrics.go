// Package metrics exposes Prometheus collectors for flows, callbacks,
// callback deliveries, and transaction record changes
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kode4food/beckn/internal/store"
	"github.com/kode4food/beckn/pkg/api"
)

type (
	// Metrics owns a registry and the collectors registered on it
	Metrics struct {
		registry     *prometheus.Registry
		flows        *prometheus.CounterVec
		phases       *prometheus.HistogramVec
		callbacks    *prometheus.CounterVec
		deliveries   *prometheus.CounterVec
		transactions *prometheus.CounterVec
		stop         chan struct{}
		stopOnce     sync.Once
		wg           sync.WaitGroup
	}

	// Outcome labels what became of an incoming callback
	Outcome string
)

const namespace = "beckn"

const (
	OutcomeApplied  Outcome = "applied"
	OutcomeRejected Outcome = "rejected"
	OutcomeInvalid  Outcome = "invalid"
)

const (
	deliveryOK     = "ok"
	deliveryFailed = "failed"
)

// New creates Metrics with its own registry, including the Go runtime and
// process collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		stop:     make(chan struct{}),
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "flows_total",
			Help:      "Orchestrated flows by outcome",
		}, []string{"status", "reason"}),
		phases: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "phase_duration_seconds",
			Help:      "Time from request to applied callback per phase",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2, 5, 10},
		}, []string{"phase"}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Callbacks received by the initiator",
		}, []string{"action", "outcome"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callback_deliveries_total",
			Help:      "Callbacks sent by the responder",
		}, []string{"action", "result"}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transaction_changes_total",
			Help:      "Transaction record changes by resulting status",
		}, []string{"status"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.flows, m.phases, m.callbacks, m.deliveries, m.transactions,
	)
	return m
}

// Registry returns the registry the collectors are registered on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// PhaseCompleted records how long a phase took to complete
func (m *Metrics) PhaseCompleted(phase api.Action, elapsed time.Duration) {
	m.phases.WithLabelValues(string(phase)).Observe(elapsed.Seconds())
}

// FlowCompleted counts a finished flow
func (m *Metrics) FlowCompleted(res *api.FlowResult) {
	m.flows.WithLabelValues(string(res.Status), res.Reason).Inc()
}

// Callback counts a callback received by the initiator
func (m *Metrics) Callback(action api.Action, outcome Outcome) {
	m.callbacks.WithLabelValues(string(action), string(outcome)).Inc()
}

// Delivered counts a callback sent by the responder. It has the shape of
// a responder delivery observer
func (m *Metrics) Delivered(action api.Action, err error) {
	result := deliveryOK
	if err != nil {
		result = deliveryFailed
	}
	m.deliveries.WithLabelValues(string(action), result).Inc()
}

// Watch counts every change published on the feed until Stop is called.
// Only changes published after Watch returns are seen
func (m *Metrics) Watch(feed *store.Feed) {
	cons := feed.Subscribe()
	m.wg.Go(func() {
		defer cons.Close()
		for {
			select {
			case <-m.stop:
				return
			case ev, ok := <-cons.Receive():
				if !ok {
					return
				}
				m.transactions.WithLabelValues(string(ev.Status)).Inc()
			}
		}
	})
}

// Stop ends every Watch and waits for them to return
func (m *Metrics) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
	})
	m.wg.Wait()
}
