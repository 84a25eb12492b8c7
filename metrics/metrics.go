// Package metrics holds the Prometheus collectors of the gateway and the
// server exposing them.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collectors are the gateway metrics. A nil *Collectors is valid and records nothing.
type Collectors struct {
	transactions    *prometheus.CounterVec
	txDuration      *prometheus.HistogramVec
	gasUsed         *prometheus.CounterVec
	flows           *prometheus.CounterVec
	collaboratorErr *prometheus.CounterVec
	pinnedBytes     *prometheus.CounterVec
}

// NewCollectors registers the gateway collectors on reg under namespace.
func NewCollectors(namespace string, reg prometheus.Registerer) (*Collectors, error) {
	c := &Collectors{
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transactions_total",
			Help:      "Escrow calls submitted, by function and outcome.",
		}, []string{"function", "status"}),
		txDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transaction_duration_seconds",
			Help:      "Time from input resolution to effects, by function.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
		}, []string{"function"}),
		gasUsed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gas_used_mist_total",
			Help:      "Gas charged for executed calls, by function.",
		}, []string{"function"}),
		flows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_flows_total",
			Help:      "zkLogin flows by provider and result.",
		}, []string{"provider", "result"}),
		collaboratorErr: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collaborator_errors_total",
			Help:      "Failed requests to external collaborators.",
		}, []string{"collaborator"}),
		pinnedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pinned_bytes_total",
			Help:      "Bytes pinned, by content type.",
		}, []string{"content_type"}),
	}

	for _, col := range []prometheus.Collector{c.transactions, c.txDuration, c.gasUsed, c.flows, c.collaboratorErr, c.pinnedBytes} {
		if err := reg.Register(col); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// ObserveTransaction records one executed call.
func (c *Collectors) ObserveTransaction(function, status string, gasUsed uint64, took time.Duration) {
	if c == nil {
		return
	}
	c.transactions.WithLabelValues(function, status).Inc()
	c.txDuration.WithLabelValues(function).Observe(took.Seconds())
	c.gasUsed.WithLabelValues(function).Add(float64(gasUsed))
}

// ObserveFlow records a flow outcome.
func (c *Collectors) ObserveFlow(provider, result string) {
	if c == nil {
		return
	}
	c.flows.WithLabelValues(provider, result).Inc()
}

// ObserveCollaboratorError counts a failed collaborator request.
func (c *Collectors) ObserveCollaboratorError(collaborator string) {
	if c == nil {
		return
	}
	c.collaboratorErr.WithLabelValues(collaborator).Inc()
}

// ObservePinned counts pinned bytes.
func (c *Collectors) ObservePinned(contentType string, n int) {
	if c == nil {
		return
	}
	c.pinnedBytes.WithLabelValues(contentType).Add(float64(n))
}

// MetricsServer serves /metrics from its own registry.
type MetricsServer struct {
	Collectors *Collectors

	registry *prometheus.Registry
	srv      *http.Server
}

// New creates the registry, registers the gateway and runtime collectors and
// prepares a server on addr. Metrics are collected even when addr is empty.
func New(namespace, addr string) (*MetricsServer, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(collectors.NewGoCollector()); err != nil {
		return nil, err
	}
	if err := reg.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{})); err != nil {
		return nil, err
	}
	c, err := NewCollectors(namespace, reg)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	return &MetricsServer{
		Collectors: c,
		registry:   reg,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Handler returns the /metrics handler.
func (s *MetricsServer) Handler() http.Handler {
	return s.srv.Handler
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
