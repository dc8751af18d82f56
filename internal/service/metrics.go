package service

import (
	"context"

	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	kitprometheus "github.com/go-kit/kit/metrics/prometheus"
	prom "github.com/prometheus/client_golang/prometheus"

	"lwwdoc/internal/document"
	"lwwdoc/internal/value"
)

// Metrics holds the counters updated by the metrics middleware.
type Metrics struct {
	// Writes counts field writes, labelled by outcome.
	Writes metrics.Counter
	// Merges counts merged snapshots.
	Merges metrics.Counter
	// MergedFields counts fields taken from merged snapshots.
	MergedFields metrics.Counter
	// Collisions counts conflicting writes sharing timestamp and writer.
	Collisions metrics.Counter
}

// NewDiscardMetrics returns metrics that record nothing.
func NewDiscardMetrics() *Metrics {
	return &Metrics{
		Writes:       discard.NewCounter(),
		Merges:       discard.NewCounter(),
		MergedFields: discard.NewCounter(),
		Collisions:   discard.NewCounter(),
	}
}

// NewPrometheusMetrics returns metrics registered with reg.
func NewPrometheusMetrics(reg prom.Registerer) *Metrics {
	counter := func(name, help string, labels ...string) metrics.Counter {
		cv := prom.NewCounterVec(prom.CounterOpts{
			Namespace: "lwwdoc",
			Subsystem: "service",
			Name:      name,
			Help:      help,
		}, labels)
		reg.MustRegister(cv)
		return kitprometheus.NewCounter(cv)
	}

	return &Metrics{
		Writes:       counter("writes_total", "Number of field writes", "outcome"),
		Merges:       counter("merges_total", "Number of merged snapshots"),
		MergedFields: counter("merged_fields_total", "Number of fields taken from merged snapshots"),
		Collisions:   counter("collisions_total", "Number of conflicting writes sharing timestamp and writer"),
	}
}

type metricsService struct {
	service Service
	metrics *Metrics
}

// NewMetricsService wraps s and records its activity in m.
func NewMetricsService(s Service, m *Metrics) Service {
	return &metricsService{
		service: s,
		metrics: m,
	}
}

func (s *metricsService) SetField(ctx context.Context, req SetFieldRequest) (document.Outcome, error) {

	outcome, err := s.service.SetField(ctx, req)

	if err == nil {
		s.metrics.Writes.With("outcome", outcome.String()).Add(1)
		if outcome.IsCollision() {
			s.metrics.Collisions.Add(1)
		}
	}

	return outcome, err
}

func (s *metricsService) GetField(ctx context.Context, id, field string) (value.Value, bool) {
	return s.service.GetField(ctx, id, field)
}

func (s *metricsService) Export(ctx context.Context, id string) (map[string]any, bool) {
	return s.service.Export(ctx, id)
}

func (s *metricsService) Snapshot(ctx context.Context, id string, since uint64) (*document.Document, bool) {
	return s.service.Snapshot(ctx, id, since)
}

func (s *metricsService) Merge(ctx context.Context, doc *document.Document) (document.MergeResult, error) {

	res, err := s.service.Merge(ctx, doc)

	if err == nil {
		s.metrics.Merges.Add(1)
		s.metrics.MergedFields.Add(float64(res.Applied))
		s.metrics.Collisions.Add(float64(res.Collisions))
	}

	return res, err
}

func (s *metricsService) IDs(ctx context.Context) []string {
	return s.service.IDs(ctx)
}
