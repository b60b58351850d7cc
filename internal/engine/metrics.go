package engine

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/seantiz/testengine-ci/internal/model"
	"github.com/seantiz/testengine-ci/internal/store"
)

const collectTimeout = 2 * time.Second

var executionsDesc = prometheus.NewDesc(
	"testengine_executions",
	"Number of executions by status.",
	[]string{"status"}, nil,
)

// metrics belongs to one Registry; nothing is registered globally.
type metrics struct {
	store       store.Store
	transitions *prometheus.CounterVec
}

func newMetrics(s store.Store) *metrics {
	return &metrics{
		store: s,
		transitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "testengine_execution_transitions_total",
				Help: "Total number of execution status transitions.",
			},
			[]string{"from", "to"},
		),
	}
}

func (m *metrics) transition(from, to model.Status) {
	m.transitions.WithLabelValues(string(from), string(to)).Inc()
}

// Describe implements prometheus.Collector.
func (r *Registry) Describe(ch chan<- *prometheus.Desc) {
	ch <- executionsDesc
	r.metrics.transitions.Describe(ch)
}

// Collect implements prometheus.Collector. Execution counts are read from
// the store at scrape time.
func (r *Registry) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), collectTimeout)
	defer cancel()

	counts, err := r.metrics.store.CountByStatus(ctx)
	if err != nil {
		r.logger.Error("failed to count executions", "error", err)
		ch <- prometheus.NewInvalidMetric(executionsDesc, err)
	} else {
		for _, st := range model.AllStatuses {
			ch <- prometheus.MustNewConstMetric(executionsDesc, prometheus.GaugeValue, float64(counts[st]), string(st))
		}
	}
	r.metrics.transitions.Collect(ch)
}
