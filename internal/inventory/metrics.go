package inventory

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for stock mutations. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	mutations  *prometheus.CounterVec
	batchItems *prometheus.CounterVec
}

// NewMetrics registers the inventory collectors against registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_inventory_mutations_total",
		Help: "Quick adjustments partitioned by operation and outcome.",
	}, []string{"operation", "outcome"})
	batchItems := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "bakery_inventory_batch_items_total",
		Help: "Batch add items partitioned by result.",
	}, []string{"result"})
	registerer.MustRegister(mutations, batchItems)
	return &Metrics{mutations: mutations, batchItems: batchItems}
}

func (m *Metrics) observeAdjust(op Operation, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.mutations.WithLabelValues(string(op), outcome).Inc()
}

func (m *Metrics) observeBatch(result BatchResult) {
	if m == nil {
		return
	}
	m.batchItems.WithLabelValues("updated").Add(float64(result.TotalUpdated))
	m.batchItems.WithLabelValues("inserted").Add(float64(result.TotalInserted))
	m.batchItems.WithLabelValues("merged").Add(float64(result.Merged))
	m.batchItems.WithLabelValues("error").Add(float64(len(result.Errors)))
}
