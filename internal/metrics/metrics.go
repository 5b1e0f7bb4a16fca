// Package metrics holds the domain counters of the order lifecycle.
// A nil *Metrics is valid and records nothing.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	ordersPlaced    prometheus.Counter
	pagesDebited    prometheus.Counter
	ordersDeleted   *prometheus.CounterVec
	pagesCredited   prometheus.Counter
	ledgerClamps    prometheus.Counter
	cleanupFailures prometheus.Counter
	advance         *prometheus.CounterVec
}

// New registers the counters on reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assignly_orders_placed_total",
			Help: "Orders committed together with their quota debit.",
		}),
		pagesDebited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assignly_pages_debited_total",
			Help: "Pages debited from account quotas.",
		}),
		ordersDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignly_orders_deleted_total",
			Help: "Order deletion requests by outcome.",
		}, []string{"outcome"}),
		pagesCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assignly_pages_credited_total",
			Help: "Pages credited back to account quotas.",
		}),
		ledgerClamps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assignly_ledger_clamps_total",
			Help: "Credits where a usage counter was floored at zero.",
		}),
		cleanupFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "assignly_cleanup_failures_total",
			Help: "External file deletions that failed during order deletion.",
		}),
		advance: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "assignly_status_advance_total",
			Help: "Status advancer results per candidate order.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{
		m.ordersPlaced, m.pagesDebited, m.ordersDeleted, m.pagesCredited,
		m.ledgerClamps, m.cleanupFailures, m.advance,
	} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) OrderPlaced(pages int) {
	if m == nil {
		return
	}
	m.ordersPlaced.Inc()
	m.pagesDebited.Add(float64(pages))
}

func (m *Metrics) OrderDeleted(alreadyAbsent bool, pages int) {
	if m == nil {
		return
	}
	if alreadyAbsent {
		m.ordersDeleted.WithLabelValues("absent").Inc()
		return
	}
	m.ordersDeleted.WithLabelValues("deleted").Inc()
	m.pagesCredited.Add(float64(pages))
}

func (m *Metrics) LedgerClamped() {
	if m == nil {
		return
	}
	m.ledgerClamps.Inc()
}

func (m *Metrics) CleanupFailed(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cleanupFailures.Add(float64(n))
}

// Advance records one advancer outcome: "advanced", "skipped" or "failed".
func (m *Metrics) Advance(result string) {
	if m == nil {
		return
	}
	m.advance.WithLabelValues(result).Inc()
}
