package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collectors for the offer lifecycle. Registered on the default registry so
// the daemon only needs to mount promhttp.
var (
	OffersPrepared = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "datamarket",
		Subsystem: "market",
		Name:      "offers_prepared_total",
		Help:      "Number of offers created via prepare.",
	})
	OffersSettled = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "datamarket",
		Subsystem: "market",
		Name:      "offers_settled_total",
		Help:      "Number of offers that reached the settled state.",
	})
	EscrowFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "datamarket",
		Subsystem: "market",
		Name:      "escrow_failures_total",
		Help:      "Number of settlement attempts that failed in the escrow handler.",
	})
	OperationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "datamarket",
		Subsystem: "market",
		Name:      "operation_errors_total",
		Help:      "Number of fatal operation errors by operation.",
	}, []string{"op"})
)
