package station

import "github.com/prometheus/client_golang/prometheus"

var (
	waitingRequests *prometheus.GaugeVec
	pileStatus      *prometheus.GaugeVec
	pileQueueLength *prometheus.GaugeVec
	dispatchedTotal *prometheus.CounterVec
	rerouteTotal    *prometheus.CounterVec
	tickErrors      prometheus.Counter
	tickDuration    prometheus.Histogram
	billsIssued     prometheus.Counter
	billedEnergy    prometheus.Counter
)

func newCollectors() []prometheus.Collector {
	waitingRequests = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evstation_waiting_requests",
			Help: "Requests in the waiting area per mode",
		},
		[]string{"mode"},
	)
	pileStatus = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evstation_pile_status",
			Help: "Pile status code (0 available, 1 charging, 2 fault, 3 off)",
		},
		[]string{"pile"},
	)
	pileQueueLength = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "evstation_pile_queue_length",
			Help: "Entries in the local queue of each pile, excluding the charging slot",
		},
		[]string{"pile"},
	)
	dispatchedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evstation_dispatched_total",
			Help: "Requests placed on piles by source",
		},
		[]string{"source"},
	)
	rerouteTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "evstation_reroute_entries_total",
			Help: "Entries redistributed by fault and recovery passes",
		},
		[]string{"type", "outcome"},
	)
	tickErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evstation_dispatch_tick_errors_total",
		Help: "Dispatch ticks that failed or panicked",
	})
	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "evstation_dispatch_tick_seconds",
		Help:    "Duration of dispatch ticks",
		Buckets: prometheus.DefBuckets,
	})
	billsIssued = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evstation_bills_total",
		Help: "Bills generated",
	})
	billedEnergy = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "evstation_billed_energy_kwh_total",
		Help: "Energy billed in kWh",
	})
	return []prometheus.Collector{
		waitingRequests, pileStatus, pileQueueLength, dispatchedTotal,
		rerouteTotal, tickErrors, tickDuration, billsIssued, billedEnergy,
	}
}

var collectors = newCollectors()

func init() {
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers station metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(collectors...)
}

// ResetMetrics reinitializes the collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	collectors = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
