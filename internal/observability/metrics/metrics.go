package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters for the scheduling core.
type BookingMetrics struct {
	bookingsTotal  *prometheus.CounterVec
	transitions    *prometheus.CounterVec
	slotCacheTotal *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		bookingsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citasalud",
			Subsystem: "bookings",
			Name:      "requests_total",
			Help:      "Booking requests by outcome (accepted or rejection kind)",
		}, []string{"outcome"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citasalud",
			Subsystem: "bookings",
			Name:      "transitions_total",
			Help:      "Appointment lifecycle transitions by operation and outcome",
		}, []string{"operation", "outcome"}),
		slotCacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "citasalud",
			Subsystem: "availability",
			Name:      "slot_cache_total",
			Help:      "Slot cache lookups by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.bookingsTotal, m.transitions, m.slotCacheTotal)
	return m
}

// ObserveBooking records a booking request outcome.
func (m *BookingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingsTotal.WithLabelValues(outcome).Inc()
}

// ObserveTransition records a lifecycle operation outcome.
func (m *BookingMetrics) ObserveTransition(operation, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(operation, outcome).Inc()
}

// ObserveSlotCache records a cache hit or miss on the availability read path.
func (m *BookingMetrics) ObserveSlotCache(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.slotCacheTotal.WithLabelValues(result).Inc()
}
