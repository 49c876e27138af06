package metrics

import "github.com/prometheus/client_golang/prometheus"

// Settlement outcomes.
const (
	OutcomeCreated           = "created"
	OutcomeDuplicate         = "duplicate"
	OutcomePaymentIncomplete = "payment_incomplete"
	OutcomeSlotConflict      = "slot_conflict"
	OutcomeInvalidSession    = "invalid_session"
	OutcomeError             = "error"
)

// BookingMetrics exposes counters for the booking and settlement flows. A nil
// *BookingMetrics is valid and records nothing.
type BookingMetrics struct {
	settlements   *prometheus.CounterVec
	notifyFailed  *prometheus.CounterVec
	gatewayErrors *prometheus.CounterVec
	bookings      *prometheus.CounterVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultbook",
			Subsystem: "booking",
			Name:      "settlements_total",
			Help:      "Payment settlement attempts by outcome",
		}, []string{"outcome"}),
		notifyFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultbook",
			Subsystem: "booking",
			Name:      "notification_failures_total",
			Help:      "Notification sends that failed",
		}, []string{"kind"}),
		gatewayErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultbook",
			Subsystem: "booking",
			Name:      "payment_gateway_errors_total",
			Help:      "Payment gateway calls that failed",
		}, []string{"operation"}),
		bookings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "consultbook",
			Subsystem: "booking",
			Name:      "submissions_total",
			Help:      "Booking submissions by result",
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.settlements, m.notifyFailed, m.gatewayErrors, m.bookings)
	return m
}

func (m *BookingMetrics) ObserveSettlement(outcome string) {
	if m == nil {
		return
	}
	m.settlements.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) ObserveNotificationFailure(kind string) {
	if m == nil {
		return
	}
	m.notifyFailed.WithLabelValues(kind).Inc()
}

func (m *BookingMetrics) ObserveGatewayError(operation string) {
	if m == nil {
		return
	}
	m.gatewayErrors.WithLabelValues(operation).Inc()
}

func (m *BookingMetrics) ObserveSubmission(result string) {
	if m == nil {
		return
	}
	m.bookings.WithLabelValues(result).Inc()
}
