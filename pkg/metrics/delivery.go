package metrics

import "github.com/prometheus/client_golang/prometheus"

// DeliveryMetrics counts mail delivery outcomes per sequence.
type DeliveryMetrics struct {
	sent         *prometheus.CounterVec
	retries      *prometheus.CounterVec
	breakerTrips *prometheus.CounterVec
}

// NewDeliveryMetrics registers the delivery metrics on the provided registerer.
func NewDeliveryMetrics(reg prometheus.Registerer) *DeliveryMetrics {
	if reg == nil {
		return &DeliveryMetrics{}
	}
	sent := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sequence_steps_sent",
		Help: "Sequence steps delivered through the mail gateway.",
	}, []string{"sequence"})
	retries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sequence_step_retries",
		Help: "Transient delivery failures scheduled for retry.",
	}, []string{"sequence"})
	trips := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sequence_breaker_trips",
		Help: "Records moved to the failed state by the bounce breaker.",
	}, []string{"sequence"})
	reg.MustRegister(sent, retries, trips)
	return &DeliveryMetrics{
		sent:         sent,
		retries:      retries,
		breakerTrips: trips,
	}
}

// IncSent increments the delivered counter for the sequence.
func (d *DeliveryMetrics) IncSent(sequence string) {
	if d == nil || d.sent == nil {
		return
	}
	d.sent.WithLabelValues(normalizeLabel(sequence)).Inc()
}

// IncRetry increments the retry counter for the sequence.
func (d *DeliveryMetrics) IncRetry(sequence string) {
	if d == nil || d.retries == nil {
		return
	}
	d.retries.WithLabelValues(normalizeLabel(sequence)).Inc()
}

// IncBreakerTrip increments the breaker counter for the sequence.
func (d *DeliveryMetrics) IncBreakerTrip(sequence string) {
	if d == nil || d.breakerTrips == nil {
		return
	}
	d.breakerTrips.WithLabelValues(normalizeLabel(sequence)).Inc()
}
