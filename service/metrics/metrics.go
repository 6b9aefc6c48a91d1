package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	GateSubmissions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitality_gate_submissions_total",
		Help: "Payment gate submissions by gate kind.",
	}, []string{"kind"})

	StateTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitality_state_transitions_total",
		Help: "Appointment state machine transitions by target state.",
	}, []string{"to"})

	NotificationsDelivered = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "vitality_notifications_delivered_total",
		Help: "Practitioner notifications delivered by channel.",
	}, []string{"channel"})

	RejectedTransitions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vitality_rejected_transitions_total",
		Help: "Events rejected by a state machine guard.",
	})
)

func Handler() http.Handler {
	return promhttp.Handler()
}
