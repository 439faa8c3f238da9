package incidents

import (
	"errors"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var incidentMutations = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "statusboard",
		Subsystem: "incidents",
		Name:      "mutations_total",
		Help:      "Incident mutations by operation and outcome",
	},
	[]string{"operation", "outcome"},
)

func recordMutation(operation string, err error) {
	incidentMutations.WithLabelValues(operation, outcome(err)).Inc()
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrValidation):
		return "validation"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	default:
		return "error"
	}
}
