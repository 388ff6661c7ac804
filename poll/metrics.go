package poll

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	pollsCreated  prometheus.Counter
	membersAdded  prometheus.Counter
	votesAccepted prometheus.Counter
	votesRejected *prometheus.CounterVec
}

func newMetrics(promRegistry prometheus.Registerer) *metrics {
	factory := promauto.With(promRegistry)
	return &metrics{
		pollsCreated: factory.NewCounter(prometheus.CounterOpts{
			Name: "garage_polls_created_total",
			Help: "polls created",
		}),
		membersAdded: factory.NewCounter(prometheus.CounterOpts{
			Name: "garage_poll_members_added_total",
			Help: "member commitments registered across all polls",
		}),
		votesAccepted: factory.NewCounter(prometheus.CounterOpts{
			Name: "garage_votes_accepted_total",
			Help: "votes accepted across all polls",
		}),
		votesRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "garage_votes_rejected_total",
			Help: "votes rejected by reason",
		}, []string{"reason"}),
	}
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrPollNotFound):
		return "poll_not_found"
	case errors.Is(err, ErrTimeWindow):
		return "time_window"
	case errors.Is(err, ErrNullifierReused):
		return "nullifier_reused"
	case errors.Is(err, ErrStaleRoot):
		return "stale_root"
	case errors.Is(err, ErrInvalidProof):
		return "invalid_proof"
	default:
		return "internal"
	}
}
