package realtime

import (
	"sync"
	"sync/atomic"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/google/uuid"
)

// Subscription is one observer of an organization channel.
type Subscription struct {
	id     string
	orgID  string
	public bool
	router *Router

	events chan domain.Event
	done   chan struct{}
	once   sync.Once

	lagged    atomic.Bool
	cancelled atomic.Bool

	callback bool
	cbMu     sync.Mutex
}

func newSubscription(r *Router, orgID string, public bool, buffer int) *Subscription {
	return &Subscription{
		id:     uuid.NewString(),
		orgID:  orgID,
		public: public,
		router: r,
		events: make(chan domain.Event, buffer),
		done:   make(chan struct{}),
	}
}

// ID returns the subscription id.
func (s *Subscription) ID() string { return s.id }

// OrganizationID returns the channel the subscription listens on.
func (s *Subscription) OrganizationID() string { return s.orgID }

// Events returns the event stream. It is closed on cancellation.
func (s *Subscription) Events() <-chan domain.Event { return s.events }

// Done is closed once the subscription is cancelled.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Lagged reports whether events were dropped since the last call.
func (s *Subscription) Lagged() bool {
	return s.lagged.Swap(false)
}

// send is called with the channel lock held.
func (s *Subscription) send(event domain.Event) {
	if s.public {
		event = event.ForPublic()
	}

	select {
	case s.events <- event:
		eventsDelivered.WithLabelValues(audience(s.public)).Inc()
	default:
		s.lagged.Store(true)
		eventsDropped.WithLabelValues(audience(s.public)).Inc()
	}
}

// Cancel stops delivery and releases the subscription. Buffered events
// are discarded. It is safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		s.cancelled.Store(true)
		s.router.remove(s)

		// events was closed by remove; discard what is still buffered
		for range s.events {
		}

		if s.callback {
			// wait for an in-flight callback to return
			s.cbMu.Lock()
			s.cbMu.Unlock()
		}

		close(s.done)
		activeSubscriptions.WithLabelValues(audience(s.public)).Dec()
	})
}
