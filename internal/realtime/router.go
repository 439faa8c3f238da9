// Package realtime fans out organization events to connected observers.
//
// Router is the in-process hub: one logical channel per organization, with
// events of a channel delivered to every subscriber in publish order.
// Delivery never waits on a subscriber. A subscriber whose buffer is full
// misses the event and is flagged as lagged so its transport can ask the
// client to refetch. RedisBridge extends a channel across instances.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/google/uuid"
)

// ErrRouterClosed is returned by Subscribe after Close.
var ErrRouterClosed = errors.New("router closed")

// DefaultBuffer is the per-subscriber buffer used when none is configured.
const DefaultBuffer = 64

// Forwarder carries locally published events to other instances.
type Forwarder interface {
	Forward(ctx context.Context, event domain.Event)
}

// Router implements publish/subscribe over organization channels.
type Router struct {
	origin string
	buffer int

	mu        sync.Mutex
	channels  map[string]*channel
	closed    bool
	forwarder Forwarder
}

type channel struct {
	mu   sync.Mutex
	seq  uint64
	subs map[string]*Subscription
}

// NewRouter creates a router whose subscribers buffer up to buffer events.
func NewRouter(buffer int) *Router {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Router{
		origin:   uuid.NewString(),
		buffer:   buffer,
		channels: make(map[string]*channel),
	}
}

// Origin identifies this router instance on shared transports.
func (r *Router) Origin() string {
	return r.origin
}

// SetForwarder installs f to receive every locally published event.
func (r *Router) SetForwarder(f Forwarder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwarder = f
}

// Publish broadcasts an event on the organization channel. It never
// fails: encoding and transport problems are logged and the event is
// dropped, leaving observers to their periodic refetch.
func (r *Router) Publish(ctx context.Context, orgID string, eventType domain.EventType, payload any) {
	event, err := r.newEvent(orgID, eventType, payload)
	if err != nil {
		ctxlog.FromContext(ctx).Error("failed to encode event",
			"organization_id", orgID,
			"type", eventType,
			"error", err,
		)
		return
	}

	eventsPublished.WithLabelValues(string(eventType)).Inc()
	r.Deliver(event)

	r.mu.Lock()
	f := r.forwarder
	r.mu.Unlock()
	if f != nil {
		f.Forward(ctx, event)
	}
}

func (r *Router) newEvent(orgID string, eventType domain.EventType, payload any) (domain.Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return domain.Event{}, err
	}

	event := domain.Event{
		ID:             uuid.NewString(),
		Type:           eventType,
		OrganizationID: orgID,
		Data:           data,
		Origin:         r.origin,
		PublishedAt:    time.Now().UTC(),
	}

	if v, ok := payload.(domain.PublicViewer); ok {
		public, err := json.Marshal(v.PublicView())
		if err != nil {
			return domain.Event{}, err
		}
		event.PublicData = public
	}
	return event, nil
}

// Deliver hands event to the local subscribers of its channel, stamping
// the channel sequence number.
func (r *Router) Deliver(event domain.Event) {
	r.mu.Lock()
	ch, ok := r.channels[event.OrganizationID]
	r.mu.Unlock()
	if !ok {
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.seq++
	event.Sequence = ch.seq
	for _, sub := range ch.subs {
		sub.send(event)
	}
}

// SubscribeOptions configure a subscription.
type SubscribeOptions struct {
	// Public subscribers receive events with private content removed.
	Public bool
}

// Subscribe opens a subscription on the organization channel. The
// subscription ends when Cancel is called, ctx is done or the router
// closes.
func (r *Router) Subscribe(ctx context.Context, orgID string, opts SubscribeOptions) (*Subscription, error) {
	return r.subscribe(ctx, orgID, opts, false)
}

func (r *Router) subscribe(ctx context.Context, orgID string, opts SubscribeOptions, callback bool) (*Subscription, error) {
	if orgID == "" {
		return nil, domain.NewValidationError("organization_id", "required")
	}

	sub := newSubscription(r, orgID, opts.Public, r.buffer)
	sub.callback = callback

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ErrRouterClosed
	}
	ch, ok := r.channels[orgID]
	if !ok {
		ch = &channel{subs: make(map[string]*Subscription)}
		r.channels[orgID] = ch
	}
	ch.mu.Lock()
	ch.subs[sub.id] = sub
	ch.mu.Unlock()
	r.mu.Unlock()

	activeSubscriptions.WithLabelValues(audience(opts.Public)).Inc()

	go func() {
		select {
		case <-ctx.Done():
			sub.Cancel()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// SubscribeFunc subscribes and calls fn for every event on a dedicated
// goroutine. fn is never called once Cancel has returned. fn must not
// call Cancel itself.
func (r *Router) SubscribeFunc(ctx context.Context, orgID string, opts SubscribeOptions, fn func(domain.Event)) (*Subscription, error) {
	sub, err := r.subscribe(ctx, orgID, opts, true)
	if err != nil {
		return nil, err
	}

	go func() {
		for event := range sub.events {
			sub.cbMu.Lock()
			if !sub.cancelled.Load() {
				fn(event)
			}
			sub.cbMu.Unlock()
		}
	}()
	return sub, nil
}

// remove detaches sub from its channel. Once it returns no further event
// can be sent to sub.
func (r *Router) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch, ok := r.channels[sub.orgID]
	if !ok {
		close(sub.events)
		return
	}

	ch.mu.Lock()
	delete(ch.subs, sub.id)
	close(sub.events)
	empty := len(ch.subs) == 0
	ch.mu.Unlock()

	if empty {
		delete(r.channels, sub.orgID)
	}
}

// Subscribers returns the number of local subscribers of orgID.
func (r *Router) Subscribers(orgID string) int {
	r.mu.Lock()
	ch, ok := r.channels[orgID]
	r.mu.Unlock()
	if !ok {
		return 0
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.subs)
}

// Close cancels every subscription and rejects new ones.
func (r *Router) Close() {
	r.mu.Lock()
	r.closed = true
	var subs []*Subscription
	for _, ch := range r.channels {
		ch.mu.Lock()
		for _, sub := range ch.subs {
			subs = append(subs, sub)
		}
		ch.mu.Unlock()
	}
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Cancel()
	}
}

func audience(public bool) string {
	if public {
		return "public"
	}
	return "organization"
}
