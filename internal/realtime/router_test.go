package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) domain.Event {
	t.Helper()
	select {
	case ev, ok := <-sub.Events():
		require.True(t, ok, "subscription closed")
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
	return domain.Event{}
}

func TestRouter_PublishSubscribe(t *testing.T) {
	r := NewRouter(16)
	ctx := context.Background()

	sub, err := r.Subscribe(ctx, "org-1", SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Cancel()

	other, err := r.Subscribe(ctx, "org-2", SubscribeOptions{})
	require.NoError(t, err)
	defer other.Cancel()

	for i := 0; i < 5; i++ {
		r.Publish(ctx, "org-1", domain.EventServiceUpdated, domain.DeletedEvent{ID: string(rune('a' + i))})
	}

	for i := 0; i < 5; i++ {
		ev := receive(t, sub)
		assert.Equal(t, uint64(i+1), ev.Sequence)
		assert.Equal(t, domain.EventServiceUpdated, ev.Type)
		assert.Equal(t, "org-1", ev.OrganizationID)
		assert.NotEmpty(t, ev.ID)

		var payload domain.DeletedEvent
		require.NoError(t, json.Unmarshal(ev.Data, &payload))
		assert.Equal(t, string(rune('a'+i)), payload.ID)
	}

	select {
	case ev := <-other.Events():
		t.Fatalf("unexpected event on other channel: %v", ev.Type)
	default:
	}
}

func TestRouter_PublishWithoutSubscribers(t *testing.T) {
	r := NewRouter(1)
	assert.NotPanics(t, func() {
		r.Publish(context.Background(), "nobody", domain.EventServiceDeleted, domain.DeletedEvent{ID: "x"})
	})
	assert.Equal(t, 0, r.Subscribers("nobody"))
}

func TestRouter_SubscribeFuncCancel(t *testing.T) {
	r := NewRouter(16)
	ctx := context.Background()

	var count atomic.Int64
	sub, err := r.SubscribeFunc(ctx, "org-1", SubscribeOptions{}, func(domain.Event) {
		count.Add(1)
	})
	require.NoError(t, err)

	r.Publish(ctx, "org-1", domain.EventServiceCreated, domain.DeletedEvent{ID: "1"})
	assert.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)

	sub.Cancel()
	sub.Cancel()
	after := count.Load()

	for i := 0; i < 10; i++ {
		r.Publish(ctx, "org-1", domain.EventServiceCreated, domain.DeletedEvent{ID: "2"})
	}
	time.Sleep(50 * time.Millisecond)

	assert.Equal(t, after, count.Load())
	assert.Equal(t, 0, r.Subscribers("org-1"))

	select {
	case <-sub.Done():
	default:
		t.Fatal("done not closed")
	}
}

func TestRouter_CancelDiscardsBuffered(t *testing.T) {
	r := NewRouter(8)
	ctx := context.Background()

	sub, err := r.Subscribe(ctx, "org-1", SubscribeOptions{})
	require.NoError(t, err)

	r.Publish(ctx, "org-1", domain.EventServiceCreated, domain.DeletedEvent{ID: "1"})
	sub.Cancel()

	_, ok := <-sub.Events()
	assert.False(t, ok)
}

func TestRouter_ContextCancelEndsSubscription(t *testing.T) {
	r := NewRouter(8)
	ctx, cancel := context.WithCancel(context.Background())

	sub, err := r.Subscribe(ctx, "org-1", SubscribeOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, r.Subscribers("org-1"))

	cancel()

	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not cancelled")
	}
	assert.Equal(t, 0, r.Subscribers("org-1"))
}

func TestRouter_PublicRedaction(t *testing.T) {
	r := NewRouter(8)
	ctx := context.Background()

	public, err := r.Subscribe(ctx, "org-1", SubscribeOptions{Public: true})
	require.NoError(t, err)
	defer public.Cancel()

	private, err := r.Subscribe(ctx, "org-1", SubscribeOptions{})
	require.NoError(t, err)
	defer private.Cancel()

	incident := &domain.Incident{ID: "inc-1", OrganizationID: "org-1", Status: domain.IncidentStatusIdentified}
	update := &domain.Update{ID: "upd-1", Message: "db primary failed over", IsPublic: false}
	r.Publish(ctx, "org-1", domain.EventIncidentUpdateAdded, domain.NewIncidentEvent(incident, update, domain.IncidentStatusInvestigating))

	var pub, priv domain.IncidentEvent
	require.NoError(t, json.Unmarshal(receive(t, public).Data, &pub))
	require.NoError(t, json.Unmarshal(receive(t, private).Data, &priv))

	assert.Nil(t, pub.Update)
	assert.Equal(t, "inc-1", pub.Incident.ID)
	require.NotNil(t, priv.Update)
	assert.Equal(t, "db primary failed over", priv.Update.Message)
}

func TestRouter_DropOnFullBuffer(t *testing.T) {
	r := NewRouter(2)
	ctx := context.Background()

	slow, err := r.Subscribe(ctx, "org-1", SubscribeOptions{})
	require.NoError(t, err)
	defer slow.Cancel()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			r.Publish(ctx, "org-1", domain.EventServiceUpdated, domain.DeletedEvent{ID: "x"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}

	assert.True(t, slow.Lagged())
	assert.False(t, slow.Lagged())

	first := receive(t, slow)
	second := receive(t, slow)
	assert.Equal(t, uint64(1), first.Sequence)
	assert.Equal(t, uint64(2), second.Sequence)
}

func TestRouter_ConcurrentPublishKeepsOrderPerPublisher(t *testing.T) {
	r := NewRouter(1024)
	ctx := context.Background()

	sub, err := r.Subscribe(ctx, "org-1", SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Cancel()

	const publishers, perPublisher = 4, 50
	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perPublisher; i++ {
				r.Publish(ctx, "org-1", domain.EventServiceUpdated, map[string]int{"p": p, "i": i})
			}
		}(p)
	}
	wg.Wait()

	last := map[int]int{0: -1, 1: -1, 2: -1, 3: -1}
	var prevSeq uint64
	for n := 0; n < publishers*perPublisher; n++ {
		ev := receive(t, sub)
		assert.Greater(t, ev.Sequence, prevSeq)
		prevSeq = ev.Sequence

		var body map[string]int
		require.NoError(t, json.Unmarshal(ev.Data, &body))
		assert.Greater(t, body["i"], last[body["p"]])
		last[body["p"]] = body["i"]
	}
}

func TestRouter_Close(t *testing.T) {
	r := NewRouter(4)
	ctx := context.Background()

	sub, err := r.Subscribe(ctx, "org-1", SubscribeOptions{})
	require.NoError(t, err)

	r.Close()

	_, ok := <-sub.Events()
	assert.False(t, ok)

	_, err = r.Subscribe(ctx, "org-1", SubscribeOptions{})
	assert.ErrorIs(t, err, ErrRouterClosed)

	_, err = NewRouter(1).Subscribe(ctx, "", SubscribeOptions{})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

type recordingForwarder struct {
	mu     sync.Mutex
	events []domain.Event
}

func (f *recordingForwarder) Forward(_ context.Context, event domain.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func TestRouter_Forwarder(t *testing.T) {
	r := NewRouter(4)
	f := &recordingForwarder{}
	r.SetForwarder(f)

	r.Publish(context.Background(), "org-1", domain.EventServiceDeleted, domain.DeletedEvent{ID: "svc"})

	require.Len(t, f.events, 1)
	assert.Equal(t, r.Origin(), f.events[0].Origin)
	assert.Equal(t, "org-1", f.events[0].OrganizationID)
}
