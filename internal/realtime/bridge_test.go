package realtime

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBridge(t *testing.T, addr string) (*RedisBridge, *Router) {
	t.Helper()
	client := redis.NewClient(&redis.Options{
		Addr:        addr,
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })

	router := NewRouter(8)
	bridge := NewRedisBridge(client, router, BridgeConfig{
		ChannelPrefix:        "test",
		PublishAttempts:      2,
		PublishRetryInterval: time.Millisecond,
	})
	return bridge, router
}

func wire(t *testing.T, event domain.Event) string {
	t.Helper()
	body, err := json.Marshal(wireEvent{Event: event, PublicData: event.PublicData, Origin: event.Origin})
	require.NoError(t, err)
	return string(body)
}

func TestRedisBridge_HandleForeignEvent(t *testing.T) {
	bridge, router := newTestBridge(t, "127.0.0.1:1")

	public, err := router.Subscribe(context.Background(), "org-1", SubscribeOptions{Public: true})
	require.NoError(t, err)
	defer public.Cancel()

	event := domain.Event{
		ID:             "ev-1",
		Type:           domain.EventIncidentUpdateAdded,
		OrganizationID: "org-1",
		Sequence:       99,
		Data:           json.RawMessage(`{"secret":true}`),
		PublicData:     json.RawMessage(`{"secret":false}`),
		Origin:         "another-instance",
	}
	bridge.handle("test:org:org-1", wire(t, event))

	got := receive(t, public)
	assert.Equal(t, "ev-1", got.ID)
	assert.Equal(t, uint64(1), got.Sequence)
	assert.JSONEq(t, `{"secret":false}`, string(got.Data))
}

func TestRedisBridge_HandleSkipsOwnAndInvalid(t *testing.T) {
	bridge, router := newTestBridge(t, "127.0.0.1:1")

	sub, err := router.Subscribe(context.Background(), "org-1", SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Cancel()

	own := domain.Event{ID: "ev-own", Type: domain.EventServiceCreated, OrganizationID: "org-1", Origin: router.Origin(), Data: json.RawMessage(`{}`)}
	bridge.handle("test:org:org-1", wire(t, own))

	mismatched := domain.Event{ID: "ev-x", Type: domain.EventServiceCreated, OrganizationID: "org-2", Origin: "other", Data: json.RawMessage(`{}`)}
	bridge.handle("test:org:org-1", wire(t, mismatched))

	unknown := domain.Event{ID: "ev-y", Type: "service_exploded", OrganizationID: "org-1", Origin: "other", Data: json.RawMessage(`{}`)}
	bridge.handle("test:org:org-1", wire(t, unknown))

	bridge.handle("test:org:org-1", "not json")

	select {
	case ev := <-sub.Events():
		t.Fatalf("unexpected event %s", ev.ID)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRedisBridge_PublishUnavailable(t *testing.T) {
	bridge, router := newTestBridge(t, "127.0.0.1:1")

	err := bridge.Publish(context.Background(), domain.Event{ID: "ev", OrganizationID: "org-1", Type: domain.EventServiceCreated})
	assert.ErrorIs(t, err, domain.ErrTransport)

	// local delivery is unaffected by a dead transport
	sub, err := router.Subscribe(context.Background(), "org-1", SubscribeOptions{})
	require.NoError(t, err)
	defer sub.Cancel()

	router.Publish(context.Background(), "org-1", domain.EventServiceCreated, domain.DeletedEvent{ID: "svc"})
	assert.Equal(t, domain.EventServiceCreated, receive(t, sub).Type)
}

func TestRedisBridge_ChannelName(t *testing.T) {
	bridge, _ := newTestBridge(t, "127.0.0.1:1")
	assert.Equal(t, "test:org:abc", bridge.channelName("abc"))
	assert.Equal(t, "test:org:*", bridge.channelName("*"))
}
