//go:build integration

package integration

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/realtime"
	"github.com/gorilla/websocket"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialWS(t *testing.T, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(testServer.URL, "http") + path
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	t.Cleanup(func() { _ = conn.Close() })

	var hello realtime.Message
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, realtime.MessageSubscribed, hello.Type)
	return conn
}

// readEvent skips control messages and returns the next event.
func readEvent(t *testing.T, conn *websocket.Conn) domain.Event {
	t.Helper()
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
		_, raw, err := conn.ReadMessage()
		require.NoError(t, err)

		var ev domain.Event
		require.NoError(t, json.Unmarshal(raw, &ev))
		if ev.ID != "" {
			return ev
		}
	}
}

func TestRealtime_WebsocketStreams(t *testing.T) {
	tn := newTenant(t, "Realtime Org")
	console := newTestClient(t).As(t, tn.member)

	svc := createService(t, console, tn, "API", domain.ServiceStatusOperational)

	public := dialWS(t, "/ws/public/"+tn.org.Slug)
	private := dialWS(t, "/ws/org/"+tn.org.ID+"?token="+tn.member)

	inc := createIncident(t, console, tn, map[string]any{
		"title": "Realtime", "impact": "minor", "type": "incident", "service_ids": []string{svc.ID},
	})
	resp, err := console.POST(tn.path("/incidents/"+inc.ID+"/updates"), map[string]any{
		"message":   "internal detail",
		"is_public": false,
	})
	requireStatus(t, resp, err, http.StatusCreated)

	for _, conn := range []*websocket.Conn{public, private} {
		created := readEvent(t, conn)
		assert.Equal(t, domain.EventIncidentCreated, created.Type)
		added := readEvent(t, conn)
		assert.Equal(t, domain.EventIncidentUpdateAdded, added.Type)
		assert.Greater(t, added.Sequence, created.Sequence)

		if conn == public {
			assert.NotContains(t, string(added.Data), "internal detail")
			assert.NotContains(t, string(created.Data), "created_by")
			assert.NotContains(t, string(added.Data), "created_by")
		} else {
			assert.Contains(t, string(added.Data), "internal detail")
			assert.Contains(t, string(created.Data), "created_by")
		}
	}
}

func TestRealtime_WebsocketRejectsForeignTenant(t *testing.T) {
	a := newTenant(t, "WS Tenant A")
	b := newTenant(t, "WS Tenant B")

	url := "ws" + strings.TrimPrefix(testServer.URL, "http") + "/ws/org/" + a.org.ID + "?token=" + b.admin
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

// A second router bridged through the same Redis stands in for another
// API instance.
func TestRealtime_CrossInstanceDelivery(t *testing.T) {
	tn := newTenant(t, "Bridge Org")
	console := newTestClient(t).As(t, tn.member)

	client := redis.NewClient(&redis.Options{Addr: redisAddr})
	t.Cleanup(func() { _ = client.Close() })

	peer := realtime.NewRouter(16)
	t.Cleanup(peer.Close)
	bridge := realtime.NewRedisBridge(client, peer, realtime.BridgeConfig{ChannelPrefix: "it", PublishAttempts: 2})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = bridge.Run(ctx) }()

	sub, err := peer.Subscribe(ctx, tn.org.ID, realtime.SubscribeOptions{Public: true})
	require.NoError(t, err)
	defer sub.Cancel()

	// PSUBSCRIBE is asynchronous; publish until the peer sees traffic.
	var got domain.Event
	require.Eventually(t, func() bool {
		createService(t, console, tn, "Probe", domain.ServiceStatusOperational)
		select {
		case got = <-sub.Events():
			return true
		case <-time.After(200 * time.Millisecond):
			return false
		}
	}, 10*time.Second, 10*time.Millisecond)

	assert.Equal(t, domain.EventServiceCreated, got.Type)
	assert.Equal(t, tn.org.ID, got.OrganizationID)
	assert.NotEqual(t, peer.Origin(), got.Origin)
}
