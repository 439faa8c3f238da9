package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/Songmu/retry"
	"github.com/bissquit/statusboard/internal/domain"
	"github.com/bissquit/statusboard/internal/pkg/ctxlog"
	"github.com/redis/go-redis/v9"
)

const publishTimeout = 5 * time.Second

// BridgeConfig configures a RedisBridge.
type BridgeConfig struct {
	ChannelPrefix        string
	PublishAttempts      int
	PublishRetryInterval time.Duration
}

// RedisBridge relays router events through Redis pub/sub so that every
// instance delivers every organization's events to its own subscribers.
type RedisBridge struct {
	client   *redis.Client
	router   *Router
	prefix   string
	attempts uint
	interval time.Duration
}

// wireEvent is the Redis message body. It keeps the fields Event hides
// from JSON clients.
type wireEvent struct {
	Event      domain.Event    `json:"event"`
	PublicData json.RawMessage `json:"public_data,omitempty"`
	Origin     string          `json:"origin"`
}

// NewRedisBridge creates a bridge for router and installs it as the
// router's forwarder.
func NewRedisBridge(client *redis.Client, router *Router, cfg BridgeConfig) *RedisBridge {
	attempts := cfg.PublishAttempts
	if attempts < 1 {
		attempts = 1
	}
	prefix := cfg.ChannelPrefix
	if prefix == "" {
		prefix = "statusboard"
	}

	b := &RedisBridge{
		client:   client,
		router:   router,
		prefix:   prefix,
		attempts: uint(attempts),
		interval: cfg.PublishRetryInterval,
	}
	router.SetForwarder(b)
	return b
}

func (b *RedisBridge) channelName(orgID string) string {
	return b.prefix + ":org:" + orgID
}

// Forward publishes event to Redis. Failures are logged and swallowed.
func (b *RedisBridge) Forward(ctx context.Context, event domain.Event) {
	if err := b.Publish(ctx, event); err != nil {
		bridgeMessages.WithLabelValues("out", "error").Inc()
		ctxlog.FromContext(ctx).Warn("event not forwarded to other instances",
			"organization_id", event.OrganizationID,
			"type", event.Type,
			"error", err,
		)
		return
	}
	bridgeMessages.WithLabelValues("out", "ok").Inc()
}

// Publish sends event to the organization's Redis channel, retrying
// failed attempts. Errors wrap domain.ErrTransport.
func (b *RedisBridge) Publish(ctx context.Context, event domain.Event) error {
	body, err := json.Marshal(wireEvent{
		Event:      event,
		PublicData: event.PublicData,
		Origin:     event.Origin,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	// the request that triggered the event may finish before Redis answers
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	channel := b.channelName(event.OrganizationID)
	err = retry.Retry(b.attempts, b.interval, func() error {
		return b.client.Publish(ctx, channel, body).Err()
	})
	if err != nil {
		return fmt.Errorf("%w: publish to %s: %v", domain.ErrTransport, channel, err)
	}
	return nil
}

// Run subscribes to every organization channel and delivers events
// published by other instances until ctx is done.
func (b *RedisBridge) Run(ctx context.Context) error {
	pubsub := b.client.PSubscribe(ctx, b.channelName("*"))
	defer func() {
		if err := pubsub.Close(); err != nil {
			slog.Warn("failed to close redis subscription", "error", err)
		}
	}()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("%w: subscribe: %v", domain.ErrTransport, err)
	}

	slog.Info("realtime bridge subscribed", "pattern", b.channelName("*"))

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return fmt.Errorf("%w: subscription closed", domain.ErrTransport)
			}
			b.handle(msg.Channel, msg.Payload)
		}
	}
}

// handle delivers one Redis message locally. Messages this instance
// published itself were delivered at publish time and are skipped.
func (b *RedisBridge) handle(channel, payload string) {
	var w wireEvent
	if err := json.Unmarshal([]byte(payload), &w); err != nil {
		bridgeMessages.WithLabelValues("in", "invalid").Inc()
		slog.Warn("invalid bridge message", "channel", channel, "error", err)
		return
	}

	if w.Origin == b.router.Origin() {
		return
	}

	orgID := strings.TrimPrefix(channel, b.prefix+":org:")
	if w.Event.OrganizationID != orgID || !w.Event.Type.IsValid() {
		bridgeMessages.WithLabelValues("in", "invalid").Inc()
		slog.Warn("bridge message does not match its channel", "channel", channel, "type", w.Event.Type)
		return
	}

	event := w.Event
	event.PublicData = w.PublicData
	event.Origin = w.Origin
	bridgeMessages.WithLabelValues("in", "ok").Inc()
	b.router.Deliver(event)
}
