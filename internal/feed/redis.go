package feed

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"sheltercore/pkg/domain"
)

const defaultFeedChannel = "sheltercore:changes"

// envelope is the wire format for cross-process change propagation.
type envelope struct {
	Origin string  `json:"origin"`
	Events []Event `json:"events"`
}

// RedisBridgeOption customizes RedisBridge construction.
type RedisBridgeOption func(*RedisBridge)

// BridgeWithChannel overrides the pub/sub channel name.
func BridgeWithChannel(channel string) RedisBridgeOption {
	return func(b *RedisBridge) {
		if channel != "" {
			b.channel = channel
		}
	}
}

// BridgeWithLogger injects a logger.
func BridgeWithLogger(logger *zap.Logger) RedisBridgeOption {
	return func(b *RedisBridge) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// RedisBridge mirrors local committed changes to a Redis pub/sub channel and
// replays remote changes into the local hub. Every bridge instance carries a
// random origin ID stamped on outgoing envelopes; incoming envelopes bearing
// the same ID are discarded, which keeps a process from reacting to its own
// publications.
type RedisBridge struct {
	client   *redis.Client
	hub      *Hub
	channel  string
	originID string
	logger   *zap.Logger
}

// NewRedisBridge wires a redis client to the local hub.
func NewRedisBridge(client *redis.Client, hub *Hub, opts ...RedisBridgeOption) *RedisBridge {
	b := &RedisBridge{
		client:   client,
		hub:      hub,
		channel:  defaultFeedChannel,
		originID: newOriginID(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

// OpenRedisBridge builds a bridge from environment variables. It reports
// false when SHELTERCORE_FEED_REDIS_ADDR is unset, meaning the deployment
// runs without cross-process fan-out.
//
//	SHELTERCORE_FEED_REDIS_ADDR: host:port of the redis server
//	SHELTERCORE_FEED_REDIS_PASSWORD: optional password
//	SHELTERCORE_FEED_REDIS_DB: optional database index
//	SHELTERCORE_FEED_REDIS_CHANNEL: pub/sub channel (default sheltercore:changes)
func OpenRedisBridge(hub *Hub, opts ...RedisBridgeOption) (*RedisBridge, bool) {
	addr := os.Getenv("SHELTERCORE_FEED_REDIS_ADDR")
	if addr == "" {
		return nil, false
	}
	db := 0
	if raw := os.Getenv("SHELTERCORE_FEED_REDIS_DB"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil {
			db = parsed
		}
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: os.Getenv("SHELTERCORE_FEED_REDIS_PASSWORD"),
		DB:       db,
	})
	if channel := os.Getenv("SHELTERCORE_FEED_REDIS_CHANNEL"); channel != "" {
		opts = append(opts, BridgeWithChannel(channel))
	}
	return NewRedisBridge(client, hub, opts...), true
}

func newOriginID() string {
	var buf [8]byte
	if _, err := rand.Read(buf[:]); err != nil {
		return "origin-unknown"
	}
	return hex.EncodeToString(buf[:])
}

// OriginID returns the bridge's loop-prevention identifier.
func (b *RedisBridge) OriginID() string { return b.originID }

// SinkChanges publishes committed changes to the Redis channel and forwards
// them to the local hub. It satisfies domain.ChangeSink so the bridge can be
// installed directly on a persistent store.
func (b *RedisBridge) SinkChanges(changes []domain.Change) {
	events := make([]Event, 0, len(changes))
	for _, change := range changes {
		eventType, ok := EventTypeForAction(change.Action)
		if !ok {
			continue
		}
		events = append(events, Event{
			Entity: change.Entity,
			Type:   eventType,
			Before: payloadFor(change.Before),
			After:  payloadFor(change.After),
		})
	}
	if len(events) == 0 {
		return
	}
	for _, event := range events {
		b.hub.Broadcast(event)
	}
	data, err := json.Marshal(envelope{Origin: b.originID, Events: events})
	if err != nil {
		b.logger.Warn("encode feed envelope", zap.Error(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Warn("publish feed envelope", zap.Error(err))
	}
}

// Run consumes remote envelopes until ctx is cancelled. A dropped pub/sub
// connection is reopened with capped exponential backoff.
func (b *RedisBridge) Run(ctx context.Context) error {
	delay := initialResubscribeDelay
	for {
		if err := b.consume(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.Warn("feed subscription dropped",
				zap.Duration("retry_in", delay),
				zap.Error(err))
			// Local watchers must assume events were missed while the remote
			// feed was down.
			b.hub.DropAll()
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxResubscribeDelay {
			delay = maxResubscribeDelay
		}
	}
}

func (b *RedisBridge) consume(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer func() { _ = pubsub.Close() }()
	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return redis.ErrClosed
			}
			b.dispatch([]byte(msg.Payload))
		}
	}
}

func (b *RedisBridge) dispatch(payload []byte) {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		b.logger.Warn("decode feed envelope", zap.Error(err))
		return
	}
	if env.Origin == b.originID {
		return
	}
	for _, event := range env.Events {
		b.hub.Broadcast(event)
	}
}
