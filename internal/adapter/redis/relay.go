package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/KimuSoft/twitch-point-timer/internal/adapter/metrics"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

const relayChannel = "timer:events"

// Broadcaster delivers an encoded envelope to this instance's members of a channel.
type Broadcaster interface {
	Broadcast(channelID uuid.UUID, event string, message []byte)
}

type relayMessage struct {
	ChannelID uuid.UUID       `json:"channelId"`
	Event     string          `json:"event"`
	Message   json.RawMessage `json:"message"`
}

// Relay fans envelopes out to every instance through Redis pub/sub. Each
// instance, this one included, hands received envelopes to its local hub.
type Relay struct {
	rdb     goredis.UniversalClient
	local   Broadcaster
	metrics *metrics.RedisMetrics
}

func NewRelay(rdb goredis.UniversalClient, local Broadcaster, m *metrics.RedisMetrics) *Relay {
	return &Relay{rdb: rdb, local: local, metrics: m}
}

func (r *Relay) PublishSnapshot(ctx context.Context, ownerID uuid.UUID, snapshot domain.TimerSnapshot) error {
	if snapshot == nil {
		snapshot = domain.TimerSnapshot{}
	}
	return r.publish(ctx, ownerID, domain.EventUpdateData, snapshot)
}

func (r *Relay) PublishSourceChanged(ctx context.Context, ownerID uuid.UUID, _ uuid.UUID, code string) error {
	return r.publish(ctx, ownerID, domain.EventUpdateCode, domain.CodeUpdate{OverlayCode: code})
}

func (r *Relay) publish(ctx context.Context, channelID uuid.UUID, event string, data any) error {
	msg, err := domain.EncodeEnvelope(event, data)
	if err != nil {
		return fmt.Errorf("failed to encode %s envelope: %w", event, err)
	}

	payload, err := json.Marshal(relayMessage{ChannelID: channelID, Event: event, Message: msg})
	if err != nil {
		return fmt.Errorf("failed to encode relay message: %w", err)
	}

	if err := r.rdb.Publish(ctx, relayChannel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event, err)
	}
	r.count("out")
	return nil
}

// Start forwards relayed envelopes to the local hub until ctx is cancelled.
func (r *Relay) Start(ctx context.Context) {
	pubsub := r.rdb.Subscribe(ctx, relayChannel)
	defer func() { _ = pubsub.Close() }()

	ch := pubsub.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			r.handleMessage(msg.Payload)
		case <-ctx.Done():
			return
		}
	}
}

func (r *Relay) handleMessage(payload string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		slog.Warn("Dropping malformed relay message", "error", err)
		return
	}
	if msg.ChannelID == uuid.Nil || msg.Event == "" || len(msg.Message) == 0 {
		slog.Warn("Dropping incomplete relay message", "channel_id", msg.ChannelID.String(), "event", msg.Event)
		return
	}

	r.count("in")
	r.local.Broadcast(msg.ChannelID, msg.Event, msg.Message)
}

func (r *Relay) count(direction string) {
	if r.metrics != nil {
		r.metrics.RelayMessages.WithLabelValues(direction).Inc()
	}
}

var _ domain.EventPublisher = (*Relay)(nil)
