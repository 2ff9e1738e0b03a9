package eventpublisher

import (
	"context"
	"log/slog"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
)

// EventPublisher implements domain.EventPublisher by relaying through Redis to
// every instance. When the relay fails it publishes to this instance's hub only.
type EventPublisher struct {
	relay domain.EventPublisher
	local domain.EventPublisher
}

func New(relay, local domain.EventPublisher) *EventPublisher {
	return &EventPublisher{relay: relay, local: local}
}

func (ep *EventPublisher) PublishSnapshot(ctx context.Context, ownerID uuid.UUID, snapshot domain.TimerSnapshot) error {
	err := ep.relay.PublishSnapshot(ctx, ownerID, snapshot)
	if err == nil {
		return nil
	}
	slog.WarnContext(ctx, "Relay unavailable, publishing snapshot locally", "channel_id", ownerID.String(), "error", err)
	return ep.local.PublishSnapshot(ctx, ownerID, snapshot)
}

func (ep *EventPublisher) PublishSourceChanged(ctx context.Context, ownerID uuid.UUID, overlayKey uuid.UUID, code string) error {
	err := ep.relay.PublishSourceChanged(ctx, ownerID, overlayKey, code)
	if err == nil {
		return nil
	}
	slog.WarnContext(ctx, "Relay unavailable, publishing source change locally", "channel_id", ownerID.String(), "error", err)
	return ep.local.PublishSourceChanged(ctx, ownerID, overlayKey, code)
}

var _ domain.EventPublisher = (*EventPublisher)(nil)
