package domain

import (
	"context"

	"github.com/google/uuid"
)

// EventPublisher fans domain changes out to connected viewers on every instance.
type EventPublisher interface {
	PublishSnapshot(ctx context.Context, ownerID uuid.UUID, snapshot TimerSnapshot) error
	PublishSourceChanged(ctx context.Context, ownerID uuid.UUID, overlayKey uuid.UUID, code string) error
}
