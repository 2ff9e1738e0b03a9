package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventSubSubscription links a streamer to a conduit-based redemption subscription.
type EventSubSubscription struct {
	StreamerID        uuid.UUID
	BroadcasterUserID string
	SubscriptionID    string
	ConduitID         string
	CreatedAt         time.Time
}

// Redemption is a channel-point redemption delivered by EventSub.
// ID is the Twitch redemption id and stays the same across redeliveries.
type Redemption struct {
	ID                string
	BroadcasterUserID string
	RewardID          string
	RewardTitle       string
	UserLogin         string
	RedeemedAt        time.Time
}

// TwitchReward is a custom reward as listed by the Twitch API.
type TwitchReward struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type EventSubService interface {
	Subscribe(ctx context.Context, streamerID uuid.UUID, broadcasterUserID string) error
	Unsubscribe(ctx context.Context, streamerID uuid.UUID) error
}

type EventSubRepository interface {
	Create(ctx context.Context, streamerID uuid.UUID, broadcasterUserID, subscriptionID, conduitID string) error
	GetByStreamerID(ctx context.Context, streamerID uuid.UUID) (*EventSubSubscription, error)
	Delete(ctx context.Context, streamerID uuid.UUID) error
	DeleteByConduitID(ctx context.Context, conduitID string) error
	List(ctx context.Context) ([]EventSubSubscription, error)
}

// RewardLister reads a streamer's custom rewards from Twitch.
type RewardLister interface {
	ListCustomRewards(ctx context.Context, streamer *Streamer) ([]TwitchReward, error)
}
