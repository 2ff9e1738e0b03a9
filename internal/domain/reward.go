package domain

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RewardTimer is a countdown bound to a channel-point reward. ID is the Twitch reward id.
type RewardTimer struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	DurationSeconds int       `json:"durationSeconds"`
	EndsAt          time.Time `json:"endsAt"`
	OwnerID         uuid.UUID `json:"ownerChannelId"`
}

// MaxAddSeconds bounds one time addition in either direction, and a reward's duration.
const MaxAddSeconds = 7 * 24 * 60 * 60

// TimestampLayout is RFC 3339 in UTC with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

func (r RewardTimer) MarshalJSON() ([]byte, error) {
	type plain RewardTimer
	return json.Marshal(struct {
		plain
		EndsAt string `json:"endsAt"`
	}{plain(r), r.EndsAt.UTC().Format(TimestampLayout)})
}

// TimerSnapshot is a channel's full timer list ordered by ID. It is replaced wholesale, never patched.
type TimerSnapshot []RewardTimer

type RewardRepository interface {
	// ListByOwner returns the owner's rewards ordered by id ascending.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]RewardTimer, error)
	Get(ctx context.Context, ownerID uuid.UUID, rewardID string) (*RewardTimer, error)
	Create(ctx context.Context, reward RewardTimer) error
	Update(ctx context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) (*RewardTimer, error)
	SetEndsAt(ctx context.Context, ownerID uuid.UUID, rewardID string, endsAt time.Time) error
	Delete(ctx context.Context, ownerID uuid.UUID, rewardID string) error
	ListIDs(ctx context.Context, ownerID uuid.UUID) ([]string, error)
}
