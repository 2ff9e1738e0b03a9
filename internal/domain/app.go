package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AppService handles streamers, overlay sources and key rotation. Handlers route through here.
type AppService interface {
	GetStreamerByID(ctx context.Context, streamerID uuid.UUID) (*Streamer, error)
	GetStreamerByOverlayKey(ctx context.Context, overlayKey uuid.UUID) (*Streamer, error)
	UpsertStreamer(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*Streamer, error)
	GetOverlaySource(ctx context.Context, overlayKey uuid.UUID) (string, error)
	SaveOverlayCode(ctx context.Context, streamerID uuid.UUID, code string) error
	RotateOverlayKey(ctx context.Context, streamerID uuid.UUID) (uuid.UUID, error)
	ListTwitchRewards(ctx context.Context, streamerID uuid.UUID, excludeIncluded bool) ([]TwitchReward, error)
}

// TimerService owns the authoritative reward timers. Every mutation publishes a fresh snapshot.
type TimerService interface {
	Snapshot(ctx context.Context, ownerID uuid.UUID) (TimerSnapshot, error)
	GetReward(ctx context.Context, ownerID uuid.UUID, rewardID string) (*RewardTimer, error)
	CreateReward(ctx context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) error
	UpdateReward(ctx context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) (*RewardTimer, error)
	DeleteReward(ctx context.Context, ownerID uuid.UUID, rewardID string) error
	AddTime(ctx context.Context, overlayKey uuid.UUID, rewardID string, seconds int) error
	Redeem(ctx context.Context, redemption Redemption) error
}
