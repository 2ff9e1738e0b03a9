package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Streamer owns a set of reward timers and one overlay source.
// OverlayKey is the public channel key used by overlay and controller clients.
type Streamer struct {
	ID         uuid.UUID
	OverlayKey uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time

	TwitchUserID   string
	TwitchUsername string

	// OverlayCode is empty until the owner saves a source.
	OverlayCode string

	// Tokens are stored encrypted; repositories decrypt on read.
	AccessToken  string
	RefreshToken string
	TokenExpiry  time.Time
}

type StreamerRepository interface {
	GetByID(ctx context.Context, streamerID uuid.UUID) (*Streamer, error)
	GetByOverlayKey(ctx context.Context, overlayKey uuid.UUID) (*Streamer, error)
	GetByTwitchUserID(ctx context.Context, twitchUserID string) (*Streamer, error)
	Upsert(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*Streamer, error)
	UpdateTokens(ctx context.Context, streamerID uuid.UUID, accessToken, refreshToken string, tokenExpiry time.Time) error
	UpdateOverlayCode(ctx context.Context, streamerID uuid.UUID, code string) error
	RotateOverlayKey(ctx context.Context, streamerID uuid.UUID) (uuid.UUID, error)
	List(ctx context.Context) ([]Streamer, error)
}
