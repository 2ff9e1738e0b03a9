package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
)

// Service is the application layer for streamers and overlay sources.
type Service struct {
	streamers   domain.StreamerRepository
	rewards     domain.RewardRepository
	sources     domain.OverlaySource
	invalidator domain.SourceCacheInvalidator
	publisher   domain.EventPublisher
	eventsub    domain.EventSubService
	twitch      domain.RewardLister
}

// NewService creates the application layer service.
// eventsub may be nil if webhooks are not configured.
func NewService(streamers domain.StreamerRepository, rewards domain.RewardRepository, sources domain.OverlaySource, invalidator domain.SourceCacheInvalidator, publisher domain.EventPublisher, eventsub domain.EventSubService, twitch domain.RewardLister) *Service {
	return &Service{
		streamers:   streamers,
		rewards:     rewards,
		sources:     sources,
		invalidator: invalidator,
		publisher:   publisher,
		eventsub:    eventsub,
		twitch:      twitch,
	}
}

func (s *Service) GetStreamerByID(ctx context.Context, streamerID uuid.UUID) (*domain.Streamer, error) {
	return s.streamers.GetByID(ctx, streamerID)
}

func (s *Service) GetStreamerByOverlayKey(ctx context.Context, overlayKey uuid.UUID) (*domain.Streamer, error) {
	return s.streamers.GetByOverlayKey(ctx, overlayKey)
}

// UpsertStreamer stores the login and subscribes to redemptions. A failed
// subscription is logged and retried by the reconciler; the login still succeeds.
func (s *Service) UpsertStreamer(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.Streamer, error) {
	streamer, err := s.streamers.Upsert(ctx, twitchUserID, twitchUsername, accessToken, refreshToken, tokenExpiry)
	if err != nil {
		return nil, err
	}

	if s.eventsub != nil {
		if err := s.eventsub.Subscribe(ctx, streamer.ID, streamer.TwitchUserID); err != nil {
			slog.ErrorContext(ctx, "Failed to subscribe to redemptions", "streamer_id", streamer.ID.String(), "error", err)
		}
	}
	return streamer, nil
}

// GetOverlaySource returns the owner's source, or the default template.
func (s *Service) GetOverlaySource(ctx context.Context, overlayKey uuid.UUID) (string, error) {
	code, err := s.sources.GetSourceByKey(ctx, overlayKey)
	if err != nil {
		return "", err
	}
	return domain.SourceOrDefault(code), nil
}

// SaveOverlayCode persists the source, drops cached copies on every instance
// and tells live viewers to rebuild.
func (s *Service) SaveOverlayCode(ctx context.Context, streamerID uuid.UUID, code string) error {
	streamer, err := s.streamers.GetByID(ctx, streamerID)
	if err != nil {
		return err
	}

	if err := s.streamers.UpdateOverlayCode(ctx, streamerID, code); err != nil {
		return err
	}

	if err := s.invalidator.InvalidateCache(ctx, streamer.OverlayKey); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate source cache", "streamer_id", streamerID.String(), "error", err)
	}
	if err := s.publisher.PublishSourceChanged(ctx, streamerID, streamer.OverlayKey, domain.SourceOrDefault(code)); err != nil {
		slog.ErrorContext(ctx, "Failed to publish source change", "streamer_id", streamerID.String(), "error", err)
	}
	return nil
}

// RotateOverlayKey issues a new channel key. Viewers already connected with the old key stay joined.
func (s *Service) RotateOverlayKey(ctx context.Context, streamerID uuid.UUID) (uuid.UUID, error) {
	streamer, err := s.streamers.GetByID(ctx, streamerID)
	if err != nil {
		return uuid.Nil, err
	}

	newKey, err := s.streamers.RotateOverlayKey(ctx, streamerID)
	if err != nil {
		return uuid.Nil, err
	}

	if err := s.invalidator.InvalidateCache(ctx, streamer.OverlayKey); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate source cache", "streamer_id", streamerID.String(), "error", err)
	}
	return newKey, nil
}

// ListTwitchRewards lists the streamer's custom rewards on Twitch, optionally
// without those already registered as timers.
func (s *Service) ListTwitchRewards(ctx context.Context, streamerID uuid.UUID, excludeIncluded bool) ([]domain.TwitchReward, error) {
	streamer, err := s.streamers.GetByID(ctx, streamerID)
	if err != nil {
		return nil, err
	}

	rewards, err := s.twitch.ListCustomRewards(ctx, streamer)
	if err != nil {
		return nil, fmt.Errorf("list twitch rewards: %w", err)
	}
	if !excludeIncluded {
		return rewards, nil
	}

	included, err := s.rewards.ListIDs(ctx, streamerID)
	if err != nil {
		return nil, fmt.Errorf("list registered rewards: %w", err)
	}

	return slices.DeleteFunc(rewards, func(r domain.TwitchReward) bool {
		return slices.Contains(included, r.ID)
	}), nil
}

var _ domain.AppService = (*Service)(nil)
