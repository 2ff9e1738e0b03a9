package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

type StreamerRepository struct {
	mu        sync.RWMutex
	clock     clockwork.Clock
	streamers map[uuid.UUID]*domain.Streamer
}

func NewStreamerRepository(clock clockwork.Clock) *StreamerRepository {
	return &StreamerRepository{clock: clock, streamers: make(map[uuid.UUID]*domain.Streamer)}
}

func (r *StreamerRepository) find(match func(*domain.Streamer) bool) (*domain.Streamer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.streamers {
		if match(s) {
			copied := *s
			return &copied, nil
		}
	}
	return nil, domain.ErrStreamerNotFound
}

func (r *StreamerRepository) GetByID(_ context.Context, streamerID uuid.UUID) (*domain.Streamer, error) {
	return r.find(func(s *domain.Streamer) bool { return s.ID == streamerID })
}

func (r *StreamerRepository) GetByOverlayKey(_ context.Context, overlayKey uuid.UUID) (*domain.Streamer, error) {
	return r.find(func(s *domain.Streamer) bool { return s.OverlayKey == overlayKey })
}

func (r *StreamerRepository) GetByTwitchUserID(_ context.Context, twitchUserID string) (*domain.Streamer, error) {
	return r.find(func(s *domain.Streamer) bool { return s.TwitchUserID == twitchUserID })
}

func (r *StreamerRepository) Upsert(_ context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.Streamer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	for _, s := range r.streamers {
		if s.TwitchUserID == twitchUserID {
			s.TwitchUsername = twitchUsername
			s.AccessToken = accessToken
			s.RefreshToken = refreshToken
			s.TokenExpiry = tokenExpiry
			s.UpdatedAt = now
			copied := *s
			return &copied, nil
		}
	}

	s := &domain.Streamer{
		ID:             uuid.New(),
		OverlayKey:     uuid.New(),
		CreatedAt:      now,
		UpdatedAt:      now,
		TwitchUserID:   twitchUserID,
		TwitchUsername: twitchUsername,
		AccessToken:    accessToken,
		RefreshToken:   refreshToken,
		TokenExpiry:    tokenExpiry,
	}
	r.streamers[s.ID] = s
	copied := *s
	return &copied, nil
}

func (r *StreamerRepository) update(streamerID uuid.UUID, fn func(*domain.Streamer)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.streamers[streamerID]
	if !ok {
		return domain.ErrStreamerNotFound
	}
	fn(s)
	s.UpdatedAt = r.clock.Now()
	return nil
}

func (r *StreamerRepository) UpdateTokens(_ context.Context, streamerID uuid.UUID, accessToken, refreshToken string, tokenExpiry time.Time) error {
	return r.update(streamerID, func(s *domain.Streamer) {
		s.AccessToken = accessToken
		s.RefreshToken = refreshToken
		s.TokenExpiry = tokenExpiry
	})
}

func (r *StreamerRepository) UpdateOverlayCode(_ context.Context, streamerID uuid.UUID, code string) error {
	return r.update(streamerID, func(s *domain.Streamer) { s.OverlayCode = code })
}

func (r *StreamerRepository) RotateOverlayKey(_ context.Context, streamerID uuid.UUID) (uuid.UUID, error) {
	newKey := uuid.New()
	err := r.update(streamerID, func(s *domain.Streamer) { s.OverlayKey = newKey })
	if err != nil {
		return uuid.Nil, err
	}
	return newKey, nil
}

func (r *StreamerRepository) List(_ context.Context) ([]domain.Streamer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Streamer, 0, len(r.streamers))
	for _, s := range r.streamers {
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b domain.Streamer) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return out, nil
}

// GetSourceByKey serves overlay sources straight from the map.
func (r *StreamerRepository) GetSourceByKey(ctx context.Context, overlayKey uuid.UUID) (string, error) {
	s, err := r.GetByOverlayKey(ctx, overlayKey)
	if err != nil {
		return "", err
	}
	return s.OverlayCode, nil
}

var (
	_ domain.StreamerRepository = (*StreamerRepository)(nil)
	_ domain.OverlaySource      = (*StreamerRepository)(nil)
)
