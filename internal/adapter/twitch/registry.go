package twitch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	helixapi "github.com/nicklaw5/helix/v2"
)

// refreshWindow refreshes tokens that expire within this window.
const refreshWindow = 60 * time.Second

// TokenRefreshError reports a failed refresh. Revoked means the streamer has to log in again.
type TokenRefreshError struct {
	Revoked bool
	Err     error
}

func (e *TokenRefreshError) Error() string {
	if e.Revoked {
		return fmt.Sprintf("token revoked: %v", e.Err)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// TokenStore persists refreshed user tokens.
type TokenStore interface {
	UpdateTokens(ctx context.Context, streamerID uuid.UUID, accessToken, refreshToken string, tokenExpiry time.Time) error
}

type ownerTokens struct {
	mu           sync.Mutex
	accessToken  string
	refreshToken string
	expiry       time.Time
}

// ClientRegistry keeps one refreshing set of user tokens per streamer.
// Entries are created on first use and never removed.
type ClientRegistry struct {
	creds  Credentials
	tokens TokenStore
	clock  clockwork.Clock

	mu      sync.Mutex
	entries map[uuid.UUID]*ownerTokens
}

func NewClientRegistry(creds Credentials, tokens TokenStore, clock clockwork.Clock) *ClientRegistry {
	return &ClientRegistry{
		creds:   creds,
		tokens:  tokens,
		clock:   clock,
		entries: make(map[uuid.UUID]*ownerTokens),
	}
}

func (r *ClientRegistry) entry(streamer *domain.Streamer) *ownerTokens {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[streamer.ID]
	if !ok {
		e = &ownerTokens{}
		r.entries[streamer.ID] = e
	}

	e.mu.Lock()
	// A fresh login stores newer tokens than the ones cached here.
	if streamer.TokenExpiry.After(e.expiry) {
		e.accessToken = streamer.AccessToken
		e.refreshToken = streamer.RefreshToken
		e.expiry = streamer.TokenExpiry
	}
	e.mu.Unlock()

	return e
}

// ListCustomRewards lists the streamer's custom channel-point rewards.
func (r *ClientRegistry) ListCustomRewards(ctx context.Context, streamer *domain.Streamer) ([]domain.TwitchReward, error) {
	e := r.entry(streamer)
	e.mu.Lock()
	defer e.mu.Unlock()

	if r.clock.Now().Add(refreshWindow).After(e.expiry) {
		if err := r.refresh(ctx, streamer.ID, e); err != nil {
			return nil, err
		}
	}

	rewards, err := r.getCustomRewards(ctx, e.accessToken, streamer.TwitchUserID)
	if isUnauthorized(err) {
		slog.InfoContext(ctx, "Twitch rejected access token, refreshing", "streamer_id", streamer.ID.String())
		if err := r.refresh(ctx, streamer.ID, e); err != nil {
			return nil, err
		}
		rewards, err = r.getCustomRewards(ctx, e.accessToken, streamer.TwitchUserID)
	}
	return rewards, err
}

func (r *ClientRegistry) getCustomRewards(ctx context.Context, accessToken, broadcasterID string) ([]domain.TwitchReward, error) {
	client, err := r.creds.newClient(ctx, accessToken)
	if err != nil {
		return nil, err
	}

	resp, err := client.GetCustomRewards(&helixapi.GetCustomRewardsParams{BroadcasterID: broadcasterID})
	if err != nil {
		return nil, fmt.Errorf("failed to get custom rewards: %w", err)
	}
	if err := checkResponse(resp.ResponseCommon); err != nil {
		return nil, fmt.Errorf("failed to get custom rewards: %w", err)
	}

	rewards := make([]domain.TwitchReward, 0, len(resp.Data.ChannelCustomRewards))
	for _, reward := range resp.Data.ChannelCustomRewards {
		rewards = append(rewards, domain.TwitchReward{ID: reward.ID, Name: reward.Title})
	}
	return rewards, nil
}

// refresh swaps e's tokens for fresh ones and persists them. Callers hold e.mu.
func (r *ClientRegistry) refresh(ctx context.Context, streamerID uuid.UUID, e *ownerTokens) error {
	client, err := r.creds.newClient(ctx, "")
	if err != nil {
		return &TokenRefreshError{Err: err}
	}

	resp, err := client.RefreshUserAccessToken(e.refreshToken)
	if err != nil {
		return &TokenRefreshError{Err: err}
	}
	if err := checkResponse(resp.ResponseCommon); err != nil {
		revoked := resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnauthorized
		return &TokenRefreshError{Revoked: revoked, Err: err}
	}

	e.accessToken = resp.Data.AccessToken
	if resp.Data.RefreshToken != "" {
		e.refreshToken = resp.Data.RefreshToken
	}
	e.expiry = r.clock.Now().Add(time.Duration(resp.Data.ExpiresIn) * time.Second)

	if err := r.tokens.UpdateTokens(ctx, streamerID, e.accessToken, e.refreshToken, e.expiry); err != nil {
		return fmt.Errorf("failed to persist refreshed tokens: %w", err)
	}

	slog.InfoContext(ctx, "Token refreshed", "streamer_id", streamerID.String())
	return nil
}

var _ domain.RewardLister = (*ClientRegistry)(nil)
