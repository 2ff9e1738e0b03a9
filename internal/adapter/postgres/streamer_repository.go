package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/platform/crypto"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// streamerColumns must match the Scan order in scanStreamer.
const streamerColumns = `id, overlay_key, twitch_user_id, twitch_username, overlay_code, access_token, refresh_token, token_expiry, created_at, updated_at`

// StreamerRepo implements domain.StreamerRepository. Tokens are encrypted at rest.
type StreamerRepo struct {
	pool   *pgxpool.Pool
	crypto crypto.Service
}

func NewStreamerRepo(pool *pgxpool.Pool, cryptoSvc crypto.Service) *StreamerRepo {
	return &StreamerRepo{pool: pool, crypto: cryptoSvc}
}

func (r *StreamerRepo) scanStreamer(row pgx.Row) (*domain.Streamer, error) {
	var s domain.Streamer
	err := row.Scan(&s.ID, &s.OverlayKey, &s.TwitchUserID, &s.TwitchUsername, &s.OverlayCode,
		&s.AccessToken, &s.RefreshToken, &s.TokenExpiry, &s.CreatedAt, &s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrStreamerNotFound
	}
	if err != nil {
		return nil, err
	}

	if s.AccessToken, err = r.crypto.Decrypt(s.AccessToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt access token: %w", err)
	}
	if s.RefreshToken, err = r.crypto.Decrypt(s.RefreshToken); err != nil {
		return nil, fmt.Errorf("failed to decrypt refresh token: %w", err)
	}
	return &s, nil
}

func (r *StreamerRepo) getBy(ctx context.Context, column string, value any) (*domain.Streamer, error) {
	query := `SELECT ` + streamerColumns + ` FROM streamers WHERE ` + column + ` = $1`
	s, err := r.scanStreamer(r.pool.QueryRow(ctx, query, value))
	if err != nil && !errors.Is(err, domain.ErrStreamerNotFound) {
		return nil, fmt.Errorf("failed to get streamer by %s: %w", column, err)
	}
	return s, err
}

func (r *StreamerRepo) GetByID(ctx context.Context, streamerID uuid.UUID) (*domain.Streamer, error) {
	return r.getBy(ctx, "id", streamerID)
}

func (r *StreamerRepo) GetByOverlayKey(ctx context.Context, overlayKey uuid.UUID) (*domain.Streamer, error) {
	return r.getBy(ctx, "overlay_key", overlayKey)
}

func (r *StreamerRepo) GetByTwitchUserID(ctx context.Context, twitchUserID string) (*domain.Streamer, error) {
	return r.getBy(ctx, "twitch_user_id", twitchUserID)
}

func (r *StreamerRepo) Upsert(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.Streamer, error) {
	encAccess, encRefresh, err := r.encryptTokens(accessToken, refreshToken)
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO streamers (twitch_user_id, twitch_username, access_token, refresh_token, token_expiry)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (twitch_user_id) DO UPDATE SET
			twitch_username = EXCLUDED.twitch_username,
			access_token = EXCLUDED.access_token,
			refresh_token = EXCLUDED.refresh_token,
			token_expiry = EXCLUDED.token_expiry,
			updated_at = now()
		RETURNING ` + streamerColumns

	s, err := r.scanStreamer(r.pool.QueryRow(ctx, query, twitchUserID, twitchUsername, encAccess, encRefresh, tokenExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to upsert streamer: %w", err)
	}
	return s, nil
}

func (r *StreamerRepo) UpdateTokens(ctx context.Context, streamerID uuid.UUID, accessToken, refreshToken string, tokenExpiry time.Time) error {
	encAccess, encRefresh, err := r.encryptTokens(accessToken, refreshToken)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE streamers SET access_token = $2, refresh_token = $3, token_expiry = $4, updated_at = now() WHERE id = $1`,
		streamerID, encAccess, encRefresh, tokenExpiry)
	if err != nil {
		return fmt.Errorf("failed to update tokens: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamerNotFound
	}
	return nil
}

func (r *StreamerRepo) UpdateOverlayCode(ctx context.Context, streamerID uuid.UUID, code string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE streamers SET overlay_code = $2, updated_at = now() WHERE id = $1`, streamerID, code)
	if err != nil {
		return fmt.Errorf("failed to update overlay code: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStreamerNotFound
	}
	return nil
}

func (r *StreamerRepo) RotateOverlayKey(ctx context.Context, streamerID uuid.UUID) (uuid.UUID, error) {
	var newKey uuid.UUID
	err := r.pool.QueryRow(ctx,
		`UPDATE streamers SET overlay_key = gen_random_uuid(), updated_at = now() WHERE id = $1 RETURNING overlay_key`,
		streamerID).Scan(&newKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, domain.ErrStreamerNotFound
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to rotate overlay key: %w", err)
	}
	return newKey, nil
}

func (r *StreamerRepo) List(ctx context.Context) ([]domain.Streamer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+streamerColumns+` FROM streamers ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list streamers: %w", err)
	}
	defer rows.Close()

	var streamers []domain.Streamer
	for rows.Next() {
		s, err := r.scanStreamer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan streamer: %w", err)
		}
		streamers = append(streamers, *s)
	}
	return streamers, rows.Err()
}

// GetSourceByKey reads only the overlay source. It backs the source cache.
func (r *StreamerRepo) GetSourceByKey(ctx context.Context, overlayKey uuid.UUID) (string, error) {
	var code string
	err := r.pool.QueryRow(ctx, `SELECT overlay_code FROM streamers WHERE overlay_key = $1`, overlayKey).Scan(&code)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", domain.ErrStreamerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get overlay source: %w", err)
	}
	return code, nil
}

func (r *StreamerRepo) encryptTokens(accessToken, refreshToken string) (string, string, error) {
	encAccess, err := r.crypto.Encrypt(accessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	encRefresh, err := r.crypto.Encrypt(refreshToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt refresh token: %w", err)
	}
	return encAccess, encRefresh, nil
}

var (
	_ domain.StreamerRepository = (*StreamerRepo)(nil)
	_ domain.OverlaySource      = (*StreamerRepo)(nil)
)
