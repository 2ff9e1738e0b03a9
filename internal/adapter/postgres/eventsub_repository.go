package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const eventSubColumns = `streamer_id, broadcaster_user_id, subscription_id, conduit_id, created_at`

type EventSubRepo struct {
	pool *pgxpool.Pool
}

func NewEventSubRepo(pool *pgxpool.Pool) *EventSubRepo {
	return &EventSubRepo{pool: pool}
}

func scanEventSub(row pgx.Row) (*domain.EventSubSubscription, error) {
	var s domain.EventSubSubscription
	if err := row.Scan(&s.StreamerID, &s.BroadcasterUserID, &s.SubscriptionID, &s.ConduitID, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// Create records a subscription. An existing row for the streamer is replaced.
func (r *EventSubRepo) Create(ctx context.Context, streamerID uuid.UUID, broadcasterUserID, subscriptionID, conduitID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO eventsub_subscriptions (streamer_id, broadcaster_user_id, subscription_id, conduit_id)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (streamer_id) DO UPDATE SET
			broadcaster_user_id = EXCLUDED.broadcaster_user_id,
			subscription_id = EXCLUDED.subscription_id,
			conduit_id = EXCLUDED.conduit_id,
			created_at = now()`,
		streamerID, broadcasterUserID, subscriptionID, conduitID)
	if err != nil {
		return fmt.Errorf("failed to create EventSub subscription: %w", err)
	}
	return nil
}

func (r *EventSubRepo) GetByStreamerID(ctx context.Context, streamerID uuid.UUID) (*domain.EventSubSubscription, error) {
	sub, err := scanEventSub(r.pool.QueryRow(ctx,
		`SELECT `+eventSubColumns+` FROM eventsub_subscriptions WHERE streamer_id = $1`, streamerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrSubscriptionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get EventSub subscription by streamer ID: %w", err)
	}
	return sub, nil
}

func (r *EventSubRepo) Delete(ctx context.Context, streamerID uuid.UUID) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM eventsub_subscriptions WHERE streamer_id = $1`, streamerID); err != nil {
		return fmt.Errorf("failed to delete EventSub subscription by streamer ID: %w", err)
	}
	return nil
}

func (r *EventSubRepo) DeleteByConduitID(ctx context.Context, conduitID string) error {
	if _, err := r.pool.Exec(ctx, `DELETE FROM eventsub_subscriptions WHERE conduit_id = $1`, conduitID); err != nil {
		return fmt.Errorf("failed to delete EventSub subscriptions by conduit ID: %w", err)
	}
	return nil
}

func (r *EventSubRepo) List(ctx context.Context) ([]domain.EventSubSubscription, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+eventSubColumns+` FROM eventsub_subscriptions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to list EventSub subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.EventSubSubscription
	for rows.Next() {
		sub, err := scanEventSub(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan EventSub subscription: %w", err)
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

var _ domain.EventSubRepository = (*EventSubRepo)(nil)
