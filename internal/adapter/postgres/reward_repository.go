package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	rewardColumns = `id, name, duration_seconds, ends_at, owner_id`

	uniqueViolation = "23505"
)

type RewardRepo struct {
	pool *pgxpool.Pool
}

func NewRewardRepo(pool *pgxpool.Pool) *RewardRepo {
	return &RewardRepo{pool: pool}
}

func scanReward(row pgx.Row) (*domain.RewardTimer, error) {
	var r domain.RewardTimer
	err := row.Scan(&r.ID, &r.Name, &r.DurationSeconds, &r.EndsAt, &r.OwnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrRewardNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *RewardRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]domain.RewardTimer, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+rewardColumns+` FROM rewards WHERE owner_id = $1 ORDER BY id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}
	defer rows.Close()

	rewards := []domain.RewardTimer{}
	for rows.Next() {
		reward, err := scanReward(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reward: %w", err)
		}
		rewards = append(rewards, *reward)
	}
	return rewards, rows.Err()
}

func (r *RewardRepo) Get(ctx context.Context, ownerID uuid.UUID, rewardID string) (*domain.RewardTimer, error) {
	reward, err := scanReward(r.pool.QueryRow(ctx,
		`SELECT `+rewardColumns+` FROM rewards WHERE owner_id = $1 AND id = $2`, ownerID, rewardID))
	if err != nil && !errors.Is(err, domain.ErrRewardNotFound) {
		return nil, fmt.Errorf("failed to get reward: %w", err)
	}
	return reward, err
}

func (r *RewardRepo) Create(ctx context.Context, reward domain.RewardTimer) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO rewards (id, name, duration_seconds, ends_at, owner_id) VALUES ($1, $2, $3, $4, $5)`,
		reward.ID, reward.Name, reward.DurationSeconds, reward.EndsAt, reward.OwnerID)
	if pgErr, ok := errors.AsType[*pgconn.PgError](err); ok && pgErr.Code == uniqueViolation {
		return domain.ErrRewardExists
	}
	if err != nil {
		return fmt.Errorf("failed to create reward: %w", err)
	}
	return nil
}

func (r *RewardRepo) Update(ctx context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) (*domain.RewardTimer, error) {
	reward, err := scanReward(r.pool.QueryRow(ctx,
		`UPDATE rewards SET name = $3, duration_seconds = $4 WHERE owner_id = $1 AND id = $2 RETURNING `+rewardColumns,
		ownerID, rewardID, name, durationSeconds))
	if err != nil && !errors.Is(err, domain.ErrRewardNotFound) {
		return nil, fmt.Errorf("failed to update reward: %w", err)
	}
	return reward, err
}

func (r *RewardRepo) SetEndsAt(ctx context.Context, ownerID uuid.UUID, rewardID string, endsAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `UPDATE rewards SET ends_at = $3 WHERE owner_id = $1 AND id = $2`, ownerID, rewardID, endsAt)
	if err != nil {
		return fmt.Errorf("failed to set ends_at: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRewardNotFound
	}
	return nil
}

func (r *RewardRepo) Delete(ctx context.Context, ownerID uuid.UUID, rewardID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM rewards WHERE owner_id = $1 AND id = $2`, ownerID, rewardID)
	if err != nil {
		return fmt.Errorf("failed to delete reward: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrRewardNotFound
	}
	return nil
}

func (r *RewardRepo) ListIDs(ctx context.Context, ownerID uuid.UUID) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM rewards WHERE owner_id = $1 ORDER BY id ASC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list reward ids: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to collect reward ids: %w", err)
	}
	return ids, nil
}

var _ domain.RewardRepository = (*RewardRepo)(nil)
