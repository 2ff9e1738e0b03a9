package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/adapter/metrics"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
)

// Timers is the snapshot store. Mutations are read, compute, write, publish,
// without a transaction: a redemption racing a manual addition on the same
// reward can lose one of the two extensions.
type Timers struct {
	rewards   domain.RewardRepository
	streamers domain.StreamerRepository
	publisher domain.EventPublisher
	deduper   domain.RedemptionDeduper
	clock     clockwork.Clock
	metrics   *metrics.TimerMetrics
}

// NewTimers creates the timer service. timerMetrics may be nil.
func NewTimers(rewards domain.RewardRepository, streamers domain.StreamerRepository, publisher domain.EventPublisher, deduper domain.RedemptionDeduper, clock clockwork.Clock, timerMetrics *metrics.TimerMetrics) *Timers {
	return &Timers{
		rewards:   rewards,
		streamers: streamers,
		publisher: publisher,
		deduper:   deduper,
		clock:     clock,
		metrics:   timerMetrics,
	}
}

// Snapshot returns the owner's timers ordered by id. Never nil.
func (t *Timers) Snapshot(ctx context.Context, ownerID uuid.UUID) (domain.TimerSnapshot, error) {
	rewards, err := t.rewards.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list rewards: %w", err)
	}
	if rewards == nil {
		return domain.TimerSnapshot{}, nil
	}
	return domain.TimerSnapshot(rewards), nil
}

func (t *Timers) GetReward(ctx context.Context, ownerID uuid.UUID, rewardID string) (*domain.RewardTimer, error) {
	return t.rewards.Get(ctx, ownerID, rewardID)
}

// CreateReward registers a reward. New timers start expired.
func (t *Timers) CreateReward(ctx context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) error {
	_, err := t.rewards.Get(ctx, ownerID, rewardID)
	if err == nil {
		return domain.ErrRewardExists
	}
	if !errors.Is(err, domain.ErrRewardNotFound) {
		return err
	}

	reward := domain.RewardTimer{
		ID:              rewardID,
		Name:            name,
		DurationSeconds: durationSeconds,
		EndsAt:          t.clock.Now(),
		OwnerID:         ownerID,
	}
	if err := t.rewards.Create(ctx, reward); err != nil {
		return err
	}

	t.publish(ctx, ownerID)
	return nil
}

func (t *Timers) UpdateReward(ctx context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) (*domain.RewardTimer, error) {
	reward, err := t.rewards.Update(ctx, ownerID, rewardID, name, durationSeconds)
	if err != nil {
		return nil, err
	}

	t.publish(ctx, ownerID)
	return reward, nil
}

func (t *Timers) DeleteReward(ctx context.Context, ownerID uuid.UUID, rewardID string) error {
	if err := t.rewards.Delete(ctx, ownerID, rewardID); err != nil {
		return err
	}

	t.publish(ctx, ownerID)
	return nil
}

// AddTime extends a reward of the channel identified by overlayKey.
// Returns ErrStreamerNotFound for unknown keys and ErrRewardNotFound for rewards of other owners.
func (t *Timers) AddTime(ctx context.Context, overlayKey uuid.UUID, rewardID string, seconds int) error {
	streamer, err := t.streamers.GetByOverlayKey(ctx, overlayKey)
	if err != nil {
		return err
	}

	reward, err := t.rewards.Get(ctx, streamer.ID, rewardID)
	if err != nil {
		return err
	}

	return t.extend(ctx, reward, seconds, "manual")
}

// Redeem applies a redemption once per redemption id. Redemptions for unknown
// broadcasters or unregistered rewards are ignored.
func (t *Timers) Redeem(ctx context.Context, r domain.Redemption) error {
	first, err := t.deduper.FirstDelivery(ctx, r.ID)
	if err != nil {
		// Fail open.
		slog.WarnContext(ctx, "Redemption dedupe check failed, applying", "redemption_id", r.ID, "error", err)
	} else if !first {
		t.countRedemption("duplicate")
		return nil
	}

	streamer, err := t.streamers.GetByTwitchUserID(ctx, r.BroadcasterUserID)
	if errors.Is(err, domain.ErrStreamerNotFound) {
		t.countRedemption("unknown_streamer")
		return nil
	}
	if err != nil {
		return fmt.Errorf("streamer lookup failed: %w", err)
	}

	reward, err := t.rewards.Get(ctx, streamer.ID, r.RewardID)
	if errors.Is(err, domain.ErrRewardNotFound) {
		slog.DebugContext(ctx, "Ignoring redemption for unregistered reward", "broadcaster", r.BroadcasterUserID, "reward_id", r.RewardID)
		t.countRedemption("unknown_reward")
		return nil
	}
	if err != nil {
		return fmt.Errorf("reward lookup failed: %w", err)
	}

	if err := t.extend(ctx, reward, reward.DurationSeconds, "redemption"); err != nil {
		return err
	}

	slog.InfoContext(ctx, "Redemption applied", "broadcaster", r.BroadcasterUserID, "reward_id", reward.ID, "seconds", reward.DurationSeconds, "user", r.UserLogin)
	t.countRedemption("applied")
	return nil
}

// extend sets endsAt = max(endsAt, now) + seconds and publishes.
func (t *Timers) extend(ctx context.Context, reward *domain.RewardTimer, seconds int, source string) error {
	if seconds > domain.MaxAddSeconds || seconds < -domain.MaxAddSeconds {
		return fmt.Errorf("extend by %d: %w", seconds, domain.ErrSecondsOutOfRange)
	}

	endsAt := reward.EndsAt
	if now := t.clock.Now(); endsAt.Before(now) {
		endsAt = now
	}
	endsAt = endsAt.Add(time.Duration(seconds) * time.Second)

	if err := t.rewards.SetEndsAt(ctx, reward.OwnerID, reward.ID, endsAt); err != nil {
		return fmt.Errorf("set endsAt: %w", err)
	}
	if t.metrics != nil {
		t.metrics.SecondsAdded.WithLabelValues(source).Add(float64(seconds))
	}

	t.publish(ctx, reward.OwnerID)
	return nil
}

// publish is best effort; the mutation is already stored.
func (t *Timers) publish(ctx context.Context, ownerID uuid.UUID) {
	snapshot, err := t.Snapshot(ctx, ownerID)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to load snapshot for publish", "channel_id", ownerID.String(), "error", err)
		return
	}
	if err := t.publisher.PublishSnapshot(ctx, ownerID, snapshot); err != nil {
		slog.ErrorContext(ctx, "Failed to publish snapshot", "channel_id", ownerID.String(), "error", err)
	}
}

func (t *Timers) countRedemption(result string) {
	if t.metrics != nil {
		t.metrics.Redemptions.WithLabelValues(result).Inc()
	}
}

var _ domain.TimerService = (*Timers)(nil)
