package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
)

type rewardKey struct {
	owner uuid.UUID
	id    string
}

type RewardRepository struct {
	mu      sync.RWMutex
	rewards map[rewardKey]domain.RewardTimer
}

func NewRewardRepository() *RewardRepository {
	return &RewardRepository{rewards: make(map[rewardKey]domain.RewardTimer)}
}

func (r *RewardRepository) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]domain.RewardTimer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.RewardTimer
	for k, v := range r.rewards {
		if k.owner == ownerID {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b domain.RewardTimer) int { return strings.Compare(a.ID, b.ID) })
	return out, nil
}

func (r *RewardRepository) Get(_ context.Context, ownerID uuid.UUID, rewardID string) (*domain.RewardTimer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	reward, ok := r.rewards[rewardKey{ownerID, rewardID}]
	if !ok {
		return nil, domain.ErrRewardNotFound
	}
	return &reward, nil
}

func (r *RewardRepository) Create(_ context.Context, reward domain.RewardTimer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rewardKey{reward.OwnerID, reward.ID}
	if _, ok := r.rewards[key]; ok {
		return domain.ErrRewardExists
	}
	r.rewards[key] = reward
	return nil
}

func (r *RewardRepository) Update(_ context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) (*domain.RewardTimer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rewardKey{ownerID, rewardID}
	reward, ok := r.rewards[key]
	if !ok {
		return nil, domain.ErrRewardNotFound
	}
	reward.Name = name
	reward.DurationSeconds = durationSeconds
	r.rewards[key] = reward
	return &reward, nil
}

func (r *RewardRepository) SetEndsAt(_ context.Context, ownerID uuid.UUID, rewardID string, endsAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rewardKey{ownerID, rewardID}
	reward, ok := r.rewards[key]
	if !ok {
		return domain.ErrRewardNotFound
	}
	reward.EndsAt = endsAt
	r.rewards[key] = reward
	return nil
}

func (r *RewardRepository) Delete(_ context.Context, ownerID uuid.UUID, rewardID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rewardKey{ownerID, rewardID}
	if _, ok := r.rewards[key]; !ok {
		return domain.ErrRewardNotFound
	}
	delete(r.rewards, key)
	return nil
}

func (r *RewardRepository) ListIDs(ctx context.Context, ownerID uuid.UUID) ([]string, error) {
	rewards, err := r.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rewards))
	for _, reward := range rewards {
		ids = append(ids, reward.ID)
	}
	return ids, nil
}

var _ domain.RewardRepository = (*RewardRepository)(nil)
