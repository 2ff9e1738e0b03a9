package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
)

// --- Mock implementations ---

type published struct {
	ownerID  uuid.UUID
	snapshot domain.TimerSnapshot
	code     string
}

type mockPublisher struct {
	mu        sync.Mutex
	snapshots []published
	sources   []published
	err       error
}

func (m *mockPublisher) PublishSnapshot(_ context.Context, ownerID uuid.UUID, snapshot domain.TimerSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots = append(m.snapshots, published{ownerID: ownerID, snapshot: snapshot})
	return m.err
}

func (m *mockPublisher) PublishSourceChanged(_ context.Context, ownerID uuid.UUID, _ uuid.UUID, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sources = append(m.sources, published{ownerID: ownerID, code: code})
	return m.err
}

func (m *mockPublisher) lastSnapshot() published {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snapshots) == 0 {
		return published{}
	}
	return m.snapshots[len(m.snapshots)-1]
}

func (m *mockPublisher) snapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

type mockDeduper struct {
	firstDeliveryFn func(ctx context.Context, redemptionID string) (bool, error)
}

func (m *mockDeduper) FirstDelivery(ctx context.Context, redemptionID string) (bool, error) {
	if m.firstDeliveryFn != nil {
		return m.firstDeliveryFn(ctx, redemptionID)
	}
	return true, nil
}

// seenOnce reports true the first time it sees an id.
func seenOnce() *mockDeduper {
	var mu sync.Mutex
	seen := map[string]bool{}
	return &mockDeduper{firstDeliveryFn: func(_ context.Context, id string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		if seen[id] {
			return false, nil
		}
		seen[id] = true
		return true, nil
	}}
}

type mockEventSub struct {
	subscribeFn   func(ctx context.Context, streamerID uuid.UUID, broadcasterUserID string) error
	unsubscribeFn func(ctx context.Context, streamerID uuid.UUID) error
}

func (m *mockEventSub) Subscribe(ctx context.Context, streamerID uuid.UUID, broadcasterUserID string) error {
	if m.subscribeFn != nil {
		return m.subscribeFn(ctx, streamerID, broadcasterUserID)
	}
	return nil
}

func (m *mockEventSub) Unsubscribe(ctx context.Context, streamerID uuid.UUID) error {
	if m.unsubscribeFn != nil {
		return m.unsubscribeFn(ctx, streamerID)
	}
	return nil
}

type mockInvalidator struct {
	mu   sync.Mutex
	keys []uuid.UUID
}

func (m *mockInvalidator) InvalidateCache(_ context.Context, overlayKey uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = append(m.keys, overlayKey)
	return nil
}

type mockRewardLister struct {
	listCustomRewardsFn func(ctx context.Context, streamer *domain.Streamer) ([]domain.TwitchReward, error)
}

func (m *mockRewardLister) ListCustomRewards(ctx context.Context, streamer *domain.Streamer) ([]domain.TwitchReward, error) {
	if m.listCustomRewardsFn != nil {
		return m.listCustomRewardsFn(ctx, streamer)
	}
	return nil, fmt.Errorf("not implemented")
}

type mockSubscriptionRepo struct {
	listFn func(ctx context.Context) ([]domain.EventSubSubscription, error)
}

func (m *mockSubscriptionRepo) Create(context.Context, uuid.UUID, string, string, string) error {
	return nil
}

func (m *mockSubscriptionRepo) GetByStreamerID(context.Context, uuid.UUID) (*domain.EventSubSubscription, error) {
	return nil, domain.ErrSubscriptionNotFound
}

func (m *mockSubscriptionRepo) Delete(context.Context, uuid.UUID) error {
	return nil
}

func (m *mockSubscriptionRepo) DeleteByConduitID(context.Context, string) error {
	return nil
}

func (m *mockSubscriptionRepo) List(ctx context.Context) ([]domain.EventSubSubscription, error) {
	if m.listFn != nil {
		return m.listFn(ctx)
	}
	return nil, nil
}

type mockLeader struct {
	acquired bool
	released bool
}

func (m *mockLeader) TryAcquire(context.Context) (bool, error) {
	return m.acquired, nil
}

func (m *mockLeader) Renew(context.Context) error {
	return nil
}

func (m *mockLeader) Release(context.Context) error {
	m.released = true
	return nil
}
