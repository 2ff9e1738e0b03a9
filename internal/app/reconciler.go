package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/platform/correlation"
	"github.com/jonboulle/clockwork"
)

const defaultReconcileInterval = 5 * time.Minute

// LeaderLock elects one instance to run cluster-wide jobs.
type LeaderLock interface {
	TryAcquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) error
	Release(ctx context.Context) error
}

// SubscriptionReconciler periodically subscribes every stored streamer that has
// no EventSub subscription yet. It runs at startup and then on every interval,
// on the leader instance only.
type SubscriptionReconciler struct {
	streamers     domain.StreamerRepository
	subscriptions domain.EventSubRepository
	eventsub      domain.EventSubService
	leader        LeaderLock
	interval      time.Duration
	clock         clockwork.Clock
	stopCh        chan struct{}
}

func NewSubscriptionReconciler(
	streamers domain.StreamerRepository,
	subscriptions domain.EventSubRepository,
	eventsub domain.EventSubService,
	leader LeaderLock,
	clock clockwork.Clock,
) *SubscriptionReconciler {
	return &SubscriptionReconciler{
		streamers:     streamers,
		subscriptions: subscriptions,
		eventsub:      eventsub,
		leader:        leader,
		interval:      defaultReconcileInterval,
		clock:         clock,
		stopCh:        make(chan struct{}),
	}
}

// Start runs the reconciliation loop until Stop is called or ctx is cancelled.
func (r *SubscriptionReconciler) Start(ctx context.Context) {
	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	leading := false
	defer func() {
		if leading {
			if err := r.leader.Release(context.Background()); err != nil {
				slog.Warn("Failed to release reconciler leadership", "error", err)
			}
		}
	}()

	run := func() {
		leading = r.ensureLeadership(ctx, leading)
		if !leading {
			return
		}
		runCtx := correlation.WithID(ctx, correlation.NewID())
		if err := r.reconcile(runCtx); err != nil {
			slog.ErrorContext(runCtx, "Subscription reconciliation failed", "error", err)
		}
	}

	run()
	for {
		select {
		case <-ticker.Chan():
			run()
		case <-r.stopCh:
			slog.Info("Subscription reconciler stopped")
			return
		case <-ctx.Done():
			slog.Info("Subscription reconciler context cancelled")
			return
		}
	}
}

// Stop gracefully stops the reconciliation loop.
func (r *SubscriptionReconciler) Stop() {
	close(r.stopCh)
}

func (r *SubscriptionReconciler) ensureLeadership(ctx context.Context, leading bool) bool {
	if leading {
		if err := r.leader.Renew(ctx); err != nil {
			slog.Warn("Lost reconciler leadership", "error", err)
			return false
		}
		return true
	}

	acquired, err := r.leader.TryAcquire(ctx)
	if err != nil {
		slog.Warn("Failed to acquire reconciler leadership", "error", err)
		return false
	}
	return acquired
}

func (r *SubscriptionReconciler) reconcile(ctx context.Context) error {
	streamers, err := r.streamers.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list streamers: %w", err)
	}

	subs, err := r.subscriptions.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list subscriptions: %w", err)
	}
	subscribed := make(map[string]struct{}, len(subs))
	for _, sub := range subs {
		subscribed[sub.StreamerID.String()] = struct{}{}
	}

	created := 0
	for _, streamer := range streamers {
		if _, ok := subscribed[streamer.ID.String()]; ok {
			continue
		}
		if err := r.eventsub.Subscribe(ctx, streamer.ID, streamer.TwitchUserID); err != nil {
			slog.WarnContext(ctx, "Failed to subscribe streamer during reconciliation",
				"streamer_id", streamer.ID.String(),
				"error", err)
			continue
		}
		created++
	}

	if created > 0 {
		slog.InfoContext(ctx, "Subscription drift fixed", "created", created, "streamers", len(streamers))
	}
	return nil
}
