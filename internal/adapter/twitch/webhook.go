package twitch

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Its-donkey/kappopher/helix"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/platform/correlation"
)

const webhookProcessingTimeout = 5 * time.Second

// Redeemer applies a channel-point redemption to the matching reward timer.
type Redeemer interface {
	Redeem(ctx context.Context, redemption domain.Redemption) error
}

// redemptionEvent is the channel_points_custom_reward_redemption.add payload.
type redemptionEvent struct {
	ID                string    `json:"id"`
	BroadcasterUserID string    `json:"broadcaster_user_id"`
	UserLogin         string    `json:"user_login"`
	Status            string    `json:"status"`
	RedeemedAt        time.Time `json:"redeemed_at"`
	Reward            struct {
		ID    string `json:"id"`
		Title string `json:"title"`
		Cost  int    `json:"cost"`
	} `json:"reward"`
}

type WebhookHandler struct {
	handler  *helix.EventSubWebhookHandler
	redeemer Redeemer
}

func NewWebhookHandler(secret string, redeemer Redeemer) *WebhookHandler {
	wh := &WebhookHandler{redeemer: redeemer}

	wh.handler = helix.NewEventSubWebhookHandler(
		helix.WithWebhookSecret(secret),
		helix.WithNotificationHandler(wh.handleNotification),
		helix.WithVerificationHandler(func(msg *helix.EventSubWebhookMessage) bool {
			slog.Info("EventSub webhook verification", "subscription_type", msg.SubscriptionType)
			return true
		}),
		helix.WithRevocationHandler(func(msg *helix.EventSubWebhookMessage) {
			slog.Warn("EventSub subscription revoked", "type", msg.SubscriptionType, "reason", helix.GetRevocationReason(msg.Subscription))
		}),
	)

	return wh
}

func (wh *WebhookHandler) handleNotification(msg *helix.EventSubWebhookMessage) {
	if msg.SubscriptionType != RedemptionSubscriptionType {
		return
	}

	event, err := helix.ParseEventSubEvent[redemptionEvent](msg)
	if err != nil {
		slog.Error("Failed to parse redemption event", "error", err)
		return
	}
	if event.ID == "" || event.Reward.ID == "" {
		slog.Warn("Dropping redemption without id", "broadcaster", event.BroadcasterUserID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), webhookProcessingTimeout)
	defer cancel()
	ctx = correlation.WithID(ctx, correlation.NewID())

	redemption := domain.Redemption{
		ID:                event.ID,
		BroadcasterUserID: event.BroadcasterUserID,
		RewardID:          event.Reward.ID,
		RewardTitle:       event.Reward.Title,
		UserLogin:         event.UserLogin,
		RedeemedAt:        event.RedeemedAt,
	}

	err = wh.redeemer.Redeem(ctx, redemption)
	if errors.Is(err, context.DeadlineExceeded) {
		slog.WarnContext(ctx, "Redeem timed out", "broadcaster", event.BroadcasterUserID, "timeout", webhookProcessingTimeout)
		return
	}
	if err != nil {
		slog.ErrorContext(ctx, "Redeem failed", "broadcaster", event.BroadcasterUserID, "reward_id", event.Reward.ID, "error", err)
		return
	}

	slog.InfoContext(ctx, "Redemption received", "broadcaster", event.BroadcasterUserID, "reward", event.Reward.Title, "user", event.UserLogin)
}

func (wh *WebhookHandler) HandleEventSub(w http.ResponseWriter, r *http.Request) {
	wh.handler.ServeHTTP(w, r)
}
