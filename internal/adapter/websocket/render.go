package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/adapter/metrics"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/overlay"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
)

// RenderHandler serves GET /ws/render?channelKey=<key>. The server runs the
// overlay for the viewer and streams painted frames instead of raw snapshots.
type RenderHandler struct {
	upgrader *websocket.Upgrader
	hub      *Hub
	channels ChannelResolver
	sources  domain.OverlaySource
	timers   SnapshotReader
	clock    clockwork.Clock
	metrics  *metrics.SandboxMetrics
}

func NewRenderHandler(hub *Hub, channels ChannelResolver, sources domain.OverlaySource, timers SnapshotReader, clock clockwork.Clock, policy OriginPolicy, sandboxMetrics *metrics.SandboxMetrics) *RenderHandler {
	return &RenderHandler{
		upgrader: policy.Upgrader(),
		hub:      hub,
		channels: channels,
		sources:  sources,
		timers:   timers,
		clock:    clock,
		metrics:  sandboxMetrics,
	}
}

func (h *RenderHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	rawKey := r.URL.Query().Get("channelKey")
	owner, err := resolveChannel(r.Context(), h.channels, rawKey)
	if err != nil {
		rejectJoin(conn, err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	emit := func(f overlay.Frame) error {
		_ = conn.SetWriteDeadline(h.clock.Now().Add(writeDeadline))
		return conn.WriteJSON(f)
	}
	if err := emit(overlay.StatusFrame(overlay.StatusConnecting)); err != nil {
		return
	}

	source, err := h.sources.GetSourceByKey(ctx, owner.OverlayKey)
	if err != nil {
		slog.Error("Failed to load overlay source", "channel_id", owner.ID.String(), "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}

	sub, err := h.hub.Subscribe(owner.ID)
	if err != nil {
		slog.Error("Failed to subscribe render session", "channel_id", owner.ID.String(), "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	defer h.hub.Unsubscribe(sub)

	// Subscribed before loading, so no broadcast after this read is missed.
	snapshot, err := h.timers.Snapshot(ctx, owner.ID)
	if err != nil {
		slog.Error("Failed to load snapshot for render session", "channel_id", owner.ID.String(), "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}

	session := overlay.NewSession(owner.ID, domain.SourceOrDefault(source), h.clock, overlay.WithMetrics(h.metrics))
	session.Seed(snapshot)

	go func() {
		defer cancel()
		conn.SetReadLimit(maxInboundMessageSize)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	// Hub shutdown and slow-consumer eviction both close the subscription.
	err = session.Run(ctx, sub.Messages(), emit)
	switch {
	case errors.Is(err, overlay.ErrFeedLost):
		slog.Info("Render session dropped by hub", "channel_id", owner.ID.String(), "reason", sub.Reason())
		closeWith(conn, websocket.CloseTryAgainLater, sub.Reason())
	case err != nil:
		slog.Debug("Render session ended", "channel_id", owner.ID.String(), "error", err)
	default:
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	}
}
