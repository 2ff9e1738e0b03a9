package websocket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const maxInboundMessageSize = 512

// ChannelResolver maps a channel key onto its owner.
type ChannelResolver interface {
	GetStreamerByOverlayKey(ctx context.Context, overlayKey uuid.UUID) (*domain.Streamer, error)
}

// SnapshotReader loads a channel's current timers.
type SnapshotReader interface {
	Snapshot(ctx context.Context, ownerID uuid.UUID) (domain.TimerSnapshot, error)
}

// Handler serves GET /ws?channelKey=<key>. The connection joins the owner's
// channel group and receives the current snapshot once, then every broadcast.
type Handler struct {
	upgrader *websocket.Upgrader
	hub      *Hub
	channels ChannelResolver
	timers   SnapshotReader
}

func NewHandler(hub *Hub, channels ChannelResolver, timers SnapshotReader, policy OriginPolicy) *Handler {
	return &Handler{upgrader: policy.Upgrader(), hub: hub, channels: channels, timers: timers}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("WebSocket upgrade failed", "error", err)
		return
	}

	ctx := r.Context()

	owner, err := resolveChannel(ctx, h.channels, r.URL.Query().Get("channelKey"))
	if err != nil {
		rejectJoin(conn, err)
		return
	}

	snapshot, err := h.timers.Snapshot(ctx, owner.ID)
	if err != nil {
		slog.Error("Failed to load snapshot for join", "channel_id", owner.ID.String(), "error", err)
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}
	if snapshot == nil {
		snapshot = domain.TimerSnapshot{}
	}
	initial, err := domain.EncodeEnvelope(domain.EventUpdateData, snapshot)
	if err != nil {
		closeWith(conn, websocket.CloseInternalServerErr, "internal error")
		return
	}

	if err := h.hub.Register(owner.ID, conn, initial); err != nil {
		slog.Warn("Failed to register viewer", "channel_id", owner.ID.String(), "error", err)
		closeWith(conn, websocket.CloseTryAgainLater, "channel is full")
		return
	}

	conn.SetReadLimit(maxInboundMessageSize)
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	h.hub.Unregister(owner.ID, conn)
}

// resolveChannel returns ErrStreamerNotFound for malformed keys too.
func resolveChannel(ctx context.Context, channels ChannelResolver, rawKey string) (*domain.Streamer, error) {
	key, err := uuid.Parse(rawKey)
	if err != nil {
		return nil, domain.ErrStreamerNotFound
	}
	return channels.GetStreamerByOverlayKey(ctx, key)
}

func rejectJoin(conn *websocket.Conn, err error) {
	if errors.Is(err, domain.ErrStreamerNotFound) {
		closeWith(conn, websocket.ClosePolicyViolation, "unknown channel key")
		return
	}
	slog.Error("Failed to resolve channel key", "error", err)
	closeWith(conn, websocket.CloseInternalServerErr, "internal error")
}

func closeWith(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeDeadline))
	_ = conn.Close()
}
