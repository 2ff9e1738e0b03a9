package app_test

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/adapter/memory"
	"github.com/KimuSoft/twitch-point-timer/internal/adapter/websocket"
	"github.com/KimuSoft/twitch-point-timer/internal/app"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	ws "github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noDedupe struct{}

func (noDedupe) FirstDelivery(context.Context, string) (bool, error) { return true, nil }

func readSnapshot(t *testing.T, conn *ws.Conn) domain.TimerSnapshot {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var env domain.Envelope
	require.NoError(t, json.Unmarshal(msg, &env))
	require.Equal(t, domain.EventUpdateData, env.Event)

	snapshot, err := domain.DecodeSnapshot(env.Data)
	require.NoError(t, err)
	return snapshot
}

func TestAddTimeReachesEveryViewer(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)

	streamers := memory.NewStreamerRepository(clock)
	rewards := memory.NewRewardRepository()
	hub := websocket.NewHub(clockwork.NewRealClock(), 10, nil)
	t.Cleanup(hub.Stop)

	timers := app.NewTimers(rewards, streamers, hub, noDedupe{}, clock, nil)

	streamer, err := streamers.Upsert(ctx, "1001", "alice", "at", "rt", now)
	require.NoError(t, err)
	require.NoError(t, rewards.Create(ctx, domain.RewardTimer{
		ID: "r1", Name: "Hydrate", DurationSeconds: 60, EndsAt: now.Add(-time.Hour), OwnerID: streamer.ID,
	}))

	server := httptest.NewServer(websocket.NewHandler(hub, streamers, timers, websocket.NewOriginPolicy("", false)))
	t.Cleanup(server.Close)

	var viewers []*ws.Conn
	for range 2 {
		url := "ws" + strings.TrimPrefix(server.URL, "http") + "?channelKey=" + streamer.OverlayKey.String()
		conn, _, err := ws.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		t.Cleanup(func() { conn.Close() })

		initial := readSnapshot(t, conn)
		require.Len(t, initial, 1)
		assert.True(t, now.Add(-time.Hour).Equal(initial[0].EndsAt))
		viewers = append(viewers, conn)
	}

	require.Eventually(t, func() bool { return hub.ClientCount(streamer.ID) == 2 }, time.Second, time.Millisecond)

	require.NoError(t, timers.AddTime(ctx, streamer.OverlayKey, "r1", 30))

	for _, conn := range viewers {
		snapshot := readSnapshot(t, conn)
		require.Len(t, snapshot, 1)
		assert.True(t, now.Add(30*time.Second).Equal(snapshot[0].EndsAt), "got %v", snapshot[0].EndsAt)
	}
}
