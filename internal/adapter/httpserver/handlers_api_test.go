package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleSaveCode(t *testing.T) {
	streamer := &domain.Streamer{ID: uuid.New(), OverlayKey: uuid.New()}

	var gotID uuid.UUID
	var gotCode string
	app := &mockAppService{
		getStreamerByIDFn: existingStreamer(streamer),
		saveOverlayCodeFn: func(_ context.Context, streamerID uuid.UUID, code string) error {
			gotID, gotCode = streamerID, code
			return nil
		},
	}
	srv := newTestServer(t, app, &mockTimerService{})

	rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodPost, "/code", `{"code":"render(<b>hi</b>)"}`))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok":1}`, rec.Body.String())
	assert.Equal(t, streamer.ID, gotID)
	assert.Equal(t, "render(<b>hi</b>)", gotCode)
}

func TestHandleSaveCode_StoreFailure(t *testing.T) {
	streamer := &domain.Streamer{ID: uuid.New(), OverlayKey: uuid.New()}
	app := &mockAppService{
		getStreamerByIDFn: existingStreamer(streamer),
		saveOverlayCodeFn: func(_ context.Context, _ uuid.UUID, _ string) error {
			return errors.New("db down")
		},
	}
	srv := newTestServer(t, app, &mockTimerService{})

	rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodPost, "/code", `{"code":"x"}`))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func decodeFrame(t *testing.T, body []byte) map[string]any {
	t.Helper()
	var frame map[string]any
	require.NoError(t, json.Unmarshal(body, &frame))
	return frame
}

func TestHandlePreview(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	streamer := &domain.Streamer{ID: uuid.New(), OverlayKey: uuid.New()}
	timers := &mockTimerService{
		snapshotFn: func(_ context.Context, ownerID uuid.UUID) (domain.TimerSnapshot, error) {
			return domain.TimerSnapshot{
				{ID: "a", Name: "Hydrate", DurationSeconds: 60, EndsAt: clock.Now().Add(90 * time.Second), OwnerID: ownerID},
				{ID: "b", Name: "Expired", DurationSeconds: 60, EndsAt: clock.Now().Add(-time.Second), OwnerID: ownerID},
			}, nil
		},
	}
	srv := newTestServer(t, &mockAppService{getStreamerByIDFn: existingStreamer(streamer)}, timers, withClock(clock))

	t.Run("renders against live timers", func(t *testing.T) {
		body := `{"code":"render(<p>{useTimerData().map(x => x.name + ' ' + x.remainingTime).join(',')}</p>)"}`
		rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodPost, "/api/preview", body))

		require.Equal(t, http.StatusOK, rec.Code)
		frame := decodeFrame(t, rec.Body.Bytes())
		assert.Equal(t, "<p>Hydrate 01:30</p>", frame["html"])
		assert.NotContains(t, frame, "error")
	})

	t.Run("compile errors come back inline", func(t *testing.T) {
		rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodPost, "/api/preview", `{"code":"render(<p>"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		frame := decodeFrame(t, rec.Body.Bytes())
		errFrame, ok := frame["error"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "compile", errFrame["kind"])
	})

	t.Run("runtime errors come back inline", func(t *testing.T) {
		rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodPost, "/api/preview", `{"code":"throw new Error('nope')"}`))

		require.Equal(t, http.StatusOK, rec.Code)
		frame := decodeFrame(t, rec.Body.Bytes())
		errFrame, ok := frame["error"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "runtime", errFrame["kind"])
	})
}

func TestHandleRotateOverlayKey(t *testing.T) {
	streamer := &domain.Streamer{ID: uuid.New(), OverlayKey: uuid.New()}
	newKey := uuid.New()
	app := &mockAppService{
		getStreamerByIDFn: existingStreamer(streamer),
		rotateOverlayKeyFn: func(_ context.Context, streamerID uuid.UUID) (uuid.UUID, error) {
			require.Equal(t, streamer.ID, streamerID)
			return newKey, nil
		},
	}
	srv := newTestServer(t, app, &mockTimerService{})

	rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodPost, "/api/rotate-overlay-key", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, newKey.String(), resp["new_key"])
	assert.Equal(t, "http://example.com/view/"+newKey.String(), resp["new_url"])
}

func TestHandleRotateOverlayKey_StreamerGone(t *testing.T) {
	streamer := &domain.Streamer{ID: uuid.New(), OverlayKey: uuid.New()}
	app := &mockAppService{
		getStreamerByIDFn: existingStreamer(streamer),
		rotateOverlayKeyFn: func(_ context.Context, _ uuid.UUID) (uuid.UUID, error) {
			return uuid.Nil, domain.ErrStreamerNotFound
		},
	}
	srv := newTestServer(t, app, &mockTimerService{})

	rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodPost, "/api/rotate-overlay-key", ""))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
