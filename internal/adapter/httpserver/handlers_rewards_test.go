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
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rewardTestServer(t *testing.T, timers *mockTimerService, app *mockAppService) (*Server, *domain.Streamer) {
	t.Helper()
	streamer := &domain.Streamer{ID: uuid.New(), OverlayKey: uuid.New()}
	if app == nil {
		app = &mockAppService{}
	}
	app.getStreamerByIDFn = existingStreamer(streamer)
	return newTestServer(t, app, timers), streamer
}

func TestHandleListRewards(t *testing.T) {
	endsAt := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	var gotOwner uuid.UUID
	timers := &mockTimerService{
		snapshotFn: func(_ context.Context, ownerID uuid.UUID) (domain.TimerSnapshot, error) {
			gotOwner = ownerID
			return domain.TimerSnapshot{
				{ID: "a", Name: "Hydrate", DurationSeconds: 60, EndsAt: endsAt, OwnerID: ownerID},
				{ID: "b", Name: "Stretch", DurationSeconds: 30, EndsAt: endsAt, OwnerID: ownerID},
			}, nil
		},
	}
	srv, streamer := rewardTestServer(t, timers, nil)

	rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodGet, "/rewards", ""))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, streamer.ID, gotOwner)

	var body []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body, 2)
	assert.Equal(t, "a", body[0]["id"])
	assert.Equal(t, "2026-03-01T12:00:00.000Z", body[0]["endsAt"])
	assert.Equal(t, streamer.ID.String(), body[0]["ownerChannelId"])
}

func TestHandleGetReward(t *testing.T) {
	timers := &mockTimerService{
		getRewardFn: func(_ context.Context, ownerID uuid.UUID, rewardID string) (*domain.RewardTimer, error) {
			if rewardID == "a" {
				return &domain.RewardTimer{ID: "a", Name: "Hydrate", OwnerID: ownerID}, nil
			}
			return nil, domain.ErrRewardNotFound
		},
	}
	srv, streamer := rewardTestServer(t, timers, nil)

	t.Run("found", func(t *testing.T) {
		rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodGet, "/rewards/a", ""))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"name":"Hydrate"`)
	})

	t.Run("missing", func(t *testing.T) {
		rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodGet, "/rewards/zzz", ""))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestHandleCreateReward(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		createErr  error
		wantStatus int
		wantBody   string
	}{
		{"created", `{"rewardId":"r1","name":"Hydrate","durationSeconds":60}`, nil, http.StatusOK, `{"ok":1}`},
		{"duplicate", `{"rewardId":"r1","name":"Hydrate","durationSeconds":60}`, domain.ErrRewardExists, http.StatusBadRequest, "reward already exists"},
		{"missing reward id", `{"name":"Hydrate","durationSeconds":60}`, nil, http.StatusBadRequest, "invalid request"},
		{"duration above a week", `{"rewardId":"r1","name":"Hydrate","durationSeconds":604801}`, nil, http.StatusBadRequest, "invalid request"},
		{"negative duration", `{"rewardId":"r1","name":"Hydrate","durationSeconds":-1}`, nil, http.StatusBadRequest, "invalid request"},
		{"malformed body", `{"rewardId":`, nil, http.StatusBadRequest, "invalid request body"},
		{"store failure", `{"rewardId":"r1","name":"Hydrate","durationSeconds":60}`, errors.New("boom"), http.StatusInternalServerError, "failed to create reward"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got struct {
				rewardID, name string
				duration       int
			}
			timers := &mockTimerService{
				createRewardFn: func(_ context.Context, _ uuid.UUID, rewardID, name string, durationSeconds int) error {
					got.rewardID, got.name, got.duration = rewardID, name, durationSeconds
					return tt.createErr
				},
			}
			srv, streamer := rewardTestServer(t, timers, nil)

			rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodPost, "/rewards", tt.body))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "r1", got.rewardID)
				assert.Equal(t, "Hydrate", got.name)
				assert.Equal(t, 60, got.duration)
			}
		})
	}
}

func TestHandleUpdateReward(t *testing.T) {
	timers := &mockTimerService{
		updateRewardFn: func(_ context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) (*domain.RewardTimer, error) {
			if rewardID != "a" {
				return nil, domain.ErrRewardNotFound
			}
			return &domain.RewardTimer{ID: rewardID, Name: name, DurationSeconds: durationSeconds, OwnerID: ownerID}, nil
		},
	}
	srv, streamer := rewardTestServer(t, timers, nil)

	t.Run("updated", func(t *testing.T) {
		rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodPatch, "/rewards/a", `{"name":"Water","durationSeconds":90}`))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), `"name":"Water"`)
		assert.Contains(t, rec.Body.String(), `"durationSeconds":90`)
	})

	t.Run("missing", func(t *testing.T) {
		rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodPatch, "/rewards/b", `{"name":"Water","durationSeconds":90}`))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid", func(t *testing.T) {
		rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodPatch, "/rewards/a", `{"durationSeconds":90}`))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandleDeleteReward(t *testing.T) {
	var deleted []string
	timers := &mockTimerService{
		deleteRewardFn: func(_ context.Context, _ uuid.UUID, rewardID string) error {
			if rewardID != "a" {
				return domain.ErrRewardNotFound
			}
			deleted = append(deleted, rewardID)
			return nil
		},
	}
	srv, streamer := rewardTestServer(t, timers, nil)

	rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodDelete, "/rewards/a", ""))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"a"}, deleted)

	rec = serve(srv, authedRequest(t, srv, streamer.ID, http.MethodDelete, "/rewards/b", ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListTwitchRewards(t *testing.T) {
	tests := []struct {
		query       string
		wantExclude bool
	}{
		{"", false},
		{"?excludeIncluded=1", true},
		{"?excludeIncluded=true", true},
		{"?excludeIncluded=0", false},
	}

	for _, tt := range tests {
		t.Run("query "+tt.query, func(t *testing.T) {
			var gotExclude bool
			app := &mockAppService{
				listTwitchRewardsFn: func(_ context.Context, _ uuid.UUID, excludeIncluded bool) ([]domain.TwitchReward, error) {
					gotExclude = excludeIncluded
					return []domain.TwitchReward{{ID: "r1", Name: "Hydrate"}}, nil
				},
			}
			srv, streamer := rewardTestServer(t, &mockTimerService{}, app)

			rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodGet, "/twitch/rewards"+tt.query, ""))

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.JSONEq(t, `[{"id":"r1","name":"Hydrate"}]`, rec.Body.String())
			assert.Equal(t, tt.wantExclude, gotExclude)
		})
	}
}

func TestHandleListTwitchRewards_TwitchFailure(t *testing.T) {
	app := &mockAppService{
		listTwitchRewardsFn: func(_ context.Context, _ uuid.UUID, _ bool) ([]domain.TwitchReward, error) {
			return nil, errors.New("token revoked")
		},
	}
	srv, streamer := rewardTestServer(t, &mockTimerService{}, app)

	rec := serve(srv, authedRequest(t, srv, streamer.ID, http.MethodGet, "/twitch/rewards", ""))

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.NotContains(t, rec.Body.String(), "token revoked")
}
