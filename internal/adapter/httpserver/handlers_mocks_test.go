package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/adapter/twitch"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/platform/config"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"
)

// --- Mock implementations ---

type mockAppService struct {
	getStreamerByIDFn         func(ctx context.Context, streamerID uuid.UUID) (*domain.Streamer, error)
	getStreamerByOverlayKeyFn func(ctx context.Context, overlayKey uuid.UUID) (*domain.Streamer, error)
	upsertStreamerFn          func(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.Streamer, error)
	getOverlaySourceFn        func(ctx context.Context, overlayKey uuid.UUID) (string, error)
	saveOverlayCodeFn         func(ctx context.Context, streamerID uuid.UUID, code string) error
	rotateOverlayKeyFn        func(ctx context.Context, streamerID uuid.UUID) (uuid.UUID, error)
	listTwitchRewardsFn       func(ctx context.Context, streamerID uuid.UUID, excludeIncluded bool) ([]domain.TwitchReward, error)
}

func (m *mockAppService) GetStreamerByID(ctx context.Context, streamerID uuid.UUID) (*domain.Streamer, error) {
	if m.getStreamerByIDFn != nil {
		return m.getStreamerByIDFn(ctx, streamerID)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) GetStreamerByOverlayKey(ctx context.Context, overlayKey uuid.UUID) (*domain.Streamer, error) {
	if m.getStreamerByOverlayKeyFn != nil {
		return m.getStreamerByOverlayKeyFn(ctx, overlayKey)
	}
	return nil, domain.ErrStreamerNotFound
}

func (m *mockAppService) UpsertStreamer(ctx context.Context, twitchUserID, twitchUsername, accessToken, refreshToken string, tokenExpiry time.Time) (*domain.Streamer, error) {
	if m.upsertStreamerFn != nil {
		return m.upsertStreamerFn(ctx, twitchUserID, twitchUsername, accessToken, refreshToken, tokenExpiry)
	}
	return nil, errors.New("not implemented")
}

func (m *mockAppService) GetOverlaySource(ctx context.Context, overlayKey uuid.UUID) (string, error) {
	if m.getOverlaySourceFn != nil {
		return m.getOverlaySourceFn(ctx, overlayKey)
	}
	return "", domain.ErrStreamerNotFound
}

func (m *mockAppService) SaveOverlayCode(ctx context.Context, streamerID uuid.UUID, code string) error {
	if m.saveOverlayCodeFn != nil {
		return m.saveOverlayCodeFn(ctx, streamerID, code)
	}
	return nil
}

func (m *mockAppService) RotateOverlayKey(ctx context.Context, streamerID uuid.UUID) (uuid.UUID, error) {
	if m.rotateOverlayKeyFn != nil {
		return m.rotateOverlayKeyFn(ctx, streamerID)
	}
	return uuid.New(), nil
}

func (m *mockAppService) ListTwitchRewards(ctx context.Context, streamerID uuid.UUID, excludeIncluded bool) ([]domain.TwitchReward, error) {
	if m.listTwitchRewardsFn != nil {
		return m.listTwitchRewardsFn(ctx, streamerID, excludeIncluded)
	}
	return nil, nil
}

type mockTimerService struct {
	snapshotFn     func(ctx context.Context, ownerID uuid.UUID) (domain.TimerSnapshot, error)
	getRewardFn    func(ctx context.Context, ownerID uuid.UUID, rewardID string) (*domain.RewardTimer, error)
	createRewardFn func(ctx context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) error
	updateRewardFn func(ctx context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) (*domain.RewardTimer, error)
	deleteRewardFn func(ctx context.Context, ownerID uuid.UUID, rewardID string) error
	addTimeFn      func(ctx context.Context, overlayKey uuid.UUID, rewardID string, seconds int) error
	redeemFn       func(ctx context.Context, redemption domain.Redemption) error
}

func (m *mockTimerService) Snapshot(ctx context.Context, ownerID uuid.UUID) (domain.TimerSnapshot, error) {
	if m.snapshotFn != nil {
		return m.snapshotFn(ctx, ownerID)
	}
	return domain.TimerSnapshot{}, nil
}

func (m *mockTimerService) GetReward(ctx context.Context, ownerID uuid.UUID, rewardID string) (*domain.RewardTimer, error) {
	if m.getRewardFn != nil {
		return m.getRewardFn(ctx, ownerID, rewardID)
	}
	return nil, domain.ErrRewardNotFound
}

func (m *mockTimerService) CreateReward(ctx context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) error {
	if m.createRewardFn != nil {
		return m.createRewardFn(ctx, ownerID, rewardID, name, durationSeconds)
	}
	return nil
}

func (m *mockTimerService) UpdateReward(ctx context.Context, ownerID uuid.UUID, rewardID, name string, durationSeconds int) (*domain.RewardTimer, error) {
	if m.updateRewardFn != nil {
		return m.updateRewardFn(ctx, ownerID, rewardID, name, durationSeconds)
	}
	return nil, domain.ErrRewardNotFound
}

func (m *mockTimerService) DeleteReward(ctx context.Context, ownerID uuid.UUID, rewardID string) error {
	if m.deleteRewardFn != nil {
		return m.deleteRewardFn(ctx, ownerID, rewardID)
	}
	return nil
}

func (m *mockTimerService) AddTime(ctx context.Context, overlayKey uuid.UUID, rewardID string, seconds int) error {
	if m.addTimeFn != nil {
		return m.addTimeFn(ctx, overlayKey, rewardID, seconds)
	}
	return nil
}

func (m *mockTimerService) Redeem(ctx context.Context, redemption domain.Redemption) error {
	if m.redeemFn != nil {
		return m.redeemFn(ctx, redemption)
	}
	return nil
}

type mockOAuthClient struct {
	authURL   string
	result    *twitch.OAuthResult
	err       error
	lastState string
}

func (m *mockOAuthClient) AuthorizationURL(state string) (string, error) {
	m.lastState = state
	return m.authURL + "?state=" + state, nil
}

func (m *mockOAuthClient) ExchangeCode(_ context.Context, _ string) (*twitch.OAuthResult, error) {
	return m.result, m.err
}

// --- Test helpers ---

type testServerOption func(*Deps)

func withOAuthClient(oauth oauthClient) testServerOption {
	return func(d *Deps) { d.OAuth = oauth }
}

func withClock(clock clockwork.Clock) testServerOption {
	return func(d *Deps) { d.Clock = clock }
}

func withWebhookHandler(h http.Handler) testServerOption {
	return func(d *Deps) { d.WebhookHandler = h }
}

func withWebsocketHandler(h http.Handler) testServerOption {
	return func(d *Deps) { d.WebsocketHandler = h }
}

func withMetricsHandler(h http.Handler) testServerOption {
	return func(d *Deps) { d.MetricsHandler = h }
}

func withHealthChecks(checks ...HealthCheck) testServerOption {
	return func(d *Deps) { d.HealthChecks = checks }
}

func newTestServer(t *testing.T, app domain.AppService, timers domain.TimerService, opts ...testServerOption) *Server {
	t.Helper()

	deps := Deps{
		App:    app,
		Timers: timers,
		OAuth:  &mockOAuthClient{authURL: "https://id.twitch.tv/oauth2/authorize"},
		Clock:  clockwork.NewFakeClock(),
	}
	for _, opt := range opts {
		opt(&deps)
	}

	cfg := &config.Config{
		AppEnv:        "test",
		SessionSecret: "test-secret-key-32-bytes-long!!!",
		SessionMaxAge: time.Hour,
	}
	srv, err := NewServer(cfg, deps)
	require.NoError(t, err)
	return srv
}

// callHandler wraps a handler with error middleware, matching production behavior
func callHandler(handler echo.HandlerFunc, c echo.Context) error {
	return ErrorHandlingMiddleware()(handler)(c)
}

// sessionCookies returns cookies for a session logged in as userID.
func sessionCookies(t *testing.T, srv *Server, userID uuid.UUID) []*http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	session, err := srv.sessionStore.Get(req, sessionName)
	require.NoError(t, err)
	session.Values[sessionKeyStreamer] = userID.String()
	require.NoError(t, session.Save(req, rec))
	return rec.Result().Cookies()
}

// csrfCookie fetches /me to obtain a CSRF cookie for userID's session.
func csrfCookie(t *testing.T, srv *Server, session []*http.Cookie) *http.Cookie {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	for _, c := range session {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	for _, c := range rec.Result().Cookies() {
		if c.Name == csrfTokenCookieName {
			return c
		}
	}
	t.Fatal("CSRF cookie should be set")
	return nil
}

// authedRequest builds a JSON request carrying the session and CSRF token.
func authedRequest(t *testing.T, srv *Server, userID uuid.UUID, method, target, body string) *http.Request {
	t.Helper()
	session := sessionCookies(t, srv, userID)
	csrf := csrfCookie(t, srv, session)

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set("X-CSRF-Token", csrf.Value)
	req.AddCookie(csrf)
	for _, c := range session {
		req.AddCookie(c)
	}
	return req
}

func serve(srv *Server, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func existingStreamer(streamer *domain.Streamer) func(context.Context, uuid.UUID) (*domain.Streamer, error) {
	return func(_ context.Context, id uuid.UUID) (*domain.Streamer, error) {
		if id == streamer.ID {
			return streamer, nil
		}
		return nil, domain.ErrStreamerNotFound
	}
}

const csrfTokenCookieName = "csrf_token"
