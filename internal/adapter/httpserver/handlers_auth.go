package httpserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	apperrors "github.com/KimuSoft/twitch-point-timer/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

const oauthTimeout = 10 * time.Second

func (s *Server) registerAuthRoutes(csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/auth/login", s.handleLogin, rateLimiter)
	s.echo.GET("/auth/callback", s.handleOAuthCallback, rateLimiter)
	s.echo.POST("/auth/logout", s.handleLogout, rateLimiter, s.requireAuth, csrfMiddleware)
	s.echo.GET("/authorized", s.handleAuthorized)
	s.echo.GET("/me", s.handleMe, s.requireAuth, csrfMiddleware)
}

func (s *Server) handleLanding(c echo.Context) error {
	data := map[string]any{"LoggedIn": false}

	if streamer, ok := s.sessionStreamer(c); ok {
		data["LoggedIn"] = true
		data["Username"] = streamer.TwitchUsername
		data["ChannelKey"] = streamer.OverlayKey.String()
		data["ViewURL"] = fmt.Sprintf("%s/view/%s", s.getBaseURL(c), streamer.OverlayKey)
		data["CSRFToken"] = csrfToken(c)
	}
	return s.renderTemplate(c, "index.html", data)
}

// requireAuth rejects requests without a session for an existing streamer and
// stores the streamer id under "userID".
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		session, err := s.sessionStore.Get(c.Request(), sessionName)
		if err != nil {
			return apperrors.UnauthorizedError("not logged in")
		}

		userIDStr, ok := session.Values[sessionKeyStreamer].(string)
		if !ok {
			return apperrors.UnauthorizedError("not logged in")
		}

		userUUID, err := uuid.Parse(userIDStr)
		if err != nil {
			return apperrors.UnauthorizedError("not logged in")
		}

		// The streamer may have been deleted since the session was issued.
		if _, err := s.app.GetStreamerByID(c.Request().Context(), userUUID); err != nil {
			slog.WarnContext(c.Request().Context(), "Session references unknown streamer, invalidating", "streamer_id", userUUID.String())
			session.Options.MaxAge = -1
			_ = session.Save(c.Request(), c.Response().Writer)
			return apperrors.UnauthorizedError("not logged in")
		}

		c.Set("userID", userUUID)
		return next(c)
	}
}

// sessionStreamer returns the logged-in streamer, if any.
func (s *Server) sessionStreamer(c echo.Context) (*domain.Streamer, bool) {
	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return nil, false
	}
	userIDStr, ok := session.Values[sessionKeyStreamer].(string)
	if !ok {
		return nil, false
	}
	userUUID, err := uuid.Parse(userIDStr)
	if err != nil {
		return nil, false
	}
	streamer, err := s.app.GetStreamerByID(c.Request().Context(), userUUID)
	if err != nil {
		return nil, false
	}
	return streamer, true
}

func sessionUserID(c echo.Context) (uuid.UUID, error) {
	streamerID, ok := c.Get("userID").(uuid.UUID)
	if !ok {
		return uuid.Nil, apperrors.InternalError("invalid streamer ID in context", nil)
	}
	return streamerID, nil
}

func generateOAuthState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate OAuth state: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *Server) handleLogin(c echo.Context) error {
	if _, ok := s.sessionStreamer(c); ok {
		if err := c.Redirect(http.StatusFound, "/"); err != nil {
			return fmt.Errorf("failed to redirect: %w", err)
		}
		return nil
	}

	state, err := generateOAuthState()
	if err != nil {
		return apperrors.InternalError("failed to generate OAuth state", err)
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.ErrorContext(c.Request().Context(), "Failed to get session for OAuth state", "error", err)
	}

	session.Values[sessionKeyOAuthState] = state
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save OAuth state session", err)
	}

	authURL, err := s.oauth.AuthorizationURL(state)
	if err != nil {
		return apperrors.InternalError("failed to build authorization URL", err)
	}

	if err := c.Redirect(http.StatusFound, authURL); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func (s *Server) handleOAuthCallback(c echo.Context) error {
	code := c.QueryParam("code")
	if code == "" {
		return apperrors.ValidationError("missing code parameter")
	}

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		return apperrors.ValidationError("invalid session")
	}

	expectedState, ok := session.Values[sessionKeyOAuthState].(string)
	if !ok || expectedState == "" {
		return apperrors.ValidationError("missing OAuth state")
	}
	if c.QueryParam("state") != expectedState {
		return apperrors.ValidationError("invalid OAuth state")
	}
	delete(session.Values, sessionKeyOAuthState)

	ctx, cancel := context.WithTimeout(c.Request().Context(), oauthTimeout)
	defer cancel()

	result, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return apperrors.ExternalError("failed to authenticate with Twitch", err)
	}

	expiry := s.clock.Now().Add(time.Duration(result.ExpiresIn) * time.Second)
	streamer, err := s.app.UpsertStreamer(ctx, result.UserID, result.Username, result.AccessToken, result.RefreshToken, expiry)
	if err != nil {
		return apperrors.InternalError("failed to save streamer", err).WithField("twitch_user_id", result.UserID)
	}

	// Fresh session id after login against session fixation.
	session.Options.MaxAge = -1
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to invalidate old session", err)
	}

	session, err = s.sessionStore.New(c.Request(), sessionName)
	if err != nil {
		return apperrors.InternalError("failed to create new session", err)
	}

	session.Values[sessionKeyStreamer] = streamer.ID.String()
	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save session", err)
	}

	slog.InfoContext(ctx, "Streamer logged in", "streamer_id", streamer.ID.String(), "broadcaster_id", result.UserID, "twitch_username", result.Username)

	if err := c.Redirect(http.StatusFound, "/"); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func (s *Server) handleLogout(c echo.Context) error {
	ctx := c.Request().Context()
	streamerID, _ := c.Get("userID").(uuid.UUID)

	session, err := s.sessionStore.Get(c.Request(), sessionName)
	if err != nil {
		slog.ErrorContext(ctx, "Failed to get session during logout", "error", err)
		session, err = s.sessionStore.New(c.Request(), sessionName)
		if err != nil {
			return apperrors.InternalError("failed to create new session during logout", err)
		}
	}
	session.Options.MaxAge = -1

	if err := session.Save(c.Request(), c.Response().Writer); err != nil {
		return apperrors.InternalError("failed to save logout session", err)
	}

	slog.InfoContext(ctx, "Streamer logged out", "streamer_id", streamerID.String())

	if err := c.Redirect(http.StatusFound, "/"); err != nil {
		return fmt.Errorf("failed to redirect: %w", err)
	}
	return nil
}

func (s *Server) handleAuthorized(c echo.Context) error {
	_, ok := s.sessionStreamer(c)
	return writeJSON(c, http.StatusOK, ok)
}

type meResponse struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	OverlayCode string `json:"overlayCode"`
	OverlayID   string `json:"overlayId"`
	CSRFToken   string `json:"csrfToken"`
}

func (s *Server) handleMe(c echo.Context) error {
	streamerID, err := sessionUserID(c)
	if err != nil {
		return err
	}

	streamer, err := s.app.GetStreamerByID(c.Request().Context(), streamerID)
	if errors.Is(err, domain.ErrStreamerNotFound) {
		return apperrors.NotFoundError("streamer not found").WithField("streamer_id", streamerID.String())
	}
	if err != nil {
		return apperrors.InternalError("failed to load streamer", err).WithField("streamer_id", streamerID.String())
	}

	return writeJSON(c, http.StatusOK, meResponse{
		ID:          streamer.ID.String(),
		Username:    streamer.TwitchUsername,
		OverlayCode: domain.SourceOrDefault(streamer.OverlayCode),
		OverlayID:   streamer.OverlayKey.String(),
		CSRFToken:   csrfToken(c),
	})
}
