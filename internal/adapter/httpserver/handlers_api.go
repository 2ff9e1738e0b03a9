package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/overlay"
	apperrors "github.com/KimuSoft/twitch-point-timer/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

func (s *Server) registerAPIRoutes(csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	s.echo.POST("/code", s.handleSaveCode, rateLimiter, s.requireAuth, csrfMiddleware)
	s.echo.POST("/api/preview", s.handlePreview, rateLimiter, s.requireAuth, csrfMiddleware)
	s.echo.POST("/api/rotate-overlay-key", s.handleRotateOverlayKey, rateLimiter, s.requireAuth, csrfMiddleware)
}

type codeRequest struct {
	Code string `json:"code" validate:"max=65536"`
}

func (s *Server) handleSaveCode(c echo.Context) error {
	streamerID, err := sessionUserID(c)
	if err != nil {
		return err
	}

	var req codeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err = s.app.SaveOverlayCode(c.Request().Context(), streamerID, req.Code)
	if errors.Is(err, domain.ErrStreamerNotFound) {
		return apperrors.NotFoundError("streamer not found").WithField("streamer_id", streamerID.String())
	}
	if err != nil {
		return apperrors.InternalError("failed to save overlay code", err).WithField("streamer_id", streamerID.String())
	}
	return writeJSON(c, http.StatusOK, map[string]int{"ok": 1})
}

// handlePreview renders the submitted source against the owner's live timers.
// Render failures come back as a 200 error frame.
func (s *Server) handlePreview(c echo.Context) error {
	streamerID, err := sessionUserID(c)
	if err != nil {
		return err
	}

	var req codeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	snapshot, err := s.timers.Snapshot(c.Request().Context(), streamerID)
	if err != nil {
		return apperrors.InternalError("failed to load timers", err).WithField("streamer_id", streamerID.String())
	}

	frame := overlay.Preview(req.Code, snapshot, s.clock.Now())
	return writeJSON(c, http.StatusOK, frame)
}

func (s *Server) handleRotateOverlayKey(c echo.Context) error {
	streamerID, err := sessionUserID(c)
	if err != nil {
		return err
	}

	newKey, err := s.app.RotateOverlayKey(c.Request().Context(), streamerID)
	if errors.Is(err, domain.ErrStreamerNotFound) {
		return apperrors.NotFoundError("streamer not found").WithField("streamer_id", streamerID.String())
	}
	if err != nil {
		return apperrors.InternalError("failed to rotate overlay key", err).WithField("streamer_id", streamerID.String())
	}

	return writeJSON(c, http.StatusOK, map[string]string{
		"status":  "ok",
		"new_key": newKey.String(),
		"new_url": fmt.Sprintf("%s/view/%s", s.getBaseURL(c), newKey),
	})
}
