package httpserver

import (
	"errors"
	"net/http"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	apperrors "github.com/KimuSoft/twitch-point-timer/internal/platform/errors"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func (s *Server) registerOverlayRoutes(rateLimiter echo.MiddlewareFunc) {
	s.echo.GET("/overlay/:key", s.handleOverlaySource)
	s.echo.GET("/view/:key", s.handleView)
	s.echo.POST("/addTime", s.handleAddTime, rateLimiter)

	if s.websocketHandler != nil {
		s.echo.GET("/ws", echo.WrapHandler(s.websocketHandler))
	}
	if s.renderHandler != nil {
		s.echo.GET("/ws/render", echo.WrapHandler(s.renderHandler))
	}
}

func parseOverlayKey(raw string) (uuid.UUID, error) {
	key, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.ValidationError("invalid channel key").WithField("channel_key", raw)
	}
	return key, nil
}

func (s *Server) handleOverlaySource(c echo.Context) error {
	key, err := parseOverlayKey(c.Param("key"))
	if err != nil {
		return err
	}

	code, err := s.app.GetOverlaySource(c.Request().Context(), key)
	if errors.Is(err, domain.ErrStreamerNotFound) {
		return apperrors.NotFoundError("overlay not found").WithField("channel_key", key.String())
	}
	if err != nil {
		return apperrors.InternalError("failed to load overlay", err).WithField("channel_key", key.String())
	}
	return writeJSON(c, http.StatusOK, map[string]string{"overlayCode": code})
}

func (s *Server) handleView(c echo.Context) error {
	key, err := parseOverlayKey(c.Param("key"))
	if err != nil {
		return err
	}

	if _, err := s.app.GetStreamerByOverlayKey(c.Request().Context(), key); err != nil {
		if errors.Is(err, domain.ErrStreamerNotFound) {
			return apperrors.NotFoundError("overlay not found").WithField("channel_key", key.String())
		}
		return apperrors.InternalError("failed to load overlay", err).WithField("channel_key", key.String())
	}

	return s.renderTemplate(c, "view.html", map[string]any{"ChannelKey": key.String()})
}

type addTimeRequest struct {
	RewardID   string `json:"rewardId" validate:"required"`
	Seconds    *int   `json:"seconds" validate:"required,min=-604800,max=604800"`
	ChannelKey string `json:"channelKey" validate:"required,uuid"`
}

// handleAddTime extends a reward on behalf of anyone holding the channel key.
func (s *Server) handleAddTime(c echo.Context) error {
	var req addTimeRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	key, err := parseOverlayKey(req.ChannelKey)
	if err != nil {
		return err
	}

	err = s.timers.AddTime(c.Request().Context(), key, req.RewardID, *req.Seconds)
	switch {
	case errors.Is(err, domain.ErrStreamerNotFound):
		return apperrors.UnauthorizedError("unknown channel key")
	case errors.Is(err, domain.ErrRewardNotFound):
		return apperrors.NotFoundError("reward not found").WithField("reward_id", req.RewardID)
	case errors.Is(err, domain.ErrSecondsOutOfRange):
		return apperrors.ValidationError("seconds out of range").WithField("seconds", *req.Seconds)
	case err != nil:
		return apperrors.InternalError("failed to add time", err).WithField("reward_id", req.RewardID)
	}
	return writeJSON(c, http.StatusOK, map[string]int{"ok": 1})
}
