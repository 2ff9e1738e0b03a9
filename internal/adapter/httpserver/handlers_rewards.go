package httpserver

import (
	"errors"
	"net/http"

	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	apperrors "github.com/KimuSoft/twitch-point-timer/internal/platform/errors"
	"github.com/labstack/echo/v4"
)

func (s *Server) registerRewardRoutes(csrfMiddleware, rateLimiter echo.MiddlewareFunc) {
	g := s.echo.Group("/rewards", rateLimiter, s.requireAuth, csrfMiddleware)
	g.GET("", s.handleListRewards)
	g.GET("/:id", s.handleGetReward)
	g.POST("", s.handleCreateReward)
	g.PATCH("/:id", s.handleUpdateReward)
	g.DELETE("/:id", s.handleDeleteReward)

	s.echo.GET("/twitch/rewards", s.handleListTwitchRewards, rateLimiter, s.requireAuth)
}

type createRewardRequest struct {
	RewardID        string `json:"rewardId" validate:"required,max=100"`
	Name            string `json:"name" validate:"required,max=200"`
	DurationSeconds int    `json:"durationSeconds" validate:"gte=0,lte=604800"`
}

type updateRewardRequest struct {
	Name            string `json:"name" validate:"required,max=200"`
	DurationSeconds int    `json:"durationSeconds" validate:"gte=0,lte=604800"`
}

func (s *Server) handleListRewards(c echo.Context) error {
	ownerID, err := sessionUserID(c)
	if err != nil {
		return err
	}

	snapshot, err := s.timers.Snapshot(c.Request().Context(), ownerID)
	if err != nil {
		return apperrors.InternalError("failed to list rewards", err).WithField("streamer_id", ownerID.String())
	}
	return writeJSON(c, http.StatusOK, snapshot)
}

func (s *Server) handleGetReward(c echo.Context) error {
	ownerID, err := sessionUserID(c)
	if err != nil {
		return err
	}

	rewardID := c.Param("id")
	reward, err := s.timers.GetReward(c.Request().Context(), ownerID, rewardID)
	if errors.Is(err, domain.ErrRewardNotFound) {
		return apperrors.NotFoundError("reward not found").WithField("reward_id", rewardID)
	}
	if err != nil {
		return apperrors.InternalError("failed to load reward", err).WithField("reward_id", rewardID)
	}
	return writeJSON(c, http.StatusOK, reward)
}

func (s *Server) handleCreateReward(c echo.Context) error {
	ownerID, err := sessionUserID(c)
	if err != nil {
		return err
	}

	var req createRewardRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	err = s.timers.CreateReward(c.Request().Context(), ownerID, req.RewardID, req.Name, req.DurationSeconds)
	if errors.Is(err, domain.ErrRewardExists) {
		return apperrors.ValidationError("reward already exists").WithField("reward_id", req.RewardID)
	}
	if err != nil {
		return apperrors.InternalError("failed to create reward", err).WithField("reward_id", req.RewardID)
	}
	return writeJSON(c, http.StatusOK, map[string]int{"ok": 1})
}

func (s *Server) handleUpdateReward(c echo.Context) error {
	ownerID, err := sessionUserID(c)
	if err != nil {
		return err
	}

	var req updateRewardRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	rewardID := c.Param("id")
	reward, err := s.timers.UpdateReward(c.Request().Context(), ownerID, rewardID, req.Name, req.DurationSeconds)
	if errors.Is(err, domain.ErrRewardNotFound) {
		return apperrors.NotFoundError("reward not found").WithField("reward_id", rewardID)
	}
	if err != nil {
		return apperrors.InternalError("failed to update reward", err).WithField("reward_id", rewardID)
	}
	return writeJSON(c, http.StatusOK, reward)
}

func (s *Server) handleDeleteReward(c echo.Context) error {
	ownerID, err := sessionUserID(c)
	if err != nil {
		return err
	}

	rewardID := c.Param("id")
	err = s.timers.DeleteReward(c.Request().Context(), ownerID, rewardID)
	if errors.Is(err, domain.ErrRewardNotFound) {
		return apperrors.NotFoundError("reward not found").WithField("reward_id", rewardID)
	}
	if err != nil {
		return apperrors.InternalError("failed to delete reward", err).WithField("reward_id", rewardID)
	}
	return writeJSON(c, http.StatusOK, map[string]int{"ok": 1})
}

func (s *Server) handleListTwitchRewards(c echo.Context) error {
	ownerID, err := sessionUserID(c)
	if err != nil {
		return err
	}

	exclude := c.QueryParam("excludeIncluded")
	excludeIncluded := exclude != "" && exclude != "0" && exclude != "false"

	rewards, err := s.app.ListTwitchRewards(c.Request().Context(), ownerID, excludeIncluded)
	if err != nil {
		return apperrors.ExternalError("failed to list Twitch rewards", err).WithField("streamer_id", ownerID.String())
	}
	return writeJSON(c, http.StatusOK, rewards)
}
