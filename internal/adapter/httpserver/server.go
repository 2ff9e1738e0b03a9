package httpserver

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/adapter/metrics"
	"github.com/KimuSoft/twitch-point-timer/internal/adapter/twitch"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/platform/config"
	"github.com/KimuSoft/twitch-point-timer/web"
	"github.com/gorilla/sessions"
	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
)

type oauthClient interface {
	AuthorizationURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) (*twitch.OAuthResult, error)
}

// Deps are the collaborators the HTTP layer routes to. Nil handlers leave their route unregistered.
type Deps struct {
	App    domain.AppService
	Timers domain.TimerService
	OAuth  oauthClient
	Clock  clockwork.Clock

	WebsocketHandler http.Handler
	RenderHandler    http.Handler
	WebhookHandler   http.Handler
	MetricsHandler   http.Handler
	HTTPMetrics      *metrics.HTTPMetrics

	HealthChecks []HealthCheck
}

type Server struct {
	echo   *echo.Echo
	config *config.Config
	clock  clockwork.Clock

	app    domain.AppService
	timers domain.TimerService
	oauth  oauthClient

	websocketHandler http.Handler
	renderHandler    http.Handler
	webhookHandler   http.Handler
	metricsHandler   http.Handler
	httpMetrics      *metrics.HTTPMetrics

	templates    *template.Template
	sessionStore *sessions.CookieStore
	healthChecks []HealthCheck
	startTime    time.Time
}

func NewServer(cfg *config.Config, deps Deps) (*Server, error) {
	templates, err := template.ParseFS(web.TemplateFiles, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	clock := deps.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	srv := &Server{
		echo:             e,
		config:           cfg,
		clock:            clock,
		app:              deps.App,
		timers:           deps.Timers,
		oauth:            deps.OAuth,
		websocketHandler: deps.WebsocketHandler,
		renderHandler:    deps.RenderHandler,
		webhookHandler:   deps.WebhookHandler,
		metricsHandler:   deps.MetricsHandler,
		httpMetrics:      deps.HTTPMetrics,
		sessionStore:     setupSessionStore(cfg),
		templates:        templates,
		healthChecks:     deps.HealthChecks,
		startTime:        clock.Now(),
	}

	srv.registerRoutes()

	return srv, nil
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	if err := s.echo.Start(":" + s.config.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}
	return nil
}

// Session keys
const (
	sessionName          = "point-timer-session"
	sessionKeyStreamer   = "streamer_id"
	sessionKeyOAuthState = "oauth_state"
)

func (s *Server) renderTemplate(c echo.Context, name string, data any) error {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		slog.Error("Template execution failed", "path", c.Request().URL.Path, "error", err)
		if err := c.String(http.StatusInternalServerError, "Failed to render page"); err != nil {
			return fmt.Errorf("failed to send error response: %w", err)
		}
		return nil
	}
	if err := c.HTMLBlob(http.StatusOK, buf.Bytes()); err != nil {
		return fmt.Errorf("failed to send HTML response: %w", err)
	}
	return nil
}

func (s *Server) getBaseURL(c echo.Context) string {
	scheme := "http"
	if c.Request().TLS != nil {
		scheme = "https"
	}
	if fwdProto := c.Request().Header.Get("X-Forwarded-Proto"); fwdProto == "http" || fwdProto == "https" {
		scheme = fwdProto
	}
	return fmt.Sprintf("%s://%s", scheme, c.Request().Host)
}

func setupSessionStore(cfg *config.Config) *sessions.CookieStore {
	sessionStore := sessions.NewCookieStore([]byte(cfg.SessionSecret))
	sessionStore.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   int(cfg.SessionMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   cfg.AppEnv == "production",
		SameSite: http.SameSiteLaxMode,
	}
	return sessionStore
}

func writeJSON(c echo.Context, status int, body any) error {
	if err := c.JSON(status, body); err != nil {
		return fmt.Errorf("failed to send JSON response: %w", err)
	}
	return nil
}
