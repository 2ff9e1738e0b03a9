package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KimuSoft/twitch-point-timer/internal/adapter/eventpublisher"
	"github.com/KimuSoft/twitch-point-timer/internal/adapter/httpserver"
	"github.com/KimuSoft/twitch-point-timer/internal/adapter/metrics"
	"github.com/KimuSoft/twitch-point-timer/internal/adapter/postgres"
	"github.com/KimuSoft/twitch-point-timer/internal/adapter/redis"
	"github.com/KimuSoft/twitch-point-timer/internal/adapter/twitch"
	"github.com/KimuSoft/twitch-point-timer/internal/adapter/websocket"
	"github.com/KimuSoft/twitch-point-timer/internal/app"
	"github.com/KimuSoft/twitch-point-timer/internal/domain"
	"github.com/KimuSoft/twitch-point-timer/internal/platform/config"
	"github.com/KimuSoft/twitch-point-timer/internal/platform/crypto"
	"github.com/KimuSoft/twitch-point-timer/internal/platform/logging"
	"github.com/KimuSoft/twitch-point-timer/internal/platform/version"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"
)

const (
	leaderKey      = "point-timer:eventsub-reconciler"
	leaderTTL      = 30 * time.Second
	evictInterval  = time.Minute
	setupTimeout   = 30 * time.Second
	shutdownBudget = 10 * time.Second
)

type webhookResult struct {
	eventsubManager *twitch.EventSubManager
	webhookHandler  *twitch.WebhookHandler
}

func initWebhooks(cfg *config.Config, redeemer twitch.Redeemer, eventSubRepo domain.EventSubRepository) webhookResult {
	eventsubManager, err := twitch.NewEventSubManager(cfg.TwitchClientID, cfg.TwitchClientSecret, eventSubRepo, cfg.WebhookCallbackURL, cfg.WebhookSecret)
	if err != nil {
		slog.Error("Failed to create EventSub manager", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()
	if err := eventsubManager.Setup(ctx); err != nil {
		slog.Error("Failed to setup webhook conduit", "error", err)
		os.Exit(1)
	}

	return webhookResult{
		eventsubManager: eventsubManager,
		webhookHandler:  twitch.NewWebhookHandler(cfg.WebhookSecret, redeemer),
	}
}

type shutdownDeps struct {
	srv        *httpserver.Server
	cancel     context.CancelFunc
	hub        *websocket.Hub
	reconciler *app.SubscriptionReconciler
	conduitMgr *twitch.EventSubManager
}

func runGracefulShutdown(d shutdownDeps) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownBudget)
		defer cancel()
		if err := d.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		if d.reconciler != nil {
			d.reconciler.Stop()
		}
		d.cancel()
		d.hub.Stop()

		if d.conduitMgr != nil {
			if err := d.conduitMgr.Cleanup(shutdownCtx); err != nil {
				slog.Error("Failed to clean up conduit", "error", err)
			}
		}

		close(done)
	}()

	return done
}

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// slog is not configured yet
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config, dbMetrics *metrics.DBMetrics) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	pool, err := postgres.Connect(ctx, cfg.DatabaseURL, postgres.NewQueryTracer(dbMetrics))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrationsWithLock(ctx, pool); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return pool
}

func setupRedis(cfg *config.Config, redisMetrics *metrics.RedisMetrics) *goredis.Client {
	ctx, cancel := context.WithTimeout(context.Background(), setupTimeout)
	defer cancel()

	client, err := redis.NewClient(ctx, cfg.RedisURL, redisMetrics)
	if err != nil {
		slog.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	return client
}

func healthChecks(pool *pgxpool.Pool, rdb *goredis.Client) []httpserver.HealthCheck {
	return []httpserver.HealthCheck{
		{Name: "postgres", Check: pool.Ping},
		{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }},
	}
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()
	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)

	info := version.Get()
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port, "version", info.Version, "commit", info.Commit)

	registry := metrics.NewRegistry()
	var reg prometheus.Registerer = registry

	pool := setupDB(cfg, metrics.NewDBMetrics(reg))
	defer pool.Close()

	redisMetrics := metrics.NewRedisMetrics(reg)
	redisClient := setupRedis(cfg, redisMetrics)
	defer func() { _ = redisClient.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cryptoSvc, err := crypto.NewAesGcmService(cfg.TokenEncryptionKey)
	if err != nil {
		slog.Error("Failed to create crypto service", "error", err)
		os.Exit(1)
	}

	streamerRepo := postgres.NewStreamerRepo(pool, cryptoSvc)
	rewardRepo := postgres.NewRewardRepo(pool)
	eventSubRepo := postgres.NewEventSubRepo(pool)

	sourceCache := redis.NewSourceCache(redisClient, streamerRepo, cfg.SourceCacheTTL, clock, metrics.NewCacheMetrics(reg))
	stopEviction := sourceCache.StartEvictionTimer(evictInterval)
	defer stopEviction()
	go redis.NewInvalidationSubscriber(redisClient, sourceCache).Start(ctx)

	hub := websocket.NewHub(clock, cfg.MaxClientsPerChannel, metrics.NewHubMetrics(reg))
	relay := redis.NewRelay(redisClient, hub, redisMetrics)
	go relay.Start(ctx)
	publisher := eventpublisher.New(relay, hub)

	timers := app.NewTimers(rewardRepo, streamerRepo, publisher, redis.NewRedemptionDeduper(redisClient), clock, metrics.NewTimerMetrics(reg))

	creds := twitch.Credentials{
		ClientID:     cfg.TwitchClientID,
		ClientSecret: cfg.TwitchClientSecret,
		RedirectURI:  cfg.TwitchRedirectURI,
		HTTPClient:   twitch.NewHTTPClient(),
	}
	rewardLister := twitch.NewClientRegistry(creds, streamerRepo, clock)

	// Webhooks are optional; a nil EventSubService skips subscribing at login.
	var eventsubSvc domain.EventSubService
	var eventsubMgr *twitch.EventSubManager
	var webhookHandler http.Handler
	var reconciler *app.SubscriptionReconciler
	if cfg.WebhooksEnabled() {
		wh := initWebhooks(cfg, timers, eventSubRepo)
		eventsubMgr = wh.eventsubManager
		eventsubSvc = eventsubMgr
		webhookHandler = http.HandlerFunc(wh.webhookHandler.HandleEventSub)

		leader := redis.NewLeaderElector(redisClient, uuid.NewString(), leaderKey, leaderTTL)
		reconciler = app.NewSubscriptionReconciler(streamerRepo, eventSubRepo, eventsubMgr, leader, clock)
		go reconciler.Start(ctx)
	}

	appSvc := app.NewService(streamerRepo, rewardRepo, sourceCache, sourceCache, publisher, eventsubSvc, rewardLister)

	originPolicy := websocket.NewOriginPolicy(cfg.AppURL, cfg.AppEnv == "development")

	srv, err := httpserver.NewServer(cfg, httpserver.Deps{
		App:              appSvc,
		Timers:           timers,
		OAuth:            twitch.NewOAuthClient(creds),
		Clock:            clock,
		WebsocketHandler: websocket.NewHandler(hub, appSvc, timers, originPolicy),
		RenderHandler:    websocket.NewRenderHandler(hub, appSvc, sourceCache, timers, clock, originPolicy, metrics.NewSandboxMetrics(reg)),
		WebhookHandler:   webhookHandler,
		MetricsHandler:   metrics.Handler(registry),
		HTTPMetrics:      metrics.NewHTTPMetrics(reg),
		HealthChecks:     healthChecks(pool, redisClient),
	})
	if err != nil {
		slog.Error("Failed to create server", "error", err)
		os.Exit(1)
	}

	done := runGracefulShutdown(shutdownDeps{
		srv:        srv,
		cancel:     cancel,
		hub:        hub,
		reconciler: reconciler,
		conduitMgr: eventsubMgr,
	})

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
