// Command cs2kz-api is the process entrypoint: it wires configuration,
// the database, the optional Redis cache, the WebSocket hub, the points
// pipeline and the A2S poller together, serves HTTP, and shuts everything
// down cleanly on SIGINT/SIGTERM.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/cs2kz-api/cs2kz-api/internal/a2s"
	"github.com/cs2kz-api/cs2kz-api/internal/apperr"
	"github.com/cs2kz-api/cs2kz-api/internal/auth"
	"github.com/cs2kz-api/cs2kz-api/internal/cache"
	"github.com/cs2kz-api/cs2kz-api/internal/config"
	kzdb "github.com/cs2kz-api/cs2kz-api/internal/db"
	"github.com/cs2kz-api/cs2kz-api/internal/ingest"
	"github.com/cs2kz-api/cs2kz-api/internal/logger"
	"github.com/cs2kz-api/cs2kz-api/internal/middleware"
	"github.com/cs2kz-api/cs2kz-api/internal/points"
	"github.com/cs2kz-api/cs2kz-api/internal/scripthost"
	"github.com/cs2kz-api/cs2kz-api/internal/steamapi"
	"github.com/cs2kz-api/cs2kz-api/internal/ws"
)

func main() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogPretty)
	log := logger.GetLogger()

	log.Info().Str("addr", cfg.ListenAddr).Msg("starting cs2kz-api")

	database, err := kzdb.NewDatabase(kzdb.Config{
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		User:            cfg.DBUser,
		Password:        cfg.DBPassword,
		DBName:          cfg.DBName,
		SSLMode:         cfg.DBSSLMode,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLife,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}

	redisCache, err := cache.NewCache(cache.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		Enabled:  cfg.RedisEnabled,
	})
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, continuing with cache disabled")
		redisCache, _ = cache.NewCache(cache.Config{Enabled: false})
	}
	defer redisCache.Close()

	// Auth plane
	sessionStore := auth.NewSessionStore(redisCache, cfg.SessionMaxAge)
	secureCookies := cfg.SessionCookieDomain != ""
	sessionAuth := auth.NewSessionAuth(database, sessionStore, cfg.SessionCookieDomain, secureCookies, cfg.SessionMaxAge)
	accessKeys := auth.NewAccessKeyStore(database)
	steamOpenID := auth.NewSteamOpenID(cfg.SteamRealm, cfg.SteamReturnURL)
	steamClient := steamapi.New(cfg.SteamWebAPIKey)
	authHandlers := auth.NewHandlers(sessionAuth, steamOpenID, steamClient, database, secureCookies, cfg.SessionCookieDomain)

	// Statistics host + points pipeline
	statsHost := scripthost.New(cfg.ScriptHostPath, cfg.ScriptHostRestartBackoff)
	defer statsHost.Close()

	assigner := points.NewAssigner(database, statsHost)
	recalcWorker := points.NewWorker(database, statsHost)
	recordIngest := ingest.New(database, assigner, recalcWorker)

	// WebSocket hub
	wsHub := ws.NewWebSocketHub()
	msgRouter := ws.NewMessageRouter(database, recordIngest)
	wsHandler := ws.NewHandler(wsHub, msgRouter, accessKeys, database, cfg.HeartbeatInterval)

	// A2S poller
	a2sCache := a2s.NewCache()
	a2sQuerier := a2s.NewUDPQuerier(cfg.A2SQueryTimeout)
	a2sPoller := a2s.NewPoller(database, a2sCache, a2sQuerier, cfg.A2SQueryTimeout)

	// Background worker + scheduled sweeps
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	workerDone := make(chan error, 1)
	go func() {
		workerDone <- recalcWorker.Run(workerCtx)
	}()

	scheduler := cron.New()
	if _, err := points.ScheduleReconciliation(scheduler, database, recalcWorker); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule points reconciliation")
	}
	pollSpec := fmt.Sprintf("@every %s", cfg.A2SPollInterval)
	if _, err := a2sPoller.Schedule(scheduler, pollSpec); err != nil {
		log.Fatal().Err(err).Msg("failed to schedule A2S poller")
	}
	scheduler.Start()

	router := newRouter(cfg, log, sessionAuth, authHandlers, wsHandler)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http server forced to shutdown")
	}

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	wsHub.Shutdown(shutdownCtx)

	cancelWorker()
	select {
	case err := <-workerDone:
		if err != nil && err != context.Canceled {
			log.Error().Err(err).Msg("recalc worker exited with error")
		}
	case <-shutdownCtx.Done():
		log.Warn().Msg("recalc worker did not drain before shutdown deadline")
	}

	log.Info().Msg("shutdown complete")
}

// newRouter builds the gin engine with the full middleware chain and every
// route this service exposes: the game-server WebSocket upgrade and the
// browser auth endpoints. The REST CRUD surface (maps, players, bans,
// servers, plugin releases) is an external collaborator and is not served
// here.
func newRouter(cfg *config.Config, log *zerolog.Logger, sessionAuth *auth.SessionAuth, authHandlers *auth.Handlers, wsHandler *ws.Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(apperr.Recovery(log))
	router.Use(middleware.StructuredLogger())
	router.Use(middleware.Timeout(middleware.DefaultTimeoutConfig()))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.DefaultSizeLimiter())
	router.Use(middleware.GzipWithExclusions(middleware.BestSpeed, []string{"/auth/cs2"}))
	router.Use(apperr.ErrorHandler(log))

	ipLimiter := middleware.NewRateLimiter(20, 40)
	router.Use(ipLimiter.Middleware())

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/auth/cs2", wsHandler.Upgrade)

	authRoutes := router.Group("/auth/web")
	{
		authRoutes.GET("/login", authHandlers.Login)
		authRoutes.GET("/steam-callback", authHandlers.SteamCallback)
		authRoutes.GET("/logout", sessionAuth.Middleware(nil), authHandlers.Logout)
		authRoutes.GET("", sessionAuth.Middleware(nil), authHandlers.Whoami)
	}

	return router
}
