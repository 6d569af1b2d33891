package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"

	echoapi "github.com/strandauth/strand/api/echo"
	"github.com/strandauth/strand/cache"
	rediscache "github.com/strandauth/strand/cache/redis"
	"github.com/strandauth/strand/config"
	"github.com/strandauth/strand/domain"
	"github.com/strandauth/strand/internal/auth"
	"github.com/strandauth/strand/internal/metrics"
	applog "github.com/strandauth/strand/log"
	"github.com/strandauth/strand/mongodb"
	"github.com/strandauth/strand/postgres"
	"github.com/strandauth/strand/services"
	"github.com/strandauth/strand/tracing"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logLevel, parseErr := zerolog.ParseLevel(cfg.LogLevel)
	if parseErr != nil {
		logLevel = zerolog.InfoLevel
	}
	// The handler and storage layers log through the zerolog global; the
	// services layer gets the adapter so entries carry trace context.
	zerolog.SetGlobalLevel(logLevel)
	if cfg.LogPretty {
		zlog.Logger = zlog.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := applog.NewZerologAdapter(logLevel, cfg.LogPretty)

	ctx := context.Background()
	if parseErr != nil {
		logger.Warn(ctx, "Invalid LOG_LEVEL, defaulting to info", map[string]interface{}{
			"configured": cfg.LogLevel,
		})
	}
	logger.Info(ctx, "Starting strand authorization server", map[string]interface{}{
		"http_port":      cfg.HTTPPort,
		"storage_driver": cfg.StorageDriver,
		"secret_hasher":  cfg.SecretHasher,
		"log_level":      logLevel.String(),
	})

	tp, err := tracing.InitTracerProvider(cfg.OtelServiceName)
	if err != nil {
		logger.Fatal(ctx, "Failed to initialize TracerProvider", err)
	}

	store, err := openStore(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "Failed to open store", err, map[string]interface{}{
			"storage_driver": cfg.StorageDriver,
		})
	}

	// The Redis decorator keeps hot access-token introspection off the
	// primary store. Everything else passes straight through.
	tokens := domain.TokenRepository(store)
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Fatal(ctx, "Failed to reach Redis", err, map[string]interface{}{
				"redis_addr": cfg.RedisAddr,
			})
		}
		tokens = rediscache.NewTokenCache(rdb, tokens, "strand", 0)
		logger.Info(ctx, "Access token cache enabled", map[string]interface{}{
			"redis_addr": cfg.RedisAddr,
		})
	}

	var hasher services.SecretHasher
	switch cfg.SecretHasher {
	case config.HasherArgon2id:
		hasher = auth.NewArgon2idSecretHasher()
	default:
		hasher = auth.NewBcryptSecretHasher(bcrypt.DefaultCost)
	}

	clientSvc := services.NewClientService(store, hasher, logger)
	tokenSvc := services.NewTokenService(tokens, cfg.AccessTokenTTL(), cfg.RefreshTokenTTL(), logger)
	oauthSvc := services.NewOAuthService(clientSvc, tokenSvc, store, tokens, store, cfg.AuthCodeTTL(), logger)

	metrics.Register(prometheus.DefaultRegisterer)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.Secure())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogMethod:   true,
		LogURI:      true,
		LogStatus:   true,
		LogLatency:  true,
		LogRemoteIP: true,
		LogValuesFunc: func(c echo.Context, v echomiddleware.RequestLoggerValues) error {
			zlog.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Dur("latency", v.Latency).
				Str("remote_ip", v.RemoteIP).
				Msg("request")
			return nil
		},
	}))

	if cfg.AdminAPIKey == "" {
		logger.Warn(ctx, "ADMIN_API_KEY not set; the client management API is disabled")
	}
	api := echoapi.NewOAuth2API(oauthSvc, clientSvc, store, echoapi.Config{
		AdminAPIKey:       cfg.AdminAPIKey,
		TokenRateLimitRPS: cfg.TokenRateLimitRPS,
	})
	api.RegisterRoutes(e)

	janitorStop := make(chan struct{})
	if cfg.CleanupIntervalMin > 0 {
		go runCleanup(store, time.Duration(cfg.CleanupIntervalMin)*time.Minute, janitorStop, logger)
	}

	go func() {
		logger.Info(context.Background(), "HTTP server listening", map[string]interface{}{
			"port": cfg.HTTPPort,
		})
		if err := e.Start(":" + cfg.HTTPPort); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal(context.Background(), "HTTP server failed", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Info(ctx, "Shutting down", map[string]interface{}{"signal": sig.String()})

	close(janitorStop)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "HTTP server shutdown error", err)
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "TracerProvider shutdown error", err)
	}
	if err := store.Close(shutdownCtx); err != nil {
		logger.Error(shutdownCtx, "Store close error", err)
	}
	logger.Info(shutdownCtx, "Server stopped")
}

// openStore builds the configured storage engine.
func openStore(ctx context.Context, cfg *config.ServerConfig) (domain.Store, error) {
	switch cfg.StorageDriver {
	case config.DriverMongo:
		return mongodb.Open(ctx, cfg.MongoURI, cfg.MongoDBName)
	case config.DriverPostgres:
		return postgres.Open(ctx, cfg.PostgresDSN)
	default:
		return cache.NewMemoryStore(), nil
	}
}

// runCleanup deletes expired and long-dead rows on a fixed interval until
// stop closes. Batch maintenance only; request paths never wait on it.
func runCleanup(store domain.Store, interval time.Duration, stop <-chan struct{}, logger applog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			removed, err := store.CleanupExpired(ctx)
			cancel()
			if err != nil {
				logger.Error(context.Background(), "Cleanup pass failed", err)
				continue
			}
			metrics.CleanupRemovedTotal.Add(float64(removed))
			if removed > 0 {
				logger.Info(context.Background(), "Cleanup pass removed rows", map[string]interface{}{
					"removed": removed,
				})
			}
		}
	}
}
