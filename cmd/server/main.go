package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	echoapi "github.com/guardian-dev/guardian/api/echo"
	"github.com/guardian-dev/guardian/cache"
	redisstore "github.com/guardian-dev/guardian/cache/redis"
	"github.com/guardian-dev/guardian/config"
	"github.com/guardian-dev/guardian/internal/auth"
	"github.com/guardian-dev/guardian/internal/mail"
	"github.com/guardian-dev/guardian/internal/metrics"
	"github.com/guardian-dev/guardian/middleware"
	"github.com/guardian-dev/guardian/mongodb"
	"github.com/guardian-dev/guardian/services"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		bootLogger := zerolog.New(os.Stdout).With().Timestamp().Logger()
		bootLogger.Fatal().Err(err).Msg("Failed to load configuration")
	}

	setupLogger(cfg)
	log.Info().
		Str("http_port", cfg.HTTPPort).
		Str("mongo_db_name", cfg.MongoDBName).
		Str("log_level", cfg.LogLevel).
		Msg("Starting guardian server")

	ctx := context.Background()
	if initErr := mongodb.InitMongoDB(ctx, cfg.MongoURI, cfg.MongoDBName); initErr != nil {
		log.Fatal().Err(initErr).Msg("Failed to initialize MongoDB connection")
	}
	db := mongodb.GetDB()

	// Repositories
	userRepo, err := mongodb.NewUserRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize UserRepository")
	}
	tokenRepo, err := mongodb.NewTokenRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize TokenRepository")
	}
	attemptRepo, err := mongodb.NewLoginAttemptRepositoryMongo(ctx, db)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize LoginAttemptRepository")
	}

	// Session liveness cache: Redis when configured, in-process otherwise.
	var sessionCache cache.SessionStore
	if cfg.RedisAddr != "" {
		rdb := goredis.NewClient(&goredis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		if pingErr := rdb.Ping(ctx).Err(); pingErr != nil {
			log.Fatal().Err(pingErr).Str("addr", cfg.RedisAddr).Msg("Failed to connect to Redis")
		}
		sessionCache = redisstore.NewSessionStore(rdb, cfg.RedisPrefix)
		log.Info().Str("addr", cfg.RedisAddr).Msg("Using Redis session cache")
	} else {
		sessionCache = cache.NewMemorySessionStore()
		log.Info().Msg("Using in-memory session cache")
	}

	// Services
	passwordHasher := auth.NewBcryptPasswordHasher(cfg.BcryptCost)

	tokenSigner := services.NewTokenSigner()
	tokenSigner.AddKeySigner(services.KeyPurposeAccess, cfg.JWTAccessSecret)
	tokenSigner.AddKeySigner(services.KeyPurposeRefresh, cfg.JWTRefreshSecret)
	tokenSigner.AddKeySigner(services.KeyPurposeMFA, cfg.JWTMFASecret)

	tokenService := services.NewTokenService(tokenRepo, sessionCache, tokenSigner, services.TimerScheduler{}, services.TokenServiceConfig{
		AccessTTL:            cfg.AccessTokenTTL,
		RefreshTTL:           cfg.RefreshTokenTTL,
		RefreshEnabledWindow: cfg.RefreshEnabledWindow,
		RotationGraceDelay:   cfg.RotationGraceDelay,
	})
	lockoutService := services.NewLockoutService(attemptRepo, services.LockoutConfig{
		Window:      cfg.LockoutWindow,
		MaxAttempts: cfg.LockoutMaxAttempts,
	})

	var mailer services.Mailer = mail.LogMailer{}
	if cfg.SMTPHost != "" {
		mailer = mail.NewSMTPMailer(mail.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		})
	}
	mfaService := services.NewMFAService(tokenSigner, mailer, passwordHasher, services.MFAConfig{
		StalenessCutoff: cfg.MFAStalenessCutoff,
		CodeTTL:         cfg.MFACodeTTL,
		ResendInterval:  cfg.MFAResendInterval,
	})
	defer mfaService.Close()

	authService := services.NewAuthService(userRepo, tokenService, lockoutService, mfaService, passwordHasher, cfg.DummyHash)

	// Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.InitCustomMetrics(registry)

	// Rate limit stores
	ipLimit := middleware.NewRateLimitStore(cfg.RateIPLimit, cfg.RateIPWindow)
	defer ipLimit.Close()
	userLimit := middleware.NewRateLimitStore(cfg.RateUserLimit, cfg.RateUserWindow)
	defer userLimit.Close()

	// HTTP server
	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())

	authAPI := echoapi.NewAuthAPI(authService, tokenService, userRepo, echoapi.AuthAPIConfig{
		AccessTTL:     cfg.AccessTokenTTL,
		RefreshTTL:    cfg.RefreshTokenTTL,
		SecureCookies: cfg.SecureCookies,
	})
	authAPI.RegisterRoutes(e, ipLimit, userLimit)

	e.GET("/healthz", func(c echo.Context) error {
		if err := mongodb.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"status": "degraded"})
		}
		return c.JSON(http.StatusOK, echo.Map{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	go func() {
		log.Info().Str("port", cfg.HTTPPort).Msg("HTTP server listening")
		if serveErr := e.Start(":" + cfg.HTTPPort); serveErr != nil && serveErr != http.ErrServerClosed {
			log.Fatal().Err(serveErr).Msg("Failed to start HTTP server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	mongodb.CloseMongoDB(shutdownCtx)
	log.Info().Msg("Server gracefully stopped")
}

func setupLogger(cfg *config.ServerConfig) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	}
}
