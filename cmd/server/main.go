// Package main runs the aerodrome observer HTTP server with WebSocket and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aerodrome-observer/backend/config"
	"github.com/aerodrome-observer/backend/internal/access"
	"github.com/aerodrome-observer/backend/internal/aerodromes"
	"github.com/aerodrome-observer/backend/internal/auth"
	"github.com/aerodrome-observer/backend/internal/invites"
	"github.com/aerodrome-observer/backend/internal/observations"
	"github.com/aerodrome-observer/backend/internal/profiles"
	"github.com/aerodrome-observer/backend/internal/realtime"
	"github.com/aerodrome-observer/backend/internal/worker"
	"github.com/aerodrome-observer/backend/pkg/database"
	"github.com/aerodrome-observer/backend/pkg/queue"
	"github.com/aerodrome-observer/backend/pkg/ratelimit"
	"github.com/aerodrome-observer/backend/pkg/redis"
	"github.com/aerodrome-observer/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" && cfg.AWS.MediaBucket != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Endpoint:             cfg.AWS.Endpoint,
			MediaBucket:          cfg.AWS.MediaBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.Audiences)
	redisPubSub := realtime.NewRedisPubSub(rdb.Client, logger)
	hub := realtime.NewHub(logger, redisPubSub, redisPubSub)
	jobQueue := queue.NewQueue(rdb.Client, logger)

	// Profiles and the authorization gate
	profileRepo := profiles.NewRepository(pool)
	gate := access.NewGate(profileRepo, access.Policy{CollaboratorsMayMint: cfg.Invites.CollaboratorsMayMint}, logger)
	profileHandler := profiles.NewHandler(profileRepo, gate, logger)

	// Invites
	inviteRepo := invites.NewRepository(pool)
	inviteService := invites.NewService(inviteRepo, gate, cfg.Invites.TokenLength, logger)
	inviteHandler := invites.NewHandler(inviteService, cfg.Invites.DefaultExpireHours, logger)
	validateLimiter := ratelimit.New(rdb.Client, cfg.Invites.ValidatePerMinute, time.Minute)

	// Aerodromes and observations
	aerodromeRepo := aerodromes.NewRepository(pool)
	observationRepo := observations.NewRepository(pool)
	summaries := aerodromes.NewSummaries(aerodromeRepo, observationRepo, rdb,
		time.Duration(cfg.Feed.SummaryCacheSeconds)*time.Second, logger)
	aerodromeHandler := aerodromes.NewHandler(summaries, aerodromeRepo, cfg.Feed.SummaryCacheSeconds, logger)
	observationHandler := observations.NewHandler(observationRepo, aerodromeRepo, gate, cfg.Feed.DefaultLimit, cfg.Feed.MaxLimit, logger)
	observationHandler.SetPublisher(hub)
	observationHandler.SetSummaries(summaries)
	observationHandler.SetQueue(jobQueue)
	if s3Client != nil {
		observationHandler.SetStorage(s3Client)
	}

	wsAuthorize := func(ctx context.Context, token string) (realtime.Viewer, error) {
		if token == "" {
			return realtime.Viewer{}, nil
		}
		id, err := jwtService.Validate(token)
		if err != nil {
			return realtime.Viewer{}, err
		}
		restricted, err := gate.Allow(ctx, id.ID, access.CapReadRestricted)
		if err != nil {
			logger.Warn("ws authorization failed, public feed only", zap.Error(err))
			restricted = false
		}
		return realtime.Viewer{UserID: id.ID, Restricted: restricted}, nil
	}

	router := gin.New()
	registerRoutes(router, routeDeps{
		jwt:             jwtService,
		gate:            gate,
		validateLimiter: validateLimiter,
		profiles:        profileHandler,
		invites:         inviteHandler,
		aerodromes:      aerodromeHandler,
		observations:    observationHandler,
		hub:             hub,
		wsAuthorize:     wsAuthorize,
		corsOrigins:     cfg.Server.CORSAllowedOrigins,
		logger:          logger,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (media verification)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if cfg.Server.RunWorker && s3Client != nil {
		processor := worker.NewMediaProcessor(observationRepo, s3Client, jobQueue, logger)
		go processor.Run(workerCtx)
		logger.Info("media worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
