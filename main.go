package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"mentor-voice/auth"
	"mentor-voice/config"
	"mentor-voice/policy"
	"mentor-voice/server"
	"mentor-voice/session"
	"mentor-voice/upstream"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	redisClient := connectRedis(ctx, cfg, logger)
	store := policy.NewRedisStore(redisClient)

	connector, err := upstream.NewGeminiConnector(ctx, cfg.GeminiAPIKey, logger)
	if err != nil {
		logger.Fatal("Failed to create upstream connector", zap.Error(err))
	}

	verifier := auth.NewVerifier(cfg.JWTSecret)
	manager := session.NewManager(redisClient, logger, cfg.MaxSessions, cfg.SessionTimeout)
	go manager.StartCleanupRoutine(ctx)

	srv := server.New(cfg, logger, verifier, manager, connector, store, store)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Received shutdown signal")
		cancel()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", zap.Error(err))
		}
	}()

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("Server error", zap.Error(err))
	}

	logger.Info("Server stopped")
}

// connectRedis returns a working Redis client or nil. The bridge degrades
// without Redis: no session metadata mirror, and content/plan lookups fail,
// but tutor sessions still work.
func connectRedis(ctx context.Context, cfg *config.Config, logger *zap.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       0,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warn("Redis unavailable, continuing without it", zap.Error(err))
		return nil
	}
	return client
}
