package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"shopbook/backend/internal/config"
	"shopbook/backend/internal/events"
	"shopbook/backend/internal/gateway"
	"shopbook/backend/internal/httpapi"
	"shopbook/backend/internal/remind"
	"shopbook/backend/internal/service"
	"shopbook/backend/internal/store"
	"shopbook/backend/internal/store/memory"
	pgstore "shopbook/backend/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Sugar()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalw("invalid configuration", "error", err)
	}
	if len(cfg.AuthSecret) < 32 {
		log.Fatalw("AUTH_SECRET must be set and at least 32 characters")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalw("postgres unavailable and DATABASE_URL is set; refusing in-memory fallback", "error", err)
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Infow("repository ready", "kind", "postgres")
	} else {
		repo = memory.NewSeeded()
		log.Infow("repository ready", "kind", "in-memory")
	}

	var throttle remind.Throttle = remind.NewMemoryThrottle()
	if cfg.RedisAddr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			log.Warnw("redis unavailable, reminder throttle is in-process only", "error", err)
		} else {
			throttle = remind.NewRedisThrottle(client)
			closers = append(closers, client.Close)
			log.Infow("reminder throttle ready", "kind", "redis")
		}
	}

	bus := events.NewBus()
	defer bus.Close()

	svc := service.New(repo, bus, log)
	if cfg.PaymentGatewayURL != "" {
		svc.AttachGateway(gateway.NewClient(cfg.PaymentGatewayURL))
		log.Infow("payment gateway ready", "url", cfg.PaymentGatewayURL)
	}

	var sender remind.Sender = remind.NewLogSender(log)
	if cfg.TwilioAccountSID != "" && cfg.TwilioAuthToken != "" && cfg.TwilioWhatsAppNumber != "" {
		sender = remind.NewTwilioSender(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber, log)
		log.Infow("reminder sender ready", "kind", "twilio")
	} else {
		log.Infow("reminder sender ready", "kind", "dry-run")
	}

	scheduler := remind.NewScheduler(svc, repo, throttle, sender, log, cfg.ReminderCronSpec)
	if err := scheduler.Start(); err != nil {
		log.Fatalw("start reminder scheduler", "error", err)
	}
	defer scheduler.Stop()

	auth := httpapi.NewAuthManager(cfg.AuthSecret, time.Duration(cfg.AccessTokenTTLMinutes)*time.Minute, repo)
	api := httpapi.New(svc, auth, cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infow("ledger backend listening", "addr", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("server error", "error", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warnw("shutdown error", "error", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Warnw("close error", "error", err)
		}
	}

	log.Infow("server stopped")
}
