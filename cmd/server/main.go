package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"shopdesk/backend/internal/cache"
	"shopdesk/backend/internal/cart"
	"shopdesk/backend/internal/config"
	"shopdesk/backend/internal/httpapi"
	"shopdesk/backend/internal/logging"
	"shopdesk/backend/internal/reminder"
	"shopdesk/backend/internal/service"
	"shopdesk/backend/internal/store"
	"shopdesk/backend/internal/store/memory"
	pgstore "shopdesk/backend/internal/store/postgres"
	"shopdesk/backend/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := logging.New(cfg.LogLevel)
	log := logger.WithField("module", "main")

	if err := validateSecurityConfig(cfg); err != nil {
		log.Fatalf("invalid security configuration: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var repo store.Repository
	closers := make([]func() error, 0, 2)

	if cfg.DatabaseURL != "" {
		pg, err := pgstore.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("postgres unavailable (%v) and DATABASE_URL is set; refusing to start with in-memory fallback", err)
		}
		if cfg.DatabaseMigrate {
			if err := pg.Migrate(ctx); err != nil {
				log.Fatalf("schema migration failed: %v", err)
			}
		}
		repo = pg
		closers = append(closers, pg.Close)
		log.Info("repository: postgres")
	} else {
		repo = memory.NewSeeded()
		log.Info("repository: in-memory")
	}

	snapshots := cache.SnapshotCache(cache.NoopSnapshotCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisSnapshotCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.Warnf("redis unavailable (%v), using noop cache", err)
		} else {
			snapshots = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("cache: redis")
		}
	} else {
		log.Info("cache: noop")
	}

	loc := cfg.Location()
	recorder := telemetry.NewRecorder()
	svc := service.New(repo, service.Options{
		Logger:            logger,
		Recorder:          recorder,
		Snapshots:         snapshots,
		SnapshotTTL:       cfg.SnapshotTTL(),
		CartPolicy:        cart.Policy{AllowBelowCost: cfg.AllowBelowCost},
		PhoneRegion:       cfg.PhoneRegion,
		LowStockThreshold: cfg.LowStockThreshold,
		Location:          loc,
	})
	if err := svc.Refresh(ctx); err != nil {
		log.Warnf("initial catalog load failed, will retry on first request: %v", err)
	}

	auth := httpapi.NewAuthManager(ctx, cfg.AuthSecret, cfg.AccessTokenTTL, repo)
	api := httpapi.New(svc, auth, httpapi.Options{
		AllowedOrigin: cfg.AllowedOrigin,
		Logger:        logger,
		Recorder:      recorder,
	})

	scheduler := reminder.NewScheduler(svc, newNotifier(cfg, logger), loc, logger)
	if err := scheduler.Start(cfg.DueSweepCron); err != nil {
		log.Fatalf("reminder scheduler: %v", err)
	}

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Infof("shop backend listening on %s", cfg.Address())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	scheduler.Stop()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown error: %v", err)
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.Errorf("close error: %v", err)
		}
	}

	log.Info("server stopped")
}

func validateSecurityConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if cfg.SMTP.Host != "" && len(cfg.DueReminderTo) == 0 {
		return fmt.Errorf("DUE_REMINDER_TO must list at least one address when SMTP_HOST is set")
	}
	return nil
}

// newNotifier mails overdue reminders when SMTP is configured and logs
// them otherwise.
func newNotifier(cfg config.Config, logger *logrus.Logger) reminder.Notifier {
	if cfg.SMTP.Host == "" {
		return reminder.LogNotifier{Logger: logger}
	}
	return reminder.NewMailNotifier(cfg.SMTP, cfg.DueReminderTo)
}
