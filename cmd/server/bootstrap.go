package main

import (
	"context"
	"fmt"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/api"
	"github.com/charlesng35/licensewatch/internal/app"
	"github.com/charlesng35/licensewatch/internal/app/maintenance"
	iauth "github.com/charlesng35/licensewatch/internal/auth"
	"github.com/charlesng35/licensewatch/internal/cache"
	"github.com/charlesng35/licensewatch/internal/database"
	"github.com/charlesng35/licensewatch/internal/monitoring"
	"github.com/charlesng35/licensewatch/internal/monitoring/checks"
	"github.com/charlesng35/licensewatch/internal/realtime"
	"github.com/charlesng35/licensewatch/internal/security"
	"github.com/charlesng35/licensewatch/pkg/logger"
	"github.com/charlesng35/licensewatch/pkg/mail"
)

const sweepLeaseName = "expiry-sweep"

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB        *gorm.DB
	Redis     *redis.Client
	Deps      *api.Dependencies
	Scheduler *maintenance.Scheduler
	Router    *gin.Engine
}

// bootstrapRuntime initialises the database, optional redis, services, scheduler and HTTP router.
// The scheduler is built but not started.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if os.Getenv("GIN_DEBUG") != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Cache.Redis.Enabled {
		if stack.Redis, err = cache.NewRedisClient(ctx, cfg.Cache.RedisClientConfig()); err != nil {
			log.Warn("redis unavailable; scheduled sweeps run without a lease", zap.Error(err))
			stack.Redis = nil
		} else {
			log.Info("redis connected", zap.String("addr", cfg.Cache.Redis.Address))
		}
	}

	jwtSvc, err := iauth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	mailer, err := buildMailer(cfg)
	if err != nil {
		return nil, err
	}

	var healthChecks []monitoring.Check
	if cfg.Cache.Redis.Enabled {
		var pinger checks.RedisPinger
		if stack.Redis != nil {
			pinger = stack.Redis
		}
		healthChecks = append(healthChecks, checks.Redis(pinger, cfg.Cache.Redis.Timeout))
	}

	stack.Deps, err = api.NewDependencies(stack.DB, cfg, jwtSvc, api.Options{
		Mailer:       mailer,
		Hub:          realtime.NewHub(realtime.WithAllowedOrigins(cfg.Server.AllowedOrigins...)),
		HealthChecks: healthChecks,
	})
	if err != nil {
		return nil, fmt.Errorf("initialise services: %w", err)
	}

	logPosture(ctx, stack.Deps.Posture, log)

	schedulerOpts := []maintenance.Option{
		maintenance.WithSweepSchedule(cfg.Notifications.SweepSchedule),
		maintenance.WithAuditSchedule(cfg.Audit.CleanupSchedule),
		maintenance.WithAuditRetentionDays(cfg.Audit.RetentionDays),
	}
	if cfg.Notifications.Lease.Enabled && stack.Redis != nil {
		lease, err := cache.NewLease(stack.Redis, sweepLeaseName, cfg.Notifications.LeaseTTL())
		if err != nil {
			return nil, fmt.Errorf("initialise sweep lease: %w", err)
		}
		schedulerOpts = append(schedulerOpts, maintenance.WithLease(lease))
	}
	stack.Scheduler = maintenance.NewScheduler(stack.Deps.Notifications, stack.Deps.Audit, schedulerOpts...)
	stack.Deps.Health.Register(checks.Sweep(stack.Scheduler, 0))

	stack.Router, err = api.NewRouter(stack.Deps)
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.Scheduler != nil {
		select {
		case <-s.Scheduler.Stop().Done():
		case <-ctx.Done():
			log.Warn("maintenance jobs still running at shutdown")
		}
	}

	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			log.Warn("redis shutdown", zap.Error(err))
		}
	}

	closeDatabase(s.DB, log)
}

// buildMailer wraps the SMTP transport in the template renderer. With SMTP disabled
// every send reports failure and notifications are stored unsent.
func buildMailer(cfg *app.Config) (*mail.TemplateSender, error) {
	transport, err := mail.NewSMTPMailer(cfg.Email.SMTPSettings())
	if err != nil {
		return nil, fmt.Errorf("initialise smtp mailer: %w", err)
	}
	sender, err := mail.NewTemplateSender(transport, cfg.SenderAddress())
	if err != nil {
		return nil, fmt.Errorf("initialise email templates: %w", err)
	}
	return sender, nil
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	log := logger.WithModule("database")
	connCfg := cfg.Database.ConnectionConfig()

	db, err := database.Open(connCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	seed := database.SeedOptions{
		SuperuserEmail:    cfg.FirstUser.Email,
		SuperuserPassword: cfg.FirstUser.Password,
	}
	if err := database.AutoMigrateAndSeed(db, seed); err != nil {
		closeDatabase(db, log)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log.Info("database ready", zap.String("driver", connCfg.Driver))
	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("close database", zap.Error(err))
	}
}

// logPosture surfaces insecure settings such as the sample superuser password at startup.
func logPosture(ctx context.Context, svc *security.PostureService, log *zap.Logger) {
	result := svc.Run(ctx)
	for _, check := range result.Checks {
		switch check.Status {
		case security.StatusFail:
			log.Warn("security check failed", zap.String("check", check.ID), zap.String("message", check.Message))
		case security.StatusWarn:
			log.Info("security check warning", zap.String("check", check.ID), zap.String("message", check.Message))
		}
	}
}
