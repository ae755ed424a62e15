package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/charlesng35/licensewatch/internal/services"
	"github.com/charlesng35/licensewatch/pkg/logger"
	"github.com/charlesng35/licensewatch/pkg/metrics"
)

const (
	defaultAuditRetentionDays = 365
	defaultSweepSpec          = "@daily"
	defaultAuditSpec          = "@daily"
	defaultJobTimeout         = 10 * time.Minute
)

// Sweeper runs the expiring-license notification sweep.
type Sweeper interface {
	SendExpiringLicenseNotifications(ctx context.Context) (services.SweepResult, error)
}

// AuditPruner deletes audit entries past the retention window.
type AuditPruner interface {
	CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error)
}

// Locker guards a scheduled job so only one replica runs it at a time.
type Locker interface {
	TryAcquire(ctx context.Context) (release func(context.Context) error, acquired bool, err error)
}

// JobStatus summarises the runs of a scheduled job since start-up.
type JobStatus struct {
	Runs                int       `json:"runs"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastRunAt           time.Time `json:"last_run_at"`
	LastError           string    `json:"last_error,omitempty"`
}

// Scheduler runs the periodic sweep and audit retention jobs on a cron schedule.
type Scheduler struct {
	sweeper Sweeper
	audit   AuditPruner
	lease   Locker
	cron    *cron.Cron
	log     *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	sweep JobStatus

	retention     int
	sweepSchedule string
	auditSchedule string
	jobTimeout    time.Duration
}

// Option customises the Scheduler.
type Option func(*Scheduler)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.cron = c
		}
	}
}

// WithLease makes scheduled sweeps take the given lock first. Sweeps that fail to
// acquire it are skipped.
func WithLease(lease Locker) Option {
	return func(s *Scheduler) {
		s.lease = lease
	}
}

// WithAuditRetentionDays adjusts how long audit logs are retained before cleanup.
func WithAuditRetentionDays(days int) Option {
	return func(s *Scheduler) {
		if days > 0 {
			s.retention = days
		}
	}
}

// WithSweepSchedule overrides the cron specification for the expiry sweep.
func WithSweepSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.sweepSchedule = spec
		}
	}
}

// WithAuditSchedule overrides the cron specification for audit retention enforcement.
func WithAuditSchedule(spec string) Option {
	return func(s *Scheduler) {
		if spec != "" {
			s.auditSchedule = spec
		}
	}
}

// WithJobTimeout bounds a single scheduled run.
func WithJobTimeout(timeout time.Duration) Option {
	return func(s *Scheduler) {
		if timeout > 0 {
			s.jobTimeout = timeout
		}
	}
}

// WithLogger overrides the module logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

// NewScheduler constructs a Scheduler. A nil sweeper or pruner skips the corresponding job.
func NewScheduler(sweeper Sweeper, audit AuditPruner, opts ...Option) *Scheduler {
	s := &Scheduler{
		sweeper:       sweeper,
		audit:         audit,
		retention:     defaultAuditRetentionDays,
		sweepSchedule: defaultSweepSpec,
		auditSchedule: defaultAuditSpec,
		jobTimeout:    defaultJobTimeout,
		log:           logger.WithModule("maintenance"),
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cron == nil {
		s.cron = cron.New(cron.WithLogger(cron.DiscardLogger), cron.WithLocation(time.UTC))
	}

	return s
}

// Start registers the jobs with the cron scheduler and launches it.
func (s *Scheduler) Start() error {
	if s.sweeper == nil && s.audit == nil {
		return nil
	}

	if s.sweeper != nil {
		if _, err := s.cron.AddFunc(s.sweepSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
			defer cancel()
			if _, _, err := s.RunSweep(ctx); err != nil {
				s.log.Warn("scheduled expiry sweep failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule sweep %q: %w", s.sweepSchedule, err)
		}
	}

	if s.audit != nil {
		if _, err := s.cron.AddFunc(s.auditSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), s.jobTimeout)
			defer cancel()
			if _, err := s.audit.CleanupOlderThan(ctx, s.retention); err != nil {
				s.log.Warn("audit cleanup failed", zap.Error(err))
			}
		}); err != nil {
			return fmt.Errorf("maintenance: schedule audit cleanup %q: %w", s.auditSchedule, err)
		}
	}

	s.cron.Start()
	s.log.Info("maintenance jobs scheduled",
		zap.String("sweep", s.sweepSchedule),
		zap.String("audit_cleanup", s.auditSchedule),
		zap.Int("audit_retention_days", s.retention),
		zap.Bool("lease", s.lease != nil),
	)
	return nil
}

// Stop halts the underlying scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	return s.cron.Stop()
}

// RunSweep executes one sweep under the lease, if configured. ran is false when
// another holder had the lease.
func (s *Scheduler) RunSweep(ctx context.Context) (result services.SweepResult, ran bool, err error) {
	if s.sweeper == nil {
		return services.SweepResult{}, false, errors.New("maintenance: no sweeper configured")
	}

	if s.lease != nil {
		release, acquired, err := s.lease.TryAcquire(ctx)
		if err != nil {
			return services.SweepResult{}, false, err
		}
		if !acquired {
			metrics.SweepRuns.WithLabelValues("skipped").Inc()
			s.log.Info("expiry sweep skipped; lease held elsewhere")
			return services.SweepResult{}, false, nil
		}
		defer func() {
			if relErr := release(context.WithoutCancel(ctx)); relErr != nil {
				s.log.Warn("release sweep lease", zap.Error(relErr))
			}
		}()
	}

	result, err = s.sweeper.SendExpiringLicenseNotifications(ctx)
	s.recordSweep(err)
	if err != nil {
		return result, true, err
	}

	s.log.Info("expiry sweep completed",
		zap.Int("licenses", result.Licenses),
		zap.Int("owners", result.Owners),
		zap.Int("emails_sent", result.EmailsSent),
		zap.Int("emails_failed", result.EmailsFailed),
		zap.Int("notifications", result.NotificationsCreated),
	)
	return result, true, nil
}

// SweepStatus reports sweeps that actually ran; lease skips are not counted.
func (s *Scheduler) SweepStatus() JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sweep
}

func (s *Scheduler) recordSweep(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sweep.Runs++
	s.sweep.LastRunAt = s.now().UTC()
	if err != nil {
		s.sweep.ConsecutiveFailures++
		s.sweep.LastError = err.Error()
		return
	}
	s.sweep.ConsecutiveFailures = 0
	s.sweep.LastError = ""
}

// RunOnce executes every configured job sequentially and aggregates their errors.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if s.sweeper != nil {
		if _, _, err := s.RunSweep(ctx); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	if s.audit != nil {
		if _, err := s.audit.CleanupOlderThan(ctx, s.retention); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}
