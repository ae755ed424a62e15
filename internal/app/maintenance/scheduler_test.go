package maintenance

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	testutil "github.com/charlesng35/licensewatch/internal/database/testutil"
	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/internal/services"
)

type stubSweeper struct {
	calls  int
	result services.SweepResult
	err    error
}

func (s *stubSweeper) SendExpiringLicenseNotifications(context.Context) (services.SweepResult, error) {
	s.calls++
	return s.result, s.err
}

type stubPruner struct {
	calls     int
	retention int
	err       error
}

func (p *stubPruner) CleanupOlderThan(_ context.Context, days int) (int64, error) {
	p.calls++
	p.retention = days
	return 0, p.err
}

type stubLease struct {
	held     bool
	err      error
	released int
}

func (l *stubLease) TryAcquire(context.Context) (func(context.Context) error, bool, error) {
	if l.err != nil {
		return nil, false, l.err
	}
	if l.held {
		return nil, false, nil
	}
	l.held = true
	return func(context.Context) error {
		l.held = false
		l.released++
		return nil
	}, true, nil
}

func newTestScheduler(sweeper Sweeper, pruner AuditPruner, opts ...Option) *Scheduler {
	opts = append([]Option{
		WithCron(cron.New(cron.WithLogger(cron.DiscardLogger))),
		WithLogger(zap.NewNop()),
	}, opts...)
	return NewScheduler(sweeper, pruner, opts...)
}

func TestRunSweepWithLease(t *testing.T) {
	sweeper := &stubSweeper{result: services.SweepResult{Licenses: 2, Owners: 1}}
	lease := &stubLease{}
	s := newTestScheduler(sweeper, nil, WithLease(lease))

	result, ran, err := s.RunSweep(context.Background())
	require.NoError(t, err)
	require.True(t, ran)
	require.Equal(t, 2, result.Licenses)
	require.Equal(t, 1, lease.released)
	require.False(t, lease.held)

	lease.held = true
	_, ran, err = s.RunSweep(context.Background())
	require.NoError(t, err)
	require.False(t, ran)
	require.Equal(t, 1, sweeper.calls)

	lease.held = false
	lease.err = errors.New("redis down")
	_, ran, err = s.RunSweep(context.Background())
	require.ErrorContains(t, err, "redis down")
	require.False(t, ran)
}

func TestSweepStatusTracksFailures(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("smtp down")}
	s := newTestScheduler(sweeper, nil)
	require.Zero(t, s.SweepStatus().Runs)

	_, _, err := s.RunSweep(context.Background())
	require.Error(t, err)
	_, _, err = s.RunSweep(context.Background())
	require.Error(t, err)

	status := s.SweepStatus()
	require.Equal(t, 2, status.Runs)
	require.Equal(t, 2, status.ConsecutiveFailures)
	require.Equal(t, "smtp down", status.LastError)
	require.False(t, status.LastRunAt.IsZero())

	sweeper.err = nil
	_, _, err = s.RunSweep(context.Background())
	require.NoError(t, err)
	status = s.SweepStatus()
	require.Equal(t, 3, status.Runs)
	require.Zero(t, status.ConsecutiveFailures)
	require.Empty(t, status.LastError)
}

func TestRunSweepWithoutSweeper(t *testing.T) {
	s := newTestScheduler(nil, nil)
	_, _, err := s.RunSweep(context.Background())
	require.Error(t, err)
}

func TestRunOnceAggregatesErrors(t *testing.T) {
	sweeper := &stubSweeper{err: errors.New("sweep failed")}
	pruner := &stubPruner{err: errors.New("prune failed")}
	s := newTestScheduler(sweeper, pruner, WithAuditRetentionDays(30))

	err := s.RunOnce(context.Background())
	require.Len(t, multierr.Errors(err), 2)
	require.Equal(t, 1, sweeper.calls)
	require.Equal(t, 30, pruner.retention)
}

func TestStartRejectsInvalidSchedule(t *testing.T) {
	s := newTestScheduler(&stubSweeper{}, nil, WithSweepSchedule("not a schedule"))
	require.ErrorContains(t, s.Start(), "schedule sweep")

	ok := newTestScheduler(&stubSweeper{}, &stubPruner{}, WithSweepSchedule("0 6 * * *"))
	require.NoError(t, ok.Start())
	<-ok.Stop().Done()

	idle := newTestScheduler(nil, nil)
	require.NoError(t, idle.Start())
}

func TestRunOnceWithServices(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	audit, err := services.NewAuditService(db, services.WithAuditClock(clock))
	require.NoError(t, err)

	owner := testutil.CreateUser(t, db, "owner@example.com")
	device := testutil.CreateDevice(t, db, "SVC-1", owner)
	testutil.CreateLicense(t, db, device, "pro", now.AddDate(0, 0, 5))

	stale := &models.AuditLog{EntityType: "license", EntityID: "old", Action: "create", Timestamp: now.AddDate(0, 0, -40)}
	require.NoError(t, db.Create(stale).Error)

	sender := &countingSender{}
	notifications, err := services.NewNotificationService(db, services.NotificationConfig{ProjectName: "LW"}, sender,
		services.WithNotificationClock(clock))
	require.NoError(t, err)

	s := newTestScheduler(notifications, audit, WithAuditRetentionDays(30))
	require.NoError(t, s.RunOnce(context.Background()))

	require.Equal(t, 1, sender.sent)

	var created int64
	require.NoError(t, db.Model(&models.Notification{}).Count(&created).Error)
	require.Equal(t, int64(1), created)

	var remaining int64
	require.NoError(t, db.Model(&models.AuditLog{}).Count(&remaining).Error)
	require.Zero(t, remaining)
}

type countingSender struct {
	sent int
}

func (s *countingSender) Send(context.Context, []string, string, string, map[string]any) bool {
	s.sent++
	return true
}
