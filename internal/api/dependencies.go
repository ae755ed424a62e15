package api

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/app"
	iauth "github.com/charlesng35/licensewatch/internal/auth"
	"github.com/charlesng35/licensewatch/internal/auth/mfa"
	"github.com/charlesng35/licensewatch/internal/auth/providers"
	"github.com/charlesng35/licensewatch/internal/monitoring"
	"github.com/charlesng35/licensewatch/internal/monitoring/checks"
	"github.com/charlesng35/licensewatch/internal/realtime"
	"github.com/charlesng35/licensewatch/internal/security"
	"github.com/charlesng35/licensewatch/internal/services"
)

// Mailer delivers the sweep's owner emails and the optional digest.
type Mailer interface {
	services.EmailSender
	services.DigestSender
}

// Options carries the optional collaborators of NewDependencies.
type Options struct {
	Mailer Mailer
	Hub    *realtime.Hub
	Clock  services.Clock
	// HealthChecks are registered after the database probe.
	HealthChecks []monitoring.Check
}

// Dependencies collects the services shared by the router and background jobs.
type Dependencies struct {
	DB     *gorm.DB
	Config *app.Config
	JWT    *iauth.JWTService
	Hub    *realtime.Hub
	Health *monitoring.HealthManager

	Users         *services.UserService
	Devices       *services.DeviceService
	Licenses      *services.LicenseService
	Notifications *services.NotificationService
	Audit         *services.AuditService
	Exports       *services.ExportService
	Local         *providers.LocalProvider
	MFA           *mfa.TOTPService
	Posture       *security.PostureService
}

// NewDependencies builds every service from configuration.
func NewDependencies(db *gorm.DB, cfg *app.Config, jwt *iauth.JWTService, opts Options) (*Dependencies, error) {
	if db == nil {
		return nil, errors.New("database handle must be provided")
	}
	if cfg == nil {
		return nil, errors.New("config must be provided")
	}
	if jwt == nil {
		return nil, errors.New("jwt service must be provided")
	}

	deps := &Dependencies{DB: db, Config: cfg, JWT: jwt, Hub: opts.Hub, Health: monitoring.NewHealthManager()}
	var err error

	deps.Posture = security.NewPostureService(db, cfg)
	deps.Health.Register(checks.Database(db, 0))
	for _, check := range opts.HealthChecks {
		deps.Health.Register(check)
	}

	if deps.Audit, err = services.NewAuditService(db, services.WithAuditClock(opts.Clock)); err != nil {
		return nil, err
	}
	if deps.Users, err = services.NewUserService(db); err != nil {
		return nil, err
	}
	if deps.Devices, err = services.NewDeviceService(db, services.WithDeviceClock(opts.Clock)); err != nil {
		return nil, err
	}
	if deps.Licenses, err = services.NewLicenseService(db, deps.Audit, services.WithLicenseClock(opts.Clock)); err != nil {
		return nil, err
	}
	if deps.Exports, err = services.NewExportService(deps.Devices, deps.Licenses); err != nil {
		return nil, err
	}

	notificationOpts := []services.NotificationOption{services.WithNotificationClock(opts.Clock)}
	if opts.Hub != nil {
		notificationOpts = append(notificationOpts, services.WithBroadcaster(opts.Hub))
	}
	var sender services.EmailSender
	if opts.Mailer != nil {
		sender = opts.Mailer
		notificationOpts = append(notificationOpts,
			services.WithExpiryDigest(cfg.Notifications.DigestRecipient, opts.Mailer, deps.Exports))
	}
	deps.Notifications, err = services.NewNotificationService(db, cfg.Notifications.NotificationServiceConfig(), sender, notificationOpts...)
	if err != nil {
		return nil, err
	}

	localCfg := cfg.Auth.LocalProviderConfig()
	localCfg.Clock = opts.Clock
	if deps.Local, err = providers.NewLocalProvider(db, localCfg); err != nil {
		return nil, err
	}

	key, err := cfg.Auth.MFAEncryptionKey()
	if err != nil {
		return nil, fmt.Errorf("mfa encryption key: %w", err)
	}
	mfaOpts := []mfa.Option{mfa.WithIssuer(cfg.Auth.MFA.Issuer)}
	if opts.Clock != nil {
		mfaOpts = append(mfaOpts, mfa.WithClock(opts.Clock))
	}
	if deps.MFA, err = mfa.NewTOTPService(db, key, mfaOpts...); err != nil {
		return nil, err
	}

	return deps, nil
}
