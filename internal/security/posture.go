package security

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/app"
	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/pkg/crypto"
)

// CheckStatus captures the outcome of a posture check.
type CheckStatus string

const (
	StatusPass CheckStatus = "pass"
	StatusWarn CheckStatus = "warn"
	StatusFail CheckStatus = "fail"
)

// DefaultSecret is the placeholder shipped in sample configuration files.
const DefaultSecret = "changethis"

// maxAccessTokenTTL matches the eight day default token lifetime.
const maxAccessTokenTTL = 8 * 24 * time.Hour

// Check contains the result of a single verification.
type Check struct {
	ID          string      `json:"id"`
	Status      CheckStatus `json:"status"`
	Message     string      `json:"message"`
	Remediation string      `json:"remediation,omitempty"`
	Details     any         `json:"details,omitempty"`
}

// Result aggregates all checks with a status summary.
type Result struct {
	CheckedAt time.Time      `json:"checked_at"`
	Checks    []Check        `json:"checks"`
	Summary   map[string]int `json:"summary"`
}

// Failed reports whether any check failed outright.
func (r Result) Failed() bool {
	return r.Summary[string(StatusFail)] > 0
}

// PostureService reviews deployment settings and account hygiene.
type PostureService struct {
	db  *gorm.DB
	cfg *app.Config
	now func() time.Time
}

// NewPostureService constructs the service. A nil db or cfg degrades the affected checks to warnings.
func NewPostureService(db *gorm.DB, cfg *app.Config) *PostureService {
	return &PostureService{db: db, cfg: cfg, now: time.Now}
}

// WithClock overrides the clock used in results.
func (s *PostureService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Run executes every check.
func (s *PostureService) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}

	checks := []Check{
		s.checkSuperuser(ctx),
		s.checkDefaultPassword(ctx),
		s.checkJWTSecret(),
		s.checkAccessTokenTTL(),
		s.checkLockout(),
		s.checkMFAKey(),
		s.checkSMTPTransport(),
	}

	summary := map[string]int{
		string(StatusPass): 0,
		string(StatusWarn): 0,
		string(StatusFail): 0,
	}
	for _, check := range checks {
		summary[string(check.Status)]++
	}

	return Result{CheckedAt: s.now().UTC(), Checks: checks, Summary: summary}
}

func configMissing(id string) Check {
	return Check{
		ID:          id,
		Status:      StatusWarn,
		Message:     "Configuration not loaded.",
		Remediation: "Load configuration before running the review.",
	}
}

func (s *PostureService) checkSuperuser(ctx context.Context) Check {
	const id = "superuser_present"
	if s.db == nil {
		return Check{ID: id, Status: StatusWarn, Message: "Database unavailable; superuser presence unknown."}
	}

	var count int64
	if err := s.db.WithContext(ctx).
		Model(&models.User{}).
		Where("is_superuser = ? AND is_active = ?", true, true).
		Count(&count).Error; err != nil {
		return Check{ID: id, Status: StatusWarn, Message: fmt.Sprintf("Could not count superusers: %v", err)}
	}
	if count == 0 {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     "No active superuser found.",
			Remediation: "Activate or seed a superuser so users and audit logs stay manageable.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Active superuser present.", Details: map[string]any{"count": count}}
}

func (s *PostureService) checkDefaultPassword(ctx context.Context) Check {
	const id = "superuser_default_password"
	if s.cfg == nil {
		return configMissing(id)
	}
	email := strings.ToLower(strings.TrimSpace(s.cfg.FirstUser.Email))
	if email == "" || s.db == nil {
		return Check{ID: id, Status: StatusPass, Message: "No seeded superuser to inspect."}
	}

	var user models.User
	err := s.db.WithContext(ctx).Select("hashed_password").Take(&user, "email = ?", email).Error
	if err != nil {
		return Check{ID: id, Status: StatusPass, Message: "Seeded superuser not present."}
	}
	if crypto.VerifyPassword(user.HashedPassword, DefaultSecret) {
		return Check{
			ID:          id,
			Status:      StatusFail,
			Message:     fmt.Sprintf("%s still uses the default password.", email),
			Remediation: "Change the superuser password via POST /api/auth/password.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "Seeded superuser password has been changed."}
}

func (s *PostureService) checkJWTSecret() Check {
	const id = "jwt_secret_strength"
	if s.cfg == nil {
		return configMissing(id)
	}

	secret := strings.TrimSpace(s.cfg.Auth.JWT.Secret)
	length := len(secret)
	switch {
	case length == 0:
		return Check{ID: id, Status: StatusFail, Message: "Missing JWT signing secret.",
			Remediation: "Provide a randomly generated secret of at least 32 bytes."}
	case secret == DefaultSecret:
		return Check{ID: id, Status: StatusFail, Message: "JWT signing secret is the sample default.",
			Remediation: "Replace LICENSEWATCH_AUTH_JWT_SECRET with a random value."}
	case length < 32:
		return Check{ID: id, Status: StatusFail, Message: fmt.Sprintf("JWT signing secret is too short (%d bytes).", length),
			Remediation: "Use a randomly generated secret of at least 32 bytes."}
	case length < 48:
		return Check{ID: id, Status: StatusWarn, Message: fmt.Sprintf("JWT signing secret is %d bytes. Consider 48+ bytes.", length),
			Details: map[string]any{"length": length}}
	default:
		return Check{ID: id, Status: StatusPass, Message: fmt.Sprintf("JWT signing secret length is %d bytes.", length),
			Details: map[string]any{"length": length}}
	}
}

func (s *PostureService) checkAccessTokenTTL() Check {
	const id = "access_token_ttl"
	if s.cfg == nil {
		return configMissing(id)
	}
	ttl := s.cfg.Auth.JWT.TTL
	if ttl > maxAccessTokenTTL {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     fmt.Sprintf("Access token TTL (%s) exceeds %s.", ttl, maxAccessTokenTTL),
			Remediation: "Shorten auth.jwt.access_token_ttl to limit exposure of leaked tokens.",
			Details:     map[string]any{"ttl": ttl.String()},
		}
	}
	return Check{ID: id, Status: StatusPass, Message: fmt.Sprintf("Access token TTL is %s.", ttl)}
}

func (s *PostureService) checkLockout() Check {
	const id = "login_lockout"
	if s.cfg == nil {
		return configMissing(id)
	}
	local := s.cfg.Auth.Local
	if local.LockoutThreshold <= 0 {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "Failed login lockout is disabled.",
			Remediation: "Set auth.local.lockout_threshold to slow down password guessing.",
		}
	}
	return Check{
		ID:      id,
		Status:  StatusPass,
		Message: fmt.Sprintf("Accounts lock for %s after %d failed logins.", local.LockoutDuration, local.LockoutThreshold),
	}
}

func (s *PostureService) checkMFAKey() Check {
	const id = "mfa_encryption_key"
	if s.cfg == nil {
		return configMissing(id)
	}
	if strings.TrimSpace(s.cfg.Auth.MFA.EncryptionKey) == "" {
		return Check{
			ID:          id,
			Status:      StatusWarn,
			Message:     "MFA secrets are stored unencrypted.",
			Remediation: "Set LICENSEWATCH_AUTH_MFA_ENCRYPTION_KEY to a hex or base64 AES key.",
		}
	}
	return Check{ID: id, Status: StatusPass, Message: "MFA secrets are encrypted at rest."}
}

func (s *PostureService) checkSMTPTransport() Check {
	const id = "smtp_transport"
	if s.cfg == nil {
		return configMissing(id)
	}
	smtp := s.cfg.Email.SMTP
	switch {
	case !smtp.Enabled:
		return Check{ID: id, Status: StatusWarn, Message: "SMTP is disabled; expiry emails are not delivered.",
			Remediation: "Configure email.smtp so license owners receive reminders."}
	case !smtp.UseTLS && smtp.Username != "":
		return Check{ID: id, Status: StatusWarn, Message: "SMTP credentials are sent without TLS.",
			Remediation: "Enable email.smtp.use_tls."}
	default:
		return Check{ID: id, Status: StatusPass, Message: fmt.Sprintf("SMTP relay %s:%d configured.", smtp.Host, smtp.Port)}
	}
}
