package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/pkg/crypto"
)

const (
	defaultLockoutThreshold = 5
	defaultLockoutDuration  = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrAccountLocked      = errors.New("auth: account locked")
	ErrAccountDisabled    = errors.New("auth: account disabled")
)

// LockedError reports when a locked account may try again. It matches
// ErrAccountLocked with errors.Is.
type LockedError struct {
	Until time.Time
	// RetryAfter is Until minus the time of the attempt, rounded up to whole seconds.
	RetryAfter time.Duration
}

func newLockedError(until, now time.Time) *LockedError {
	wait := until.Sub(now)
	if wait < 0 {
		wait = 0
	}
	return &LockedError{Until: until, RetryAfter: (wait + time.Second - 1).Truncate(time.Second)}
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("auth: account locked until %s", e.Until.Format(time.RFC3339))
}

func (e *LockedError) Is(target error) bool {
	return target == ErrAccountLocked
}

// LocalConfig tunes lockout. Zero values fall back to 5 attempts and 15 minutes.
type LocalConfig struct {
	LockoutThreshold int
	LockoutDuration  time.Duration
	Clock            func() time.Time
}

// AuthenticateInput carries the credentials submitted to the login endpoint.
type AuthenticateInput struct {
	Email    string
	Password string
}

// LocalProvider checks email/password logins against the users table and
// locks an account after too many consecutive failures.
type LocalProvider struct {
	db        *gorm.DB
	now       func() time.Time
	threshold int
	lockFor   time.Duration

	decoyOnce sync.Once
	decoyHash string
}

func NewLocalProvider(db *gorm.DB, cfg LocalConfig) (*LocalProvider, error) {
	if db == nil {
		return nil, errors.New("local provider: db is required")
	}
	p := &LocalProvider{
		db:        db,
		now:       cfg.Clock,
		threshold: cfg.LockoutThreshold,
		lockFor:   cfg.LockoutDuration,
	}
	if p.now == nil {
		p.now = time.Now
	}
	if p.threshold <= 0 {
		p.threshold = defaultLockoutThreshold
	}
	if p.lockFor <= 0 {
		p.lockFor = defaultLockoutDuration
	}
	return p, nil
}

// Authenticate returns the user for a correct email/password pair.
// Whether an account is disabled is only revealed to callers who know the password.
func (p *LocalProvider) Authenticate(ctx context.Context, input AuthenticateInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" || input.Password == "" {
		return nil, ErrInvalidCredentials
	}

	db := p.db.WithContext(ctx)
	var user models.User
	switch err := db.Where("email = ?", email).Take(&user).Error; {
	case errors.Is(err, gorm.ErrRecordNotFound):
		p.burnDecoy(input.Password)
		return nil, ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("local provider: query user: %w", err)
	}

	now := p.now().UTC()
	if user.LockedUntil != nil {
		if user.LockedUntil.After(now) {
			return nil, newLockedError(*user.LockedUntil, now)
		}
		if err := p.clearLock(db, &user); err != nil {
			return nil, err
		}
	}

	if !crypto.VerifyPassword(user.HashedPassword, input.Password) {
		return nil, p.recordFailure(db, &user, now)
	}
	if !user.IsActive {
		return nil, ErrAccountDisabled
	}

	if err := db.Model(&user).Updates(map[string]any{"failed_attempts": 0, "last_login_at": now}).Error; err != nil {
		return nil, fmt.Errorf("local provider: record login: %w", err)
	}
	user.FailedAttempts = 0
	user.LastLoginAt = &now
	return &user, nil
}

func (p *LocalProvider) clearLock(db *gorm.DB, user *models.User) error {
	if err := db.Model(user).Updates(map[string]any{"locked_until": nil, "failed_attempts": 0}).Error; err != nil {
		return fmt.Errorf("local provider: clear lock: %w", err)
	}
	user.LockedUntil = nil
	user.FailedAttempts = 0
	return nil
}

// recordFailure bumps the counter in SQL so concurrent bad logins are all
// counted, then locks the account once the threshold is reached.
func (p *LocalProvider) recordFailure(db *gorm.DB, user *models.User, now time.Time) error {
	scoped := db.Model(&models.User{}).Where("id = ?", user.ID)
	if err := scoped.Update("failed_attempts", gorm.Expr("failed_attempts + 1")).Error; err != nil {
		return fmt.Errorf("local provider: count failure: %w", err)
	}

	var attempts int
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Select("failed_attempts").Scan(&attempts).Error; err != nil {
		return fmt.Errorf("local provider: read failures: %w", err)
	}
	user.FailedAttempts = attempts
	if attempts < p.threshold {
		return ErrInvalidCredentials
	}

	until := now.Add(p.lockFor)
	if err := db.Model(&models.User{}).Where("id = ?", user.ID).Update("locked_until", until).Error; err != nil {
		return fmt.Errorf("local provider: lock account: %w", err)
	}
	user.LockedUntil = &until
	return newLockedError(until, now)
}

// burnDecoy spends a bcrypt comparison on unknown emails so response time
// does not reveal which addresses are registered.
func (p *LocalProvider) burnDecoy(password string) {
	p.decoyOnce.Do(func() {
		p.decoyHash, _ = crypto.HashPassword("licensewatch-decoy-password")
	})
	if p.decoyHash != "" {
		_ = crypto.VerifyPassword(p.decoyHash, password)
	}
}
