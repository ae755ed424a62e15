package mfa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/pkg/crypto"
)

const (
	defaultIssuer     = "LicenseWatch"
	defaultQRCodeSize = 256
)

// ErrNotConfigured is returned when a user has never run MFA setup.
var ErrNotConfigured = errors.New("totp: mfa not configured")

// Option allows customising the TOTP service.
type Option func(*TOTPService)

// WithIssuer overrides the default issuer string encoded in provisioning URIs.
func WithIssuer(issuer string) Option {
	return func(s *TOTPService) {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = issuer
		}
	}
}

// WithQRCodeSize controls the pixel size of generated QR codes.
func WithQRCodeSize(size int) Option {
	return func(s *TOTPService) {
		if size > 0 {
			s.qrCodeSize = size
		}
	}
}

// WithClock injects a custom clock, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *TOTPService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// SetupResult is handed back to the user once so an authenticator app can be enrolled.
type SetupResult struct {
	Secret string
	URL    string
	QRCode []byte
}

// Status summarises a user's MFA enrolment.
type Status struct {
	Configured bool       `json:"configured"`
	Enabled    bool       `json:"enabled"`
	VerifiedAt *time.Time `json:"verified_at,omitempty"`
}

// TOTPService manages user MFA secrets and QR provisioning.
type TOTPService struct {
	db     *gorm.DB
	sealer *crypto.Sealer

	issuer     string
	qrCodeSize int
	now        func() time.Time
}

// NewTOTPService constructs a TOTP service backed by the provided database. Secrets are
// stored in plain text when encryptionKey is empty.
func NewTOTPService(db *gorm.DB, encryptionKey []byte, opts ...Option) (*TOTPService, error) {
	if db == nil {
		return nil, errors.New("totp: db is required")
	}

	service := &TOTPService{
		db:         db,
		issuer:     defaultIssuer,
		qrCodeSize: defaultQRCodeSize,
		now:        time.Now,
	}

	if len(encryptionKey) > 0 {
		sealer, err := crypto.NewSealer(encryptionKey)
		if err != nil {
			return nil, fmt.Errorf("totp: encryption key: %w", err)
		}
		service.sealer = sealer
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Setup provisions a fresh TOTP secret for the user. Any previous secret is replaced and
// MFA stays disabled until a code is verified.
func (s *TOTPService) Setup(ctx context.Context, userID, email string) (*SetupResult, error) {
	userID = strings.TrimSpace(userID)
	email = strings.TrimSpace(email)
	if userID == "" || email == "" {
		return nil, errors.New("totp: user id and email are required")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: email,
	})
	if err != nil {
		return nil, fmt.Errorf("totp: generate key: %w", err)
	}

	stored, encrypted, err := s.seal(userID, key.Secret())
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var secret models.MFASecret
		err := tx.Where("user_id = ?", userID).First(&secret).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			secret = models.MFASecret{UserID: userID, Secret: stored, Encrypted: encrypted}
			if err := tx.Create(&secret).Error; err != nil {
				return fmt.Errorf("totp: create mfa secret: %w", err)
			}
		case err != nil:
			return fmt.Errorf("totp: load mfa secret: %w", err)
		default:
			if err := tx.Model(&secret).Updates(map[string]any{
				"secret":       stored,
				"encrypted":    encrypted,
				"verified_at":  nil,
				"last_used_at": nil,
			}).Error; err != nil {
				return fmt.Errorf("totp: update mfa secret: %w", err)
			}
		}

		if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("mfa_enabled", false).Error; err != nil {
			return fmt.Errorf("totp: reset mfa flag: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	png, err := s.GenerateQRCode(key)
	if err != nil {
		return nil, fmt.Errorf("totp: render qr code: %w", err)
	}

	return &SetupResult{Secret: key.Secret(), URL: key.URL(), QRCode: png}, nil
}

// VerifyCode checks a submitted TOTP code against the stored secret. The first successful
// verification enables MFA for the user.
func (s *TOTPService) VerifyCode(ctx context.Context, userID, code string) (bool, error) {
	userID = strings.TrimSpace(userID)
	code = strings.TrimSpace(code)
	if userID == "" || code == "" {
		return false, errors.New("totp: user id and code are required")
	}

	secret, err := s.loadSecret(ctx, userID)
	if err != nil {
		return false, err
	}

	raw, err := s.open(secret)
	if err != nil {
		return false, err
	}

	now := s.now().UTC()
	valid, err := totp.ValidateCustom(code, raw, now, totp.ValidateOpts{
		Period:    30,
		Skew:      1,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil || !valid {
		return false, nil
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		updates := map[string]any{"last_used_at": now}
		if secret.VerifiedAt == nil {
			updates["verified_at"] = now
		}
		if err := tx.Model(secret).Updates(updates).Error; err != nil {
			return fmt.Errorf("totp: update last used: %w", err)
		}
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("mfa_enabled", true).Error; err != nil {
			return fmt.Errorf("totp: enable mfa: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	return true, nil
}

// Status reports whether the user has a secret on file and whether MFA is enforced at login.
func (s *TOTPService) Status(ctx context.Context, userID string) (Status, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Select("id", "mfa_enabled").Take(&user, "id = ?", strings.TrimSpace(userID)).Error; err != nil {
		return Status{}, fmt.Errorf("totp: load user: %w", err)
	}

	secret, err := s.loadSecret(ctx, user.ID)
	if errors.Is(err, ErrNotConfigured) {
		return Status{Enabled: user.MFAEnabled}, nil
	}
	if err != nil {
		return Status{}, err
	}

	return Status{Configured: true, Enabled: user.MFAEnabled, VerifiedAt: secret.VerifiedAt}, nil
}

// Disable removes the stored secret and turns MFA off for the user.
func (s *TOTPService) Disable(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("totp: user id is required")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", userID).Delete(&models.MFASecret{}).Error; err != nil {
			return fmt.Errorf("totp: delete mfa secret: %w", err)
		}
		if err := tx.Model(&models.User{}).Where("id = ?", userID).Update("mfa_enabled", false).Error; err != nil {
			return fmt.Errorf("totp: disable mfa: %w", err)
		}
		return nil
	})
}

// GenerateQRCode returns a PNG-encoded QR code for the provided TOTP key.
func (s *TOTPService) GenerateQRCode(key *otp.Key) ([]byte, error) {
	if key == nil {
		return nil, errors.New("totp: key is required")
	}
	return qrcode.Encode(key.String(), qrcode.Medium, s.qrCodeSize)
}

func (s *TOTPService) seal(userID, raw string) (string, bool, error) {
	if s.sealer == nil {
		return raw, false, nil
	}
	sealed, err := s.sealer.Seal(raw, userID)
	if err != nil {
		return "", false, fmt.Errorf("totp: encrypt secret: %w", err)
	}
	return sealed, true, nil
}

func (s *TOTPService) open(secret *models.MFASecret) (string, error) {
	if !secret.Encrypted {
		return secret.Secret, nil
	}
	if s.sealer == nil {
		return "", errors.New("totp: secret is encrypted but no key is configured")
	}
	raw, err := s.sealer.Open(secret.Secret, secret.UserID)
	if err != nil {
		return "", fmt.Errorf("totp: decrypt secret: %w", err)
	}
	return raw, nil
}

func (s *TOTPService) loadSecret(ctx context.Context, userID string) (*models.MFASecret, error) {
	if userID == "" {
		return nil, errors.New("totp: user id is required")
	}

	var secret models.MFASecret
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&secret).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotConfigured
		}
		return nil, fmt.Errorf("totp: load secret: %w", err)
	}

	return &secret, nil
}
