package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/models"
	apperrors "github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/logger"
)

// AuditEntityLicense is the entity type recorded for license audit entries.
const AuditEntityLicense = "license"

// ExpiryHorizon is the look-ahead window for "expiring soon" queries and the notification sweep.
const ExpiryHorizon = 30 * 24 * time.Hour

var (
	// ErrLicenseNotFound indicates the license does not exist or is not visible to the caller.
	ErrLicenseNotFound = apperrors.New("LICENSE_NOT_FOUND", "License not found", http.StatusNotFound)
	// ErrDeviceNotFound indicates the device does not exist or is not visible to the caller.
	ErrDeviceNotFound = apperrors.New("DEVICE_NOT_FOUND", "Device not found", http.StatusNotFound)
)

// CreateLicenseInput describes a new license.
type CreateLicenseInput struct {
	DeviceID       string
	LicenseType    string
	ExpirationDate time.Time
}

// UpdateLicenseInput carries a partial update; nil fields are left untouched.
type UpdateLicenseInput struct {
	DeviceID       *string
	LicenseType    *string
	ExpirationDate *time.Time
}

// LicenseStats summarises license counts visible to an actor.
type LicenseStats struct {
	Total        int64 `json:"total"`
	Active       int64 `json:"active"`
	Expired      int64 `json:"expired"`
	ExpiringSoon int64 `json:"expiring_soon"`
}

// ExpiringLicense pairs a license with its whole days until expiry.
type ExpiringLicense struct {
	License         models.License `json:"license"`
	DaysUntilExpiry int            `json:"days_until_expiry"`
}

// LicenseService manages licenses and records their history and audit trail.
type LicenseService struct {
	db    *gorm.DB
	audit *AuditService
	now   Clock
	log   *zap.Logger
}

// LicenseOption customises a LicenseService.
type LicenseOption func(*LicenseService)

// WithLicenseClock overrides the clock used for history timestamps and expiry queries.
func WithLicenseClock(clock Clock) LicenseOption {
	return func(s *LicenseService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewLicenseService constructs a LicenseService. audit may be nil to disable audit entries.
func NewLicenseService(db *gorm.DB, audit *AuditService, opts ...LicenseOption) (*LicenseService, error) {
	if db == nil {
		return nil, errors.New("license service: db is required")
	}
	svc := &LicenseService{
		db:    db,
		audit: audit,
		now:   systemClock,
		log:   logger.WithModule("licenses"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create persists a license and its INSERT history row in one transaction,
// then records a "create" audit entry with the submitted fields.
func (s *LicenseService) Create(ctx context.Context, actor Actor, input CreateLicenseInput) (*models.License, error) {
	ctx = ensureContext(ctx)

	deviceID := strings.TrimSpace(input.DeviceID)
	licenseType := strings.TrimSpace(input.LicenseType)
	if deviceID == "" {
		return nil, apperrors.NewBadRequest("device_id is required")
	}
	if licenseType == "" {
		return nil, apperrors.NewBadRequest("license_type is required")
	}
	if input.ExpirationDate.IsZero() {
		return nil, apperrors.NewBadRequest("expiration_date is required")
	}

	license := &models.License{
		DeviceID:       deviceID,
		LicenseType:    licenseType,
		ExpirationDate: input.ExpirationDate.UTC(),
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := ensureDeviceVisible(tx, actor, deviceID); err != nil {
			return err
		}
		if err := tx.Create(license).Error; err != nil {
			return fmt.Errorf("license service: create license: %w", err)
		}
		return s.appendHistory(tx, license, models.LicenseHistoryInsert)
	})
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.audit, s.log, AuditEntityLicense, license.ID, AuditActionCreate, CreateChange{
		InitialState: map[string]any{
			"device_id":       deviceID,
			"license_type":    licenseType,
			"expiration_date": formatAuditTime(license.ExpirationDate),
		},
	}, actor)

	return license, nil
}

// Update applies the supplied fields, appends an UPDATE history row, and records
// an "update" audit entry with the prior state and the supplied fields.
func (s *LicenseService) Update(ctx context.Context, actor Actor, id string, input UpdateLicenseInput) (*models.License, error) {
	ctx = ensureContext(ctx)

	updates := map[string]any{}
	supplied := map[string]any{}

	if input.DeviceID != nil {
		deviceID := strings.TrimSpace(*input.DeviceID)
		if deviceID == "" {
			return nil, apperrors.NewBadRequest("device_id cannot be empty")
		}
		updates["device_id"] = deviceID
		supplied["device_id"] = deviceID
	}
	if input.LicenseType != nil {
		licenseType := strings.TrimSpace(*input.LicenseType)
		if licenseType == "" {
			return nil, apperrors.NewBadRequest("license_type cannot be empty")
		}
		updates["license_type"] = licenseType
		supplied["license_type"] = licenseType
	}
	if input.ExpirationDate != nil {
		if input.ExpirationDate.IsZero() {
			return nil, apperrors.NewBadRequest("expiration_date cannot be empty")
		}
		expires := input.ExpirationDate.UTC()
		updates["expiration_date"] = expires
		supplied["expiration_date"] = formatAuditTime(expires)
	}

	var (
		license  models.License
		previous map[string]any
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := findLicense(tx, actor, id, &license); err != nil {
			return err
		}
		previous = licenseState(license)

		if deviceID, ok := updates["device_id"].(string); ok && deviceID != license.DeviceID {
			if err := ensureDeviceVisible(tx, actor, deviceID); err != nil {
				return err
			}
		}

		if len(updates) > 0 {
			if err := tx.Model(&license).Updates(updates).Error; err != nil {
				return fmt.Errorf("license service: update license: %w", err)
			}
			if err := tx.Take(&license, "id = ?", license.ID).Error; err != nil {
				return fmt.Errorf("license service: reload license: %w", err)
			}
		}
		return s.appendHistory(tx, &license, models.LicenseHistoryUpdate)
	})
	if err != nil {
		return nil, err
	}

	recordAudit(ctx, s.audit, s.log, AuditEntityLicense, license.ID, AuditActionUpdate, UpdateChange{
		PreviousState: previous,
		UpdatedFields: supplied,
	}, actor)

	return &license, nil
}

// Delete removes a license; history and notifications cascade. No audit entry is written.
func (s *LicenseService) Delete(ctx context.Context, actor Actor, id string) error {
	ctx = ensureContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var license models.License
		if err := findLicense(tx, actor, id, &license); err != nil {
			return err
		}
		if err := tx.Delete(&license).Error; err != nil {
			return fmt.Errorf("license service: delete license: %w", err)
		}
		return nil
	})
}

// Get returns a license with its device.
func (s *LicenseService) Get(ctx context.Context, actor Actor, id string) (*models.License, error) {
	ctx = ensureContext(ctx)

	var license models.License
	if err := findLicense(s.db.WithContext(ctx).Preload("Device"), actor, id, &license); err != nil {
		return nil, err
	}
	return &license, nil
}

// List returns licenses visible to the actor ordered by expiration date.
func (s *LicenseService) List(ctx context.Context, actor Actor, page Page) ([]models.License, int64, error) {
	return s.list(ctx, actor, page, "")
}

// Search returns licenses whose type contains the supplied text (case-insensitive).
func (s *LicenseService) Search(ctx context.Context, actor Actor, licenseType string, page Page) ([]models.License, int64, error) {
	licenseType = strings.TrimSpace(licenseType)
	if licenseType == "" {
		return nil, 0, apperrors.NewBadRequest("license_type is required")
	}
	return s.list(ctx, actor, page, licenseType)
}

func (s *LicenseService) list(ctx context.Context, actor Actor, page Page, licenseType string) ([]models.License, int64, error) {
	ctx = ensureContext(ctx)
	page = page.normalise()

	query := scopeLicenses(s.db.WithContext(ctx).Model(&models.License{}), actor)
	if licenseType != "" {
		query = query.Where("LOWER(licenses.license_type) LIKE ?", "%"+strings.ToLower(licenseType)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("license service: count licenses: %w", err)
	}

	var licenses []models.License
	if err := query.
		Preload("Device").
		Order("licenses.expiration_date ASC").
		Offset(page.Skip).
		Limit(page.Limit).
		Find(&licenses).Error; err != nil {
		return nil, 0, fmt.Errorf("license service: list licenses: %w", err)
	}
	return licenses, total, nil
}

// ListByDevice returns the licenses attached to a device.
func (s *LicenseService) ListByDevice(ctx context.Context, actor Actor, deviceID string) ([]models.License, error) {
	ctx = ensureContext(ctx)

	if err := ensureDeviceVisible(s.db.WithContext(ctx), actor, deviceID); err != nil {
		return nil, err
	}

	var licenses []models.License
	if err := s.db.WithContext(ctx).
		Where("device_id = ?", strings.TrimSpace(deviceID)).
		Order("expiration_date ASC").
		Find(&licenses).Error; err != nil {
		return nil, fmt.Errorf("license service: list device licenses: %w", err)
	}
	return licenses, nil
}

// Expiring returns licenses expiring in (now, now+within], soonest first.
func (s *LicenseService) Expiring(ctx context.Context, actor Actor, within time.Duration) ([]ExpiringLicense, error) {
	ctx = ensureContext(ctx)
	if within <= 0 {
		within = ExpiryHorizon
	}

	now := s.now().UTC()
	var licenses []models.License
	err := scopeLicenses(s.db.WithContext(ctx).Model(&models.License{}), actor).
		Preload("Device").
		Where("licenses.expiration_date > ? AND licenses.expiration_date <= ?", now, now.Add(within)).
		Order("licenses.expiration_date ASC").
		Find(&licenses).Error
	if err != nil {
		return nil, fmt.Errorf("license service: expiring licenses: %w", err)
	}

	out := make([]ExpiringLicense, 0, len(licenses))
	for i := range licenses {
		out = append(out, ExpiringLicense{
			License:         licenses[i],
			DaysUntilExpiry: licenses[i].DaysUntil(now),
		})
	}
	return out, nil
}

// Stats counts licenses visible to the actor by lifecycle state.
func (s *LicenseService) Stats(ctx context.Context, actor Actor) (LicenseStats, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()

	base := func() *gorm.DB {
		return scopeLicenses(s.db.WithContext(ctx).Model(&models.License{}), actor)
	}

	var stats LicenseStats
	if err := base().Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("license service: count licenses: %w", err)
	}
	if err := base().Where("licenses.expiration_date > ?", now).Count(&stats.Active).Error; err != nil {
		return stats, fmt.Errorf("license service: count active licenses: %w", err)
	}
	stats.Expired = stats.Total - stats.Active
	if err := base().
		Where("licenses.expiration_date > ? AND licenses.expiration_date <= ?", now, now.Add(ExpiryHorizon)).
		Count(&stats.ExpiringSoon).Error; err != nil {
		return stats, fmt.Errorf("license service: count expiring licenses: %w", err)
	}
	return stats, nil
}

// History returns the license's history rows, newest first.
func (s *LicenseService) History(ctx context.Context, actor Actor, id string) ([]models.LicenseHistory, error) {
	ctx = ensureContext(ctx)

	var license models.License
	if err := findLicense(s.db.WithContext(ctx), actor, id, &license); err != nil {
		return nil, err
	}

	var rows []models.LicenseHistory
	if err := s.db.WithContext(ctx).
		Where("license_id = ?", license.ID).
		Order("timestamp DESC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("license service: history: %w", err)
	}
	return rows, nil
}

func (s *LicenseService) appendHistory(tx *gorm.DB, license *models.License, action models.LicenseHistoryAction) error {
	row := &models.LicenseHistory{
		LicenseID: license.ID,
		DeviceID:  license.DeviceID,
		Action:    action,
		Timestamp: s.now().UTC(),
	}
	if err := tx.Create(row).Error; err != nil {
		return fmt.Errorf("license service: append history: %w", err)
	}
	return nil
}

func findLicense(query *gorm.DB, actor Actor, id string, dest *models.License) error {
	id = strings.TrimSpace(id)
	if id == "" {
		return ErrLicenseNotFound
	}
	err := scopeLicenses(query.Model(&models.License{}), actor).
		Where("licenses.id = ?", id).
		Take(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrLicenseNotFound
	}
	if err != nil {
		return fmt.Errorf("license service: load license: %w", err)
	}
	return nil
}

func ensureDeviceVisible(query *gorm.DB, actor Actor, deviceID string) error {
	var count int64
	err := scopeDevices(query.Model(&models.Device{}), actor).
		Where("devices.id = ?", strings.TrimSpace(deviceID)).
		Count(&count).Error
	if err != nil {
		return fmt.Errorf("license service: load device: %w", err)
	}
	if count == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

func licenseState(license models.License) map[string]any {
	return map[string]any{
		"id":              license.ID,
		"device_id":       license.DeviceID,
		"license_type":    license.LicenseType,
		"expiration_date": formatAuditTime(license.ExpirationDate),
	}
}

func formatAuditTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
