package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/models"
	apperrors "github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/validator"
)

// CreateDeviceInput describes a device registration.
type CreateDeviceInput struct {
	ServiceTag string
	DeviceType string
}

// UpdateDeviceInput carries a partial device update.
type UpdateDeviceInput struct {
	ServiceTag *string
	DeviceType *string
}

// DeviceStats summarises device counts visible to an actor.
type DeviceStats struct {
	Total              int64 `json:"total"`
	WithActiveLicense  int64 `json:"with_active_license"`
	WithoutLicense     int64 `json:"without_license"`
	WithExpiredLicense int64 `json:"with_only_expired_licenses"`
}

// DeviceService manages device registrations.
type DeviceService struct {
	db  *gorm.DB
	now Clock
}

// DeviceOption customises a DeviceService.
type DeviceOption func(*DeviceService)

// WithDeviceClock overrides the clock used to classify license status in stats.
func WithDeviceClock(clock Clock) DeviceOption {
	return func(s *DeviceService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewDeviceService constructs a DeviceService.
func NewDeviceService(db *gorm.DB, opts ...DeviceOption) (*DeviceService, error) {
	if db == nil {
		return nil, errors.New("device service: db is required")
	}
	svc := &DeviceService{db: db, now: systemClock}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// Create registers a device owned by the actor.
func (s *DeviceService) Create(ctx context.Context, actor Actor, input CreateDeviceInput) (*models.Device, error) {
	ctx = ensureContext(ctx)

	tag := strings.TrimSpace(input.ServiceTag)
	deviceType := strings.TrimSpace(input.DeviceType)
	if !validator.ValidServiceTag(tag) {
		return nil, apperrors.NewBadRequest("service_tag is invalid")
	}
	if deviceType == "" {
		return nil, apperrors.NewBadRequest("device_type is required")
	}

	device := &models.Device{
		ServiceTag: tag,
		DeviceType: deviceType,
		AddedByID:  actor.userIDPtr(),
	}

	if err := s.db.WithContext(ctx).Create(device).Error; err != nil {
		return nil, conflictOr(err, msgDuplicateServiceTag, "device service: create device")
	}
	return device, nil
}

// Get returns a device with its licenses.
func (s *DeviceService) Get(ctx context.Context, actor Actor, id string) (*models.Device, error) {
	ctx = ensureContext(ctx)

	var device models.Device
	err := scopeDevices(s.db.WithContext(ctx).Model(&models.Device{}), actor).
		Preload("Licenses", func(tx *gorm.DB) *gorm.DB {
			return tx.Order("expiration_date ASC")
		}).
		Where("devices.id = ?", strings.TrimSpace(id)).
		Take(&device).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrDeviceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("device service: get device: %w", err)
	}
	return &device, nil
}

// List returns devices visible to the actor.
func (s *DeviceService) List(ctx context.Context, actor Actor, page Page) ([]models.Device, int64, error) {
	return s.list(ctx, actor, page, "")
}

// SearchByServiceTag returns devices whose service tag contains query (case-insensitive).
func (s *DeviceService) SearchByServiceTag(ctx context.Context, actor Actor, query string, page Page) ([]models.Device, int64, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, 0, apperrors.NewBadRequest("service_tag is required")
	}
	return s.list(ctx, actor, page, query)
}

func (s *DeviceService) list(ctx context.Context, actor Actor, page Page, tag string) ([]models.Device, int64, error) {
	ctx = ensureContext(ctx)
	page = page.normalise()

	query := scopeDevices(s.db.WithContext(ctx).Model(&models.Device{}), actor)
	if tag != "" {
		query = query.Where("LOWER(devices.service_tag) LIKE ?", "%"+strings.ToLower(tag)+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("device service: count devices: %w", err)
	}

	var devices []models.Device
	if err := query.
		Order("devices.service_tag ASC").
		Offset(page.Skip).
		Limit(page.Limit).
		Find(&devices).Error; err != nil {
		return nil, 0, fmt.Errorf("device service: list devices: %w", err)
	}
	return devices, total, nil
}

// Update applies a partial update to a device.
func (s *DeviceService) Update(ctx context.Context, actor Actor, id string, input UpdateDeviceInput) (*models.Device, error) {
	ctx = ensureContext(ctx)

	updates := map[string]any{}
	if input.ServiceTag != nil {
		tag := strings.TrimSpace(*input.ServiceTag)
		if !validator.ValidServiceTag(tag) {
			return nil, apperrors.NewBadRequest("service_tag is invalid")
		}
		updates["service_tag"] = tag
	}
	if input.DeviceType != nil {
		deviceType := strings.TrimSpace(*input.DeviceType)
		if deviceType == "" {
			return nil, apperrors.NewBadRequest("device_type cannot be empty")
		}
		updates["device_type"] = deviceType
	}

	var device models.Device
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := scopeDevices(tx.Model(&models.Device{}), actor).
			Where("devices.id = ?", strings.TrimSpace(id)).
			Take(&device).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrDeviceNotFound
		}
		if err != nil {
			return fmt.Errorf("device service: load device: %w", err)
		}
		if len(updates) == 0 {
			return nil
		}
		if err := tx.Model(&device).Updates(updates).Error; err != nil {
			return conflictOr(err, msgDuplicateServiceTag, "device service: update device")
		}
		return tx.Take(&device, "id = ?", device.ID).Error
	})
	if err != nil {
		return nil, err
	}
	return &device, nil
}

// Delete removes a device; its licenses, their history and notifications cascade.
func (s *DeviceService) Delete(ctx context.Context, actor Actor, id string) error {
	ctx = ensureContext(ctx)

	result := scopeDevices(s.db.WithContext(ctx).Model(&models.Device{}), actor).
		Where("devices.id = ?", strings.TrimSpace(id)).
		Delete(&models.Device{})
	if result.Error != nil {
		return fmt.Errorf("device service: delete device: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// Stats counts devices by license coverage.
func (s *DeviceService) Stats(ctx context.Context, actor Actor) (DeviceStats, error) {
	ctx = ensureContext(ctx)
	now := s.now().UTC()

	base := func() *gorm.DB {
		return scopeDevices(s.db.WithContext(ctx).Model(&models.Device{}), actor)
	}
	licensed := func(where string, args ...any) *gorm.DB {
		return s.db.WithContext(ctx).Model(&models.License{}).Select("device_id").Where(where, args...)
	}

	var stats DeviceStats
	if err := base().Count(&stats.Total).Error; err != nil {
		return stats, fmt.Errorf("device service: count devices: %w", err)
	}
	if err := base().
		Where("devices.id IN (?)", licensed("expiration_date > ?", now)).
		Count(&stats.WithActiveLicense).Error; err != nil {
		return stats, fmt.Errorf("device service: count licensed devices: %w", err)
	}
	if err := base().
		Where("devices.id NOT IN (?)", licensed("1 = 1")).
		Count(&stats.WithoutLicense).Error; err != nil {
		return stats, fmt.Errorf("device service: count unlicensed devices: %w", err)
	}
	stats.WithExpiredLicense = stats.Total - stats.WithActiveLicense - stats.WithoutLicense
	return stats, nil
}
