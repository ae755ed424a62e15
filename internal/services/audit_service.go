package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/auditctx"
	"github.com/charlesng35/licensewatch/internal/models"
)

// Audit actions recorded for entity mutations.
const (
	AuditActionCreate = "create"
	AuditActionUpdate = "update"
)

// Change is the structured payload stored in an audit entry.
// Implementations are CreateChange and UpdateChange.
type Change interface {
	Payload() map[string]any
	change()
}

// CreateChange records the fields submitted when an entity was created.
type CreateChange struct {
	InitialState map[string]any
}

func (c CreateChange) Payload() map[string]any {
	return map[string]any{"initial_state": nonNilMap(c.InitialState)}
}

func (CreateChange) change() {}

// UpdateChange records the full state before an update and the fields the caller supplied.
type UpdateChange struct {
	PreviousState map[string]any
	UpdatedFields map[string]any
}

func (c UpdateChange) Payload() map[string]any {
	return map[string]any{
		"previous_state": nonNilMap(c.PreviousState),
		"updated_fields": nonNilMap(c.UpdatedFields),
	}
}

func (UpdateChange) change() {}

func nonNilMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

// AuditFilters encapsulates optional filters when querying audit logs.
type AuditFilters struct {
	EntityType string
	EntityID   string
	Action     string
	UserID     string
	Since      *time.Time
	Until      *time.Time
}

// AuditListOptions controls pagination and filtering for audit queries.
type AuditListOptions struct {
	Page
	Filters AuditFilters
}

// AuditService persists and retrieves audit log entries.
type AuditService struct {
	db  *gorm.DB
	now Clock
}

// AuditOption customises an AuditService.
type AuditOption func(*AuditService)

// WithAuditClock overrides the clock used to timestamp entries.
func WithAuditClock(clock Clock) AuditOption {
	return func(s *AuditService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// NewAuditService constructs an AuditService using the provided database handle.
func NewAuditService(db *gorm.DB, opts ...AuditOption) (*AuditService, error) {
	if db == nil {
		return nil, errors.New("audit service: db is required")
	}
	svc := &AuditService{db: db, now: systemClock}
	for _, opt := range opts {
		opt(svc)
	}
	return svc, nil
}

// LogChange durably records a single change to an entity. The timestamp is
// assigned here; callers never supply it.
func (s *AuditService) LogChange(ctx context.Context, entityType, entityID, action string, changes Change, userID *string) (*models.AuditLog, error) {
	ctx = ensureContext(ctx)

	entityType = strings.TrimSpace(entityType)
	entityID = strings.TrimSpace(entityID)
	action = strings.TrimSpace(action)
	if entityType == "" {
		return nil, errors.New("audit service: entity type is required")
	}
	if entityID == "" {
		return nil, errors.New("audit service: entity id is required")
	}
	if action == "" {
		return nil, errors.New("audit service: action is required")
	}
	if changes == nil {
		return nil, errors.New("audit service: changes are required")
	}

	encoded, err := json.Marshal(changes.Payload())
	if err != nil {
		return nil, fmt.Errorf("audit service: marshal changes: %w", err)
	}

	entry := &models.AuditLog{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Changes:    datatypes.JSON(encoded),
		Timestamp:  s.now().UTC(),
		UserID:     trimmedPtr(userID),
	}
	if req, ok := auditctx.FromContext(ctx); ok {
		entry.IPAddress = truncate(req.IPAddress, 64)
		entry.UserAgent = truncate(req.UserAgent, 255)
	}

	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return nil, fmt.Errorf("audit service: create entry: %w", err)
	}
	return entry, nil
}

func truncate(value string, max int) string {
	if len(value) > max {
		return value[:max]
	}
	return value
}

// GetEntityHistory returns audit entries for one entity, newest first.
func (s *AuditService) GetEntityHistory(ctx context.Context, entityType, entityID string, page Page) ([]models.AuditLog, error) {
	ctx = ensureContext(ctx)
	page = page.normalise()

	var logs []models.AuditLog
	err := s.db.WithContext(ctx).
		Where("entity_type = ? AND entity_id = ?", strings.TrimSpace(entityType), strings.TrimSpace(entityID)).
		Order("timestamp DESC").
		Offset(page.Skip).
		Limit(page.Limit).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("audit service: entity history: %w", err)
	}
	return logs, nil
}

// List returns paginated audit logs ordered by timestamp descending.
func (s *AuditService) List(ctx context.Context, opts AuditListOptions) ([]models.AuditLog, int64, error) {
	ctx = ensureContext(ctx)
	page := opts.Page.normalise()

	var (
		results []models.AuditLog
		total   int64
	)

	query := s.db.WithContext(ctx).Model(&models.AuditLog{})
	query = applyAuditFilters(query, opts.Filters)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: count logs: %w", err)
	}

	if err := query.
		Order("timestamp DESC").
		Offset(page.Skip).
		Limit(page.Limit).
		Find(&results).Error; err != nil {
		return nil, 0, fmt.Errorf("audit service: list logs: %w", err)
	}

	return results, total, nil
}

// CleanupOlderThan removes audit logs older than the supplied retention window (in days).
func (s *AuditService) CleanupOlderThan(ctx context.Context, retentionDays int) (int64, error) {
	ctx = ensureContext(ctx)

	if retentionDays <= 0 {
		return 0, errors.New("audit service: retentionDays must be positive")
	}

	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)

	result := s.db.WithContext(ctx).Where("timestamp < ?", cutoff).Delete(&models.AuditLog{})
	if result.Error != nil {
		return 0, fmt.Errorf("audit service: cleanup logs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

// DecodeChanges unmarshals the stored changes column.
func DecodeChanges(entry models.AuditLog) (map[string]any, error) {
	if len(entry.Changes) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(entry.Changes, &out); err != nil {
		return nil, fmt.Errorf("audit service: decode changes: %w", err)
	}
	return out, nil
}

func applyAuditFilters(query *gorm.DB, filters AuditFilters) *gorm.DB {
	if filters.EntityType != "" {
		query = query.Where("entity_type = ?", filters.EntityType)
	}
	if filters.EntityID != "" {
		query = query.Where("entity_id = ?", filters.EntityID)
	}
	if filters.Action != "" {
		query = query.Where("action = ?", filters.Action)
	}
	if filters.UserID != "" {
		query = query.Where("user_id = ?", filters.UserID)
	}
	if filters.Since != nil {
		query = query.Where("timestamp >= ?", filters.Since.UTC())
	}
	if filters.Until != nil {
		query = query.Where("timestamp <= ?", filters.Until.UTC())
	}
	return query
}
