package services

import (
	"context"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/models"
)

// DefaultPageLimit is applied when a caller does not supply a positive limit.
const DefaultPageLimit = 100

// Actor identifies the authenticated user performing an operation.
type Actor struct {
	UserID      string
	IsSuperuser bool
}

// SystemActor is used by background jobs that act on every owner's data.
var SystemActor = Actor{IsSuperuser: true}

// userIDPtr returns the actor's id for audit attribution, nil for system jobs.
func (a Actor) userIDPtr() *string {
	id := strings.TrimSpace(a.UserID)
	if id == "" {
		return nil
	}
	return &id
}

// Page carries skip/limit pagination.
type Page struct {
	Skip  int
	Limit int
}

func (p Page) normalise() Page {
	if p.Skip < 0 {
		p.Skip = 0
	}
	if p.Limit <= 0 {
		p.Limit = DefaultPageLimit
	}
	return p
}

// Clock returns the current time. Services use it so tests can pin "now".
type Clock func() time.Time

func systemClock() time.Time {
	return time.Now().UTC()
}

func ensureContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

// scopeDevices restricts a device query to rows the actor registered.
func scopeDevices(query *gorm.DB, actor Actor) *gorm.DB {
	if actor.IsSuperuser {
		return query
	}
	return query.Where("devices.added_by_id = ?", actor.UserID)
}

// scopeLicenses restricts a license query to licenses on the actor's devices.
func scopeLicenses(query *gorm.DB, actor Actor) *gorm.DB {
	if actor.IsSuperuser {
		return query
	}
	owned := query.Session(&gorm.Session{NewDB: true}).
		Model(&models.Device{}).
		Select("id").
		Where("added_by_id = ?", actor.UserID)
	return query.Where("licenses.device_id IN (?)", owned)
}

// scopeNotifications restricts a notification query to the actor's notices.
func scopeNotifications(query *gorm.DB, actor Actor) *gorm.DB {
	if actor.IsSuperuser {
		return query
	}
	return query.Where("notifications.user_id = ?", actor.UserID)
}

func trimmedPtr(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
