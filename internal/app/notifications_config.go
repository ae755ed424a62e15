package app

import (
	"strings"
	"time"

	"github.com/charlesng35/licensewatch/internal/services"
)

const defaultLeaseTTL = 10 * time.Minute

// NotificationServiceConfig converts NotificationsConfig into the service representation.
func (c NotificationsConfig) NotificationServiceConfig() services.NotificationConfig {
	return services.NotificationConfig{
		ProjectName:  strings.TrimSpace(c.ProjectName),
		FrontendHost: strings.TrimSpace(c.FrontendHost),
	}
}

// LeaseTTL returns the configured lease duration, falling back to the default.
func (c NotificationsConfig) LeaseTTL() time.Duration {
	if c.Lease.TTL <= 0 {
		return defaultLeaseTTL
	}
	return c.Lease.TTL
}
