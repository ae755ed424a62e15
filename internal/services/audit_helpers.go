package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/charlesng35/licensewatch/pkg/metrics"
)

// recordAudit writes an audit entry after the entity write has committed.
// Failures are logged and counted; the caller's mutation stands.
func recordAudit(ctx context.Context, audit *AuditService, log *zap.Logger, entityType, entityID, action string, changes Change, actor Actor) {
	if audit == nil {
		return
	}
	if _, err := audit.LogChange(ctx, entityType, entityID, action, changes, actor.userIDPtr()); err != nil {
		metrics.AuditWriteFailures.Inc()
		if log != nil {
			log.Warn("audit write failed after commit",
				zap.String("entity_type", entityType),
				zap.String("entity_id", entityID),
				zap.String("action", action),
				zap.Error(err),
			)
		}
	}
}
