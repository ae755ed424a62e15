package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/licensewatch/internal/services"
	"github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/response"
)

type AuditHandler struct {
	svc *services.AuditService
}

func NewAuditHandler(svc *services.AuditService) *AuditHandler {
	return &AuditHandler{svc: svc}
}

// GET /api/audit
func (h *AuditHandler) List(c *gin.Context) {
	filters := services.AuditFilters{
		EntityType: strings.TrimSpace(c.Query("entity_type")),
		EntityID:   strings.TrimSpace(c.Query("entity_id")),
		Action:     strings.TrimSpace(c.Query("action")),
		UserID:     strings.TrimSpace(c.Query("user_id")),
	}
	for key, dest := range map[string]**time.Time{"since": &filters.Since, "until": &filters.Until} {
		raw := strings.TrimSpace(c.Query(key))
		if raw == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, errors.NewBadRequest(key+" must be an RFC 3339 timestamp"))
			return
		}
		*dest = &t
	}

	page := pageQuery(c)
	logs, total, err := h.svc.List(requestContext(c), services.AuditListOptions{Page: page, Filters: filters})
	if err != nil {
		fail(c, err)
		return
	}
	listResponse(c, logs, page, total)
}

// GET /api/audit/:entity_type/:entity_id
func (h *AuditHandler) EntityHistory(c *gin.Context) {
	entityType := strings.TrimSpace(c.Param("entity_type"))
	entityID := strings.TrimSpace(c.Param("entity_id"))
	if entityType == "" || entityID == "" {
		response.Error(c, errors.NewBadRequest("entity type and id are required"))
		return
	}

	logs, err := h.svc.GetEntityHistory(requestContext(c), entityType, entityID, pageQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, logs)
}
