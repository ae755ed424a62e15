package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/internal/services"
	"github.com/charlesng35/licensewatch/pkg/response"
)

// NotificationHandler exposes HTTP endpoints for notifications.
type NotificationHandler struct {
	service *services.NotificationService
}

// NewNotificationHandler constructs a notification handler.
func NewNotificationHandler(service *services.NotificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

type createNotificationRequest struct {
	LicenseID string  `json:"license_id" validate:"required"`
	UserID    *string `json:"user_id"`
	Message   string  `json:"message" validate:"required,max=255"`
	Urgency   string  `json:"urgency" validate:"required,oneof=low medium high"`
	Read      bool    `json:"read"`
	Sent      bool    `json:"sent"`
}

type updateNotificationRequest struct {
	Message *string `json:"message" validate:"omitempty,min=1,max=255"`
	Urgency *string `json:"urgency" validate:"omitempty,oneof=low medium high"`
	Read    *bool   `json:"read"`
	Sent    *bool   `json:"sent"`
}

// GET /api/notifications?unread=true
func (h *NotificationHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	page := pageQuery(c)
	items, total, err := h.service.List(requestContext(c), actor, page, parseBoolQuery(c, "unread"))
	if err != nil {
		fail(c, err)
		return
	}
	listResponse(c, items, page, total)
}

// GET /api/notifications/:id
func (h *NotificationHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	item, err := h.service.Get(requestContext(c), actor, pathID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// POST /api/notifications. user_id is honoured for superusers only.
func (h *NotificationHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req createNotificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	item, err := h.service.Create(requestContext(c), actor, services.CreateNotificationInput{
		LicenseID: req.LicenseID,
		UserID:    req.UserID,
		Message:   req.Message,
		Urgency:   models.Urgency(req.Urgency),
		Read:      req.Read,
		Sent:      req.Sent,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, item)
}

// PATCH /api/notifications/:id
func (h *NotificationHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req updateNotificationRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.UpdateNotificationInput{
		Message: req.Message,
		Read:    req.Read,
		Sent:    req.Sent,
	}
	if req.Urgency != nil {
		urgency := models.Urgency(*req.Urgency)
		input.Urgency = &urgency
	}

	item, err := h.service.Update(requestContext(c), actor, pathID(c), input)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, item)
}

// DELETE /api/notifications/:id
func (h *NotificationHandler) Delete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.service.Delete(requestContext(c), actor, pathID(c)); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// POST /api/notifications/read-all
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	updated, err := h.service.MarkAllRead(requestContext(c), actor.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"updated": updated})
}

// POST /api/notifications/sweep runs the expiring-license sweep immediately.
func (h *NotificationHandler) Sweep(c *gin.Context) {
	result, err := h.service.SendExpiringLicenseNotifications(requestContext(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, result)
}
