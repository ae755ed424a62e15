package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/internal/services"
	"github.com/charlesng35/licensewatch/pkg/response"
)

// DeviceHandler exposes device registration endpoints scoped to the caller.
type DeviceHandler struct {
	devices  *services.DeviceService
	licenses *services.LicenseService
	exports  *services.ExportService
}

func NewDeviceHandler(devices *services.DeviceService, licenses *services.LicenseService, exports *services.ExportService) *DeviceHandler {
	return &DeviceHandler{devices: devices, licenses: licenses, exports: exports}
}

type createDeviceRequest struct {
	ServiceTag string `json:"service_tag" validate:"required,servicetag"`
	DeviceType string `json:"device_type" validate:"required,max=100"`
}

type updateDeviceRequest struct {
	ServiceTag *string `json:"service_tag" validate:"omitempty,servicetag"`
	DeviceType *string `json:"device_type" validate:"omitempty,max=100"`
}

// GET /api/devices?service_tag=
func (h *DeviceHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	page := pageQuery(c)
	var (
		devices []models.Device
		total   int64
		err     error
	)
	if tag := strings.TrimSpace(c.Query("service_tag")); tag != "" {
		devices, total, err = h.devices.SearchByServiceTag(requestContext(c), actor, tag, page)
	} else {
		devices, total, err = h.devices.List(requestContext(c), actor, page)
	}
	if err != nil {
		fail(c, err)
		return
	}
	listResponse(c, devices, page, total)
}

// GET /api/devices/stats
func (h *DeviceHandler) Stats(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	stats, err := h.devices.Stats(requestContext(c), actor)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// GET /api/devices/:id
func (h *DeviceHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	device, err := h.devices.Get(requestContext(c), actor, pathID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, device)
}

// GET /api/devices/:id/licenses
func (h *DeviceHandler) Licenses(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	licenses, err := h.licenses.ListByDevice(requestContext(c), actor, pathID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, licenses)
}

// POST /api/devices
func (h *DeviceHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req createDeviceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	device, err := h.devices.Create(requestContext(c), actor, services.CreateDeviceInput{
		ServiceTag: req.ServiceTag,
		DeviceType: req.DeviceType,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, device)
}

// PATCH /api/devices/:id
func (h *DeviceHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req updateDeviceRequest
	if !bindAndValidate(c, &req) {
		return
	}

	device, err := h.devices.Update(requestContext(c), actor, pathID(c), services.UpdateDeviceInput{
		ServiceTag: req.ServiceTag,
		DeviceType: req.DeviceType,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, device)
}

// DELETE /api/devices/:id removes the device with its licenses, history and notifications.
func (h *DeviceHandler) Delete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.devices.Delete(requestContext(c), actor, pathID(c)); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/devices/:id/export?format=excel|pdf
func (h *DeviceHandler) Export(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	file, err := h.exports.ExportDevice(requestContext(c), actor, pathID(c), exportFormat(c))
	if err != nil {
		fail(c, err)
		return
	}
	writeExport(c, file)
}
