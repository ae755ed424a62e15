package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/internal/services"
	"github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/response"
	appValidator "github.com/charlesng35/licensewatch/pkg/validator"
)

// LicenseHandler exposes license CRUD, expiry queries and per-license history.
type LicenseHandler struct {
	licenses *services.LicenseService
	audit    *services.AuditService
	exports  *services.ExportService
}

func NewLicenseHandler(licenses *services.LicenseService, audit *services.AuditService, exports *services.ExportService) *LicenseHandler {
	return &LicenseHandler{licenses: licenses, audit: audit, exports: exports}
}

type createLicenseRequest struct {
	DeviceID       string `json:"device_id" validate:"required"`
	LicenseType    string `json:"license_type" validate:"required,max=255"`
	ExpirationDate string `json:"expiration_date" validate:"required,expirydate"`
}

type updateLicenseRequest struct {
	DeviceID       *string `json:"device_id" validate:"omitempty,min=1"`
	LicenseType    *string `json:"license_type" validate:"omitempty,max=255"`
	ExpirationDate *string `json:"expiration_date" validate:"omitempty,expirydate"`
}

// parseDate accepts RFC 3339 timestamps or plain dates, which are read as UTC midnight.
func parseDate(raw string) (time.Time, error) {
	t, err := appValidator.ParseDate(raw)
	if err != nil {
		return time.Time{}, errors.NewBadRequest("expiration date must be YYYY-MM-DD or RFC 3339")
	}
	return t, nil
}

// GET /api/licenses?license_type=
func (h *LicenseHandler) List(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}

	page := pageQuery(c)
	var (
		licenses []models.License
		total    int64
		err      error
	)
	if licenseType := strings.TrimSpace(c.Query("license_type")); licenseType != "" {
		licenses, total, err = h.licenses.Search(requestContext(c), actor, licenseType, page)
	} else {
		licenses, total, err = h.licenses.List(requestContext(c), actor, page)
	}
	if err != nil {
		fail(c, err)
		return
	}
	listResponse(c, licenses, page, total)
}

// GET /api/licenses/stats
func (h *LicenseHandler) Stats(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	stats, err := h.licenses.Stats(requestContext(c), actor)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, stats)
}

// GET /api/licenses/expiring?days=30
func (h *LicenseHandler) Expiring(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	days := parseIntQuery(c, "days", 0)
	if days < 0 || days > 366 {
		response.Error(c, errors.NewBadRequest("days must be between 0 and 366 (0 = default)"))
		return
	}

	items, err := h.licenses.Expiring(requestContext(c), actor, time.Duration(days)*24*time.Hour)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, items)
}

// GET /api/licenses/:id
func (h *LicenseHandler) Get(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	license, err := h.licenses.Get(requestContext(c), actor, pathID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, license)
}

// POST /api/licenses
func (h *LicenseHandler) Create(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req createLicenseRequest
	if !bindAndValidate(c, &req) {
		return
	}
	expires, err := parseDate(req.ExpirationDate)
	if err != nil {
		response.Error(c, err)
		return
	}

	license, err := h.licenses.Create(requestContext(c), actor, services.CreateLicenseInput{
		DeviceID:       req.DeviceID,
		LicenseType:    req.LicenseType,
		ExpirationDate: expires,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, license)
}

// PATCH /api/licenses/:id applies only the fields present in the body.
func (h *LicenseHandler) Update(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req updateLicenseRequest
	if !bindAndValidate(c, &req) {
		return
	}

	input := services.UpdateLicenseInput{
		DeviceID:    req.DeviceID,
		LicenseType: req.LicenseType,
	}
	if req.ExpirationDate != nil {
		expires, err := parseDate(*req.ExpirationDate)
		if err != nil {
			response.Error(c, err)
			return
		}
		input.ExpirationDate = &expires
	}

	license, err := h.licenses.Update(requestContext(c), actor, pathID(c), input)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, license)
}

// DELETE /api/licenses/:id
func (h *LicenseHandler) Delete(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if err := h.licenses.Delete(requestContext(c), actor, pathID(c)); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// GET /api/licenses/:id/history
func (h *LicenseHandler) History(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	rows, err := h.licenses.History(requestContext(c), actor, pathID(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, rows)
}

// GET /api/licenses/:id/audit
func (h *LicenseHandler) Audit(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	ctx := requestContext(c)
	license, err := h.licenses.Get(ctx, actor, pathID(c))
	if err != nil {
		fail(c, err)
		return
	}

	entries, err := h.audit.GetEntityHistory(ctx, services.AuditEntityLicense, license.ID, pageQuery(c))
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, entries)
}

// GET /api/licenses/:id/export?format=excel|pdf
func (h *LicenseHandler) Export(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	file, err := h.exports.ExportLicense(requestContext(c), actor, pathID(c), exportFormat(c))
	if err != nil {
		fail(c, err)
		return
	}
	writeExport(c, file)
}
