package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/models"
)

// CreateUser inserts an active user. The password hash is a placeholder, so
// the user cannot log in; handler tests seed real credentials themselves.
func CreateUser(t testing.TB, db *gorm.DB, email string) *models.User {
	t.Helper()
	user := &models.User{Email: email, HashedPassword: "x", IsActive: true}
	require.NoError(t, db.Create(user).Error)
	return user
}

// CreateDevice inserts a server device owned by owner, or an orphan when owner is nil.
func CreateDevice(t testing.TB, db *gorm.DB, tag string, owner *models.User) *models.Device {
	t.Helper()
	device := &models.Device{ServiceTag: tag, DeviceType: "server"}
	if owner != nil {
		device.AddedByID = &owner.ID
	}
	require.NoError(t, db.Create(device).Error)
	return device
}

// CreateLicense inserts a license on device expiring at expires.
func CreateLicense(t testing.TB, db *gorm.DB, device *models.Device, licenseType string, expires time.Time) *models.License {
	t.Helper()
	license := &models.License{DeviceID: device.ID, LicenseType: licenseType, ExpirationDate: expires}
	require.NoError(t, db.Create(license).Error)
	return license
}

// CountRows returns the number of rows in model's table.
func CountRows(t testing.TB, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
