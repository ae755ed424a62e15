package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/pkg/crypto"
	"github.com/charlesng35/licensewatch/pkg/validator"
)

// SeedOptions describes the bootstrap superuser created on first start.
type SeedOptions struct {
	SuperuserEmail    string
	SuperuserPassword string
}

// AutoMigrate creates or updates the database schema for all models.
// Parents are listed before children so foreign keys resolve on every driver.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.MFASecret{},
		&models.Device{},
		&models.License{},
		&models.LicenseHistory{},
		&models.Notification{},
		&models.AuditLog{},
	)
}

// SeedData creates the first superuser when an email is configured and no user with that email exists.
func SeedData(db *gorm.DB, opts SeedOptions) error {
	email := strings.ToLower(strings.TrimSpace(opts.SuperuserEmail))
	if email == "" {
		return nil
	}
	if !validator.ValidPassword(opts.SuperuserPassword) {
		return fmt.Errorf("first superuser password must be %d-%d characters", validator.PasswordMinLength, validator.PasswordMaxLength)
	}

	var existing models.User
	err := db.Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	hash, err := crypto.HashPassword(opts.SuperuserPassword)
	if err != nil {
		return fmt.Errorf("hash superuser password: %w", err)
	}

	return db.Create(&models.User{
		Email:          email,
		HashedPassword: hash,
		IsActive:       true,
		IsSuperuser:    true,
	}).Error
}
