package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	apperrors "github.com/charlesng35/licensewatch/pkg/errors"
)

// Messages returned when a unique column (users.email, devices.service_tag) is taken.
const (
	msgDuplicateEmail      = "The user with this email already exists in the system"
	msgDuplicateServiceTag = "A device with this service tag already exists"
)

const (
	pgUniqueViolation    = "23505"
	mysqlDuplicateEntry  = 1062
	sqliteUniqueFailed   = "unique constraint failed"
	genericDuplicateHint = "duplicate key"
)

// isUniqueViolation reports whether err came from a unique index on any supported driver.
// Foreign key and check constraint failures are not matched.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDuplicateEntry
	}

	lower := strings.ToLower(err.Error())
	return strings.Contains(lower, sqliteUniqueFailed) || strings.Contains(lower, genericDuplicateHint)
}

// conflictOr turns a unique violation into a 400 carrying message and wraps any other
// error with op.
func conflictOr(err error, message, op string) error {
	if isUniqueViolation(err) {
		return apperrors.NewBadRequest(message)
	}
	return fmt.Errorf("%s: %w", op, err)
}
