package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"

	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/pkg/crypto"
	apperrors "github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/validator"
)

var (
	// ErrUserNotFound indicates the requested user does not exist.
	ErrUserNotFound = apperrors.New("USER_NOT_FOUND", "User not found", http.StatusNotFound)
	// ErrIncorrectPassword is returned when a password change supplies the wrong current password.
	ErrIncorrectPassword = apperrors.New("INCORRECT_PASSWORD", "Incorrect password", http.StatusBadRequest)
)

// CreateUserInput describes the fields accepted when creating a user.
type CreateUserInput struct {
	Email       string
	Password    string
	FullName    *string
	IsActive    *bool
	IsSuperuser bool
}

// UpdateUserInput enumerates mutable user attributes. Nil fields are left untouched.
type UpdateUserInput struct {
	Email       *string
	Password    *string
	FullName    *string
	IsActive    *bool
	IsSuperuser *bool
}

// UserService manages the user lifecycle including password changes.
type UserService struct {
	db *gorm.DB
}

// NewUserService constructs a UserService instance.
func NewUserService(db *gorm.DB) (*UserService, error) {
	if db == nil {
		return nil, errors.New("user service: db is required")
	}
	return &UserService{db: db}, nil
}

// Create provisions a new user with a hashed password. Validation happens before any write.
func (s *UserService) Create(ctx context.Context, input CreateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	email, err := normaliseEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if err := checkPassword(input.Password); err != nil {
		return nil, err
	}

	hashed, err := crypto.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("user service: hash password: %w", err)
	}

	user := &models.User{
		Email:          email,
		HashedPassword: hashed,
		FullName:       trimmedPtr(input.FullName),
		IsActive:       true,
		IsSuperuser:    input.IsSuperuser,
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, conflictOr(err, msgDuplicateEmail, "user service: create user")
	}
	return user, nil
}

// GetByID retrieves a user by identifier.
func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "id = ?", strings.TrimSpace(id)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user: %w", err)
	}
	return &user, nil
}

// GetByEmail retrieves a user by case-insensitive email.
func (s *UserService) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	ctx = ensureContext(ctx)

	var user models.User
	err := s.db.WithContext(ctx).Take(&user, "email = ?", strings.ToLower(strings.TrimSpace(email))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("user service: get user by email: %w", err)
	}
	return &user, nil
}

// List returns paginated users ordered by email.
func (s *UserService) List(ctx context.Context, page Page) ([]models.User, int64, error) {
	ctx = ensureContext(ctx)
	page = page.normalise()

	query := s.db.WithContext(ctx).Model(&models.User{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: count users: %w", err)
	}

	var users []models.User
	if err := query.Order("email ASC").Offset(page.Skip).Limit(page.Limit).Find(&users).Error; err != nil {
		return nil, 0, fmt.Errorf("user service: list users: %w", err)
	}
	return users, total, nil
}

// Update applies a partial update to the user's profile and flags.
func (s *UserService) Update(ctx context.Context, id string, input UpdateUserInput) (*models.User, error) {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Email != nil {
		email, err := normaliseEmail(*input.Email)
		if err != nil {
			return nil, err
		}
		updates["email"] = email
	}
	if input.Password != nil {
		if err := checkPassword(*input.Password); err != nil {
			return nil, err
		}
		hashed, err := crypto.HashPassword(*input.Password)
		if err != nil {
			return nil, fmt.Errorf("user service: hash password: %w", err)
		}
		updates["hashed_password"] = hashed
	}
	if input.FullName != nil {
		updates["full_name"] = trimmedPtr(input.FullName)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.IsSuperuser != nil {
		updates["is_superuser"] = *input.IsSuperuser
	}

	if len(updates) == 0 {
		return user, nil
	}

	if err := s.db.WithContext(ctx).Model(user).Updates(updates).Error; err != nil {
		return nil, conflictOr(err, msgDuplicateEmail, "user service: update user")
	}

	return s.GetByID(ctx, user.ID)
}

// UpdatePassword changes a user's password after verifying the current one.
func (s *UserService) UpdatePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	ctx = ensureContext(ctx)

	user, err := s.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !crypto.VerifyPassword(user.HashedPassword, currentPassword) {
		return ErrIncorrectPassword
	}
	if currentPassword == newPassword {
		return apperrors.NewBadRequest("New password cannot be the same as the current one")
	}
	if err := checkPassword(newPassword); err != nil {
		return err
	}

	hashed, err := crypto.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("user service: hash password: %w", err)
	}
	if err := s.db.WithContext(ctx).Model(user).Update("hashed_password", hashed).Error; err != nil {
		return fmt.Errorf("user service: update password: %w", err)
	}
	return nil
}

// Delete removes a user. Devices and audit entries they own are kept with a null owner.
func (s *UserService) Delete(ctx context.Context, id string) error {
	ctx = ensureContext(ctx)

	result := s.db.WithContext(ctx).Delete(&models.User{}, "id = ?", strings.TrimSpace(id))
	if result.Error != nil {
		return fmt.Errorf("user service: delete user: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func normaliseEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", apperrors.NewBadRequest("email is required")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", apperrors.NewBadRequest("email is invalid")
	}
	return email, nil
}

func checkPassword(password string) error {
	if !validator.ValidPassword(password) {
		return apperrors.NewBadRequest(fmt.Sprintf("password must be between %d and %d characters",
			validator.PasswordMinLength, validator.PasswordMaxLength))
	}
	return nil
}
