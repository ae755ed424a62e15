package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/pkg/crypto"
	apperrors "github.com/charlesng35/licensewatch/pkg/errors"
)

func TestUserServiceCreate(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	ctx := context.Background()
	name := " Ada Lovelace "
	user, err := svc.Create(ctx, CreateUserInput{Email: " Ada@Example.com ", Password: "password123", FullName: &name})
	require.NoError(t, err)
	require.Equal(t, "ada@example.com", user.Email)
	require.Equal(t, "Ada Lovelace", *user.FullName)
	require.True(t, user.IsActive)
	require.False(t, user.IsSuperuser)
	require.True(t, crypto.VerifyPassword(user.HashedPassword, "password123"))

	_, err = svc.Create(ctx, CreateUserInput{Email: "ada@example.com", Password: "password123"})
	require.True(t, errors.Is(err, apperrors.ErrBadRequest))
}

func TestUserServiceCreateValidatesBeforeWriting(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	ctx := context.Background()
	cases := []CreateUserInput{
		{Email: "", Password: "password123"},
		{Email: "not-an-email", Password: "password123"},
		{Email: "a@example.com", Password: "short"},
		{Email: "a@example.com", Password: strings.Repeat("x", 41)},
	}
	for _, input := range cases {
		_, err := svc.Create(ctx, input)
		require.True(t, errors.Is(err, apperrors.ErrBadRequest), "input=%+v", input)
	}
	require.Equal(t, int64(0), countRows(t, db, &models.User{}))
}

func TestUserServiceUpdateAndPassword(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	ctx := context.Background()
	user, err := svc.Create(ctx, CreateUserInput{Email: "user@example.com", Password: "password123"})
	require.NoError(t, err)
	_, err = svc.Create(ctx, CreateUserInput{Email: "taken@example.com", Password: "password123"})
	require.NoError(t, err)

	inactive := false
	updated, err := svc.Update(ctx, user.ID, UpdateUserInput{IsActive: &inactive})
	require.NoError(t, err)
	require.False(t, updated.IsActive)
	require.Equal(t, "user@example.com", updated.Email)

	taken := "taken@example.com"
	_, err = svc.Update(ctx, user.ID, UpdateUserInput{Email: &taken})
	require.True(t, errors.Is(err, apperrors.ErrBadRequest))

	require.True(t, errors.Is(svc.UpdatePassword(ctx, user.ID, "wrong-password", "newpassword1"), ErrIncorrectPassword))
	require.True(t, errors.Is(svc.UpdatePassword(ctx, user.ID, "password123", "password123"), apperrors.ErrBadRequest))
	require.True(t, errors.Is(svc.UpdatePassword(ctx, user.ID, "password123", "short"), apperrors.ErrBadRequest))
	require.NoError(t, svc.UpdatePassword(ctx, user.ID, "password123", "newpassword1"))

	reloaded, err := svc.GetByEmail(ctx, "USER@example.com")
	require.NoError(t, err)
	require.True(t, crypto.VerifyPassword(reloaded.HashedPassword, "newpassword1"))
}

func TestUserServiceDeleteKeepsDevices(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	user := createTestUser(t, db, "owner@example.com")
	device := createTestDevice(t, db, "SVC-001", user)

	ctx := context.Background()
	require.NoError(t, svc.Delete(ctx, user.ID))
	require.True(t, errors.Is(svc.Delete(ctx, user.ID), ErrUserNotFound))

	var reloaded models.Device
	require.NoError(t, db.First(&reloaded, "id = ?", device.ID).Error)
	require.Nil(t, reloaded.AddedByID)

	_, err = svc.GetByID(ctx, user.ID)
	require.True(t, apperrors.IsNotFound(err))
}

func TestUserServiceList(t *testing.T) {
	db := openServiceTestDB(t)
	svc, err := NewUserService(db)
	require.NoError(t, err)

	createTestUser(t, db, "b@example.com")
	createTestUser(t, db, "a@example.com")

	users, total, err := svc.List(context.Background(), Page{Limit: 1})
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, users, 1)
	require.Equal(t, "a@example.com", users[0].Email)
}
