package providers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/database/testutil"
	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/pkg/crypto"
)

func TestAuthenticateSuccessResetsCounters(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	current := time.Date(2024, 1, 2, 9, 0, 0, 0, time.UTC)
	provider := newLocalProvider(t, db, LocalConfig{Clock: func() time.Time { return current }})

	user := createUser(t, db, "alice@example.com", "password123", true)
	require.NoError(t, db.Model(user).Update("failed_attempts", 3).Error)

	result, err := provider.Authenticate(context.Background(), AuthenticateInput{
		Email:    " Alice@Example.com ",
		Password: "password123",
	})
	require.NoError(t, err)
	require.Equal(t, user.ID, result.ID)

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)
	require.Equal(t, 0, updated.FailedAttempts)
	require.Nil(t, updated.LockedUntil)
	require.NotNil(t, updated.LastLoginAt)
	require.True(t, updated.LastLoginAt.Equal(current))
}

func TestAuthenticateInvalidPasswordLocksAccount(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	current := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	provider := newLocalProvider(t, db, LocalConfig{
		LockoutThreshold: 3,
		LockoutDuration:  10 * time.Minute,
		Clock:            func() time.Time { return current },
	})

	user := createUser(t, db, "bob@example.com", "correct-horse", true)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := provider.Authenticate(ctx, AuthenticateInput{Email: user.Email, Password: "wrong"})
		require.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, err := provider.Authenticate(ctx, AuthenticateInput{Email: user.Email, Password: "wrong"})
	require.ErrorIs(t, err, ErrAccountLocked)

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)
	require.Equal(t, 3, updated.FailedAttempts)
	require.NotNil(t, updated.LockedUntil)
	require.WithinDuration(t, current.Add(10*time.Minute), *updated.LockedUntil, time.Second)

	_, err = provider.Authenticate(ctx, AuthenticateInput{Email: user.Email, Password: "correct-horse"})
	require.ErrorIs(t, err, ErrAccountLocked)

	current = current.Add(11 * time.Minute)
	_, err = provider.Authenticate(ctx, AuthenticateInput{Email: user.Email, Password: "correct-horse"})
	require.NoError(t, err)
}

func TestAuthenticateDisabledAccount(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	provider := newLocalProvider(t, db, LocalConfig{})

	createUser(t, db, "diana@example.com", "password123", false)

	_, err := provider.Authenticate(context.Background(), AuthenticateInput{Email: "diana@example.com", Password: "password123"})
	require.ErrorIs(t, err, ErrAccountDisabled)

	_, err = provider.Authenticate(context.Background(), AuthenticateInput{Email: "diana@example.com", Password: "nope"})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAuthenticateUnknownEmail(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	provider := newLocalProvider(t, db, LocalConfig{})

	_, err := provider.Authenticate(context.Background(), AuthenticateInput{Email: "ghost@example.com", Password: "password123"})
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = provider.Authenticate(context.Background(), AuthenticateInput{})
	require.ErrorIs(t, err, ErrInvalidCredentials)
}

func newLocalProvider(t *testing.T, db *gorm.DB, cfg LocalConfig) *LocalProvider {
	t.Helper()
	provider, err := NewLocalProvider(db, cfg)
	require.NoError(t, err)
	return provider
}

func createUser(t *testing.T, db *gorm.DB, email, password string, active bool) *models.User {
	t.Helper()
	hashed, err := crypto.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{Email: email, HashedPassword: hashed, IsActive: true}
	require.NoError(t, db.Create(user).Error)
	if !active {
		require.NoError(t, db.Model(user).Update("is_active", false).Error)
		user.IsActive = false
	}
	return user
}

func TestLockedErrorCarriesRetryAfter(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	current := time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
	provider := newLocalProvider(t, db, LocalConfig{
		LockoutThreshold: 1,
		LockoutDuration:  90 * time.Second,
		Clock:            func() time.Time { return current },
	})
	user := createUser(t, db, "carol@example.com", "password123", true)
	ctx := context.Background()

	_, err := provider.Authenticate(ctx, AuthenticateInput{Email: user.Email, Password: "wrong"})
	var locked *LockedError
	require.ErrorAs(t, err, &locked)
	require.ErrorIs(t, err, ErrAccountLocked)
	require.Equal(t, current.Add(90*time.Second), locked.Until)
	require.Equal(t, 90*time.Second, locked.RetryAfter)

	current = current.Add(59500 * time.Millisecond)
	_, err = provider.Authenticate(ctx, AuthenticateInput{Email: user.Email, Password: "password123"})
	require.ErrorAs(t, err, &locked)
	require.Equal(t, 31*time.Second, locked.RetryAfter)
}

func TestConcurrentFailuresAreAllCounted(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	provider := newLocalProvider(t, db, LocalConfig{LockoutThreshold: 100})
	user := createUser(t, db, "dave@example.com", "password123", true)

	const attempts = 4
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = provider.Authenticate(context.Background(), AuthenticateInput{Email: user.Email, Password: "wrong"})
		}()
	}
	wg.Wait()

	var updated models.User
	require.NoError(t, db.Take(&updated, "id = ?", user.ID).Error)
	require.Equal(t, attempts, updated.FailedAttempts)
}
