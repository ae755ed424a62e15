package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/licensewatch/internal/models"
	apperrors "github.com/charlesng35/licensewatch/pkg/errors"
)

func TestNotificationServiceCreateScopesToActor(t *testing.T) {
	db := openServiceTestDB(t)
	hub := &recordingBroadcaster{}
	svc := newSweepService(t, db, nil, WithBroadcaster(hub))

	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	license := createTestLicense(t, db, createTestDevice(t, db, "SVC-A", alice), "pro", daysFromNow(3))

	ctx := context.Background()
	created, err := svc.Create(ctx, actorFor(alice), CreateNotificationInput{
		LicenseID: license.ID,
		UserID:    &bob.ID,
		Message:   "Renew soon",
		Urgency:   models.UrgencyMedium,
	})
	require.NoError(t, err)
	require.Equal(t, alice.ID, *created.UserID)
	require.Equal(t, testNow, created.NotificationDate)
	require.Len(t, hub.messages[alice.ID], 1)

	_, err = svc.Create(ctx, actorFor(bob), CreateNotificationInput{LicenseID: license.ID, Message: "x", Urgency: models.UrgencyLow})
	require.True(t, errors.Is(err, ErrLicenseNotFound))

	_, err = svc.Create(ctx, actorFor(alice), CreateNotificationInput{LicenseID: license.ID, Message: "x", Urgency: "critical"})
	require.True(t, errors.Is(err, apperrors.ErrBadRequest))

	_, err = svc.Create(ctx, actorFor(alice), CreateNotificationInput{LicenseID: license.ID, Urgency: models.UrgencyLow})
	require.True(t, errors.Is(err, apperrors.ErrBadRequest))

	adminCreated, err := svc.Create(ctx, SystemActor, CreateNotificationInput{
		LicenseID: license.ID, UserID: &bob.ID, Message: "FYI", Urgency: models.UrgencyLow,
	})
	require.NoError(t, err)
	require.Equal(t, bob.ID, *adminCreated.UserID)
}

func TestNotificationServiceListUpdateDelete(t *testing.T) {
	db := openServiceTestDB(t)
	hub := &recordingBroadcaster{}
	svc := newSweepService(t, db, nil, WithBroadcaster(hub))

	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	license := createTestLicense(t, db, createTestDevice(t, db, "SVC-A", alice), "pro", daysFromNow(3))

	ctx := context.Background()
	first, err := svc.Create(ctx, actorFor(alice), CreateNotificationInput{LicenseID: license.ID, Message: "one", Urgency: models.UrgencyLow})
	require.NoError(t, err)
	_, err = svc.Create(ctx, actorFor(alice), CreateNotificationInput{LicenseID: license.ID, Message: "two", Urgency: models.UrgencyHigh, Read: true})
	require.NoError(t, err)

	rows, total, err := svc.List(ctx, actorFor(alice), Page{}, false)
	require.NoError(t, err)
	require.Equal(t, int64(2), total)
	require.Len(t, rows, 2)

	_, total, err = svc.List(ctx, actorFor(alice), Page{}, true)
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	_, total, err = svc.List(ctx, actorFor(bob), Page{}, false)
	require.NoError(t, err)
	require.Zero(t, total)

	read := true
	urgency := models.UrgencyHigh
	updated, err := svc.Update(ctx, actorFor(alice), first.ID, UpdateNotificationInput{Read: &read, Urgency: &urgency})
	require.NoError(t, err)
	require.True(t, updated.Read)
	require.Equal(t, models.UrgencyHigh, updated.Urgency)
	require.Equal(t, "one", updated.Message)

	_, err = svc.Update(ctx, actorFor(bob), first.ID, UpdateNotificationInput{Read: &read})
	require.True(t, errors.Is(err, ErrNotificationNotFound))

	_, err = svc.Get(ctx, actorFor(bob), first.ID)
	require.True(t, apperrors.IsNotFound(err))

	require.True(t, errors.Is(svc.Delete(ctx, actorFor(bob), first.ID), ErrNotificationNotFound))
	require.NoError(t, svc.Delete(ctx, actorFor(alice), first.ID))
	require.Equal(t, int64(1), countRows(t, db, &models.Notification{}))

	events := hub.messages[alice.ID]
	require.Equal(t, EventNotificationDeleted, events[len(events)-1].Event)
}

func TestNotificationServiceMarkAllRead(t *testing.T) {
	db := openServiceTestDB(t)
	svc := newSweepService(t, db, nil)

	alice := createTestUser(t, db, "alice@example.com")
	bob := createTestUser(t, db, "bob@example.com")
	license := createTestLicense(t, db, createTestDevice(t, db, "SVC-A", alice), "pro", daysFromNow(3))

	ctx := context.Background()
	for _, user := range []*models.User{alice, alice, bob} {
		_, err := svc.Create(ctx, SystemActor, CreateNotificationInput{
			LicenseID: license.ID, UserID: &user.ID, Message: "m", Urgency: models.UrgencyLow,
		})
		require.NoError(t, err)
	}

	updated, err := svc.MarkAllRead(ctx, alice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), updated)

	_, unread, err := svc.List(ctx, actorFor(bob), Page{}, true)
	require.NoError(t, err)
	require.Equal(t, int64(1), unread)

	_, err = svc.MarkAllRead(ctx, " ")
	require.Error(t, err)
}

func TestNotificationConfigDashboardURL(t *testing.T) {
	require.Equal(t, "http://localhost:5173/dashboard", NotificationConfig{FrontendHost: "http://localhost:5173"}.DashboardURL())
	require.Equal(t, "https://x.io/dashboard", NotificationConfig{FrontendHost: "https://x.io/"}.DashboardURL())
}
