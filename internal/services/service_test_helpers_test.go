package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/database/testutil"
	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/internal/realtime"
	"github.com/charlesng35/licensewatch/pkg/mail"
)

var testNow = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func openServiceTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
}

func createTestUser(t *testing.T, db *gorm.DB, email string) *models.User {
	return testutil.CreateUser(t, db, email)
}

func createTestDevice(t *testing.T, db *gorm.DB, tag string, owner *models.User) *models.Device {
	return testutil.CreateDevice(t, db, tag, owner)
}

func createTestLicense(t *testing.T, db *gorm.DB, device *models.Device, licenseType string, expires time.Time) *models.License {
	return testutil.CreateLicense(t, db, device, licenseType, expires)
}

func actorFor(user *models.User) Actor {
	return Actor{UserID: user.ID, IsSuperuser: user.IsSuperuser}
}

type sentEmail struct {
	To       []string
	Subject  string
	Template string
	Vars     map[string]any
}

type fakeSender struct {
	mu     sync.Mutex
	fail   map[string]bool
	emails []sentEmail
}

func (f *fakeSender) Send(_ context.Context, to []string, subject, templateName string, vars map[string]any) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, sentEmail{To: to, Subject: subject, Template: templateName, Vars: vars})
	for _, addr := range to {
		if f.fail[addr] {
			return false
		}
	}
	return true
}

type fakeDigestSender struct {
	fakeSender
	attachments []mail.Attachment
}

func (f *fakeDigestSender) SendWithAttachments(ctx context.Context, to []string, subject, templateName string, vars map[string]any, attachments ...mail.Attachment) bool {
	f.attachments = append(f.attachments, attachments...)
	return f.Send(ctx, to, subject, templateName, vars)
}

type recordingBroadcaster struct {
	mu       sync.Mutex
	messages map[string][]realtime.Message
}

func (r *recordingBroadcaster) BroadcastToUser(_ string, userID string, message realtime.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.messages == nil {
		r.messages = map[string][]realtime.Message{}
	}
	r.messages[userID] = append(r.messages[userID], message)
}

func countRows(t *testing.T, db *gorm.DB, model any) int64 {
	return testutil.CountRows(t, db, model)
}
