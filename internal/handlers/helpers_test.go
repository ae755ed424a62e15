package handlers_test

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/charlesng35/licensewatch/internal/handlers/testutil"
	"github.com/charlesng35/licensewatch/pkg/mail"
)

type devicePayload struct {
	ID         string  `json:"id"`
	ServiceTag string  `json:"service_tag"`
	DeviceType string  `json:"device_type"`
	AddedByID  *string `json:"added_by_id"`
}

type licensePayload struct {
	ID             string `json:"id"`
	DeviceID       string `json:"device_id"`
	LicenseType    string `json:"license_type"`
	ExpirationDate string `json:"expiration_date"`
}

type notificationPayload struct {
	ID        string  `json:"id"`
	LicenseID string  `json:"license_id"`
	UserID    *string `json:"user_id"`
	Message   string  `json:"message"`
	Urgency   string  `json:"urgency"`
	Read      bool    `json:"read"`
	Sent      bool    `json:"sent"`
}

func createDevice(t *testing.T, env *testutil.Env, token, tag string) devicePayload {
	t.Helper()
	w := env.Request(http.MethodPost, "/api/devices", map[string]string{"service_tag": tag, "device_type": "laptop"}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var device devicePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &device)
	return device
}

func createLicense(t *testing.T, env *testutil.Env, token, deviceID, licenseType, expires string) licensePayload {
	t.Helper()
	w := env.Request(http.MethodPost, "/api/licenses", map[string]string{
		"device_id": deviceID, "license_type": licenseType, "expiration_date": expires,
	}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var license licensePayload
	testutil.DecodeInto(t, testutil.DecodeResponse(t, w).Data, &license)
	return license
}

type sentMail struct {
	To          []string
	Template    string
	Attachments int
}

type stubMailer struct {
	mu   sync.Mutex
	sent []sentMail
}

func (m *stubMailer) Send(_ context.Context, to []string, _, templateName string, _ map[string]any) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Template: templateName})
	return true
}

func (m *stubMailer) SendWithAttachments(_ context.Context, to []string, _, templateName string, _ map[string]any, attachments ...mail.Attachment) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{To: to, Template: templateName, Attachments: len(attachments)})
	return true
}

func (m *stubMailer) messages() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}
