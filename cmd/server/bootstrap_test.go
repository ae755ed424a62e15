package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/charlesng35/licensewatch/internal/app"
	"github.com/charlesng35/licensewatch/internal/models"
)

func testConfig() *app.Config {
	return &app.Config{
		Database: app.DatabaseConfig{Driver: "sqlite"},
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{Secret: "bootstrap-test-secret", Issuer: "licensewatch", TTL: time.Hour},
			Local: app.LocalAuthSettings{
				LockoutThreshold: 5,
				LockoutDuration:  time.Minute,
			},
		},
		Monitoring: app.MonitoringConfig{
			Health: app.HealthConfig{Enabled: true},
		},
		Notifications: app.NotificationsConfig{ProjectName: "LicenseWatch"},
		Audit:         app.AuditConfig{RetentionDays: 30},
		FirstUser:     app.FirstUserConfig{Email: "admin@example.com", Password: "changethis"},
	}
}

func TestBootstrapRuntime(t *testing.T) {
	log := zaptest.NewLogger(t)
	stack, err := bootstrapRuntime(context.Background(), testConfig(), log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })

	var admin models.User
	require.NoError(t, stack.DB.Take(&admin, "email = ?", "admin@example.com").Error)
	require.True(t, admin.IsSuperuser)

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	// Without SMTP the sweep still runs; there is nothing to send yet.
	require.NoError(t, stack.Scheduler.RunOnce(context.Background()))
}

func TestBootstrapRuntimeToleratesMissingRedis(t *testing.T) {
	cfg := testConfig()
	cfg.Cache.Redis.Enabled = true
	cfg.Cache.Redis.Address = "127.0.0.1:1"
	cfg.Cache.Redis.Timeout = 200 * time.Millisecond
	cfg.Notifications.Lease.Enabled = true

	log := zaptest.NewLogger(t)
	stack, err := bootstrapRuntime(context.Background(), cfg, log)
	require.NoError(t, err)
	t.Cleanup(func() { stack.Shutdown(context.Background(), log) })
	require.Nil(t, stack.Redis)

	w := httptest.NewRecorder()
	stack.Router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.Contains(t, w.Body.String(), `"component":"redis"`)
}

func TestEnsureSecretsPresent(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, ensureSecretsPresent(cfg))

	cfg.Auth.MFA.EncryptionKey = "00112233445566778899aabbccddeeff"
	require.NoError(t, ensureSecretsPresent(cfg))

	cfg.Auth.MFA.EncryptionKey = "abcd"
	require.Error(t, ensureSecretsPresent(cfg))

	cfg.Auth.JWT.Secret = "  "
	require.Error(t, ensureSecretsPresent(cfg))
}
