package testutil

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/api"
	"github.com/charlesng35/licensewatch/internal/app"
	iauth "github.com/charlesng35/licensewatch/internal/auth"
	sharedtestutil "github.com/charlesng35/licensewatch/internal/database/testutil"
	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/internal/realtime"
	"github.com/charlesng35/licensewatch/internal/services"
	"github.com/charlesng35/licensewatch/pkg/crypto"
	"github.com/charlesng35/licensewatch/pkg/response"
)

// Test credentials seeded for the first superuser.
const (
	SuperuserEmail    = "admin@example.com"
	SuperuserPassword = "changethis"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T      *testing.T
	DB     *gorm.DB
	Router *gin.Engine
	JWT    *iauth.JWTService
	Deps   *api.Dependencies
	Config *app.Config
}

// EnvOption customises NewEnv.
type EnvOption func(*envConfig)

type envConfig struct {
	mailer    api.Mailer
	clock     services.Clock
	configure func(*app.Config)
}

// WithMailer wires a mail sender into the notification service.
func WithMailer(mailer api.Mailer) EnvOption {
	return func(c *envConfig) { c.mailer = mailer }
}

// WithClock pins the clock used by every service.
func WithClock(clock services.Clock) EnvOption {
	return func(c *envConfig) { c.clock = clock }
}

// WithConfig mutates the default test configuration before the router is built.
func WithConfig(fn func(*app.Config)) EnvOption {
	return func(c *envConfig) { c.configure = fn }
}

// NewEnv provisions a fresh handler test environment with migrations and a seeded superuser.
func NewEnv(t *testing.T, opts ...EnvOption) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	var envCfg envConfig
	for _, opt := range opts {
		opt(&envCfg)
	}

	db := sharedtestutil.MustOpenTestDB(t, sharedtestutil.WithSuperuser(SuperuserEmail, SuperuserPassword))

	cfg := &app.Config{
		Auth: app.AuthConfig{
			JWT: app.JWTSettings{
				Secret: "test-suite-super-secret-key-32-bytes!!",
				Issuer: "test-suite",
				TTL:    time.Hour,
			},
			Local: app.LocalAuthSettings{
				AllowRegistration: true,
				LockoutThreshold:  5,
				LockoutDuration:   time.Minute,
			},
			MFA: app.MFASettings{Issuer: "LicenseWatch"},
		},
		Monitoring: app.MonitoringConfig{
			Prometheus: app.PrometheusConfig{Enabled: true, Endpoint: "/metrics"},
			Health:     app.HealthConfig{Enabled: true},
		},
		Notifications: app.NotificationsConfig{
			ProjectName:  "LicenseWatch",
			FrontendHost: "http://localhost:5173",
		},
	}
	if envCfg.configure != nil {
		envCfg.configure(cfg)
	}

	jwtCfg := cfg.Auth.JWTServiceConfig()
	jwtCfg.Clock = envCfg.clock
	jwtSvc, err := iauth.NewJWTService(jwtCfg)
	require.NoError(t, err)

	deps, err := api.NewDependencies(db, cfg, jwtSvc, api.Options{
		Mailer: envCfg.mailer,
		Hub:    realtime.NewHub(),
		Clock:  envCfg.clock,
	})
	require.NoError(t, err)

	router, err := api.NewRouter(deps)
	require.NoError(t, err)

	return &Env{
		T:      t,
		DB:     db,
		Router: router,
		JWT:    jwtSvc,
		Deps:   deps,
		Config: cfg,
	}
}

// CreateUser inserts an active user directly into the database.
func (e *Env) CreateUser(email, password string, superuser bool) *models.User {
	e.T.Helper()

	hashed, err := crypto.HashPassword(password)
	require.NoError(e.T, err)

	user := &models.User{
		Email:          email,
		HashedPassword: hashed,
		IsActive:       true,
		IsSuperuser:    superuser,
	}
	require.NoError(e.T, e.DB.Create(user).Error)
	return user
}

// TokenFor issues an access token without going through the login endpoint.
func (e *Env) TokenFor(user *models.User) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{
		UserID:      user.ID,
		Email:       user.Email,
		IsSuperuser: user.IsSuperuser,
	})
	require.NoError(e.T, err)
	return token
}

// UserPayload captures the subset of user fields returned from auth endpoints.
type UserPayload struct {
	ID          string  `json:"id"`
	Email       string  `json:"email"`
	FullName    *string `json:"full_name"`
	IsActive    bool    `json:"is_active"`
	IsSuperuser bool    `json:"is_superuser"`
	MFAEnabled  bool    `json:"mfa_enabled"`
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresIn   int         `json:"expires_in"`
	User        UserPayload `json:"user"`
}

// Login authenticates with email and password and returns the issued token.
func (e *Env) Login(email, password string) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp := DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	require.Equal(e.T, "bearer", result.TokenType)
	require.Greater(e.T, result.ExpiresIn, 0)
	return result
}

// SuperuserToken logs in as the seeded superuser.
func (e *Env) SuperuserToken() string {
	e.T.Helper()
	return e.Login(SuperuserEmail, SuperuserPassword).AccessToken
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// ClientAddr is the remote address attached to every test request.
const ClientAddr = "192.0.2.1:40000"

// Request executes an HTTP request against the test router, applying JSON encoding and auth headers automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	buf := bytes.NewBuffer(nil)
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(e.T, err)
		buf = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, path, buf)
	require.NoError(e.T, err)
	req.RemoteAddr = ClientAddr

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
