package handlers

import (
	"encoding/base64"
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/charlesng35/licensewatch/internal/auth"
	"github.com/charlesng35/licensewatch/internal/auth/mfa"
	"github.com/charlesng35/licensewatch/internal/auth/providers"
	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/internal/services"
	"github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/metrics"
	"github.com/charlesng35/licensewatch/pkg/response"
)

var (
	errAccountLocked      = errors.New("auth.account_locked", "Too many failed attempts, try again later", http.StatusLocked)
	errRegistrationClosed = errors.New("auth.registration_disabled", "Open registration is disabled", http.StatusForbidden)
	errMFAAlreadyEnabled  = errors.New("auth.mfa_enabled", "Multi-factor authentication is already enabled", http.StatusBadRequest)
	errMFANotConfigured   = errors.New("auth.mfa_not_configured", "Multi-factor authentication has not been set up", http.StatusBadRequest)
)

// AuthHandler manages login, registration, the caller's profile and MFA enrolment.
type AuthHandler struct {
	users             *services.UserService
	local             *providers.LocalProvider
	jwt               *iauth.JWTService
	mfa               *mfa.TOTPService
	allowRegistration bool
}

// NewAuthHandler constructs an AuthHandler. mfaSvc may be nil to disable MFA endpoints.
func NewAuthHandler(users *services.UserService, local *providers.LocalProvider, jwt *iauth.JWTService, mfaSvc *mfa.TOTPService, allowRegistration bool) *AuthHandler {
	return &AuthHandler{
		users:             users,
		local:             local,
		jwt:               jwt,
		mfa:               mfaSvc,
		allowRegistration: allowRegistration,
	}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
	MFACode  string `json:"mfa_code"`
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	ExpiresIn   int          `json:"expires_in"`
	User        *models.User `json:"user"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	user, err := h.local.Authenticate(ctx, providers.AuthenticateInput{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		switch {
		case stderrors.Is(err, providers.ErrInvalidCredentials):
			response.Error(c, errors.ErrInvalidCredentials)
		case stderrors.Is(err, providers.ErrAccountLocked):
			var locked *providers.LockedError
			if stderrors.As(err, &locked) {
				c.Header("Retry-After", strconv.Itoa(int(locked.RetryAfter.Seconds())))
			}
			response.Error(c, errAccountLocked)
		case stderrors.Is(err, providers.ErrAccountDisabled):
			response.Error(c, errors.ErrInactiveUser)
		default:
			fail(c, err)
		}
		return
	}

	if user.MFAEnabled && h.mfa != nil {
		code := strings.TrimSpace(req.MFACode)
		if code == "" {
			metrics.AuthAttempts.WithLabelValues("mfa_required").Inc()
			response.Error(c, errors.ErrMFARequired)
			return
		}
		ok, err := h.mfa.VerifyCode(ctx, user.ID, code)
		if err != nil {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			fail(c, err)
			return
		}
		if !ok {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			response.Error(c, errors.ErrMFAInvalid)
			return
		}
	}

	issued, err := h.jwt.Issue(iauth.AccessTokenInput{
		UserID:      user.ID,
		Email:       user.Email,
		IsSuperuser: user.IsSuperuser,
	})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		fail(c, err)
		return
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	response.Success(c, http.StatusOK, loginResponse{
		AccessToken: issued.Token,
		TokenType:   "bearer",
		ExpiresIn:   issued.ExpiresIn(issued.IssuedAt),
		User:        user,
	})
}

type registerRequest struct {
	Email    string  `json:"email" validate:"required,email"`
	Password string  `json:"password" validate:"required,password"`
	FullName *string `json:"full_name" validate:"omitempty,max=255"`
}

// POST /api/auth/register
func (h *AuthHandler) Register(c *gin.Context) {
	if !h.allowRegistration {
		response.Error(c, errRegistrationClosed)
		return
	}

	var req registerRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Create(requestContext(c), services.CreateUserInput{
		Email:    req.Email,
		Password: req.Password,
		FullName: req.FullName,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusCreated, user)
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	user, err := h.users.GetByID(requestContext(c), actor.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

type updateMeRequest struct {
	Email    *string `json:"email" validate:"omitempty,email"`
	FullName *string `json:"full_name" validate:"omitempty,max=255"`
}

// PATCH /api/auth/me
func (h *AuthHandler) UpdateMe(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req updateMeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.users.Update(requestContext(c), actor.UserID, services.UpdateUserInput{
		Email:    req.Email,
		FullName: req.FullName,
	})
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, user)
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password" validate:"required"`
	NewPassword     string `json:"new_password" validate:"required,password"`
}

// POST /api/auth/password
func (h *AuthHandler) ChangePassword(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	var req changePasswordRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.users.UpdatePassword(requestContext(c), actor.UserID, req.CurrentPassword, req.NewPassword); err != nil {
		fail(c, err)
		return
	}
	response.Message(c, "Password updated successfully")
}

type mfaSetupResponse struct {
	Secret string `json:"secret"`
	URL    string `json:"otpauth_url"`
	QRCode string `json:"qr_code"`
}

// POST /api/auth/mfa/setup
func (h *AuthHandler) SetupMFA(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if !h.mfaAvailable(c) {
		return
	}

	ctx := requestContext(c)
	user, err := h.users.GetByID(ctx, actor.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	if user.MFAEnabled {
		response.Error(c, errMFAAlreadyEnabled)
		return
	}

	result, err := h.mfa.Setup(ctx, user.ID, user.Email)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, mfaSetupResponse{
		Secret: result.Secret,
		URL:    result.URL,
		QRCode: "data:image/png;base64," + base64.StdEncoding.EncodeToString(result.QRCode),
	})
}

type mfaCodeRequest struct {
	Code string `json:"code" validate:"required,totp"`
}

// POST /api/auth/mfa/verify
func (h *AuthHandler) VerifyMFA(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if !h.mfaAvailable(c) {
		return
	}
	var req mfaCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	valid, err := h.mfa.VerifyCode(requestContext(c), actor.UserID, req.Code)
	if err != nil {
		if stderrors.Is(err, mfa.ErrNotConfigured) {
			response.Error(c, errMFANotConfigured)
			return
		}
		fail(c, err)
		return
	}
	if !valid {
		response.Error(c, errors.ErrMFAInvalid)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"enabled": true})
}

// GET /api/auth/mfa/status
func (h *AuthHandler) MFAStatus(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if !h.mfaAvailable(c) {
		return
	}
	status, err := h.mfa.Status(requestContext(c), actor.UserID)
	if err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, status)
}

// POST /api/auth/mfa/disable requires a current code so a stolen token cannot strip MFA.
func (h *AuthHandler) DisableMFA(c *gin.Context) {
	actor, ok := currentActor(c)
	if !ok {
		return
	}
	if !h.mfaAvailable(c) {
		return
	}
	var req mfaCodeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	valid, err := h.mfa.VerifyCode(ctx, actor.UserID, req.Code)
	if err != nil {
		if stderrors.Is(err, mfa.ErrNotConfigured) {
			response.Error(c, errMFANotConfigured)
			return
		}
		fail(c, err)
		return
	}
	if !valid {
		response.Error(c, errors.ErrMFAInvalid)
		return
	}
	if err := h.mfa.Disable(ctx, actor.UserID); err != nil {
		fail(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"enabled": false})
}

func (h *AuthHandler) mfaAvailable(c *gin.Context) bool {
	if h.mfa == nil {
		response.Error(c, errors.ErrNotFound)
		return false
	}
	return true
}
