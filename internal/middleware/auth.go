package middleware

import (
	"context"
	stdErrors "errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/licensewatch/internal/auditctx"
	iauth "github.com/charlesng35/licensewatch/internal/auth"
	"github.com/charlesng35/licensewatch/internal/models"
	"github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/response"
)

const (
	CtxClaimsKey    = "authClaims"
	CtxUserIDKey    = "userID"
	CtxSuperuserKey = "isSuperuser"
)

// Auth requires a valid bearer access token and stores its claims on the context.
// Rejections carry an RFC 6750 WWW-Authenticate challenge.
func Auth(jwt *iauth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			challenge(c, "")
			return
		}

		claims, err := jwt.ValidateAccessToken(strings.TrimSpace(authz[7:]))
		switch {
		case stdErrors.Is(err, iauth.ErrTokenExpired):
			challenge(c, "token expired")
			return
		case err != nil:
			challenge(c, "token invalid")
			return
		}

		SetIdentity(c, claims)
		c.Next()
	}
}

func challenge(c *gin.Context, description string) {
	value := "Bearer"
	if description != "" {
		value += fmt.Sprintf(` error="invalid_token", error_description=%q`, description)
	}
	c.Header("WWW-Authenticate", value)
	response.Error(c, errors.ErrUnauthorized)
	c.Abort()
}

// SetIdentity propagates validated claims into the request context.
func SetIdentity(c *gin.Context, claims *iauth.Claims) {
	c.Set(CtxClaimsKey, claims)
	c.Set(CtxUserIDKey, claims.UserID)
	c.Set(CtxSuperuserKey, claims.IsSuperuser)
	if c.Request != nil {
		c.Request = c.Request.WithContext(auditctx.WithRequest(c.Request.Context(), auditctx.Request{
			UserID:    claims.UserID,
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		}))
	}
}

// RequireSuperuser rejects callers whose token was not issued to a superuser.
// It must run after Auth.
func RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(CtxUserIDKey) == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}
		if !c.GetBool(CtxSuperuserKey) {
			response.Error(c, errors.ErrForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

// UserLookup loads the account behind a token.
type UserLookup interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
}

// ActiveUser reloads the token's user so deactivated or deleted accounts are
// rejected before their token expires. The superuser flag is refreshed from the
// database. It must run after Auth.
func ActiveUser(users UserLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.GetString(CtxUserIDKey)
		if userID == "" {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			if errors.IsNotFound(err) {
				response.Error(c, errors.ErrUnauthorized)
			} else {
				response.Error(c, err)
			}
			c.Abort()
			return
		}
		if !user.IsActive {
			response.Error(c, errors.ErrInactiveUser)
			c.Abort()
			return
		}

		c.Set(CtxSuperuserKey, user.IsSuperuser)
		c.Next()
	}
}
