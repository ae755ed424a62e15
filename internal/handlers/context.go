package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/licensewatch/internal/middleware"
	"github.com/charlesng35/licensewatch/internal/services"
	"github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/logger"
	"github.com/charlesng35/licensewatch/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentActor builds the service-level identity from values set by the auth middleware.
// It writes a 401 and returns false when the request carries no identity.
func currentActor(c *gin.Context) (services.Actor, bool) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return services.Actor{}, false
	}
	return services.Actor{
		UserID:      userID,
		IsSuperuser: c.GetBool(middleware.CtxSuperuserKey),
	}, true
}

// fail writes err and logs it when it maps to a server error.
func fail(c *gin.Context, err error) {
	appErr := errors.FromError(err)
	if appErr != nil && appErr.StatusCode >= 500 {
		logger.WithModule("api").Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
		_ = c.Error(err)
	}
	response.Error(c, err)
}

func pathID(c *gin.Context) string {
	return strings.TrimSpace(c.Param("id"))
}

// pageQuery reads skip/limit query parameters.
func pageQuery(c *gin.Context) services.Page {
	return services.Page{
		Skip:  parseIntQuery(c, "skip", 0),
		Limit: parseIntQuery(c, "limit", services.DefaultPageLimit),
	}
}

func listResponse(c *gin.Context, data any, page services.Page, total int64) {
	skip, limit := page.Skip, page.Limit
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = services.DefaultPageLimit
	}
	response.List(c, data, skip, limit, total)
}
