package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/licensewatch/pkg/errors"
	"github.com/charlesng35/licensewatch/pkg/logger"
	"github.com/charlesng35/licensewatch/pkg/metrics"
	"github.com/charlesng35/licensewatch/pkg/response"
)

// Recovery turns a handler panic into a 500 envelope. http.ErrAbortHandler
// is re-raised so net/http can drop the connection silently.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			recovered := recover()
			if recovered == nil {
				return
			}
			if recovered == http.ErrAbortHandler {
				panic(recovered)
			}

			metrics.HandlerPanics.Inc()
			logger.WithModule("http").Error("handler panic",
				zap.String("request_id", c.GetString(CtxRequestIDKey)),
				zap.String("method", c.Request.Method),
				zap.String("route", c.FullPath()),
				zap.Any("panic", recovered),
				zap.Stack("stack"),
			)

			if c.Writer.Written() {
				c.Abort()
				return
			}
			response.Error(c, errors.Internal(fmt.Errorf("panic: %v", recovered), errors.ErrInternalServer.Message))
			c.Abort()
		}()
		c.Next()
	}
}

// NotFoundHandler answers unknown routes with the JSON envelope.
func NotFoundHandler(c *gin.Context) {
	response.Error(c, errors.ErrNotFound.WithMessage(fmt.Sprintf("route %s not found", c.Request.URL.Path)))
}

// MethodNotAllowedHandler answers a known path requested with the wrong verb.
func MethodNotAllowedHandler(c *gin.Context) {
	response.Error(c, errors.ErrMethodNotAllowed.WithMessage(
		fmt.Sprintf("method %s not allowed on %s", c.Request.Method, c.Request.URL.Path)))
}
