package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/charlesng35/licensewatch/pkg/logger"
)

// Logger writes one structured access log entry per request. Successful
// requests to quietPaths (health probes, scrapes) are logged at debug.
func Logger(quietPaths ...string) gin.HandlerFunc {
	quiet := make(map[string]struct{}, len(quietPaths))
	for _, p := range quietPaths {
		if p = strings.TrimSpace(p); p != "" {
			quiet[p] = struct{}{}
		}
	}
	log := logger.WithModule("http")

	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		entry := log.With(
			zap.String("request_id", c.GetString(CtxRequestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		)
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("duration", time.Since(start)),
			zap.Int("bytes", max(c.Writer.Size(), 0)),
			zap.String("client_ip", c.ClientIP()),
		}
		if route := c.FullPath(); route != "" && route != path {
			fields = append(fields, zap.String("route", route))
		}
		if userID := c.GetString(CtxUserIDKey); userID != "" {
			fields = append(fields, zap.String("user_id", userID))
		}
		if errs := c.Errors.ByType(gin.ErrorTypeAny); len(errs) > 0 {
			fields = append(fields, zap.Strings("errors", errs.Errors()))
		}

		_, isQuiet := quiet[path]
		entry.Log(accessLevel(status, isQuiet), "request", fields...)
	}
}

func accessLevel(status int, quiet bool) zapcore.Level {
	switch {
	case status >= 500:
		return zapcore.ErrorLevel
	case status >= 400:
		return zapcore.WarnLevel
	case quiet:
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
