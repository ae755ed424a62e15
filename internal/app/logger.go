package app

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/charlesng35/licensewatch/pkg/logger"
)

const defaultServiceName = "licensewatch"

// ConfigureLogging installs the global logger described by the server
// settings and tags every entry with the service name. Unknown levels or
// formats are an error.
func ConfigureLogging(cfg *Config) error {
	level, format, err := cfg.Server.loggingOptions()
	if err != nil {
		return err
	}
	service := defaultServiceName
	if name := strings.TrimSpace(cfg.Notifications.ProjectName); name != "" {
		service = name
	}
	return logger.Init(logger.Options{
		Level:  level,
		Format: format,
		Fields: []zap.Field{zap.String("service", service)},
	})
}

func (s ServerConfig) loggingOptions() (zapcore.Level, string, error) {
	level := zapcore.InfoLevel
	if raw := strings.TrimSpace(s.LogLevel); raw != "" {
		if err := level.UnmarshalText([]byte(strings.ToLower(raw))); err != nil {
			return level, "", fmt.Errorf("server.log_level %q: %w", raw, err)
		}
	}

	format := strings.ToLower(strings.TrimSpace(s.LogFormat))
	switch format {
	case "", "json":
		format = "json"
	case logger.FormatConsole:
	default:
		return level, "", fmt.Errorf("server.log_format %q: want json or console", s.LogFormat)
	}
	return level, format, nil
}
