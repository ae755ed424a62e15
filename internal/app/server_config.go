package app

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charlesng35/licensewatch/internal/database"
)

const (
	defaultReadHeaderTimeout = 10 * time.Second
	defaultShutdownTimeout   = 15 * time.Second
)

// HTTPServer returns the listener for handler. No write timeout is set since
// websocket connections stay open indefinitely.
func (s ServerConfig) HTTPServer(handler http.Handler) *http.Server {
	readHeader := s.ReadHeaderTimeout
	if readHeader <= 0 {
		readHeader = defaultReadHeaderTimeout
	}
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.Port),
		Handler:           handler,
		ReadHeaderTimeout: readHeader,
		IdleTimeout:       s.IdleTimeout,
	}
}

// GracePeriod bounds how long shutdown waits for in-flight work.
func (s ServerConfig) GracePeriod() time.Duration {
	if s.ShutdownTimeout <= 0 {
		return defaultShutdownTimeout
	}
	return s.ShutdownTimeout
}

// ConnectionConfig maps the selected driver's section onto database.Config.
// Unknown drivers pass through so database.Open reports them.
func (d DatabaseConfig) ConnectionConfig() database.Config {
	cfg := database.Config{
		Driver:          strings.ToLower(strings.TrimSpace(d.Driver)),
		Path:            strings.TrimSpace(d.Path),
		DSN:             strings.TrimSpace(d.DSN),
		LogLevel:        strings.TrimSpace(d.LogLevel),
		Options:         d.Options,
		MaxOpenConns:    d.MaxOpenConns,
		MaxIdleConns:    d.MaxIdleConns,
		ConnMaxLifetime: d.ConnMaxLifetime,
	}

	var host DBAuthConfig
	switch cfg.Driver {
	case "", "sqlite", "sqlite3":
		cfg.Driver = "sqlite"
		return cfg
	case "postgres", "postgresql":
		cfg.Driver = "postgres"
		host = d.Postgres
	case "mysql", "mariadb":
		cfg.Driver = "mysql"
		host = d.MySQL
	default:
		return cfg
	}

	cfg.Host = strings.TrimSpace(host.Host)
	cfg.Port = host.Port
	cfg.Name = strings.TrimSpace(host.Database)
	cfg.User = strings.TrimSpace(host.Username)
	cfg.Password = host.Password
	return cfg
}
