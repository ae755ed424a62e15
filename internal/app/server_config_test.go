package app

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestConnectionConfig(t *testing.T) {
	pg := DatabaseConfig{
		Driver:       " PostgreSQL ",
		MaxOpenConns: 8,
		Options:      map[string]string{"sslmode": "require"},
		Postgres: DBAuthConfig{
			Host: " db ", Port: 5432, Database: "licenses", Username: "lw", Password: " secret ",
		},
	}.ConnectionConfig()
	require.Equal(t, "postgres", pg.Driver)
	require.Equal(t, "db", pg.Host)
	require.Equal(t, 5432, pg.Port)
	require.Equal(t, "licenses", pg.Name)
	require.Equal(t, " secret ", pg.Password)
	require.Equal(t, 8, pg.MaxOpenConns)
	require.Equal(t, "require", pg.Options["sslmode"])

	my := DatabaseConfig{Driver: "mariadb", MySQL: DBAuthConfig{Host: "mysql", Database: "lw"}}.ConnectionConfig()
	require.Equal(t, "mysql", my.Driver)
	require.Equal(t, "mysql", my.Host)

	lite := DatabaseConfig{Path: " ./data/lw.db ", Postgres: DBAuthConfig{Host: "ignored"}}.ConnectionConfig()
	require.Equal(t, "sqlite", lite.Driver)
	require.Equal(t, "./data/lw.db", lite.Path)
	require.Empty(t, lite.Host)

	require.Equal(t, "oracle", DatabaseConfig{Driver: "Oracle"}.ConnectionConfig().Driver)
}

func TestHTTPServer(t *testing.T) {
	handler := http.NewServeMux()
	srv := ServerConfig{Port: 9090, IdleTimeout: time.Minute}.HTTPServer(handler)
	require.Equal(t, ":9090", srv.Addr)
	require.Equal(t, defaultReadHeaderTimeout, srv.ReadHeaderTimeout)
	require.Equal(t, time.Minute, srv.IdleTimeout)
	require.Zero(t, srv.WriteTimeout)

	require.Equal(t, defaultShutdownTimeout, ServerConfig{}.GracePeriod())
	require.Equal(t, time.Second, ServerConfig{ShutdownTimeout: time.Second}.GracePeriod())
}
