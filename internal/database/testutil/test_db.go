package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/charlesng35/licensewatch/internal/database"
)

// TestDBOption customises MustOpenTestDB.
type TestDBOption func(*testDB)

type testDB struct {
	migrate  bool
	seed     *database.SeedOptions
	logLevel string
}

// WithAutoMigrate creates the schema after opening.
func WithAutoMigrate() TestDBOption {
	return func(o *testDB) { o.migrate = true }
}

// WithSuperuser creates the schema and seeds the bootstrap superuser.
func WithSuperuser(email, password string) TestDBOption {
	return func(o *testDB) {
		o.migrate = true
		o.seed = &database.SeedOptions{SuperuserEmail: email, SuperuserPassword: password}
	}
}

// WithSQLLog turns on gorm statement logging at level (silent|error|warn|info).
func WithSQLLog(level string) TestDBOption {
	return func(o *testDB) { o.logLevel = level }
}

// MustOpenTestDB opens a private in-memory SQLite database with foreign keys
// enforced, so cascade rules behave as they do in production. The handle is
// closed when the test ends.
func MustOpenTestDB(t testing.TB, opts ...TestDBOption) *gorm.DB {
	t.Helper()

	o := testDB{logLevel: "silent"}
	for _, opt := range opts {
		opt(&o)
	}

	// A unique name per call keeps shared-cache databases from leaking rows between tests.
	dsn := fmt.Sprintf("file:lw_%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	db, err := database.Open(database.Config{Driver: "sqlite", DSN: dsn, LogLevel: o.logLevel})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if o.seed != nil {
		require.NoError(t, database.AutoMigrateAndSeed(db, *o.seed))
	} else if o.migrate {
		require.NoError(t, database.AutoMigrate(db))
	}
	return db
}
