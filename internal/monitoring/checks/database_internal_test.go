package checks

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSaturated(t *testing.T) {
	full := sql.DBStats{MaxOpenConnections: 4, InUse: 4}
	require.True(t, saturated(full, 2))
	require.False(t, saturated(full, 0))
	require.False(t, saturated(sql.DBStats{MaxOpenConnections: 4, InUse: 1}, 3))
	require.False(t, saturated(sql.DBStats{InUse: 10}, 3))
}

func TestChooseTimeout(t *testing.T) {
	require.Equal(t, time.Second, chooseTimeout(0, time.Second))
	require.Equal(t, 5*time.Millisecond, chooseTimeout(5*time.Millisecond, time.Second))
}
