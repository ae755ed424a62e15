package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestInitInstallsLevelledLogger(t *testing.T) {
	t.Cleanup(Replace(zap.NewNop()))

	require.NoError(t, Init(Options{Level: zapcore.DebugLevel}))
	require.True(t, Logger().Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, Init(Options{Level: zapcore.WarnLevel, Format: FormatConsole}))
	require.False(t, Logger().Core().Enabled(zapcore.InfoLevel))

	SetLevel(zapcore.InfoLevel)
	require.True(t, Logger().Core().Enabled(zapcore.InfoLevel))
}

func TestWithModuleAttachesModuleField(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	t.Cleanup(Replace(zap.New(core)))

	WithModule("notifications").Info("sweep finished")

	entries := recorded.All()
	require.Len(t, entries, 1)
	require.Equal(t, "notifications", entries[0].ContextMap()["module"])
}

func TestReplaceRestoresPrevious(t *testing.T) {
	core, recorded := observer.New(zapcore.InfoLevel)
	t.Cleanup(Replace(zap.New(core)))

	restore := Replace(nil)
	Logger().Info("dropped")
	restore()
	Logger().Info("kept")

	require.Equal(t, 1, recorded.Len())
	require.Equal(t, "kept", recorded.All()[0].Message)
}
