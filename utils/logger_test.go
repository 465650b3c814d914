package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLogger(t *testing.T) {
	previous := Logger
	t.Cleanup(func() {
		Logger = previous
	})

	require.NoError(t, InitLogger("release"))
	assert.False(t, Logger.Core().Enabled(zapcore.DebugLevel))

	require.NoError(t, InitLogger("debug"))
	assert.True(t, Logger.Core().Enabled(zapcore.DebugLevel))
}

func TestLoggerDefaultsToNop(t *testing.T) {
	require.NotNil(t, Logger)
	assert.NotPanics(t, func() {
		Logger.Info("library use before InitLogger", zap.Int("attempt", 1))
		Sync()
	})
}
