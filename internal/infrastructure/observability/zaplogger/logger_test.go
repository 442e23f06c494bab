package zaplogger

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/caffeinepub/kodinar-bazaar/internal/observability"
)

func TestLogger_FieldsAndLevels(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	l := Wrap(zap.New(core)).With(observability.F("request_id", "r-1"))

	l.Debug("hidden")
	l.Info("order_placed", observability.F("order_id", "7"))
	l.Warn("publish_failed", observability.F("error", errors.New("bus full")), observability.F("elapsed", 1500*time.Microsecond))

	require.Equal(t, 2, logs.Len())
	first := logs.All()[0]
	assert.Equal(t, "order_placed", first.Message)
	assert.Equal(t, "r-1", first.ContextMap()["request_id"])
	assert.Equal(t, "7", first.ContextMap()["order_id"])

	second := logs.All()[1].ContextMap()
	assert.Equal(t, "bus full", second["error"])
	assert.InDelta(t, 1.5, second["elapsed_ms"], 0.0001)
}

func TestNew_RejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNew_CreatesLogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	l, err := New(Options{Service: "kodinar-bazaar", Env: "test", LogFile: path})
	require.NoError(t, err)
	l.Info("hello")
	_ = l.Sync()
	assert.FileExists(t, path)
}
