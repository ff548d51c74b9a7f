package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	log, err := New("production", false)
	require.NoError(t, err)
	assert.NotNil(t, log.SugaredLogger)

	log, err = New("development", true)
	require.NoError(t, err)
	assert.NotNil(t, log.SugaredLogger)
}

func TestLogger_RedactsSecrets(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := NewFromCore(core)

	log.Info("calling model", "api_key", "sk-live-123", "model", "gpt-4o-mini")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["api_key"])
	assert.Equal(t, "gpt-4o-mini", fields["model"])
}

func TestLogger_HashesUserIDs(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	log := NewFromCore(core)

	log.With("user_id", "U123").Warn("duplicate request suppressed")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	hashed, ok := fields["user_id"].(string)
	require.True(t, ok)
	assert.NotEqual(t, "U123", hashed)
	assert.Contains(t, hashed, "hash:")
}

func TestLogger_OddKeyValues(t *testing.T) {
	out := sanitizeKVs([]interface{}{"a", 1, "dangling"})
	assert.Equal(t, []interface{}{"a", 1, "dangling"}, out)
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Info("ignored", "k", "v")
	log.Sync()
}
