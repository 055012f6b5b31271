package config

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func envSnapshot(t *testing.T) func() {
	t.Helper()
	saved := map[string]string{}
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "ANKURAH_") {
			parts := strings.SplitN(env, "=", 2)
			saved[parts[0]] = os.Getenv(parts[0])
			os.Unsetenv(parts[0])
		}
	}
	return func() {
		for k, val := range saved {
			os.Setenv(k, val)
		}
	}
}

func TestInitializeSetsDefaults(t *testing.T) {
	restore := envSnapshot(t)
	defer restore()

	require.NoError(t, Initialize())
	assert.Equal(t, "sqlite", GetString("storage-backend"))
	assert.Equal(t, 4222, GetInt("nats-port"))
	assert.False(t, GetBool("no-daemon"))
	assert.Equal(t, 30*time.Second, GetDuration("flush-debounce"))
}

func TestEnvironmentOverride(t *testing.T) {
	restore := envSnapshot(t)
	defer restore()

	os.Setenv("ANKURAH_ACTOR", "alice")
	os.Setenv("ANKURAH_NATS_PORT", "5555")
	require.NoError(t, Initialize())

	assert.Equal(t, "alice", GetString("actor"))
	assert.Equal(t, 5555, GetInt("nats-port"))
}
