package throttle

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestThrottle(t *testing.T) (*Throttle, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "signal_throttle.json")
	return New(path, zerolog.Nop()), path
}

func TestAllow_FirstPassesSecondBlocks(t *testing.T) {
	th, _ := newTestThrottle(t)

	assert.True(t, th.Allow("BTCUSDT", 5*time.Minute))
	assert.False(t, th.Allow("BTCUSDT", 5*time.Minute))

	// Independent symbols are not throttled by each other.
	assert.True(t, th.Allow("ETHUSDT", 5*time.Minute))
}

func TestAllow_PassesAfterCooldown(t *testing.T) {
	th, path := newTestThrottle(t)
	require.True(t, th.Allow("BTCUSDT", time.Minute))

	// Rewrite the persisted stamp to the past and reload in a fresh instance.
	stale := map[string]string{
		"BTCUSDT": time.Now().UTC().Add(-2 * time.Minute).Format(time.RFC3339),
	}
	data, err := json.Marshal(stale)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	reloaded := New(path, zerolog.Nop())
	assert.True(t, reloaded.Allow("BTCUSDT", time.Minute))
}

func TestStateSurvivesRestart(t *testing.T) {
	th, path := newTestThrottle(t)
	require.True(t, th.Allow("BTCUSDT", 30*time.Minute))

	// A new instance over the same file must see the prior cooldown.
	reloaded := New(path, zerolog.Nop())
	assert.False(t, reloaded.Allow("BTCUSDT", 30*time.Minute))

	last, ok := reloaded.Last("BTCUSDT")
	require.True(t, ok)
	assert.WithinDuration(t, time.Now().UTC(), last, time.Minute)
}

func TestPersistedFileIsValidJSON(t *testing.T) {
	th, path := newTestThrottle(t)
	require.True(t, th.Allow("SOLUSDT", time.Minute))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var stamps map[string]string
	require.NoError(t, json.Unmarshal(raw, &stamps))
	_, err = time.Parse(time.RFC3339, stamps["SOLUSDT"])
	assert.NoError(t, err)
}

func TestMalformedStateFileStartsFresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), "signal_throttle.json")
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	th := New(path, zerolog.Nop())
	assert.True(t, th.Allow("BTCUSDT", time.Minute))
}
