package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_MissingFileReturnsDefaults(t *testing.T) {
	l := NewLoader(filepath.Join(t.TempDir(), "nope.json"))

	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig().Breaker.MaxFailures, cfg.Breaker.MaxFailures)
}

func TestLoader_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orquestra.json")
	body := `{
		"store": {"backend": "memory"},
		"breaker": {"max_failures": 5},
		"history": {"max_turns": 10}
	}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 5, cfg.Breaker.MaxFailures)
	assert.Equal(t, 10, cfg.History.MaxTurns)
	// untouched sections keep defaults
	assert.Equal(t, 60, cfg.Breaker.OpenTTLSeconds)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orquestra.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"breaker": {"max_failures": 5}}`), 0644))

	t.Setenv("ORQUESTRA_BREAKER_MAX_FAILURES", "7")
	t.Setenv("ORQUESTRA_STORE_BACKEND", "memory")

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Breaker.MaxFailures)
	assert.Equal(t, "memory", cfg.Store.Backend)
}

func TestLoader_InvalidConfigRejected(t *testing.T) {
	path := filepath.Join(t.TempDir(), "orquestra.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"store": {"backend": "bogus"}}`), 0644))

	_, err := NewLoader(path).Load()
	assert.ErrorContains(t, err, "store backend")
}
