package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/becomeliminal/memkit/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "memkit.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "chromem", cfg.Store.Backend)
	assert.Equal(t, "memories", cfg.Store.Collection)
	assert.Equal(t, "mock", cfg.Embedder.Provider)
	assert.Equal(t, 384, cfg.Embedder.Dimensions)
	assert.Empty(t, cfg.LLM.Provider)
	assert.InDelta(t, 0.8, cfg.Memory.SimilarityThreshold, 1e-9)
	assert.InDelta(t, 0.7, cfg.Memory.Alpha, 1e-9)
	assert.InDelta(t, 0.2, cfg.Memory.Beta, 1e-9)
	assert.InDelta(t, 0.1, cfg.Memory.Gamma, 1e-9)
	assert.InDelta(t, 0.01, cfg.Memory.DecayRate, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.Memory.CollaboratorTimeout)
	assert.False(t, cfg.Memory.SerializeWrites)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "chromem", cfg.Store.Backend)
}

func TestLoadFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9090"
store:
  backend: qdrant
  url: qdrant.internal:6334
memory:
  similarity_threshold: 0.9
  collaborator_timeout: 45s
  serialize_writes: true
`)

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, "qdrant", cfg.Store.Backend)
	assert.Equal(t, "qdrant.internal:6334", cfg.Store.URL)
	assert.InDelta(t, 0.9, cfg.Memory.SimilarityThreshold, 1e-9)
	assert.Equal(t, 45*time.Second, cfg.Memory.CollaboratorTimeout)
	assert.True(t, cfg.Memory.SerializeWrites)

	// Untouched sections keep their defaults.
	assert.Equal(t, "mock", cfg.Embedder.Provider)
	assert.InDelta(t, 0.7, cfg.Memory.Alpha, 1e-9)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
store:
  backend: chromem
`)
	t.Setenv("MEMKIT_STORE__BACKEND", "qdrant")
	t.Setenv("MEMKIT_STORE__API_KEY", "secret")
	t.Setenv("MEMKIT_EMBEDDER__PROVIDER", "openai")
	t.Setenv("MEMKIT_EMBEDDER__API_KEY", "sk-test")

	cfg, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "qdrant", cfg.Store.Backend)
	assert.Equal(t, "secret", cfg.Store.APIKey)
	assert.Equal(t, "openai", cfg.Embedder.Provider)
	assert.Equal(t, "sk-test", cfg.Embedder.APIKey)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("unknown store backend", func(t *testing.T) {
		path := writeConfig(t, "store:\n  backend: cassandra\n")
		_, err := config.Load(path)
		assert.Error(t, err)
	})

	t.Run("unknown llm provider", func(t *testing.T) {
		path := writeConfig(t, "llm:\n  provider: parrot\n")
		_, err := config.Load(path)
		assert.Error(t, err)
	})

	t.Run("threshold above 1", func(t *testing.T) {
		path := writeConfig(t, "memory:\n  similarity_threshold: 1.5\n")
		_, err := config.Load(path)
		assert.Error(t, err)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		path := writeConfig(t, "store: [")
		_, err := config.Load(path)
		assert.Error(t, err)
	})
}

func TestDefault(t *testing.T) {
	d := config.Default()
	assert.Equal(t, "chromem", d.Store.Backend)
	assert.Equal(t, int64(10_000), d.Embedder.CacheSize)
	assert.Equal(t, "memory_events.jsonl", d.EventLog.Path)
}
