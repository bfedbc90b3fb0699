package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenFilesMissing(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(filepath.Join(dir, ".env"), filepath.Join(dir, "config.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "pomoc_ukrainie", cfg.Store.Collection)
	assert.Equal(t, "qwen2:7b", cfg.LLM.Model)
	assert.Equal(t, "compact", cfg.Engine.SynthesisMode)
	assert.Equal(t, 768, cfg.Embedding.Dimension)
}

func TestLoadYAMLThenEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(`
store:
  backend: memory
  collection: test_col
engine:
  top_k: 7
  synthesis_mode: tree_summarize
loader:
  monitoring_time: 2s
`), 0o644))

	envPath := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envPath, []byte("LLM_MODEL=llama3.2\n"), 0o644))
	t.Cleanup(func() { os.Unsetenv("LLM_MODEL") })
	t.Setenv("TOP_K", "4")
	t.Setenv("SHOW_SOURCES", "false")

	cfg, err := Load(envPath, yamlPath)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, "test_col", cfg.Store.Collection)
	assert.Equal(t, 4, cfg.Engine.TopK)
	assert.Equal(t, "tree_summarize", cfg.Engine.SynthesisMode)
	assert.False(t, cfg.Engine.ShowSources)
	assert.Equal(t, 2*time.Second, cfg.Loader.MonitoringTime)
	assert.Equal(t, "llama3.2", os.Getenv("LLM_MODEL"))
	assert.Equal(t, "llama3.2", cfg.LLM.Model)
}

func TestLoadRejectsBadValues(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("PG_PORT", "not-a-number")
	_, err := Load("", filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PG_PORT")
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Store.Backend = "chroma"
	cfg.Engine.SynthesisMode = "refine"
	cfg.Loader.ChunkOverlap = cfg.Loader.ChunkSize
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chroma")
	assert.Contains(t, err.Error(), "refine")
	assert.Contains(t, err.Error(), "invalid chunking")
}

func TestConnString(t *testing.T) {
	p := PostgresConfig{Host: "db", Port: 5433, User: "u", Password: "p", DBName: "x", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=x sslmode=disable", p.ConnString())
}
