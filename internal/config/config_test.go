package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadAppliesDefaultsWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, Default().Session.CheckpointEveryMessages, cfg.Session.CheckpointEveryMessages)
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	require.Equal(t, "memory", cfg.Store.Driver)
}

func TestLoadParsesYAMLOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  driver: postgres
  dsn: postgres://localhost/aria
session:
  checkpoint_every_messages: 10
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres", cfg.Store.Driver)
	require.Equal(t, "postgres://localhost/aria", cfg.Store.DSN)
	require.Equal(t, 10, cfg.Session.CheckpointEveryMessages)
}

func TestLoadEnvOverrideWinsOverFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
session:
  checkpoint_every_messages: 10
`), 0o644))

	t.Setenv("ARIA_SESSION_CHECKPOINT_EVERY", "3")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 3, cfg.Session.CheckpointEveryMessages)
}

func TestLoadRejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "core.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
store:
  not_a_real_field: true
`), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadToolsDescriptorResolvesEnvRefs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
web_search:
  enabled: true
  api_key: "env:ARIA_TEST_WEBSEARCH_KEY"
  max_per_minute: 20
knowledge_graph:
  enabled: true
  max_per_minute: 30
`), 0o644))

	t.Setenv("ARIA_TEST_WEBSEARCH_KEY", "secret-value")
	td, err := LoadToolsDescriptor(path)
	require.NoError(t, err)
	require.Equal(t, "secret-value", td.Skills["web_search"].APIKey)
	if _, missing := td.Skills["web_search"].Unavailable(); missing {
		t.Fatal("web_search should not be marked unavailable once its env ref resolves")
	}
	require.Equal(t, 30, td.Skills["knowledge_graph"].MaxPerMinute)
}

func TestLoadToolsDescriptorMarksMissingEnvRefUnavailable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tools.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
web_search:
  enabled: true
  api_key: "env:ARIA_DOES_NOT_EXIST_KEY"
`), 0o644))

	td, err := LoadToolsDescriptor(path)
	require.NoError(t, err)
	missingVar, missing := td.Skills["web_search"].Unavailable()
	require.True(t, missing)
	require.Equal(t, "ARIA_DOES_NOT_EXIST_KEY", missingVar)
}

func TestLoadModelCatalogValidatesReferencedModels(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
primary: ghost-model
fallbacks: []
models: {}
`), 0o644))

	_, err := LoadModelCatalog(path)
	require.Error(t, err)
}

func TestLoadModelCatalogAcceptsValidCatalog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "models.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
primary: a
fallbacks: [b]
models:
  a:
    provider: local
    tool_calling: true
  b:
    provider: openai
    tool_calling: true
`), 0o644))

	cat, err := LoadModelCatalog(path)
	require.NoError(t, err)
	require.Equal(t, "a", cat.Primary)
}
