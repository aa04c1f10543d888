package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWhenNoNpmrcPresent(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "https://registry.npmjs.org/", cfg.Registry)
	require.Greater(t, cfg.Concurrency, 0)
}

func TestLoadPicksUpProjectNpmrcRegistry(t *testing.T) {
	dir := t.TempDir()
	npmrcPath := filepath.Join(dir, ".npmrc")
	require.NoError(t, os.WriteFile(npmrcPath, []byte("registry = https://custom.example.com/\n"), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "https://custom.example.com/", cfg.Registry)
}

func TestLoadPicksUpScopedRegistry(t *testing.T) {
	dir := t.TempDir()
	npmrcPath := filepath.Join(dir, ".npmrc")
	content := "registry = https://registry.npmjs.org/\n@myorg:registry = https://npm.myorg.example.com/\n"
	require.NoError(t, os.WriteFile(npmrcPath, []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	require.Equal(t, "https://npm.myorg.example.com/", cfg.RegistryForScope("myorg"))
	require.Equal(t, "https://registry.npmjs.org/", cfg.RegistryForScope(""))
}

func TestAuthTokenLookup(t *testing.T) {
	dir := t.TempDir()
	npmrcPath := filepath.Join(dir, ".npmrc")
	content := "//registry.npmjs.org/:_authToken=abc123\n"
	require.NoError(t, os.WriteFile(npmrcPath, []byte(content), 0o644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	token, ok := cfg.AuthToken("https://registry.npmjs.org")
	require.True(t, ok)
	require.Equal(t, "abc123", token)
}
