package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/oro-build/oro/internal/manifest"
	"github.com/oro-build/oro/internal/resolve"
	"github.com/stretchr/testify/require"
)

func writeManifest(t *testing.T, dir, contents string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, manifestFileName), []byte(contents), 0o644))
}

func TestSortedKeysIsDeterministic(t *testing.T) {
	keys := sortedKeys(map[string]string{"zeta": "1.0.0", "alpha": "2.0.0", "mid": "3.0.0"})
	require.Equal(t, []string{"alpha", "mid", "zeta"}, keys)
}

func TestDirectDepsCoversAllThreeSections(t *testing.T) {
	dir := t.TempDir()
	m := manifest.Manifest{
		Dependencies:         map[string]string{"left-pad": "^1.0.0"},
		DevDependencies:      map[string]string{"tape": "^5.0.0"},
		OptionalDependencies: map[string]string{"fsevents": "^2.0.0"},
	}

	deps, err := directDeps(m, dir)
	require.NoError(t, err)
	require.Len(t, deps, 3)

	byName := map[string]resolve.DepType{}
	for _, d := range deps {
		byName[d.Spec.Name] = d.Kind
	}
	require.Equal(t, resolve.DepProd, byName["left-pad"])
	require.Equal(t, resolve.DepDev, byName["tape"])
	require.Equal(t, resolve.DepOptional, byName["fsevents"])
}

func TestDirectDepsIgnoresRootPeerDependencies(t *testing.T) {
	dir := t.TempDir()
	m := manifest.Manifest{
		Dependencies:     map[string]string{"left-pad": "^1.0.0"},
		PeerDependencies: map[string]string{"react": "^18.0.0"},
	}

	deps, err := directDeps(m, dir)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	require.Equal(t, "left-pad", deps[0].Spec.Name)
}

func TestEditDependencyMapAddsAndPreservesOtherFields(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{
  "name": "demo",
  "version": "1.0.0",
  "dependencies": {"left-pad": "^1.0.0"},
  "scripts": {"test": "echo ok"}
}`)

	err := editDependencyMap(dir, "dependencies", func(deps map[string]string) {
		deps["is-even"] = "^1.0.0"
	})
	require.NoError(t, err)

	m, err := readManifest(dir)
	require.NoError(t, err)
	require.Equal(t, "demo", m.Name)
	require.Equal(t, "^1.0.0", m.Dependencies["left-pad"])
	require.Equal(t, "^1.0.0", m.Dependencies["is-even"])
	require.Equal(t, "echo ok", m.Scripts["test"])
}

func TestEditDependencyMapRemovesEntry(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `{"name":"demo","dependencies":{"left-pad":"^1.0.0","is-even":"^1.0.0"}}`)

	err := editDependencyMap(dir, "dependencies", func(deps map[string]string) {
		delete(deps, "left-pad")
	})
	require.NoError(t, err)

	m, err := readManifest(dir)
	require.NoError(t, err)
	require.NotContains(t, m.Dependencies, "left-pad")
	require.Equal(t, "^1.0.0", m.Dependencies["is-even"])
}

func TestEditDependencyMapMissingManifestErrors(t *testing.T) {
	dir := t.TempDir()
	err := editDependencyMap(dir, "dependencies", func(deps map[string]string) {})
	require.Error(t, err)
}
