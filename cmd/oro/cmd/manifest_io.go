package cmd

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/oro-build/oro/internal/apply"
	"github.com/oro-build/oro/internal/errs"
	"github.com/oro-build/oro/internal/manifest"
	"github.com/oro-build/oro/internal/resolve"
	"github.com/oro-build/oro/internal/spec"
	"go.trai.ch/zerr"
)

const manifestFileName = "package.json"

func readManifest(dir string) (manifest.Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFileName))
	if err != nil {
		return manifest.Manifest{}, zerr.With(errs.ErrNotFound, "file", manifestFileName)
	}
	return manifest.Parse(data)
}

// directDeps builds the root resolve tasks from a manifest's declared
// dependency maps. Root peerDependencies are not enqueued as tasks: per
// the resolver's placement rule, a peer is resolved against ancestors
// only, and the project root has none.
func directDeps(m manifest.Manifest, dir string) ([]resolve.Direct, error) {
	var out []resolve.Direct
	add := func(deps map[string]string, kind resolve.DepType) error {
		for _, name := range sortedKeys(deps) {
			s, err := spec.Parse(name+"@"+deps[name], dir)
			if err != nil {
				return err
			}
			out = append(out, resolve.Direct{Spec: s, Kind: kind})
		}
		return nil
	}
	if err := add(m.Dependencies, resolve.DepProd); err != nil {
		return nil, err
	}
	if err := add(m.DevDependencies, resolve.DepDev); err != nil {
		return nil, err
	}
	if err := add(m.OptionalDependencies, resolve.DepOptional); err != nil {
		return nil, err
	}
	return out, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// runApply resolves and materializes dir's dependency graph, honoring the
// environment's lockfile/locked-replay settings, and writes the resulting
// lockfile unless NoLockfile is set.
func runApply(e *env, dir string) error {
	root, err := readManifest(dir)
	if err != nil {
		return err
	}
	deps, err := directDeps(root, dir)
	if err != nil {
		return err
	}

	lock, err := e.loadLockfile(e.cfg.Locked)
	if err != nil {
		return err
	}

	g, err := e.resolver(lock).Resolve(e.ctx, dir, deps)
	if err != nil {
		return err
	}

	if err := apply.Apply(e.ctx, g, apply.Options{
		RootDir:     dir,
		NoScripts:   e.cfg.NoScripts,
		Concurrency: e.cfg.Concurrency,
		Logger:      e.logger,
		Store:       e.store,
	}); err != nil {
		return err
	}

	if !e.cfg.NoLockfile {
		if err := g.ToLockfile(root).Save(dir); err != nil {
			return err
		}
	}
	return nil
}

// editDependencyMap applies edit to the named dependency section of
// package.json, operating on the raw JSON document so unrelated fields
// and key ordering elsewhere in the manifest survive untouched.
func editDependencyMap(dir, section string, edit func(deps map[string]string)) error {
	path := filepath.Join(dir, manifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return zerr.With(errs.ErrNotFound, "file", manifestFileName)
	}

	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return zerr.Wrap(errs.ErrSpecParse, "decoding package.json")
	}

	deps := map[string]string{}
	if raw, ok := doc[section]; ok {
		if err := json.Unmarshal(raw, &deps); err != nil {
			return zerr.Wrap(errs.ErrSpecParse, "decoding "+section)
		}
	}
	edit(deps)

	encoded, err := json.Marshal(deps)
	if err != nil {
		return zerr.Wrap(errs.ErrIO, "encoding "+section)
	}
	doc[section] = encoded

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return zerr.Wrap(errs.ErrIO, "encoding package.json")
	}
	return os.WriteFile(path, append(out, '\n'), 0o644)
}
