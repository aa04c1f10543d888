// prune.go implements the Prune phase (spec §4.7 step 1): walking the
// existing node_modules tree and removing any package directory that is no
// longer named by the resolved graph, before extraction begins.
package apply

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/oro-build/oro/internal/errs"
	"github.com/oro-build/oro/internal/resolve"
	"go.trai.ch/zerr"
)

// Prune removes every directory under rootDir/node_modules whose relative
// path is not an InstallPath of g, including stale entries under the
// isolated-placement virtual store (node_modules/.oro/<name>@<version>).
// A package directory that still resolves is recursed into so its own
// stale nested dependencies are pruned too.
func Prune(g *resolve.Graph, rootDir string) error {
	valid := make(map[string]bool, len(g.Nodes))
	for i := range g.Nodes {
		if resolve.NodeID(i) == g.Root {
			continue
		}
		valid[filepath.Clean(g.Nodes[i].InstallPath)] = true
	}
	return pruneDir(filepath.Join(rootDir, "node_modules"), "node_modules", valid)
}

func pruneDir(absDir, relDir string, valid map[string]bool) error {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return zerr.Wrap(errs.ErrIO, "reading node_modules during prune")
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		if name == ".bin" || strings.HasPrefix(name, ".oro-staging") {
			continue
		}
		abs := filepath.Join(absDir, name)
		relPath := filepath.Join(relDir, name)

		switch {
		case name == ".oro":
			if err := pruneIsolatedStore(abs, relPath, valid); err != nil {
				return err
			}
		case strings.HasPrefix(name, "@"):
			// Scope directories are never themselves an install path;
			// descend one level to reach the actual package directories.
			if err := pruneDir(abs, relPath, valid); err != nil {
				return err
			}
			removeIfEmpty(abs)
		default:
			if valid[relPath] {
				nested := filepath.Join(abs, "node_modules")
				if err := pruneDir(nested, filepath.Join(relPath, "node_modules"), valid); err != nil {
					return err
				}
				continue
			}
			if err := os.RemoveAll(abs); err != nil {
				return zerr.Wrap(errs.ErrIO, "removing stale package directory")
			}
		}
	}
	return nil
}

// pruneIsolatedStore walks node_modules/.oro, whose entries are
// "<name>@<version>" containers each holding their own node_modules/<name>.
func pruneIsolatedStore(absDir, relDir string, valid map[string]bool) error {
	entries, err := os.ReadDir(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return zerr.Wrap(errs.ErrIO, "reading isolated store during prune")
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		abs := filepath.Join(absDir, e.Name())
		nested := filepath.Join(abs, "node_modules")
		if err := pruneDir(nested, filepath.Join(relDir, e.Name(), "node_modules"), valid); err != nil {
			return err
		}
		removeIfEmpty(abs)
	}
	return nil
}

// removeIfEmpty deletes dir if pruning has left it with no files anywhere
// in its subtree, tidying up emptied scope and isolated-store containers.
func removeIfEmpty(dir string) {
	empty := true
	filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !empty {
			return err
		}
		if !d.IsDir() {
			empty = false
		}
		return nil
	})
	if empty {
		os.RemoveAll(dir)
	}
}
