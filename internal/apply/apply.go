// Package apply implements the layout applier (spec §4.7): prune, extract,
// link, bins and lifecycle scripts, turning a resolved dependency graph
// into a real node_modules tree. Writing the lockfile is left to the
// caller.
package apply

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/oro-build/oro/internal/errs"
	"github.com/oro-build/oro/internal/log"
	"github.com/oro-build/oro/internal/resolve"
	"github.com/oro-build/oro/internal/store"
	"golang.org/x/sync/semaphore"
	"go.trai.ch/zerr"
)

// Marker is the content of a node's .oro-installed file: enough to decide,
// on a later run, whether the directory at this path already matches the
// graph's current placement for it.
type Marker struct {
	Name      string `json:"name"`
	Version   string `json:"version"`
	Integrity string `json:"integrity"`
}

const markerFileName = ".oro-installed"

// Options configures one Apply run.
type Options struct {
	RootDir     string
	NoScripts   bool
	Concurrency int
	Logger      *log.Logger

	// Store, when set, routes every extracted file through the
	// content-addressable cache's Link phase (reflink/hardlink/copy from a
	// canonical blob) instead of writing tar bytes straight to disk. Nil
	// disables it.
	Store *store.Store
}

// Apply extracts, links, and finalizes every non-root node of g into
// opts.RootDir/node_modules, then runs lifecycle scripts unless disabled.
// Callers write the lockfile themselves once Apply succeeds, since the
// graph alone (not this package) knows the document-tree shape.
func Apply(ctx context.Context, g *resolve.Graph, opts Options) error {
	if err := Prune(g, opts.RootDir); err != nil {
		return err
	}

	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = runtime.NumCPU() * 2
	}
	sema := semaphore.NewWeighted(int64(concurrency))

	stagingRoot := filepath.Join(opts.RootDir, ".oro-staging")
	if err := os.MkdirAll(stagingRoot, 0o755); err != nil {
		return zerr.Wrap(errs.ErrIO, "creating staging root")
	}
	defer os.RemoveAll(stagingRoot)

	order := nonRootNodes(g)

	errCh := make(chan error, len(order))
	for _, id := range order {
		id := id
		if err := sema.Acquire(ctx, 1); err != nil {
			return zerr.Wrap(errs.ErrCancelled, "acquiring extract slot")
		}
		go func() {
			defer sema.Release(1)
			errCh <- extractOne(ctx, opts.RootDir, stagingRoot, opts.Store, &g.Nodes[id])
		}()
	}
	for range order {
		if err := <-errCh; err != nil {
			return err
		}
	}

	for _, id := range order {
		n := &g.Nodes[id]
		nodeModulesDir := filepath.Dir(n.InstallPath)
		if err := LinkBins(filepath.Join(opts.RootDir, n.InstallPath), filepath.Join(opts.RootDir, nodeModulesDir), n.Resolved.Manifest.Bin); err != nil {
			return err
		}
	}

	if !opts.NoScripts {
		if err := runAllLifecycleScripts(ctx, g, opts); err != nil {
			return err
		}
	}

	return nil
}

func nonRootNodes(g *resolve.Graph) []resolve.NodeID {
	order := make([]resolve.NodeID, 0, len(g.Nodes))
	for id := range g.Nodes {
		if resolve.NodeID(id) != g.Root {
			order = append(order, resolve.NodeID(id))
		}
	}
	return order
}

// extractOne brings a single node's install path up to date: skipped
// entirely if an existing .oro-installed marker already matches the
// node's resolved identity, otherwise fetched, extracted to a staging
// directory, and atomically promoted into place.
func extractOne(ctx context.Context, rootDir, stagingRoot string, st *store.Store, n *resolve.Node) error {
	installPath := filepath.Join(rootDir, n.InstallPath)
	if markerMatches(installPath, n) {
		return nil
	}

	rc, err := n.Resolved.Fetch(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	staging, err := ExtractTarball(ctx, rc, stagingRoot, st)
	if err != nil {
		return err
	}

	if err := PromoteStaging(staging, installPath); err != nil {
		return err
	}

	return writeMarker(installPath, n)
}

func markerMatches(installPath string, n *resolve.Node) bool {
	data, err := os.ReadFile(filepath.Join(installPath, markerFileName))
	if err != nil {
		return false
	}
	var m Marker
	if json.Unmarshal(data, &m) != nil {
		return false
	}
	return m.Name == n.Name && m.Version == n.Version && m.Integrity == n.Resolved.Integrity
}

func writeMarker(installPath string, n *resolve.Node) error {
	m := Marker{Name: n.Name, Version: n.Version, Integrity: n.Resolved.Integrity}
	data, err := json.Marshal(m)
	if err != nil {
		return zerr.Wrap(errs.ErrIO, "encoding install marker")
	}
	if err := os.WriteFile(filepath.Join(installPath, markerFileName), data, 0o644); err != nil {
		return zerr.Wrap(errs.ErrIO, "writing install marker")
	}
	return nil
}

func runAllLifecycleScripts(ctx context.Context, g *resolve.Graph, opts Options) error {
	order := postorderChildrenFirst(g)
	nodes := make([]ScriptNode, 0, len(order))
	for _, id := range order {
		n := &g.Nodes[id]
		if len(n.Resolved.Manifest.Scripts) == 0 {
			continue
		}
		nodes = append(nodes, ScriptNode{
			Name:        n.Name,
			InstallPath: filepath.Join(opts.RootDir, n.InstallPath),
			Scripts:     n.Resolved.Manifest.Scripts,
			BinDirs:     ancestorBinDirs(g, opts.RootDir, id),
			Optional:    n.Optional,
		})
	}
	return RunLifecycleScripts(ctx, opts.Logger, nodes)
}

// ancestorBinDirs builds the nearest-first chain of node_modules/.bin
// directories from id up to the root, the PATH a lifecycle script sees.
func ancestorBinDirs(g *resolve.Graph, rootDir string, id resolve.NodeID) []string {
	var dirs []string
	cur := id
	for {
		n := &g.Nodes[cur]
		dirs = append(dirs, filepath.Join(rootDir, filepath.Dir(n.InstallPath), ".bin"))
		if !n.HasParent {
			break
		}
		cur = n.Parent
	}
	return dirs
}

// postorderChildrenFirst returns every non-root node in an order where
// every child appears before its parent, for lifecycle script execution.
func postorderChildrenFirst(g *resolve.Graph) []resolve.NodeID {
	var order []resolve.NodeID
	visited := make([]bool, len(g.Nodes))
	var visit func(id resolve.NodeID)
	visit = func(id resolve.NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		names := make([]string, 0, len(g.Nodes[id].Children))
		for name := range g.Nodes[id].Children {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			visit(g.Nodes[id].Children[name])
		}
		if id != g.Root {
			order = append(order, id)
		}
	}
	visit(g.Root)
	return order
}
