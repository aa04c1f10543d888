// Package source resolves a parsed spec.Spec into a concrete version and a
// tarball stream, abstracting over the registry, git, and local-directory
// origins a dependency can come from.
//
// Grounded on the teacher's internal/fetch.Fetcher.Fetch: one entry point
// dispatches on the kind of dependency (proxy vs. direct-GitHub vs. BSR) the
// same way Resolve here dispatches on spec.Kind, and the teacher's
// os/exec-based "go list" fallback is the model for gitSource shelling out
// to the system git binary rather than embedding a Git implementation.
package source

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/oro-build/oro/internal/errs"
	"github.com/oro-build/oro/internal/manifest"
	"github.com/oro-build/oro/internal/registry"
	"github.com/oro-build/oro/internal/semver"
	"github.com/oro-build/oro/internal/spec"
	"github.com/oro-build/oro/internal/store"
	"go.trai.ch/zerr"
)

// Resolved is a concrete, fetchable package version.
type Resolved struct {
	Name      string
	Version   string
	Manifest  manifest.Manifest
	Integrity string

	// Fetch streams the package's file tree as a gzip+tar stream whose
	// entries share one leading directory (npm's "package/"). The applier
	// decompresses it and strips that directory.
	Fetch func(ctx context.Context) (io.ReadCloser, error)
}

// Source resolves one Spec kind to a Resolved package.
type Source interface {
	Resolve(ctx context.Context, s spec.Spec) (Resolved, error)
}

// Router dispatches a Spec to the Source that understands its Kind.
type Router struct {
	Registry *registrySource
	Git      *gitSource
	Dir      *dirSource
}

// NewRouter builds a Router backed by a registry client and a scratch
// directory for git checkouts. st is the content-addressable cache every
// Source's Fetch is wrapped with; passing a nil st disables caching (every
// Fetch hits the network or the local tree directly).
func NewRouter(client *registry.Client, gitCacheDir string, st *store.Store) *Router {
	return &Router{
		Registry: &registrySource{client: client, store: st},
		Git:      &gitSource{cacheDir: gitCacheDir, store: st},
		Dir:      &dirSource{},
	}
}

// Resolve dispatches s to the appropriate underlying Source.
func (r *Router) Resolve(ctx context.Context, s spec.Spec) (Resolved, error) {
	switch s.Kind {
	case spec.KindRegistryRange, spec.KindRegistryTag, spec.KindRegistryVersion:
		return r.Registry.Resolve(ctx, s)
	case spec.KindAlias:
		resolved, err := r.Resolve(ctx, *s.Target)
		if err != nil {
			return Resolved{}, err
		}
		resolved.Name = s.Name
		return resolved, nil
	case spec.KindGit:
		return r.Git.Resolve(ctx, s)
	case spec.KindDir:
		return r.Dir.Resolve(ctx, s)
	default:
		return Resolved{}, zerr.With(errs.ErrSpecParse, "kind", int(s.Kind))
	}
}

// registrySource resolves registry-hosted packages via a registry.Client.
type registrySource struct {
	client *registry.Client
	store  *store.Store
}

func (rs *registrySource) Resolve(ctx context.Context, s spec.Spec) (Resolved, error) {
	p, err := rs.client.Packument(ctx, s.Name, s.Scope)
	if err != nil {
		return Resolved{}, err
	}

	version, err := pickVersion(s, p)
	if err != nil {
		return Resolved{}, err
	}

	raw, ok := p.Versions[version]
	if !ok {
		return Resolved{}, zerr.With(errs.ErrNoSatisfyingVersion, "name", s.Name)
	}
	m, err := manifest.Parse(raw)
	if err != nil {
		return Resolved{}, err
	}

	return Resolved{
		Name:      s.Name,
		Version:   version,
		Manifest:  m,
		Integrity: m.Dist.Integrity,
		Fetch: cached(rs.store, s.Name+"@"+version, m.Dist.Integrity, func(ctx context.Context) (io.ReadCloser, error) {
			return rs.client.Tarball(ctx, m.Dist.Tarball)
		}),
	}, nil
}

func pickVersion(s spec.Spec, p *registry.Packument) (string, error) {
	switch s.Kind {
	case spec.KindRegistryVersion:
		if _, ok := p.Versions[s.Range]; !ok {
			return "", zerr.With(errs.ErrNoSatisfyingVersion, "version", s.Range)
		}
		return s.Range, nil
	case spec.KindRegistryTag:
		if v, ok := p.DistTags[s.Tag]; ok {
			return v, nil
		}
		return "", zerr.With(errs.ErrNoSatisfyingVersion, "tag", s.Tag)
	case spec.KindRegistryRange:
		rng, err := semver.ParseRange(s.Range)
		if err != nil {
			return "", err
		}
		versions := make([]string, 0, len(p.Versions))
		for v := range p.Versions {
			versions = append(versions, v)
		}
		sort.Strings(versions)
		best, ok := semver.MaxSatisfying(versions, rng)
		if !ok {
			return "", zerr.With(errs.ErrNoSatisfyingVersion, "range", s.Range)
		}
		return best, nil
	default:
		return "", zerr.With(errs.ErrSpecParse, "kind", int(s.Kind))
	}
}

// gitSource resolves git-hosted packages by shelling out to the system git
// binary, the same os/exec idiom the teacher uses for "go list -m -json".
type gitSource struct {
	cacheDir string
	store    *store.Store
}

func (gs *gitSource) Resolve(ctx context.Context, s spec.Spec) (Resolved, error) {
	dest := filepath.Join(gs.cacheDir, sanitizeForPath(s.URL))
	if _, err := os.Stat(dest); os.IsNotExist(err) {
		if err := runGit(ctx, "", "clone", "--quiet", s.URL, dest); err != nil {
			return Resolved{}, err
		}
	} else {
		if err := runGit(ctx, dest, "fetch", "--quiet", "--all", "--tags"); err != nil {
			return Resolved{}, err
		}
	}

	ref := s.Committish
	if ref == "" && s.SemverRange != "" {
		tag, err := resolveSemverTag(ctx, dest, s.SemverRange)
		if err != nil {
			return Resolved{}, err
		}
		ref = tag
	}
	if ref == "" {
		ref = "HEAD"
	}
	if err := runGit(ctx, dest, "checkout", "--quiet", ref); err != nil {
		return Resolved{}, zerr.With(errs.ErrNetwork, "ref", ref)
	}

	data, err := os.ReadFile(filepath.Join(dest, "package.json"))
	if err != nil {
		return Resolved{}, zerr.Wrap(errs.ErrSpecParse, "reading package.json from git checkout")
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return Resolved{}, err
	}

	return Resolved{
		Name:     s.Name,
		Version:  m.Version,
		Manifest: m,
		Fetch: cached(gs.store, s.Name+"@"+m.Version+"+"+ref, "", func(ctx context.Context) (io.ReadCloser, error) {
			return tarDirectory(dest)
		}),
	}, nil
}

func resolveSemverTag(ctx context.Context, dir, rng string) (string, error) {
	out, err := exec.CommandContext(ctx, "git", "-C", dir, "tag", "--list").Output()
	if err != nil {
		return "", zerr.Wrap(errs.ErrNetwork, "listing git tags")
	}
	r, err := semver.ParseRange(rng)
	if err != nil {
		return "", err
	}
	tags := strings.Fields(string(out))
	best, ok := semver.MaxSatisfying(tags, r)
	if !ok {
		return "", zerr.With(errs.ErrNoSatisfyingVersion, "range", rng)
	}
	return best, nil
}

func runGit(ctx context.Context, dir string, args ...string) error {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}
	if out, err := cmd.CombinedOutput(); err != nil {
		return zerr.With(errs.ErrNetwork, "git_output", strings.TrimSpace(string(out)))
	}
	return nil
}

func sanitizeForPath(s string) string {
	replacer := strings.NewReplacer("/", "_", ":", "_", "@", "_")
	return replacer.Replace(s)
}

// dirSource resolves a local filesystem path (file: / relative-path specs);
// Resolve only reads the manifest, and Fetch tar-streams the directory so
// the apply layer extracts a copy of it like any other package.
// dirSource never caches: a file: dependency is expected to reflect the
// live contents of the local directory on every apply, not a snapshot.
type dirSource struct{}

func (ds *dirSource) Resolve(ctx context.Context, s spec.Spec) (Resolved, error) {
	data, err := os.ReadFile(filepath.Join(s.Path, "package.json"))
	if err != nil {
		return Resolved{}, zerr.Wrap(errs.ErrSpecParse, fmt.Sprintf("reading package.json at %s", s.Path))
	}
	m, err := manifest.Parse(data)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{
		Name:     m.Name,
		Version:  m.Version,
		Manifest: m,
		Fetch: func(ctx context.Context) (io.ReadCloser, error) {
			return tarDirectory(s.Path)
		},
	}, nil
}

// tarDirectory streams dir as a gzip+tar archive, used to hand git/dir
// sources to the apply layer's extractor through the same gzip+tar
// contract registry tarballs use: every entry is rooted under a "package/"
// prefix, matching the wrapper directory npm-registry tarballs carry, since
// sanitizeEntryName strips exactly one leading path component.
func tarDirectory(dir string) (io.ReadCloser, error) {
	pr, pw := io.Pipe()
	go func() {
		gz := gzip.NewWriter(pw)
		tw := tar.NewWriter(gz)
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if info.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			if strings.HasPrefix(rel, ".git"+string(filepath.Separator)) || rel == ".git" {
				return nil
			}
			hdr, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return err
			}
			hdr.Name = "package/" + filepath.ToSlash(rel)
			if err := tw.WriteHeader(hdr); err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = io.Copy(tw, f)
			return err
		})
		if err == nil {
			err = tw.Close()
		}
		if err == nil {
			err = gz.Close()
		}
		pw.CloseWithError(err)
	}()
	return pr, nil
}
