package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oro-build/oro/internal/config"
	"github.com/oro-build/oro/internal/errs"
	"github.com/oro-build/oro/internal/lockfile"
	"github.com/oro-build/oro/internal/log"
	"github.com/oro-build/oro/internal/registry"
	"github.com/oro-build/oro/internal/resolve"
	"github.com/oro-build/oro/internal/source"
	"github.com/oro-build/oro/internal/store"
	"github.com/spf13/cobra"
)

const Version = "0.1.0"

var (
	flagVerbose       bool
	flagLocked        bool
	flagNoScripts     bool
	flagNoLockfile    bool
	flagPreferOffline bool
	flagConcurrency   int
	flagIsolated      bool
)

var rootCmd = &cobra.Command{
	Use:   "oro",
	Short: "Resolve and materialize npm-compatible dependency trees",
	Long: `oro resolves a package.json's dependency graph against an npm-compatible
registry and materializes it into node_modules, the way npm/pnpm/yarn do,
backed by a content-addressable local cache.`,
}

// Execute runs the CLI, mapping errors to exit codes: 0 success, 2 an
// error wrapped as usageError (a specifier that fails to parse in add or
// view), 1 every other failure. Flag and argument-count errors that cobra
// itself detects are not wrapped and exit with 1.
func Execute() {
	rootCmd.SilenceUsage = true
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "oro:", err)
		if _, ok := err.(usageError); ok {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// usageError marks a failure as a usage error (exit code 2) rather than a
// recoverable runtime failure (exit code 1).
type usageError struct{ error }

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().BoolVar(&flagLocked, "locked", false, "fail instead of re-resolving if the lockfile is out of sync")
	rootCmd.PersistentFlags().BoolVar(&flagNoScripts, "no-scripts", false, "skip lifecycle scripts")
	rootCmd.PersistentFlags().BoolVar(&flagNoLockfile, "no-lockfile", false, "do not read or write a lockfile")
	rootCmd.PersistentFlags().BoolVar(&flagPreferOffline, "prefer-offline", false, "prefer cached content over network requests")
	rootCmd.PersistentFlags().IntVar(&flagConcurrency, "concurrency", 0, "maximum concurrent network/extraction operations (0 = default)")
	rootCmd.PersistentFlags().BoolVar(&flagIsolated, "isolated", false, "use isolated (content-addressed) rather than hoisted placement")
}

// env bundles everything a subcommand needs to talk to the engine,
// built once per invocation from flags, environment, and .npmrc.
type env struct {
	dir    string
	cfg    *config.Config
	logger *log.Logger
	client *registry.Client
	store  *store.Store
	router *source.Router
	ctx    context.Context
	cancel context.CancelFunc
}

// newEnv loads configuration for dir and wires the registry client, the
// content-addressable store, and the source router that sits between them,
// applying this invocation's flag overrides on top of the config/env/.npmrc
// defaults.
func newEnv(dir string) (*env, error) {
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	applyFlagOverrides(cfg)

	logger := log.New(flagVerbose)
	client := registry.New(cfg)

	st, err := store.Open(cfg.CacheDir)
	if err != nil {
		return nil, err
	}

	router := source.NewRouter(client, filepath.Join(cfg.CacheDir, "git"), st)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	return &env{dir: dir, cfg: cfg, logger: logger, client: client, store: st, router: router, ctx: ctx, cancel: cancel}, nil
}

// loadLockfile returns the project's existing lockfile, or nil if
// NoLockfile is set or none exists yet. mustExist requires a lockfile to
// already be present (used by "reapply"'s strict replay).
func (e *env) loadLockfile(mustExist bool) (*lockfile.Lockfile, error) {
	if e.cfg.NoLockfile {
		return nil, nil
	}
	lf, err := lockfile.Load(e.dir)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) && !mustExist {
			return nil, nil
		}
		return nil, err
	}
	return lf, nil
}

// resolver builds a Resolver bound to lock (nil for an unlocked resolve).
func (e *env) resolver(lock *lockfile.Lockfile) *resolve.Resolver {
	return resolve.New(e.router, resolve.Options{
		Isolated: e.cfg.Isolated,
		Locked:   e.cfg.Locked,
		Lock:     lock,
		Logger:   e.logger,
	})
}

func applyFlagOverrides(cfg *config.Config) {
	if flagLocked {
		cfg.Locked = true
	}
	if flagNoScripts {
		cfg.NoScripts = true
	}
	if flagNoLockfile {
		cfg.NoLockfile = true
	}
	if flagPreferOffline {
		cfg.PreferOffline = true
	}
	if flagConcurrency > 0 {
		cfg.Concurrency = flagConcurrency
	}
	if flagIsolated {
		cfg.Isolated = true
	}
}

func (e *env) Close() {
	e.cancel()
}
