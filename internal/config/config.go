// Package config binds the resolved runtime configuration (registries,
// auth, cache location, concurrency) from flags, ORO_-prefixed environment
// variables, and .npmrc files, using github.com/spf13/viper the way
// invowk's cmd/invowk/cmd root wires its own viper.Viper instance.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/oro-build/oro/internal/errs"
	"github.com/spf13/viper"
	"go.trai.ch/zerr"
)

// Config is the fully resolved set of knobs an oro invocation runs with.
type Config struct {
	Registry        string
	ScopeRegistries map[string]string
	CacheDir        string
	ProxyURL        string
	Concurrency     int
	Isolated        bool
	NoScripts       bool
	NoLockfile      bool
	PreferOffline   bool
	Locked          bool

	npmrc *Npmrc
}

// Load builds a Config from defaults, environment, and npmrc files found at
// the project root and the user's home directory.
func Load(projectDir string) (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORO")
	v.AutomaticEnv()

	home, _ := os.UserHomeDir()
	defaultCache := filepath.Join(home, ".cache", "oro")
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		defaultCache = filepath.Join(xdg, "oro")
	}

	v.SetDefault("registry", "https://registry.npmjs.org/")
	v.SetDefault("cache_dir", defaultCache)
	v.SetDefault("concurrency", runtime.NumCPU()*4)
	v.SetDefault("isolated", false)
	v.SetDefault("no_scripts", false)
	v.SetDefault("no_lockfile", false)
	v.SetDefault("prefer_offline", false)
	v.SetDefault("locked", false)

	npmrc, err := LoadNpmrc(
		filepath.Join(home, ".npmrc"),
		filepath.Join(projectDir, ".npmrc"),
	)
	if err != nil {
		return nil, err
	}

	scopeRegistries := map[string]string{}
	for key, val := range npmrc.Values {
		if len(key) > 1 && key[0] == '@' {
			scope, suffix, ok := cutRegistrySuffix(key)
			if ok {
				scopeRegistries[scope] = val
				_ = suffix
			}
		}
	}
	if r, ok := npmrc.Values["registry"]; ok {
		v.SetDefault("registry", r)
	}

	cfg := &Config{
		Registry:        v.GetString("registry"),
		ScopeRegistries: scopeRegistries,
		CacheDir:        v.GetString("cache_dir"),
		ProxyURL:        v.GetString("proxy"),
		Concurrency:     v.GetInt("concurrency"),
		Isolated:        v.GetBool("isolated"),
		NoScripts:       v.GetBool("no_scripts"),
		NoLockfile:      v.GetBool("no_lockfile"),
		PreferOffline:   v.GetBool("prefer_offline"),
		Locked:          v.GetBool("locked"),
		npmrc:           npmrc,
	}

	if cfg.Concurrency < 1 {
		return nil, zerr.With(errs.ErrSpecParse, "concurrency", cfg.Concurrency)
	}

	return cfg, nil
}

func cutRegistrySuffix(key string) (scope, suffix string, ok bool) {
	const marker = ":registry"
	if len(key) <= len(marker) || key[len(key)-len(marker):] != marker {
		return "", "", false
	}
	return key[1 : len(key)-len(marker)], marker, true
}

// RegistryForScope returns the configured registry for a scope, falling
// back to the default registry.
func (c *Config) RegistryForScope(scope string) string {
	if scope != "" {
		if r, ok := c.ScopeRegistries[scope]; ok {
			return r
		}
	}
	return c.Registry
}

// AuthToken returns the bearer token configured for origin, if any.
func (c *Config) AuthToken(origin string) (string, bool) {
	if c.npmrc == nil {
		return "", false
	}
	return c.npmrc.AuthTokenFor(origin)
}
