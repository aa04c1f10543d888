// npmrc.go parses .npmrc-style "key = value" configuration files. The
// line-scanning/quote-handling technique is adapted from the teacher's
// internal/fetch/netrc.go tokenize(), rewritten for npmrc's flat
// key=value grammar instead of netrc's keyword-sequence grammar (npmrc has
// no "machine"/"login"/"password" keywords — it's one assignment per line).
package config

import (
	"bufio"
	"os"
	"strings"

	"github.com/oro-build/oro/internal/errs"
	"go.trai.ch/zerr"
)

// Npmrc is a parsed .npmrc document: flat key/value pairs, where scoped
// registry and per-registry auth keys retain their literal dotted form
// (e.g. "@myorg:registry", "//registry.example.com/:_authToken").
type Npmrc struct {
	Values map[string]string
}

// LoadNpmrc reads and merges npmrc files in npm's precedence order (lowest
// to highest): global, user home, project. Missing files are skipped.
func LoadNpmrc(paths ...string) (*Npmrc, error) {
	merged := &Npmrc{Values: map[string]string{}}
	for _, p := range paths {
		if p == "" {
			continue
		}
		n, err := parseNpmrcFile(p)
		if err != nil {
			return nil, err
		}
		for k, v := range n.Values {
			merged.Values[k] = v
		}
	}
	return merged, nil
}

func parseNpmrcFile(path string) (*Npmrc, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Npmrc{Values: map[string]string{}}, nil
		}
		return nil, zerr.Wrap(errs.ErrIO, "opening npmrc")
	}
	defer f.Close()

	n := &Npmrc{Values: map[string]string{}}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = unquote(strings.TrimSpace(value))
		if key == "" {
			continue
		}
		n.Values[key] = value
	}
	if err := scanner.Err(); err != nil {
		return nil, zerr.Wrap(errs.ErrIO, "scanning npmrc")
	}
	return n, nil
}

// unquote strips a single layer of matching double or single quotes, the
// only quoting npmrc values use (unlike netrc there is no embedded
// whitespace-token splitting to worry about — a value is everything after
// the first "=").
func unquote(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}

// RegistryFor returns the registry URL for scope ("" for the default
// registry), falling back to the default when no scope-specific override
// is configured.
func (n *Npmrc) RegistryFor(scope string) string {
	if scope != "" {
		if v, ok := n.Values["@"+scope+":registry"]; ok {
			return v
		}
	}
	if v, ok := n.Values["registry"]; ok {
		return v
	}
	return "https://registry.npmjs.org/"
}

// AuthTokenFor returns the bearer token configured for a registry origin
// (host, optionally with path prefix), per npm's "//host/path/:_authToken"
// convention.
func (n *Npmrc) AuthTokenFor(origin string) (string, bool) {
	v, ok := n.Values["//"+strings.TrimPrefix(origin, "https://")+"/:_authToken"]
	if ok {
		return v, true
	}
	v, ok = n.Values["//"+strings.TrimPrefix(origin, "http://")+"/:_authToken"]
	return v, ok
}
