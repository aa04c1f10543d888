// Package errs defines the error kinds surfaced by the engine.
//
// Every kind is a sentinel created with zerr.New so callers can test for it
// with errors.Is, while zerr.Wrap/zerr.With let each propagation site attach
// a human-readable summary and contextual fields (package name, URL, path,
// expected integrity, ...) without losing the sentinel identity.
package errs

import "go.trai.ch/zerr"

var (
	ErrSpecParse             = zerr.New("could not parse package spec")
	ErrNoSatisfyingVersion   = zerr.New("no version satisfies the requested range")
	ErrNetwork               = zerr.New("network request failed")
	ErrAuthRequired          = zerr.New("registry requires authentication")
	ErrIntegrityMismatch     = zerr.New("integrity mismatch")
	ErrContentMissing        = zerr.New("blob missing from store")
	ErrLockfileOutOfSync     = zerr.New("lockfile is out of sync with the manifest")
	ErrLockfileCorrupt       = zerr.New("lockfile is corrupt")
	ErrTarExtract            = zerr.New("failed to extract tarball")
	ErrPlacementConflict     = zerr.New("placement conflict in output tree")
	ErrLifecycleScriptFailed = zerr.New("lifecycle script failed")
	ErrOptionalFailed        = zerr.New("optional dependency failed")
	ErrCancelled             = zerr.New("operation cancelled")
	ErrTimeout               = zerr.New("operation timed out")
	ErrIO                    = zerr.New("i/o error")
	ErrCycle                 = zerr.New("cycle in peer dependencies")
	ErrNotFound              = zerr.New("not found")
)
