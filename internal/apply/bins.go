// bins.go implements the Bins phase (spec §4.7 step 4): wiring a package's
// declared `bin` entries into the nearest node_modules/.bin.
package apply

import (
	"os"
	"path/filepath"
	"runtime"
	"text/template"

	"github.com/oro-build/oro/internal/errs"
	"go.trai.ch/zerr"
)

// LinkBins creates one entry per (name, relativeScript) pair in bin,
// rooted at the install tree's nearest node_modules/.bin directory. On
// Unix this is a symlink to the target script; on Windows it is three
// generated shim files invoking the local Node runtime.
func LinkBins(installPath, nodeModulesDir string, bin map[string]string) error {
	binDir := filepath.Join(nodeModulesDir, ".bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return zerr.Wrap(errs.ErrIO, "creating .bin directory")
	}

	for name, rel := range bin {
		target := filepath.Join(installPath, rel)
		linkPath := filepath.Join(binDir, name)
		os.Remove(linkPath)

		if runtime.GOOS == "windows" {
			if err := writeWindowsShims(linkPath, target); err != nil {
				return err
			}
			continue
		}

		if err := os.Chmod(target, 0o755); err != nil && !os.IsNotExist(err) {
			return zerr.Wrap(errs.ErrIO, "marking bin target executable")
		}
		if err := os.Symlink(target, linkPath); err != nil {
			return zerr.Wrap(errs.ErrIO, "linking bin entry")
		}
	}
	return nil
}

var (
	cmdShimTmpl = template.Must(template.New("cmd").Parse(
		"@node \"%~dp0\\{{.Rel}}\" %*\n"))
	ps1ShimTmpl = template.Must(template.New("ps1").Parse(
		"node \"$PSScriptRoot/{{.Rel}}\" $args\n"))
)

type shimData struct{ Rel string }

func writeWindowsShims(linkPath, target string) error {
	rel, err := filepath.Rel(filepath.Dir(linkPath), target)
	if err != nil {
		rel = target
	}
	data := shimData{Rel: filepath.ToSlash(rel)}

	if err := writeTemplate(linkPath+".cmd", cmdShimTmpl, data); err != nil {
		return err
	}
	if err := writeTemplate(linkPath+".ps1", ps1ShimTmpl, data); err != nil {
		return err
	}
	return os.WriteFile(linkPath, []byte("#!/usr/bin/env node\nrequire(\""+target+"\")\n"), 0o755)
}

func writeTemplate(path string, tmpl *template.Template, data shimData) error {
	f, err := os.Create(path)
	if err != nil {
		return zerr.Wrap(errs.ErrIO, "writing bin shim")
	}
	defer f.Close()
	return tmpl.Execute(f, data)
}
