// lifecycle.go implements the Lifecycle scripts phase (spec §4.7 step 5):
// running preinstall/install/postinstall/prepare scripts in topological
// (children-before-parents) order, with PATH augmented by every ancestor
// node_modules/.bin.
//
// Script execution itself (os/exec.Command with cwd and an augmented PATH)
// is grounded on the teacher's getModuleInfoFromGoList, which shells out to
// "go list" with a prepared Cmd and inspects its exit error — the same
// os/exec.CommandContext + CombinedOutput/exit-code inspection shape is
// reused here for running package.json scripts instead of the go tool.
package apply

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/oro-build/oro/internal/errs"
	"github.com/oro-build/oro/internal/log"
	"go.trai.ch/zerr"
)

var lifecycleScriptNames = []string{"preinstall", "install", "postinstall", "prepare"}

// ScriptNode is the subset of a resolution-graph node lifecycle execution
// needs: install path, its scripts, ancestor .bin directories, and the
// graph node's Optional flag (set when the edge that created the node was
// optional; descendants of an optional node do not carry it).
type ScriptNode struct {
	Name        string
	InstallPath string
	Scripts     map[string]string
	BinDirs     []string // nearest-first chain of ancestor node_modules/.bin
	Optional    bool
}

// RunLifecycleScripts executes preinstall/install/postinstall/prepare for
// each node in nodes, in the given order (callers are expected to have
// already topologically sorted children-before-parents).
func RunLifecycleScripts(ctx context.Context, logger *log.Logger, nodes []ScriptNode) error {
	for _, n := range nodes {
		for _, scriptName := range lifecycleScriptNames {
			cmdline, ok := n.Scripts[scriptName]
			if !ok || cmdline == "" {
				continue
			}
			if err := runScript(ctx, n, scriptName, cmdline); err != nil {
				if n.Optional {
					if logger != nil {
						logger.Warn("optional lifecycle script failed, skipping its remaining scripts", "name", n.Name, "script", scriptName, "err", err)
					}
					break
				}
				return err
			}
		}
	}
	return nil
}

func runScript(ctx context.Context, n ScriptNode, scriptName, cmdline string) error {
	shell, shellArg := "/bin/sh", "-c"
	cmd := exec.CommandContext(ctx, shell, shellArg, cmdline)
	cmd.Dir = n.InstallPath
	cmd.Env = append(os.Environ(), "PATH="+augmentedPath(n.BinDirs))

	out, err := cmd.CombinedOutput()
	if err != nil {
		exitCode := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return zerr.With(errs.ErrLifecycleScriptFailed,
			"name", n.Name, "script", scriptName, "exit_code", exitCode, "output", strings.TrimSpace(string(out)))
	}
	return nil
}

func augmentedPath(binDirs []string) string {
	parts := make([]string, 0, len(binDirs)+1)
	parts = append(parts, binDirs...)
	parts = append(parts, os.Getenv("PATH"))
	return strings.Join(parts, string(os.PathListSeparator))
}

// BinDirChain maps each of dirs (node_modules directories, nearest first)
// to its .bin subdirectory, building the PATH-augmentation chain lifecycle
// scripts need.
func BinDirChain(dirs ...string) []string {
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		out = append(out, filepath.Join(d, ".bin"))
	}
	return out
}
