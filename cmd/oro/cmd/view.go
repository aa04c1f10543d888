package cmd

import (
	"fmt"

	"github.com/oro-build/oro/internal/spec"
	"github.com/spf13/cobra"
)

var viewCmd = &cobra.Command{
	Use:   "view NAME[@SPEC]",
	Short: "Print the resolved metadata for a package specifier",
	Args:  cobra.ExactArgs(1),
	RunE:  runView,
}

func init() {
	rootCmd.AddCommand(viewCmd)
}

func runView(cmd *cobra.Command, args []string) error {
	dir := "."
	s, err := spec.Parse(args[0], dir)
	if err != nil {
		return usageError{err}
	}

	e, err := newEnv(dir)
	if err != nil {
		return err
	}
	defer e.Close()

	resolved, err := e.router.Resolve(e.ctx, s)
	if err != nil {
		return err
	}

	fmt.Printf("%s@%s\n", resolved.Name, resolved.Version)
	fmt.Printf("  integrity:    %s\n", resolved.Integrity)
	fmt.Printf("  tarball:      %s\n", resolved.Manifest.Dist.Tarball)
	fmt.Printf("  dependencies: %d\n", len(resolved.Manifest.Dependencies))
	for _, name := range sortedKeys(resolved.Manifest.Dependencies) {
		fmt.Printf("    %s %s\n", name, resolved.Manifest.Dependencies[name])
	}
	return nil
}
