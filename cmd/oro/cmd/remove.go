package cmd

import (
	"github.com/spf13/cobra"
)

var removeCmd = &cobra.Command{
	Use:   "remove NAME [NAME...]",
	Short: "Remove one or more dependencies from package.json, then apply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRemove,
}

func init() {
	rootCmd.AddCommand(removeCmd)
}

func runRemove(cmd *cobra.Command, args []string) error {
	dir := "."

	for _, section := range []string{"dependencies", "devDependencies", "optionalDependencies"} {
		if err := editDependencyMap(dir, section, func(deps map[string]string) {
			for _, name := range args {
				delete(deps, name)
			}
		}); err != nil {
			return err
		}
	}

	e, err := newEnv(dir)
	if err != nil {
		return err
	}
	defer e.Close()
	return runApply(e, dir)
}
