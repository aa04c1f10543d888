package cmd

import (
	"github.com/oro-build/oro/internal/spec"
	"github.com/spf13/cobra"
)

var (
	addSaveDev      bool
	addSaveOptional bool
)

var addCmd = &cobra.Command{
	Use:   "add SPEC [SPEC...]",
	Short: "Add one or more dependencies to package.json, then apply",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAdd,
}

func init() {
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().BoolVarP(&addSaveDev, "save-dev", "D", false, "save to devDependencies")
	addCmd.Flags().BoolVarP(&addSaveOptional, "save-optional", "O", false, "save to optionalDependencies")
}

func runAdd(cmd *cobra.Command, args []string) error {
	dir := "."
	section := "dependencies"
	switch {
	case addSaveDev:
		section = "devDependencies"
	case addSaveOptional:
		section = "optionalDependencies"
	}

	specs := make([]spec.Spec, 0, len(args))
	for _, raw := range args {
		s, err := spec.Parse(raw, dir)
		if err != nil {
			return usageError{err}
		}
		specs = append(specs, s)
	}

	if err := editDependencyMap(dir, section, func(deps map[string]string) {
		for _, s := range specs {
			deps[s.Name] = rangeOf(s)
		}
	}); err != nil {
		return err
	}

	e, err := newEnv(dir)
	if err != nil {
		return err
	}
	defer e.Close()
	return runApply(e, dir)
}

// rangeOf renders the version selector a freshly parsed spec should be
// recorded with in package.json: the selector the user typed after the
// name ("^1.2.0", "latest", "npm:other@^2"), or the whole specifier for
// git and directory specs.
func rangeOf(s spec.Spec) string {
	switch s.Kind {
	case spec.KindRegistryTag:
		return s.Tag
	case spec.KindRegistryRange, spec.KindRegistryVersion:
		return s.Range
	case spec.KindAlias:
		return "npm:" + s.Target.Raw
	default:
		return s.Raw
	}
}
