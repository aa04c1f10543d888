package cmd

import (
	"github.com/oro-build/oro/internal/errs"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
)

var applyValidate bool

var applyCmd = &cobra.Command{
	Use:   "apply [directory]",
	Short: "Resolve and materialize the dependency graph into node_modules",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runApplyCmd,
}

func init() {
	rootCmd.AddCommand(applyCmd)
	applyCmd.Flags().BoolVar(&applyValidate, "validate", false, "verify every cached blob's integrity before applying")
}

func runApplyCmd(cmd *cobra.Command, args []string) error {
	dir := targetDir(args)
	e, err := newEnv(dir)
	if err != nil {
		return err
	}
	defer e.Close()

	if applyValidate {
		checked, corrupted, err := e.store.Verify()
		if err != nil {
			return err
		}
		e.logger.Infof("validated %d cached blobs, %d corrupted", checked, corrupted)
		if corrupted > 0 {
			return zerr.With(errs.ErrIntegrityMismatch, "corrupted", corrupted)
		}
	}

	return runApply(e, dir)
}

func targetDir(args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	return "."
}
