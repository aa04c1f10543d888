package cmd

import (
	"github.com/oro-build/oro/internal/errs"
	"github.com/spf13/cobra"
	"go.trai.ch/zerr"
)

var reapplyValidate bool

var reapplyCmd = &cobra.Command{
	Use:   "reapply [directory]",
	Short: "Re-materialize node_modules strictly from the existing lockfile",
	Long: `reapply is equivalent to "oro apply --locked": it requires a lockfile to
already be present and fails rather than re-resolving if the manifest and
lockfile have drifted apart.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runReapply,
}

func init() {
	rootCmd.AddCommand(reapplyCmd)
	reapplyCmd.Flags().BoolVar(&reapplyValidate, "validate", false, "verify every cached blob's integrity before reapplying")
}

func runReapply(cmd *cobra.Command, args []string) error {
	dir := targetDir(args)
	e, err := newEnv(dir)
	if err != nil {
		return err
	}
	defer e.Close()
	e.cfg.Locked = true

	if reapplyValidate {
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
