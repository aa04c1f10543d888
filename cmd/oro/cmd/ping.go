package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check that the configured registry is reachable",
	Args:  cobra.NoArgs,
	RunE:  runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
}

func runPing(cmd *cobra.Command, args []string) error {
	e, err := newEnv(".")
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.client.Ping(e.ctx); err != nil {
		return err
	}
	fmt.Println("ok:", e.cfg.Registry)
	return nil
}
