package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"reel/internal/hwlock"
)

func newLockCommand(ctx *commandContext) *cobra.Command {
	lockCmd := &cobra.Command{
		Use:   "lock",
		Short: "Inspect the hardware encoder lock",
	}
	lockCmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Report whether another process holds the hardware lock",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			lock := hwlock.New(cfg.Hardware.LockPath, cfg.LockPollInterval())
			held, err := lock.Held()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Lock file: %s\n", lock.Path())
			fmt.Fprintf(out, "Held:      %s\n", yesNo(held))
			return nil
		},
	})
	return lockCmd
}
