package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"reel/internal/config"
	"reel/internal/protocol"
	"reel/internal/queue"
)

func newEnqueueCommand(ctx *commandContext) *cobra.Command {
	var mode string
	var sourceType string
	var files []string
	var direct bool

	cmd := &cobra.Command{
		Use:   "enqueue <dir>",
		Short: "Announce a ripped directory as if the ripper had finished it",
		Long: "Publishes a rip-done event for <dir> on the inbound topic. With --direct " +
			"the job is written to the local queue instead; a running daemon picks it up on its next poll.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := filepath.Abs(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve directory: %w", err)
			}
			evt := protocol.RipDoneEvent{
				Version:    cfg.Bus.PayloadVersion,
				SourcePath: dir,
				Mode:       protocol.Mode(mode),
				SourceType: protocol.SourceType(sourceType),
				Files:      files,
			}
			out := cmd.OutOrStdout()

			if direct || cfg.Bus.Transport == "memory" {
				return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
					mgr, err := newLocalManager(cfg, store, cliLogger(""))
					if err != nil {
						return err
					}
					job, err := mgr.Enqueue(cmd.Context(), evt)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "Queued job %d: %s -> %s\n", job.ID, job.SourcePath, job.DestDir)
					return nil
				})
			}

			validated := evt
			if err := validated.Validate(cfg.Bus.PayloadVersion); err != nil {
				return err
			}
			payload, err := validated.Encode()
			if err != nil {
				return err
			}
			b, err := openBus(cmd.Context(), cfg, cliLogger(""))
			if err != nil {
				return err
			}
			defer b.Close()
			if err := b.Publish(cmd.Context(), cfg.Bus.InboundTopic, payload); err != nil {
				return fmt.Errorf("publish: %w", err)
			}
			fmt.Fprintf(out, "Announced %s on %s\n", dir, cfg.Bus.InboundTopic)
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "series", "series or movie")
	cmd.Flags().StringVar(&sourceType, "source-type", "", "dvd or bluray (default: detect)")
	cmd.Flags().StringSliceVar(&files, "file", nil, "Limit the job to these files (repeatable)")
	cmd.Flags().BoolVar(&direct, "direct", false, "Write the job to the local queue instead of publishing")
	return cmd
}
