package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reel/internal/bus"
	"reel/internal/config"
	"reel/internal/deps"
	"reel/internal/pathmap"
	"reel/internal/queue"
	"reel/internal/reconcile"
	"reel/internal/workflow"
)

const defaultEnvFile = "/etc/reel/reel.env"

func newRescanCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool
	var envFile string
	var direct bool
	var allowUnreadable bool

	cmd := &cobra.Command{
		Use:   "rescan",
		Short: "Re-announce source directories whose outputs are missing",
		Long: "Walks the series and movie source trees, compares every media file with its " +
			"destination and publishes one rip-done event per directory that still has missing outputs. " +
			"Rips ffprobe cannot read are left out. With --direct, or when the bus transport is memory, " +
			"the events are written to the local queue instead.",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			if path := strings.TrimSpace(envFile); path != "" {
				if _, err := config.LoadEnvFile(path); err != nil {
					return fmt.Errorf("load env file: %w", err)
				}
			}
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger := cliLogger("")

			mapper, err := pathmap.New(cfg.Paths)
			if err != nil {
				return err
			}

			run := func(publisher bus.Publisher) error {
				report, err := reconcile.New(mapper, publisher, cfg, logger,
					reconcile.WithHeightReader(reconcile.NewFFprobe(deps.ResolveFFprobePath(cfg.Encoder.Binary), nil)),
					reconcile.WithAllowUnreadable(allowUnreadable),
				).Run(cmd.Context(), dryRun)
				if err != nil {
					return err
				}
				return printReport(cmd, report, dryRun)
			}

			switch {
			case dryRun:
				return run(nil)
			case direct || cfg.Bus.Transport == "memory":
				return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
					mgr, err := newLocalManager(cfg, store, logger)
					if err != nil {
						return err
					}
					return run(queuePublisher{manager: mgr})
				})
			default:
				b, err := openBus(cmd.Context(), cfg, logger)
				if err != nil {
					return err
				}
				defer b.Close()
				return run(b)
			}
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Only show which directories would be announced")
	cmd.Flags().BoolVar(&direct, "direct", false, "Write jobs to the local queue instead of publishing")
	cmd.Flags().BoolVar(&allowUnreadable, "allow-ffprobe-failures", false, "Announce rips even when ffprobe cannot read them")
	cmd.Flags().StringVar(&envFile, "env-file", defaultEnvFile, "KEY=VALUE file applied to unset environment variables")
	return cmd
}

func printReport(cmd *cobra.Command, report reconcile.Report, dryRun bool) error {
	out := cmd.OutOrStdout()
	if len(report.Announcements) == 0 {
		fmt.Fprintln(out, "No missing transcodes detected")
	} else {
		rows := make([][]string, 0, len(report.Announcements))
		for _, ann := range report.Announcements {
			rows = append(rows, []string{
				ann.Event.SourcePath,
				string(ann.Event.Mode),
				string(ann.Event.SourceType),
				strconv.Itoa(len(ann.Missing)),
			})
		}
		fmt.Fprint(out, renderTable(out,
			[]string{"Directory", "Mode", "Source", "Missing"},
			rows,
			[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
		))
	}
	if len(report.SkippedTemp) > 0 {
		fmt.Fprintf(out, "Skipped %d unfinished MakeMKV file(s)\n", len(report.SkippedTemp))
	}
	if len(report.Unreadable) > 0 {
		fmt.Fprintf(out, "%d file(s) ffprobe could not read\n", len(report.Unreadable))
	}
	if dryRun {
		fmt.Fprintf(out, "Dry run: %d announcement(s) not published\n", len(report.Announcements))
		return nil
	}
	fmt.Fprintf(out, "Published %d announcement(s)\n", report.Published)
	return nil
}

// queuePublisher routes announcements straight into the local queue.
type queuePublisher struct {
	manager *workflow.Manager
}

func (p queuePublisher) Publish(ctx context.Context, _ string, payload []byte) error {
	return p.manager.HandleMessage(ctx, payload)
}
