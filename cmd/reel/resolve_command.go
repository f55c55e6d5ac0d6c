package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"reel/internal/pathmap"
	"reel/internal/protocol"
	"reel/internal/workflow"
)

func newResolveCommand(ctx *commandContext) *cobra.Command {
	var mode string

	cmd := &cobra.Command{
		Use:   "resolve <dir>",
		Short: "Show where the media files of a source directory would be written",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			mapper, err := pathmap.New(cfg.Paths)
			if err != nil {
				return err
			}
			dir, err := filepath.Abs(strings.TrimSpace(args[0]))
			if err != nil {
				return fmt.Errorf("resolve directory: %w", err)
			}
			parsed, err := protocol.ParseMode(mode)
			if err != nil {
				return err
			}
			res, err := mapper.Resolve(dir, parsed)
			if err != nil {
				return err
			}
			stop := res.Root.Dir
			if stop == "" {
				stop = dir
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Layout:       %s\n", mapper.Layout())
			fmt.Fprintf(out, "Mode:         %s\n", res.Mode)
			fmt.Fprintf(out, "Source type:  %s\n", pathmap.DetectSourceType(dir, stop, res.SourceType))
			fmt.Fprintf(out, "Destination:  %s\n", res.DestDir)

			files, err := workflow.ListMediaFiles(dir, cfg.Paths.MediaExtensions, nil)
			if err != nil {
				fmt.Fprintf(out, "Media files:  unreadable (%v)\n", err)
				return nil
			}
			rows := make([][]string, 0, len(files))
			for _, rel := range files {
				output, err := mapper.OutputPath(res, dir, rel)
				if err != nil {
					return err
				}
				rows = append(rows, []string{rel, output, yesNo(pathmap.OutputExists(output))})
			}
			if len(rows) > 0 {
				fmt.Fprint(out, renderTable(out, []string{"File", "Output", "Exists"}, rows, nil))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&mode, "mode", "series", "series or movie")
	return cmd
}
