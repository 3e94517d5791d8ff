package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/udaypartap979/cal2/internal/config"
	"github.com/udaypartap979/cal2/internal/pipeline"
)

func newPruneCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "prune-debug-audio",
		Short: "Delete preserved voice notes older than DEBUG_AUDIO_RETENTION_HOURS",
		RunE: func(cmd *cobra.Command, _ []string) error {
			removed, err := pipeline.NewFileArchiveFromConfig(config.Load()).Prune()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %d file(s)\n", removed)
			return nil
		},
	}
}

func newDebugAudioCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "debug-audio REF",
		Short: "Print the preserved voice note for a failure reference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok := pipeline.NewFileArchiveFromConfig(config.Load()).Path(args[0])
			if !ok {
				return fmt.Errorf("no preserved audio for reference %q", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}
