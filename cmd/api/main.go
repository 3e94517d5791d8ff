package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "cal2",
		Short:        "Meal and workout calorie bot for WhatsApp",
		SilenceUsage: true,
	}
	serve := newServeCommand()
	root.AddCommand(serve, newAnalyzeCommand(), newPruneCommand(), newDebugAudioCommand())
	root.RunE = serve.RunE
	return root
}
