package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("Command failed")
		stop()
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	serve := runServeCommand()

	root := &cobra.Command{
		Use:           "messageflow",
		Short:         "MessageFlow checkout and license backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		// Running the binary without a subcommand starts the server.
		RunE: serve.RunE,
	}

	root.AddCommand(serve)
	root.AddCommand(runLicenseCommand())
	root.AddCommand(runAdminCommand())
	return root
}
