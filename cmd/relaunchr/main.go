package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := buildRoot().ExecuteContext(ctx)
	stop()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command.
type GlobalFlags struct {
	ConfigPath string
	EnvFiles   []string
}

func buildRoot() *cobra.Command {
	global := &GlobalFlags{}
	c := command{global: global}

	root := &cobra.Command{
		Use:   "relaunchr",
		Short: "Keep one executable at the version a remote descriptor names",
		Long: `relaunchr fetches a JSON descriptor, installs the executable it points to
when the version changed, and restarts it with the descriptor's environment.

Examples:
  relaunchr run                                 # one-shot update and restart
  relaunchr serve                               # HTTP trigger surface + scheduler
  relaunchr update --api-url=http://127.0.0.1:8787/api
  relaunchr status`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&global.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringSliceVar(&global.EnvFiles, "env-file", []string{".env"}, "dotenv files to load before reading the config")

	root.AddCommand(
		createRunCommand(c),
		createServeCommand(c),
		createUpdateCommand(c),
		createStartCommand(c),
		createStopCommand(c),
		createStatusCommand(c),
		createLogsCommand(c),
		createSettingsCommand(c),
		createServiceCommand(c),
		createVersionCommand(),
	)
	return root
}
