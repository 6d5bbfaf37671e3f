package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loykin/relaunchr"
)

func createRunCommand(c command) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Check for a new version, install it and restart the executable",
		Long: `Run the update flow once and exit. The exit status is non-zero when the
run fails.

Examples:
  relaunchr run
  relaunchr run --force   # reinstall even when the version is unchanged`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Run(cmd.Context(), force)
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "reinstall even when versions match")
	return cmd
}

func createUpdateCommand(c command) *cobra.Command {
	f := &UpdateFlags{}
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Trigger the update flow",
		Long: `Trigger the update flow on a running daemon, which answers at once, or run
it locally and wait when no --api-url is given.

Examples:
  relaunchr update --api-url=http://127.0.0.1:8787/api
  relaunchr update --force`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Update(cmd.Context(), *f)
		},
	}
	cmd.Flags().BoolVar(&f.Force, "force", false, "reinstall even when versions match")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createStartCommand(c command) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the managed executable unless it is already running",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Start(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createStopCommand(c command) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop every running instance of the managed executable",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Stop(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createStatusCommand(c command) *cobra.Command {
	f := &APIFlags{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the orchestrator phase, last run and running instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Status(cmd.Context(), *f)
		},
	}
	addAPIFlags(cmd, f)
	return cmd
}

func createLogsCommand(c command) *cobra.Command {
	f := &LogsFlags{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent supervisor log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.Logs(cmd.Context(), *f)
		},
	}
	cmd.Flags().IntVar(&f.Limit, "limit", 100, "number of lines")
	addAPIFlags(cmd, &f.APIFlags)
	return cmd
}

func createSettingsCommand(c command) *cobra.Command {
	settings := &cobra.Command{
		Use:   "settings",
		Short: "Show or save the supervisor settings",
	}
	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SettingsShow()
		},
	}
	f := &SettingsSaveFlags{}
	save := &cobra.Command{
		Use:   "save",
		Short: "Persist the remote URL, executable path and token",
		Long: `Write the effective configuration, with the given fields applied, to a TOML
file readable only by its owner.

Examples:
  relaunchr settings save --remote-url=https://example.com/config.json --executable=./app
  relaunchr --config=/etc/relaunchr.toml settings save --token=$TOKEN`,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := c.SettingsSave(*f)
			return err
		},
	}
	save.Flags().StringVar(&f.Path, "path", "", "file to write (defaults to --config, then "+DefaultConfigFile+")")
	save.Flags().StringVar(&f.RemoteURL, "remote-url", "", "descriptor URL")
	save.Flags().StringVar(&f.Executable, "executable", "", "managed executable path")
	save.Flags().StringVar(&f.Token, "token", "", "access token for the descriptor")
	tf := &SettingsTokenFlags{}
	token := &cobra.Command{
		Use:   "token",
		Short: "Generate an API token and the bcrypt hash to put in [server.auth] tokens",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.SettingsToken(*tf)
		},
	}
	token.Flags().StringVar(&tf.Token, "token", "", "hash this token instead of generating one")
	token.Flags().IntVar(&tf.Cost, "cost", 0, "bcrypt cost (0 uses [server.auth] bcrypt_cost, then the bcrypt default)")
	settings.AddCommand(show, save, token)
	return settings
}

func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the relaunchr version",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), relaunchr.Version)
			return err
		},
	}
}
