package main

import (
	"context"

	"github.com/spf13/cobra"
)

func createServeCommand(c command) *cobra.Command {
	f := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP trigger surface and the update scheduler",
		Long: `Serve the HTTP API, run the startup and periodic update checks and expose
metrics until interrupted.

Examples:
  relaunchr serve --config=relaunchr.toml
  relaunchr serve --daemonize --pidfile=/run/relaunchr.pid --logfile=/var/log/relaunchr.out`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.Daemonize {
				pid, err := daemonize(f.PidFile, f.LogFile)
				if err != nil {
					return err
				}
				cmd.Printf("daemon started with PID %d\n", pid)
				return nil
			}
			if f.PidFile != "" {
				if err := writePidFile(f.PidFile, ownPID()); err != nil {
					return err
				}
				defer func() { _ = removePidFile(f.PidFile) }()
			}
			return c.Serve(cmd.Context())
		},
	}
	cmd.Flags().BoolVar(&f.Daemonize, "daemonize", false, "run in the background")
	cmd.Flags().StringVar(&f.PidFile, "pidfile", "", "write the daemon PID to this file")
	cmd.Flags().StringVar(&f.LogFile, "logfile", "", "redirect the daemon's stdout and stderr to this file")
	return cmd
}

// Serve blocks until ctx is canceled.
func (c command) Serve(ctx context.Context) error {
	sup, err := c.supervisor()
	if err != nil {
		return err
	}
	defer func() { _ = sup.Close() }()
	return sup.Serve(ctx)
}
