package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

// APIFlags select a running daemon instead of acting locally.
type APIFlags struct {
	APIUrl      string
	APITimeout  time.Duration
	APIInsecure bool
	APIToken    string
}

func (f *APIFlags) remote() bool { return f.APIUrl != "" }

func addAPIFlags(cmd *cobra.Command, f *APIFlags) {
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "daemon URL (e.g. http://127.0.0.1:8787/api); local when empty")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 2*time.Minute, "request timeout")
	cmd.Flags().BoolVar(&f.APIInsecure, "api-insecure", false, "skip TLS verification (self-signed daemon certificates)")
	cmd.Flags().StringVar(&f.APIToken, "api-token", os.Getenv("RELAUNCHR_API_TOKEN"), "daemon API token (default $RELAUNCHR_API_TOKEN)")
}

type UpdateFlags struct {
	APIFlags
	Force bool
}

type ServeFlags struct {
	Daemonize bool
	PidFile   string
	LogFile   string
}

type LogsFlags struct {
	APIFlags
	Limit int
}

type SettingsTokenFlags struct {
	Token string
	Cost  int
}

type SettingsSaveFlags struct {
	Path       string
	RemoteURL  string
	Executable string
	Token      string
}
