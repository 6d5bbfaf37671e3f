package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/loykin/relaunchr"
	"github.com/loykin/relaunchr/internal/auth"
	"github.com/loykin/relaunchr/pkg/client"
)

// DefaultConfigFile is where settings save writes without --config or --path.
const DefaultConfigFile = "relaunchr.toml"

// command carries what every subcommand needs; the cobra layer only parses
// flags and calls into it.
type command struct {
	global *GlobalFlags
	out    io.Writer
}

func (c command) stdout() io.Writer {
	if c.out != nil {
		return c.out
	}
	return os.Stdout
}

func (c command) loadConfig() (*relaunchr.Config, error) {
	return relaunchr.LoadConfig(c.global.ConfigPath, c.global.EnvFiles...)
}

func (c command) supervisor() (*relaunchr.Supervisor, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return nil, err
	}
	return relaunchr.New(cfg, os.Stderr)
}

func (c command) printJSON(v any) error {
	enc := json.NewEncoder(c.stdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Run executes the update flow once. A failed run is printed and returned as
// an error so the exit status is non-zero.
func (c command) Run(ctx context.Context, force bool) error {
	sup, err := c.supervisor()
	if err != nil {
		return err
	}
	defer func() { _ = sup.Close() }()
	run, err := sup.Run(ctx, force)
	if errors.Is(err, relaunchr.ErrAlreadyInProgress) {
		return err
	}
	if perr := c.printJSON(run); perr != nil {
		return perr
	}
	return err
}

func (c command) Update(ctx context.Context, f UpdateFlags) error {
	if !f.remote() {
		return c.Run(ctx, f.Force)
	}
	accepted, err := newAPIClient(f.APIFlags).Update(ctx, f.Force)
	if err != nil {
		return err
	}
	if !accepted {
		return client.ErrBusy
	}
	_, err = fmt.Fprintln(c.stdout(), "update accepted")
	return err
}

func (c command) Start(ctx context.Context, f APIFlags) error {
	if f.remote() {
		run, err := newAPIClient(f).Start(ctx)
		return c.printRemoteRun(run, err)
	}
	return c.local(func(s *relaunchr.Supervisor) (relaunchr.Run, error) { return s.StartManaged(ctx) })
}

func (c command) Stop(ctx context.Context, f APIFlags) error {
	if f.remote() {
		run, err := newAPIClient(f).Stop(ctx)
		return c.printRemoteRun(run, err)
	}
	return c.local(func(s *relaunchr.Supervisor) (relaunchr.Run, error) { return s.StopManaged(ctx) })
}

func (c command) local(do func(*relaunchr.Supervisor) (relaunchr.Run, error)) error {
	sup, err := c.supervisor()
	if err != nil {
		return err
	}
	defer func() { _ = sup.Close() }()
	run, err := do(sup)
	if errors.Is(err, relaunchr.ErrAlreadyInProgress) {
		return err
	}
	if perr := c.printJSON(run); perr != nil {
		return perr
	}
	return err
}

func (c command) printRemoteRun(run client.Run, err error) error {
	if err != nil && run.Outcome == "" {
		return err
	}
	if perr := c.printJSON(run); perr != nil {
		return perr
	}
	return err
}

func (c command) Status(ctx context.Context, f APIFlags) error {
	if f.remote() {
		st, err := newAPIClient(f).Status(ctx)
		if err != nil {
			return err
		}
		return c.printJSON(st)
	}
	sup, err := c.supervisor()
	if err != nil {
		return err
	}
	defer func() { _ = sup.Close() }()
	return c.printJSON(sup.Status(ctx))
}

// Logs prints the daemon's recent log lines, or the tail of the configured
// log file when no daemon is given.
func (c command) Logs(ctx context.Context, f LogsFlags) error {
	var lines []string
	if f.remote() {
		var err error
		if lines, err = newAPIClient(f.APIFlags).Logs(ctx, f.Limit); err != nil {
			return err
		}
	} else {
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}
		if cfg.Log.File.Path == "" {
			return errors.New("no log file configured ([log.file] path); use --api-url to read a daemon's logs")
		}
		if lines, err = tailFile(cfg.Log.File.Path, f.Limit); err != nil {
			return err
		}
	}
	w := c.stdout()
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// SettingsShow prints the effective configuration with the token masked.
func (c command) SettingsShow() error {
	cfg, err := c.loadConfig()
	if err != nil {
		return err
	}
	shown := *cfg
	if shown.Remote.Token != "" {
		shown.Remote.Token = "********"
	}
	if n := len(cfg.Server.Auth.Tokens); n > 0 {
		shown.Server.Auth.Tokens = make([]string, n)
		for i := range shown.Server.Auth.Tokens {
			shown.Server.Auth.Tokens[i] = "********"
		}
	}
	return c.printJSON(shown)
}

// SettingsSave applies the given fields over the current configuration,
// validates it and writes it as TOML.
func (c command) SettingsSave(f SettingsSaveFlags) (string, error) {
	cfg, err := c.loadConfig()
	if err != nil {
		return "", err
	}
	if f.RemoteURL != "" {
		cfg.Remote.URL = f.RemoteURL
	}
	if f.Executable != "" {
		abs, err := filepath.Abs(f.Executable)
		if err != nil {
			return "", err
		}
		cfg.Managed.Executable = abs
	}
	if f.Token != "" {
		cfg.Remote.Token = f.Token
	}
	if err := cfg.Validate(); err != nil {
		return "", err
	}
	path := f.Path
	if path == "" {
		path = c.global.ConfigPath
	}
	if path == "" {
		path = DefaultConfigFile
	}
	if err := cfg.Save(path); err != nil {
		return "", err
	}
	_, err = fmt.Fprintf(c.stdout(), "settings saved to %s\n", path)
	return path, err
}

// SettingsToken prints a token (generated unless given) and its hash. Without
// an explicit cost the configured bcrypt_cost is used.
func (c command) SettingsToken(f SettingsTokenFlags) error {
	cost := f.Cost
	if cost == 0 {
		cfg, err := c.loadConfig()
		if err != nil {
			return err
		}
		cost = cfg.Server.Auth.BcryptCost
	}
	token := f.Token
	if token == "" {
		var err error
		if token, err = auth.GenerateToken(); err != nil {
			return err
		}
	}
	hash, err := auth.HashToken(token, cost)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.stdout(), "token: %s\nhash:  %s\n", token, hash)
	return err
}

// tailFile returns the last n lines of path; n <= 0 returns them all.
func tailFile(path string, n int) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var lines []string
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		lines = append(lines, sc.Text())
		if n > 0 && len(lines) > n {
			lines = lines[1:]
		}
	}
	return lines, sc.Err()
}
