package process

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/loykin/relaunchr/internal/env"
	"github.com/loykin/relaunchr/internal/logger"
)

// DefaultStopWait is how long a process gets to exit after SIGTERM.
const DefaultStopWait = 10 * time.Second

var errNotExecutable = errors.New("not executable")

type Config struct {
	Executable string
	Args       []string
	StopWait   time.Duration
	// Output receives the child's stdout/stderr; unset means /dev/null.
	Output logger.OutputConfig
	// Env is the base environment; nil means the supervisor's own.
	Env *env.Env
}

// Controller owns the lifecycle transitions of the managed executable.
type Controller struct {
	cfg  Config
	log  *slog.Logger
	find Finder
	term Terminator
}

func NewController(cfg Config, log *slog.Logger) *Controller {
	if cfg.StopWait <= 0 {
		cfg.StopWait = DefaultStopWait
	}
	if cfg.Env == nil {
		cfg.Env = env.New()
	}
	if log == nil {
		log = slog.Default()
	}
	f := Lister{}
	return &Controller{cfg: cfg, log: log, find: f, term: NewTerminator(f, cfg.StopWait)}
}

// WithBackends replaces process discovery and termination.
func (c *Controller) WithBackends(f Finder, t Terminator) *Controller {
	c.find, c.term = f, t
	return c
}

func (c *Controller) Executable() string { return c.cfg.Executable }

func (c *Controller) name() string { return ImageName(c.cfg.Executable) }

// Running lists the instances currently running.
func (c *Controller) Running(ctx context.Context) ([]Instance, error) {
	return c.find.ListByName(ctx, c.name())
}

// Stop terminates every running instance. It never fails: an absent process
// is the normal case and termination errors are only reported.
func (c *Controller) Stop(ctx context.Context) StopOutcome {
	name := c.name()
	n, err := c.term.TerminateByName(ctx, name)
	out := StopOutcome{Stopped: n, Err: err}
	switch {
	case err != nil:
		c.log.Warn("could not stop managed process", "name", name, "stopped", n, "error", err)
	case n == 0:
		c.log.Info("managed process not running", "name", name)
	default:
		c.log.Info("managed process stopped", "name", name, "count", n)
	}
	return out
}

// Start launches the executable detached with vars merged over the base
// environment. The child is released immediately; its exit is never awaited.
func (c *Controller) Start(ctx context.Context, vars map[string]string) (Handle, error) {
	exe := c.cfg.Executable
	if err := ctx.Err(); err != nil {
		return Handle{}, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	fi, err := os.Stat(exe)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Handle{}, fmt.Errorf("%w: executable %s does not exist", ErrLaunch, exe)
	case err != nil:
		return Handle{}, fmt.Errorf("%w: %w", ErrLaunch, err)
	case fi.IsDir():
		return Handle{}, fmt.Errorf("%w: %s is a directory", ErrLaunch, exe)
	}
	if err := checkExecutable(fi); err != nil {
		return Handle{}, fmt.Errorf("%w: %s: %w", ErrLaunch, exe, err)
	}

	// not CommandContext: the child must outlive ctx
	// #nosec G204 executable comes from supervisor configuration
	cmd := exec.Command(exe, c.cfg.Args...)
	cmd.Dir = filepath.Dir(exe)
	cmd.Env = c.cfg.Env.Merge(vars)
	Detach(cmd)

	files, err := c.stdio(cmd)
	defer func() {
		for _, f := range files {
			_ = f.Close()
		}
	}()
	if err != nil {
		return Handle{}, fmt.Errorf("%w: %w", ErrLaunch, err)
	}

	if err := cmd.Start(); err != nil {
		return Handle{}, fmt.Errorf("%w: %w", ErrLaunch, err)
	}
	h := Handle{PID: cmd.Process.Pid, Executable: exe, StartedAt: time.Now()}
	if err := cmd.Process.Release(); err != nil {
		c.log.Debug("release process handle", "pid", h.PID, "error", err)
	}
	c.log.Info("managed process started", "pid", h.PID, "exe", exe, "env_overrides", len(vars))
	return h, nil
}

// stdio wires the child's standard streams to /dev/null or the configured
// output files. The returned files are the parent's copies; they are closed
// after Start, the child keeps its own descriptors.
func (c *Controller) stdio(cmd *exec.Cmd) ([]*os.File, error) {
	null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	files := []*os.File{null}
	cmd.Stdin, cmd.Stdout, cmd.Stderr = null, null, null
	if !c.cfg.Output.Enabled() {
		return files, nil
	}
	name := strings.TrimSuffix(c.name(), ".exe")
	stdout, stderr, err := c.cfg.Output.Open(name)
	if err != nil {
		return files, err
	}
	if stdout != nil {
		files = append(files, stdout)
		cmd.Stdout = stdout
	}
	if stderr != nil {
		if stderr != stdout {
			files = append(files, stderr)
		}
		cmd.Stderr = stderr
	}
	return files, nil
}
