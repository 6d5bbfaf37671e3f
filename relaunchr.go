// Package relaunchr keeps a single managed executable at the version a
// remote descriptor names and restarts it with the descriptor's environment.
//
// A Supervisor wires the pieces from a config.Config: manifest fetcher,
// artifact installer, process controller, the single-flight orchestrator,
// history sinks, the check scheduler and the HTTP trigger surface.
package relaunchr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/loykin/relaunchr/internal/auth"
	"github.com/loykin/relaunchr/internal/config"
	"github.com/loykin/relaunchr/internal/env"
	"github.com/loykin/relaunchr/internal/history"
	"github.com/loykin/relaunchr/internal/history/factory"
	"github.com/loykin/relaunchr/internal/installer"
	"github.com/loykin/relaunchr/internal/logger"
	"github.com/loykin/relaunchr/internal/manifest"
	"github.com/loykin/relaunchr/internal/metrics"
	"github.com/loykin/relaunchr/internal/process"
	"github.com/loykin/relaunchr/internal/scheduler"
	"github.com/loykin/relaunchr/internal/server"
	rtls "github.com/loykin/relaunchr/internal/tls"
	"github.com/loykin/relaunchr/internal/updater"
)

// Version is stamped at build time with -ldflags "-X github.com/loykin/relaunchr.Version=...".
var Version = "dev"

// Re-export core types for external consumers.

type Config = config.Config

type Run = updater.Run

type Instance = process.Instance

// ErrAlreadyInProgress is returned when another run holds the guard.
var ErrAlreadyInProgress = updater.ErrAlreadyInProgress

// LoadConfig reads a TOML file plus dotenv files and environment overrides.
func LoadConfig(path string, envFiles ...string) (*Config, error) {
	return config.Load(path, envFiles...)
}

// Status is a snapshot of the orchestrator and the managed process.
type Status = updater.Status

// Supervisor owns every component built from one configuration.
type Supervisor struct {
	cfg   *Config
	log   *logger.Logger
	orch  *updater.Orchestrator
	ctrl  *process.Controller
	sched *scheduler.Scheduler
	sinks history.Multi
	auth  *auth.Authenticator
}

// New validates cfg and builds a Supervisor. Console log output goes to
// console (stderr when nil).
func New(cfg *Config, console io.Writer) (*Supervisor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	authn, err := auth.New(cfg.Server.Auth)
	if err != nil {
		return nil, err
	}
	lg, err := logger.New(cfg.Log, console)
	if err != nil {
		return nil, err
	}
	log := lg.With("component", "relaunchr")

	ua := "relaunchr/" + Version
	fetcher := manifest.NewFetcher(manifest.Config{
		URL:        cfg.Remote.URL,
		Token:      cfg.Remote.Token,
		AuthScheme: cfg.Remote.AuthScheme,
		Timeout:    cfg.Remote.Timeout,
		UserAgent:  ua,
	})
	icfg := installer.Config{AuthScheme: cfg.Remote.AuthScheme, UserAgent: ua}
	if cfg.Remote.AuthDownloads {
		icfg.Token = cfg.Remote.Token
	}

	base := env.New()
	for k, v := range env.Parse(cfg.Env) {
		base.Set(k, v)
	}
	ctrl := process.NewController(process.Config{
		Executable: cfg.Managed.Executable,
		Args:       cfg.Managed.Args,
		StopWait:   cfg.Managed.StopWait,
		Output:     cfg.Managed.Log,
		Env:        base,
	}, log)

	sinks, err := factory.NewSinks(cfg.History.DSN)
	if err != nil {
		_ = lg.Close()
		return nil, err
	}
	opts := []updater.Option{updater.WithLogger(log)}
	if len(sinks) > 0 {
		opts = append(opts, updater.WithHistory(sinks))
	}
	orch := updater.New(updater.Config{
		Executable: cfg.Managed.Executable,
		RunTimeout: cfg.Update.RunTimeout,
	}, fetcher, installer.New(icfg), ctrl, opts...)

	sched, err := scheduler.New(orch, scheduler.Config{
		OnStartup:       cfg.Schedule.OnStartup,
		Every:           cfg.Schedule.Every,
		RetryMaxElapsed: cfg.Schedule.RetryMaxElapsed,
	}, log)
	if err != nil {
		_ = sinks.Close()
		_ = lg.Close()
		return nil, err
	}
	return &Supervisor{cfg: cfg, log: lg, orch: orch, ctrl: ctrl, sched: sched, sinks: sinks, auth: authn}, nil
}

// Logger returns the supervisor's logger.
func (s *Supervisor) Logger() *slog.Logger { return s.log.Logger }

// LogLines returns up to n recent log lines.
func (s *Supervisor) LogLines(n int) []string { return s.log.Ring().Lines(n) }

// Run executes the update flow once and waits for it.
func (s *Supervisor) Run(ctx context.Context, force bool) (Run, error) {
	return s.orch.Run(ctx, force)
}

func (s *Supervisor) StartManaged(ctx context.Context) (Run, error) {
	return s.orch.StartManaged(ctx)
}

func (s *Supervisor) StopManaged(ctx context.Context) (Run, error) {
	return s.orch.StopManaged(ctx)
}

func (s *Supervisor) Status(ctx context.Context) Status { return s.orch.Status(ctx) }

// Handler returns the HTTP trigger surface.
func (s *Supervisor) Handler() http.Handler {
	opts := []server.Option{server.WithLogger(s.log.With("component", "http"))}
	if s.auth.Enabled() {
		opts = append(opts, server.WithAuth(s.auth.GinAuth()))
	}
	if s.cfg.Metrics.Enabled && s.cfg.Metrics.Listen == "" {
		opts = append(opts, server.WithMetrics())
	}
	return server.NewRouter(s.orch, s.log.Ring(), s.cfg.Server.BasePath, opts...).Handler()
}

// Serve runs the HTTP surface, the metrics listener and the scheduler until
// ctx is canceled or a listener fails, then shuts everything down and waits
// for a background run to finish.
func (s *Supervisor) Serve(ctx context.Context) error {
	if s.cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	if s.cfg.Metrics.Enabled {
		if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
			return fmt.Errorf("register metrics: %w", err)
		}
	}
	metrics.SetInstalledVersion(s.orch.LocalVersion())

	api := server.NewServer(s.cfg.Server.Listen, s.Handler())
	tlsCfg, err := rtls.Setup(s.cfg.Server.TLS)
	if err != nil {
		return fmt.Errorf("server tls: %w", err)
	}
	api.TLSConfig = tlsCfg
	servers := []*http.Server{api}
	if s.cfg.Metrics.Enabled && s.cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		servers = append(servers, server.NewServer(s.cfg.Metrics.Listen, mux))
	}
	errCh := make(chan error, len(servers))
	for _, srv := range servers {
		go func(srv *http.Server) {
			s.log.Info("listening", "addr", srv.Addr, "tls", srv.TLSConfig != nil)
			var err error
			if srv.TLSConfig != nil {
				err = srv.ListenAndServeTLS("", "")
			} else {
				err = srv.ListenAndServe()
			}
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- fmt.Errorf("listen %s: %w", srv.Addr, err)
			}
		}(srv)
	}

	if err = s.sched.Start(ctx); err == nil {
		select {
		case <-ctx.Done():
		case err = <-errCh:
		}
	}
	s.log.Info("shutting down")
	s.sched.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	for _, srv := range servers {
		_ = srv.Shutdown(shutdownCtx)
	}
	s.orch.Wait()
	return err
}

// Close releases history sinks and the log file.
func (s *Supervisor) Close() error {
	return errors.Join(s.sinks.Close(), s.log.Close())
}
