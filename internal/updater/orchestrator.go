// Package updater ties manifest, state, installer and process together into
// the update flow, guarded so that at most one run is active at a time.
package updater

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loykin/relaunchr/internal/history"
	"github.com/loykin/relaunchr/internal/manifest"
	"github.com/loykin/relaunchr/internal/metrics"
	"github.com/loykin/relaunchr/internal/process"
	"github.com/loykin/relaunchr/internal/state"
)

// DefaultRunTimeout bounds a whole run so a hung connection cannot keep the
// guard forever.
const DefaultRunTimeout = 15 * time.Minute

// historyTimeout bounds delivery of a finished run to the history sinks.
const historyTimeout = 10 * time.Second

type Fetcher interface {
	Fetch(ctx context.Context) (manifest.Descriptor, error)
}

type Installer interface {
	Install(ctx context.Context, url, dest string) (int64, error)
}

type Controller interface {
	Stop(ctx context.Context) process.StopOutcome
	Start(ctx context.Context, vars map[string]string) (process.Handle, error)
	Running(ctx context.Context) ([]process.Instance, error)
}

type Config struct {
	// Executable is where the artifact is installed and launched from.
	Executable string
	// StatePath defaults to local_config.json beside Executable.
	StatePath  string
	RunTimeout time.Duration
}

type Option func(*Orchestrator)

func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.log = l }
}

// WithHistory sends every finished run to s. Sink failures are logged and
// never change a run's outcome.
func WithHistory(s history.Sink) Option {
	return func(o *Orchestrator) { o.sink = s }
}

type Orchestrator struct {
	cfg   Config
	fetch Fetcher
	inst  Installer
	proc  Controller
	sink  history.Sink
	log   *slog.Logger
	now   func() time.Time

	guard guard
	wg    sync.WaitGroup

	mu    sync.RWMutex
	phase Phase
	last  *Run
}

func New(cfg Config, f Fetcher, i Installer, c Controller, opts ...Option) *Orchestrator {
	if cfg.StatePath == "" {
		cfg.StatePath = state.Path(cfg.Executable)
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = DefaultRunTimeout
	}
	o := &Orchestrator{
		cfg:   cfg,
		fetch: f,
		inst:  i,
		proc:  c,
		log:   slog.Default(),
		now:   time.Now,
		phase: PhaseIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Busy reports whether a run holds the guard.
func (o *Orchestrator) Busy() bool { return o.guard.Held() }

func (o *Orchestrator) Phase() Phase {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.phase
}

// LastRun returns the most recently finished run.
func (o *Orchestrator) LastRun() (Run, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.last == nil {
		return Run{}, false
	}
	return *o.last, true
}

// LocalVersion reads the installed version from the state file without
// logging the fallback.
func (o *Orchestrator) LocalVersion() string {
	r, err := state.Read(o.cfg.StatePath)
	if err != nil || strings.TrimSpace(r.Version) == "" {
		return state.DefaultVersion
	}
	return strings.TrimSpace(r.Version)
}

// Instances lists running copies of the managed executable.
func (o *Orchestrator) Instances(ctx context.Context) ([]process.Instance, error) {
	return o.proc.Running(ctx)
}

// Run executes the update flow and waits for it. It returns
// ErrAlreadyInProgress without doing anything when another run is active.
// A failed run is returned together with its error.
func (o *Orchestrator) Run(ctx context.Context, force bool) (Run, error) {
	release, ok := o.acquire(ActionUpdate)
	if !ok {
		return Run{}, ErrAlreadyInProgress
	}
	return o.perform(ctx, release, ActionUpdate, force, o.update)
}

// Trigger starts the update flow in the background and reports whether it
// was accepted. The guard is taken before Trigger returns, so a concurrent
// Trigger or Run is rejected immediately.
func (o *Orchestrator) Trigger(force bool) bool {
	release, ok := o.acquire(ActionUpdate)
	if !ok {
		return false
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		_, _ = o.perform(context.Background(), release, ActionUpdate, force, o.update)
	}()
	return true
}

// Wait blocks until background runs started by Trigger have finished.
func (o *Orchestrator) Wait() { o.wg.Wait() }

// StartManaged launches the managed process with the current manifest
// environment unless an instance is already running.
func (o *Orchestrator) StartManaged(ctx context.Context) (Run, error) {
	release, ok := o.acquire(ActionStart)
	if !ok {
		return Run{}, ErrAlreadyInProgress
	}
	return o.perform(ctx, release, ActionStart, false, o.start)
}

// StopManaged stops every running instance.
func (o *Orchestrator) StopManaged(ctx context.Context) (Run, error) {
	release, ok := o.acquire(ActionStop)
	if !ok {
		return Run{}, ErrAlreadyInProgress
	}
	return o.perform(ctx, release, ActionStop, false, o.stopOnly)
}

func (o *Orchestrator) acquire(a Action) (func(), bool) {
	release, ok := o.guard.TryAcquire()
	if !ok {
		metrics.IncRejected()
		o.log.Info("request rejected, a run is already in progress", "action", a)
		return nil, false
	}
	metrics.SetBusy(true)
	return func() {
		metrics.SetBusy(false)
		release()
	}, true
}

type step func(ctx context.Context, r *Run, log *slog.Logger) error

// perform runs s while holding the guard and records the result. The guard
// is released last, after the run is visible through LastRun.
func (o *Orchestrator) perform(ctx context.Context, release func(), a Action, force bool, s step) (run Run, err error) {
	defer release()

	ctx, cancel := context.WithTimeout(ctx, o.cfg.RunTimeout)
	defer cancel()

	run = Run{ID: uuid.NewString(), Action: a, Forced: force, StartedAt: o.now()}
	log := o.log.With("run_id", run.ID, "action", a)
	log.Info("run started", "force", force)

	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("unexpected failure: %v", p)
		}
		o.finish(&run, err, log)
	}()
	err = s(ctx, &run, log)
	return run, err
}

func (o *Orchestrator) finish(r *Run, err error, log *slog.Logger) {
	r.FinishedAt = o.now()
	phase := PhaseIdle
	if err != nil {
		phase = PhaseFailed
		r.Outcome = OutcomeFailed
		r.ErrorKind = Classify(err)
		r.Message = err.Error()
		log.Error("run failed", "kind", r.ErrorKind, "error", err, "duration", r.Duration())
	} else {
		log.Info("run finished", "outcome", r.Outcome, "message", r.Message, "duration", r.Duration())
	}

	o.mu.Lock()
	o.phase = phase
	cp := *r
	o.last = &cp
	o.mu.Unlock()

	metrics.ObserveRun(string(r.Outcome), r.Duration().Seconds())
	o.record(*r, log)
}

func (o *Orchestrator) record(r Run, log *slog.Logger) {
	if o.sink == nil {
		return
	}
	typ := history.EventUpdate
	switch r.Action {
	case ActionStart:
		typ = history.EventStart
	case ActionStop:
		typ = history.EventStop
	}
	ctx, cancel := context.WithTimeout(context.Background(), historyTimeout)
	defer cancel()
	err := o.sink.Send(ctx, history.Event{
		Type:       typ,
		OccurredAt: r.FinishedAt,
		Record: history.Record{
			RunID:         r.ID,
			Forced:        r.Forced,
			StartedAt:     r.StartedAt,
			FinishedAt:    r.FinishedAt,
			Outcome:       string(r.Outcome),
			Message:       r.Message,
			LocalVersion:  r.LocalVersion,
			RemoteVersion: r.RemoteVersion,
			ErrorKind:     string(r.ErrorKind),
		},
	})
	if err != nil {
		log.Warn("history sink failed", "error", err)
	}
}

func (o *Orchestrator) setPhase(p Phase) {
	o.mu.Lock()
	o.phase = p
	o.mu.Unlock()
}

func (o *Orchestrator) update(ctx context.Context, r *Run, log *slog.Logger) error {
	o.setPhase(PhaseChecking)
	local := state.LoadVersion(o.cfg.StatePath, log)
	r.LocalVersion = local

	d, err := o.fetch.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}
	r.RemoteVersion = d.Version

	present := executablePresent(o.cfg.Executable)
	updated := NeedsUpdate(r.Forced, local, d.Version, present)
	if updated {
		o.setPhase(PhaseUpdating)
		log.Info("update needed",
			"local", local, "remote", d.Version, "change", Change(local, d.Version),
			"forced", r.Forced, "executable_present", present)

		// the old binary is stopped before it is replaced and stays stopped
		// if anything below fails
		o.stop(ctx)
		n, err := o.inst.Install(ctx, d.Executable.URL, o.cfg.Executable)
		if err != nil {
			return fmt.Errorf("install %s: %w", d.Version, err)
		}
		r.Downloaded = n
		metrics.AddDownload(n)
		log.Info("artifact installed", "version", d.Version, "bytes", n, "path", o.cfg.Executable)

		if err := state.Write(o.cfg.StatePath, d); err != nil {
			return fmt.Errorf("record version %s: %w", d.Version, err)
		}
		metrics.SetInstalledVersion(d.Version)
	} else {
		o.setPhase(PhaseUpToDate)
		log.Info("no new version", "version", local)
		metrics.SetInstalledVersion(local)
	}

	o.setPhase(PhaseRestarting)
	o.stop(ctx)
	h, err := o.proc.Start(ctx, d.Environment)
	if err != nil {
		return fmt.Errorf("restart: %w", err)
	}
	metrics.IncStart()
	r.PID = h.PID

	if updated {
		r.Outcome = OutcomeUpdated
		r.Message = fmt.Sprintf("updated to %s and restarted", d.Version)
	} else {
		r.Outcome = OutcomeUpToDate
		r.Message = fmt.Sprintf("already at %s (no new version), restarted for consistency", d.Version)
	}
	return nil
}

func (o *Orchestrator) start(ctx context.Context, r *Run, log *slog.Logger) error {
	o.setPhase(PhaseChecking)
	running, err := o.proc.Running(ctx)
	if err != nil {
		log.Warn("cannot list running instances, starting anyway", "error", err)
	}
	if len(running) > 0 {
		r.Outcome = OutcomeAlreadyRunning
		r.PID = running[0].PID
		r.Message = fmt.Sprintf("already running (pid %d)", r.PID)
		return nil
	}

	d, err := o.fetch.Fetch(ctx)
	if err != nil {
		return fmt.Errorf("fetch manifest for environment: %w", err)
	}
	r.RemoteVersion = d.Version
	r.LocalVersion = state.LoadVersion(o.cfg.StatePath, log)

	o.setPhase(PhaseRestarting)
	h, err := o.proc.Start(ctx, d.Environment)
	if err != nil {
		return fmt.Errorf("start: %w", err)
	}
	metrics.IncStart()
	r.PID = h.PID
	r.Outcome = OutcomeStarted
	r.Message = fmt.Sprintf("started (pid %d)", h.PID)
	return nil
}

func (o *Orchestrator) stopOnly(ctx context.Context, r *Run, _ *slog.Logger) error {
	o.setPhase(PhaseStopping)
	out := o.stop(ctx)
	switch {
	case out.Err != nil:
		// a stop request has nothing else to do, so here the error is the result
		return fmt.Errorf("stop: %w", out.Err)
	case out.Stopped == 0:
		r.Outcome = OutcomeNotRunning
		r.Message = "not running"
	default:
		r.Outcome = OutcomeStopped
		r.Message = fmt.Sprintf("stopped %d instance(s)", out.Stopped)
	}
	return nil
}

func (o *Orchestrator) stop(ctx context.Context) process.StopOutcome {
	out := o.proc.Stop(ctx)
	metrics.IncStop(out.String())
	return out
}

func executablePresent(path string) bool {
	fi, err := os.Stat(path)
	if err != nil {
		// unreadable is not absent; a real problem surfaces at install or start
		return !errors.Is(err, fs.ErrNotExist)
	}
	return !fi.IsDir()
}
