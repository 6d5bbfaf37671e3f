// Package scheduler invokes the update flow on startup and periodically.
// Retrying is its job, not the orchestrator's: transient failures are retried
// with exponential backoff, everything else waits for the next tick.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/loykin/relaunchr/internal/updater"
)

const (
	DefaultRetryMaxElapsed = 5 * time.Minute
	defaultRetryInitial    = 2 * time.Second
	defaultRetryMax        = time.Minute
)

// Runner is the update flow.
type Runner interface {
	Run(ctx context.Context, force bool) (updater.Run, error)
}

type Config struct {
	// OnStartup runs a check as soon as the scheduler starts.
	OnStartup bool
	// Every is "@every <duration>" or a bare duration; empty disables
	// periodic checks.
	Every string
	// RetryMaxElapsed bounds retries of one check; negative disables retry.
	RetryMaxElapsed time.Duration
	// RetryInitial is the first retry delay.
	RetryInitial time.Duration
}

type Scheduler struct {
	r      Runner
	cfg    Config
	period time.Duration
	log    *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(r Runner, cfg Config, log *slog.Logger) (*Scheduler, error) {
	period, err := ParseEvery(cfg.Every)
	if err != nil {
		return nil, err
	}
	if cfg.RetryMaxElapsed == 0 {
		cfg.RetryMaxElapsed = DefaultRetryMaxElapsed
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = defaultRetryInitial
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{r: r, cfg: cfg, period: period, log: log.With("component", "scheduler")}, nil
}

// ParseEvery parses "@every <duration>" or a bare duration. An empty string
// yields zero (disabled).
func ParseEvery(expr string) (time.Duration, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return 0, nil
	}
	durStr := expr
	if strings.HasPrefix(expr, "@") {
		rest, ok := strings.CutPrefix(expr, "@every ")
		if !ok {
			return 0, fmt.Errorf("unsupported schedule: %s (only @every <duration> supported)", expr)
		}
		durStr = strings.TrimSpace(rest)
	}
	d, err := time.ParseDuration(durStr)
	if err != nil {
		return 0, fmt.Errorf("invalid schedule duration: %w", err)
	}
	if d <= 0 {
		return 0, errors.New("schedule duration must be > 0")
	}
	return d, nil
}

// Period returns the check interval, zero when periodic checks are off.
func (s *Scheduler) Period() time.Duration { return s.period }

// Start launches the background loop. It is a no-op when neither a startup
// check nor a period is configured.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return errors.New("scheduler already started")
	}
	if !s.cfg.OnStartup && s.period == 0 {
		return nil
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
	s.log.Info("scheduler started", "on_startup", s.cfg.OnStartup, "every", s.period)
	return nil
}

// Stop cancels the loop, including a retry in progress, and waits for it.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	defer close(s.done)
	if s.cfg.OnStartup {
		s.Check(ctx)
	}
	if s.period == 0 {
		return
	}
	t := time.NewTicker(s.period)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Check(ctx)
		}
	}
}

// Check runs the flow once, retrying transient failures. A run already in
// progress elsewhere satisfies the check.
func (s *Scheduler) Check(ctx context.Context) {
	op := func() error {
		_, err := s.r.Run(ctx, false)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, updater.ErrAlreadyInProgress):
			s.log.Info("skipping check, a run is already in progress")
			return nil
		case updater.Retryable(err) && s.cfg.RetryMaxElapsed > 0:
			return err
		}
		return backoff.Permanent(err)
	}
	err := backoff.RetryNotify(op, backoff.WithContext(s.backoff(), ctx), func(err error, next time.Duration) {
		s.log.Warn("check failed, retrying", "in", next, "error", err)
	})
	if err != nil && ctx.Err() == nil {
		s.log.Error("check failed", "kind", updater.Classify(err), "error", err)
	}
}

func (s *Scheduler) backoff() backoff.BackOff {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     s.cfg.RetryInitial,
		RandomizationFactor: 0.5,
		Multiplier:          2,
		MaxInterval:         defaultRetryMax,
		MaxElapsedTime:      s.cfg.RetryMaxElapsed,
		Stop:                backoff.Stop,
		Clock:               backoff.SystemClock,
	}
	b.Reset()
	return b
}
