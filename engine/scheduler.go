package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aduanasoft/vucemd/customs"
	"github.com/aduanasoft/vucemd/logkeys"
	"github.com/aduanasoft/vucemd/record"
	"github.com/aduanasoft/vucemd/utils/uuid"

	"github.com/micromdm/nanolib/log"
	"github.com/micromdm/nanolib/log/ctxlog"
)

const (
	// DefaultWarmup is the delay before the first follow-up runs,
	// giving the freshly registered service instances time to
	// materialize in the registry.
	DefaultWarmup = 10 * time.Second

	// DefaultPollTimeout bounds the wait for a follow-up service
	// instance to appear.
	DefaultPollTimeout = 60 * time.Second

	// DefaultPollInterval is the pause between existence polls.
	DefaultPollInterval = 2 * time.Second

	// DefaultOpRetries is how many times a failed follow-up is
	// retried (beyond its first attempt).
	DefaultOpRetries = 2

	// DefaultMaxBackoff caps the exponential backoff between retry
	// attempts of one follow-up.
	DefaultMaxBackoff = 30 * time.Second

	// DefaultCooldown is the pause between successive follow-up
	// operations; the gateway throttles concurrent sessions per user.
	DefaultCooldown = 3 * time.Second
)

// KindRunner runs one retrieval kind. Satisfied by *Engine.
type KindRunner interface {
	Run(ctx context.Context, kind customs.ServiceKind, pedimentoID, organization string) (*Response, error)
}

// ServiceLocator checks follow-up service instance existence.
// Satisfied by the registry client.
type ServiceLocator interface {
	ServiceByKind(ctx context.Context, pedimentoID string, kind customs.ServiceKind) (*customs.ServiceInstance, error)
}

// Scheduler runs the follow-up retrievals of a completed full
// retrieval as a detached best-effort pipeline: bounded existence
// polling, per-operation retry with exponential backoff, and a
// cooldown between operations. It never raises to its caller.
type Scheduler struct {
	runner  KindRunner
	locator ServiceLocator
	ider    uuid.IDer
	logger  log.Logger

	warmup       time.Duration
	pollTimeout  time.Duration
	pollInterval time.Duration
	opRetries    int
	maxBackoff   time.Duration
	cooldown     time.Duration
}

type SchedulerOption func(*Scheduler)

func WithSchedulerLogger(logger log.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithWarmup sets the delay before the first follow-up operation.
func WithWarmup(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.warmup = d
	}
}

// WithPoll sets the existence-poll timeout and interval.
func WithPoll(timeout, interval time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.pollTimeout = timeout
		s.pollInterval = interval
	}
}

// WithOpRetries sets the per-operation retry count.
func WithOpRetries(n int) SchedulerOption {
	return func(s *Scheduler) {
		s.opRetries = n
	}
}

// WithCooldown sets the pause between successive operations.
func WithCooldown(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.cooldown = d
	}
}

// WithMaxBackoff caps the retry backoff of one operation.
func WithMaxBackoff(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		s.maxBackoff = d
	}
}

// NewScheduler creates a follow-up scheduler running operations on
// runner and polling instance existence on locator.
func NewScheduler(runner KindRunner, locator ServiceLocator, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		runner:       runner,
		locator:      locator,
		ider:         uuid.NewUUID(),
		logger:       log.NopLogger,
		warmup:       DefaultWarmup,
		pollTimeout:  DefaultPollTimeout,
		pollInterval: DefaultPollInterval,
		opRetries:    DefaultOpRetries,
		maxBackoff:   DefaultMaxBackoff,
		cooldown:     DefaultCooldown,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OpResult is the outcome of one follow-up operation.
type OpResult struct {
	Kind     customs.ServiceKind `json:"kind"`
	Success  bool                `json:"success"`
	NotFound bool                `json:"not_found,omitempty"`
	Attempts int                 `json:"attempts"`
	Error    string              `json:"error,omitempty"`
}

// Summary aggregates a fan-out run.
type Summary struct {
	Total     int        `json:"total"`
	Succeeded int        `json:"succeeded"`
	Failed    int        `json:"failed"`
	Results   []OpResult `json:"results"`
}

// Task is the handle of a detached fan-out run. Unawaited by the
// triggering request; tests (and shutdown hooks) can Wait on it.
type Task struct {
	ID string

	done    chan struct{}
	summary *Summary
}

// Wait blocks until the fan-out completes or ctx is done.
func (t *Task) Wait(ctx context.Context) (*Summary, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-t.done:
		return t.summary, nil
	}
}

// Schedule starts the follow-up pipeline on a background goroutine
// and returns its handle immediately. The run detaches from ctx's
// cancellation but keeps its logging trace values.
func (s *Scheduler) Schedule(ctx context.Context, pedimentoID, organization string, hasPartidas, hasRemesas bool) *Task {
	task := &Task{ID: s.ider.ID(), done: make(chan struct{})}
	detached := context.WithoutCancel(ctx)
	logger := ctxlog.Logger(ctx, s.logger).With(
		logkeys.InstanceID, task.ID,
		logkeys.PedimentoID, pedimentoID,
	)
	go func() {
		defer close(task.done)
		task.summary = s.Run(detached, pedimentoID, organization, hasPartidas, hasRemesas)
		logger.Info(
			logkeys.Message, "follow-up retrievals finished",
			logkeys.GenericCount, fmt.Sprintf("%d/%d", task.summary.Succeeded, task.summary.Total),
		)
	}()
	return task
}

// Run executes the follow-up pipeline synchronously and returns its
// summary. It never returns an error and never panics; a total
// failure is a summary with zero successes.
func (s *Scheduler) Run(ctx context.Context, pedimentoID, organization string, hasPartidas, hasRemesas bool) *Summary {
	logger := ctxlog.Logger(ctx, s.logger).With(logkeys.PedimentoID, pedimentoID)

	var kinds []customs.ServiceKind
	if hasPartidas {
		kinds = append(kinds, customs.KindPartidas)
	}
	if hasRemesas {
		kinds = append(kinds, customs.KindRemesas)
	}
	kinds = append(kinds, customs.KindAcuse)

	summary := &Summary{Total: len(kinds)}
	if err := sleepCtx(ctx, s.warmup); err != nil {
		logger.Info(logkeys.Message, "follow-up warmup", logkeys.Error, err)
		return summary
	}

	for i, kind := range kinds {
		if i > 0 {
			if err := sleepCtx(ctx, s.cooldown); err != nil {
				logger.Info(logkeys.Message, "follow-up cooldown", logkeys.Error, err)
				break
			}
		}
		res := s.runOne(ctx, logger, kind, pedimentoID, organization)
		summary.Results = append(summary.Results, res)
		if res.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// runOne waits for the follow-up service instance to exist, then runs
// the operation with retries.
func (s *Scheduler) runOne(ctx context.Context, logger log.Logger, kind customs.ServiceKind, pedimentoID, organization string) OpResult {
	logger = logger.With(logkeys.ServiceKind, kind)
	res := OpResult{Kind: kind}

	if err := s.waitForService(ctx, pedimentoID, kind); err != nil {
		res.NotFound = errors.Is(err, record.ErrNotFound)
		res.Error = err.Error()
		logger.Info(logkeys.Message, "waiting for follow-up service", logkeys.Error, err)
		return res
	}

	var lastErr error
	for attempt := 0; attempt <= s.opRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt)) * time.Second
			if backoff > s.maxBackoff {
				backoff = s.maxBackoff
			}
			if err := sleepCtx(ctx, backoff); err != nil {
				lastErr = err
				break
			}
			logger.Debug(logkeys.Message, "retrying follow-up", logkeys.Attempt, attempt+1)
		}
		res.Attempts++
		if _, err := s.runner.Run(ctx, kind, pedimentoID, organization); err != nil {
			lastErr = err
			logger.Info(
				logkeys.Message, "running follow-up",
				logkeys.Attempt, res.Attempts,
				logkeys.Error, err,
			)
			continue
		}
		res.Success = true
		return res
	}
	if lastErr != nil {
		res.Error = lastErr.Error()
	}
	return res
}

// waitForService polls instance existence with a bounded timeout. A
// NotFound result keeps polling; any other registry error is retried
// too since the registry may be momentarily unreachable.
func (s *Scheduler) waitForService(ctx context.Context, pedimentoID string, kind customs.ServiceKind) error {
	deadline := time.Now().Add(s.pollTimeout)
	var lastErr error
	for {
		_, err := s.locator.ServiceByKind(ctx, pedimentoID, kind)
		if err == nil {
			return nil
		}
		lastErr = err
		if time.Now().After(deadline) {
			return fmt.Errorf("service not found after %s: %w", s.pollTimeout, lastErr)
		}
		if err := sleepCtx(ctx, s.pollInterval); err != nil {
			return err
		}
	}
}

// sleepCtx waits d unless ctx is done first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
