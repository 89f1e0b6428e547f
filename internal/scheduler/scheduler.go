// Package scheduler runs the minute-aligned delivery clock: once a minute it
// evaluates every schedule rule and delivers news for the ones that match.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"newsnow_bot/internal/bot"
	"newsnow_bot/internal/config"
	"newsnow_bot/internal/model"
	"newsnow_bot/internal/schedule"
)

const (
	panicBackoff         = 5 * time.Second
	maxConcurrentActions = 4
)

// State is the lifecycle state of a Scheduler.
type State int32

// Scheduler states. StateStopped is terminal.
const (
	StateIdle State = iota
	StateSleeping
	StateTick
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSleeping:
		return "sleeping"
	case StateTick:
		return "tick"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Clock abstracts time so tests can drive the loop.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time                         { return time.Now() }
func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RuleSource supplies raw "HH:MM#destination#source" rules.
type RuleSource interface {
	RuleSpecs(ctx context.Context) ([]string, error)
}

// SettingsRules reads scheduled_tasks from the current settings snapshot.
type SettingsRules struct {
	Settings config.Provider
}

// RuleSpecs implements RuleSource.
func (r SettingsRules) RuleSpecs(_ context.Context) ([]string, error) {
	return r.Settings.Current().ScheduledTasks, nil
}

// Fetcher retrieves one source.
type Fetcher interface {
	Fetch(ctx context.Context, source string, timeout time.Duration) model.FetchResult
}

// Sender delivers formatted segments to a destination.
type Sender interface {
	Send(ctx context.Context, destination string, segments []string) error
}

// Scheduler evaluates schedule rules at every minute boundary.
type Scheduler struct {
	settings config.Provider
	sources  []RuleSource
	fetcher  Fetcher
	sender   Sender
	clock    Clock
	log      *slog.Logger

	state atomic.Int32

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Scheduler reading rules from the given sources.
func New(settings config.Provider, fetcher Fetcher, sender Sender, log *slog.Logger, sources ...RuleSource) *Scheduler {
	return &Scheduler{
		settings: settings,
		sources:  sources,
		fetcher:  fetcher,
		sender:   sender,
		clock:    realClock{},
		log:      log,
	}
}

// SetClock overrides the wall clock.
func (s *Scheduler) SetClock(c Clock) {
	s.clock = c
}

// State returns the current lifecycle state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(st State) {
	s.state.Store(int32(st))
}

// Start runs the loop in a goroutine. It is a no-op if already started.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	done := make(chan struct{})
	s.done = done
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
}

// Stop cancels a loop launched by Start and waits for it to exit.
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

// Run blocks until ctx is cancelled. Ticks are serialized: a tick always
// finishes before the next sleep starts, and minutes missed meanwhile are
// not replayed.
func (s *Scheduler) Run(ctx context.Context) {
	defer s.setState(StateStopped)
	s.log.Info("scheduler started", "sources", len(s.sources))

	for {
		s.setState(StateSleeping)
		if !s.sleep(ctx, s.untilNextMinute()) {
			s.log.Info("scheduler stopped")
			return
		}

		s.setState(StateTick)
		if err := s.safeTick(ctx); err != nil {
			s.log.Error("scheduler tick", "error", err, "backoff", panicBackoff)
			s.setState(StateSleeping)
			if !s.sleep(ctx, panicBackoff) {
				s.log.Info("scheduler stopped")
				return
			}
		}
		s.setState(StateIdle)
	}
}

func (s *Scheduler) untilNextMinute() time.Duration {
	now := s.clock.Now()
	return now.Truncate(time.Minute).Add(time.Minute).Sub(now)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-s.clock.After(d):
		return ctx.Err() == nil
	}
}

func (s *Scheduler) safeTick(ctx context.Context) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	s.tick(ctx)
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	settings := s.settings.Current()
	now := s.clock.Now().In(settings.Location())

	specs := s.collect(ctx)
	if len(specs) == 0 {
		return
	}

	rules, errs := schedule.ParseAll(specs)
	for _, err := range errs {
		s.log.Warn("skip schedule rule", "error", err)
	}

	timeout := settings.Timeout()
	g := new(errgroup.Group)
	g.SetLimit(maxConcurrentActions)
	matched := 0
	for _, r := range rules {
		if !r.Matches(now) {
			continue
		}
		matched++
		g.Go(func() error {
			s.runAction(ctx, r, timeout)
			return nil
		})
	}
	_ = g.Wait()

	if matched > 0 {
		s.log.Info("schedule tick", "time", now.Format("15:04"), "rules", len(rules), "matched", matched)
	}
}

func (s *Scheduler) collect(ctx context.Context) []string {
	var specs []string
	for _, src := range s.sources {
		got, err := src.RuleSpecs(ctx)
		if err != nil {
			s.log.Error("read schedule rules", "error", err)
			continue
		}
		specs = append(specs, got...)
	}
	return specs
}

// runAction performs fetch, format and dispatch for one rule. Failures are
// logged and never reach other rules. A delivery still running when the
// timeout expires is abandoned so the tick can finish.
func (s *Scheduler) runAction(ctx context.Context, r schedule.Rule, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if p := recover(); p != nil {
				s.log.Error("schedule action panic", "destination", r.Destination, "source", r.Source, "panic", p)
			}
		}()
		s.deliver(ctx, r, timeout)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		s.log.Error("schedule action abandoned",
			"destination", r.Destination,
			"source", r.Source,
			"timeout", timeout,
			"error", ctx.Err(),
		)
	}
}

func (s *Scheduler) deliver(ctx context.Context, r schedule.Rule, timeout time.Duration) {
	result := s.fetcher.Fetch(ctx, r.Source, timeout)
	if result.Failed() {
		s.log.Warn("scheduled fetch failed",
			"destination", r.Destination,
			"source", r.Source,
			"kind", result.Kind.String(),
			"status", result.StatusCode,
			"reason", result.Reason,
		)
	}

	if err := s.sender.Send(ctx, r.Destination, bot.FormatResult(result)); err != nil {
		s.log.Error("scheduled send", "destination", r.Destination, "source", r.Source, "error", err)
		return
	}
	s.log.Debug("scheduled delivery", "destination", r.Destination, "source", r.Source, "kind", result.Kind.String())
}
