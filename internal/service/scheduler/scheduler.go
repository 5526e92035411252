// Package scheduler fires suite runs from cron schedules. It keeps an
// in-memory registry of active schedules, refreshed from the schedule
// store, and dispatches each due schedule through the runtime manager.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/probeflow/probeflow/internal/cmn/logger"
	"github.com/probeflow/probeflow/internal/cmn/logger/tag"
	"github.com/probeflow/probeflow/internal/core"
)

// Clock is a function that returns the current time.
// It can be replaced for testing purposes.
type Clock func() time.Time

// RunStarter starts scheduled suite runs.
type RunStarter interface {
	StartScheduledRun(ctx context.Context, schedule *core.RunSchedule) (*core.TestRun, error)
}

// entry is one registered schedule with its parsed expression and the
// next computed fire time.
type entry struct {
	schedule *core.RunSchedule
	parsed   cron.Schedule
	next     time.Time
}

// Service is the scheduler daemon.
type Service struct {
	manager        RunStarter
	schedules      core.ScheduleStore
	location       *time.Location
	reloadInterval time.Duration
	healthServer   *HealthServer

	entries  map[string]*entry
	lock     sync.Mutex
	quit     chan struct{}
	running  atomic.Bool
	stopOnce sync.Once
	wg       sync.WaitGroup
	clock    Clock
}

// Option is a functional option for configuring the Service.
type Option func(*Service)

// WithLocation sets the time zone schedules are evaluated in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		s.location = loc
	}
}

// WithReloadInterval sets how often the schedule registry is refreshed
// from the store.
func WithReloadInterval(interval time.Duration) Option {
	return func(s *Service) {
		s.reloadInterval = interval
	}
}

// WithHealthPort enables the health check server on the given port.
func WithHealthPort(port int) Option {
	return func(s *Service) {
		s.healthServer = NewHealthServer(port)
	}
}

// New constructs a scheduler service from the schedule store and the
// runtime manager.
func New(manager RunStarter, schedules core.ScheduleStore, opts ...Option) *Service {
	s := &Service{
		manager:        manager,
		schedules:      schedules,
		location:       time.Local,
		reloadInterval: time.Minute,
		entries:        map[string]*entry{},
		quit:           make(chan struct{}),
		clock:          time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetClock sets a custom clock function for testing purposes.
// This must be called before Start().
func (s *Service) SetClock(clock Clock) {
	s.clock = clock
}

// Start loads the schedule registry and runs the fire loop. It blocks
// until Stop is called or the context is canceled.
func (s *Service) Start(ctx context.Context) error {
	if err := s.sync(ctx); err != nil {
		return fmt.Errorf("failed to load schedules: %w", err)
	}

	if s.healthServer != nil {
		if err := s.healthServer.Start(ctx); err != nil {
			return fmt.Errorf("failed to start health check server: %w", err)
		}
	}

	s.running.Store(true)
	defer s.running.Store(false)

	logger.Info(ctx, "Scheduler started", tag.Count(s.entryCount()))

	reload := time.NewTicker(s.reloadInterval)
	defer reload.Stop()

	timer := time.NewTimer(s.untilNext())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case <-s.quit:
			return nil

		case <-reload.C:
			if err := s.sync(ctx); err != nil {
				logger.Error(ctx, "Failed to reload schedules", tag.Error(err))
			}
			resetTimer(timer, s.untilNext())

		case <-timer.C:
			s.fireDue(ctx, s.clock().In(s.location))
			timer.Reset(s.untilNext())
		}
	}
}

// Stop stops the fire loop and waits for in-flight dispatches.
func (s *Service) Stop(ctx context.Context) {
	s.stopOnce.Do(func() {
		close(s.quit)
		if s.healthServer != nil {
			if err := s.healthServer.Stop(ctx); err != nil {
				logger.Error(ctx, "Failed to stop health check server", tag.Error(err))
			}
		}
		s.wg.Wait()
		logger.Info(ctx, "Scheduler stopped")
	})
}

// IsRunning returns whether the fire loop is currently running.
func (s *Service) IsRunning() bool {
	return s.running.Load()
}

// sync refreshes the registry from the store. Entries keep their
// computed fire time as long as the cron expression is unchanged.
func (s *Service) sync(ctx context.Context) error {
	schedules, err := s.schedules.List(ctx)
	if err != nil {
		return err
	}

	now := s.clock().In(s.location)

	s.lock.Lock()
	defer s.lock.Unlock()

	seen := make(map[string]struct{}, len(schedules))
	for _, sched := range schedules {
		if !sched.Active {
			continue
		}
		seen[sched.ID] = struct{}{}

		if e, ok := s.entries[sched.ID]; ok && e.schedule.CronExpr == sched.CronExpr {
			e.schedule = sched
			continue
		}
		parsed, err := ParseCron(sched.CronExpr)
		if err != nil {
			logger.Warn(ctx, "Skipping schedule with invalid cron expression",
				tag.ScheduleID(sched.ID),
				tag.CronExpr(sched.CronExpr),
				tag.Error(err),
			)
			continue
		}
		s.entries[sched.ID] = &entry{
			schedule: sched,
			parsed:   parsed,
			next:     parsed.Next(now),
		}
	}

	for id := range s.entries {
		if _, ok := seen[id]; !ok {
			delete(s.entries, id)
		}
	}
	return nil
}

// fireDue dispatches every entry whose fire time has arrived and
// advances it to the next one.
func (s *Service) fireDue(ctx context.Context, now time.Time) {
	type firing struct {
		scheduleID string
		fireTime   time.Time
		next       time.Time
	}

	s.lock.Lock()
	var due []firing
	for _, e := range s.entries {
		if e.next.After(now) {
			continue
		}
		fireTime := e.next
		e.next = e.parsed.Next(now)
		due = append(due, firing{scheduleID: e.schedule.ID, fireTime: fireTime, next: e.next})
	}
	s.lock.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].fireTime.Before(due[j].fireTime) })

	for _, f := range due {
		s.dispatch(ctx, f.scheduleID, f.fireTime, f.next)
	}
}

// dispatch runs one scheduled fire in a goroutine with panic recovery.
func (s *Service) dispatch(ctx context.Context, scheduleID string, fireTime, next time.Time) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logger.Error(ctx, "Scheduled run dispatch panicked",
					tag.ScheduleID(scheduleID),
					tag.Error(fmt.Errorf("panic: %v", r)),
				)
			}
		}()
		s.runSchedule(ctx, scheduleID, fireTime, next)
	}()
}

// runSchedule reloads the schedule so edits and deletions that happened
// after registration win, records the fire, and starts the run.
func (s *Service) runSchedule(ctx context.Context, scheduleID string, fireTime, next time.Time) {
	sched, err := s.schedules.Get(ctx, scheduleID)
	if errors.Is(err, core.ErrScheduleNotFound) {
		logger.Info(ctx, "Schedule removed before firing, skipping", tag.ScheduleID(scheduleID))
		s.removeEntry(scheduleID)
		return
	}
	if err != nil {
		logger.Error(ctx, "Failed to reload schedule", tag.ScheduleID(scheduleID), tag.Error(err))
		return
	}
	if !sched.Active {
		logger.Info(ctx, "Skipping inactive schedule", tag.ScheduleID(scheduleID))
		return
	}

	sched.LastRunAt = fireTime
	sched.NextRunAt = next
	if err := s.schedules.Update(ctx, sched); err != nil {
		logger.Error(ctx, "Failed to record schedule fire time", tag.ScheduleID(scheduleID), tag.Error(err))
	}

	logger.Info(ctx, "Starting scheduled run",
		tag.ScheduleID(scheduleID),
		tag.Suite(sched.SuiteName),
		tag.NextRun(next),
	)
	if _, err := s.manager.StartScheduledRun(ctx, sched); err != nil {
		logger.Error(ctx, "Scheduled run failed to start",
			tag.ScheduleID(scheduleID),
			tag.Suite(sched.SuiteName),
			tag.Error(err),
		)
	}
}

func (s *Service) removeEntry(scheduleID string) {
	s.lock.Lock()
	defer s.lock.Unlock()
	delete(s.entries, scheduleID)
}

func (s *Service) entryCount() int {
	s.lock.Lock()
	defer s.lock.Unlock()
	return len(s.entries)
}

// untilNext returns how long to sleep until the earliest fire time.
// With no entries it falls back to the reload interval.
func (s *Service) untilNext() time.Duration {
	s.lock.Lock()
	defer s.lock.Unlock()

	var earliest time.Time
	for _, e := range s.entries {
		if earliest.IsZero() || e.next.Before(earliest) {
			earliest = e.next
		}
	}
	if earliest.IsZero() {
		return s.reloadInterval
	}
	d := earliest.Sub(s.clock())
	if d < 0 {
		return 0
	}
	return d
}

// resetTimer stops, drains, and re-arms a timer.
func resetTimer(timer *time.Timer, d time.Duration) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(d)
}
