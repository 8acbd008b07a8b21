// Package scheduler runs the daemon's named cycles on a daily clock.
package scheduler

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

var timeRegex = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// Scheduler manages named cron jobs in one timezone.
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	logger   zerolog.Logger
	mu       sync.Mutex
	entries  map[string]cron.EntryID
	started  bool
}

// NewScheduler creates a scheduler for the given timezone. A job that is
// still running when its next run is due is skipped, and a panicking job is
// logged instead of crashing the process.
func NewScheduler(timezone string, logger zerolog.Logger) (*Scheduler, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	s := &Scheduler{
		location: loc,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		entries:  make(map[string]cron.EntryID),
	}
	cl := cron.PrintfLogger(&s.logger)
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s, nil
}

// Schedule runs fn under name at when, either a daily "HH:MM" time or a
// five-field cron expression. Scheduling an existing name replaces its job.
func (s *Scheduler) Schedule(name, when string, fn func()) error {
	spec, err := cronSpec(when)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	id, err := s.cron.AddFunc(spec, func() {
		s.logger.Info().Str("job", name).Msg("scheduled job starting")
		fn()
	})
	if err != nil {
		return fmt.Errorf("add cron job %s: %w", name, err)
	}
	s.entries[name] = id
	return nil
}

// Next returns the next run time of the named job.
func (s *Scheduler) Next(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.entries[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	e := s.cron.Entry(id)
	if !e.Valid() {
		return time.Time{}, false
	}
	if !e.Next.IsZero() {
		return e.Next, true
	}
	return e.Schedule.Next(time.Now().In(s.location)), true
}

// Start begins the scheduler.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		s.cron.Start()
		s.started = true
	}
}

// Stop halts the scheduler and returns a context that is done once running
// jobs have finished.
func (s *Scheduler) Stop() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	s.started = false
	return s.cron.Stop()
}

func cronSpec(when string) (string, error) {
	if hour, minute, err := parseTime(when); err == nil {
		return buildCronSpec(hour, minute), nil
	}
	if _, err := cron.ParseStandard(when); err != nil {
		return "", fmt.Errorf("invalid schedule %q (expected HH:MM or a cron expression)", when)
	}
	return when, nil
}

func parseTime(timeStr string) (int, int, error) {
	matches := timeRegex.FindStringSubmatch(timeStr)
	if len(matches) != 3 {
		return 0, 0, fmt.Errorf("invalid time format: %q (expected HH:MM)", timeStr)
	}

	hour, _ := strconv.Atoi(matches[1])
	minute, _ := strconv.Atoi(matches[2])

	return hour, minute, nil
}

func buildCronSpec(hour, minute int) string {
	// minute hour day month weekday
	return fmt.Sprintf("%d %d * * *", minute, hour)
}
