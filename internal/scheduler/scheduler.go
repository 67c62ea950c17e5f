// Package scheduler runs named repeating background jobs. It owns the
// lifecycle of the optimizers' sweeps so they can be stopped cleanly.
package scheduler

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron"
	"github.com/sirupsen/logrus"
)

// Job is a unit of background work
type Job func()

// Scheduler runs jobs at fixed intervals
type Scheduler struct {
	cron   *cron.Cron
	logger *logrus.Logger

	mu        sync.Mutex
	jobs      map[string]Job
	intervals map[string]time.Duration
	running   bool
}

// New creates an idle scheduler
func New(logger *logrus.Logger) *Scheduler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Scheduler{
		cron:      cron.New(),
		logger:    logger,
		jobs:      make(map[string]Job),
		intervals: make(map[string]time.Duration),
	}
}

// Every registers job to run every interval. Intervals below one second are
// rounded up to one second.
func (s *Scheduler) Every(name string, interval time.Duration, job Job) error {
	if interval <= 0 {
		return fmt.Errorf("job %q: interval must be positive", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("job %q already registered", name)
	}

	s.jobs[name] = job
	s.intervals[name] = interval
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.wrap(name, job)))

	return nil
}

func (s *Scheduler) wrap(name string, job Job) func() {
	return func() {
		start := time.Now()
		job()
		s.logger.WithFields(logrus.Fields{
			"job":         name,
			"duration_ms": time.Since(start).Milliseconds(),
		}).Debug("Background job completed")
	}
}

// Start begins running registered jobs
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true
	s.cron.Start()
}

// Stop halts the scheduler. Jobs already running are allowed to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	s.cron.Stop()
}

// Running reports whether Start has been called without a matching Stop
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunNow executes a registered job synchronously
func (s *Scheduler) RunNow(name string) error {
	s.mu.Lock()
	job, ok := s.jobs[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("job %q not registered", name)
	}
	job()
	return nil
}

// Jobs returns the registered job names in sorted order
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for name := range s.jobs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
