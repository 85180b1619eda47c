package memory

import (
	"context"
	"fmt"
	"sync"

	rcron "github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// SweepResult counts what a sweep removed
type SweepResult struct {
	Contexts      int
	Preferences   int
	Patterns      int
	Conversations int
	Users         int
}

// Total returns the number of removed entries
func (r SweepResult) Total() int {
	return r.Contexts + r.Preferences + r.Patterns + r.Conversations
}

// CleanExpiredData drops business contexts and preferences not updated within
// the retention window, patterns not seen within it, and conversations whose
// newest turn is older than it. Users left without state are forgotten.
func (s *Service) CleanExpiredData() SweepResult {
	cutoff := s.now().Add(-s.retention)

	s.mu.RLock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	var result SweepResult
	for _, id := range ids {
		s.mu.RLock()
		st, ok := s.users[id]
		s.mu.RUnlock()
		if !ok {
			continue
		}

		st.mu.Lock()
		if st.removed {
			st.mu.Unlock()
			continue
		}
		if st.context != nil && st.context.LastUpdated.Before(cutoff) {
			st.context = nil
			result.Contexts++
		}
		if st.prefs != nil && st.prefs.LastUpdated.Before(cutoff) {
			st.prefs = nil
			result.Preferences++
		}
		kept := st.patterns[:0]
		for _, p := range st.patterns {
			if p.LastSeen.Before(cutoff) {
				result.Patterns++
				continue
			}
			kept = append(kept, p)
		}
		if len(kept) == 0 {
			st.patterns = nil
		} else {
			st.patterns = kept
		}
		for key, p := range st.pending {
			if p.LastSeen.Before(cutoff) {
				delete(st.pending, key)
			}
		}
		if n := len(st.history); n > 0 && st.history[n-1].Timestamp.Before(cutoff) {
			st.history = nil
			result.Conversations++
		}

		if st.empty() {
			s.mu.Lock()
			if s.users[id] == st {
				delete(s.users, id)
				st.removed = true
				result.Users++
			}
			s.mu.Unlock()
		}
		st.mu.Unlock()
	}

	s.metrics.RecordSweep(result.Contexts, result.Preferences, result.Patterns, result.Conversations)
	return result
}

// Sweeper runs CleanExpiredData on a cron schedule
type Sweeper struct {
	memory   *Service
	schedule string
	logger   *logrus.Logger

	mu   sync.Mutex
	cron *rcron.Cron
	jobs []sweepJob
}

type sweepJob struct {
	name string
	run  func() int
}

// NewSweeper creates a sweeper; schedule accepts cron descriptors such as "@hourly".
// A nil logger is replaced by a silent one.
func NewSweeper(memory *Service, schedule string, logger *logrus.Logger) *Sweeper {
	if schedule == "" {
		schedule = "@hourly"
	}
	return &Sweeper{
		memory:   memory,
		schedule: schedule,
		logger:   orDiscard(logger),
	}
}

// AddJob registers another cleanup that runs after each memory sweep.
// run returns the number of entries it removed.
func (s *Sweeper) AddJob(name string, run func() int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, sweepJob{name: name, run: run})
}

// Start schedules the sweep. It stops when ctx is cancelled or Stop is called.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}

	c := rcron.New()
	if _, err := c.AddFunc(s.schedule, s.RunOnce); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.schedule, err)
	}
	c.Start()
	s.cron = c

	s.logger.WithField("schedule", s.schedule).Info("Memory sweeper started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish
func (s *Sweeper) Stop() {
	s.mu.Lock()
	c := s.cron
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	<-c.Stop().Done()
	s.logger.Info("Memory sweeper stopped")
}

// RunOnce performs a single sweep and logs the outcome
func (s *Sweeper) RunOnce() {
	result := s.memory.CleanExpiredData()
	entry := s.logger.WithFields(logrus.Fields{
		"contexts":      result.Contexts,
		"preferences":   result.Preferences,
		"patterns":      result.Patterns,
		"conversations": result.Conversations,
		"users":         result.Users,
	})
	if result.Total() > 0 {
		entry.Info("Expired memory removed")
	} else {
		entry.Debug("Memory sweep found nothing to remove")
	}

	s.mu.Lock()
	jobs := append([]sweepJob(nil), s.jobs...)
	s.mu.Unlock()
	for _, job := range jobs {
		if removed := job.run(); removed > 0 {
			s.logger.WithFields(logrus.Fields{
				"job":     job.name,
				"removed": removed,
			}).Info("Expired entries removed")
		}
	}
}
