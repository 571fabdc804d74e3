// Package capture runs the periodic per-account cookie/storage capture jobs.
//
// Each account in a logged-in state owns at most one cron entry. Arming an
// account removes any previous entry first, so repeatedly re-entering the
// idle state never stacks timers.
package capture

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Scheduler owns the cron instance and the account -> entry mapping.
type Scheduler struct {
	cron     *cron.Cron
	interval time.Duration

	mu      sync.Mutex
	entries map[string]cron.EntryID
}

// NewScheduler creates and starts a Scheduler firing each armed job every
// interval.
func NewScheduler(interval time.Duration) *Scheduler {
	c := cron.New()
	c.Start()
	return &Scheduler{
		cron:     c,
		interval: interval,
		entries:  make(map[string]cron.EntryID),
	}
}

// Arm schedules the capture job for an account, replacing any existing
// entry for the same account.
func (s *Scheduler) Arm(accountID string, job func()) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[accountID]; ok {
		s.cron.Remove(old)
		delete(s.entries, accountID)
	}

	id, err := s.cron.AddFunc(fmt.Sprintf("@every %s", s.interval), job)
	if err != nil {
		return fmt.Errorf("schedule capture for %s: %w", accountID, err)
	}
	s.entries[accountID] = id
	log.Printf("[capture] armed %s (every %s)", accountID, s.interval)
	return nil
}

// Disarm removes the account's capture entry, if any.
func (s *Scheduler) Disarm(accountID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.entries[accountID]; ok {
		s.cron.Remove(id)
		delete(s.entries, accountID)
		log.Printf("[capture] disarmed %s", accountID)
	}
}

// Active reports whether the account currently has a capture entry.
func (s *Scheduler) Active(accountID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.entries[accountID]
	return ok
}

// Count returns the number of armed accounts.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Stop halts the scheduler. Running jobs finish; no new ones fire.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
