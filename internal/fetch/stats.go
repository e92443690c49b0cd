package fetch

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Stats accumulates remote cost and timing for one report run. It is shared by
// every orchestrator invocation in the run and is safe for concurrent use.
type Stats struct {
	mu        sync.Mutex
	runID     uuid.UUID
	startedAt time.Time
	snapshot  Snapshot
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	RunID      string
	StartedAt  time.Time
	Queries    int           // Successful batch requests
	Throttled  int           // Throttled batch requests
	Cost       int           // Sum of reported rateLimit.cost
	Remaining  int           // Last reported rateLimit.remaining
	ResetAt    time.Time     // Last reported rateLimit.resetAt
	Elapsed    time.Duration // Time spent inside successful requests
	SlowestRun time.Duration // Longest single request
}

// NewStats creates Stats with a fresh run ID.
func NewStats() *Stats {
	s := &Stats{}
	s.Reset()
	return s
}

// Reset zeroes the counters and assigns a new run ID. Call it when a report starts.
func (s *Stats) Reset() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runID = uuid.New()
	s.startedAt = time.Now()
	s.snapshot = Snapshot{}
	return s.runID.String()
}

// RunID returns the current run identifier.
func (s *Stats) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID.String()
}

// Record adds one successful request.
func (s *Stats) Record(cost, remaining int, resetAt time.Time, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Queries++
	s.snapshot.Cost += cost
	s.snapshot.Remaining = remaining
	s.snapshot.ResetAt = resetAt
	s.snapshot.Elapsed += elapsed
	if elapsed > s.snapshot.SlowestRun {
		s.snapshot.SlowestRun = elapsed
	}
}

// RecordThrottle counts one throttled request.
func (s *Stats) RecordThrottle() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Throttled++
}

// Snapshot returns a copy of the counters.
func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snapshot
	snap.RunID = s.runID.String()
	snap.StartedAt = s.startedAt
	return snap
}
