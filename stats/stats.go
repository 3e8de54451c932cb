package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Round events counted by the supervisor and the author agent.
const (
	EventGenesis       = "verdict_genesis"
	EventValid         = "verdict_valid"
	EventNotAuthority  = "verdict_not_authority"
	EventNoProof       = "verdict_no_proof"
	EventBadSignature  = "verdict_bad_signature"
	EventRollback      = "rollback"
	EventProofFresh    = "proof_fresh"
	EventProofResend   = "proof_resend"
	EventAuthorFailure = "author_failure"
	EventHostError     = "host_error"
	EventEviction      = "eviction"
)

// Stats counts round events and keeps latency samples per phase.
type Stats struct {
	statsLock sync.RWMutex
	counts    map[string]uint64
	latency   *LatencyRecorder
}

func NewStats() *Stats {
	return &Stats{
		counts:  make(map[string]uint64),
		latency: NewLatencyRecorder(512),
	}
}

// Record bumps the counter for event. A nil receiver is a no-op.
func (s *Stats) Record(event string) {
	if s == nil {
		return
	}
	s.statsLock.Lock()
	s.counts[event]++
	s.statsLock.Unlock()
}

// Observe records how long a phase ("validate", "author") took.
func (s *Stats) Observe(phase string, d time.Duration) {
	if s == nil {
		return
	}
	s.latency.Record(phase, d)
}

// Count returns a single counter.
func (s *Stats) Count(event string) uint64 {
	s.statsLock.RLock()
	defer s.statsLock.RUnlock()
	return s.counts[event]
}

// Counts returns a copy of all counters.
func (s *Stats) Counts() map[string]uint64 {
	s.statsLock.RLock()
	defer s.statsLock.RUnlock()

	out := make(map[string]uint64, len(s.counts))
	for k, v := range s.counts {
		out[k] = v
	}
	return out
}

// Latencies returns per-phase summaries, optionally resetting the window.
func (s *Stats) Latencies(reset bool) map[string]LatencySummary {
	return s.latency.Snapshot(reset)
}

// String renders counters sorted by name, for periodic log lines.
func (s *Stats) String() string {
	counts := s.Counts()
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[k])
	}
	return strings.Join(parts, " ")
}
