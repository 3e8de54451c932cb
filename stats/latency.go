package stats

import (
	"sort"
	"sync"
	"time"
)

// LatencySummary is the percentile view of one phase.
type LatencySummary struct {
	Count uint64        `json:"count"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	Max   time.Duration `json:"max"`
}

// ring of the most recent samples of one phase
type phaseSamples struct {
	ring  []time.Duration
	next  int
	full  bool
	count uint64
	max   time.Duration
}

func (p *phaseSamples) add(d time.Duration) {
	p.ring[p.next] = d
	p.next = (p.next + 1) % len(p.ring)
	if p.next == 0 {
		p.full = true
	}
	p.count++
	if d > p.max {
		p.max = d
	}
}

func (p *phaseSamples) values() []time.Duration {
	n := p.next
	if p.full {
		n = len(p.ring)
	}
	out := make([]time.Duration, n)
	copy(out, p.ring[:n])
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// LatencyRecorder keeps a fixed-capacity window of samples per phase.
type LatencyRecorder struct {
	mu       sync.Mutex
	capacity int
	phases   map[string]*phaseSamples
}

func NewLatencyRecorder(capacity int) *LatencyRecorder {
	if capacity <= 0 {
		capacity = 512
	}
	return &LatencyRecorder{
		capacity: capacity,
		phases:   make(map[string]*phaseSamples),
	}
}

func (r *LatencyRecorder) Record(phase string, d time.Duration) {
	if r == nil || phase == "" {
		return
	}
	if d < 0 {
		d = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.phases[phase]
	if !ok {
		p = &phaseSamples{ring: make([]time.Duration, r.capacity)}
		r.phases[phase] = p
	}
	p.add(d)
}

// Snapshot summarises every phase; reset clears the window afterwards.
func (r *LatencyRecorder) Snapshot(reset bool) map[string]LatencySummary {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[string]LatencySummary, len(r.phases))
	for name, p := range r.phases {
		vals := p.values()
		if len(vals) > 0 {
			out[name] = LatencySummary{
				Count: p.count,
				P50:   percentile(vals, 0.50),
				P95:   percentile(vals, 0.95),
				Max:   p.max,
			}
		}
		if reset {
			*p = phaseSamples{ring: p.ring}
		}
	}
	return out
}

func percentile(sorted []time.Duration, q float64) time.Duration {
	idx := int(float64(len(sorted)-1) * q)
	if idx < 0 {
		idx = 0
	}
	return sorted[idx]
}
