// Package registry is the scheduler's in-memory, liveness-filtered
// directory of workers. It is process-local and non-durable: on scheduler
// restart the registry starts empty until workers re-register via
// heartbeat.
package registry

import (
	"sort"
	"sync"
	"time"
)

// DefaultLivenessTimeout is the default window within which a worker must
// have heartbeated to be considered active.
const DefaultLivenessTimeout = 5 * time.Second

type entry struct {
	address       string
	lastHeartbeat time.Time
	seq           uint64 // insertion order, assigned on first upsert
}

// Registry is a mutex-guarded map of workerId to its last-known address
// and heartbeat time. Safe for concurrent use by heartbeat receivers, the
// placement oracle, and a periodic reaper.
type Registry struct {
	mu              sync.Mutex
	entries         map[string]entry
	nextSeq         uint64
	livenessTimeout time.Duration
}

// New creates a Registry with the given liveness timeout.
func New(livenessTimeout time.Duration) *Registry {
	if livenessTimeout <= 0 {
		livenessTimeout = DefaultLivenessTimeout
	}
	return &Registry{
		entries:         make(map[string]entry),
		livenessTimeout: livenessTimeout,
	}
}

// Upsert atomically inserts or refreshes a worker's lastHeartbeat to now.
// The address is overwritten on every call since a worker may move. A
// worker reappearing after being reaped gets a fresh insertion sequence,
// per spec: Reaped -> Active on a new heartbeat is treated as a new
// registration.
func (r *Registry) Upsert(workerID, address string, now time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[workerID]
	if !ok {
		e.seq = r.nextSeq
		r.nextSeq++
	}
	e.address = address
	e.lastHeartbeat = now
	r.entries[workerID] = e
}

// Worker is a snapshot of one active registry entry.
type Worker struct {
	ID      string
	Address string
}

// Active returns a snapshot of active workers (those heartbeated within
// the liveness timeout of now), ordered by original insertion time so
// round-robin placement over this slice is stable across calls as long
// as membership doesn't change.
func (r *Registry) Active(now time.Time) []Worker {
	r.mu.Lock()
	defer r.mu.Unlock()

	type candidate struct {
		Worker
		seq uint64
	}
	candidates := make([]candidate, 0, len(r.entries))
	for id, e := range r.entries {
		if now.Sub(e.lastHeartbeat) <= r.livenessTimeout {
			candidates = append(candidates, candidate{Worker{ID: id, Address: e.address}, e.seq})
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].seq < candidates[j].seq })

	active := make([]Worker, len(candidates))
	for i, c := range candidates {
		active[i] = c.Worker
	}
	return active
}

// Reap removes entries whose last heartbeat is older than the liveness
// timeout relative to now, returning the removed worker IDs.
func (r *Registry) Reap(now time.Time) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var removed []string
	for id, e := range r.entries {
		if now.Sub(e.lastHeartbeat) > r.livenessTimeout {
			delete(r.entries, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Len returns the current number of tracked entries, active or not.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
