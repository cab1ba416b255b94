// Package supervise owns the life of a signal after placement: tracking its
// slots, trailing its stops, and running the one-shot profit protection.
package supervise

import (
	"sync"
	"time"

	"github.com/tradekit/signalpilot/internal/domain"
)

// SlotState is the lifecycle state of one entry slot.
type SlotState string

const (
	SlotPending SlotState = "pending"
	SlotOpen    SlotState = "open"
	SlotClosed  SlotState = "closed"
)

// slotTrack is the supervised state of one slot.
type slotTrack struct {
	slot   int
	state  SlotState
	ticket int64
	entry  float64
	runner bool
}

// Record is the supervised state of one signal. All stop modifications for
// the signal's tickets go through the record's mutex, so the trailing and
// protection loops can never race a modify on the same position.
type Record struct {
	mu sync.Mutex

	signal domain.Signal
	slots  map[int]*slotTrack

	// bestPrice is the most favorable exit price seen since registration:
	// the highest bid for buys, the lowest ask for sells.
	bestPrice float64

	runnerArmed     bool
	protectionFired bool
	registeredAt    time.Time
}

// Signal returns the record's signal.
func (r *Record) Signal() domain.Signal {
	return r.signal
}

// Snapshot returns the current slot states, keyed by slot ordinal.
func (r *Record) Snapshot() map[int]SlotState {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[int]SlotState, len(r.slots))
	for n, s := range r.slots {
		out[n] = s.state
	}
	return out
}

// RunnerArmed reports whether the runner slot has been released to trail.
func (r *Record) RunnerArmed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.runnerArmed
}

// observeBest ratchets the best exit price. Callers hold r.mu.
func (r *Record) observeBest(exitPrice float64) float64 {
	if r.bestPrice == 0 {
		r.bestPrice = exitPrice
		return r.bestPrice
	}
	if r.signal.Direction == domain.DirectionBuy {
		if exitPrice > r.bestPrice {
			r.bestPrice = exitPrice
		}
	} else {
		if exitPrice < r.bestPrice {
			r.bestPrice = exitPrice
		}
	}
	return r.bestPrice
}

// Registry holds the records of every signal under supervision.
type Registry struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{records: make(map[string]*Record)}
}

// Register creates a record for a freshly placed signal. plan carries the
// slot layout; results maps slot ordinal to the ticket the venue returned
// (absent entries are slots whose placement failed).
func (reg *Registry) Register(sig domain.Signal, plan []domain.SlotPlan, tickets map[int]int64) *Record {
	rec := &Record{
		signal:       sig,
		slots:        make(map[int]*slotTrack, len(plan)),
		registeredAt: time.Now().UTC(),
	}
	for _, sp := range plan {
		ticket, placed := tickets[sp.Slot]
		if !placed {
			continue
		}
		state := SlotPending
		if sp.Kind == domain.OrderKindMarket {
			state = SlotOpen
		}
		rec.slots[sp.Slot] = &slotTrack{
			slot:   sp.Slot,
			state:  state,
			ticket: ticket,
			entry:  sp.Entry,
			runner: sp.Runner,
		}
	}

	reg.mu.Lock()
	reg.records[sig.Fingerprint] = rec
	reg.mu.Unlock()
	return rec
}

// Restore creates a record for a signal recovered from the ledger after a
// restart. Slot state is rebuilt from the venue by the tracker's next poll.
func (reg *Registry) Restore(entry domain.LedgerEntry, protectionFired bool) *Record {
	rec := &Record{
		signal:          entry.Signal,
		slots:           make(map[int]*slotTrack),
		runnerArmed:     entry.Status == domain.SignalStatusTP2Hit,
		protectionFired: protectionFired,
		registeredAt:    time.Now().UTC(),
	}

	reg.mu.Lock()
	reg.records[entry.Signal.Fingerprint] = rec
	reg.mu.Unlock()
	return rec
}

// Get returns the record for a fingerprint.
func (reg *Registry) Get(fingerprint string) (*Record, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	rec, ok := reg.records[fingerprint]
	return rec, ok
}

// Remove drops a record from supervision.
func (reg *Registry) Remove(fingerprint string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	delete(reg.records, fingerprint)
}

// List returns all supervised records.
func (reg *Registry) List() []*Record {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	out := make([]*Record, 0, len(reg.records))
	for _, rec := range reg.records {
		out = append(out, rec)
	}
	return out
}

// Symbols returns the distinct symbols under supervision.
func (reg *Registry) Symbols() []string {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	seen := make(map[string]struct{})
	var out []string
	for _, rec := range reg.records {
		if _, ok := seen[rec.signal.Symbol]; !ok {
			seen[rec.signal.Symbol] = struct{}{}
			out = append(out, rec.signal.Symbol)
		}
	}
	return out
}
