package mesh

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Snapshot is the result of one successful solve: the frame, the graph it
// was assembled from and the reports it used.
type Snapshot struct {
	Frame    *GlobalFrame
	Graph    *RegistrationGraph
	Scanners []Scanner
}

// Scanner returns the report scanner id contributed to the solve.
func (s Snapshot) Scanner(id int) (Scanner, bool) {
	for _, sc := range s.Scanners {
		if sc.ID == id {
			return sc, true
		}
	}
	return Scanner{}, false
}

// StateTracker holds the live service state: the latest report per scanner
// and the most recent successful solve.
type StateTracker struct {
	mu        sync.RWMutex
	scanners  map[int]Scanner
	solved    *Snapshot
	solvedRev uint64 // reports revision the snapshot was solved from
	rev       uint64 // bumped on every report change
	lastErr   error
	cachePath string // registration cache; empty disables persistence
}

// NewStateTracker creates a new state tracker
func NewStateTracker() *StateTracker {
	return &StateTracker{
		scanners: make(map[int]Scanner),
	}
}

// NewStateTrackerWithCache creates a state tracker whose solves start from,
// and write back to, the registration cache at cachePath.
func NewStateTrackerWithCache(cachePath string) *StateTracker {
	st := NewStateTracker()
	st.cachePath = cachePath
	return st
}

// UpdateScanner stores the latest report for a scanner, replacing any earlier one
func (st *StateTracker) UpdateScanner(s Scanner) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.scanners[s.ID] = s
	st.rev++
}

// SetScanners replaces every stored report
func (st *StateTracker) SetScanners(scanners []Scanner) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.scanners = make(map[int]Scanner, len(scanners))
	for _, s := range scanners {
		st.scanners[s.ID] = s
	}
	st.rev++
}

// Scanners returns the stored reports ordered by id
func (st *StateTracker) Scanners() []Scanner {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sortedScanners()
}

func (st *StateTracker) sortedScanners() []Scanner {
	result := make([]Scanner, 0, len(st.scanners))
	for _, s := range st.scanners {
		result = append(result, s)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

// Complete reports whether every id from 0 to the highest reported id has a report
func (st *StateTracker) Complete() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()

	if len(st.scanners) == 0 {
		return false
	}
	maxID := 0
	for id := range st.scanners {
		maxID = max(maxID, id)
	}
	return len(st.scanners) == maxID+1
}

// Frame returns the most recent solved frame, or nil if none exists.
func (st *StateTracker) Frame() *GlobalFrame {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.solved == nil {
		return nil
	}
	return st.solved.Frame
}

// Graph returns the registration graph the current frame was assembled from
func (st *StateTracker) Graph() *RegistrationGraph {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.solved == nil {
		return nil
	}
	return st.solved.Graph
}

// Snapshot returns the current frame together with its graph and reports.
// ok is false until a solve has succeeded.
func (st *StateTracker) Snapshot() (Snapshot, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.solved == nil {
		return Snapshot{}, false
	}
	return *st.solved, true
}

// HasFrame returns true once a solve has succeeded
func (st *StateTracker) HasFrame() bool {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.solved != nil
}

// LastError returns the error from the most recent solve, if it failed
func (st *StateTracker) LastError() error {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.lastErr
}

// Solve registers and assembles the stored reports. The frame, graph and
// reports of a successful solve replace the current snapshot together; on
// failure the previous snapshot is kept and the error is remembered for
// LastError. A solve that finishes after a solve of newer reports does not
// replace the newer snapshot.
func (st *StateTracker) Solve(ctx context.Context, opts RegisterOptions) (Snapshot, error) {
	if !st.Complete() {
		return Snapshot{}, fmt.Errorf("scanner reports incomplete: have %d", len(st.Scanners()))
	}

	st.mu.RLock()
	cachePath := st.cachePath
	scanners := st.sortedScanners()
	rev := st.rev
	st.mu.RUnlock()

	frame, g, err := SolveCached(ctx, scanners, cachePath, opts)
	return st.commit(rev, Snapshot{Frame: frame, Graph: g, Scanners: scanners}, err)
}

// commit stores the outcome of a solve of reports revision rev.
func (st *StateTracker) commit(rev uint64, snap Snapshot, err error) (Snapshot, error) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if st.solved != nil && rev < st.solvedRev {
		if err != nil {
			return Snapshot{}, err
		}
		return snap, nil
	}
	st.lastErr = err
	if err != nil {
		return Snapshot{}, err
	}
	st.solved = &snap
	st.solvedRev = rev
	return snap, nil
}
