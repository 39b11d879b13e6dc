// Package memory implements storage.Recorder in process memory.
package memory

import (
	"fmt"
	"sync"

	"github.com/cxd309/avsim-engine/internal/core"
)

// RunRecord groups a run with everything recorded for it.
type RunRecord struct {
	Meta     core.RunMeta
	Ticks    []core.TickLog
	Arrivals []core.ArrivalReport
}

// Backend keeps every run in memory. It is safe for concurrent use, so a
// streaming server can read while the engine records.
type Backend struct {
	runs []*RunRecord
	mu   sync.RWMutex
}

// New creates a new memory backend
func New() *Backend {
	return &Backend{}
}

// Init initializes the backend
func (b *Backend) Init() error {
	return nil
}

// Close cleans up resources
func (b *Backend) Close() error {
	return nil
}

// StartRun opens a new run; later records attach to it.
func (b *Backend) StartRun(meta core.RunMeta) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.runs = append(b.runs, &RunRecord{Meta: meta})
	return nil
}

func (b *Backend) current() (*RunRecord, error) {
	if len(b.runs) == 0 {
		return nil, fmt.Errorf("no run started")
	}
	return b.runs[len(b.runs)-1], nil
}

// RecordTick appends a tick to the current run.
func (b *Backend) RecordTick(tick core.TickLog) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	run, err := b.current()
	if err != nil {
		return err
	}
	run.Ticks = append(run.Ticks, tick)
	return nil
}

// RecordArrival appends an arrival report to the current run.
func (b *Backend) RecordArrival(report core.ArrivalReport) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	run, err := b.current()
	if err != nil {
		return err
	}
	run.Arrivals = append(run.Arrivals, report)
	return nil
}

// Runs returns a copy of every recorded run, oldest first.
func (b *Backend) Runs() []RunRecord {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]RunRecord, len(b.runs))
	for i, r := range b.runs {
		out[i] = RunRecord{
			Meta:     r.Meta,
			Ticks:    append([]core.TickLog(nil), r.Ticks...),
			Arrivals: append([]core.ArrivalReport(nil), r.Arrivals...),
		}
	}
	return out
}

// Latest returns the most recent tick of the current run.
func (b *Backend) Latest() (core.TickLog, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	run, err := b.current()
	if err != nil || len(run.Ticks) == 0 {
		return core.TickLog{}, false
	}
	return run.Ticks[len(run.Ticks)-1], true
}
