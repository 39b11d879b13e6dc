// Package storage defines the sink a simulation run is recorded into.
package storage

import (
	"errors"

	"github.com/cxd309/avsim-engine/internal/core"
)

// Recorder is the interface all storage implementations must satisfy.
type Recorder interface {
	// Lifecycle
	Init() error
	Close() error

	// StartRun begins a new recording; previous run data is kept.
	StartRun(meta core.RunMeta) error

	RecordTick(tick core.TickLog) error
	RecordArrival(report core.ArrivalReport) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) Init() error                            { return nil }
func (Nop) Close() error                           { return nil }
func (Nop) StartRun(core.RunMeta) error            { return nil }
func (Nop) RecordTick(core.TickLog) error          { return nil }
func (Nop) RecordArrival(core.ArrivalReport) error { return nil }

// Multi fans every call out to several recorders in order. Lifecycle errors
// are joined; recording stops at the first failure.
type Multi []Recorder

func (m Multi) Init() error {
	for _, r := range m {
		if err := r.Init(); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) Close() error {
	var errs []error
	for _, r := range m {
		errs = append(errs, r.Close())
	}
	return errors.Join(errs...)
}

func (m Multi) StartRun(meta core.RunMeta) error {
	for _, r := range m {
		if err := r.StartRun(meta); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordTick(tick core.TickLog) error {
	for _, r := range m {
		if err := r.RecordTick(tick); err != nil {
			return err
		}
	}
	return nil
}

func (m Multi) RecordArrival(report core.ArrivalReport) error {
	for _, r := range m {
		if err := r.RecordArrival(report); err != nil {
			return err
		}
	}
	return nil
}
