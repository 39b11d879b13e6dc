// Package core holds the records the simulation emits and every sink
// (engine output, storage, stream) consumes.
package core

import (
	"time"

	"github.com/cxd309/avsim-engine/internal/geometry"
)

// RunMeta identifies a simulation run.
type RunMeta struct {
	SimulationID string    `json:"simulation_id"`
	RunTime      float64   `json:"run_time"`  // seconds
	TimeStep     float64   `json:"time_step"` // seconds
	Seed         uint64    `json:"seed"`
	StartedAt    time.Time `json:"started_at"`
}

// VehicleLog is a point-in-time snapshot of one vehicle.
type VehicleLog struct {
	VehicleID string        `json:"vehicle_id"`
	State     string        `json:"state"`
	Position  geometry.Vec2 `json:"position"`
	Heading   float64       `json:"heading"` // degrees
	Speed     float64       `json:"speed"`   // m/s
	Road      string        `json:"road"`
	Lane      uint          `json:"lane"`
	NextJoint string        `json:"next_joint"`
	Leader    string        `json:"leader,omitempty"`
	LightOn   bool          `json:"light_on,omitempty"`
	// Detected lists the vehicles seen by each ray group, keyed by
	// direction name; groups without hits are omitted.
	Detected map[string][]string `json:"detected,omitempty"`
}

// ArrivalReport summarises a completed trip.
type ArrivalReport struct {
	VehicleID    string          `json:"vehicle_id"`
	Origin       string          `json:"origin"`
	Destination  string          `json:"destination"`
	DepartTime   float64         `json:"depart_time"` // seconds
	ArriveTime   float64         `json:"arrive_time"` // seconds
	Elapsed      float64         `json:"elapsed"`     // seconds
	Distance     float64         `json:"distance"`    // metres
	AverageSpeed float64         `json:"average_speed"`
	PeakSpeed    float64         `json:"peak_speed"`
	Route        []string        `json:"route"`
	Trajectory   []geometry.Vec2 `json:"trajectory"`
}

// TickLog is the state of every live vehicle at one timestep, plus the trips
// completed during it.
type TickLog struct {
	Timestamp float64         `json:"timestamp"` // seconds
	Vehicles  []VehicleLog    `json:"vehicles"`
	Arrivals  []ArrivalReport `json:"arrivals,omitempty"`
}
