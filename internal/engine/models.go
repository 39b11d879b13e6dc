package engine

import (
	"encoding/json"
	"log/slog"

	"go.opentelemetry.io/otel/metric"

	"github.com/cxd309/avsim-engine/internal/core"
	"github.com/cxd309/avsim-engine/internal/graph"
	"github.com/cxd309/avsim-engine/internal/kinematics"
	"github.com/cxd309/avsim-engine/internal/perception"
	"github.com/cxd309/avsim-engine/internal/storage"
	"github.com/cxd309/avsim-engine/internal/vehicle"
)

// SimulationMeta holds the identity and timing parameters for a simulation run.
type SimulationMeta struct {
	SimulationID string  `json:"simulation_id"`
	RunTime      float64 `json:"run_time"`  // seconds
	TimeStep     float64 `json:"time_step"` // seconds
	// Seed drives destination picking for vehicles that do not name one.
	Seed uint64 `json:"seed,omitempty"`
}

// VehicleSpec is one vehicle of the input. Spawn road and destination are
// optional: the first road defaults to the shortest path, the destination to
// a random outside connection other than the spawn joint.
type VehicleSpec struct {
	ID          string        `json:"vehicle_id"`
	Spawn       graph.JointID `json:"spawn"`
	SpawnRoad   graph.RoadID  `json:"spawn_road,omitempty"`
	Lane        uint          `json:"lane"`
	Destination graph.JointID `json:"destination,omitempty"`
	DepartTime  float64       `json:"depart_time"` // seconds
	// CarFollowing overrides the configured model; see kinematics.Params.Decode.
	CarFollowing json.RawMessage `json:"car_following,omitempty"`
}

// SimulationInput is the JSON-serialisable input to the engine.
type SimulationInput struct {
	Meta     SimulationMeta    `json:"simulation_meta"`
	Network  graph.NetworkData `json:"network"`
	Vehicles []VehicleSpec     `json:"vehicles"`
}

// SimulationLog is the complete output of a simulation run.
type SimulationLog struct {
	Meta     SimulationMeta       `json:"simulation_meta"`
	Output   []core.TickLog       `json:"output"`
	Arrivals []core.ArrivalReport `json:"arrivals"`
}

// Config is the calibration shared by every vehicle of a run.
type Config struct {
	Vehicle      vehicle.Config
	CarFollowing kinematics.Params
	Perception   perception.Config
}

// DefaultConfig returns the urban calibration with the Generalized Force Model.
func DefaultConfig() Config {
	return Config{
		Vehicle:      vehicle.DefaultConfig(),
		CarFollowing: kinematics.DefaultParams(),
		Perception:   perception.DefaultConfig(),
	}
}

// Options injects the run's collaborators. Every field is optional.
type Options struct {
	Logger   *slog.Logger
	Meter    metric.Meter
	Recorder storage.Recorder
	// OnTick is called with every log row once it has been recorded.
	OnTick func(core.TickLog)
}

// pendingVehicle is a validated spec waiting for its departure time.
type pendingVehicle struct {
	spec vehicle.Spec
}

// instruments are the engine's otel metrics.
type instruments struct {
	spawned      metric.Int64Counter
	arrived      metric.Int64Counter
	averageSpeed metric.Float64Histogram
}
