// Package engine implements the vehicle simulation loop.
//
// The simulation advances in fixed timesteps. Each step has three phases:
//
//  1. Snapshot - every live vehicle's footprint, heading and speed goes into a
//     spatial index that is immutable for the rest of the tick.
//
//  2. Motion - every vehicle perceives the snapshot, picks its leader and
//     advances by one timestep. No vehicle observes another's update from the
//     same tick.
//
//  3. Arrivals - vehicles that reached their destination emit a report and
//     leave the arena.
package engine

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/samber/lo"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cxd309/avsim-engine/internal/core"
	"github.com/cxd309/avsim-engine/internal/graph"
	"github.com/cxd309/avsim-engine/internal/perception"
	"github.com/cxd309/avsim-engine/internal/storage"
	"github.com/cxd309/avsim-engine/internal/vehicle"
)

// MeterName is the instrumentation scope of the engine's metrics.
const MeterName = "github.com/cxd309/avsim-engine/engine"

// Simulation engine state.
type Simulation struct {
	meta      SimulationMeta
	cfg       Config
	network   *graph.Network
	perceiver *perception.Perceiver

	pending []pendingVehicle // ordered by departure time
	active  []*vehicle.Vehicle
	tick    int
	ticks   int

	logger   *slog.Logger
	recorder storage.Recorder
	onTick   func(core.TickLog)
	metrics  instruments
	attrs    metric.MeasurementOption
}

// New constructs a Simulation from a SimulationInput, building the network and
// resolving every vehicle spec. Vehicles enter the network at their departure
// time.
func New(input SimulationInput, cfg Config, opts Options) (*Simulation, error) {
	if input.Meta.TimeStep <= 0 {
		return nil, fmt.Errorf("time_step must be positive, got %g", input.Meta.TimeStep)
	}
	if input.Meta.RunTime < 0 {
		return nil, fmt.Errorf("run_time must not be negative, got %g", input.Meta.RunTime)
	}
	if err := cfg.CarFollowing.Validate(); err != nil {
		return nil, fmt.Errorf("car-following config: %w", err)
	}
	if err := cfg.Vehicle.Validate(); err != nil {
		return nil, fmt.Errorf("vehicle config: %w", err)
	}
	if err := cfg.Perception.Validate(); err != nil {
		return nil, fmt.Errorf("perception config: %w", err)
	}

	network, err := graph.NewNetwork(input.Network)
	if err != nil {
		return nil, fmt.Errorf("building network: %w", err)
	}

	s := &Simulation{
		meta:      input.Meta,
		cfg:       cfg,
		network:   network,
		perceiver: perception.New(cfg.Perception),
		ticks:     int(math.Floor(input.Meta.RunTime/input.Meta.TimeStep + 1e-9)),
		logger:    opts.Logger,
		recorder:  opts.Recorder,
		onTick:    opts.OnTick,
		attrs:     metric.WithAttributes(attribute.String("simulation_id", input.Meta.SimulationID)),
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	s.logger = s.logger.With("simulation", input.Meta.SimulationID)
	if s.recorder == nil {
		s.recorder = storage.Nop{}
	}
	meter := opts.Meter
	if meter == nil {
		meter = otel.Meter(MeterName)
	}
	if s.metrics, err = newInstruments(meter); err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewPCG(input.Meta.Seed, input.Meta.Seed))
	seen := make(map[string]bool, len(input.Vehicles))
	for _, vs := range input.Vehicles {
		if vs.ID == "" {
			return nil, fmt.Errorf("vehicle with spawn %q has no vehicle_id", vs.Spawn)
		}
		if seen[vs.ID] {
			return nil, fmt.Errorf("vehicle %q already exists", vs.ID)
		}
		seen[vs.ID] = true
		spec, err := s.resolve(vs, rng)
		if err != nil {
			return nil, fmt.Errorf("vehicle %q: %w", vs.ID, err)
		}
		s.pending = append(s.pending, pendingVehicle{spec: spec})
	}
	slices.SortStableFunc(s.pending, func(a, b pendingVehicle) int {
		return cmp.Compare(a.spec.DepartTime, b.spec.DepartTime)
	})
	return s, nil
}

func newInstruments(m metric.Meter) (instruments, error) {
	var (
		in  instruments
		err error
	)
	if in.spawned, err = m.Int64Counter("avsim.vehicles.spawned",
		metric.WithDescription("Vehicles that entered the network"), metric.WithUnit("{vehicle}")); err != nil {
		return in, fmt.Errorf("creating spawned counter: %w", err)
	}
	if in.arrived, err = m.Int64Counter("avsim.vehicles.arrived",
		metric.WithDescription("Vehicles that reached their destination"), metric.WithUnit("{vehicle}")); err != nil {
		return in, fmt.Errorf("creating arrived counter: %w", err)
	}
	if in.averageSpeed, err = m.Float64Histogram("avsim.vehicle.average_speed",
		metric.WithDescription("Average speed of completed trips"), metric.WithUnit("m/s")); err != nil {
		return in, fmt.Errorf("creating average speed histogram: %w", err)
	}
	return in, nil
}

// resolve turns an input spec into a vehicle spec, checking that its joints,
// road, lane and model exist and that the destination is reachable.
func (s *Simulation) resolve(vs VehicleSpec, rng *rand.Rand) (vehicle.Spec, error) {
	spawn, err := s.network.Joint(vs.Spawn)
	if err != nil {
		return vehicle.Spec{}, fmt.Errorf("spawn: %w", err)
	}
	if vs.DepartTime < 0 {
		return vehicle.Spec{}, fmt.Errorf("depart_time must not be negative, got %g", vs.DepartTime)
	}

	var dest *graph.Joint
	if vs.Destination != "" {
		if dest, err = s.network.Joint(vs.Destination); err != nil {
			return vehicle.Spec{}, fmt.Errorf("destination: %w", err)
		}
	} else {
		options := lo.Filter(s.network.OutsideConnections(), func(j *graph.Joint, _ int) bool { return j != spawn })
		if len(options) == 0 {
			return vehicle.Spec{}, fmt.Errorf("no outside connection to pick a destination from")
		}
		dest = options[rng.IntN(len(options))]
	}
	if dest == spawn {
		return vehicle.Spec{}, fmt.Errorf("destination %q is the spawn joint", dest.ID)
	}

	var road *graph.Road
	if vs.SpawnRoad != "" {
		if road, err = s.network.Road(vs.SpawnRoad); err != nil {
			return vehicle.Spec{}, fmt.Errorf("spawn road: %w", err)
		}
		if road.EdgeIndex(spawn) < 0 {
			return vehicle.Spec{}, fmt.Errorf("spawn road %q does not touch joint %q", road.ID, spawn.ID)
		}
		if after := road.OtherJoint(spawn); after != dest {
			if _, err := s.network.ShortestPath(after.ID, dest.ID); err != nil {
				return vehicle.Spec{}, err
			}
		}
	}
	first := road
	if first == nil {
		path, err := s.network.ShortestPath(spawn.ID, dest.ID)
		if err != nil {
			return vehicle.Spec{}, err
		}
		first = path.Roads[0]
	}
	if vs.Lane >= first.Lanes {
		return vehicle.Spec{}, fmt.Errorf("lane %d out of range on road %q (%d lanes)", vs.Lane, first.ID, first.Lanes)
	}

	model, err := s.cfg.CarFollowing.Decode(vs.CarFollowing)
	if err != nil {
		return vehicle.Spec{}, err
	}

	return vehicle.Spec{
		ID:          vs.ID,
		Spawn:       spawn,
		SpawnRoad:   road,
		Lane:        vs.Lane,
		Destination: dest,
		DepartTime:  vs.DepartTime,
		Model:       model,
	}, nil
}

// Network returns the road network of the run.
func (s *Simulation) Network() *graph.Network { return s.network }

// Time returns the simulation clock in seconds.
func (s *Simulation) Time() float64 { return float64(s.tick) * s.meta.TimeStep }

// Done reports whether the run time has been simulated.
func (s *Simulation) Done() bool { return s.tick >= s.ticks }

// Vehicles returns the live vehicles.
func (s *Simulation) Vehicles() []*vehicle.Vehicle { return s.active }

// Start announces the run to the recorder.
func (s *Simulation) Start() error {
	err := s.recorder.StartRun(core.RunMeta{
		SimulationID: s.meta.SimulationID,
		RunTime:      s.meta.RunTime,
		TimeStep:     s.meta.TimeStep,
		Seed:         s.meta.Seed,
		StartedAt:    time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("starting recording: %w", err)
	}
	s.logger.Info("simulation started",
		"run_time", s.meta.RunTime, "time_step", s.meta.TimeStep, "vehicles", len(s.pending))
	return nil
}

// Run executes the full simulation and returns the log.
func (s *Simulation) Run(ctx context.Context) (SimulationLog, error) {
	if err := s.Start(); err != nil {
		return SimulationLog{}, err
	}
	log := SimulationLog{Meta: s.meta, Output: make([]core.TickLog, 0, s.ticks)}
	for !s.Done() {
		if err := ctx.Err(); err != nil {
			return SimulationLog{}, err
		}
		row, err := s.Step(ctx)
		if err != nil {
			return SimulationLog{}, fmt.Errorf("at t=%.2f: %w", s.Time(), err)
		}
		log.Output = append(log.Output, row)
		log.Arrivals = append(log.Arrivals, row.Arrivals...)
	}
	s.logger.Info("simulation finished",
		"arrivals", len(log.Arrivals), "remaining", len(s.active)+len(s.pending))
	return log, nil
}

// Step advances the simulation by one timestep and returns the resulting log row.
func (s *Simulation) Step(ctx context.Context) (core.TickLog, error) {
	dt := s.meta.TimeStep
	if err := s.spawnDue(ctx); err != nil {
		return core.TickLog{}, err
	}

	// Phase 1: snapshot.
	bodies := lo.Map(s.active, func(v *vehicle.Vehicle, _ int) perception.Body { return v.Body() })
	index := perception.NewIndex(bodies)

	// Phase 2: perceive against the snapshot, then move.
	leaders := make([]*perception.Leader, len(s.active))
	for i, v := range s.active {
		pose := v.Pose()
		detections := s.perceiver.Detect(index, pose)
		v.Perceive(detections)
		if l, ok := s.perceiver.Leader(pose, detections); ok {
			leaders[i] = &l
		}
	}
	s.tick++
	row := core.TickLog{Timestamp: s.Time(), Vehicles: make([]core.VehicleLog, 0, len(s.active))}
	for i, v := range s.active {
		if v.Advance(dt, leaders[i]) {
			row.Arrivals = append(row.Arrivals, v.Report())
		}
		row.Vehicles = append(row.Vehicles, v.GetLog())
	}

	// Phase 3: arrivals leave the arena.
	for _, r := range row.Arrivals {
		s.metrics.arrived.Add(ctx, 1, s.attrs)
		s.metrics.averageSpeed.Record(ctx, r.AverageSpeed, s.attrs)
		if err := s.recorder.RecordArrival(r); err != nil {
			return core.TickLog{}, fmt.Errorf("recording arrival of %q: %w", r.VehicleID, err)
		}
	}
	s.active = slices.DeleteFunc(s.active, func(v *vehicle.Vehicle) bool { return v.Arrived() })

	if err := s.recorder.RecordTick(row); err != nil {
		return core.TickLog{}, fmt.Errorf("recording tick: %w", err)
	}
	if s.onTick != nil {
		s.onTick(row)
	}
	return row, nil
}

// spawnDue places every pending vehicle whose departure time has come.
func (s *Simulation) spawnDue(ctx context.Context) error {
	now := s.Time()
	for len(s.pending) > 0 && s.pending[0].spec.DepartTime <= now+1e-9 {
		spec := s.pending[0].spec
		s.pending = s.pending[1:]
		v, err := vehicle.New(spec, s.cfg.Vehicle, s.network, s.logger)
		if err != nil {
			return fmt.Errorf("spawning: %w", err)
		}
		s.active = append(s.active, v)
		s.metrics.spawned.Add(ctx, 1, s.attrs)
	}
	return nil
}

// RunJSON is the primary entry point for the CLI and WASM targets.
// It accepts a JSON-encoded SimulationInput, runs the simulation, and returns a
// JSON-encoded SimulationLog.
func RunJSON(jsonInput string, cfg Config) (string, error) {
	var input SimulationInput
	if err := json.Unmarshal([]byte(jsonInput), &input); err != nil {
		return "", fmt.Errorf("invalid input JSON: %w", err)
	}

	sim, err := New(input, cfg, Options{})
	if err != nil {
		return "", err
	}

	simLog, err := sim.Run(context.Background())
	if err != nil {
		return "", err
	}

	out, err := json.Marshal(simLog)
	if err != nil {
		return "", fmt.Errorf("marshaling output: %w", err)
	}
	return string(out), nil
}
