// Package vehicle implements the per-vehicle motion controller: a state
// machine that drives a vehicle along its route through road travel, joint
// turning and lane changes.
package vehicle

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/samber/lo"

	"github.com/cxd309/avsim-engine/internal/core"
	"github.com/cxd309/avsim-engine/internal/geometry"
	"github.com/cxd309/avsim-engine/internal/graph"
	"github.com/cxd309/avsim-engine/internal/kinematics"
	"github.com/cxd309/avsim-engine/internal/perception"
)

// State describes the current motion state of a vehicle.
type State string

const (
	StateRunningRoad  State = "running_road"
	StateRunningJoint State = "running_joint"
	StateChangingLane State = "changing_lane"
	StateArrived      State = "arrived"
)

// ErrSpeedUndefined is returned by Velocity for states without a speed.
var ErrSpeedUndefined = errors.New("speed undefined")

// Config holds the controller calibration shared by every vehicle.
type Config struct {
	SpawnSpeedCoef                float64 `mapstructure:"spawn_speed_coef"`
	AngularSpeed                  float64 `mapstructure:"angular_speed"`               // deg/s while turning at a joint
	AngularSpeedChangingLane      float64 `mapstructure:"angular_speed_changing_lane"` // deg/s
	RoadsParallelThreshold        float64 `mapstructure:"roads_parallel_threshold"`    // degrees
	ChangingLaneRadiusThreshold   float64 `mapstructure:"changing_lane_radius_threshold"`
	ChangingLaneMaxAngle          float64 `mapstructure:"changing_lane_max_angle"`          // degrees
	ChangingLaneParallelThreshold float64 `mapstructure:"changing_lane_parallel_threshold"` // degrees
	OnLineThreshold               float64 `mapstructure:"on_line_threshold"`                // metres
	Length                        float64 `mapstructure:"length"`
	Width                         float64 `mapstructure:"width"`
	TrajectorySpacing             float64 `mapstructure:"trajectory_spacing"` // metres between recorded points
}

// DefaultConfig returns the urban calibration.
func DefaultConfig() Config {
	return Config{
		SpawnSpeedCoef:                0.75,
		AngularSpeed:                  30,
		AngularSpeedChangingLane:      10,
		RoadsParallelThreshold:        10,
		ChangingLaneRadiusThreshold:   5,
		ChangingLaneMaxAngle:          10,
		ChangingLaneParallelThreshold: 3,
		OnLineThreshold:               0.05,
		Length:                        4,
		Width:                         2,
		TrajectorySpacing:             1,
	}
}

// Validate reports the first calibration value outside its physical range.
func (c Config) Validate() error {
	positive := []struct {
		name string
		v    float64
	}{
		{"spawn_speed_coef", c.SpawnSpeedCoef},
		{"angular_speed", c.AngularSpeed},
		{"angular_speed_changing_lane", c.AngularSpeedChangingLane},
		{"changing_lane_radius_threshold", c.ChangingLaneRadiusThreshold},
		{"changing_lane_max_angle", c.ChangingLaneMaxAngle},
		{"on_line_threshold", c.OnLineThreshold},
		{"length", c.Length},
		{"width", c.Width},
		{"trajectory_spacing", c.TrajectorySpacing},
	}
	for _, p := range positive {
		if p.v <= 0 {
			return fmt.Errorf("vehicle.%s must be positive, got %g", p.name, p.v)
		}
	}
	if c.RoadsParallelThreshold < 0 || c.ChangingLaneParallelThreshold < 0 {
		return errors.New("vehicle parallel thresholds must not be negative")
	}
	if c.ChangingLaneMaxAngle >= 90 {
		return fmt.Errorf("vehicle.changing_lane_max_angle must be below 90, got %g", c.ChangingLaneMaxAngle)
	}
	return nil
}

// Spec describes a vehicle to spawn.
type Spec struct {
	ID    string
	Spawn *graph.Joint
	// SpawnRoad is the first road; nil means the first road of the shortest
	// path to Destination.
	SpawnRoad   *graph.Road
	Lane        uint
	Destination *graph.Joint
	DepartTime  float64
	Model       kinematics.CarFollowingModel
}

// Vehicle is a vehicle with live simulation state.
type Vehicle struct {
	ID     string
	cfg    Config
	model  kinematics.CarFollowingModel
	logger *slog.Logger

	state    State
	position geometry.Vec2
	heading  float64 // degrees
	speed    float64 // car-following speed, m/s

	road      *graph.Road
	lane      uint
	along     geometry.Vec2
	progress  float64
	target    float64
	route     Route
	nextLane  uint
	nextJoint *graph.Joint
	// nextIsParallel selects a lane change instead of a joint turn at the end
	// of the current road.
	nextIsParallel bool
	arc            *geometry.Arc
	angle          float64
	rotating       bool
	light          graph.TrafficLight
	leader         string
	detections     perception.Detections

	origin      *graph.Joint
	destination *graph.Joint
	departTime  float64
	roadsTaken  []string
	trip        tripStats
}

// New places a vehicle at its spawn joint with a route to its destination
// and starts it on the first road at the spawn speed.
func New(spec Spec, cfg Config, nav graph.Navigator, logger *slog.Logger) (*Vehicle, error) {
	if spec.Spawn == nil || spec.Destination == nil {
		return nil, fmt.Errorf("vehicle %q: spawn and destination are required", spec.ID)
	}
	if spec.Spawn == spec.Destination {
		return nil, fmt.Errorf("vehicle %q: destination %q is the spawn joint", spec.ID, spec.Destination.ID)
	}
	if spec.Model == nil {
		return nil, fmt.Errorf("vehicle %q: no car-following model", spec.ID)
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	first := spec.SpawnRoad
	var rest []*graph.Road
	if first == nil {
		roads, err := nav.Route(spec.Spawn, spec.Destination)
		if err != nil {
			return nil, fmt.Errorf("vehicle %q route: %w", spec.ID, err)
		}
		if len(roads) == 0 {
			return nil, fmt.Errorf("vehicle %q: empty route", spec.ID)
		}
		first, rest = roads[0], roads[1:]
	} else {
		if first.EdgeIndex(spec.Spawn) < 0 {
			return nil, fmt.Errorf("vehicle %q: road %q does not touch spawn joint %q", spec.ID, first.ID, spec.Spawn.ID)
		}
		if after := first.OtherJoint(spec.Spawn); after != spec.Destination {
			roads, err := nav.Route(after, spec.Destination)
			if err != nil {
				return nil, fmt.Errorf("vehicle %q route: %w", spec.ID, err)
			}
			rest = roads
		}
	}
	if spec.Lane >= first.Lanes {
		return nil, fmt.Errorf("vehicle %q: lane %d out of range on road %q (%d lanes)", spec.ID, spec.Lane, first.ID, first.Lanes)
	}

	v := &Vehicle{
		ID:          spec.ID,
		cfg:         cfg,
		model:       spec.Model,
		logger:      logger.With("vehicle", spec.ID),
		position:    spec.Spawn.Loc,
		speed:       spec.Model.DesiredSpeed() * cfg.SpawnSpeedCoef,
		route:       NewRoute(rest),
		origin:      spec.Spawn,
		destination: spec.Destination,
		departTime:  spec.DepartTime,
	}
	v.startRunningRoad(first, spec.Lane, spec.Spawn, true)
	v.trip.begin(v.position, cfg.TrajectorySpacing)
	v.logger.Info("vehicle spawned",
		"origin", spec.Spawn.ID, "destination", spec.Destination.ID,
		"road", first.ID, "lane", spec.Lane, "model", spec.Model.Name(), "roads", len(rest)+1)
	return v, nil
}

// State returns the vehicle's current motion state.
func (v *Vehicle) State() State { return v.state }

// Arrived reports whether the vehicle has reached its destination.
func (v *Vehicle) Arrived() bool { return v.state == StateArrived }

func (v *Vehicle) Position() geometry.Vec2 { return v.position }

// Heading returns the direction of travel in degrees.
func (v *Vehicle) Heading() float64 { return v.heading }

func (v *Vehicle) Road() *graph.Road { return v.road }

func (v *Vehicle) Lane() uint { return v.lane }

// Route returns the roads still to be entered.
func (v *Vehicle) Route() []string { return v.route.IDs() }

// Model returns the vehicle's car-following model.
func (v *Vehicle) Model() kinematics.CarFollowingModel { return v.model }

// Velocity returns the speed along the current path: the car-following speed
// on roads and while blending into a lane, the tangential speed on arcs.
func (v *Vehicle) Velocity() (float64, error) {
	switch v.state {
	case StateRunningRoad:
		return v.speed, nil
	case StateRunningJoint:
		return v.arcSpeed(v.cfg.AngularSpeed), nil
	case StateChangingLane:
		if v.rotating {
			return v.arcSpeed(v.cfg.AngularSpeedChangingLane), nil
		}
		return v.speed, nil
	}
	return 0, fmt.Errorf("vehicle %q in state %q: %w", v.ID, v.state, ErrSpeedUndefined)
}

func (v *Vehicle) arcSpeed(degPerSec float64) float64 {
	return degPerSec * math.Pi / 180 * v.arc.Radius
}

// Pose returns where the vehicle stands, for perception.
func (v *Vehicle) Pose() perception.Pose {
	return perception.Pose{Vehicle: v.ID, Position: v.position, Heading: v.heading}
}

// Body returns the vehicle's footprint for the spatial index. A speed error
// is logged and leaves the body without a known speed, so it is never chosen
// as a leader.
func (v *Vehicle) Body() perception.Body {
	speed, err := v.Velocity()
	if err != nil {
		v.logger.Error("vehicle speed requested in undefined state", "state", v.state, "error", err)
	}
	return perception.Body{
		Tag:        perception.Tag{Kind: perception.KindVehicle, Vehicle: v.ID},
		Position:   v.position,
		Heading:    v.heading,
		Length:     v.cfg.Length,
		Width:      v.cfg.Width,
		Speed:      speed,
		SpeedKnown: err == nil,
	}
}

// Perceive stores what the rays saw this tick. Only the front group feeds
// car following; the others are kept for the log.
func (v *Vehicle) Perceive(d perception.Detections) { v.detections = d }

// Detections returns the hits stored by the last Perceive.
func (v *Vehicle) Detections() perception.Detections { return v.detections }

// GetLog returns a point-in-time snapshot of the vehicle state.
func (v *Vehicle) GetLog() core.VehicleLog {
	speed, _ := v.Velocity()
	l := core.VehicleLog{
		VehicleID: v.ID,
		State:     string(v.state),
		Position:  v.position,
		Heading:   v.heading,
		Speed:     speed,
		Lane:      v.lane,
		Leader:    v.leader,
		LightOn:   v.light != nil,
	}
	if v.road != nil {
		l.Road = v.road.ID
	}
	if v.nextJoint != nil {
		l.NextJoint = v.nextJoint.ID
	}
	for _, dir := range perception.Directions {
		hits := v.detections[dir]
		if len(hits) == 0 {
			continue
		}
		if l.Detected == nil {
			l.Detected = make(map[string][]string)
		}
		l.Detected[dir.String()] = lo.Map(hits, func(h perception.Hit, _ int) string { return h.Tag.Vehicle })
	}
	return l
}

// Report returns the trip summary. It is only meaningful once Arrived.
func (v *Vehicle) Report() core.ArrivalReport {
	return core.ArrivalReport{
		VehicleID:    v.ID,
		Origin:       v.origin.ID,
		Destination:  v.destination.ID,
		DepartTime:   v.departTime,
		ArriveTime:   v.departTime + v.trip.elapsed,
		Elapsed:      v.trip.elapsed,
		Distance:     v.trip.distance,
		AverageSpeed: v.trip.averageSpeed(),
		PeakSpeed:    v.trip.peak,
		Route:        append([]string(nil), v.roadsTaken...),
		Trajectory:   append([]geometry.Vec2(nil), v.trip.trajectory...),
	}
}

// tripStats accumulates what the arrival report needs.
type tripStats struct {
	elapsed    float64
	distance   float64
	peak       float64
	spacing    float64
	trajectory []geometry.Vec2
}

func (s *tripStats) begin(p geometry.Vec2, spacing float64) {
	s.spacing = spacing
	s.trajectory = []geometry.Vec2{p}
}

func (s *tripStats) record(dt float64, from, to geometry.Vec2, speed float64) {
	s.elapsed += dt
	s.distance += from.Dist(to)
	s.peak = math.Max(s.peak, speed)
	if last := s.trajectory[len(s.trajectory)-1]; last.Dist(to) >= s.spacing {
		s.trajectory = append(s.trajectory, to)
	}
}

func (s *tripStats) finish(p geometry.Vec2) {
	if last := s.trajectory[len(s.trajectory)-1]; last != p {
		s.trajectory = append(s.trajectory, p)
	}
}

func (s *tripStats) averageSpeed() float64 {
	if s.elapsed == 0 {
		return 0
	}
	return s.distance / s.elapsed
}
