// Package perception casts a vehicle's sensor rays against a spatial index
// and selects the leader that feeds car following.
package perception

import (
	"cmp"
	"errors"
	"fmt"
	"slices"

	"github.com/samber/lo"

	"github.com/cxd309/avsim-engine/internal/geometry"
)

// Direction names a ray group.
type Direction int

const (
	Front Direction = iota
	FrontLeft
	FrontRight
	Left
	Right
)

// Directions lists every ray group in casting order.
var Directions = []Direction{Front, FrontLeft, FrontRight, Left, Right}

func (d Direction) String() string {
	switch d {
	case Front:
		return "front"
	case FrontLeft:
		return "front_left"
	case FrontRight:
		return "front_right"
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return "unknown"
}

// Config positions the rays. Points are in the vehicle frame: +x forward,
// +y to the left, metres.
type Config struct {
	SameDirectionThreshold float64         `mapstructure:"same_direction_threshold"` // degrees
	Origin                 geometry.Vec2   `mapstructure:"origin"`
	Front                  []geometry.Vec2 `mapstructure:"front"`
	FrontLeft              []geometry.Vec2 `mapstructure:"front_left"`
	FrontRight             []geometry.Vec2 `mapstructure:"front_right"`
	Left                   []geometry.Vec2 `mapstructure:"left"`
	Right                  []geometry.Vec2 `mapstructure:"right"`
}

// DefaultConfig places the origin just ahead of a 4 m vehicle.
func DefaultConfig() Config {
	return Config{
		SameDirectionThreshold: 60,
		Origin:                 geometry.Vec2{X: 2.1},
		Front:                  []geometry.Vec2{{X: 14}, {X: 14, Y: 1}, {X: 14, Y: -1}},
		FrontLeft:              []geometry.Vec2{{X: 10, Y: 6}},
		FrontRight:             []geometry.Vec2{{X: 10, Y: -6}},
		Left:                   []geometry.Vec2{{X: 2, Y: 4}, {X: -2, Y: 4}},
		Right:                  []geometry.Vec2{{X: 2, Y: -4}, {X: -2, Y: -4}},
	}
}

// Validate checks the threshold range and that car following has a ray.
func (c Config) Validate() error {
	if c.SameDirectionThreshold < 0 || c.SameDirectionThreshold > 180 {
		return fmt.Errorf("perception.same_direction_threshold must be within [0, 180], got %g", c.SameDirectionThreshold)
	}
	if len(c.Front) == 0 {
		return errors.New("perception.front needs at least one ray")
	}
	return nil
}

// Rays returns the configured endpoints for d.
func (c Config) Rays(d Direction) []geometry.Vec2 {
	switch d {
	case Front:
		return c.Front
	case FrontLeft:
		return c.FrontLeft
	case FrontRight:
		return c.FrontRight
	case Left:
		return c.Left
	case Right:
		return c.Right
	}
	return nil
}

// Pose is where a perceiving vehicle stands.
type Pose struct {
	Vehicle  string
	Position geometry.Vec2
	Heading  float64
}

// toWorld maps a vehicle-frame point into world coordinates.
func (p Pose) toWorld(local geometry.Vec2) geometry.Vec2 {
	return p.Position.Add(local.Rotate(p.Heading))
}

// Detections holds the other vehicles seen by each ray group, each vehicle
// at most once per group, nearest first.
type Detections map[Direction][]Hit

// Leader is the vehicle ahead that car following reacts to.
type Leader struct {
	Vehicle string
	Gap     float64 // centre to centre, metres
	Speed   float64
}

// Perceiver runs the rays of one calibration.
type Perceiver struct {
	cfg Config
}

func New(cfg Config) *Perceiver {
	return &Perceiver{cfg: cfg}
}

// Detect casts every ray from pose against q.
func (p *Perceiver) Detect(q SpatialQuery, pose Pose) Detections {
	start := pose.toWorld(p.cfg.Origin)
	out := make(Detections, len(Directions))
	for _, d := range Directions {
		var seen []Hit
		for _, end := range p.cfg.Rays(d) {
			for _, h := range q.RayCast(start, pose.toWorld(end)) {
				if h.Tag.Kind != KindVehicle || h.Tag.Vehicle == pose.Vehicle {
					continue
				}
				h.Distance = pose.Position.Dist(h.Position)
				seen = append(seen, h)
			}
		}
		if len(seen) > 0 {
			seen = lo.UniqBy(seen, func(h Hit) string { return h.Tag.Vehicle })
			slices.SortStableFunc(seen, func(a, b Hit) int { return cmp.Compare(a.Distance, b.Distance) })
			out[d] = seen
		}
	}
	return out
}

// Leader picks the nearest front detection with a known speed. It is the
// leader only if it heads within SameDirectionThreshold of pose; a nearer
// crossing vehicle therefore means free flow, not the next one behind it.
func (p *Perceiver) Leader(pose Pose, d Detections) (Leader, bool) {
	candidates := lo.Filter(d[Front], func(h Hit, _ int) bool { return h.SpeedKnown })
	if len(candidates) == 0 {
		return Leader{}, false
	}
	nearest := lo.MinBy(candidates, func(a, b Hit) bool { return a.Distance < b.Distance })
	diff := geometry.AngleBetween(geometry.Unit(pose.Heading), geometry.Unit(nearest.Heading))
	if diff > p.cfg.SameDirectionThreshold {
		return Leader{}, false
	}
	return Leader{Vehicle: nearest.Tag.Vehicle, Gap: nearest.Distance, Speed: nearest.Speed}, true
}
