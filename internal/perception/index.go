package perception

import (
	"cmp"
	"slices"

	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/cxd309/avsim-engine/internal/geometry"
)

// Kind says what a spatial hit is.
type Kind uint8

const (
	KindVehicle Kind = iota + 1
	KindObstacle
)

func (k Kind) String() string {
	switch k {
	case KindVehicle:
		return "vehicle"
	case KindObstacle:
		return "obstacle"
	}
	return "unknown"
}

// Tag is the identity attached to every indexed body when the index is built.
// Vehicle is empty unless Kind is KindVehicle.
type Tag struct {
	Kind    Kind   `json:"kind"`
	Vehicle string `json:"vehicle,omitempty"`
}

// Body is a rectangular footprint placed in the index.
type Body struct {
	Tag      Tag
	Position geometry.Vec2
	Heading  float64 // degrees
	Length   float64 // metres along Heading
	Width    float64 // metres across Heading
	// Speed is only meaningful when SpeedKnown is set.
	Speed      float64
	SpeedKnown bool
}

// Hit is a body crossed by a ray, with the body's state as of index build time.
type Hit struct {
	Tag        Tag           `json:"tag"`
	Position   geometry.Vec2 `json:"position"`
	Heading    float64       `json:"heading"`
	Speed      float64       `json:"speed"`
	SpeedKnown bool          `json:"speed_known"`
	Distance   float64       `json:"distance"` // ray start to body position
}

// SpatialQuery answers ray casts against the current world.
type SpatialQuery interface {
	// RayCast returns every body the segment start->end crosses, nearest first.
	RayCast(start, end geometry.Vec2) []Hit
}

type entry struct {
	body     Body
	outline  geom.Geometry
	min, max geometry.Vec2
}

// Index is an immutable snapshot of body footprints. Build one per tick so
// every vehicle perceives the same world.
type Index struct {
	entries []entry
}

// NewIndex snapshots bodies into an Index.
func NewIndex(bodies []Body) *Index {
	ix := &Index{entries: make([]entry, 0, len(bodies))}
	for _, b := range bodies {
		corners := Footprint(b)
		ring, ok := geometry.LineString(append(corners, corners[0]))
		if !ok {
			continue
		}
		e := entry{body: b, outline: ring.AsGeometry(), min: corners[0], max: corners[0]}
		for _, c := range corners[1:] {
			e.min = geometry.Vec2{X: min(e.min.X, c.X), Y: min(e.min.Y, c.Y)}
			e.max = geometry.Vec2{X: max(e.max.X, c.X), Y: max(e.max.Y, c.Y)}
		}
		ix.entries = append(ix.entries, e)
	}
	return ix
}

// Len returns the number of indexed bodies.
func (ix *Index) Len() int { return len(ix.entries) }

// Footprint returns the four corners of b, counter-clockwise from front-left.
func Footprint(b Body) []geometry.Vec2 {
	fwd := geometry.Unit(b.Heading).Scale(b.Length / 2)
	left := geometry.Unit(b.Heading + 90).Scale(b.Width / 2)
	return []geometry.Vec2{
		b.Position.Add(fwd).Add(left),
		b.Position.Sub(fwd).Add(left),
		b.Position.Sub(fwd).Sub(left),
		b.Position.Add(fwd).Sub(left),
	}
}

func (ix *Index) RayCast(start, end geometry.Vec2) []Hit {
	if start == end {
		return nil
	}
	ray, ok := geometry.LineString([]geometry.Vec2{start, end})
	if !ok {
		return nil
	}
	rg := ray.AsGeometry()
	rmin := geometry.Vec2{X: min(start.X, end.X), Y: min(start.Y, end.Y)}
	rmax := geometry.Vec2{X: max(start.X, end.X), Y: max(start.Y, end.Y)}

	var hits []Hit
	for _, e := range ix.entries {
		if e.max.X < rmin.X || e.min.X > rmax.X || e.max.Y < rmin.Y || e.min.Y > rmax.Y {
			continue
		}
		if !geom.Intersects(rg, e.outline) {
			continue
		}
		hits = append(hits, Hit{
			Tag:        e.body.Tag,
			Position:   e.body.Position,
			Heading:    e.body.Heading,
			Speed:      e.body.Speed,
			SpeedKnown: e.body.SpeedKnown,
			Distance:   start.Dist(e.body.Position),
		})
	}
	slices.SortStableFunc(hits, func(a, b Hit) int { return cmp.Compare(a.Distance, b.Distance) })
	return hits
}
