// Package graph provides the road network: joints, lane-aware roads, traffic
// light references and shortest-path navigation between joints.
package graph

import (
	"errors"
	"fmt"

	"github.com/cxd309/avsim-engine/internal/geometry"
)

// JointID, RoadID, PathID are string aliases used as identifiers.
type (
	JointID = string
	RoadID  = string
	PathID  = string
)

// JointType classifies a joint in the network.
type JointType string

const (
	JointTypeIntersection JointType = "intersection"
	// JointTypeOutside marks a joint where vehicles enter or leave the network.
	JointTypeOutside JointType = "outside"
)

var (
	// ErrDegenerateJoint is returned when the lane boundaries meeting at a
	// joint do not produce a usable turning arc.
	ErrDegenerateJoint = errors.New("degenerate joint geometry")
	// ErrNoPath is returned when a destination cannot be reached.
	ErrNoPath = errors.New("no path")
)

// JointData is the serialisable form of a Joint.
type JointData struct {
	ID   JointID       `json:"joint_id"`
	Loc  geometry.Vec2 `json:"loc"`
	Type JointType     `json:"type"`
}

// LightData describes the traffic light at one end of a road.
type LightData struct {
	Enabled bool `json:"enabled"`
}

// RoadData is the serialisable form of a Road. Lanes is the lane count in
// each direction. Lights[i] governs traffic arriving at joint i (A = 0, B = 1).
type RoadData struct {
	ID        RoadID        `json:"road_id"`
	A         JointID       `json:"a"`
	B         JointID       `json:"b"`
	Lanes     uint          `json:"lanes"`
	LaneWidth float64       `json:"lane_width"` // metres
	Lights    [2]*LightData `json:"lights,omitempty"`
}

// NetworkData is the serialisable input representation of a road network.
type NetworkData struct {
	Joints []JointData `json:"joints"`
	Roads  []RoadData  `json:"roads"`
}

// Joint is a node connecting roads.
type Joint struct {
	ID    JointID
	Loc   geometry.Vec2
	Type  JointType
	roads []*Road
}

// Roads returns the roads that meet at j.
func (j *Joint) Roads() []*Road { return j.roads }

// TrafficLight is the only traffic-light fact the motion controller reads.
type TrafficLight interface {
	Enabled() bool
}

// Light is a static traffic light.
type Light struct {
	enabled bool
}

func (l *Light) Enabled() bool { return l.enabled }

// SetEnabled switches the light on or off.
func (l *Light) SetEnabled(on bool) { l.enabled = on }

// Road is a two-way segment between two joints. An edge index names a travel
// direction by the joint it starts from: edge 0 runs A->B, edge 1 runs B->A.
// Lanes are right-hand: lane 0 is nearest the centre line.
type Road struct {
	ID        RoadID
	Joints    [2]*Joint
	Lanes     uint
	LaneWidth float64
	length    float64
	along     [2]geometry.Vec2
	lights    [2]*Light
}

// Length returns the distance between the road's joints in metres.
func (r *Road) Length() float64 { return r.length }

// EdgeIndex returns the index of j on the road, or -1 if j is not an endpoint.
func (r *Road) EdgeIndex(j *Joint) int {
	switch j {
	case r.Joints[0]:
		return 0
	case r.Joints[1]:
		return 1
	}
	return -1
}

// OtherJoint returns the endpoint opposite j. It returns nil if j is not an
// endpoint of r.
func (r *Road) OtherJoint(j *Joint) *Joint {
	switch r.EdgeIndex(j) {
	case 0:
		return r.Joints[1]
	case 1:
		return r.Joints[0]
	}
	return nil
}

// Along returns the unit travel direction for edge.
func (r *Road) Along(edge int) geometry.Vec2 { return r.along[edge] }

// right returns the unit vector to the right of travel on edge.
func (r *Road) right(edge int) geometry.Vec2 {
	return geometry.Perpendicular(r.along[edge]).Neg()
}

// LaneStart returns the centre of lane at the start of edge.
func (r *Road) LaneStart(edge int, lane uint) geometry.Vec2 {
	off := (float64(lane) + 0.5) * r.LaneWidth
	return r.Joints[edge].Loc.Add(r.right(edge).Scale(off))
}

// LeftPoint returns the lane's left boundary at the start of edge.
func (r *Road) LeftPoint(edge int, lane uint) geometry.Vec2 {
	return r.LaneStart(edge, lane).Sub(r.right(edge).Scale(r.LaneWidth / 2))
}

// RightPoint returns the lane's right boundary at the start of edge.
func (r *Road) RightPoint(edge int, lane uint) geometry.Vec2 {
	return r.LaneStart(edge, lane).Add(r.right(edge).Scale(r.LaneWidth / 2))
}

// TrafficLight returns the light governing traffic arriving at joint index
// joint, or nil when the road has none there.
func (r *Road) TrafficLight(joint int) TrafficLight {
	if l := r.lights[joint]; l != nil {
		return l
	}
	return nil
}

// Network is an undirected road network with cached shortest-path computation.
type Network struct {
	joints       []*Joint
	roads        []*Road
	jointMap     map[JointID]*Joint
	roadMap      map[RoadID]*Road
	roadByJoints map[JointID]map[JointID]*Road // u → v → shortest road
	// Floyd-Warshall tables; nil until first needed.
	dist      map[JointID]map[JointID]float64
	nextJoint map[JointID]map[JointID]JointID
	// Path cache; cleared whenever the topology changes.
	pathCache map[PathID]PathInfo
}

// NewNetwork builds a Network from NetworkData, returning an error if any
// joint or road is invalid.
func NewNetwork(data NetworkData) (*Network, error) {
	n := &Network{
		jointMap:     make(map[JointID]*Joint),
		roadMap:      make(map[RoadID]*Road),
		roadByJoints: make(map[JointID]map[JointID]*Road),
		pathCache:    make(map[PathID]PathInfo),
	}
	for _, j := range data.Joints {
		if err := n.AddJoint(j); err != nil {
			return nil, err
		}
	}
	for _, r := range data.Roads {
		if err := n.AddRoad(r); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// AddJoint adds a joint to the network. Returns an error if the ID already exists.
func (n *Network) AddJoint(d JointData) error {
	if d.ID == "" {
		return errors.New("joint with empty id")
	}
	if _, exists := n.jointMap[d.ID]; exists {
		return fmt.Errorf("joint %q already exists", d.ID)
	}
	switch d.Type {
	case "":
		d.Type = JointTypeIntersection
	case JointTypeIntersection, JointTypeOutside:
	default:
		return fmt.Errorf("joint %q: unknown type %q", d.ID, d.Type)
	}
	j := &Joint{ID: d.ID, Loc: d.Loc, Type: d.Type}
	n.joints = append(n.joints, j)
	n.jointMap[j.ID] = j
	n.invalidate()
	return nil
}

// AddRoad adds a two-way road to the network. Returns an error if the road ID
// already exists, an endpoint is missing, or its lane geometry is invalid.
func (n *Network) AddRoad(d RoadData) error {
	if _, exists := n.roadMap[d.ID]; exists {
		return fmt.Errorf("road %q already exists", d.ID)
	}
	a, ok := n.jointMap[d.A]
	if !ok {
		return fmt.Errorf("road %q: joint %q not found", d.ID, d.A)
	}
	b, ok := n.jointMap[d.B]
	if !ok {
		return fmt.Errorf("road %q: joint %q not found", d.ID, d.B)
	}
	if a == b {
		return fmt.Errorf("road %q: both ends at joint %q", d.ID, d.A)
	}
	if d.Lanes == 0 {
		return fmt.Errorf("road %q: lanes must be at least 1", d.ID)
	}
	if d.LaneWidth <= 0 {
		return fmt.Errorf("road %q: lane width must be positive, got %g", d.ID, d.LaneWidth)
	}
	delta := b.Loc.Sub(a.Loc)
	if delta.Len() == 0 {
		return fmt.Errorf("road %q: zero length", d.ID)
	}

	r := &Road{
		ID:        d.ID,
		Joints:    [2]*Joint{a, b},
		Lanes:     d.Lanes,
		LaneWidth: d.LaneWidth,
		length:    delta.Len(),
		along:     [2]geometry.Vec2{delta.Normalized(), delta.Normalized().Neg()},
	}
	for i, l := range d.Lights {
		if l != nil {
			r.lights[i] = &Light{enabled: l.Enabled}
		}
	}

	n.roads = append(n.roads, r)
	n.roadMap[r.ID] = r
	a.roads = append(a.roads, r)
	b.roads = append(b.roads, r)
	n.link(a.ID, b.ID, r)
	n.link(b.ID, a.ID, r)
	n.invalidate()
	return nil
}

// invalidate drops the shortest-path tables and cache after a topology change.
func (n *Network) invalidate() {
	n.dist = nil
	n.nextJoint = nil
	n.pathCache = make(map[PathID]PathInfo)
}

func (n *Network) link(u, v JointID, r *Road) {
	if n.roadByJoints[u] == nil {
		n.roadByJoints[u] = make(map[JointID]*Road)
	}
	if cur, ok := n.roadByJoints[u][v]; ok && cur.length <= r.length {
		return
	}
	n.roadByJoints[u][v] = r
}

// pathKey returns a canonical string key for a start→end pair.
func pathKey(start, end JointID) PathID { return start + "->" + end }

// Joint looks up a joint by its ID.
func (n *Network) Joint(id JointID) (*Joint, error) {
	j, ok := n.jointMap[id]
	if !ok {
		return nil, fmt.Errorf("joint %q not found", id)
	}
	return j, nil
}

// Road looks up a road by its ID.
func (n *Network) Road(id RoadID) (*Road, error) {
	r, ok := n.roadMap[id]
	if !ok {
		return nil, fmt.Errorf("road %q not found", id)
	}
	return r, nil
}

// RoadBetween returns the shortest road joining u and v.
func (n *Network) RoadBetween(u, v JointID) (*Road, error) {
	if m, ok := n.roadByJoints[u]; ok {
		if r, ok := m[v]; ok {
			return r, nil
		}
	}
	return nil, fmt.Errorf("no road between %q and %q", u, v)
}

// Joints returns all joints in insertion order.
func (n *Network) Joints() []*Joint { return n.joints }

// Roads returns all roads in insertion order.
func (n *Network) Roads() []*Road { return n.roads }

// OutsideConnections returns the joints where vehicles enter or leave the
// network, in insertion order.
func (n *Network) OutsideConnections() []*Joint {
	var out []*Joint
	for _, j := range n.joints {
		if j.Type == JointTypeOutside {
			out = append(out, j)
		}
	}
	return out
}
