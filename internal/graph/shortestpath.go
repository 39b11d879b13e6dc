package graph

import (
	"fmt"
	"math"
)

// Navigator produces the ordered roads a vehicle follows from one joint to another.
type Navigator interface {
	Route(from, to *Joint) ([]*Road, error)
}

// PathInfo holds the result of a shortest-path computation.
type PathInfo struct {
	ID     PathID
	Route  []JointID // ordered joint IDs from start to end
	Roads  []*Road   // roads joining consecutive joints of Route
	Length float64   // total path length in metres
}

// computeShortestPaths runs Floyd-Warshall over all joints and roads.
func (n *Network) computeShortestPaths() {
	ids := make([]JointID, len(n.joints))
	for i, j := range n.joints {
		ids[i] = j.ID
	}

	dist := make(map[JointID]map[JointID]float64, len(ids))
	next := make(map[JointID]map[JointID]JointID, len(ids))
	for _, i := range ids {
		dist[i] = make(map[JointID]float64, len(ids))
		next[i] = make(map[JointID]JointID, len(ids))
		for _, j := range ids {
			dist[i][j] = math.Inf(1)
		}
		dist[i][i] = 0
	}
	for u, m := range n.roadByJoints {
		for v, r := range m {
			dist[u][v] = r.length
			next[u][v] = v
		}
	}
	for _, k := range ids {
		for _, i := range ids {
			for _, j := range ids {
				if d := dist[i][k] + dist[k][j]; d < dist[i][j] {
					dist[i][j] = d
					next[i][j] = next[i][k]
				}
			}
		}
	}

	n.dist = dist
	n.nextJoint = next
	n.pathCache = make(map[PathID]PathInfo) // clear stale cache
}

func (n *Network) ensureShortestPaths() {
	if n.dist == nil {
		n.computeShortestPaths()
	}
}

func (n *Network) reconstructPath(u, v JointID) []JointID {
	route := []JointID{u}
	for u != v {
		next, ok := n.nextJoint[u][v]
		if !ok || next == "" {
			return nil
		}
		u = next
		route = append(route, u)
	}
	return route
}

// ShortestPath returns the shortest path between start and end, using a cache.
// Returns an error wrapping ErrNoPath if end is unreachable.
func (n *Network) ShortestPath(start, end JointID) (PathInfo, error) {
	if _, ok := n.jointMap[start]; !ok {
		return PathInfo{}, fmt.Errorf("joint %q not found", start)
	}
	if _, ok := n.jointMap[end]; !ok {
		return PathInfo{}, fmt.Errorf("joint %q not found", end)
	}
	if start == end {
		return PathInfo{ID: pathKey(start, end), Route: []JointID{start}}, nil
	}
	key := pathKey(start, end)
	if p, ok := n.pathCache[key]; ok {
		return p, nil
	}
	n.ensureShortestPaths()
	d := n.dist[start][end]
	if math.IsInf(d, 1) {
		return PathInfo{}, fmt.Errorf("%w from %q to %q", ErrNoPath, start, end)
	}
	route := n.reconstructPath(start, end)
	roads := make([]*Road, 0, len(route)-1)
	for i := 1; i < len(route); i++ {
		r, err := n.RoadBetween(route[i-1], route[i])
		if err != nil {
			return PathInfo{}, err
		}
		roads = append(roads, r)
	}
	p := PathInfo{ID: key, Route: route, Roads: roads, Length: d}
	n.pathCache[key] = p
	return p, nil
}

// Route implements Navigator. The returned slice is a copy the caller may consume.
func (n *Network) Route(from, to *Joint) ([]*Road, error) {
	p, err := n.ShortestPath(from.ID, to.ID)
	if err != nil {
		return nil, err
	}
	return append([]*Road(nil), p.Roads...), nil
}
