package vehicle

import "github.com/cxd309/avsim-engine/internal/graph"

// Route is the queue of roads a vehicle still has to enter. It is owned by a
// single vehicle and is not safe for concurrent use.
type Route struct {
	roads []*graph.Road
}

// NewRoute copies roads into a Route.
func NewRoute(roads []*graph.Road) Route {
	return Route{roads: append([]*graph.Road(nil), roads...)}
}

// Peek returns the next road without removing it, or nil when empty.
func (r *Route) Peek() *graph.Road {
	if len(r.roads) == 0 {
		return nil
	}
	return r.roads[0]
}

// Dequeue removes and returns the next road. Returns nil if empty.
func (r *Route) Dequeue() *graph.Road {
	if len(r.roads) == 0 {
		return nil
	}
	road := r.roads[0]
	r.roads = r.roads[1:]
	return road
}

// Empty reports whether the current road is the last one.
func (r *Route) Empty() bool { return len(r.roads) == 0 }

// Len returns the number of roads left to enter.
func (r *Route) Len() int { return len(r.roads) }

// IDs returns the remaining road IDs in order.
func (r *Route) IDs() []string {
	ids := make([]string, len(r.roads))
	for i, road := range r.roads {
		ids[i] = road.ID
	}
	return ids
}
