package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/avsim-engine/internal/geometry"
)

func roadIDs(roads []*Road) []RoadID {
	ids := make([]RoadID, len(roads))
	for i, r := range roads {
		ids[i] = r.ID
	}
	return ids
}

func TestShortestPath(t *testing.T) {
	n := mustNetwork(t)

	p, err := n.ShortestPath("west", "north")
	require.NoError(t, err)
	assert.Equal(t, []JointID{"west", "j", "north"}, p.Route)
	assert.Equal(t, []RoadID{"rw", "rn"}, roadIDs(p.Roads))
	assert.InDelta(t, 200, p.Length, tol)

	// Roads are two-way.
	p, err = n.ShortestPath("east", "west")
	require.NoError(t, err)
	assert.Equal(t, []RoadID{"re", "rw"}, roadIDs(p.Roads))

	p, err = n.ShortestPath("j", "j")
	require.NoError(t, err)
	assert.Empty(t, p.Roads)
}

func TestShortestPathCacheAndInvalidation(t *testing.T) {
	n := mustNetwork(t)
	_, err := n.ShortestPath("west", "east")
	require.NoError(t, err)
	assert.Contains(t, n.pathCache, pathKey("west", "east"))

	require.NoError(t, n.AddJoint(JointData{ID: "island", Loc: geometry.Vec2{X: 500, Y: 500}}))
	assert.Nil(t, n.dist)
	assert.NotContains(t, n.pathCache, pathKey("west", "east"))

	_, err = n.ShortestPath("west", "island")
	assert.ErrorIs(t, err, ErrNoPath)
}

func TestRouteReturnsCopy(t *testing.T) {
	n := mustNetwork(t)
	west, _ := n.Joint("west")
	south, _ := n.Joint("south")

	r1, err := n.Route(west, south)
	require.NoError(t, err)
	require.Len(t, r1, 2)
	r1[0] = nil

	r2, err := n.Route(west, south)
	require.NoError(t, err)
	assert.Equal(t, []RoadID{"rw", "rs"}, roadIDs(r2))
}

func TestShortestPathUnknownJoint(t *testing.T) {
	n := mustNetwork(t)
	_, err := n.ShortestPath("west", "mars")
	assert.ErrorContains(t, err, `joint "mars" not found`)
}
