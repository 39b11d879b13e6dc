package gormstore

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/avsim-engine/internal/core"
	"github.com/cxd309/avsim-engine/internal/geometry"
	"github.com/cxd309/avsim-engine/internal/storage"
)

// Verify Backend implements storage.Recorder interface
var _ storage.Recorder = (*Backend)(nil)

func newBackend(t *testing.T, path string) *Backend {
	t.Helper()
	db, err := OpenSQLite(path)
	require.NoError(t, err)
	b := New(db, nil)
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func tick(ts float64, ids ...string) core.TickLog {
	row := core.TickLog{Timestamp: ts}
	for i, id := range ids {
		row.Vehicles = append(row.Vehicles, core.VehicleLog{
			VehicleID: id,
			State:     "running_road",
			Position:  geometry.Vec2{X: ts * 5, Y: -2},
			Heading:   90,
			Speed:     5,
			Road:      "a",
			Lane:      uint(i),
			NextJoint: "j",
		})
	}
	return row
}

func TestRecordWithoutRun(t *testing.T) {
	b := newBackend(t, "")
	assert.ErrorIs(t, b.RecordTick(tick(0.1, "v1")), ErrNoRun)
	assert.ErrorIs(t, b.RecordArrival(core.ArrivalReport{VehicleID: "v1"}), ErrNoRun)
}

func TestRecordTicks(t *testing.T) {
	b := newBackend(t, "")
	require.NoError(t, b.StartRun(core.RunMeta{SimulationID: "sim", RunTime: 10, TimeStep: 0.1, Seed: 3, StartedAt: time.Now().UTC()}))
	runID, err := b.RunID()
	require.NoError(t, err)

	require.NoError(t, b.RecordTick(tick(0.2, "v1", "v2")))
	require.NoError(t, b.RecordTick(tick(0.1, "v1")))
	require.NoError(t, b.RecordTick(tick(0.3)))

	states, err := b.VehicleStates(runID, "v1")
	require.NoError(t, err)
	require.Len(t, states, 2)
	assert.Equal(t, 0.1, states[0].Timestamp)
	assert.Equal(t, 0.2, states[1].Timestamp)
	assert.InDelta(t, 1.0, states[1].X, 1e-9)
	assert.Equal(t, "j", states[1].NextJoint)

	var runs []Run
	require.NoError(t, b.db.Find(&runs).Error)
	require.Len(t, runs, 1)
	assert.Equal(t, uint64(3), runs[0].Seed)
}

func TestArrivalRoundTrip(t *testing.T) {
	b := newBackend(t, filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, b.StartRun(core.RunMeta{SimulationID: "sim", TimeStep: 0.1}))
	runID, err := b.RunID()
	require.NoError(t, err)

	report := core.ArrivalReport{
		VehicleID:    "v1",
		Origin:       "west",
		Destination:  "north",
		DepartTime:   1,
		ArriveTime:   45.5,
		Elapsed:      44.5,
		Distance:     203.1,
		AverageSpeed: 203.1 / 44.5,
		PeakSpeed:    5,
		Route:        []string{"a", "b"},
		Trajectory:   []geometry.Vec2{{X: 0, Y: -2}, {X: 100, Y: -2}, {X: 102, Y: 100}},
	}
	require.NoError(t, b.RecordArrival(report))
	short := core.ArrivalReport{VehicleID: "v2", ArriveTime: 10, Route: []string{"a"}, Trajectory: []geometry.Vec2{{X: 1, Y: 1}}}
	require.NoError(t, b.RecordArrival(short))

	got, err := b.Arrivals(runID)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "v2", got[0].VehicleID)
	assert.Empty(t, got[0].Trajectory, "single points are not stored as a line")
	assert.Equal(t, report, got[1])
}

func TestPostgresDSN(t *testing.T) {
	cfg := PostgresConfig{Host: "db", Port: "5432", Username: "u", Password: "p", Database: "avsim"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=avsim sslmode=disable", cfg.DSN())
	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}
