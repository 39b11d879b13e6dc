package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/avsim-engine/internal/config"
	"github.com/cxd309/avsim-engine/internal/core"
	"github.com/cxd309/avsim-engine/internal/engine"
	"github.com/cxd309/avsim-engine/internal/storage/gormstore"
	"github.com/cxd309/avsim-engine/internal/storage/memory"
	"github.com/cxd309/avsim-engine/internal/transport/websocket"
)

const crossroads = "testdata/crossroads.json"

func newTestApp(stdin string) (*app, *bytes.Buffer, *bytes.Buffer) {
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	return &app{stdin: strings.NewReader(stdin), stdout: stdout, stderr: stderr}, stdout, stderr
}

func loadInput(t *testing.T) engine.SimulationInput {
	t.Helper()
	data, err := os.ReadFile(crossroads)
	require.NoError(t, err)
	var input engine.SimulationInput
	require.NoError(t, json.Unmarshal(data, &input))
	return input
}

func TestRunCommand(t *testing.T) {
	a, stdout, stderr := newTestApp("")
	require.NoError(t, a.command().Run(context.Background(), []string{appName, "run", crossroads}))

	var log engine.SimulationLog
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &log))
	assert.Equal(t, "crossroads", log.Meta.SimulationID)
	assert.Len(t, log.Output, 600)
	assert.Contains(t, stderr.String(), "Logging initialized", "logs go to stderr")

	var seen []string
	for _, r := range log.Arrivals {
		seen = append(seen, r.VehicleID)
		assert.NotEqual(t, r.Origin, r.Destination)
	}
	assert.Subset(t, []string{"v1", "v2", "v3", "v4"}, seen)
}

func TestRunCommandFromStdin(t *testing.T) {
	data, err := os.ReadFile(crossroads)
	require.NoError(t, err)
	a, stdout, _ := newTestApp(string(data))
	out := filepath.Join(t.TempDir(), "arrivals.json")

	require.NoError(t, a.command().Run(context.Background(),
		[]string{appName, "--log-level", "error", "run", "--arrivals-only", "-o", out, "-"}))
	assert.Empty(t, stdout.String())

	body, err := os.ReadFile(out)
	require.NoError(t, err)
	var arrivals []core.ArrivalReport
	require.NoError(t, json.Unmarshal(body, &arrivals))
}

func TestRunCommandRecordsToSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "runs.db")
	t.Setenv("AVSIM_STORAGE_TYPE", "sqlite")
	t.Setenv("AVSIM_STORAGE_SQLITE_PATH", dbPath)

	a, stdout, _ := newTestApp("")
	require.NoError(t, a.command().Run(context.Background(), []string{appName, "run", crossroads}))
	var log engine.SimulationLog
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &log))

	db, err := gormstore.OpenSQLite(dbPath)
	require.NoError(t, err)
	store := gormstore.New(db, nil)
	defer store.Close()

	var run gormstore.Run
	require.NoError(t, db.First(&run).Error)
	assert.Equal(t, "crossroads", run.SimulationID)
	assert.Equal(t, uint64(42), run.Seed)

	arrivals, err := store.Arrivals(run.ID)
	require.NoError(t, err)
	assert.Len(t, arrivals, len(log.Arrivals))

	states, err := store.VehicleStates(run.ID, "v1")
	require.NoError(t, err)
	assert.NotEmpty(t, states)
}

func TestValidateCommand(t *testing.T) {
	a, stdout, _ := newTestApp("")
	require.NoError(t, a.command().Run(context.Background(), []string{appName, "validate", crossroads}))
	assert.Equal(t, "simulation \"crossroads\": 5 joints, 4 roads, 4 vehicles: ok\n", stdout.String())

	a, _, _ = newTestApp(`{"simulation_meta": {"simulation_id": "bad", "run_time": 1, "time_step": 0}}`)
	err := a.command().Run(context.Background(), []string{appName, "validate"})
	assert.ErrorContains(t, err, "time_step must be positive")

	input := loadInput(t)
	input.Vehicles[2].Lane = 2
	data, err := json.Marshal(input)
	require.NoError(t, err)
	a, _, _ = newTestApp(string(data))
	err = a.command().Run(context.Background(), []string{appName, "validate", "-"})
	assert.ErrorContains(t, err, `vehicle "v3": lane 2 out of range on road "s" (2 lanes)`)

	a, _, _ = newTestApp("{")
	err = a.command().Run(context.Background(), []string{appName, "validate"})
	assert.ErrorContains(t, err, "invalid input JSON")
}

func TestBeforeRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "avsim.yaml")
	require.NoError(t, os.WriteFile(path, []byte("vehicle:\n  length: 0\n"), 0o644))

	a, _, _ := newTestApp("")
	err := a.command().Run(context.Background(), []string{appName, "--config", path, "validate", crossroads})
	assert.ErrorContains(t, err, "vehicle.length must be positive")

	a, _, _ = newTestApp("")
	err = a.command().Run(context.Background(), []string{appName, "--log-level", "loud", "validate", crossroads})
	assert.ErrorContains(t, err, "logLevel")
}

func TestLogsDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "logs")
	a, _, stderr := newTestApp("")
	require.NoError(t, a.command().Run(context.Background(), []string{appName, "--logs-dir", dir, "validate", crossroads}))
	assert.Contains(t, stderr.String(), "Logging initialized", "the console keeps logging")

	files, err := filepath.Glob(filepath.Join(dir, appName+".*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	body, err := os.ReadFile(files[0])
	require.NoError(t, err)
	assert.Contains(t, string(body), "Logging initialized")
}

func TestOpenRecorder(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	r, err := openRecorder(config.StorageConfig{Type: "memory"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &memory.Backend{}, r)

	r, err = openRecorder(config.StorageConfig{Type: "sqlite"}, logger)
	require.NoError(t, err)
	assert.IsType(t, &gormstore.Backend{}, r)
	assert.NoError(t, r.Close())

	_, err = openRecorder(config.StorageConfig{Type: "s3"}, logger)
	assert.ErrorContains(t, err, `unknown storage type "s3"`)
}

func TestStreamAndRoutes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	input := loadInput(t)
	input.Meta.RunTime = 2
	live := memory.New()
	hub := websocket.NewHub(nil)
	go hub.Run(ctx)

	var ticks int
	sim, err := engine.New(input, engine.DefaultConfig(), engine.Options{
		Recorder: live,
		OnTick: func(row core.TickLog) {
			ticks++
			hub.BroadcastTick(input.Meta.SimulationID, row)
		},
	})
	require.NoError(t, err)

	server := httptest.NewServer(routes(hub, live, input))
	defer server.Close()

	resp, err := http.Get(server.URL + "/state")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.NoError(t, stream(ctx, sim, time.Millisecond, nil))
	assert.Equal(t, 20, ticks)
	assert.True(t, sim.Done())

	resp, err = http.Get(server.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tick core.TickLog
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&tick))
	assert.InDelta(t, 2.0, tick.Timestamp, 1e-9)

	resp, err = http.Get(server.URL + "/network")
	require.NoError(t, err)
	defer resp.Body.Close()
	var network map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&network))
	assert.Len(t, network["roads"], 4)

	resp, err = http.Get(server.URL + "/arrivals")
	require.NoError(t, err)
	defer resp.Body.Close()
	var arrivals []core.ArrivalReport
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&arrivals))
	assert.Empty(t, arrivals)
}

func TestStreamStopsOnCancel(t *testing.T) {
	input := loadInput(t)
	sim, err := engine.New(input, engine.DefaultConfig(), engine.Options{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err = stream(ctx, sim, time.Hour, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, sim.Done())
}
