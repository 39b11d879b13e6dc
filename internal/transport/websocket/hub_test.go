package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cxd309/avsim-engine/internal/core"
	"github.com/cxd309/avsim-engine/internal/geometry"
)

func newClient(hub *Hub, simulationID string, buffer int) *Client {
	return &Client{hub: hub, simulationID: simulationID, send: make(chan []byte, buffer)}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub(nil)
	c1 := newClient(hub, "sim", sendBuffer)
	c2 := newClient(hub, "sim", sendBuffer)

	hub.registerClient(c1)
	hub.registerClient(c2)
	assert.Len(t, hub.sessions["sim"], 2)
	assert.Equal(t, 2, hub.Clients())

	hub.unregisterClient(c1)
	assert.Len(t, hub.sessions["sim"], 1)
	assert.True(t, hub.sessions["sim"][c2])

	// A second unregister is a no-op.
	hub.unregisterClient(c1)
	assert.Equal(t, 1, hub.Clients())

	hub.unregisterClient(c2)
	assert.NotContains(t, hub.sessions, "sim")
	assert.Equal(t, 0, hub.Clients())
}

func TestHubBroadcastIsolation(t *testing.T) {
	hub := NewHub(nil)
	c1 := newClient(hub, "sim-1", sendBuffer)
	c2 := newClient(hub, "sim-2", sendBuffer)
	hub.registerClient(c1)
	hub.registerClient(c2)

	hub.broadcastMessage(&Message{SimulationID: "sim-1", Event: EventTick, Tick: &core.TickLog{Timestamp: 0.1}})

	select {
	case data := <-c1.send:
		var msg Message
		require.NoError(t, json.Unmarshal(data, &msg))
		assert.Equal(t, EventTick, msg.Event)
		require.NotNil(t, msg.Tick)
		assert.Equal(t, 0.1, msg.Tick.Timestamp)
	default:
		t.Fatal("subscriber of sim-1 got nothing")
	}
	assert.Empty(t, c2.send)

	// Messages for a simulation nobody watches are dropped.
	hub.broadcastMessage(&Message{SimulationID: "sim-3", Event: EventTick})
	assert.Empty(t, c1.send)
}

func TestHubDropsSlowClient(t *testing.T) {
	hub := NewHub(nil)
	slow := newClient(hub, "sim", 1)
	hub.registerClient(slow)

	hub.broadcastMessage(&Message{SimulationID: "sim", Event: EventTick})
	hub.broadcastMessage(&Message{SimulationID: "sim", Event: EventTick})

	assert.Equal(t, 0, hub.Clients())
	<-slow.send
	_, open := <-slow.send
	assert.False(t, open, "send channel is closed on drop")
}

func TestServeWSStreamsTicksAndArrivals(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, r.URL.Query().Get("simulation"))
	}))
	defer server.Close()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "?simulation=demo"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)

	hub.BroadcastTick("demo", core.TickLog{
		Timestamp: 4.2,
		Vehicles:  []core.VehicleLog{{VehicleID: "v1", Position: geometry.Vec2{X: 1, Y: -2}}},
		Arrivals:  []core.ArrivalReport{{VehicleID: "v0", Route: []string{"a"}}},
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var tick Message
	require.NoError(t, conn.ReadJSON(&tick))
	assert.Equal(t, "demo", tick.SimulationID)
	assert.Equal(t, EventTick, tick.Event)
	require.NotNil(t, tick.Tick)
	require.Len(t, tick.Tick.Vehicles, 1)
	assert.Equal(t, "v1", tick.Tick.Vehicles[0].VehicleID)
	assert.Empty(t, tick.Tick.Arrivals, "arrivals travel as their own events")

	var arrival Message
	require.NoError(t, conn.ReadJSON(&arrival))
	assert.Equal(t, EventArrival, arrival.Event)
	require.NotNil(t, arrival.Arrival)
	assert.Equal(t, "v0", arrival.Arrival.VehicleID)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 10*time.Millisecond)
}

func TestBroadcastAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()
	cancel()
	<-stopped

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2*sendBuffer; i++ {
			hub.BroadcastTick("sim", core.TickLog{Timestamp: float64(i)})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("BroadcastTick blocked on a stopped hub")
	}
}
