// Package websocket streams simulation ticks to browser clients.
//
// A central Hub owns every connection. Clients subscribe to one simulation
// with the query parameter ?simulation=<id> and receive a JSON Message per
// tick ("tick") and per completed trip ("arrival"). Incoming messages are
// only read to keep the connection alive.
//
// Usage:
//
//	hub := websocket.NewHub(logger)
//	go hub.Run(ctx)
//	http.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
//		hub.ServeWS(w, r, r.URL.Query().Get("simulation"))
//	})
//	hub.BroadcastTick(simulationID, row)
//
// Clients whose send buffer is full are dropped rather than slowing the
// simulation down.
package websocket
