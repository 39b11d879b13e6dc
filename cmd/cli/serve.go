package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/cxd309/avsim-engine/internal/core"
	"github.com/cxd309/avsim-engine/internal/engine"
	"github.com/cxd309/avsim-engine/internal/storage"
	"github.com/cxd309/avsim-engine/internal/storage/memory"
	"github.com/cxd309/avsim-engine/internal/transport/websocket"
)

// serve runs the simulation at wall-clock pace and keeps serving the final
// state until interrupted.
//
//	GET /ws        tick and arrival events
//	GET /network   the road network of the input
//	GET /state     the latest tick
//	GET /arrivals  the trips completed so far
func (a *app) serve(ctx context.Context, cmd *cli.Command) error {
	input, err := a.readInput(cmd)
	if err != nil {
		return err
	}
	addr := a.cfg.Stream.Addr
	if cmd.IsSet("addr") {
		addr = cmd.String("addr")
	}
	speed := a.cfg.Stream.Speed
	if cmd.IsSet("speed") {
		speed = cmd.Float("speed")
	}
	if speed <= 0 {
		return fmt.Errorf("speed must be positive, got %g", speed)
	}

	recorder, err := openRecorder(a.cfg.Storage, a.logger)
	if err != nil {
		return err
	}
	defer recorder.Close()
	live := memory.New()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := websocket.NewHub(a.logger)
	go hub.Run(ctx)

	simulationID := input.Meta.SimulationID
	sim, err := engine.New(input, a.cfg.Engine(), engine.Options{
		Logger:   a.logger,
		Recorder: storage.Multi{live, recorder},
		OnTick:   func(row core.TickLog) { hub.BroadcastTick(simulationID, row) },
	})
	if err != nil {
		return fmt.Errorf("simulation error: %w", err)
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      routes(hub, live, input),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	serverErr := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Server shutdown failed", "error", err)
		}
	}()

	a.logger.Info("Serving simulation", "addr", addr, "speed", speed)
	interval := time.Duration(input.Meta.TimeStep / speed * float64(time.Second))
	if err := stream(ctx, sim, interval, serverErr); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	a.logger.Info("Simulation complete, still serving", "time", sim.Time())

	select {
	case <-ctx.Done():
		return nil
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}
}

// stream steps sim once per interval until the run time is simulated.
func stream(ctx context.Context, sim *engine.Simulation, interval time.Duration, serverErr <-chan error) error {
	if err := sim.Start(); err != nil {
		return err
	}
	if interval <= 0 {
		interval = time.Nanosecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for !sim.Done() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-serverErr:
			return fmt.Errorf("http server: %w", err)
		case <-ticker.C:
			if _, err := sim.Step(ctx); err != nil {
				return fmt.Errorf("simulation error at t=%.2f: %w", sim.Time(), err)
			}
		}
	}
	return nil
}

func routes(hub *websocket.Hub, live *memory.Backend, input engine.SimulationInput) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r, input.Meta.SimulationID)
	})
	mux.HandleFunc("GET /network", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, input.Network)
	})
	mux.HandleFunc("GET /state", func(w http.ResponseWriter, r *http.Request) {
		tick, ok := live.Latest()
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		writeJSON(w, tick)
	})
	mux.HandleFunc("GET /arrivals", func(w http.ResponseWriter, r *http.Request) {
		arrivals := []core.ArrivalReport{}
		if runs := live.Runs(); len(runs) > 0 {
			arrivals = append(arrivals, runs[len(runs)-1].Arrivals...)
		}
		writeJSON(w, arrivals)
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "Failed to marshal response", http.StatusInternalServerError)
	}
}
