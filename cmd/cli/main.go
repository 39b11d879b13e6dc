// Command avsim runs autonomous vehicle simulations.
//
//	avsim run [input.json]       run to completion and print the SimulationLog JSON
//	avsim validate [input.json]  check an input without running it
//	avsim serve [input.json]     run in real time and stream ticks over a websocket
//
// The input is read from the file argument, or from stdin when it is absent
// or "-". Calibration comes from --config, a .env file and AVSIM_* variables.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/cxd309/avsim-engine/internal/config"
)

const appName = "avsim"

// app carries what the commands share once Before has run.
type app struct {
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer

	cfg     config.Config
	logger  *slog.Logger
	logFile *os.File
}

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: loading .env file: %v\n", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdin: os.Stdin, stdout: os.Stdout, stderr: os.Stderr}
	if err := a.command().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", appName, err)
		os.Exit(1)
	}
}
