package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/cxd309/avsim-engine/internal/config"
	"github.com/cxd309/avsim-engine/internal/engine"
	"github.com/cxd309/avsim-engine/internal/logging"
)

func (a *app) command() *cli.Command {
	return &cli.Command{
		Name:      appName,
		Usage:     "simulate autonomous vehicles on a road network",
		Writer:    a.stdout,
		ErrWriter: a.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "load configuration from `FILE` (JSON, YAML or TOML)",
				Sources: cli.EnvVars(config.EnvPrefix + "_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "debug, info, warn or error",
			},
			&cli.StringFlag{
				Name:  "logs-dir",
				Usage: "also write logs to a timestamped file in `DIR`",
			},
		},
		Before: a.before,
		After:  a.after,
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "run a simulation and write its log as JSON",
				ArgsUsage: "[input.json]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "write the log to `FILE` instead of stdout",
					},
					&cli.BoolFlag{
						Name:  "arrivals-only",
						Usage: "write only the arrival reports",
					},
				},
				Action: a.run,
			},
			{
				Name:      "validate",
				Usage:     "check an input without running it",
				ArgsUsage: "[input.json]",
				Action:    a.validate,
			},
			{
				Name:      "serve",
				Usage:     "run a simulation in real time and stream it over a websocket",
				ArgsUsage: "[input.json]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "listen on `ADDR` (default from stream.addr)",
					},
					&cli.FloatFlag{
						Name:  "speed",
						Usage: "simulated seconds per wall-clock second (default from stream.speed)",
					},
				},
				Action: a.serve,
			},
		},
	}
}

// before loads the configuration and sets up logging for every command.
func (a *app) before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return ctx, err
	}
	if cmd.IsSet("log-level") {
		cfg.LogLevel = cmd.String("log-level")
	}
	if cmd.IsSet("logs-dir") {
		cfg.LogsDir = cmd.String("logs-dir")
	}
	if err := cfg.Validate(); err != nil {
		return ctx, err
	}
	a.cfg = cfg

	var file io.Writer
	if cfg.LogsDir != "" {
		if err := os.MkdirAll(cfg.LogsDir, 0o755); err != nil {
			return ctx, fmt.Errorf("creating logs directory: %w", err)
		}
		path := logging.LogFilePath(cfg.LogsDir, appName, time.Now())
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return ctx, fmt.Errorf("opening log file: %w", err)
		}
		a.logFile = f
		file = f
	}

	manager := logging.NewSlogManager(a.stderr)
	manager.Setup(file, cfg.LogLevel)
	a.logger = manager.Logger()
	return ctx, nil
}

func (a *app) after(context.Context, *cli.Command) error {
	if a.logFile != nil {
		return a.logFile.Close()
	}
	return nil
}

// readInput decodes the SimulationInput named by the first argument, or stdin.
func (a *app) readInput(cmd *cli.Command) (engine.SimulationInput, error) {
	var (
		data []byte
		err  error
	)
	path := cmd.Args().First()
	if path == "" || path == "-" {
		data, err = io.ReadAll(a.stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return engine.SimulationInput{}, fmt.Errorf("error reading input: %w", err)
	}

	var input engine.SimulationInput
	if err := json.Unmarshal(data, &input); err != nil {
		return engine.SimulationInput{}, fmt.Errorf("invalid input JSON: %w", err)
	}
	return input, nil
}

func (a *app) run(ctx context.Context, cmd *cli.Command) error {
	input, err := a.readInput(cmd)
	if err != nil {
		return err
	}

	recorder, err := openRecorder(a.cfg.Storage, a.logger)
	if err != nil {
		return err
	}
	defer recorder.Close()

	sim, err := engine.New(input, a.cfg.Engine(), engine.Options{Logger: a.logger, Recorder: recorder})
	if err != nil {
		return fmt.Errorf("simulation error: %w", err)
	}
	simLog, err := sim.Run(ctx)
	if err != nil {
		return fmt.Errorf("simulation error: %w", err)
	}

	var result any = simLog
	if cmd.Bool("arrivals-only") {
		result = simLog.Arrivals
	}

	out := a.stdout
	if path := cmd.String("output"); path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("creating output: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := json.NewEncoder(out).Encode(result); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}
	return nil
}

func (a *app) validate(_ context.Context, cmd *cli.Command) error {
	input, err := a.readInput(cmd)
	if err != nil {
		return err
	}
	if _, err := engine.New(input, a.cfg.Engine(), engine.Options{Logger: a.logger}); err != nil {
		return fmt.Errorf("invalid simulation: %w", err)
	}
	fmt.Fprintf(a.stdout, "simulation %q: %d joints, %d roads, %d vehicles: ok\n",
		input.Meta.SimulationID, len(input.Network.Joints), len(input.Network.Roads), len(input.Vehicles))
	return nil
}
