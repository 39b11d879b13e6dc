// Package config loads the engine calibration and the ambient settings of the
// command-line tools from defaults, an optional config file and AVSIM_*
// environment variables, in increasing order of precedence.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/cxd309/avsim-engine/internal/engine"
	"github.com/cxd309/avsim-engine/internal/geometry"
	"github.com/cxd309/avsim-engine/internal/kinematics"
	"github.com/cxd309/avsim-engine/internal/perception"
	"github.com/cxd309/avsim-engine/internal/storage/gormstore"
	"github.com/cxd309/avsim-engine/internal/vehicle"
)

// EnvPrefix prefixes every environment override, e.g. AVSIM_LOGLEVEL or
// AVSIM_CARFOLLOWING_GFM_V0.
const EnvPrefix = "AVSIM"

// SQLiteConfig holds SQLite storage backend settings
type SQLiteConfig struct {
	// Path of the database file; empty keeps the database in memory.
	Path string `mapstructure:"path"`
}

// StorageConfig selects where runs are recorded.
type StorageConfig struct {
	Type     string                   `mapstructure:"type"` // memory, sqlite or postgres
	SQLite   SQLiteConfig             `mapstructure:"sqlite"`
	Postgres gormstore.PostgresConfig `mapstructure:"postgres"`
}

// StreamConfig controls the live websocket feed of the serve command.
type StreamConfig struct {
	Addr string `mapstructure:"addr"`
	// Speed is simulated seconds per wall-clock second.
	Speed float64 `mapstructure:"speed"`
}

// Config is the complete configuration.
type Config struct {
	LogLevel     string            `mapstructure:"logLevel"`
	LogsDir      string            `mapstructure:"logsDir"`
	Vehicle      vehicle.Config    `mapstructure:"vehicle"`
	CarFollowing kinematics.Params `mapstructure:"carFollowing"`
	Perception   perception.Config `mapstructure:"perception"`
	Storage      StorageConfig     `mapstructure:"storage"`
	Stream       StreamConfig      `mapstructure:"stream"`
}

// Engine returns the calibration the simulation engine runs with.
func (c Config) Engine() engine.Config {
	return engine.Config{
		Vehicle:      c.Vehicle,
		CarFollowing: c.CarFollowing,
		Perception:   c.Perception,
	}
}

// setDefaults registers every key so that environment overrides apply to it.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")
	v.SetDefault("logsDir", "")

	veh := vehicle.DefaultConfig()
	v.SetDefault("vehicle.spawn_speed_coef", veh.SpawnSpeedCoef)
	v.SetDefault("vehicle.angular_speed", veh.AngularSpeed)
	v.SetDefault("vehicle.angular_speed_changing_lane", veh.AngularSpeedChangingLane)
	v.SetDefault("vehicle.roads_parallel_threshold", veh.RoadsParallelThreshold)
	v.SetDefault("vehicle.changing_lane_radius_threshold", veh.ChangingLaneRadiusThreshold)
	v.SetDefault("vehicle.changing_lane_max_angle", veh.ChangingLaneMaxAngle)
	v.SetDefault("vehicle.changing_lane_parallel_threshold", veh.ChangingLaneParallelThreshold)
	v.SetDefault("vehicle.on_line_threshold", veh.OnLineThreshold)
	v.SetDefault("vehicle.length", veh.Length)
	v.SetDefault("vehicle.width", veh.Width)
	v.SetDefault("vehicle.trajectory_spacing", veh.TrajectorySpacing)

	cf := kinematics.DefaultParams()
	v.SetDefault("carFollowing.model", cf.Model)
	v.SetDefault("carFollowing.gfm.t", cf.GFM.T)
	v.SetDefault("carFollowing.gfm.v0", cf.GFM.V0)
	v.SetDefault("carFollowing.gfm.t1", cf.GFM.T1)
	v.SetDefault("carFollowing.gfm.t2", cf.GFM.T2)
	v.SetDefault("carFollowing.gfm.r", cf.GFM.R)
	v.SetDefault("carFollowing.gfm.r_prime", cf.GFM.RPrime)
	v.SetDefault("carFollowing.gfm.d", cf.GFM.D)
	v.SetDefault("carFollowing.idm.a_max", cf.IDM.AMax)
	v.SetDefault("carFollowing.idm.b_comfort", cf.IDM.BComfort)
	v.SetDefault("carFollowing.idm.b_max", cf.IDM.BMax)
	v.SetDefault("carFollowing.idm.v0", cf.IDM.V0)
	v.SetDefault("carFollowing.idm.min_gap", cf.IDM.MinGap)
	v.SetDefault("carFollowing.idm.headway", cf.IDM.Headway)
	v.SetDefault("carFollowing.idm.delta", cf.IDM.Delta)
	v.SetDefault("carFollowing.constant.a_acc", cf.Constant.AAcc)
	v.SetDefault("carFollowing.constant.a_dcc", cf.Constant.ADcc)
	v.SetDefault("carFollowing.constant.v_max", cf.Constant.VMaxVal)
	v.SetDefault("carFollowing.constant.min_gap", cf.Constant.MinGap)

	p := perception.DefaultConfig()
	v.SetDefault("perception.same_direction_threshold", p.SameDirectionThreshold)
	v.SetDefault("perception.origin.x", p.Origin.X)
	v.SetDefault("perception.origin.y", p.Origin.Y)
	v.SetDefault("perception.front", points(p.Front))
	v.SetDefault("perception.front_left", points(p.FrontLeft))
	v.SetDefault("perception.front_right", points(p.FrontRight))
	v.SetDefault("perception.left", points(p.Left))
	v.SetDefault("perception.right", points(p.Right))

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.sqlite.path", "avsim.db")
	v.SetDefault("storage.postgres.host", "localhost")
	v.SetDefault("storage.postgres.port", "5432")
	v.SetDefault("storage.postgres.username", "postgres")
	v.SetDefault("storage.postgres.password", "postgres")
	v.SetDefault("storage.postgres.database", "avsim")
	v.SetDefault("storage.postgres.sslmode", "disable")

	v.SetDefault("stream.addr", ":8080")
	v.SetDefault("stream.speed", 1.0)
}

// points converts rays to the generic form a config file would decode to.
func points(ps []geometry.Vec2) []map[string]any {
	out := make([]map[string]any, len(ps))
	for i, p := range ps {
		out[i] = map[string]any{"x": p.X, "y": p.Y}
	}
	return out
}

// Load reads configuration from path (JSON, YAML or TOML by extension) over
// the defaults. An empty path uses defaults and the environment only.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("error decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Default returns the configuration Load produces with no file and no
// environment overrides.
func Default() Config {
	return Config{
		LogLevel:     "info",
		Vehicle:      vehicle.DefaultConfig(),
		CarFollowing: kinematics.DefaultParams(),
		Perception:   perception.DefaultConfig(),
		Storage: StorageConfig{
			Type:   "memory",
			SQLite: SQLiteConfig{Path: "avsim.db"},
			Postgres: gormstore.PostgresConfig{
				Host: "localhost", Port: "5432", Username: "postgres",
				Password: "postgres", Database: "avsim", SSLMode: "disable",
			},
		},
		Stream: StreamConfig{Addr: ":8080", Speed: 1},
	}
}

// Validate checks every section and names the first offending key.
func (c Config) Validate() error {
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config validation: logLevel must be debug, info, warn or error, got %q", c.LogLevel)
	}
	if err := c.Vehicle.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	if err := c.CarFollowing.Validate(); err != nil {
		return fmt.Errorf("config validation: carFollowing: %w", err)
	}
	if err := c.Perception.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}
	switch c.Storage.Type {
	case "memory", "sqlite", "postgres":
	default:
		return fmt.Errorf("config validation: unknown storage type %q", c.Storage.Type)
	}
	if c.Stream.Speed <= 0 {
		return fmt.Errorf("config validation: stream.speed must be positive, got %g", c.Stream.Speed)
	}
	return nil
}
