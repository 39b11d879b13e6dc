// Package gormstore implements storage.Recorder on a relational database via
// GORM. SQLite (pure Go, file or in-memory) and Postgres are supported.
package gormstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/cxd309/avsim-engine/internal/core"
	"github.com/cxd309/avsim-engine/internal/geometry"
)

// ErrNoRun is returned when recording before StartRun.
var ErrNoRun = errors.New("no run started")

// PostgresConfig holds the connection parameters of a Postgres server.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN renders the keyword/value connection string.
func (c PostgresConfig) DSN() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(`host=%s port=%s user=%s password=%s dbname=%s sslmode=%s`,
		c.Host, c.Port, c.Username, c.Password, c.Database, sslmode)
}

// OpenSQLite opens a SQLite database at path. An empty path opens a private
// in-memory database.
func OpenSQLite(path string) (*gorm.DB, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:"
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite %q: %w", path, err)
	}
	// An in-memory database lives only as long as its one connection.
	if path == "" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("failed to access sql interface: %w", err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// OpenPostgres connects to the Postgres server described by cfg.
func OpenPostgres(cfg PostgresConfig) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		CreateBatchSize:        10000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres at %s:%s: %w", cfg.Host, cfg.Port, err)
	}
	return db, nil
}

// Backend records runs into a GORM database.
type Backend struct {
	db     *gorm.DB
	logger *slog.Logger

	mu  sync.Mutex
	run *Run
}

// New wraps an open database. A nil logger disables logging.
func New(db *gorm.DB, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Backend{db: db, logger: logger}
}

// Init migrates the schema.
func (b *Backend) Init() error {
	b.logger.Info("Migrating schema", "dialect", b.db.Dialector.Name())
	if err := b.db.AutoMigrate(Models...); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql interface: %w", err)
	}
	return sqlDB.Close()
}

// StartRun inserts the run row that later records reference.
func (b *Backend) StartRun(meta core.RunMeta) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	run := &Run{
		SimulationID: meta.SimulationID,
		RunTime:      meta.RunTime,
		TimeStep:     meta.TimeStep,
		Seed:         meta.Seed,
		StartedAt:    meta.StartedAt,
	}
	if err := b.db.Create(run).Error; err != nil {
		return fmt.Errorf("creating run %q: %w", meta.SimulationID, err)
	}
	b.run = run
	b.logger.Debug("Run started", "run_id", run.ID, "simulation", meta.SimulationID)
	return nil
}

// RunID returns the database ID of the current run.
func (b *Backend) RunID() (uint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.run == nil {
		return 0, ErrNoRun
	}
	return b.run.ID, nil
}

// RecordTick stores one row per vehicle snapshot.
func (b *Backend) RecordTick(tick core.TickLog) error {
	runID, err := b.RunID()
	if err != nil {
		return err
	}
	if len(tick.Vehicles) == 0 {
		return nil
	}
	states := make([]VehicleState, len(tick.Vehicles))
	for i, v := range tick.Vehicles {
		states[i] = VehicleState{
			RunID:     runID,
			Timestamp: tick.Timestamp,
			VehicleID: v.VehicleID,
			State:     v.State,
			X:         v.Position.X,
			Y:         v.Position.Y,
			Heading:   v.Heading,
			Speed:     v.Speed,
			Road:      v.Road,
			Lane:      v.Lane,
			NextJoint: v.NextJoint,
			Leader:    v.Leader,
			LightOn:   v.LightOn,
		}
	}
	if err := b.db.Create(&states).Error; err != nil {
		return fmt.Errorf("inserting %d vehicle states at t=%g: %w", len(states), tick.Timestamp, err)
	}
	return nil
}

// RecordArrival stores a completed trip.
func (b *Backend) RecordArrival(r core.ArrivalReport) error {
	runID, err := b.RunID()
	if err != nil {
		return err
	}
	route, err := json.Marshal(r.Route)
	if err != nil {
		return fmt.Errorf("encoding route of %q: %w", r.VehicleID, err)
	}
	row := Arrival{
		RunID:        runID,
		VehicleID:    r.VehicleID,
		Origin:       r.Origin,
		Destination:  r.Destination,
		DepartTime:   r.DepartTime,
		ArriveTime:   r.ArriveTime,
		Elapsed:      r.Elapsed,
		Distance:     r.Distance,
		AverageSpeed: r.AverageSpeed,
		PeakSpeed:    r.PeakSpeed,
		Route:        datatypes.JSON(route),
		Trajectory:   geometry.WKT(r.Trajectory),
	}
	if err := b.db.Create(&row).Error; err != nil {
		return fmt.Errorf("inserting arrival of %q: %w", r.VehicleID, err)
	}
	return nil
}

// Arrivals reads back the trips of a run in arrival order.
func (b *Backend) Arrivals(runID uint) ([]core.ArrivalReport, error) {
	var rows []Arrival
	if err := b.db.Where("run_id = ?", runID).Order("arrive_time, id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("querying arrivals of run %d: %w", runID, err)
	}
	out := make([]core.ArrivalReport, len(rows))
	for i, row := range rows {
		r := core.ArrivalReport{
			VehicleID:    row.VehicleID,
			Origin:       row.Origin,
			Destination:  row.Destination,
			DepartTime:   row.DepartTime,
			ArriveTime:   row.ArriveTime,
			Elapsed:      row.Elapsed,
			Distance:     row.Distance,
			AverageSpeed: row.AverageSpeed,
			PeakSpeed:    row.PeakSpeed,
		}
		if err := json.Unmarshal(row.Route, &r.Route); err != nil {
			return nil, fmt.Errorf("decoding route of %q: %w", row.VehicleID, err)
		}
		traj, err := geometry.ParseWKT(row.Trajectory)
		if err != nil {
			return nil, fmt.Errorf("decoding trajectory of %q: %w", row.VehicleID, err)
		}
		r.Trajectory = traj
		out[i] = r
	}
	return out, nil
}

// VehicleStates reads back the snapshots of one vehicle in time order.
func (b *Backend) VehicleStates(runID uint, vehicleID string) ([]VehicleState, error) {
	var rows []VehicleState
	err := b.db.Where("run_id = ? AND vehicle_id = ?", runID, vehicleID).Order("timestamp").Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("querying states of %q: %w", vehicleID, err)
	}
	return rows, nil
}
