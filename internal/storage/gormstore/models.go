package gormstore

import (
	"time"

	"gorm.io/datatypes"
)

// Run is one simulation run.
type Run struct {
	ID           uint      `gorm:"primarykey"`
	SimulationID string    `gorm:"size:128;index"`
	RunTime      float64   // seconds
	TimeStep     float64   // seconds
	Seed         uint64
	StartedAt    time.Time
}

func (*Run) TableName() string {
	return "runs"
}

// VehicleState is a vehicle snapshot at one tick.
type VehicleState struct {
	ID        uint    `gorm:"primarykey"`
	RunID     uint    `gorm:"index:idx_state_run_time"`
	Timestamp float64 `gorm:"index:idx_state_run_time"`
	VehicleID string  `gorm:"size:128;index"`
	State     string  `gorm:"size:32"`
	X         float64
	Y         float64
	Heading   float64 // degrees
	Speed     float64 // m/s
	Road      string  `gorm:"size:128"`
	Lane      uint
	NextJoint string `gorm:"size:128"`
	Leader    string `gorm:"size:128"`
	LightOn   bool
}

func (*VehicleState) TableName() string {
	return "vehicle_states"
}

// Arrival is a completed trip.
type Arrival struct {
	ID           uint   `gorm:"primarykey"`
	RunID        uint   `gorm:"index"`
	VehicleID    string `gorm:"size:128;index"`
	Origin       string `gorm:"size:128"`
	Destination  string `gorm:"size:128"`
	DepartTime   float64
	ArriveTime   float64
	Elapsed      float64
	Distance     float64
	AverageSpeed float64
	PeakSpeed    float64
	Route        datatypes.JSON `gorm:"default:'[]'"` // road IDs in travel order
	Trajectory   string         // WKT LINESTRING
}

func (*Arrival) TableName() string {
	return "arrivals"
}

// Models lists every table AutoMigrate creates.
var Models = []any{&Run{}, &VehicleState{}, &Arrival{}}
