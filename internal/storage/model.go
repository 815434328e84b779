package storage

import (
	"database/sql"
	"time"
)

// Session is one sweep run and the configuration it ran with
type Session struct {
	ID               int64
	StartTime        time.Time
	ScopeAddress     string
	GeneratorAddress string
	Config           *string // JSON, when stored
}

type measurementData struct {
	SessionID int64
	Timestamp time.Time
	Frequency float64
	Input     float64
	Output    float64
	GainDB    sql.NullFloat64
	Time      float64
	Metric    string
}
