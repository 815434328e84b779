package storage

import (
	"database/sql"
	"errors"
	"math"
	"time"

	"github.com/roman-kulish/frequency-response/internal/response"
)

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}

func rollbackWithError(rb interface{ Rollback() error }, err *error) {
	if cErr := rb.Rollback(); cErr != nil && *err == nil && !errors.Is(cErr, sql.ErrTxDone) {
		*err = cErr
	}
}

// toMeasurementData stores a non finite gain (no input signal) as NULL
func toMeasurementData(sessionID int64, ts time.Time, r response.Record) *measurementData {
	var gain sql.NullFloat64
	if !math.IsNaN(r.GainDB) && !math.IsInf(r.GainDB, 0) {
		gain.Float64 = r.GainDB
		gain.Valid = true
	}

	return &measurementData{
		SessionID: sessionID,
		Timestamp: ts.UTC(),
		Frequency: r.Frequency,
		Input:     r.Input,
		Output:    r.Output,
		GainDB:    gain,
		Time:      r.Time,
		Metric:    r.Unit.String(),
	}
}

func toRecord(frequency, input, output float64, gain sql.NullFloat64, t float64, metric string) (response.Record, error) {
	unit, err := response.ParseTimeMetric(metric)
	if err != nil {
		return response.Record{}, err
	}

	r := response.Record{
		Frequency: frequency,
		Input:     input,
		Output:    output,
		GainDB:    math.NaN(),
		Time:      t,
		Unit:      unit,
	}
	if gain.Valid {
		r.GainDB = gain.Float64
	}
	return r, nil
}
