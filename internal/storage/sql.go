package storage

const (
	initSchemaSQL = `
CREATE TABLE IF NOT EXISTS sessions
(
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    start_time        TIMESTAMP NOT NULL,
    scope_address     TEXT      NOT NULL,
    generator_address TEXT      NOT NULL,
    config            TEXT
);

CREATE TABLE IF NOT EXISTS measurements
(
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id INTEGER   NOT NULL REFERENCES sessions (id),
    timestamp  TIMESTAMP NOT NULL,
    frequency  REAL      NOT NULL,
    input      REAL      NOT NULL,
    output     REAL      NOT NULL,
    gain_db    REAL,
    time       REAL      NOT NULL,
    metric     TEXT      NOT NULL
);`

	initIndexesSQL = `
CREATE INDEX IF NOT EXISTS idx_measurements_session_frequency ON measurements (session_id, frequency);`

	insertSessionSQL = `
INSERT INTO sessions (start_time,
                      scope_address,
                      generator_address,
                      config)
VALUES (CURRENT_TIMESTAMP, ?, ?, ?)`

	selectSessionSQL = `
SELECT
    id,
    start_time,
    scope_address,
    generator_address,
    config
FROM sessions
WHERE
    id = ?`

	selectSessionsSQL = `
SELECT
    id,
    start_time,
    scope_address,
    generator_address,
    config
FROM sessions
ORDER BY start_time, id`

	insertMeasurementSQL = `
INSERT INTO measurements (session_id,
                          timestamp,
                          frequency,
                          input,
                          output,
                          gain_db,
                          time,
                          metric)
VALUES `

	selectMeasurementsSQL = `
SELECT
    frequency,
    input,
    output,
    gain_db,
    time,
    metric
FROM measurements
WHERE
    session_id = ?
ORDER BY frequency, id`
)
