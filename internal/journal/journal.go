// Package journal persists bridge sessions, the signals that crossed the
// bridge and, optionally, received poses in a local sqlite database.
package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/simbridge/internal/wire"
)

// Direction tells whether a signal was received or sent by the bridge.
type Direction string

const (
	Inbound  Direction = "inbound"
	Outbound Direction = "outbound"
)

// Journal is a sqlite database holding the bridge journal.
type Journal struct {
	*sql.DB
	path string
}

// Session describes one bridge run.
type Session struct {
	ID            string
	StartedAt     time.Time
	ControlAddr   string
	TelemetryAddr string
	StatusAddr    string
}

// Signal is one journaled control or status signal.
type Signal struct {
	SessionID  string    `json:"session_id"`
	Direction  Direction `json:"direction"`
	Kind       string    `json:"kind"`
	Value      byte      `json:"value"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Open opens (creating if needed) the journal at path and applies any
// pending schema migrations.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}
	// One connection serialises writers and keeps :memory: databases
	// consistent across queries.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	j := &Journal{DB: db, path: path}
	if err := j.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

// Path returns the path the journal was opened with.
func (j *Journal) Path() string {
	return j.path
}

// BeginSession records the start of a bridge run.
func (j *Journal) BeginSession(s Session) error {
	_, err := j.Exec(`
		INSERT INTO sessions (session_id, started_at, control_addr, telemetry_addr, status_addr)
		VALUES (?, ?, ?, ?, ?)`,
		s.ID, s.StartedAt.UnixNano(), s.ControlAddr, s.TelemetryAddr, s.StatusAddr)
	if err != nil {
		return fmt.Errorf("failed to record session %s: %w", s.ID, err)
	}
	return nil
}

// RecordSignal stores one signal.
func (j *Journal) RecordSignal(s Signal) error {
	_, err := j.Exec(`
		INSERT INTO signals (session_id, direction, kind, value, recorded_at)
		VALUES (?, ?, ?, ?, ?)`,
		s.SessionID, string(s.Direction), s.Kind, int(s.Value), s.RecordedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record signal: %w", err)
	}
	return nil
}

// RecordPose stores one received pose.
func (j *Journal) RecordPose(sessionID string, p wire.TelemetryPose, at time.Time) error {
	_, err := j.Exec(`
		INSERT INTO poses (session_id, latitude, longitude, altitude, roll, pitch, yaw, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, p.Latitude, p.Longitude, p.Altitude, p.Roll, p.Pitch, p.Yaw, at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record pose: %w", err)
	}
	return nil
}

// RecentSignals returns up to limit signals, newest first.
func (j *Journal) RecentSignals(limit int) ([]Signal, error) {
	rows, err := j.Query(`
		SELECT session_id, direction, kind, value, recorded_at
		FROM signals
		ORDER BY recorded_at DESC, signal_id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query signals: %w", err)
	}
	defer rows.Close()

	var signals []Signal
	for rows.Next() {
		var (
			s         Signal
			direction string
			value     int
			nanos     int64
		)
		if err := rows.Scan(&s.SessionID, &direction, &s.Kind, &value, &nanos); err != nil {
			return nil, err
		}
		s.Direction = Direction(direction)
		s.Value = byte(value)
		s.RecordedAt = time.Unix(0, nanos).UTC()
		signals = append(signals, s)
	}
	return signals, rows.Err()
}

// Poses returns the poses recorded for a session, oldest first.
func (j *Journal) Poses(sessionID string) ([]wire.TelemetryPose, error) {
	rows, err := j.Query(`
		SELECT latitude, longitude, altitude, roll, pitch, yaw
		FROM poses
		WHERE session_id = ?
		ORDER BY recorded_at, pose_id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query poses: %w", err)
	}
	defer rows.Close()

	var poses []wire.TelemetryPose
	for rows.Next() {
		var p wire.TelemetryPose
		if err := rows.Scan(&p.Latitude, &p.Longitude, &p.Altitude, &p.Roll, &p.Pitch, &p.Yaw); err != nil {
			return nil, err
		}
		poses = append(poses, p)
	}
	return poses, rows.Err()
}

// SessionCount returns the number of recorded sessions.
func (j *Journal) SessionCount() (int, error) {
	var n int
	err := j.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n)
	return n, err
}

// Backup writes a consistent copy of the journal to path.
func (j *Journal) Backup(path string) error {
	if _, err := j.Exec("VACUUM INTO ?", path); err != nil {
		return fmt.Errorf("failed to create backup: %w", err)
	}
	return nil
}
