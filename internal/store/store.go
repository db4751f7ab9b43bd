// Package store persists workspace runtime state, trigger bookkeeping,
// presentation records and telemetry in a local SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"daybrief/internal/lifecycle"
	"daybrief/internal/schedule"
	"daybrief/internal/synth"
)

const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS runtime (
		workspace TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		low_confidence_streak INTEGER NOT NULL DEFAULT 0,
		snoozed_until TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS triggers (
		workspace TEXT NOT NULL,
		type TEXT NOT NULL,
		id TEXT NOT NULL,
		enabled INTEGER NOT NULL DEFAULT 1,
		min_interval_minutes INTEGER NOT NULL DEFAULT 0,
		cooldown_minutes INTEGER NOT NULL DEFAULT 0,
		last_fired_at TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (workspace, type)
	)`,
	`CREATE TABLE IF NOT EXISTS presentations (
		workspace TEXT PRIMARY KEY,
		record_json TEXT NOT NULL,
		updated_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS telemetry_runs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		reasoning_mode TEXT NOT NULL,
		attempt INTEGER NOT NULL,
		validation_fail INTEGER NOT NULL,
		repair_used INTEGER NOT NULL,
		fallback_reason TEXT NOT NULL DEFAULT '',
		duration_ms INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS telemetry_decisions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at TEXT NOT NULL,
		trigger_type TEXT NOT NULL,
		fired INTEGER NOT NULL,
		reason TEXT NOT NULL
	)`,
}

// Store is the durable backing for one daybrief database file. It also
// implements synth.RunSink and schedule.DecisionSink; sink writes are
// fire-and-forget and never surface errors to the pipeline.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

// Open opens (creating if needed) the database at path and applies the
// schema. WAL mode and a busy timeout keep concurrent readers cheap.
func Open(path string, log *zap.Logger) (*Store, error) {
	if log == nil {
		log = zap.NewNop()
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			log.Debug("pragma failed", zap.String("pragma", pragma), zap.Error(err))
		}
	}

	s := &Store{db: db, log: log}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) ensureSchema() error {
	for _, stmt := range schemaStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if _, err := s.db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return fmt.Errorf("set schema version: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Runtime state
// ---------------------------------------------------------------------------

// SaveRuntime upserts the workspace runtime.
func (s *Store) SaveRuntime(ctx context.Context, workspace string, r schedule.Runtime) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runtime (workspace, mode, low_confidence_streak, snoozed_until)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(workspace) DO UPDATE SET
		   mode = excluded.mode,
		   low_confidence_streak = excluded.low_confidence_streak,
		   snoozed_until = excluded.snoozed_until`,
		workspace, string(r.Mode), r.LowConfidenceStreak, encodeTime(r.SnoozedUntil))
	if err != nil {
		return fmt.Errorf("save runtime: %w", err)
	}
	return nil
}

// LoadRuntime reads the workspace runtime; a missing row yields the zero
// runtime in normal mode.
func (s *Store) LoadRuntime(ctx context.Context, workspace string) (schedule.Runtime, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT mode, low_confidence_streak, snoozed_until FROM runtime WHERE workspace = ?`,
		workspace)

	var mode, snoozed string
	var streak int
	switch err := row.Scan(&mode, &streak, &snoozed); err {
	case nil:
	case sql.ErrNoRows:
		return schedule.Runtime{Mode: schedule.ModeNormal}, nil
	default:
		return schedule.Runtime{}, fmt.Errorf("load runtime: %w", err)
	}

	return schedule.Runtime{
		Mode:                schedule.Mode(mode),
		LowConfidenceStreak: streak,
		SnoozedUntil:        decodeTime(snoozed),
	}, nil
}

// ---------------------------------------------------------------------------
// Trigger bookkeeping
// ---------------------------------------------------------------------------

// SaveTriggers upserts every trigger state for the workspace.
func (s *Store) SaveTriggers(ctx context.Context, workspace string, triggers []schedule.TriggerState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save triggers: %w", err)
	}
	defer tx.Rollback()

	for _, t := range triggers {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO triggers (workspace, type, id, enabled, min_interval_minutes, cooldown_minutes, last_fired_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(workspace, type) DO UPDATE SET
			   id = excluded.id,
			   enabled = excluded.enabled,
			   min_interval_minutes = excluded.min_interval_minutes,
			   cooldown_minutes = excluded.cooldown_minutes,
			   last_fired_at = excluded.last_fired_at`,
			workspace, t.Type, t.ID, boolInt(t.Enabled),
			t.MinIntervalMinutes, t.CoolDownMinutes, encodeTime(t.LastFiredAt)); err != nil {
			return fmt.Errorf("save trigger %s: %w", t.Type, err)
		}
	}
	return tx.Commit()
}

// LoadTriggers reads all trigger states for the workspace.
func (s *Store) LoadTriggers(ctx context.Context, workspace string) ([]schedule.TriggerState, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT type, id, enabled, min_interval_minutes, cooldown_minutes, last_fired_at
		 FROM triggers WHERE workspace = ? ORDER BY type`,
		workspace)
	if err != nil {
		return nil, fmt.Errorf("load triggers: %w", err)
	}
	defer rows.Close()

	var out []schedule.TriggerState
	for rows.Next() {
		var t schedule.TriggerState
		var enabled int
		var lastFired string
		if err := rows.Scan(&t.Type, &t.ID, &enabled, &t.MinIntervalMinutes, &t.CoolDownMinutes, &lastFired); err != nil {
			return nil, fmt.Errorf("scan trigger: %w", err)
		}
		t.Enabled = enabled != 0
		t.LastFiredAt = decodeTime(lastFired)
		out = append(out, t)
	}
	return out, rows.Err()
}

// ---------------------------------------------------------------------------
// Presentation records
// ---------------------------------------------------------------------------

// SavePresentation upserts the workspace presentation record as JSON.
func (s *Store) SavePresentation(ctx context.Context, record *lifecycle.Record) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode presentation: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO presentations (workspace, record_json, updated_at)
		 VALUES (?, ?, ?)
		 ON CONFLICT(workspace) DO UPDATE SET
		   record_json = excluded.record_json,
		   updated_at = excluded.updated_at`,
		record.Workspace, string(payload), encodeTime(time.Now().UTC()))
	if err != nil {
		return fmt.Errorf("save presentation: %w", err)
	}
	return nil
}

// LoadPresentation reads the workspace presentation record, or returns a
// fresh empty record when none was saved yet.
func (s *Store) LoadPresentation(ctx context.Context, workspace string) (*lifecycle.Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT record_json FROM presentations WHERE workspace = ?`, workspace)

	var payload string
	switch err := row.Scan(&payload); err {
	case nil:
	case sql.ErrNoRows:
		return lifecycle.NewRecord(workspace), nil
	default:
		return nil, fmt.Errorf("load presentation: %w", err)
	}

	var record lifecycle.Record
	if err := json.Unmarshal([]byte(payload), &record); err != nil {
		return nil, fmt.Errorf("decode presentation: %w", err)
	}
	return &record, nil
}

// ---------------------------------------------------------------------------
// Telemetry sinks
// ---------------------------------------------------------------------------

// RecordRun implements synth.RunSink.
func (s *Store) RecordRun(t synth.Telemetry) {
	_, err := s.db.Exec(
		`INSERT INTO telemetry_runs (at, reasoning_mode, attempt, validation_fail, repair_used, fallback_reason, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		encodeTime(time.Now().UTC()), string(t.ReasoningMode), t.Attempt,
		boolInt(t.ValidationFail), boolInt(t.RepairUsed), string(t.FallbackReason), t.DurationMS)
	if err != nil {
		s.log.Warn("telemetry run write failed", zap.Error(err))
	}
}

// RecordDecision implements schedule.DecisionSink.
func (s *Store) RecordDecision(d schedule.Decision) {
	_, err := s.db.Exec(
		`INSERT INTO telemetry_decisions (at, trigger_type, fired, reason) VALUES (?, ?, ?, ?)`,
		encodeTime(d.At), d.TriggerType, boolInt(d.Fired), string(d.Reason))
	if err != nil {
		s.log.Warn("telemetry decision write failed", zap.Error(err))
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func encodeTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func decodeTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
