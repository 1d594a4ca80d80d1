// Package persistence provides SQLite-based run storage: per-tick world
// and ledger snapshots, the event stream, and run metadata. Snapshots are
// stored as JSON blobs keyed by run and tick, so any tick of any run can
// be inspected or replayed after the fact.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/venturesim/internal/bus"
	"github.com/talgya/venturesim/internal/sim"
	"github.com/talgya/venturesim/internal/store"
)

const schemaVersion = "1"

// DB wraps a SQLite connection for run persistence.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		scenario TEXT NOT NULL,
		seed INTEGER NOT NULL,
		state TEXT NOT NULL,
		reason TEXT,
		ticks INTEGER NOT NULL DEFAULT 0,
		started_at TEXT NOT NULL,
		finished_at TEXT
	);

	CREATE TABLE IF NOT EXISTS snapshots (
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		day INTEGER NOT NULL,
		world_json TEXT NOT NULL,
		ledger_json TEXT NOT NULL,
		kpis_json TEXT NOT NULL,
		PRIMARY KEY (run_id, tick)
	);

	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		tick INTEGER NOT NULL,
		type TEXT NOT NULL,
		origin TEXT NOT NULL,
		payload_json TEXT
	);

	CREATE TABLE IF NOT EXISTS run_meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_events_run_tick ON events(run_id, tick);
	CREATE INDEX IF NOT EXISTS idx_snapshots_run ON snapshots(run_id);
	`
	if _, err := db.conn.Exec(schema); err != nil {
		return err
	}
	return db.SaveMeta("schema_version", schemaVersion)
}

// BeginRun registers a run before its first tick.
func (db *DB) BeginRun(runID, scenario string, seed int64) error {
	_, err := db.conn.Exec(
		`INSERT INTO runs (run_id, scenario, seed, state, started_at)
		 VALUES (?, ?, ?, 'running', ?)`,
		runID, scenario, seed, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("begin run %s: %w", runID, err)
	}
	return nil
}

// FinishRun records a run's terminal state.
func (db *DB) FinishRun(runID string, res sim.Result) error {
	_, err := db.conn.Exec(
		`UPDATE runs SET state = ?, reason = ?, ticks = ?, finished_at = ? WHERE run_id = ?`,
		res.State.String(), string(res.Reason), res.Ticks,
		time.Now().UTC().Format(time.RFC3339), runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// SaveSnapshot writes one end-of-tick snapshot (full replace on replays).
func (db *DB) SaveSnapshot(runID string, snap sim.Snapshot) error {
	worldJSON, err := json.Marshal(snap.World)
	if err != nil {
		return fmt.Errorf("marshal world: %w", err)
	}
	ledgerJSON, err := json.Marshal(snap.Ledger)
	if err != nil {
		return fmt.Errorf("marshal ledger: %w", err)
	}
	kpisJSON, err := json.Marshal(snap.KPIs)
	if err != nil {
		return fmt.Errorf("marshal kpis: %w", err)
	}

	_, err = db.conn.Exec(
		`INSERT OR REPLACE INTO snapshots (run_id, tick, day, world_json, ledger_json, kpis_json)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, snap.Tick, snap.Day,
		string(worldJSON), string(ledgerJSON), string(kpisJSON),
	)
	if err != nil {
		return fmt.Errorf("save snapshot %s/%d: %w", runID, snap.Tick, err)
	}
	return nil
}

// LoadSnapshot reads back one tick of one run.
func (db *DB) LoadSnapshot(runID string, tick uint64) (sim.Snapshot, error) {
	var row struct {
		Tick       uint64 `db:"tick"`
		Day        uint64 `db:"day"`
		WorldJSON  string `db:"world_json"`
		LedgerJSON string `db:"ledger_json"`
		KPIsJSON   string `db:"kpis_json"`
	}
	err := db.conn.Get(&row,
		"SELECT tick, day, world_json, ledger_json, kpis_json FROM snapshots WHERE run_id = ? AND tick = ?",
		runID, tick,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return sim.Snapshot{}, fmt.Errorf("no snapshot for run %s tick %d", runID, tick)
	}
	if err != nil {
		return sim.Snapshot{}, fmt.Errorf("load snapshot %s/%d: %w", runID, tick, err)
	}

	snap := sim.Snapshot{Tick: row.Tick, Day: row.Day}
	if err := json.Unmarshal([]byte(row.WorldJSON), &snap.World); err != nil {
		return sim.Snapshot{}, fmt.Errorf("unmarshal world: %w", err)
	}
	if err := json.Unmarshal([]byte(row.LedgerJSON), &snap.Ledger); err != nil {
		return sim.Snapshot{}, fmt.Errorf("unmarshal ledger: %w", err)
	}
	if err := json.Unmarshal([]byte(row.KPIsJSON), &snap.KPIs); err != nil {
		return sim.Snapshot{}, fmt.Errorf("unmarshal kpis: %w", err)
	}
	return snap, nil
}

// LatestTick returns the highest persisted tick for a run, or 0 when the
// run has no snapshots.
func (db *DB) LatestTick(runID string) (uint64, error) {
	var tick sql.NullInt64
	err := db.conn.Get(&tick, "SELECT MAX(tick) FROM snapshots WHERE run_id = ?", runID)
	if err != nil {
		return 0, fmt.Errorf("latest tick %s: %w", runID, err)
	}
	if !tick.Valid {
		return 0, nil
	}
	return uint64(tick.Int64), nil
}

// SaveEvents appends a batch of bus events for a run.
func (db *DB) SaveEvents(runID string, events []bus.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Preparex(
		"INSERT INTO events (run_id, tick, type, origin, payload_json) VALUES (?, ?, ?, ?, ?)")
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		payloadJSON, _ := json.Marshal(e.Payload)
		if _, err := stmt.Exec(runID, e.Tick, string(e.Type), e.Origin, string(payloadJSON)); err != nil {
			return fmt.Errorf("insert event %s@%d: %w", e.Type, e.Tick, err)
		}
	}

	return tx.Commit()
}

// EventRow is one stored event, payload as raw JSON.
type EventRow struct {
	Tick    uint64 `db:"tick"`
	Type    string `db:"type"`
	Origin  string `db:"origin"`
	Payload string `db:"payload_json"`
}

// RecentEvents returns the most recent N events of a run, newest first.
func (db *DB) RecentEvents(runID string, limit int) ([]EventRow, error) {
	var rows []EventRow
	err := db.conn.Select(&rows,
		"SELECT tick, type, origin, payload_json FROM events WHERE run_id = ? ORDER BY id DESC LIMIT ?",
		runID, limit,
	)
	return rows, err
}

// SaveMeta stores a key-value pair in run metadata.
func (db *DB) SaveMeta(key, value string) error {
	_, err := db.conn.Exec(
		"INSERT OR REPLACE INTO run_meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM run_meta WHERE key = ?", key)
	return value, err
}

// SaveResult performs the full end-of-run save: final snapshot, remaining
// events, and the run record.
func (db *DB) SaveResult(runID string, res sim.Result, events []bus.Event) error {
	slog.Info("saving run", "run_id", runID, "state", res.State, "ticks", res.Ticks)

	final := res.Final
	if res.State == sim.Failed {
		final = res.LastValid
	}
	if final.World != nil {
		if err := db.SaveSnapshot(runID, final); err != nil {
			return err
		}
	}
	if err := db.SaveEvents(runID, events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	if err := db.FinishRun(runID, res); err != nil {
		return err
	}

	slog.Info("run saved", "run_id", runID)
	return nil
}

// WorldPersister adapts the database to the store's Persister interface
// for a single named slot.
type WorldPersister struct {
	db   *DB
	slot string
}

// NewWorldPersister creates a persister that saves under the given slot
// name in run metadata.
func (db *DB) NewWorldPersister(slot string) *WorldPersister {
	return &WorldPersister{db: db, slot: slot}
}

// SaveWorld serializes the world into the persister's slot.
func (p *WorldPersister) SaveWorld(w *store.WorldState) error {
	b, err := json.Marshal(w)
	if err != nil {
		return fmt.Errorf("marshal world: %w", err)
	}
	return p.db.SaveMeta("world:"+p.slot, string(b))
}

// LoadWorld deserializes the world from the persister's slot.
func (p *WorldPersister) LoadWorld() (*store.WorldState, error) {
	raw, err := p.db.GetMeta("world:" + p.slot)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNoSavedWorld
	}
	if err != nil {
		return nil, fmt.Errorf("load world: %w", err)
	}
	var w store.WorldState
	if err := json.Unmarshal([]byte(raw), &w); err != nil {
		return nil, fmt.Errorf("unmarshal world: %w", err)
	}
	return &w, nil
}
