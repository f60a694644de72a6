package recorder

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// SQLiteRecorder persists cycle history to a SQLite database.
type SQLiteRecorder struct {
	db  *sql.DB
	mu  sync.Mutex
	log zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, log zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while cycles write.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, log: log.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cycles (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			cycle_id    TEXT NOT NULL,
			kind        TEXT,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER,
			inserted    INTEGER,
			updated     INTEGER,
			skipped     INTEGER,
			classified  INTEGER,
			note        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_started ON cycles(started_at)`,

		`CREATE TABLE IF NOT EXISTS phases (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			cycle_id    TEXT NOT NULL,
			phase       INTEGER,
			target      TEXT,
			selected    INTEGER,
			succeeded   INTEGER,
			failed      INTEGER,
			error       TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_phases_cycle ON phases(cycle_id)`,

		`CREATE TABLE IF NOT EXISTS price_changes (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp   INTEGER NOT NULL,
			cycle_id    TEXT NOT NULL,
			item_id     INTEGER,
			listing_id  TEXT,
			sku         TEXT,
			old_price   REAL,
			new_price   REAL,
			reason      TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_price_changes_item ON price_changes(item_id)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordCycle(evt *CycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO cycles
		(cycle_id, kind, started_at, finished_at, inserted, updated, skipped, classified, note)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		evt.CycleID, evt.Kind, evt.StartedAt.Unix(), evt.FinishedAt.Unix(),
		evt.Inserted, evt.Updated, evt.Skipped, evt.Classified, evt.Note,
	)
	return err
}

func (r *SQLiteRecorder) RecordPhase(evt *PhaseEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO phases
		(timestamp, cycle_id, phase, target, selected, succeeded, failed, error)
		VALUES (?,?,?,?,?,?,?,?)`,
		time.Now().Unix(), evt.CycleID, evt.Phase, evt.Target,
		evt.Selected, evt.Succeeded, evt.Failed, evt.Error,
	)
	return err
}

func (r *SQLiteRecorder) RecordPriceChanges(changes []PriceChange) error {
	if len(changes) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return err
	}
	now := time.Now().Unix()
	for _, c := range changes {
		if _, err := tx.Exec(`INSERT INTO price_changes
			(timestamp, cycle_id, item_id, listing_id, sku, old_price, new_price, reason)
			VALUES (?,?,?,?,?,?,?,?)`,
			now, c.CycleID, c.ItemID, c.ListingID, c.SKU, c.OldPrice, c.NewPrice, c.Reason,
		); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) Close() error {
	r.log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
