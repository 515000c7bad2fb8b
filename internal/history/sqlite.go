package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"battery-dispatch/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS cycles (
    id           TEXT PRIMARY KEY,
    at           DATETIME NOT NULL,
    mode         TEXT     NOT NULL,
    power_kw     REAL     NOT NULL DEFAULT 0,
    export       INTEGER  NOT NULL DEFAULT 0,
    reason       TEXT,
    soc          REAL     NOT NULL DEFAULT 0,
    price        REAL,
    target_soc   REAL,
    cap_soc      REAL,
    reservation  INTEGER  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS plan_entries (
    cycle_id   TEXT NOT NULL,
    horizon    TEXT NOT NULL,
    hour_start DATETIME NOT NULL,
    mode       TEXT NOT NULL,
    power_kw   REAL NOT NULL DEFAULT 0,
    soc        REAL NOT NULL DEFAULT 0,
    buy_price  REAL NOT NULL DEFAULT 0,
    PRIMARY KEY (cycle_id, horizon, hour_start)
);

CREATE INDEX IF NOT EXISTS idx_cycles_at ON cycles(at DESC);
`

const retention = 30 * 24 * time.Hour

// Store keeps a local record of every dispatch cycle: the applied decision
// plus the two forecast documents. SQLite, pure Go driver, single writer.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database, applies the schema and prunes
// cycles older than the retention window.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history.Open: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("history.Open: apply schema: %w", err)
	}

	s := &Store{db: db}
	s.pruneOld(context.Background())
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CycleRecord is the persisted summary of one dispatch cycle.
type CycleRecord struct {
	At           time.Time
	Decision     model.Decision
	SoC          float64
	Price        float64
	TargetSoC    *float64
	CapSoC       float64
	Reservation  bool
	PlanToday    model.Plan
	PlanTomorrow *model.Plan
}

// RecordCycle persists the summary row and the plan entries in one
// transaction.
func (s *Store) RecordCycle(ctx context.Context, rec CycleRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history.RecordCycle: begin: %w", err)
	}
	defer tx.Rollback()

	id := uuid.NewString()
	_, err = tx.ExecContext(ctx, `
		INSERT INTO cycles (id, at, mode, power_kw, export, reason, soc, price, target_soc, cap_soc, reservation)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, rec.At.UTC(), string(rec.Decision.Mode), rec.Decision.PowerKW, rec.Decision.Export,
		rec.Decision.Reason, rec.SoC, rec.Price, rec.TargetSoC, rec.CapSoC, rec.Reservation,
	)
	if err != nil {
		return fmt.Errorf("history.RecordCycle: insert cycle: %w", err)
	}

	if err := insertEntries(ctx, tx, id, "today", rec.PlanToday.Entries); err != nil {
		return err
	}
	if rec.PlanTomorrow != nil {
		if err := insertEntries(ctx, tx, id, "tomorrow", rec.PlanTomorrow.Entries); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("history.RecordCycle: commit: %w", err)
	}
	return nil
}

func insertEntries(ctx context.Context, tx *sql.Tx, cycleID, horizon string, entries []model.PlanEntry) error {
	for _, e := range entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO plan_entries (cycle_id, horizon, hour_start, mode, power_kw, soc, buy_price)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			cycleID, horizon, e.HourStart.UTC(), string(e.Mode), e.PowerKW, e.SoC, e.BuyPrice,
		)
		if err != nil {
			return fmt.Errorf("history.RecordCycle: insert %s entry: %w", horizon, err)
		}
	}
	return nil
}

func (s *Store) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retention)
	s.db.ExecContext(ctx, `DELETE FROM plan_entries WHERE cycle_id IN (SELECT id FROM cycles WHERE at < ?)`, cutoff)
	s.db.ExecContext(ctx, `DELETE FROM cycles WHERE at < ?`, cutoff)
}
