// Package ledger keeps an append-only SQLite record of the actions the bot
// performed, used for daily budgets and hourly stats.
package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// DB wraps the SQLite action ledger.
type DB struct{ sql *sql.DB }

func Open(path string) (*DB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Every pooled connection would get its own empty in-memory database.
		d.SetMaxOpenConns(1)
	}
	if _, err := d.Exec(`PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;`); err != nil {
		_ = d.Close()
		return nil, err
	}
	db := &DB{sql: d}
	if err := db.migrate(); err != nil {
		_ = d.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error { return d.sql.Close() }

func (d *DB) migrate() error {
	_, err := d.sql.Exec(`
	CREATE TABLE IF NOT EXISTS events (
	  id INTEGER PRIMARY KEY AUTOINCREMENT,
	  ts INTEGER NOT NULL,
	  type TEXT NOT NULL,
	  ref TEXT NOT NULL DEFAULT '',
	  payload TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_events_ts ON events(ts);
	CREATE INDEX IF NOT EXISTS idx_events_type_ts ON events(type, ts);
	`)
	return err
}

// Event is a stored action.
type Event struct {
	TS      time.Time
	Type    string
	Ref     string
	Payload string
}

// PutEvent stores an action of type typ about ref (post id, bucket, ...).
func (d *DB) PutEvent(ctx context.Context, ts time.Time, typ, ref string, payload any) error {
	var pstr *string
	if payload != nil {
		pb, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		ps := string(pb)
		pstr = &ps
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO events(ts, type, ref, payload) VALUES(?,?,?,?)`, ts.UnixMilli(), typ, ref, pstr)
	return err
}

// CountWithin counts events in [start,end) whose type is one of types (any
// type when none are given).
func (d *DB) CountWithin(ctx context.Context, start, end time.Time, types ...string) (int, error) {
	q := `SELECT COUNT(*) FROM events WHERE ts>=? AND ts<?`
	args := []any{start.UnixMilli(), end.UnixMilli()}
	if len(types) > 0 {
		q += ` AND type IN (?` + strings.Repeat(",?", len(types)-1) + `)`
		for _, t := range types {
			args = append(args, t)
		}
	}
	var n int
	err := d.sql.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// LoadEventsRange returns events in [start, end), optionally filtered by type.
func (d *DB) LoadEventsRange(ctx context.Context, start, end time.Time, typ string) ([]Event, error) {
	q := `SELECT ts, type, ref, COALESCE(payload, '') FROM events WHERE ts>=? AND ts<?`
	args := []any{start.UnixMilli(), end.UnixMilli()}
	if typ != "" {
		q += ` AND type=?`
		args = append(args, typ)
	}
	q += ` ORDER BY ts, id`
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Event
	for rows.Next() {
		var ts int64
		var e Event
		if err := rows.Scan(&ts, &e.Type, &e.Ref, &e.Payload); err != nil {
			return nil, err
		}
		e.TS = time.UnixMilli(ts).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}
