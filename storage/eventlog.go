package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// EventRecord is a journaled escrow event. Sequence numbers start at 1 and
// increase without gaps.
type EventRecord struct {
	Sequence   int64             `json:"sequence"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
	Timestamp  time.Time         `json:"timestamp"`
}

// PendingEvent is an event waiting to be journaled.
type PendingEvent struct {
	Type       string
	Attributes map[string]string
}

// EventLog persists escrow events in SQLite for cursor-based reads.
type EventLog struct {
	db *sql.DB
}

// OpenEventLog opens (creating if needed) the journal at path. ":memory:"
// yields a private in-memory journal.
func OpenEventLog(path string) (*EventLog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection keeps sequence assignment serialized and lets an
	// in-memory database survive between calls.
	db.SetMaxOpenConns(1)
	log := &EventLog{db: db}
	if err := log.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return log, nil
}

func (l *EventLog) init() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS events (
            sequence INTEGER PRIMARY KEY,
            type TEXT NOT NULL,
            payload TEXT NOT NULL,
            created_at TIMESTAMP NOT NULL
        );`,
		`CREATE INDEX IF NOT EXISTS events_type ON events(type);`,
	}
	for _, stmt := range schema {
		if _, err := l.db.Exec(stmt); err != nil {
			return fmt.Errorf("eventlog: init schema: %w", err)
		}
	}
	return nil
}

// Append journals events in one transaction and returns them with their
// assigned sequence numbers.
func (l *EventLog) Append(ctx context.Context, pending []PendingEvent, at time.Time) (records []EventRecord, err error) {
	if len(pending) == 0 {
		return nil, nil
	}
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, tx.Rollback())
		}
	}()

	var last sql.NullInt64
	if err = tx.QueryRowContext(ctx, `SELECT MAX(sequence) FROM events`).Scan(&last); err != nil {
		return nil, fmt.Errorf("eventlog: read head: %w", err)
	}
	next := last.Int64 + 1
	at = at.UTC()
	records = make([]EventRecord, 0, len(pending))
	for _, evt := range pending {
		payload, mErr := json.Marshal(evt.Attributes)
		if mErr != nil {
			err = fmt.Errorf("eventlog: encode %s: %w", evt.Type, mErr)
			return nil, err
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO events(sequence, type, payload, created_at) VALUES(?, ?, ?, ?)`,
			next, evt.Type, string(payload), at,
		); err != nil {
			return nil, fmt.Errorf("eventlog: insert: %w", err)
		}
		records = append(records, EventRecord{
			Sequence:   next,
			Type:       evt.Type,
			Attributes: evt.Attributes,
			Timestamp:  at,
		})
		next++
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("eventlog: commit: %w", err)
	}
	return records, nil
}

// List returns up to limit events with a sequence greater than after, in
// order. An empty eventType matches every type.
func (l *EventLog) List(ctx context.Context, after int64, limit int, eventType string) ([]EventRecord, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT sequence, type, payload, created_at FROM events
         WHERE sequence > ? AND (? = '' OR type = ?)
         ORDER BY sequence ASC LIMIT ?`,
		after, eventType, eventType, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("eventlog: query: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var (
			rec     EventRecord
			payload string
		)
		if err := rows.Scan(&rec.Sequence, &rec.Type, &payload, &rec.Timestamp); err != nil {
			return nil, fmt.Errorf("eventlog: scan: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Attributes); err != nil {
			return nil, fmt.Errorf("eventlog: decode %d: %w", rec.Sequence, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Head returns the latest sequence number, or zero for an empty journal.
func (l *EventLog) Head(ctx context.Context) (int64, error) {
	var last sql.NullInt64
	if err := l.db.QueryRowContext(ctx, `SELECT MAX(sequence) FROM events`).Scan(&last); err != nil {
		return 0, err
	}
	return last.Int64, nil
}

// Close releases the database handle.
func (l *EventLog) Close() error {
	return l.db.Close()
}
