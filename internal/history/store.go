// Package history persists the deduplicator's state to SQLite so alerts
// announced in a previous run stay suppressed after a restart.
package history

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/couchcryptid/weather-alert-monitor/internal/domain"
)

// Store wraps SQLite access for the seen-alert set and the bounded
// alert history table.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the history database at path and runs
// migrations. A brand-new database loads as an empty snapshot.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate history db: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS seen_alerts (
			id TEXT PRIMARY KEY
		);`,
		`CREATE TABLE IF NOT EXISTS alert_history (
			position INTEGER PRIMARY KEY,
			id TEXT NOT NULL,
			title TEXT NOT NULL,
			summary TEXT,
			event TEXT,
			severity TEXT,
			urgency TEXT,
			location TEXT,
			observed_at TIMESTAMP,
			expires_at TIMESTAMP
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the persisted snapshot. Position 0 is the newest history row,
// matching the deduplicator's newest-first ordering.
func (s *Store) Load(ctx context.Context) (domain.DedupSnapshot, error) {
	var snap domain.DedupSnapshot

	rows, err := s.db.QueryContext(ctx, `SELECT id FROM seen_alerts ORDER BY id ASC`)
	if err != nil {
		return snap, fmt.Errorf("load seen alerts: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return snap, fmt.Errorf("scan seen alert: %w", err)
		}
		snap.SeenIDs = append(snap.SeenIDs, id)
	}
	if err := rows.Err(); err != nil {
		return snap, fmt.Errorf("load seen alerts: %w", err)
	}

	histRows, err := s.db.QueryContext(ctx, `SELECT id, title, summary, event, severity, urgency, location, observed_at, expires_at
		FROM alert_history ORDER BY position ASC`)
	if err != nil {
		return snap, fmt.Errorf("load alert history: %w", err)
	}
	defer histRows.Close()
	for histRows.Next() {
		var (
			rec      domain.AlertRecord
			observed sql.NullTime
			expires  sql.NullTime
		)
		if err := histRows.Scan(&rec.ID, &rec.Title, &rec.Summary, &rec.Event, &rec.Severity,
			&rec.Urgency, &rec.Location, &observed, &expires); err != nil {
			return snap, fmt.Errorf("scan history row: %w", err)
		}
		if observed.Valid {
			rec.ObservedAt = observed.Time
		}
		if expires.Valid {
			rec.ExpiresAt = expires.Time
		}
		snap.History = append(snap.History, rec)
	}
	if err := histRows.Err(); err != nil {
		return snap, fmt.Errorf("load alert history: %w", err)
	}

	return snap, nil
}

// Save replaces the persisted state with snap in a single transaction, so a
// crash mid-save leaves the previous state intact.
func (s *Store) Save(ctx context.Context, snap domain.DedupSnapshot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_alerts`); err != nil {
		return fmt.Errorf("clear seen alerts: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM alert_history`); err != nil {
		return fmt.Errorf("clear alert history: %w", err)
	}

	for _, id := range snap.SeenIDs {
		if _, err := tx.ExecContext(ctx, `INSERT INTO seen_alerts(id) VALUES(?)`, id); err != nil {
			return fmt.Errorf("insert seen alert: %w", err)
		}
	}
	for pos, rec := range snap.History {
		if _, err := tx.ExecContext(ctx, `INSERT INTO alert_history(position, id, title, summary, event, severity, urgency, location, observed_at, expires_at)
			VALUES(?,?,?,?,?,?,?,?,?,?)`,
			pos, rec.ID, rec.Title, rec.Summary, rec.Event, rec.Severity, rec.Urgency, rec.Location,
			rec.ObservedAt, rec.ExpiresAt); err != nil {
			return fmt.Errorf("insert history row: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}
