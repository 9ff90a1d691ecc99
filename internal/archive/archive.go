// Package archive provides an optional SQLite trail of relayed records.
// The in-memory store stays authoritative; archive writes are best effort
// and a failure never surfaces past a log line. The trail feeds the
// history subcommand.
package archive

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stratagem/dispatchd/internal/emergency"
)

// DB wraps an SQLite connection for the record trail.
type DB struct {
	db *sql.DB
}

// Open opens or creates an SQLite database at the given path.
func Open(path string) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening archive: %w", err)
	}

	// Single writer connection to avoid SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating archive: %w", err)
	}

	return &DB{db: db}, nil
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Insert stores an ingested record in the trail.
func (d *DB) Insert(rec emergency.Record) error {
	units, err := json.Marshal(rec.AssignedUnits)
	if err != nil {
		units = []byte("[]")
	}
	images, err := json.Marshal(rec.Images)
	if err != nil {
		images = []byte("[]")
	}

	_, err = d.db.Exec(`
		INSERT INTO records (id, title, description, address, priority, status, severity, reported_by, assigned_units, images, timestamp, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID.String(),
		rec.Title,
		rec.Description,
		rec.Address,
		string(rec.Priority),
		string(rec.Status),
		rec.Severity,
		string(rec.ReportedBy),
		string(units),
		string(images),
		rec.Timestamp.UTC().Format(time.RFC3339Nano),
		timeOrEmpty(rec.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

// UpdateStatus mirrors a status mutation into the trail.
func (d *DB) UpdateStatus(id emergency.ID, status emergency.Status, updatedAt time.Time) error {
	_, err := d.db.Exec(`UPDATE records SET status = ?, updated_at = ? WHERE id = ?`,
		string(status),
		updatedAt.UTC().Format(time.RFC3339Nano),
		id.String(),
	)
	if err != nil {
		return fmt.Errorf("updating record status: %w", err)
	}
	return nil
}

// QueryFilter controls which records are returned by Query.
type QueryFilter struct {
	Since    time.Time
	Status   string
	Priority string
	Limit    int
}

// Query returns archived records matching the filter, newest first.
func (d *DB) Query(f QueryFilter) ([]emergency.Record, error) {
	query := `SELECT id, title, description, address, priority, status, severity, reported_by, assigned_units, images, timestamp, updated_at
		FROM records WHERE 1=1`
	var args []interface{}

	if !f.Since.IsZero() {
		query += " AND timestamp >= ?"
		args = append(args, f.Since.UTC().Format(time.RFC3339Nano))
	}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.Priority != "" {
		query += " AND priority = ?"
		args = append(args, strings.ToLower(f.Priority))
	}

	query += " ORDER BY timestamp DESC"

	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var records []emergency.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Count returns the number of archived records.
func (d *DB) Count() (int, error) {
	var n int
	err := d.db.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&n)
	return n, err
}

func scanRecord(rows *sql.Rows) (emergency.Record, error) {
	var rec emergency.Record
	var id, tsStr string
	var reportedBy, units, images, updatedAt sql.NullString

	err := rows.Scan(
		&id,
		&rec.Title,
		&rec.Description,
		&rec.Address,
		&rec.Priority,
		&rec.Status,
		&rec.Severity,
		&reportedBy,
		&units,
		&images,
		&tsStr,
		&updatedAt,
	)
	if err != nil {
		return emergency.Record{}, fmt.Errorf("scanning record row: %w", err)
	}

	rec.ID = emergency.ID(id)
	rec.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
	if updatedAt.String != "" {
		rec.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt.String)
	}
	if reportedBy.String != "" {
		rec.ReportedBy = json.RawMessage(reportedBy.String)
	}
	if units.String != "" {
		_ = json.Unmarshal([]byte(units.String), &rec.AssignedUnits)
	}
	if images.String != "" {
		_ = json.Unmarshal([]byte(images.String), &rec.Images)
	}

	return rec, nil
}

func timeOrEmpty(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func migrate(db *sql.DB) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS records (
			id             TEXT PRIMARY KEY,
			title          TEXT NOT NULL,
			description    TEXT,
			address        TEXT,
			priority       TEXT,
			status         TEXT NOT NULL,
			severity       INTEGER,
			reported_by    TEXT,
			assigned_units TEXT,
			images         TEXT,
			timestamp      TEXT NOT NULL,
			updated_at     TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_records_ts ON records(timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_records_status ON records(status, timestamp)`,
	}

	for _, m := range migrations {
		if _, err := db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}

	slog.Debug("archive schema up to date")
	return nil
}
