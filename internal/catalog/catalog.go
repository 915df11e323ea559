// Package catalog indexes produced captures in SQLite so operators can find
// a session without walking the dataset tree.
package catalog

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/mito-data/radar.capture/internal/capture"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Catalog wraps the SQLite session index.
type Catalog struct {
	*sql.DB
}

// Open opens (or creates) the catalog database and applies pending
// migrations.
func Open(path string) (*Catalog, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog at %s: %w", path, err)
	}

	c := &Catalog{db}
	if err := c.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) migrateUp() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load embedded migrations: %w", err)
	}
	driver, err := sqlite.WithInstance(c.DB, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create sqlite driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}
	// Note: We don't close m here because it would close the underlying DB connection.

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration up failed: %w", err)
	}
	return nil
}

// SessionRecord is one catalogued capture.
type SessionRecord struct {
	SessionID        string
	CaptureStartTime float64
	FrameCount       int
	TargetFrameCount int
	RawBytes         int64
	BinPath          string
	Stalled          bool
	RecordedAt       time.Time
}

// RecordReceipt indexes a persisted receipt under its resolved artifact path.
func (c *Catalog) RecordReceipt(receipt *capture.Receipt, binPath string) error {
	if receipt == nil {
		return errors.New("catalog: nil receipt")
	}
	meta := receipt.Metadata()
	_, err := c.Exec(`
		INSERT INTO capture_sessions
			(session_id, capture_start_time, frame_count, target_frame_count, raw_bytes, bin_path, stalled)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		receipt.SessionID, meta.CaptureStartTime, receipt.FrameCount,
		receipt.TargetFrameCount, int64(len(receipt.RawBytes)), binPath, receipt.Stalled)
	if err != nil {
		return fmt.Errorf("catalog: recording session %s: %w", receipt.SessionID, err)
	}
	return nil
}

// Session looks up one record by session id.
func (c *Catalog) Session(sessionID string) (*SessionRecord, error) {
	row := c.QueryRow(`
		SELECT session_id, capture_start_time, frame_count, target_frame_count, raw_bytes, bin_path, stalled, recorded_at
		FROM capture_sessions WHERE session_id = ?`, sessionID)

	var rec SessionRecord
	if err := row.Scan(&rec.SessionID, &rec.CaptureStartTime, &rec.FrameCount,
		&rec.TargetFrameCount, &rec.RawBytes, &rec.BinPath, &rec.Stalled, &rec.RecordedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecentSessions returns the newest records, most recent capture first.
func (c *Catalog) RecentSessions(limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := c.Query(`
		SELECT session_id, capture_start_time, frame_count, target_frame_count, raw_bytes, bin_path, stalled, recorded_at
		FROM capture_sessions ORDER BY capture_start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var rec SessionRecord
		if err := rows.Scan(&rec.SessionID, &rec.CaptureStartTime, &rec.FrameCount,
			&rec.TargetFrameCount, &rec.RawBytes, &rec.BinPath, &rec.Stalled, &rec.RecordedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
