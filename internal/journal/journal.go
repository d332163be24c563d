// Package journal persists patch stream lines to sqlite so streams can be
// replayed deterministically after a crash or for offline inspection.
package journal

import (
	"database/sql"
	"embed"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Journal is an append-only log of patch lines keyed by stream.
type Journal struct {
	db *sql.DB
}

// Entry is one journaled patch line.
type Entry struct {
	StreamID   string
	Seq        int
	Line       string
	ReceivedAt time.Time
}

// StreamInfo summarizes one journaled stream.
type StreamInfo struct {
	StreamID  string
	Lines     int
	FirstSeen time.Time
	LastSeen  time.Time
}

// Open opens (or creates) a journal database at path and runs pending
// schema migrations. Use ":memory:" for an ephemeral journal.
func Open(path string) (*Journal, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	// sqlite allows a single writer; serializing through one connection
	// avoids SQLITE_BUSY under concurrent appends.
	db.SetMaxOpenConns(1)

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set dialect: %w", err)
	}
	if err := goose.Up(db, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("journal migration failed: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the underlying database.
func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Append records one patch line for a stream. Appending the same
// (stream, seq) twice is ignored so replayed input stays idempotent.
func (j *Journal) Append(streamID string, seq int, line string) error {
	_, err := j.db.Exec(
		`INSERT INTO patch_lines (stream_id, seq, line, received_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (stream_id, seq) DO NOTHING`,
		streamID, seq, line, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// Replay returns all lines for a stream ordered by sequence number.
func (j *Journal) Replay(streamID string) ([]Entry, error) {
	rows, err := j.db.Query(
		`SELECT stream_id, seq, line, received_at
		 FROM patch_lines WHERE stream_id = ? ORDER BY seq`,
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to replay stream %s: %w", streamID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.StreamID, &e.Seq, &e.Line, &e.ReceivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal replay iteration failed: %w", err)
	}
	return entries, nil
}

// Streams lists all journaled streams with line counts and timestamps,
// most recent first.
func (j *Journal) Streams() ([]StreamInfo, error) {
	rows, err := j.db.Query(
		`SELECT stream_id, COUNT(*), MIN(received_at), MAX(received_at)
		 FROM patch_lines GROUP BY stream_id ORDER BY MAX(received_at) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal streams: %w", err)
	}
	defer rows.Close()

	var streams []StreamInfo
	for rows.Next() {
		var s StreamInfo
		if err := rows.Scan(&s.StreamID, &s.Lines, &s.FirstSeen, &s.LastSeen); err != nil {
			return nil, fmt.Errorf("failed to scan stream info: %w", err)
		}
		streams = append(streams, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal stream iteration failed: %w", err)
	}
	return streams, nil
}

// Count returns the number of journaled lines for a stream.
func (j *Journal) Count(streamID string) (int, error) {
	var n int
	err := j.db.QueryRow(
		`SELECT COUNT(*) FROM patch_lines WHERE stream_id = ?`, streamID,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return n, nil
}

// Delete removes all lines for a stream.
func (j *Journal) Delete(streamID string) error {
	if _, err := j.db.Exec(`DELETE FROM patch_lines WHERE stream_id = ?`, streamID); err != nil {
		return fmt.Errorf("failed to delete stream %s: %w", streamID, err)
	}
	return nil
}

// Prune removes all streams whose most recent line is older than cutoff.
// It returns the number of lines removed.
func (j *Journal) Prune(cutoff time.Time) (int, error) {
	res, err := j.db.Exec(
		`DELETE FROM patch_lines WHERE stream_id IN (
			SELECT stream_id FROM patch_lines
			GROUP BY stream_id HAVING MAX(received_at) < ?
		)`,
		cutoff.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("journal prune failed: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}
