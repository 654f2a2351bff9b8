// Package store persists mapped detections to SQLite so runs can be
// queried after the fact.
package store

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"gridsight-go/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS detections (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	frame_seq  INTEGER NOT NULL,
	class      TEXT NOT NULL,
	score      REAL NOT NULL,
	x          REAL NOT NULL,
	y          REAL NOT NULL,
	w          REAL NOT NULL,
	h          REAL NOT NULL,
	frame_ts   REAL NOT NULL,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_detections_frame ON detections(frame_seq);
CREATE INDEX IF NOT EXISTS idx_detections_class ON detections(class);
`

// Store wraps one SQLite database holding detection events. It
// implements the pipeline sink.
type Store struct {
	db *sql.DB
}

// Open opens or creates the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open detection store: %w", err)
	}
	// SQLite allows one writer; serialize through a single conn.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply detection schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Record inserts one frame's detections inside a transaction.
// created_at is the receive time; the runner timestamp may be
// run-relative, so it is kept verbatim in frame_ts instead.
func (s *Store) Record(frameSeq uint64, timestamp float64, detections []types.Detection) error {
	if len(detections) == 0 {
		return nil
	}
	createdAt := time.Now().UnixNano()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	stmt, err := tx.Prepare(`INSERT INTO detections
		(frame_seq, class, score, x, y, w, h, frame_ts, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, d := range detections {
		if _, err := stmt.Exec(int64(frameSeq), d.Class, d.Score,
			d.Box.X, d.Box.Y, d.Box.W, d.Box.H, timestamp, createdAt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// ClassCounts returns how many detections were stored per class.
func (s *Store) ClassCounts() (map[string]int, error) {
	rows, err := s.db.Query(`SELECT class, COUNT(*) FROM detections GROUP BY class`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	counts := map[string]int{}
	for rows.Next() {
		var class string
		var n int
		if err := rows.Scan(&class, &n); err != nil {
			return nil, err
		}
		counts[class] = n
	}
	return counts, rows.Err()
}

// ByFrame returns the detections stored for one frame sequence.
func (s *Store) ByFrame(frameSeq uint64) ([]types.Detection, error) {
	rows, err := s.db.Query(`SELECT class, score, x, y, w, h
		FROM detections WHERE frame_seq = ? ORDER BY id`, int64(frameSeq))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []types.Detection
	for rows.Next() {
		var d types.Detection
		if err := rows.Scan(&d.Class, &d.Score,
			&d.Box.X, &d.Box.Y, &d.Box.W, &d.Box.H); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// PruneBefore deletes detections recorded before the cutoff and
// returns how many rows went away.
func (s *Store) PruneBefore(cutoff time.Time) (int64, error) {
	res, err := s.db.Exec(`DELETE FROM detections WHERE created_at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Close() error { return s.db.Close() }
