package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// ErrNoSnapshot indicates the store holds no snapshot matching the query.
var ErrNoSnapshot = errors.New("profile: no snapshot")

// Summary describes a stored snapshot without decoding it.
type Summary struct {
	ID      string
	TakenAt time.Time
	Sites   int
	Size    int
}

// Store keeps snapshots in a SQLite database.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if needed) the snapshot database at path. Use
// ":memory:" for a throwaway store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening profile database: %w", err)
	}
	// One connection: SQLite serializes writers anyway, and an in-memory
	// database exists per connection.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		id TEXT PRIMARY KEY,
		taken_at INTEGER NOT NULL,
		sites INTEGER NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	profileLog().Debugf("opened profile store %s", path)
	return &Store{db: db, path: path}, nil
}

// Path returns the database path the store was opened with.
func (s *Store) Path() string { return s.path }

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Save stores snap, replacing any snapshot with the same ID.
func (s *Store) Save(ctx context.Context, snap *Snapshot) error {
	data, err := Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO snapshots (id, taken_at, sites, data) VALUES (?, ?, ?, ?)",
		snap.ID, snap.TakenAt, len(snap.Sites), data,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	profileLog().Infof("saved snapshot %s (%d sites, %d bytes)", snap.ID, len(snap.Sites), len(data))
	return nil
}

// Get loads the snapshot with the given ID.
func (s *Store) Get(ctx context.Context, id string) (*Snapshot, error) {
	return s.load(ctx, "SELECT data FROM snapshots WHERE id = ?", id)
}

// Latest loads the most recently taken snapshot.
func (s *Store) Latest(ctx context.Context) (*Snapshot, error) {
	return s.load(ctx, "SELECT data FROM snapshots ORDER BY taken_at DESC LIMIT 1")
}

func (s *Store) load(ctx context.Context, query string, args ...any) (*Snapshot, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, query, args...).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("querying snapshot: %w", err)
	}
	return Unmarshal(data)
}

// List returns summaries of all stored snapshots, newest first.
func (s *Store) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, taken_at, sites, length(data) FROM snapshots ORDER BY taken_at DESC")
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Summary
	for rows.Next() {
		var sum Summary
		var takenAt int64
		if err := rows.Scan(&sum.ID, &takenAt, &sum.Sites, &sum.Size); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		sum.TakenAt = time.Unix(0, takenAt)
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes the snapshot with the given ID.
func (s *Store) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNoSnapshot
	}
	return nil
}
