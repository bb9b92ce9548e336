// Package image stores runtime snapshot images in a SQLite database.
package image

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// ErrSnapshotNotFound indicates the requested snapshot doesn't exist.
var ErrSnapshotNotFound = errors.New("snapshot not found")

// Info describes one stored snapshot.
type Info struct {
	Name      string
	Size      int
	CreatedAt time.Time
}

// Store persists snapshot images, keyed by name. Saving under an
// existing name replaces the previous image.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens (creating if needed) the snapshot database at path.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating snapshot dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	// Create table if needed
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS snapshots (
		name       TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		data       BLOB NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// DefaultPath returns the snapshot database location under the user's
// home directory.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home dir: %w", err)
	}
	return filepath.Join(home, ".mycelia", "snapshots.db"), nil
}

// Save stores an image under name, replacing any previous one.
func (s *Store) Save(name string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT INTO snapshots (name, created_at, data) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET created_at = excluded.created_at, data = excluded.data`,
		name, time.Now().UTC(), data,
	)
	if err != nil {
		return fmt.Errorf("saving snapshot %q: %w", name, err)
	}
	return nil
}

// Load returns the image stored under name.
func (s *Store) Load(name string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow(`SELECT data FROM snapshots WHERE name = ?`, name).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%q: %w", name, ErrSnapshotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot %q: %w", name, err)
	}
	return data, nil
}

// List returns stored snapshots, newest first.
func (s *Store) List() ([]Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query(
		`SELECT name, created_at, length(data) FROM snapshots ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var out []Info
	for rows.Next() {
		var info Info
		if err := rows.Scan(&info.Name, &info.CreatedAt, &info.Size); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// Delete removes a stored snapshot.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM snapshots WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("deleting snapshot %q: %w", name, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%q: %w", name, ErrSnapshotNotFound)
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
