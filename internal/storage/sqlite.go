//go:build sqlite

package storage

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"sync"

	_ "modernc.org/sqlite"
)

// SQLiteMedium keeps knowledge files as blobs in one table.
type SQLiteMedium struct {
	path string

	mu sync.RWMutex
	db *sql.DB
}

func NewSQLiteMedium(path string) *SQLiteMedium {
	return &SQLiteMedium{path: path}
}

func (s *SQLiteMedium) Init(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return errors.New("sqlite path is required")
	}
	if s.db != nil {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return err
	}

	if err := createTables(ctx, db); err != nil {
		_ = db.Close()
		return err
	}

	s.db = db
	return nil
}

func (s *SQLiteMedium) Ready(ctx context.Context) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrNotReady, err)
	}
	return nil
}

func (s *SQLiteMedium) Exists(ctx context.Context, name string) (bool, error) {
	if err := validateName(name); err != nil {
		return false, err
	}
	db, err := s.getDB()
	if err != nil {
		return false, err
	}

	var n int
	err = db.QueryRowContext(ctx, `SELECT COUNT(1) FROM knowledge WHERE name = ?`, name).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteMedium) Remove(ctx context.Context, name string) error {
	if err := validateName(name); err != nil {
		return err
	}
	db, err := s.getDB()
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx, `DELETE FROM knowledge WHERE name = ?`, name)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotExist, name)
	}
	return nil
}

func (s *SQLiteMedium) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if _, err := s.getDB(); err != nil {
		return nil, err
	}
	return &sqliteWriter{ctx: ctx, medium: s, name: name}, nil
}

func (s *SQLiteMedium) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	var payload []byte
	err = db.QueryRowContext(ctx, `SELECT payload FROM knowledge WHERE name = ?`, name).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotExist, name)
		}
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (s *SQLiteMedium) List(ctx context.Context) ([]string, error) {
	db, err := s.getDB()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, `SELECT name FROM knowledge ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteMedium) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *SQLiteMedium) put(ctx context.Context, name string, payload []byte) error {
	db, err := s.getDB()
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO knowledge (name, payload)
		VALUES (?, ?)
		ON CONFLICT(name) DO UPDATE SET
			payload = excluded.payload
	`, name, payload)
	return err
}

func (s *SQLiteMedium) getDB() (*sql.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, ErrNotReady
	}
	return s.db, nil
}

type sqliteWriter struct {
	ctx    context.Context
	medium *SQLiteMedium
	name   string
	buf    bytes.Buffer
	closed bool
}

func (w *sqliteWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write %s: closed", w.name)
	}
	return w.buf.Write(p)
}

func (w *sqliteWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	payload := w.buf.Bytes()
	if payload == nil {
		payload = []byte{}
	}
	return w.medium.put(w.ctx, w.name, payload)
}

func createTables(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS knowledge (
			name TEXT PRIMARY KEY,
			payload BLOB NOT NULL
		);
	`)
	return err
}
