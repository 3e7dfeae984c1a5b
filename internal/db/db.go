// Package db opens the hub's sqlite store as a split reader/writer pair.
package db

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Pair splits sqlite access into one serialized writer and a small pool of
// readers. Under WAL the two sides don't block each other.
type Pair struct {
	reader *sql.DB
	writer *sql.DB
}

// Reader returns the read-only pool.
func (p *Pair) Reader() *sql.DB { return p.reader }

// Writer returns the single-connection write side.
func (p *Pair) Writer() *sql.DB { return p.writer }

// Close closes both sides.
func (p *Pair) Close() error {
	return errors.Join(p.reader.Close(), p.writer.Close())
}

// Init opens (creating if needed) the database at dbPath, applies the schema,
// and returns the connection pair.
func Init(dbPath string) (*Pair, error) {
	if dbPath == "" {
		return nil, errors.New("db path is required")
	}
	if err := ensureDir(dbPath); err != nil {
		return nil, err
	}

	// One write connection: sqlite serializes writes anyway, extra
	// connections just contend for the lock.
	writer, err := open(dbPath, "rwc", 1)
	if err != nil {
		return nil, fmt.Errorf("open writer: %w", err)
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := writer.Exec(pragma); err != nil {
			writer.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := writer.Exec(schemaSQL); err != nil {
		writer.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	// The schema ran first, so the file exists by the time the read-only
	// side dials it.
	reader, err := open(dbPath, "ro", 4)
	if err != nil {
		writer.Close()
		return nil, fmt.Errorf("open reader: %w", err)
	}

	return &Pair{reader: reader, writer: writer}, nil
}

// open dials one side of the pair. The DSN keeps WAL journaling and a busy
// timeout so a slow writer stalls readers instead of failing them.
func open(dbPath, mode string, maxConns int) (*sql.DB, error) {
	dsn := fmt.Sprintf("%s?_journal=WAL&_busy_timeout=5000&cache=shared&mode=%s", dbPath, mode)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(maxConns)
	conn.SetMaxIdleConns((maxConns + 1) / 2)
	conn.SetConnMaxLifetime(time.Hour)
	return conn, nil
}

func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if _, err := os.Stat(dir); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}
