package sqlite

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Database wraps the SQL database connection
type Database struct {
	db *sql.DB
}

// New creates a new database connection and initializes the schema
func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps writes strictly ordered
	db.SetMaxOpenConns(1)

	database := &Database{db: db}

	if err := database.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return database, nil
}

// Close closes the database connection
func (d *Database) Close() error {
	return d.db.Close()
}

// initSchema creates the key-value table
func (d *Database) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS kv (
		scope TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		PRIMARY KEY (scope, key)
	);
	`

	_, err := d.db.Exec(schema)
	return err
}

// get returns the raw document stored under scope/key. ok is false when
// nothing is stored.
func (d *Database) get(scope, key string) (value []byte, ok bool, err error) {
	query := `SELECT value FROM kv WHERE scope = ? AND key = ?`

	var raw string
	err = d.db.QueryRow(query, scope, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get %s: %w", key, err)
	}

	return []byte(raw), true, nil
}

// put stores a raw document under scope/key, replacing any previous value
func (d *Database) put(scope, key string, value []byte) error {
	query := `
		INSERT INTO kv (scope, key, value, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`

	if _, err := d.db.Exec(query, scope, key, string(value), time.Now()); err != nil {
		return fmt.Errorf("failed to put %s: %w", key, err)
	}

	return nil
}

// remove deletes the document stored under scope/key
func (d *Database) remove(scope, key string) error {
	query := `DELETE FROM kv WHERE scope = ? AND key = ?`

	if _, err := d.db.Exec(query, scope, key); err != nil {
		return fmt.Errorf("failed to remove %s: %w", key, err)
	}

	return nil
}
