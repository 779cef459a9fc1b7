package sqlite

import (
	"database/sql"
	"fmt"

	// Import the SQLite driver.
	_ "github.com/mattn/go-sqlite3"
)

// InitDB opens the SQLite database at path and creates the retrievals table
// if it doesn't exist. Fetch workers write concurrently, so the pool is
// limited to a single connection.
func InitDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS retrievals (
		id INTEGER PRIMARY KEY,
		run_id TEXT NOT NULL,
		uri TEXT NOT NULL,
		file_path TEXT,
		size INTEGER DEFAULT 0,
		status TEXT NOT NULL,
		error TEXT,
		retrieved_at TEXT
	)`)
	if err != nil {
		db.Close()

		return nil, fmt.Errorf("failed to create retrievals table: %w", err)
	}

	return db, nil
}
