package library

import (
	"database/sql"

	_ "modernc.org/sqlite"
)

// OpenDB opens the catalog database. Every pooled connection gets foreign
// keys and a busy timeout through the DSN pragmas.
func OpenDB(path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
