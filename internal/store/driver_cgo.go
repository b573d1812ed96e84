//go:build !purego

package store

import (
	_ "github.com/mattn/go-sqlite3"
)

// driverName is the database/sql driver used for symbol stores.
const driverName = "sqlite3"

func dsn(path string) string {
	return path + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000"
}
