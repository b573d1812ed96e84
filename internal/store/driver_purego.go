//go:build purego

package store

// Built with -tags purego the store runs on the pure Go SQLite port, so
// CGO_ENABLED=0 builds work. The tree-sitter frontend still needs cgo; this
// is for tools that only read or merge stores.

import (
	_ "modernc.org/sqlite"
)

const driverName = "sqlite"

func dsn(path string) string {
	return path + "?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(30000)"
}
