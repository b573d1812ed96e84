package store

import (
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"sync"
)

// ErrStoreOpen is returned when the backing database cannot be opened or
// created. Callers must not mask it.
var ErrStoreOpen = errors.New("open symbol store")

// ErrClosed is returned by operations on a closed Store.
var ErrClosed = errors.New("symbol store is closed")

// Store is the SQLite-backed symbol store. Writes accumulate in a pending
// transaction that only Flush commits, so other Store instances opened on
// the same file observe nothing until then. Reads made through this Store
// see its own pending writes.
type Store struct {
	path string
	db   *sql.DB

	mu     sync.Mutex
	tx     *sql.Tx
	insert *sql.Stmt
	closed bool
}

// NewStore opens (creating if needed) a SQLite database at dbPath with WAL
// mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open(driverName, dsn(dbPath))
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrStoreOpen, dbPath, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w %s: %w", ErrStoreOpen, dbPath, err)
	}
	return &Store{path: dbPath, db: db}, nil
}

// Path returns the database file the store was opened on.
func (s *Store) Path() string {
	return s.path
}

// Initialize creates the symbol_type, symbol and metadata relations and
// seeds symbol_type. Idempotent.
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if _, err := s.db.Exec(schemaDDL); err != nil {
		return fmt.Errorf("initialize: %w", err)
	}
	for _, t := range SymbolTypes {
		if _, err := s.db.Exec(`INSERT OR IGNORE INTO symbol_type (id, name) VALUES (?, ?)`, int(t), t.Name()); err != nil {
			return fmt.Errorf("initialize: seed symbol_type %s: %w", t, err)
		}
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS symbol_type (
  id    INTEGER NOT NULL,
  name  TEXT NOT NULL,
  PRIMARY KEY (id)
);

CREATE TABLE IF NOT EXISTS symbol (
  filename  TEXT NOT NULL,
  usr       TEXT NOT NULL,
  line      INTEGER NOT NULL,
  "column"  INTEGER NOT NULL,
  type      INTEGER NOT NULL,
  PRIMARY KEY (filename, usr, line, "column"),
  FOREIGN KEY (type) REFERENCES symbol_type(id)
);

CREATE INDEX IF NOT EXISTS idx_symbol_usr ON symbol(usr);

CREATE TABLE IF NOT EXISTS metadata (
  key    TEXT PRIMARY KEY,
  value  TEXT NOT NULL
);
`

// Close rolls back any unflushed writes and closes the database. Calling
// Close more than once is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.tx != nil {
		s.insert.Close()
		_ = s.tx.Rollback()
		s.tx, s.insert = nil, nil
	}
	return s.db.Close()
}

// begin returns the pending transaction, opening one if needed.
// Caller holds s.mu.
func (s *Store) begin() (*sql.Tx, error) {
	if s.closed {
		return nil, ErrClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO symbol (filename, usr, line, "column", type) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return nil, fmt.Errorf("prepare insert: %w", err)
	}
	s.tx, s.insert = tx, stmt
	return tx, nil
}

// Insert adds a symbol row. A row identical in (filename, usr, line,
// column) to an existing one is silently ignored.
func (s *Store) Insert(sym Symbol) error {
	if !sym.Type.Valid() {
		return fmt.Errorf("insert %s: invalid symbol type %d", sym.USR, int(sym.Type))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.begin(); err != nil {
		return err
	}
	if _, err := s.insert.Exec(sym.Filename, sym.USR, sym.Line, sym.Column, int(sym.Type)); err != nil {
		return fmt.Errorf("insert %s at %s:%d:%d: %w", sym.USR, sym.Filename, sym.Line, sym.Column, err)
	}
	return nil
}

// DeleteByFile removes every row recorded for filename.
func (s *Store) DeleteByFile(filename string) error {
	return s.exec("delete by file", `DELETE FROM symbol WHERE filename = ?`, filename)
}

// DeleteAll removes every symbol row.
func (s *Store) DeleteAll() error {
	return s.exec("delete all", `DELETE FROM symbol`)
}

// SetMetadata stores a key/value pair in the pending transaction.
func (s *Store) SetMetadata(key, value string) error {
	return s.exec("set metadata", `INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, key, value)
}

// DeleteMetadata removes key, if present.
func (s *Store) DeleteMetadata(key string) error {
	return s.exec("delete metadata", `DELETE FROM metadata WHERE key = ?`, key)
}

func (s *Store) exec(op, query string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.begin()
	if err != nil {
		return err
	}
	if _, err := tx.Exec(query, args...); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}

// Flush commits pending writes. Once it returns, they are durable and
// visible to every other Store opened on the same file.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.insert.Close()
	s.tx, s.insert = nil, nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// Rollback discards pending writes. It is a no-op when nothing is pending.
func (s *Store) Rollback() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.insert.Close()
	s.tx, s.insert = nil, nil
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

func (s *Store) reader() (querier, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.db, nil
}

// Scan returns every row. Each range over the sequence runs a fresh query.
func (s *Store) Scan() iter.Seq2[Symbol, error] {
	return s.symbols(`SELECT filename, usr, line, "column", type FROM symbol ORDER BY filename, line, "column", usr`)
}

// Lookup returns every row whose usr equals the argument.
func (s *Store) Lookup(usr string) iter.Seq2[Symbol, error] {
	return s.symbols(`SELECT filename, usr, line, "column", type FROM symbol WHERE usr = ? ORDER BY filename, line, "column"`, usr)
}

func (s *Store) symbols(query string, args ...any) iter.Seq2[Symbol, error] {
	return func(yield func(Symbol, error) bool) {
		q, err := s.reader()
		if err != nil {
			yield(Symbol{}, err)
			return
		}
		rows, err := q.Query(query, args...)
		if err != nil {
			yield(Symbol{}, fmt.Errorf("query symbols: %w", err))
			return
		}
		defer rows.Close()
		for rows.Next() {
			var sym Symbol
			var typ int
			if err := rows.Scan(&sym.Filename, &sym.USR, &sym.Line, &sym.Column, &typ); err != nil {
				yield(Symbol{}, fmt.Errorf("scan symbol: %w", err))
				return
			}
			sym.Type = SymbolType(typ)
			if !yield(sym, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(Symbol{}, fmt.Errorf("query symbols: %w", err))
		}
	}
}

// Count returns the number of symbol rows.
func (s *Store) Count() (int, error) {
	q, err := s.reader()
	if err != nil {
		return 0, err
	}
	var n int
	if err := q.QueryRow(`SELECT COUNT(*) FROM symbol`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count symbols: %w", err)
	}
	return n, nil
}

// Files returns the distinct filenames that have at least one row.
func (s *Store) Files() ([]string, error) {
	q, err := s.reader()
	if err != nil {
		return nil, err
	}
	rows, err := q.Query(`SELECT DISTINCT filename FROM symbol ORDER BY filename`)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()
	var files []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, fmt.Errorf("list files: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// GetMetadata returns the value stored for key, or "" if there is none.
func (s *Store) GetMetadata(key string) (string, error) {
	q, err := s.reader()
	if err != nil {
		return "", err
	}
	var v string
	err = q.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v, nil
}

// Collect drains a symbol sequence into a slice, stopping at the first error.
func Collect(seq iter.Seq2[Symbol, error]) ([]Symbol, error) {
	var out []Symbol
	for sym, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, sym)
	}
	return out, nil
}
