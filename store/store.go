// Package store keeps a library of chunks in SQLite so they can be loaded
// into a registry without shipping image files.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/tliron/commonlog"
	_ "modernc.org/sqlite"

	"github.com/chazu/m0/pkg/bytecode"
	"github.com/chazu/m0/vm"
)

// ErrChunkNotFound indicates the requested chunk is not stored.
var ErrChunkNotFound = errors.New("chunk not found in store")

var log = commonlog.GetLogger("m0.store")

// Store handles SQLite storage for chunks. Chunks are kept as CBOR blobs in
// the order they were first stored; replacing a chunk keeps its position.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open opens or creates the chunk database at path.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Set busy timeout for concurrent access
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS chunks (
		seq  INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	log.Debugf("opened chunk store %s", path)
	return &Store{db: db, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file the store was opened on.
func (s *Store) Path() string {
	return s.path
}

// Put stores a chunk, replacing any stored chunk of the same name.
func (s *Store) Put(c *bytecode.Chunk) error {
	return s.PutAll(c)
}

// PutAll stores chunks in one transaction, in order.
func (s *Store) PutAll(chunks ...*bytecode.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	for _, c := range chunks {
		data, err := bytecode.MarshalChunk(c)
		if err != nil {
			return err
		}
		_, err = tx.Exec(
			`INSERT INTO chunks (name, data) VALUES (?, ?)
			 ON CONFLICT(name) DO UPDATE SET data = excluded.data`,
			c.Name, data,
		)
		if err != nil {
			return fmt.Errorf("saving chunk %q: %w", c.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing chunks: %w", err)
	}
	log.Debugf("stored %d chunk(s) in %s", len(chunks), s.path)
	return nil
}

// Get retrieves a chunk by name.
func (s *Store) Get(name string) (*bytecode.Chunk, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM chunks WHERE name = ?", name).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %q", ErrChunkNotFound, name)
		}
		return nil, fmt.Errorf("querying chunk %q: %w", name, err)
	}
	return bytecode.UnmarshalChunk(data)
}

// Names lists stored chunk names in load order.
func (s *Store) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM chunks ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scanning chunk name: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// All retrieves every stored chunk in load order.
func (s *Store) All() ([]*bytecode.Chunk, error) {
	rows, err := s.db.Query("SELECT name, data FROM chunks ORDER BY seq")
	if err != nil {
		return nil, fmt.Errorf("listing chunks: %w", err)
	}
	defer rows.Close()

	var chunks []*bytecode.Chunk
	for rows.Next() {
		var name string
		var data []byte
		if err := rows.Scan(&name, &data); err != nil {
			return nil, fmt.Errorf("scanning chunk: %w", err)
		}
		c, err := bytecode.UnmarshalChunk(data)
		if err != nil {
			return nil, fmt.Errorf("decoding chunk %q: %w", name, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// Delete removes a chunk by name.
func (s *Store) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM chunks WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("deleting chunk %q: %w", name, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %q", ErrChunkNotFound, name)
	}
	return nil
}

// LoadMissing registers the stored chunks whose names reg does not already
// hold and returns how many it added.
func (s *Store) LoadMissing(reg *vm.Registry) (int, error) {
	chunks, err := s.All()
	if err != nil {
		return 0, err
	}
	var missing []*bytecode.Chunk
	for _, c := range chunks {
		if _, ok := reg.Find(c.Name); ok {
			log.Debugf("chunk %q already loaded, skipping stored copy", c.Name)
			continue
		}
		missing = append(missing, c)
	}
	if err := reg.AddAll(missing); err != nil {
		return 0, err
	}
	log.Infof("loaded %d of %d chunk(s) from %s", len(missing), len(chunks), s.path)
	return len(missing), nil
}

// LoadInto links every stored chunk into reg in load order.
func (s *Store) LoadInto(reg *vm.Registry) error {
	chunks, err := s.All()
	if err != nil {
		return err
	}
	if err := reg.AddAll(chunks); err != nil {
		return err
	}
	log.Infof("loaded %d chunk(s) from %s", len(chunks), s.path)
	return nil
}
