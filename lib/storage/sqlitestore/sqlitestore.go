package sqlitestore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cyyever/largedict/lib/common"
	"github.com/cyyever/largedict/lib/storage"
	"github.com/lni/dragonboat/v4/logger"
	_ "modernc.org/sqlite"
)

var log = logger.GetLogger(common.LoggerStorage)

const schema = `CREATE TABLE IF NOT EXISTS blobs (
	key   TEXT PRIMARY KEY,
	value BLOB NOT NULL
) WITHOUT ROWID;`

// --------------------------------------------------------------------------
// Core structure
// --------------------------------------------------------------------------

// sqliteStore keeps one row per key in a single SQLite file
type sqliteStore struct {
	path string
	db   *sql.DB

	mu     sync.RWMutex // guards closed against Close/Destroy
	closed bool
}

// Open opens (and creates) the SQLite database at path
func Open(path string) (storage.Backend, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, storage.NewError("open", "", err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, storage.NewError("open", "", err)
	}

	db, err := sql.Open("sqlite", abs)
	if err != nil {
		return nil, storage.NewError("open", "", err)
	}
	// one connection serializes writers, SQLite would do so anyway
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		schema,
	} {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, storage.NewError("open", "", fmt.Errorf("%s: %w", abs, err))
		}
	}

	log.Debugf("opened sqlite blob store %s", abs)
	return &sqliteStore{path: abs, db: db}, nil
}

// acquire read-locks the closed flag for the duration of one operation
func (s *sqliteStore) acquire() error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return storage.ErrClosed
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see storage.Backend)
// --------------------------------------------------------------------------

func (s *sqliteStore) Save(key string, blob []byte) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	if blob == nil {
		blob = []byte{}
	}
	_, err := s.db.Exec(
		`INSERT INTO blobs (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, blob)
	return err
}

func (s *sqliteStore) Load(key string) ([]byte, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	var blob []byte
	err := s.db.QueryRow(`SELECT value FROM blobs WHERE key = ?`, key).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if blob == nil {
		blob = []byte{}
	}
	return blob, nil
}

func (s *sqliteStore) Remove(key string) error {
	if err := s.acquire(); err != nil {
		return err
	}
	defer s.mu.RUnlock()

	_, err := s.db.Exec(`DELETE FROM blobs WHERE key = ?`, key)
	return err
}

func (s *sqliteStore) Exists(key string) bool {
	if s.acquire() != nil {
		return false
	}
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM blobs WHERE key = ?`, key).Scan(&one)
	return err == nil
}

func (s *sqliteStore) Keys() ([]string, error) {
	if err := s.acquire(); err != nil {
		return nil, err
	}
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT key FROM blobs`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (s *sqliteStore) Location(key string) string {
	if key == "" {
		return s.path
	}
	return s.path + "#" + key
}

func (s *sqliteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *sqliteStore) Destroy() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	if !s.closed {
		s.closed = true
		err = s.db.Close()
	}
	for _, suffix := range []string{"", "-wal", "-shm"} {
		if rmErr := os.Remove(s.path + suffix); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			err = errors.Join(err, rmErr)
		}
	}
	return err
}
