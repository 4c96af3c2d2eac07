package formstate

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	// Registers the sqlite3 database/sql driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/conneroisu/brokerage/internal/errors"
)

// ErrNotFound is returned by Storage.Get when the key holds no value.
var ErrNotFound = stderrors.New("formstate: key not found")

// Storage is a durable key/value surface for serialized form state.
type Storage interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Lister is implemented by storages that can enumerate their keys.
type Lister interface {
	Keys(ctx context.Context, prefix string) ([]string, error)
}

// MemoryStorage keeps values in a map. It is the storage used by tests and
// by the "memory" backend.
type MemoryStorage struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewMemoryStorage returns an empty MemoryStorage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{values: make(map[string][]byte)}
}

func (m *MemoryStorage) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.values[key]
	if !ok {
		return nil, ErrNotFound
	}

	return append([]byte(nil), value...), nil
}

func (m *MemoryStorage) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	return nil
}

func (m *MemoryStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, len(m.values))
	for key := range m.values {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	return keys, nil
}

// FileStorage writes one JSON file per key into a directory.
type FileStorage struct {
	dir string
	mu  sync.Mutex
}

// NewFileStorage creates dir if needed and returns a FileStorage rooted there.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageWrite, "creating form state directory", err).
			WithContext("dir", dir)
	}

	return &FileStorage{dir: dir}, nil
}

func (f *FileStorage) path(key string) string {
	return filepath.Join(f.dir, url.PathEscape(key)+".json")
}

func (f *FileStorage) Get(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(f.path(key))
	if stderrors.Is(err, os.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageRead, "reading form state", err).
			WithContext("key", key)
	}

	return data, nil
}

// Set writes through a temp file and rename so readers never see a partial
// value.
func (f *FileStorage) Set(_ context.Context, key string, value []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, ".formstate-*")
	if err != nil {
		return errors.NewStorageError(errors.ErrCodeStorageWrite, "creating temp file", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return errors.NewStorageError(errors.ErrCodeStorageWrite, "writing form state", err).
			WithContext("key", key)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return errors.NewStorageError(errors.ErrCodeStorageWrite, "closing form state", err)
	}
	if err := os.Rename(tmpName, f.path(key)); err != nil {
		os.Remove(tmpName)
		return errors.NewStorageError(errors.ErrCodeStorageWrite, "replacing form state", err).
			WithContext("key", key)
	}

	return nil
}

func (f *FileStorage) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(key))
	if err != nil && !stderrors.Is(err, os.ErrNotExist) {
		return errors.NewStorageError(errors.ErrCodeStorageWrite, "deleting form state", err).
			WithContext("key", key)
	}

	return nil
}

func (f *FileStorage) Keys(_ context.Context, prefix string) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageRead, "listing form state", err)
	}

	keys := make([]string, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key, err := url.PathUnescape(strings.TrimSuffix(name, ".json"))
		if err != nil || !strings.HasPrefix(key, prefix) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	return keys, nil
}

// SQLiteStorage keeps values in a single kv table.
type SQLiteStorage struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) the database at path and ensures the
// kv table exists.
func OpenSQLite(path string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.NewStorageError(errors.ErrCodeStorageWrite, "creating database directory", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageRead, "opening form state database", err).
			WithContext("path", path)
	}
	// database/sql pools connections; sqlite serializes writers anyway.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      BLOB NOT NULL,
			updated_at DATETIME NOT NULL
		)`)
	if err != nil {
		db.Close()
		return nil, errors.NewStorageError(errors.ErrCodeStorageWrite, "creating kv table", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageRead, "reading form state", err).
			WithContext("key", key)
	}

	return value, nil
}

func (s *SQLiteStorage) Set(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UTC())
	if err != nil {
		return errors.NewStorageError(errors.ErrCodeStorageWrite, "writing form state", err).
			WithContext("key", key)
	}

	return nil
}

func (s *SQLiteStorage) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return errors.NewStorageError(errors.ErrCodeStorageWrite, "deleting form state", err).
			WithContext("key", key)
	}

	return nil
}

func (s *SQLiteStorage) Keys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM kv WHERE substr(key, 1, ?) = ? ORDER BY key`, len(prefix), prefix)
	if err != nil {
		return nil, errors.NewStorageError(errors.ErrCodeStorageRead, "listing form state", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, errors.NewStorageError(errors.ErrCodeStorageRead, "scanning key", err)
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// Close closes the underlying database.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// OpenStorage builds the storage named by backend. Backends that hold
// resources return a non-nil close func.
func OpenStorage(backend, path string) (Storage, func() error, error) {
	noop := func() error { return nil }

	switch backend {
	case "memory":
		return NewMemoryStorage(), noop, nil
	case "file":
		fs, err := NewFileStorage(path)
		if err != nil {
			return nil, nil, err
		}
		return fs, noop, nil
	case "sqlite":
		s, err := OpenSQLite(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, fmt.Sprintf("unknown storage backend %q", backend))
	}
}
