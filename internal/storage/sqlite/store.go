// Package sqlite implements storage.Store on a local SQLite file.
//
// Each collection is a table of JSON documents keyed by id. The database is
// opened lazily on first use; concurrent first callers share one open.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/singleflight"

	"entregas/internal/storage"

	_ "modernc.org/sqlite"
)

var tables = map[storage.Collection]string{
	storage.Companies:    "companies",
	storage.DailyEntries: "daily_entries",
	storage.Costs:        "costs",
	storage.Refuels:      "refuels",
}

type Store struct {
	path  string
	group singleflight.Group

	mu sync.RWMutex
	db *sql.DB
}

func New(path string) *Store {
	return &Store{path: path}
}

// Open initializes the database, running pending migrations. It is safe to call repeatedly.
func (s *Store) Open(ctx context.Context) error {
	_, err := s.conn(ctx)
	return err
}

func (s *Store) conn(ctx context.Context) (*sql.DB, error) {
	s.mu.RLock()
	db := s.db
	s.mu.RUnlock()
	if db != nil {
		return db, nil
	}

	v, err, _ := s.group.Do("open", func() (any, error) {
		s.mu.RLock()
		existing := s.db
		s.mu.RUnlock()
		if existing != nil {
			return existing, nil
		}

		// Shared by every waiter, so one caller giving up must not fail the rest.
		db, err := openDB(context.WithoutCancel(ctx), s.path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", storage.ErrStorageUnavailable, err)
		}

		s.mu.Lock()
		s.db = db
		s.mu.Unlock()
		slog.InfoContext(ctx, "SQLite store opened", "path", s.path)
		return db, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*sql.DB), nil
}

func openDB(ctx context.Context, path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// One writer at a time; SQLite serializes writes anyway.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(path); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func table(c storage.Collection) (string, error) {
	t, ok := tables[c]
	if !ok {
		return "", fmt.Errorf("%w: %s", storage.ErrUnknownCollection, c)
	}
	return t, nil
}

func (s *Store) GetAll(ctx context.Context, c storage.Collection) ([]storage.Record, error) {
	t, err := table(c)
	if err != nil {
		return nil, err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT id, doc FROM %s ORDER BY rowid", t))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	defer rows.Close()

	var out []storage.Record
	for rows.Next() {
		var (
			id  string
			doc string
		)
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, fmt.Errorf("scan %s: %w", c, err)
		}
		out = append(out, storage.Record{ID: id, Data: json.RawMessage(doc)})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list %s: %w", c, err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, c storage.Collection, id string) (storage.Record, error) {
	t, err := table(c)
	if err != nil {
		return storage.Record{}, err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return storage.Record{}, err
	}

	var doc string
	err = db.QueryRowContext(ctx, fmt.Sprintf("SELECT doc FROM %s WHERE id = ?", t), id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return storage.Record{}, fmt.Errorf("%s %s: %w", c, id, storage.ErrNotFound)
	}
	if err != nil {
		return storage.Record{}, fmt.Errorf("get %s %s: %w", c, id, err)
	}
	return storage.Record{ID: id, Data: json.RawMessage(doc)}, nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insert(ctx context.Context, ex execer, t string, c storage.Collection, r storage.Record) error {
	res, err := ex.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (?, ?) ON CONFLICT(id) DO NOTHING", t),
		r.ID, string(r.Data))
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", c, r.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert %s %s: %w", c, r.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", c, r.ID, storage.ErrDuplicateKey)
	}
	return nil
}

func (s *Store) Insert(ctx context.Context, c storage.Collection, r storage.Record) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return insert(ctx, db, t, c, r)
}

func (s *Store) Upsert(ctx context.Context, c storage.Collection, r storage.Record) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx,
		fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (?, ?) ON CONFLICT(id) DO UPDATE SET doc = excluded.doc", t),
		r.ID, string(r.Data))
	if err != nil {
		return fmt.Errorf("upsert %s %s: %w", c, r.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, c storage.Collection, id string) error {
	t, err := table(c)
	if err != nil {
		return err
	}
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", t), id); err != nil {
		return fmt.Errorf("delete %s %s: %w", c, id, err)
	}
	return nil
}

func (s *Store) GetConfig(ctx context.Context, key string) (json.RawMessage, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	var value string
	err = db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get config %s: %w", key, err)
	}
	return json.RawMessage(value), nil
}

func setConfig(ctx context.Context, ex execer, key string, value json.RawMessage) error {
	_, err := ex.ExecContext(ctx,
		"INSERT INTO settings (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, string(value))
	if err != nil {
		return fmt.Errorf("set config %s: %w", key, err)
	}
	return nil
}

func (s *Store) SetConfig(ctx context.Context, key string, value json.RawMessage) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	return setConfig(ctx, db, key, value)
}

func (s *Store) ListConfig(ctx context.Context) ([]storage.ConfigEntry, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := db.QueryContext(ctx, "SELECT key, value FROM settings ORDER BY rowid")
	if err != nil {
		return nil, fmt.Errorf("list config: %w", err)
	}
	defer rows.Close()

	var out []storage.ConfigEntry
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("scan config: %w", err)
		}
		out = append(out, storage.ConfigEntry{Key: key, Value: json.RawMessage(value)})
	}
	return out, rows.Err()
}

// ReplaceAll clears every table and writes snap in a single transaction.
func (s *Store) ReplaceAll(ctx context.Context, snap storage.Snapshot) (err error) {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, c := range storage.RecordCollections {
		if _, err = tx.ExecContext(ctx, "DELETE FROM "+tables[c]); err != nil {
			return fmt.Errorf("clear %s: %w", c, err)
		}
	}
	if _, err = tx.ExecContext(ctx, "DELETE FROM settings"); err != nil {
		return fmt.Errorf("clear settings: %w", err)
	}

	for c, recs := range snap.Records {
		t, terr := table(c)
		if terr != nil {
			err = terr
			return err
		}
		for _, r := range recs {
			if err = insert(ctx, tx, t, c, r); err != nil {
				return err
			}
		}
	}
	for _, e := range snap.Settings {
		if err = setConfig(ctx, tx, e.Key, e.Value); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit replace: %w", err)
	}
	return nil
}

// Generation reads the counter the write triggers maintain. It sees commits
// from every connection to the file.
func (s *Store) Generation(ctx context.Context) (int64, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var g int64
	if err := db.QueryRowContext(ctx, "SELECT value FROM store_generation WHERE id = 1").Scan(&g); err != nil {
		return 0, fmt.Errorf("read generation: %w", err)
	}
	return g, nil
}
