package metrics

import (
	"context"
	"encoding/json"
	"time"

	"entregas/internal/storage"
)

// Store wraps a storage.Store and records every call.
type Store struct {
	next storage.Store
	m    *Metrics
}

func InstrumentStore(next storage.Store, m *Metrics) *Store {
	return &Store{next: next, m: m}
}

func (s *Store) Open(ctx context.Context) error {
	start := time.Now()
	err := s.next.Open(ctx)
	s.m.ObserveStore("", "open", start, err)
	return err
}

func (s *Store) GetAll(ctx context.Context, c storage.Collection) ([]storage.Record, error) {
	start := time.Now()
	recs, err := s.next.GetAll(ctx, c)
	s.m.ObserveStore(string(c), "get_all", start, err)
	return recs, err
}

func (s *Store) Get(ctx context.Context, c storage.Collection, id string) (storage.Record, error) {
	start := time.Now()
	rec, err := s.next.Get(ctx, c, id)
	s.m.ObserveStore(string(c), "get", start, err)
	return rec, err
}

func (s *Store) Insert(ctx context.Context, c storage.Collection, r storage.Record) error {
	start := time.Now()
	err := s.next.Insert(ctx, c, r)
	s.m.ObserveStore(string(c), "insert", start, err)
	return err
}

func (s *Store) Upsert(ctx context.Context, c storage.Collection, r storage.Record) error {
	start := time.Now()
	err := s.next.Upsert(ctx, c, r)
	s.m.ObserveStore(string(c), "upsert", start, err)
	return err
}

func (s *Store) Delete(ctx context.Context, c storage.Collection, id string) error {
	start := time.Now()
	err := s.next.Delete(ctx, c, id)
	s.m.ObserveStore(string(c), "delete", start, err)
	return err
}

func (s *Store) GetConfig(ctx context.Context, key string) (json.RawMessage, error) {
	start := time.Now()
	v, err := s.next.GetConfig(ctx, key)
	s.m.ObserveStore(string(storage.Settings), "get_config", start, err)
	return v, err
}

func (s *Store) SetConfig(ctx context.Context, key string, value json.RawMessage) error {
	start := time.Now()
	err := s.next.SetConfig(ctx, key, value)
	s.m.ObserveStore(string(storage.Settings), "set_config", start, err)
	return err
}

func (s *Store) ListConfig(ctx context.Context) ([]storage.ConfigEntry, error) {
	start := time.Now()
	v, err := s.next.ListConfig(ctx)
	s.m.ObserveStore(string(storage.Settings), "list_config", start, err)
	return v, err
}

func (s *Store) ReplaceAll(ctx context.Context, snap storage.Snapshot) error {
	start := time.Now()
	err := s.next.ReplaceAll(ctx, snap)
	s.m.ObserveStore("", "replace_all", start, err)
	return err
}

func (s *Store) Generation(ctx context.Context) (int64, error) {
	start := time.Now()
	g, err := s.next.Generation(ctx)
	s.m.ObserveStore("", "generation", start, err)
	return g, err
}

func (s *Store) Close() error { return s.next.Close() }
