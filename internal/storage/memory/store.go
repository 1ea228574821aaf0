// Package memory is an in-process storage.Store used for tests and ephemeral runs.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"entregas/internal/storage"
)

type collection struct {
	order []string
	docs  map[string]json.RawMessage
}

type Store struct {
	mu          sync.RWMutex
	collections map[storage.Collection]*collection
	config      map[string]json.RawMessage
	configOrder []string
	generation  int64
}

func NewStore() *Store {
	s := &Store{}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.collections = make(map[storage.Collection]*collection, len(storage.RecordCollections))
	for _, c := range storage.RecordCollections {
		s.collections[c] = &collection{docs: map[string]json.RawMessage{}}
	}
	s.config = map[string]json.RawMessage{}
	s.configOrder = nil
}

func (s *Store) Open(context.Context) error { return nil }

func (s *Store) Close() error { return nil }

func (s *Store) lookup(c storage.Collection) (*collection, error) {
	col, ok := s.collections[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownCollection, c)
	}
	return col, nil
}

func (s *Store) GetAll(_ context.Context, c storage.Collection) ([]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, err := s.lookup(c)
	if err != nil {
		return nil, err
	}
	out := make([]storage.Record, 0, len(col.order))
	for _, id := range col.order {
		out = append(out, storage.Record{ID: id, Data: slices.Clone(col.docs[id])})
	}
	return out, nil
}

func (s *Store) Get(_ context.Context, c storage.Collection, id string) (storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	col, err := s.lookup(c)
	if err != nil {
		return storage.Record{}, err
	}
	doc, ok := col.docs[id]
	if !ok {
		return storage.Record{}, fmt.Errorf("%s %s: %w", c, id, storage.ErrNotFound)
	}
	return storage.Record{ID: id, Data: slices.Clone(doc)}, nil
}

func (s *Store) Insert(_ context.Context, c storage.Collection, r storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.lookup(c)
	if err != nil {
		return err
	}
	if _, exists := col.docs[r.ID]; exists {
		return fmt.Errorf("%s %s: %w", c, r.ID, storage.ErrDuplicateKey)
	}
	col.order = append(col.order, r.ID)
	col.docs[r.ID] = slices.Clone(r.Data)
	s.generation++
	return nil
}

func (s *Store) Upsert(_ context.Context, c storage.Collection, r storage.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.lookup(c)
	if err != nil {
		return err
	}
	if _, exists := col.docs[r.ID]; !exists {
		col.order = append(col.order, r.ID)
	}
	col.docs[r.ID] = slices.Clone(r.Data)
	s.generation++
	return nil
}

func (s *Store) Delete(_ context.Context, c storage.Collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	col, err := s.lookup(c)
	if err != nil {
		return err
	}
	if _, exists := col.docs[id]; !exists {
		return nil
	}
	delete(col.docs, id)
	col.order = slices.DeleteFunc(col.order, func(k string) bool { return k == id })
	s.generation++
	return nil
}

func (s *Store) GetConfig(_ context.Context, key string) (json.RawMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.config[key]
	if !ok {
		return nil, nil
	}
	return slices.Clone(v), nil
}

func (s *Store) SetConfig(_ context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setConfig(key, value)
	s.generation++
	return nil
}

func (s *Store) setConfig(key string, value json.RawMessage) {
	if _, exists := s.config[key]; !exists {
		s.configOrder = append(s.configOrder, key)
	}
	s.config[key] = slices.Clone(value)
}

func (s *Store) ListConfig(context.Context) ([]storage.ConfigEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]storage.ConfigEntry, 0, len(s.configOrder))
	for _, k := range s.configOrder {
		out = append(out, storage.ConfigEntry{Key: k, Value: slices.Clone(s.config[k])})
	}
	return out, nil
}

// ReplaceAll builds the new content aside and swaps it in under one lock.
// On error the previous content is kept.
func (s *Store) ReplaceAll(_ context.Context, snap storage.Snapshot) error {
	next := &Store{}
	next.reset()
	for c, recs := range snap.Records {
		col, err := next.lookup(c)
		if err != nil {
			return err
		}
		for _, r := range recs {
			if _, exists := col.docs[r.ID]; exists {
				return fmt.Errorf("%s %s: %w", c, r.ID, storage.ErrDuplicateKey)
			}
			col.order = append(col.order, r.ID)
			col.docs[r.ID] = slices.Clone(r.Data)
		}
	}
	for _, e := range snap.Settings {
		next.setConfig(e.Key, e.Value)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections = next.collections
	s.config = next.config
	s.configOrder = next.configOrder
	s.generation++
	return nil
}

func (s *Store) Generation(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation, nil
}
