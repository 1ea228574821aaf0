// Package storage defines the local record store: named collections of JSON
// documents keyed by id, plus a small key/value config collection.
package storage

import (
	"context"
	"encoding/json"
	"errors"
)

type Collection string

const (
	Companies    Collection = "companies"
	DailyEntries Collection = "dailyEntries"
	Costs        Collection = "costs"
	Refuels      Collection = "refuels"
	Settings     Collection = "settings"
)

// RecordCollections are the id-keyed collections. Settings is keyed by config name.
var RecordCollections = []Collection{Companies, DailyEntries, Costs, Refuels}

// AllCollections is every collection, in export order.
var AllCollections = []Collection{Companies, DailyEntries, Costs, Refuels, Settings}

var (
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrDuplicateKey       = errors.New("duplicate key")
	ErrNotFound           = errors.New("not found")
	ErrUnknownCollection  = errors.New("unknown collection")
)

// Record is one stored document.
type Record struct {
	ID   string
	Data json.RawMessage
}

// ConfigEntry is one value of the settings collection.
type ConfigEntry struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

// Snapshot is the full content of a store.
type Snapshot struct {
	Records  map[Collection][]Record
	Settings []ConfigEntry
}

// Store is the local persistence adapter.
//
// Open is idempotent and lazy; every other method opens the store on first
// use. Writes to distinct ids never interfere; concurrent writes to the same
// id are last-writer-wins.
type Store interface {
	Open(ctx context.Context) error

	// GetAll returns every record of a collection. Callers must sort.
	GetAll(ctx context.Context, c Collection) ([]Record, error)
	Get(ctx context.Context, c Collection, id string) (Record, error)
	// Insert fails with ErrDuplicateKey when the id exists.
	Insert(ctx context.Context, c Collection, r Record) error
	Upsert(ctx context.Context, c Collection, r Record) error
	// Delete is a no-op for absent ids.
	Delete(ctx context.Context, c Collection, id string) error

	// GetConfig returns nil, nil when the key is absent.
	GetConfig(ctx context.Context, key string) (json.RawMessage, error)
	SetConfig(ctx context.Context, key string, value json.RawMessage) error
	ListConfig(ctx context.Context) ([]ConfigEntry, error)

	// ReplaceAll clears every collection and writes snap in its place.
	ReplaceAll(ctx context.Context, snap Snapshot) error

	// Generation advances after every write that changed the content, including
	// writes made by another process sharing the same store.
	Generation(ctx context.Context) (int64, error)

	Close() error
}

// ValidCollection reports whether c is an id-keyed collection.
func ValidCollection(c Collection) bool {
	for _, known := range RecordCollections {
		if c == known {
			return true
		}
	}
	return false
}
