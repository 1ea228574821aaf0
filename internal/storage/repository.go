package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"entregas/internal/core"
)

// All decodes every record of c into T.
func All[T any](ctx context.Context, s Store, c Collection) ([]T, error) {
	recs, err := s.GetAll(ctx, c)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		var v T
		if err := json.Unmarshal(rec.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s %s: %w", c, rec.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Get decodes a single record of c into T.
func Get[T any](ctx context.Context, s Store, c Collection, id string) (T, error) {
	var v T
	rec, err := s.Get(ctx, c, id)
	if err != nil {
		return v, err
	}
	if err := json.Unmarshal(rec.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s %s: %w", c, id, err)
	}
	return v, nil
}

// Put encodes v and stores it under id. With create set the write fails on an existing id.
func Put(ctx context.Context, s Store, c Collection, id string, v any, create bool) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s %s: %w", c, id, err)
	}
	rec := Record{ID: id, Data: data}
	if create {
		return s.Insert(ctx, c, rec)
	}
	return s.Upsert(ctx, c, rec)
}

// Repository is the typed view over a Store used by the ledger.
type Repository struct {
	store Store
}

func NewRepository(s Store) *Repository {
	return &Repository{store: s}
}

func (r *Repository) Store() Store { return r.store }

func (r *Repository) Companies(ctx context.Context) ([]core.Company, error) {
	return All[core.Company](ctx, r.store, Companies)
}

func (r *Repository) Company(ctx context.Context, id string) (core.Company, error) {
	return Get[core.Company](ctx, r.store, Companies, id)
}

func (r *Repository) PutCompany(ctx context.Context, c core.Company, create bool) error {
	return Put(ctx, r.store, Companies, c.ID, c, create)
}

func (r *Repository) DailyEntries(ctx context.Context) ([]core.DailyEntry, error) {
	return All[core.DailyEntry](ctx, r.store, DailyEntries)
}

func (r *Repository) DailyEntry(ctx context.Context, id string) (core.DailyEntry, error) {
	return Get[core.DailyEntry](ctx, r.store, DailyEntries, id)
}

func (r *Repository) PutDailyEntry(ctx context.Context, e core.DailyEntry, create bool) error {
	return Put(ctx, r.store, DailyEntries, e.ID, e, create)
}

func (r *Repository) Costs(ctx context.Context) ([]core.Cost, error) {
	return All[core.Cost](ctx, r.store, Costs)
}

func (r *Repository) PutCost(ctx context.Context, c core.Cost, create bool) error {
	return Put(ctx, r.store, Costs, c.ID, c, create)
}

func (r *Repository) Refuels(ctx context.Context) ([]core.Refuel, error) {
	return All[core.Refuel](ctx, r.store, Refuels)
}

func (r *Repository) PutRefuel(ctx context.Context, rf core.Refuel, create bool) error {
	return Put(ctx, r.store, Refuels, rf.ID, rf, create)
}

func (r *Repository) Delete(ctx context.Context, c Collection, id string) error {
	return r.store.Delete(ctx, c, id)
}

// VehicleSettings loads the settings singleton. ok is false when it was never written.
func (r *Repository) VehicleSettings(ctx context.Context) (vs core.VehicleSettings, ok bool, err error) {
	raw, err := r.store.GetConfig(ctx, core.VehicleSettingsKey)
	if err != nil || raw == nil {
		return vs, false, err
	}
	if err := json.Unmarshal(raw, &vs); err != nil {
		return vs, false, fmt.Errorf("decode %s: %w", core.VehicleSettingsKey, err)
	}
	if vs.MaintenanceItems == nil {
		vs.MaintenanceItems = []core.MaintenanceItem{}
	}
	return vs, true, nil
}

func (r *Repository) PutVehicleSettings(ctx context.Context, vs core.VehicleSettings) error {
	raw, err := json.Marshal(vs)
	if err != nil {
		return fmt.Errorf("encode %s: %w", core.VehicleSettingsKey, err)
	}
	return r.store.SetConfig(ctx, core.VehicleSettingsKey, raw)
}

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }
