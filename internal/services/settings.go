package services

import (
	"context"
	"fmt"
	"sync"

	"entregas/internal/core"
	"entregas/internal/storage"
)

// SettingsRepository owns the vehicle settings singleton. Every mutation goes
// through Update, which reads the stored value, applies the change and writes
// the whole document back.
type SettingsRepository struct {
	repo     *storage.Repository
	defaults core.VehicleSettings

	mu sync.Mutex
}

func NewSettingsRepository(repo *storage.Repository, defaults core.VehicleSettings) *SettingsRepository {
	return &SettingsRepository{repo: repo, defaults: defaults}
}

// Get returns the stored settings, or the defaults when none were written yet.
func (s *SettingsRepository) Get(ctx context.Context) (core.VehicleSettings, error) {
	vs, ok, err := s.repo.VehicleSettings(ctx)
	if err != nil {
		return core.VehicleSettings{}, fmt.Errorf("load vehicle settings: %w", err)
	}
	if !ok {
		return s.defaultsCopy(), nil
	}
	return vs, nil
}

// Ensure writes the defaults when no settings exist and returns the current value.
func (s *SettingsRepository) Ensure(ctx context.Context) (core.VehicleSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs, ok, err := s.repo.VehicleSettings(ctx)
	if err != nil {
		return core.VehicleSettings{}, fmt.Errorf("load vehicle settings: %w", err)
	}
	if ok {
		return vs, nil
	}
	vs = s.defaultsCopy()
	if err := s.repo.PutVehicleSettings(ctx, vs); err != nil {
		return core.VehicleSettings{}, fmt.Errorf("write default vehicle settings: %w", err)
	}
	return vs, nil
}

// Update applies fn to the current settings and stores the result if it validates.
// The value passed to fn is a private copy.
func (s *SettingsRepository) Update(ctx context.Context, fn func(*core.VehicleSettings) error) (core.VehicleSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	vs, ok, err := s.repo.VehicleSettings(ctx)
	if err != nil {
		return core.VehicleSettings{}, fmt.Errorf("load vehicle settings: %w", err)
	}
	if !ok {
		vs = s.defaultsCopy()
	}
	vs.MaintenanceItems = append([]core.MaintenanceItem{}, vs.MaintenanceItems...)

	if err := fn(&vs); err != nil {
		return core.VehicleSettings{}, err
	}
	if err := vs.Validate(); err != nil {
		return core.VehicleSettings{}, err
	}
	if err := s.repo.PutVehicleSettings(ctx, vs); err != nil {
		return core.VehicleSettings{}, fmt.Errorf("save vehicle settings: %w", err)
	}
	return vs, nil
}

func (s *SettingsRepository) defaultsCopy() core.VehicleSettings {
	vs := s.defaults
	vs.MaintenanceItems = append([]core.MaintenanceItem{}, s.defaults.MaintenanceItems...)
	return vs
}
