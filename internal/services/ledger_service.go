package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/sync/errgroup"

	"entregas/internal/amqp"
	"entregas/internal/backup"
	"entregas/internal/cache"
	"entregas/internal/core"
	"entregas/internal/log"
	"entregas/internal/maintenance"
	"entregas/internal/report"
	"entregas/internal/storage"
)

// ErrNoEfficiencyData means no refuel carries enough data to compute km/L.
var ErrNoEfficiencyData = errors.New("no refuel with distance and liters recorded")

// Notifier receives a change event after every committed write.
type Notifier interface {
	PublishChange(ctx context.Context, ev *amqp.ChangeEvent) error
}

// Data is everything the client needs to render the ledger.
type Data struct {
	Companies       []core.Company       `json:"companies"`
	DailyEntries    []core.DailyEntry    `json:"dailyEntries"`
	Costs           []core.Cost          `json:"costs"`
	Refuels         []core.Refuel        `json:"refuels"`
	VehicleSettings core.VehicleSettings `json:"vehicleSettings"`
}

// VehicleSettingsPatch carries the fields to change; nil fields are kept.
type VehicleSettingsPatch struct {
	AverageEfficiency *float64                `json:"averageEfficiency"`
	LastFuelPrice     *float64                `json:"lastFuelPrice"`
	MaintenanceItems  *[]core.MaintenanceItem `json:"maintenanceItems"`
}

// MaintenanceView is the due status of every item at a given odometer reading.
type MaintenanceView struct {
	Odometer float64                  `json:"odometer"`
	Today    core.Date                `json:"today"`
	Items    []maintenance.ItemStatus `json:"items"`
}

// LedgerService orchestrates every ledger operation over the local store.
type LedgerService struct {
	store    storage.Store
	repo     *storage.Repository
	settings *SettingsRepository
	backup   *backup.Serializer
	notifier Notifier
	logger   *log.Logger

	importSkipped func(collection string, n int)
	today         func() core.Date
	reports       cache.Cache[report.MonthlyReport]
}

type Option func(*LedgerService)

// WithNotifier publishes change events after writes.
func WithNotifier(n Notifier) Option {
	return func(s *LedgerService) { s.notifier = n }
}

// WithImportSkipHook is called once per collection with the number of records an import skipped.
func WithImportSkipHook(fn func(collection string, n int)) Option {
	return func(s *LedgerService) { s.importSkipped = fn }
}

// WithToday overrides the calendar used for maintenance checks.
func WithToday(fn func() core.Date) Option {
	return func(s *LedgerService) { s.today = fn }
}

// WithReportCache memoizes monthly reports per month and store generation, so
// any write to the store, from this process or another, invalidates them.
func WithReportCache(c cache.Cache[report.MonthlyReport]) Option {
	return func(s *LedgerService) { s.reports = c }
}

func NewLedgerService(store storage.Store, defaults core.VehicleSettings, logger *log.Logger, opts ...Option) *LedgerService {
	repo := storage.NewRepository(store)
	s := &LedgerService{
		store:    store,
		repo:     repo,
		settings: NewSettingsRepository(repo, defaults),
		backup:   backup.New(store, logger),
		logger:   logger.WithComponent(log.ComponentLedger),
		today:    core.Today,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *LedgerService) Settings() *SettingsRepository { return s.settings }

// Today is the service's current calendar day.
func (s *LedgerService) Today() core.Date { return s.today() }

// LoadAll opens the store, writes default settings on first run and reads
// every collection concurrently.
func (s *LedgerService) LoadAll(ctx context.Context) (Data, error) {
	if err := s.store.Open(ctx); err != nil {
		return Data{}, err
	}

	var data Data
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		data.Companies, err = s.repo.Companies(gctx)
		return err
	})
	g.Go(func() error {
		entries, err := s.repo.DailyEntries(gctx)
		data.DailyEntries = report.FilterEntries(entries, report.EntryFilter{})
		return err
	})
	g.Go(func() error {
		costs, err := s.repo.Costs(gctx)
		data.Costs = report.FilterCosts(costs, report.CostFilter{})
		return err
	})
	g.Go(func() error {
		refuels, err := s.repo.Refuels(gctx)
		data.Refuels = report.SortRefuels(refuels)
		return err
	})
	g.Go(func() (err error) {
		data.VehicleSettings, err = s.settings.Ensure(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Data{}, fmt.Errorf("load all: %w", err)
	}

	s.logger.DebugContext(ctx, "Ledger loaded",
		log.FieldOperation, log.OpList,
		"companies", len(data.Companies),
		"daily_entries", len(data.DailyEntries),
		"costs", len(data.Costs),
		"refuels", len(data.Refuels))
	return data, nil
}

// assignID gives new records an id and reports whether the record is new.
func assignID(id *string) bool {
	if *id != "" {
		return false
	}
	*id = core.NewID()
	return true
}

func (s *LedgerService) SaveCompany(ctx context.Context, c core.Company) (core.Company, error) {
	if err := c.Validate(); err != nil {
		return core.Company{}, err
	}
	created := assignID(&c.ID)
	if err := s.repo.PutCompany(ctx, c, created); err != nil {
		return core.Company{}, fmt.Errorf("save company: %w", err)
	}
	s.changed(ctx, storage.Companies, opFor(created), c.ID)
	return c, nil
}

// DeleteCompany removes the company only; entries keep their snapshot name.
func (s *LedgerService) DeleteCompany(ctx context.Context, id string) error {
	return s.delete(ctx, storage.Companies, id)
}

// SaveDailyEntry snapshots the company name and derives earnings and fuel
// cost with the settings in force now.
func (s *LedgerService) SaveDailyEntry(ctx context.Context, e core.DailyEntry) (core.DailyEntry, error) {
	if err := e.Validate(); err != nil {
		return core.DailyEntry{}, err
	}

	company, err := s.repo.Company(ctx, e.CompanyID)
	switch {
	case err == nil:
		e.CompanyName = company.Name
	case storage.IsNotFound(err):
		e.CompanyName = core.UnknownCompanyName
	default:
		return core.DailyEntry{}, fmt.Errorf("resolve company: %w", err)
	}

	vs, err := s.settings.Get(ctx)
	if err != nil {
		return core.DailyEntry{}, err
	}
	core.DeriveDailyEntry(&e, vs)

	created := assignID(&e.ID)
	if err := s.repo.PutDailyEntry(ctx, e, created); err != nil {
		return core.DailyEntry{}, fmt.Errorf("save daily entry: %w", err)
	}
	s.changed(ctx, storage.DailyEntries, opFor(created), e.ID)
	return e, nil
}

func (s *LedgerService) DeleteDailyEntry(ctx context.Context, id string) error {
	return s.delete(ctx, storage.DailyEntries, id)
}

func (s *LedgerService) SaveCost(ctx context.Context, c core.Cost) (core.Cost, error) {
	if c.Category == "" {
		c.Category = core.CategoryOther
	}
	if err := c.Validate(); err != nil {
		return core.Cost{}, err
	}
	created := assignID(&c.ID)
	if err := s.repo.PutCost(ctx, c, created); err != nil {
		return core.Cost{}, fmt.Errorf("save cost: %w", err)
	}
	s.changed(ctx, storage.Costs, opFor(created), c.ID)
	return c, nil
}

func (s *LedgerService) DeleteCost(ctx context.Context, id string) error {
	return s.delete(ctx, storage.Costs, id)
}

// SaveRefuel derives total cost and km/L, then carries the price per liter
// into the vehicle settings when it changed. A positive totalCost overrides
// liters times price.
func (s *LedgerService) SaveRefuel(ctx context.Context, r core.Refuel, totalCost *core.Money) (core.Refuel, error) {
	if err := r.Validate(); err != nil {
		return core.Refuel{}, err
	}
	core.DeriveRefuel(&r, totalCost)

	created := assignID(&r.ID)
	if err := s.repo.PutRefuel(ctx, r, created); err != nil {
		return core.Refuel{}, fmt.Errorf("save refuel: %w", err)
	}
	s.changed(ctx, storage.Refuels, opFor(created), r.ID)

	var priceChanged bool
	_, err := s.settings.Update(ctx, func(vs *core.VehicleSettings) error {
		if vs.LastFuelPrice != r.PricePerLiter {
			vs.LastFuelPrice = r.PricePerLiter
			priceChanged = true
		}
		return nil
	})
	if err != nil {
		return r, fmt.Errorf("update fuel price: %w", err)
	}
	if priceChanged {
		s.logger.InfoContext(ctx, "Fuel price updated from refuel",
			log.FieldRecordID, r.ID,
			"price_per_liter", r.PricePerLiter)
		s.changed(ctx, storage.Settings, amqp.OpUpdate, core.VehicleSettingsKey)
	}
	return r, nil
}

func (s *LedgerService) DeleteRefuel(ctx context.Context, id string) error {
	return s.delete(ctx, storage.Refuels, id)
}

// SaveVehicleSettings merges patch into the stored settings.
func (s *LedgerService) SaveVehicleSettings(ctx context.Context, patch VehicleSettingsPatch) (core.VehicleSettings, error) {
	vs, err := s.settings.Update(ctx, func(vs *core.VehicleSettings) error {
		if patch.AverageEfficiency != nil {
			vs.AverageEfficiency = *patch.AverageEfficiency
		}
		if patch.LastFuelPrice != nil {
			vs.LastFuelPrice = *patch.LastFuelPrice
		}
		if patch.MaintenanceItems != nil {
			items := append([]core.MaintenanceItem{}, (*patch.MaintenanceItems)...)
			for i := range items {
				assignID(&items[i].ID)
			}
			vs.MaintenanceItems = items
		}
		return nil
	})
	if err != nil {
		return core.VehicleSettings{}, err
	}
	s.changed(ctx, storage.Settings, amqp.OpUpdate, core.VehicleSettingsKey)
	return vs, nil
}

func (s *LedgerService) VehicleSettings(ctx context.Context) (core.VehicleSettings, error) {
	return s.settings.Get(ctx)
}

// AverageEfficiency is the km/L measured across all refuels.
func (s *LedgerService) AverageEfficiency(ctx context.Context) (float64, bool, error) {
	refuels, err := s.repo.Refuels(ctx)
	if err != nil {
		return 0, false, err
	}
	kml, ok := report.AverageEfficiency(refuels)
	return kml, ok, nil
}

// UseAverageEfficiency replaces the configured efficiency with the measured one.
func (s *LedgerService) UseAverageEfficiency(ctx context.Context) (core.VehicleSettings, error) {
	kml, ok, err := s.AverageEfficiency(ctx)
	if err != nil {
		return core.VehicleSettings{}, err
	}
	if !ok {
		return core.VehicleSettings{}, &core.ValidationError{Field: "averageEfficiency", Err: ErrNoEfficiencyData}
	}
	return s.SaveVehicleSettings(ctx, VehicleSettingsPatch{AverageEfficiency: &kml})
}

// SaveMaintenanceItem adds the item, or replaces the one with the same id.
func (s *LedgerService) SaveMaintenanceItem(ctx context.Context, item core.MaintenanceItem) (core.MaintenanceItem, error) {
	if err := item.Validate(); err != nil {
		return core.MaintenanceItem{}, err
	}
	created := assignID(&item.ID)
	_, err := s.settings.Update(ctx, func(vs *core.VehicleSettings) error {
		if !created {
			for i := range vs.MaintenanceItems {
				if vs.MaintenanceItems[i].ID == item.ID {
					vs.MaintenanceItems[i] = item
					return nil
				}
			}
		}
		vs.MaintenanceItems = append(vs.MaintenanceItems, item)
		return nil
	})
	if err != nil {
		return core.MaintenanceItem{}, err
	}
	s.changed(ctx, storage.Settings, amqp.OpUpdate, core.VehicleSettingsKey)
	return item, nil
}

// DeleteMaintenanceItem removes the item; unknown ids are a no-op.
func (s *LedgerService) DeleteMaintenanceItem(ctx context.Context, id string) error {
	_, err := s.settings.Update(ctx, func(vs *core.VehicleSettings) error {
		kept := vs.MaintenanceItems[:0]
		for _, item := range vs.MaintenanceItems {
			if item.ID != id {
				kept = append(kept, item)
			}
		}
		vs.MaintenanceItems = kept
		return nil
	})
	if err != nil {
		return err
	}
	s.changed(ctx, storage.Settings, amqp.OpUpdate, core.VehicleSettingsKey)
	return nil
}

// MarkMaintenanceDone records a service of item id. Nil arguments default to
// the current odometer and today.
func (s *LedgerService) MarkMaintenanceDone(ctx context.Context, id string, odometer *float64, date *core.Date) (core.MaintenanceItem, error) {
	odo := 0.0
	if odometer != nil {
		odo = *odometer
	} else {
		current, err := s.CurrentOdometer(ctx)
		if err != nil {
			return core.MaintenanceItem{}, err
		}
		odo = current
	}
	when := s.today()
	if date != nil && !date.IsZero() {
		when = *date
	}

	var done core.MaintenanceItem
	_, err := s.settings.Update(ctx, func(vs *core.VehicleSettings) error {
		for i := range vs.MaintenanceItems {
			if vs.MaintenanceItems[i].ID == id {
				done = maintenance.MarkDone(vs.MaintenanceItems[i], odo, when)
				vs.MaintenanceItems[i] = done
				return nil
			}
		}
		return fmt.Errorf("maintenance item %s: %w", id, storage.ErrNotFound)
	})
	if err != nil {
		return core.MaintenanceItem{}, err
	}

	s.logger.InfoContext(ctx, "Maintenance marked done",
		log.FieldRecordID, id,
		log.FieldOdometer, odo,
		"date", when.String())
	s.changed(ctx, storage.Settings, amqp.OpUpdate, core.VehicleSettingsKey)
	return done, nil
}

// CurrentOdometer is the best known odometer reading from entries and refuels.
func (s *LedgerService) CurrentOdometer(ctx context.Context) (float64, error) {
	var (
		entries []core.DailyEntry
		refuels []core.Refuel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		entries, err = s.repo.DailyEntries(gctx)
		return err
	})
	g.Go(func() (err error) {
		refuels, err = s.repo.Refuels(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return maintenance.CurrentOdometer(entries, refuels), nil
}

// ComputeMaintenanceStatuses evaluates every maintenance item. A nil odometer
// uses CurrentOdometer.
func (s *LedgerService) ComputeMaintenanceStatuses(ctx context.Context, odometer *float64) (MaintenanceView, error) {
	vs, err := s.settings.Get(ctx)
	if err != nil {
		return MaintenanceView{}, err
	}

	view := MaintenanceView{Today: s.today()}
	if odometer != nil {
		view.Odometer = *odometer
	} else if view.Odometer, err = s.CurrentOdometer(ctx); err != nil {
		return MaintenanceView{}, err
	}

	view.Items, err = maintenance.Compute(vs.MaintenanceItems, maintenance.Reading{Odometer: view.Odometer, Today: view.Today})
	if err != nil {
		return MaintenanceView{}, err
	}
	return view, nil
}

func (s *LedgerService) ComputeMonthlyReport(ctx context.Context, month core.YearMonth) (report.MonthlyReport, error) {
	var key string
	if s.reports != nil {
		// Read before the data so a concurrent write can only leave a newer report under an older key.
		gen, err := s.store.Generation(ctx)
		if err != nil {
			return report.MonthlyReport{}, fmt.Errorf("monthly report: %w", err)
		}
		key = fmt.Sprintf("%s@%d", month, gen)
		if r, ok := s.reports.Get(key); ok {
			return r, nil
		}
	}

	var (
		entries   []core.DailyEntry
		costs     []core.Cost
		companies []core.Company
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		entries, err = s.repo.DailyEntries(gctx)
		return err
	})
	g.Go(func() (err error) {
		costs, err = s.repo.Costs(gctx)
		return err
	})
	g.Go(func() (err error) {
		companies, err = s.repo.Companies(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return report.MonthlyReport{}, fmt.Errorf("monthly report: %w", err)
	}

	s.logger.DebugContext(ctx, "Computing monthly report",
		log.FieldOperation, log.OpReport,
		log.FieldMonth, month.String())
	r := report.Monthly(entries, costs, companies, month)
	if s.reports != nil {
		s.reports.Set(key, r)
	}
	return r, nil
}

func (s *LedgerService) ListEntries(ctx context.Context, f report.EntryFilter) ([]core.DailyEntry, error) {
	entries, err := s.repo.DailyEntries(ctx)
	if err != nil {
		return nil, err
	}
	return report.FilterEntries(entries, f), nil
}

func (s *LedgerService) ListCosts(ctx context.Context, f report.CostFilter) ([]core.Cost, error) {
	costs, err := s.repo.Costs(ctx)
	if err != nil {
		return nil, err
	}
	return report.FilterCosts(costs, f), nil
}

// ExportEntriesCSV writes the filtered entries as CSV.
func (s *LedgerService) ExportEntriesCSV(ctx context.Context, w io.Writer, f report.EntryFilter) error {
	entries, companies, err := s.entriesForExport(ctx, f)
	if err != nil {
		return err
	}
	return report.WriteEntriesCSV(w, entries, companies)
}

// ExportEntriesXLSX writes the filtered entries as a spreadsheet.
func (s *LedgerService) ExportEntriesXLSX(ctx context.Context, w io.Writer, f report.EntryFilter) error {
	entries, companies, err := s.entriesForExport(ctx, f)
	if err != nil {
		return err
	}
	return report.WriteEntriesXLSX(w, entries, companies)
}

func (s *LedgerService) entriesForExport(ctx context.Context, f report.EntryFilter) ([]core.DailyEntry, []core.Company, error) {
	entries, err := s.ListEntries(ctx, f)
	if err != nil {
		return nil, nil, err
	}
	companies, err := s.repo.Companies(ctx)
	if err != nil {
		return nil, nil, err
	}
	s.logger.InfoContext(ctx, "Exporting entries",
		log.FieldOperation, log.OpExport,
		log.FieldCount, len(entries))
	return entries, companies, nil
}

// ExportAll returns the backup document of the whole store.
func (s *LedgerService) ExportAll(ctx context.Context) (backup.Document, error) {
	return s.backup.Export(ctx)
}

// WriteExport encodes the backup document to w.
func (s *LedgerService) WriteExport(ctx context.Context, w io.Writer) error {
	return s.backup.WriteExport(ctx, w)
}

// ImportAll replaces the store content with the document read from r.
func (s *LedgerService) ImportAll(ctx context.Context, r io.Reader) (backup.Result, error) {
	started := time.Now()
	res, err := s.backup.Import(ctx, r)
	if err != nil {
		s.logger.ErrorContext(ctx, "Import failed",
			log.FieldOperation, log.OpImport,
			log.FieldError, err.Error())
		return backup.Result{}, err
	}

	if s.importSkipped != nil {
		skipped := map[storage.Collection]int{}
		for _, w := range res.Warnings {
			skipped[w.Collection]++
		}
		for c, n := range skipped {
			s.importSkipped(string(c), n)
		}
	}

	s.logger.InfoContext(ctx, "Ledger replaced from import",
		log.FieldOperation, log.OpImport,
		log.FieldDuration, time.Since(started).Milliseconds())
	s.changed(ctx, "", amqp.OpReplace, "")
	return res, nil
}

func (s *LedgerService) delete(ctx context.Context, c storage.Collection, id string) error {
	if err := s.repo.Delete(ctx, c, id); err != nil {
		return fmt.Errorf("delete %s %s: %w", c, id, err)
	}
	s.changed(ctx, c, amqp.OpDelete, id)
	return nil
}

func opFor(created bool) string {
	if created {
		return amqp.OpCreate
	}
	return amqp.OpUpdate
}

// changed publishes a change event. Publishing failures are logged and never
// fail the write that already committed.
func (s *LedgerService) changed(ctx context.Context, c storage.Collection, op, id string) {
	if s.reports != nil {
		s.reports.Purge()
	}
	s.logger.InfoContext(ctx, "Ledger changed",
		log.FieldCollection, string(c),
		log.FieldOperation, op,
		log.FieldRecordID, id)

	if s.notifier == nil {
		return
	}
	if err := s.notifier.PublishChange(ctx, amqp.NewChangeEvent(string(c), op, id)); err != nil {
		s.logger.WarnContext(ctx, "Failed to publish change event",
			log.FieldCollection, string(c),
			log.FieldRecordID, id,
			log.FieldError, err.Error())
	}
}
