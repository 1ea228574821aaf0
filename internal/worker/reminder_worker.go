package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"entregas/internal/amqp"
	"entregas/internal/core"
	"entregas/internal/maintenance"
	"entregas/internal/services"
	"entregas/internal/storage"
)

// StatusSource computes maintenance statuses; nil odometer means "current".
type StatusSource interface {
	ComputeMaintenanceStatuses(ctx context.Context, odometer *float64) (services.MaintenanceView, error)
}

// StatusGauge receives the per-status item counts after each check.
type StatusGauge interface {
	SetMaintenanceCounts(counts map[string]int)
}

// ReminderWorker re-evaluates maintenance items periodically and whenever a
// change event touches the odometer or the settings, and reports items that
// entered warning or due.
type ReminderWorker struct {
	source StatusSource
	gauge  StatusGauge

	mu   sync.Mutex
	last map[string]maintenance.Status
}

func NewReminderWorker(source StatusSource, gauge StatusGauge) *ReminderWorker {
	return &ReminderWorker{
		source: source,
		gauge:  gauge,
		last:   map[string]maintenance.Status{},
	}
}

// Alert is an item whose status changed to warning or due since the previous check.
type Alert struct {
	Item   core.MaintenanceItem
	From   maintenance.Status
	To     maintenance.Status
	Detail maintenance.ItemStatus
}

// Check computes every status and returns the new alerts.
func (w *ReminderWorker) Check(ctx context.Context) ([]Alert, error) {
	view, err := w.source.ComputeMaintenanceStatuses(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("compute maintenance statuses: %w", err)
	}

	counts := map[string]int{
		string(maintenance.StatusOK):      0,
		string(maintenance.StatusWarning): 0,
		string(maintenance.StatusDue):     0,
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	var alerts []Alert
	seen := make(map[string]bool, len(view.Items))
	for _, st := range view.Items {
		counts[string(st.Status)]++
		seen[st.Item.ID] = true

		prev, known := w.last[st.Item.ID]
		w.last[st.Item.ID] = st.Status
		if st.Status == maintenance.StatusOK || (known && prev == st.Status) {
			continue
		}
		alerts = append(alerts, Alert{Item: st.Item, From: prev, To: st.Status, Detail: st})
	}
	for id := range w.last {
		if !seen[id] {
			delete(w.last, id)
		}
	}

	if w.gauge != nil {
		w.gauge.SetMaintenanceCounts(counts)
	}

	for _, a := range alerts {
		slog.WarnContext(ctx, "Maintenance reminder",
			"item_id", a.Item.ID,
			"name", a.Item.Name,
			"status", a.To,
			"remaining", a.Detail.Remaining,
			"unit", a.Detail.Unit,
			"odometer", view.Odometer)
	}
	slog.InfoContext(ctx, "Maintenance check complete",
		"items", len(view.Items),
		"warning", counts[string(maintenance.StatusWarning)],
		"due", counts[string(maintenance.StatusDue)],
		"odometer", view.Odometer)

	return alerts, nil
}

// HandleChange re-checks when a change can move the odometer or the items.
func (w *ReminderWorker) HandleChange(ctx context.Context, ev *amqp.ChangeEvent) error {
	switch storage.Collection(ev.Collection) {
	case storage.DailyEntries, storage.Refuels, storage.Settings:
	case "":
		if ev.Op != amqp.OpReplace {
			return nil
		}
	default:
		return nil
	}

	slog.DebugContext(ctx, "Change event triggers maintenance check",
		"collection", ev.Collection,
		"op", ev.Op,
		"id", ev.ID)
	_, err := w.Check(ctx)
	return err
}

// Run checks once immediately, then every interval until ctx is done.
func (w *ReminderWorker) Run(ctx context.Context, interval time.Duration) error {
	if _, err := w.Check(ctx); err != nil {
		slog.ErrorContext(ctx, "Startup maintenance check failed", "error", err)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.Check(ctx); err != nil {
				slog.ErrorContext(ctx, "Periodic maintenance check failed", "error", err)
			}
		}
	}
}
