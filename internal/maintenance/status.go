package maintenance

import (
	"fmt"

	"entregas/internal/core"
)

// Compute returns one status per item, in item order.
func Compute(items []core.MaintenanceItem, at Reading) ([]ItemStatus, error) {
	out := make([]ItemStatus, 0, len(items))
	for _, item := range items {
		checker, err := GetDuenessChecker(item.Type)
		if err != nil {
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}
		out = append(out, checker.Check(item, at))
	}
	return out, nil
}

// CurrentOdometer is the larger of the most recent entry's final mileage and
// the most recent refuel's odometer, both picked by date.
func CurrentOdometer(entries []core.DailyEntry, refuels []core.Refuel) float64 {
	var (
		entryDate  core.Date
		entryValue float64
	)
	for _, e := range entries {
		if entryDate.IsZero() || e.Date.After(entryDate) || (e.Date.Equal(entryDate.Time) && e.FinalMileage > entryValue) {
			entryDate, entryValue = e.Date, e.FinalMileage
		}
	}

	var (
		refuelDate  core.Date
		refuelValue float64
	)
	for _, r := range refuels {
		if refuelDate.IsZero() || r.Date.After(refuelDate) || (r.Date.Equal(refuelDate.Time) && r.Odometer > refuelValue) {
			refuelDate, refuelValue = r.Date, r.Odometer
		}
	}

	return max(entryValue, refuelValue)
}

// MarkDone records a service at the given odometer and date.
func MarkDone(item core.MaintenanceItem, odometer float64, date core.Date) core.MaintenanceItem {
	item.LastPerformedDistance = &odometer
	item.LastPerformedDate = &date
	return item
}
