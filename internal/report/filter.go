package report

import (
	"sort"

	"entregas/internal/core"
)

// EntryFilter narrows daily entries. Zero values disable a criterion; both
// date bounds are inclusive.
type EntryFilter struct {
	From      core.Date
	To        core.Date
	CompanyID string
}

// CostFilter narrows costs the same way, by category instead of company.
type CostFilter struct {
	From     core.Date
	To       core.Date
	Category core.CostCategory
}

func inRange(d, from, to core.Date) bool {
	if !from.IsZero() && d.Before(from) {
		return false
	}
	if !to.IsZero() && d.After(to) {
		return false
	}
	return true
}

// FilterEntries returns matching entries, newest first.
func FilterEntries(entries []core.DailyEntry, f EntryFilter) []core.DailyEntry {
	out := []core.DailyEntry{}
	for _, e := range entries {
		if !inRange(e.Date, f.From, f.To) {
			continue
		}
		if f.CompanyID != "" && e.CompanyID != f.CompanyID {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// FilterCosts returns matching costs, newest first.
func FilterCosts(costs []core.Cost, f CostFilter) []core.Cost {
	out := []core.Cost{}
	for _, c := range costs {
		if !inRange(c.Date, f.From, f.To) {
			continue
		}
		if f.Category != "" && c.Category != f.Category {
			continue
		}
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// SortRefuels orders refuels newest first.
func SortRefuels(refuels []core.Refuel) []core.Refuel {
	out := append([]core.Refuel(nil), refuels...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out
}

// AverageEfficiency is total km over total liters across refuels that have a
// computed km/L. ok is false when there is nothing to average.
func AverageEfficiency(refuels []core.Refuel) (kml float64, ok bool) {
	var km, liters float64
	for _, r := range refuels {
		if r.CalculatedKmL == nil || r.KmSinceLastRefuel == nil || r.LitersFilled <= 0 {
			continue
		}
		km += *r.KmSinceLastRefuel
		liters += r.LitersFilled
	}
	if liters == 0 {
		return 0, false
	}
	return core.Round2(km / liters), true
}
