// Package report turns stored entries and costs into monthly summaries.
//
// Everything here is a pure function of its inputs; reports are recomputed
// from the full record set on every call.
package report

import (
	"sort"

	"entregas/internal/core"
)

// TrendMonths is the length of the trend series, ending at the selected month.
const TrendMonths = 6

// UnknownCompanyLabel is shown for entries whose company can no longer be resolved.
const UnknownCompanyLabel = "Unknown company"

type (
	CompanySummary struct {
		CompanyID     string      `json:"companyId"`
		CompanyName   string      `json:"companyName"`
		TotalEarned   core.Money  `json:"totalEarned"`
		Deliveries    int         `json:"deliveries"`
		Distance      float64     `json:"distance"`
		WorkedDays    int         `json:"workedDays"`
		AveragePerDay *core.Money `json:"averagePerDay,omitempty"`
	}

	CategoryTotal struct {
		Category core.CostCategory `json:"category"`
		Total    core.Money        `json:"total"`
	}

	TrendPoint struct {
		Month    core.YearMonth `json:"month"`
		Label    string         `json:"label"`
		Earnings core.Money     `json:"earnings"`
		Costs    core.Money     `json:"costs"`
		Profit   core.Money     `json:"profit"`
	}

	MonthlyReport struct {
		Month             core.YearMonth   `json:"month"`
		GrossEarnings     core.Money       `json:"grossEarnings"`
		TotalDistance     float64          `json:"totalDistance"`
		WorkedDays        int              `json:"workedDays"`
		TotalDeliveries   int              `json:"totalDeliveries"`
		EstimatedFuelCost core.Money       `json:"estimatedFuelCost"`
		TotalCosts        core.Money       `json:"totalCosts"`
		NetProfit         core.Money       `json:"netProfit"`
		AveragePerDay     *core.Money      `json:"averagePerDay,omitempty"`
		ByCompany         []CompanySummary `json:"byCompany"`
		CostsByCategory   []CategoryTotal  `json:"costsByCategory"`
		Trend             []TrendPoint     `json:"trend"`
	}
)

// Monthly builds the report for month. companies is only used to label
// entries whose snapshot name is empty.
func Monthly(entries []core.DailyEntry, costs []core.Cost, companies []core.Company, month core.YearMonth) MonthlyReport {
	names := make(map[string]string, len(companies))
	for _, c := range companies {
		names[c.ID] = c.Name
	}

	monthEntries := entriesIn(entries, month)
	monthCosts := costsIn(costs, month)

	r := MonthlyReport{
		Month:           month,
		ByCompany:       byCompany(monthEntries, names),
		CostsByCategory: byCategory(monthCosts),
		Trend:           Trend(entries, costs, month),
	}

	days := map[string]struct{}{}
	for _, e := range monthEntries {
		r.GrossEarnings = r.GrossEarnings.Add(e.TotalEarnedToday)
		r.TotalDistance += e.MileageDriven
		r.TotalDeliveries += e.NumDeliveries
		r.EstimatedFuelCost = r.EstimatedFuelCost.Add(e.EstimatedFuelCost)
		days[e.Date.String()] = struct{}{}
	}
	r.TotalDistance = core.Round2(r.TotalDistance)
	r.WorkedDays = len(days)
	if r.WorkedDays > 0 {
		avg := r.GrossEarnings.DivInt(r.WorkedDays)
		r.AveragePerDay = &avg
	}

	r.TotalCosts = sumCosts(monthCosts)
	r.NetProfit = r.GrossEarnings.Sub(r.TotalCosts)
	return r
}

// Trend returns TrendMonths points ending at (and including) month.
func Trend(entries []core.DailyEntry, costs []core.Cost, month core.YearMonth) []TrendPoint {
	points := make([]TrendPoint, 0, TrendMonths)
	for i := TrendMonths - 1; i >= 0; i-- {
		m := month.AddMonths(-i)
		var earnings core.Money
		for _, e := range entriesIn(entries, m) {
			earnings = earnings.Add(e.TotalEarnedToday)
		}
		spent := sumCosts(costsIn(costs, m))
		points = append(points, TrendPoint{
			Month:    m,
			Label:    m.Label(),
			Earnings: earnings,
			Costs:    spent,
			Profit:   earnings.Sub(spent),
		})
	}
	return points
}

// CompanyLabel resolves the name shown for an entry: its snapshot, then the
// live company, then UnknownCompanyLabel.
func CompanyLabel(e core.DailyEntry, names map[string]string) string {
	if e.CompanyName != "" && e.CompanyName != core.UnknownCompanyName {
		return e.CompanyName
	}
	if name, ok := names[e.CompanyID]; ok && name != "" {
		return name
	}
	return UnknownCompanyLabel
}

func byCompany(entries []core.DailyEntry, names map[string]string) []CompanySummary {
	index := map[string]int{}
	days := map[string]map[string]struct{}{}
	out := []CompanySummary{}

	for _, e := range entries {
		i, ok := index[e.CompanyID]
		if !ok {
			i = len(out)
			index[e.CompanyID] = i
			days[e.CompanyID] = map[string]struct{}{}
			out = append(out, CompanySummary{CompanyID: e.CompanyID, CompanyName: CompanyLabel(e, names)})
		}
		s := &out[i]
		s.TotalEarned = s.TotalEarned.Add(e.TotalEarnedToday)
		s.Deliveries += e.NumDeliveries
		s.Distance += e.MileageDriven
		days[e.CompanyID][e.Date.String()] = struct{}{}
	}

	for i := range out {
		s := &out[i]
		s.Distance = core.Round2(s.Distance)
		s.WorkedDays = len(days[s.CompanyID])
		if s.WorkedDays > 0 {
			avg := s.TotalEarned.DivInt(s.WorkedDays)
			s.AveragePerDay = &avg
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TotalEarned.Cents > out[j].TotalEarned.Cents
	})
	return out
}

func byCategory(costs []core.Cost) []CategoryTotal {
	index := map[core.CostCategory]int{}
	out := []CategoryTotal{}
	for _, c := range costs {
		cat := c.Category
		if cat == "" {
			cat = core.CategoryOther
		}
		i, ok := index[cat]
		if !ok {
			i = len(out)
			index[cat] = i
			out = append(out, CategoryTotal{Category: cat})
		}
		out[i].Total = out[i].Total.Add(c.Amount)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Total.Cents > out[j].Total.Cents
	})
	return out
}

func entriesIn(entries []core.DailyEntry, month core.YearMonth) []core.DailyEntry {
	var out []core.DailyEntry
	for _, e := range entries {
		if month.Contains(e.Date) {
			out = append(out, e)
		}
	}
	return out
}

func costsIn(costs []core.Cost, month core.YearMonth) []core.Cost {
	var out []core.Cost
	for _, c := range costs {
		if month.Contains(c.Date) {
			out = append(out, c)
		}
	}
	return out
}

func sumCosts(costs []core.Cost) core.Money {
	var total core.Money
	for _, c := range costs {
		total = total.Add(c.Amount)
	}
	return total
}
