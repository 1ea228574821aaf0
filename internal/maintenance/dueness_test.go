package maintenance

import (
	"testing"

	"entregas/internal/core"
)

func km(v float64) *float64 { return &v }

func day(y, m, d int) *core.Date {
	date := core.NewDate(y, m, d)
	return &date
}

func TestDistanceChecker_Check(t *testing.T) {
	checker := DistanceChecker{}
	item := core.MaintenanceItem{ID: "oil", Name: "Oil change", Type: core.MaintenanceDistance, IntervalDistance: 10000, LastPerformedDistance: km(0)}

	tests := []struct {
		name          string
		odometer      float64
		want          Status
		wantRemaining float64
	}{
		{name: "fresh service is ok", odometer: 1000, want: StatusOK, wantRemaining: 9000},
		{name: "just outside warning window", odometer: 8499, want: StatusOK, wantRemaining: 1501},
		{name: "warning window starts at threshold", odometer: 8500, want: StatusWarning, wantRemaining: 1500},
		{name: "inside warning window", odometer: 9200, want: StatusWarning, wantRemaining: 800},
		{name: "exactly at next due point", odometer: 10000, want: StatusDue, wantRemaining: 0},
		{name: "overdue", odometer: 10500, want: StatusDue, wantRemaining: -500},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checker.Check(item, Reading{Odometer: tt.odometer})
			if got.Status != tt.want {
				t.Errorf("DistanceChecker.Check() status = %v, want %v", got.Status, tt.want)
			}
			if got.Remaining != tt.wantRemaining {
				t.Errorf("DistanceChecker.Check() remaining = %v, want %v", got.Remaining, tt.wantRemaining)
			}
			if got.Threshold != 1500 {
				t.Errorf("DistanceChecker.Check() threshold = %v, want 1500", got.Threshold)
			}
		})
	}
}

func TestDistanceChecker_NeverPerformedCountsFromZero(t *testing.T) {
	item := core.MaintenanceItem{Type: core.MaintenanceDistance, IntervalDistance: 5000}
	got := DistanceChecker{}.Check(item, Reading{Odometer: 4800})
	if got.Status != StatusWarning || got.NextDueDistance == nil || *got.NextDueDistance != 5000 {
		t.Errorf("got %+v, want warning with next due 5000", got)
	}
}

func TestDistanceChecker_Monotonic(t *testing.T) {
	item := core.MaintenanceItem{Type: core.MaintenanceDistance, IntervalDistance: 7000, LastPerformedDistance: km(12000)}
	rank := map[Status]int{StatusOK: 0, StatusWarning: 1, StatusDue: 2}

	prev := StatusOK
	for odo := 12000.0; odo <= 21000; odo += 50 {
		got := DistanceChecker{}.Check(item, Reading{Odometer: odo}).Status
		if rank[got] < rank[prev] {
			t.Fatalf("status regressed from %s to %s at odometer %v", prev, got, odo)
		}
		prev = got
	}
	if prev != StatusDue {
		t.Fatalf("final status = %s, want due", prev)
	}
}

func TestTimeChecker_Check(t *testing.T) {
	checker := TimeChecker{}
	// 2025-01-10 + 6 months = 2025-07-10, an interval of 181 days; 15% is 27.15 days.
	item := core.MaintenanceItem{Type: core.MaintenanceTime, IntervalMonths: 6, LastPerformedDate: day(2025, 1, 10)}

	tests := []struct {
		name  string
		today core.Date
		want  Status
	}{
		{name: "shortly after service", today: core.NewDate(2025, 2, 1), want: StatusOK},
		{name: "28 days left", today: core.NewDate(2025, 6, 12), want: StatusOK},
		{name: "27 days left", today: core.NewDate(2025, 6, 13), want: StatusWarning},
		{name: "one day left", today: core.NewDate(2025, 7, 9), want: StatusWarning},
		{name: "due today", today: core.NewDate(2025, 7, 10), want: StatusDue},
		{name: "overdue", today: core.NewDate(2025, 9, 1), want: StatusDue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := checker.Check(item, Reading{Today: tt.today})
			if got.Status != tt.want {
				t.Errorf("TimeChecker.Check() = %v (remaining %v, threshold %v), want %v", got.Status, got.Remaining, got.Threshold, tt.want)
			}
		})
	}
}

func TestTimeChecker_MinimumWindow(t *testing.T) {
	// One month is 31 days here; 15% would be 4.65, so the 15-day floor applies.
	item := core.MaintenanceItem{Type: core.MaintenanceTime, IntervalMonths: 1, LastPerformedDate: day(2025, 3, 1)}

	got := TimeChecker{}.Check(item, Reading{Today: core.NewDate(2025, 3, 18)})
	if got.Threshold != MinWarningDays {
		t.Errorf("threshold = %v, want %v", got.Threshold, MinWarningDays)
	}
	if got.Status != StatusWarning {
		t.Errorf("status = %v with %v days left, want warning", got.Status, got.Remaining)
	}
}

func TestTimeChecker_NeverPerformedIsDue(t *testing.T) {
	item := core.MaintenanceItem{Type: core.MaintenanceTime, IntervalMonths: 12}
	if got := (TimeChecker{}).Check(item, Reading{Today: core.NewDate(2025, 1, 1)}); got.Status != StatusDue {
		t.Errorf("status = %v, want due", got.Status)
	}
}

func TestGetDuenessChecker(t *testing.T) {
	if _, err := GetDuenessChecker(core.MaintenanceDistance); err != nil {
		t.Errorf("distance: unexpected error %v", err)
	}
	if _, err := GetDuenessChecker(core.MaintenanceTime); err != nil {
		t.Errorf("time: unexpected error %v", err)
	}
	if _, err := GetDuenessChecker("mileage"); err == nil {
		t.Error("expected error for unknown type")
	}
}

func TestCompute_KeepsOrderAndMarkDoneResets(t *testing.T) {
	items := []core.MaintenanceItem{
		{ID: "tires", Type: core.MaintenanceTime, IntervalMonths: 12, LastPerformedDate: day(2024, 1, 1)},
		{ID: "oil", Type: core.MaintenanceDistance, IntervalDistance: 10000, LastPerformedDistance: km(0)},
	}
	at := Reading{Odometer: 9200, Today: core.NewDate(2025, 3, 1)}

	statuses, err := Compute(items, at)
	if err != nil {
		t.Fatal(err)
	}
	if len(statuses) != 2 || statuses[0].Item.ID != "tires" || statuses[1].Item.ID != "oil" {
		t.Fatalf("unexpected order: %+v", statuses)
	}
	if statuses[0].Status != StatusDue || statuses[1].Status != StatusWarning {
		t.Fatalf("statuses = %s/%s, want due/warning", statuses[0].Status, statuses[1].Status)
	}

	done := MarkDone(items[1], at.Odometer, at.Today)
	if got := (DistanceChecker{}).Check(done, at); got.Status != StatusOK {
		t.Errorf("after MarkDone status = %v, want ok", got.Status)
	}
	if items[1].LastPerformedDistance == nil || *items[1].LastPerformedDistance != 0 {
		t.Error("MarkDone must not modify the original item")
	}
}

func TestCompute_UnknownType(t *testing.T) {
	if _, err := Compute([]core.MaintenanceItem{{ID: "x", Type: "weird"}}, Reading{}); err == nil {
		t.Error("expected error")
	}
}

func TestCurrentOdometer(t *testing.T) {
	entries := []core.DailyEntry{
		{Date: core.NewDate(2025, 3, 1), FinalMileage: 15000},
		{Date: core.NewDate(2025, 3, 5), FinalMileage: 15200},
		{Date: core.NewDate(2025, 2, 1), FinalMileage: 99999}, // older, ignored
	}
	refuels := []core.Refuel{
		{Date: core.NewDate(2025, 3, 6), Odometer: 15150},
		{Date: core.NewDate(2025, 3, 4), Odometer: 15300}, // older than the newest refuel
	}

	if got := CurrentOdometer(entries, refuels); got != 15200 {
		t.Errorf("CurrentOdometer() = %v, want 15200", got)
	}
	if got := CurrentOdometer(nil, refuels[:1]); got != 15150 {
		t.Errorf("CurrentOdometer() refuels only = %v, want 15150", got)
	}
	if got := CurrentOdometer(nil, nil); got != 0 {
		t.Errorf("CurrentOdometer() empty = %v, want 0", got)
	}
}
