package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"entregas/internal/core"
	"entregas/internal/log"
	"entregas/internal/storage"
	"entregas/internal/storage/memory"
)

func testLogger() *log.Logger {
	return log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
}

func seed(t *testing.T, s storage.Store) {
	t.Helper()
	ctx := context.Background()
	repo := storage.NewRepository(s)

	require.NoError(t, repo.PutCompany(ctx, core.Company{ID: "c1", Name: "Rapid", Contact: "555"}, true))

	override := core.NewMoney(42, 10)
	entry := core.DailyEntry{ID: "e1", Date: core.NewDate(2025, 3, 1), CompanyID: "c1", CompanyName: "Rapid",
		DailyRate: core.NewMoney(100, 0), TotalDeliveryValueOverride: &override, InitialMileage: 1000, FinalMileage: 1042.5}
	core.DeriveDailyEntry(&entry, core.VehicleSettings{AverageEfficiency: 11, LastFuelPrice: 5.79})
	require.NoError(t, repo.PutDailyEntry(ctx, entry, true))

	require.NoError(t, repo.PutCost(ctx, core.Cost{ID: "k1", Date: core.NewDate(2025, 3, 2), Description: "lunch", Amount: core.NewMoney(18, 90), Category: core.CategoryFood}, true))

	kmSince := 390.0
	refuel := core.Refuel{ID: "r1", Date: core.NewDate(2025, 3, 3), Odometer: 15000, LitersFilled: 35.2, PricePerLiter: 5.79, KmSinceLastRefuel: &kmSince}
	core.DeriveRefuel(&refuel, nil)
	require.NoError(t, repo.PutRefuel(ctx, refuel, true))

	last := 12000.0
	vs := core.DefaultVehicleSettings(11, 5.79)
	vs.MaintenanceItems = append(vs.MaintenanceItems, core.MaintenanceItem{ID: "m1", Name: "Oil", Type: core.MaintenanceDistance, IntervalDistance: 5000, LastPerformedDistance: &last})
	require.NoError(t, repo.PutVehicleSettings(ctx, vs))
}

func contents(t *testing.T, s storage.Store) map[storage.Collection]map[string]string {
	t.Helper()
	ctx := context.Background()
	out := map[storage.Collection]map[string]string{}
	for _, c := range storage.RecordCollections {
		recs, err := s.GetAll(ctx, c)
		require.NoError(t, err)
		out[c] = map[string]string{}
		for _, r := range recs {
			out[c][r.ID] = string(r.Data)
		}
	}
	cfg, err := s.ListConfig(ctx)
	require.NoError(t, err)
	out[storage.Settings] = map[string]string{}
	for _, e := range cfg {
		out[storage.Settings][e.Key] = string(e.Value)
	}
	return out
}

func TestExportImport_RoundTrip(t *testing.T) {
	ctx := context.Background()
	src := memory.NewStore()
	seed(t, src)

	var buf bytes.Buffer
	require.NoError(t, New(src, testLogger()).WriteExport(ctx, &buf))

	dst := memory.NewStore()
	res, err := New(dst, testLogger()).Import(ctx, &buf)
	require.NoError(t, err)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, 1, res.Imported[storage.DailyEntries])

	assert.Equal(t, contents(t, src), contents(t, dst))
}

func TestExport_Layout(t *testing.T) {
	ctx := context.Background()
	src := memory.NewStore()
	seed(t, src)

	var buf bytes.Buffer
	require.NoError(t, New(src, testLogger()).WriteExport(ctx, &buf))

	var top map[string][]map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &top))
	for _, c := range storage.AllCollections {
		assert.Contains(t, top, string(c))
	}
	require.Len(t, top["settings"], 1)
	assert.Equal(t, core.VehicleSettingsKey, top["settings"][0]["key"])
	assert.Contains(t, top["settings"][0]["value"], "maintenanceItems")
}

func TestExport_EmptyStoreHasEmptyArrays(t *testing.T) {
	doc, err := New(memory.NewStore(), testLogger()).Export(context.Background())
	require.NoError(t, err)

	out, err := json.Marshal(doc)
	require.NoError(t, err)
	assert.JSONEq(t, `{"companies":[],"dailyEntries":[],"costs":[],"refuels":[],"settings":[]}`, string(out))
}

func TestImport_FormatErrorsWriteNothing(t *testing.T) {
	docs := map[string]string{
		"not json":         `{{`,
		"not an object":    `[1,2,3]`,
		"missing settings": `{"companies":[],"dailyEntries":[],"costs":[],"refuels":[]}`,
		"costs not array":  `{"companies":[],"dailyEntries":[],"costs":{},"refuels":[],"settings":[]}`,
		"null collection":  `{"companies":null,"dailyEntries":[],"costs":[],"refuels":[],"settings":[]}`,
	}
	for name, doc := range docs {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := memory.NewStore()
			seed(t, s)
			before := contents(t, s)

			_, err := New(s, testLogger()).Import(ctx, strings.NewReader(doc))
			require.ErrorIs(t, err, ErrImportFormat)
			assert.Equal(t, before, contents(t, s))
		})
	}
}

func TestImport_SkipsBadRecords(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()
	seed(t, s)

	doc := `{
		"companies": [{"id":"c1","name":"A"}, {"id":"c1","name":"dup"}, {"name":"no id"}, "junk"],
		"dailyEntries": [{"id":"e1","date":"not-a-date"}, {"id":"e2","date":"2025-03-01","companyId":"c1","totalEarnedToday":150}],
		"costs": [],
		"refuels": [{"id":"r1","date":"2025-03-03","odometer":"far"}],
		"settings": [{"key":"vehicleSettings","value":{"averageEfficiency":10,"lastFuelPrice":5,"maintenanceItems":[]}}, {"value":1}, 7]
	}`

	res, err := New(s, testLogger()).Import(ctx, strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, 1, res.Imported[storage.Companies])
	assert.Equal(t, 1, res.Imported[storage.DailyEntries])
	assert.Equal(t, 0, res.Imported[storage.Refuels])
	assert.Equal(t, 1, res.Imported[storage.Settings])
	assert.Len(t, res.Warnings, 7)

	got := contents(t, s)
	assert.Contains(t, got[storage.Companies]["c1"], `"name":"A"`)
	assert.Empty(t, got[storage.Costs], "previous costs are replaced")
	assert.Contains(t, got[storage.DailyEntries], "e2")
}

func TestImport_SkipsRecordsFailingValidation(t *testing.T) {
	ctx := context.Background()
	s := memory.NewStore()

	doc := `{
		"companies": [{"id":"c1","name":"  "}],
		"dailyEntries": [{"id":"e1","date":"","companyId":"c1"}, {"id":"e2","date":"2025-03-01","companyId":"c1","initialMileage":500,"finalMileage":400}],
		"costs": [{"id":"k1","date":"2025-03-02","description":"fine","amount":-5,"category":"Fines"}, {"id":"k2","date":"2025-03-02","description":"toll","amount":3.5,"category":"Tolls"}],
		"refuels": [{"id":"r1","date":"2025-03-03","odometer":0,"litersFilled":10,"pricePerLiter":5}],
		"settings": [{"key":"vehicleSettings","value":{"averageEfficiency":0,"lastFuelPrice":5,"maintenanceItems":[]}}]
	}`

	res, err := New(s, testLogger()).Import(ctx, strings.NewReader(doc))
	require.NoError(t, err)

	assert.Equal(t, 0, res.Imported[storage.Companies])
	assert.Equal(t, 0, res.Imported[storage.DailyEntries])
	assert.Equal(t, 1, res.Imported[storage.Costs])
	assert.Equal(t, 0, res.Imported[storage.Refuels])
	assert.Equal(t, 0, res.Imported[storage.Settings])
	require.Len(t, res.Warnings, 6)

	reasons := map[string]string{}
	for _, w := range res.Warnings {
		reasons[w.ID] = w.Reason
	}
	assert.Contains(t, reasons["e1"], "date")
	assert.Contains(t, reasons["e2"], "finalMileage")
	assert.Contains(t, reasons["k1"], "amount")
	assert.Contains(t, reasons["r1"], "odometer")
	assert.Contains(t, reasons[core.VehicleSettingsKey], "averageEfficiency")

	got := contents(t, s)
	assert.Equal(t, []string{"k2"}, keys(got[storage.Costs]))
}

func keys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
