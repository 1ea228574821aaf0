package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"entregas/internal/core"
	"entregas/internal/log"
	"entregas/internal/metrics"
	"entregas/internal/services"
	"entregas/internal/storage/memory"
)

func newTestServer(t *testing.T, opts ...Option) *Server {
	t.Helper()
	logger := log.New(log.Config{Handler: slog.NewTextHandler(io.Discard, nil)})
	svc := services.NewLedgerService(memory.NewStore(), core.DefaultVehicleSettings(10, 5.50), logger,
		services.WithToday(func() core.Date { return core.NewDate(2025, 3, 15) }))
	srv := NewServer(":0", svc, logger, opts...)
	t.Cleanup(srv.limiter.Stop)
	return srv
}

func do(t *testing.T, srv *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestHealthAndReady(t *testing.T) {
	srv := newTestServer(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Fatalf("%s status=%d", path, rr.Code)
		}
	}

	failing := newTestServer(t, WithReadiness(func(context.Context) error { return errors.New("db down") }))
	if rr := do(t, failing, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz with failing check status=%d", rr.Code)
	}
}

func TestSecurityHeadersAndRequestID(t *testing.T) {
	srv := newTestServer(t)
	rr := do(t, srv, http.MethodGet, "/api/data", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body)
	}
	if got := rr.Header().Get("Content-Security-Policy"); !strings.Contains(got, "default-src 'none'") {
		t.Errorf("CSP=%q", got)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID")
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type=%q", ct)
	}
}

func TestEntryLifecycle(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/companies", `{"name":"FastFood Co"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create company status=%d body=%s", rr.Code, rr.Body)
	}
	company := decode[core.Company](t, rr)

	body := `{"date":"2025-03-10","companyId":"` + company.ID + `","dailyRate":50,"numDeliveries":10,
		"defaultDeliveryValue":5,"totalDeliveryValueOverride":null,"initialMileage":1000,"finalMileage":1100}`
	rr = do(t, srv, http.MethodPost, "/api/entries", body)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create entry status=%d body=%s", rr.Code, rr.Body)
	}
	entry := decode[core.DailyEntry](t, rr)
	if entry.TotalEarnedToday != core.NewMoney(100, 0) {
		t.Errorf("TotalEarnedToday=%v, want 100.00", entry.TotalEarnedToday)
	}
	if entry.CompanyName != "FastFood Co" {
		t.Errorf("CompanyName=%q", entry.CompanyName)
	}

	rr = do(t, srv, http.MethodGet, "/api/entries?from=2025-03-01&to=2025-03-31&companyId="+company.ID, "")
	if got := decode[[]core.DailyEntry](t, rr); len(got) != 1 {
		t.Fatalf("list entries=%d, want 1", len(got))
	}

	rr = do(t, srv, http.MethodGet, "/api/reports/monthly", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("report status=%d", rr.Code)
	}
	rep := decode[struct {
		GrossEarnings core.Money `json:"grossEarnings"`
		WorkedDays    int        `json:"workedDays"`
	}](t, rr)
	if rep.GrossEarnings != core.NewMoney(100, 0) || rep.WorkedDays != 1 {
		t.Errorf("report=%+v", rep)
	}

	rr = do(t, srv, http.MethodGet, "/api/entries.csv", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("csv status=%d", rr.Code)
	}
	if cd := rr.Header().Get("Content-Disposition"); !strings.Contains(cd, "entregas-entries-2025-03-15.csv") {
		t.Errorf("Content-Disposition=%q", cd)
	}
	if !strings.Contains(rr.Body.String(), "FastFood Co") {
		t.Errorf("csv body missing company: %s", rr.Body)
	}

	if rr := do(t, srv, http.MethodDelete, "/api/entries/"+entry.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
	rr = do(t, srv, http.MethodGet, "/api/entries", "")
	if got := decode[[]core.DailyEntry](t, rr); len(got) != 0 {
		t.Fatalf("entries after delete=%d", len(got))
	}
}

func TestErrorMapping(t *testing.T) {
	srv := newTestServer(t)

	tests := []struct {
		name   string
		method string
		target string
		body   string
		status int
	}{
		{"validation", http.MethodPost, "/api/costs", `{"date":"2025-03-01","description":"","amount":10,"category":"Fuel"}`, http.StatusUnprocessableEntity},
		{"malformed json", http.MethodPost, "/api/costs", `{"date":`, http.StatusBadRequest},
		{"unknown field", http.MethodPost, "/api/companies", `{"name":"A","color":"red"}`, http.StatusBadRequest},
		{"bad date filter", http.MethodGet, "/api/entries?from=yesterday", "", http.StatusBadRequest},
		{"bad category filter", http.MethodGet, "/api/costs?category=Snacks", "", http.StatusBadRequest},
		{"bad month", http.MethodGet, "/api/reports/monthly?month=2025-13", "", http.StatusBadRequest},
		{"bad odometer", http.MethodGet, "/api/maintenance?odometer=-4", "", http.StatusBadRequest},
		{"unknown maintenance item", http.MethodPost, "/api/maintenance/items/nope/done", "", http.StatusNotFound},
		{"no efficiency data", http.MethodPost, "/api/settings/vehicle/use-average", "", http.StatusUnprocessableEntity},
		{"import format", http.MethodPost, "/api/import", `{"companies":[]}`, http.StatusBadRequest},
		{"method not allowed", http.MethodPut, "/api/costs", `{}`, http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.target, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status=%d, want %d (body=%s)", rr.Code, tt.status, rr.Body)
			}
		})
	}

	rr := do(t, srv, http.MethodPost, "/api/costs", `{"date":"2025-03-01","description":"","amount":10,"category":"Fuel"}`)
	if body := decode[errorBody](t, rr); body.Field != "description" {
		t.Errorf("validation field=%q, want description", body.Field)
	}
}

func TestRefuelAndSettings(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/refuels", `{"date":"2025-03-01","odometer":1000,"litersFilled":40,"pricePerLiter":6,"totalCostOverride":230}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("refuel status=%d body=%s", rr.Code, rr.Body)
	}
	if got := decode[core.Refuel](t, rr); got.TotalCost != core.NewMoney(230, 0) {
		t.Errorf("TotalCost=%v, want override 230.00", got.TotalCost)
	}

	rr = do(t, srv, http.MethodGet, "/api/settings/vehicle", "")
	if got := decode[core.VehicleSettings](t, rr); got.LastFuelPrice != 6 {
		t.Errorf("LastFuelPrice=%v, want 6", got.LastFuelPrice)
	}

	rr = do(t, srv, http.MethodPut, "/api/settings/vehicle", `{"averageEfficiency":12.5}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("settings status=%d body=%s", rr.Code, rr.Body)
	}
	got := decode[core.VehicleSettings](t, rr)
	if got.AverageEfficiency != 12.5 || got.LastFuelPrice != 6 {
		t.Errorf("settings after patch=%+v", got)
	}

	rr = do(t, srv, http.MethodGet, "/api/refuels/efficiency", "")
	eff := decode[struct {
		Available bool `json:"available"`
	}](t, rr)
	if eff.Available {
		t.Error("a single refuel cannot produce an efficiency")
	}
}

func TestMaintenanceRoutes(t *testing.T) {
	srv := newTestServer(t)

	rr := do(t, srv, http.MethodPost, "/api/maintenance/items", `{"name":"Oil","type":"distance","intervalDistance":1000,"lastPerformedDistance":0,"lastPerformedDate":null}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("item status=%d body=%s", rr.Code, rr.Body)
	}
	item := decode[core.MaintenanceItem](t, rr)

	rr = do(t, srv, http.MethodGet, "/api/maintenance?odometer=950", "")
	view := decode[services.MaintenanceView](t, rr)
	if len(view.Items) != 1 || view.Items[0].Status != "warning" {
		t.Fatalf("view=%+v", view)
	}

	rr = do(t, srv, http.MethodPost, "/api/maintenance/items/"+item.ID+"/done", `{"odometer":950}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("done status=%d body=%s", rr.Code, rr.Body)
	}
	rr = do(t, srv, http.MethodGet, "/api/maintenance?odometer=950", "")
	if view := decode[services.MaintenanceView](t, rr); view.Items[0].Status != "ok" {
		t.Errorf("status after done=%s", view.Items[0].Status)
	}

	if rr := do(t, srv, http.MethodDelete, "/api/maintenance/items/"+item.ID, ""); rr.Code != http.StatusNoContent {
		t.Fatalf("delete status=%d", rr.Code)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/costs", `{"date":"2025-03-01","description":"Oil","amount":45.5,"category":"Maintenance"}`)

	rr := do(t, srv, http.MethodGet, "/api/export", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("export status=%d", rr.Code)
	}
	dump := rr.Body.Bytes()

	other := newTestServer(t)
	req := httptest.NewRequest(http.MethodPost, "/api/import", bytes.NewReader(dump))
	rr = httptest.NewRecorder()
	other.Handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("import status=%d body=%s", rr.Code, rr.Body)
	}

	rr = do(t, other, http.MethodGet, "/api/costs", "")
	costs := decode[[]core.Cost](t, rr)
	if len(costs) != 1 || costs[0].Amount != core.NewMoney(45, 50) {
		t.Fatalf("imported costs=%+v", costs)
	}
}

func TestRateLimitAppliesToWrites(t *testing.T) {
	srv := newTestServer(t, WithRateLimit(2))

	for i := 0; i < 2; i++ {
		if rr := do(t, srv, http.MethodDelete, "/api/costs/x", ""); rr.Code != http.StatusNoContent {
			t.Fatalf("delete %d status=%d", i, rr.Code)
		}
	}
	if rr := do(t, srv, http.MethodDelete, "/api/costs/x", ""); rr.Code != http.StatusTooManyRequests {
		t.Fatalf("third delete status=%d, want 429", rr.Code)
	}
	if rr := do(t, srv, http.MethodGet, "/api/costs", ""); rr.Code != http.StatusOK {
		t.Fatalf("reads are not limited, status=%d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, WithMetrics(metrics.New()))
	do(t, srv, http.MethodGet, "/api/data", "")

	rr := do(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `route="GET /api/data"`) {
		t.Errorf("metrics missing route label")
	}
}
