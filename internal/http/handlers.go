package http

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"entregas/internal/core"
	"entregas/internal/report"
	"entregas/internal/services"
)

func (s *Server) handleLoadAll(w http.ResponseWriter, r *http.Request) {
	data, err := s.svc.LoadAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

// Companies

func (s *Server) handleSaveCompany(w http.ResponseWriter, r *http.Request) {
	var c core.Company
	if err := decodeJSON(w, r, &c, maxBodyBytes); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.svc.SaveCompany(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, savedStatus(c.ID), saved)
}

func (s *Server) handleDeleteCompany(w http.ResponseWriter, r *http.Request) {
	s.deleteWith(w, r, s.svc.DeleteCompany)
}

// Daily entries

func (s *Server) handleListEntries(w http.ResponseWriter, r *http.Request) {
	f, err := entryFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	entries, err := s.svc.ListEntries(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSaveEntry(w http.ResponseWriter, r *http.Request) {
	var e core.DailyEntry
	if err := decodeJSON(w, r, &e, maxBodyBytes); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.svc.SaveDailyEntry(r.Context(), e)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, savedStatus(e.ID), saved)
}

func (s *Server) handleDeleteEntry(w http.ResponseWriter, r *http.Request) {
	s.deleteWith(w, r, s.svc.DeleteDailyEntry)
}

func (s *Server) handleEntriesCSV(w http.ResponseWriter, r *http.Request) {
	f, err := entryFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := s.svc.ExportEntriesCSV(r.Context(), &buf, f); err != nil {
		writeError(w, r, err)
		return
	}
	s.attachment(w, "text/csv; charset=utf-8", "entries", "csv", &buf)
}

func (s *Server) handleEntriesXLSX(w http.ResponseWriter, r *http.Request) {
	f, err := entryFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	var buf bytes.Buffer
	if err := s.svc.ExportEntriesXLSX(r.Context(), &buf, f); err != nil {
		writeError(w, r, err)
		return
	}
	s.attachment(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", "entries", "xlsx", &buf)
}

// Costs

func (s *Server) handleListCosts(w http.ResponseWriter, r *http.Request) {
	f, err := costFilter(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	costs, err := s.svc.ListCosts(r.Context(), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, costs)
}

func (s *Server) handleSaveCost(w http.ResponseWriter, r *http.Request) {
	var c core.Cost
	if err := decodeJSON(w, r, &c, maxBodyBytes); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.svc.SaveCost(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, savedStatus(c.ID), saved)
}

func (s *Server) handleDeleteCost(w http.ResponseWriter, r *http.Request) {
	s.deleteWith(w, r, s.svc.DeleteCost)
}

// Refuels

type refuelRequest struct {
	core.Refuel
	TotalCostOverride *core.Money `json:"totalCostOverride"`
}

func (s *Server) handleSaveRefuel(w http.ResponseWriter, r *http.Request) {
	var req refuelRequest
	if err := decodeJSON(w, r, &req, maxBodyBytes); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.svc.SaveRefuel(r.Context(), req.Refuel, req.TotalCostOverride)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, savedStatus(req.ID), saved)
}

func (s *Server) handleDeleteRefuel(w http.ResponseWriter, r *http.Request) {
	s.deleteWith(w, r, s.svc.DeleteRefuel)
}

func (s *Server) handleEfficiency(w http.ResponseWriter, r *http.Request) {
	kml, ok, err := s.svc.AverageEfficiency(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	resp := struct {
		Available         bool     `json:"available"`
		AverageEfficiency *float64 `json:"averageEfficiency"`
	}{Available: ok}
	if ok {
		resp.AverageEfficiency = &kml
	}
	writeJSON(w, http.StatusOK, resp)
}

// Vehicle settings

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	vs, err := s.svc.VehicleSettings(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var patch services.VehicleSettingsPatch
	if err := decodeJSON(w, r, &patch, maxBodyBytes); err != nil {
		writeError(w, r, err)
		return
	}
	vs, err := s.svc.SaveVehicleSettings(r.Context(), patch)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

func (s *Server) handleUseAverage(w http.ResponseWriter, r *http.Request) {
	vs, err := s.svc.UseAverageEfficiency(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, vs)
}

// Maintenance

func (s *Server) handleMaintenanceStatus(w http.ResponseWriter, r *http.Request) {
	odometer, err := queryFloat(r, "odometer")
	if err != nil {
		writeError(w, r, err)
		return
	}
	view, err := s.svc.ComputeMaintenanceStatuses(r.Context(), odometer)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleSaveMaintenanceItem(w http.ResponseWriter, r *http.Request) {
	var item core.MaintenanceItem
	if err := decodeJSON(w, r, &item, maxBodyBytes); err != nil {
		writeError(w, r, err)
		return
	}
	saved, err := s.svc.SaveMaintenanceItem(r.Context(), item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, savedStatus(item.ID), saved)
}

func (s *Server) handleDeleteMaintenanceItem(w http.ResponseWriter, r *http.Request) {
	s.deleteWith(w, r, s.svc.DeleteMaintenanceItem)
}

type markDoneRequest struct {
	Odometer *float64   `json:"odometer"`
	Date     *core.Date `json:"date"`
}

func (s *Server) handleMarkDone(w http.ResponseWriter, r *http.Request) {
	var req markDoneRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req, maxBodyBytes); err != nil {
			writeError(w, r, err)
			return
		}
	}
	item, err := s.svc.MarkMaintenanceDone(r.Context(), r.PathValue("id"), req.Odometer, req.Date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// Reports

func (s *Server) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	month := core.MonthOf(s.svc.Today())
	if v := r.URL.Query().Get("month"); v != "" {
		m, err := core.ParseYearMonth(v)
		if err != nil {
			writeError(w, r, badRequest("month: %v", err))
			return
		}
		month = m
	}
	rep, err := s.svc.ComputeMonthlyReport(r.Context(), month)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

// Backup

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.svc.WriteExport(r.Context(), &buf); err != nil {
		writeError(w, r, err)
		return
	}
	s.attachment(w, "application/json; charset=utf-8", "backup", "json", &buf)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, maxImportBytes)
	res, err := s.svc.ImportAll(r.Context(), body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			err = badRequest("import exceeds %d bytes", maxErr.Limit)
		}
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// helpers

func (s *Server) deleteWith(w http.ResponseWriter, r *http.Request, del func(ctx context.Context, id string) error) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		writeError(w, r, badRequest("id is required"))
		return
	}
	if err := del(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) attachment(w http.ResponseWriter, contentType, kind, ext string, body io.Reader) {
	name := fmt.Sprintf("entregas-%s-%s.%s", kind, s.svc.Today(), ext)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, body)
}

// savedStatus is 201 for records created by this request.
func savedStatus(requestedID string) int {
	if requestedID == "" {
		return http.StatusCreated
	}
	return http.StatusOK
}

func entryFilter(r *http.Request) (report.EntryFilter, error) {
	var (
		f   report.EntryFilter
		err error
	)
	if f.From, err = queryDate(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(r, "to"); err != nil {
		return f, err
	}
	f.CompanyID = r.URL.Query().Get("companyId")
	return f, nil
}

func costFilter(r *http.Request) (report.CostFilter, error) {
	var (
		f   report.CostFilter
		err error
	)
	if f.From, err = queryDate(r, "from"); err != nil {
		return f, err
	}
	if f.To, err = queryDate(r, "to"); err != nil {
		return f, err
	}
	if v := r.URL.Query().Get("category"); v != "" {
		f.Category = core.CostCategory(v)
		if !f.Category.Valid() {
			return f, badRequest("category: unknown category %q", v)
		}
	}
	return f, nil
}
