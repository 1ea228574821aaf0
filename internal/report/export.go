package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"

	"entregas/internal/core"
)

// EntryColumns is the fixed header of entry exports.
var EntryColumns = []string{
	"Date", "Company", "DailyRate", "NumDeliveries", "DefaultDeliveryValue",
	"TotalDeliveryValue", "InitialMileage", "FinalMileage", "MileageDriven",
	"EstimatedFuelCost", "TotalEarnedToday",
}

const entriesSheet = "Entries"

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// exportName prefers the live company name, then the snapshot, then the placeholder.
func exportName(e core.DailyEntry, names map[string]string) string {
	if name, ok := names[e.CompanyID]; ok && name != "" {
		return name
	}
	return CompanyLabel(e, names)
}

func companyNames(companies []core.Company) map[string]string {
	names := make(map[string]string, len(companies))
	for _, c := range companies {
		names[c.ID] = c.Name
	}
	return names
}

func fixed2(f float64) string {
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// WriteEntriesCSV writes one row per entry, UTF-8 with a BOM, two decimals on
// money and distance columns.
func WriteEntriesCSV(w io.Writer, entries []core.DailyEntry, companies []core.Company) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write bom: %w", err)
	}
	names := companyNames(companies)

	cw := csv.NewWriter(w)
	if err := cw.Write(EntryColumns); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, e := range entries {
		row := []string{
			e.Date.String(),
			exportName(e, names),
			e.DailyRate.String(),
			strconv.Itoa(e.NumDeliveries),
			e.DefaultDeliveryValue.String(),
			e.DeliveryValue().String(),
			fixed2(e.InitialMileage),
			fixed2(e.FinalMileage),
			fixed2(e.MileageDriven),
			e.EstimatedFuelCost.String(),
			e.TotalEarnedToday.String(),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write entry %s: %w", e.ID, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteEntriesXLSX writes the same columns as WriteEntriesCSV to a single-sheet workbook.
func WriteEntriesXLSX(w io.Writer, entries []core.DailyEntry, companies []core.Company) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", entriesSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	for i, header := range EntryColumns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(entriesSheet, cell, header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	names := companyNames(companies)
	for r, e := range entries {
		row := []any{
			e.Date.String(),
			exportName(e, names),
			e.DailyRate.Float(),
			e.NumDeliveries,
			e.DefaultDeliveryValue.Float(),
			e.DeliveryValue().Float(),
			core.Round2(e.InitialMileage),
			core.Round2(e.FinalMileage),
			core.Round2(e.MileageDriven),
			e.EstimatedFuelCost.Float(),
			e.TotalEarnedToday.Float(),
		}
		cell, _ := excelize.CoordinatesToCellName(1, r+2)
		if err := f.SetSheetRow(entriesSheet, cell, &row); err != nil {
			return fmt.Errorf("write entry %s: %w", e.ID, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
