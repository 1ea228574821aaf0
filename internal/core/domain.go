package core

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

const (
	CategoryFuel        CostCategory = "Fuel"
	CategoryMaintenance CostCategory = "Maintenance"
	CategoryFood        CostCategory = "Food"
	CategoryTolls       CostCategory = "Tolls"
	CategoryTaxes       CostCategory = "Taxes"
	CategoryAccessories CostCategory = "Accessories/Tools"
	CategoryFines       CostCategory = "Fines"
	CategoryOther       CostCategory = "Other"

	MaintenanceDistance MaintenanceType = "distance"
	MaintenanceTime     MaintenanceType = "time"

	// VehicleSettingsKey names the settings singleton in the config collection.
	VehicleSettingsKey = "vehicleSettings"

	// UnknownCompanyName is snapshotted when an entry references a company that does not exist.
	UnknownCompanyName = "N/A"
)

// CostCategories lists the fixed category set in display order.
var CostCategories = []CostCategory{
	CategoryFuel, CategoryMaintenance, CategoryFood, CategoryTolls,
	CategoryTaxes, CategoryAccessories, CategoryFines, CategoryOther,
}

type (
	CostCategory    string
	MaintenanceType string

	Company struct {
		ID      string `json:"id"`
		Name    string `json:"name"`
		Address string `json:"address"`
		Contact string `json:"contact"`
	}

	// DailyEntry is one day of work for one company. The last three fields are
	// derived at save time by DeriveDailyEntry.
	DailyEntry struct {
		ID                         string  `json:"id"`
		Date                       Date    `json:"date"`
		CompanyID                  string  `json:"companyId"`
		CompanyName                string  `json:"companyName"`
		DailyRate                  Money   `json:"dailyRate"`
		NumDeliveries              int     `json:"numDeliveries"`
		DefaultDeliveryValue       Money   `json:"defaultDeliveryValue"`
		TotalDeliveryValueOverride *Money  `json:"totalDeliveryValueOverride"`
		InitialMileage             float64 `json:"initialMileage"`
		FinalMileage               float64 `json:"finalMileage"`

		MileageDriven     float64 `json:"mileageDriven"`
		EstimatedFuelCost Money   `json:"estimatedFuelCost"`
		TotalEarnedToday  Money   `json:"totalEarnedToday"`
	}

	Cost struct {
		ID          string       `json:"id"`
		Date        Date         `json:"date"`
		Description string       `json:"description"`
		Amount      Money        `json:"amount"`
		Category    CostCategory `json:"category"`
	}

	Refuel struct {
		ID                string   `json:"id"`
		Date              Date     `json:"date"`
		Odometer          float64  `json:"odometer"`
		LitersFilled      float64  `json:"litersFilled"`
		PricePerLiter     float64  `json:"pricePerLiter"`
		TotalCost         Money    `json:"totalCost"`
		KmSinceLastRefuel *float64 `json:"kmSinceLastRefuel"`
		CalculatedKmL     *float64 `json:"calculatedKmL"`
	}

	MaintenanceItem struct {
		ID                    string          `json:"id"`
		Name                  string          `json:"name"`
		Type                  MaintenanceType `json:"type"`
		IntervalDistance      float64         `json:"intervalDistance,omitempty"`
		IntervalMonths        int             `json:"intervalMonths,omitempty"`
		LastPerformedDistance *float64        `json:"lastPerformedDistance"`
		LastPerformedDate     *Date           `json:"lastPerformedDate"`
	}

	VehicleSettings struct {
		AverageEfficiency float64           `json:"averageEfficiency"`
		LastFuelPrice     float64           `json:"lastFuelPrice"`
		MaintenanceItems  []MaintenanceItem `json:"maintenanceItems"`
	}

	// ValidationError names the field that failed validation.
	ValidationError struct {
		Field string
		Err   error
	}
)

var (
	ErrRequired        = errors.New("is required")
	ErrNotPositive     = errors.New("must be greater than zero")
	ErrNegative        = errors.New("must not be negative")
	ErrMileageOrder    = errors.New("must not be lower than initial mileage")
	ErrUnknownCategory = errors.New("unknown category")
	ErrUnknownType     = errors.New("unknown maintenance type")
	ErrTooLong         = errors.New("too long (max 200 characters)")
)

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

func invalid(field string, err error) error {
	return &ValidationError{Field: field, Err: err}
}

// NewID returns a fresh opaque record identifier.
func NewID() string {
	return uuid.NewString()
}

// DefaultVehicleSettings returns the settings written on first load.
func DefaultVehicleSettings(efficiency, fuelPrice float64) VehicleSettings {
	return VehicleSettings{
		AverageEfficiency: efficiency,
		LastFuelPrice:     fuelPrice,
		MaintenanceItems:  []MaintenanceItem{},
	}
}

func (c CostCategory) Valid() bool {
	for _, known := range CostCategories {
		if c == known {
			return true
		}
	}
	return false
}

func (c Company) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("name", ErrRequired)
	}
	return nil
}

func (e DailyEntry) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return invalid("date", ErrRequired)
	}
	if strings.TrimSpace(e.CompanyID) == "" {
		return invalid("companyId", ErrRequired)
	}
	if e.DailyRate.Cents < 0 {
		return invalid("dailyRate", ErrNegative)
	}
	if e.NumDeliveries < 0 {
		return invalid("numDeliveries", ErrNegative)
	}
	if e.DefaultDeliveryValue.Cents < 0 {
		return invalid("defaultDeliveryValue", ErrNegative)
	}
	if e.TotalDeliveryValueOverride != nil && e.TotalDeliveryValueOverride.Cents < 0 {
		return invalid("totalDeliveryValueOverride", ErrNegative)
	}
	if e.InitialMileage < 0 {
		return invalid("initialMileage", ErrNegative)
	}
	if e.FinalMileage < 0 {
		return invalid("finalMileage", ErrNegative)
	}
	// A mileage of zero means "not recorded".
	if e.InitialMileage > 0 && e.FinalMileage > 0 && e.FinalMileage < e.InitialMileage {
		return invalid("finalMileage", ErrMileageOrder)
	}
	return nil
}

func (c Cost) Validate() error {
	if err := c.Date.Validate(); err != nil {
		return invalid("date", ErrRequired)
	}
	if strings.TrimSpace(c.Description) == "" {
		return invalid("description", ErrRequired)
	}
	if len(c.Description) > 200 {
		return invalid("description", ErrTooLong)
	}
	if err := c.Amount.Validate(); err != nil {
		return invalid("amount", ErrNotPositive)
	}
	if !c.Category.Valid() {
		return invalid("category", ErrUnknownCategory)
	}
	return nil
}

func (r Refuel) Validate() error {
	if err := r.Date.Validate(); err != nil {
		return invalid("date", ErrRequired)
	}
	if r.Odometer <= 0 {
		return invalid("odometer", ErrNotPositive)
	}
	if r.LitersFilled <= 0 {
		return invalid("litersFilled", ErrNotPositive)
	}
	if r.PricePerLiter <= 0 {
		return invalid("pricePerLiter", ErrNotPositive)
	}
	if r.KmSinceLastRefuel != nil && *r.KmSinceLastRefuel < 0 {
		return invalid("kmSinceLastRefuel", ErrNegative)
	}
	return nil
}

func (m MaintenanceItem) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return invalid("name", ErrRequired)
	}
	switch m.Type {
	case MaintenanceDistance:
		if m.IntervalDistance <= 0 {
			return invalid("intervalDistance", ErrNotPositive)
		}
	case MaintenanceTime:
		if m.IntervalMonths <= 0 {
			return invalid("intervalMonths", ErrNotPositive)
		}
	default:
		return invalid("type", ErrUnknownType)
	}
	if m.LastPerformedDistance != nil && *m.LastPerformedDistance < 0 {
		return invalid("lastPerformedDistance", ErrNegative)
	}
	return nil
}

func (v VehicleSettings) Validate() error {
	if v.AverageEfficiency <= 0 {
		return invalid("averageEfficiency", ErrNotPositive)
	}
	if v.LastFuelPrice <= 0 {
		return invalid("lastFuelPrice", ErrNotPositive)
	}
	for i, item := range v.MaintenanceItems {
		if err := item.Validate(); err != nil {
			var ve *ValidationError
			if errors.As(err, &ve) {
				return invalid(fmt.Sprintf("maintenanceItems[%d].%s", i, ve.Field), ve.Err)
			}
			return err
		}
	}
	return nil
}

// MaintenanceItem returns the item with the given id.
func (v VehicleSettings) MaintenanceItem(id string) (MaintenanceItem, bool) {
	for _, item := range v.MaintenanceItems {
		if item.ID == id {
			return item, true
		}
	}
	return MaintenanceItem{}, false
}
