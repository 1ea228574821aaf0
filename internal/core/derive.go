package core

import (
	"github.com/shopspring/decimal"
)

// FuelCostEstimate is mileage / efficiency * price, rounded to the cent.
// Any non-positive input yields zero.
func FuelCostEstimate(mileage, efficiency, price float64) Money {
	if mileage <= 0 || efficiency <= 0 || price <= 0 {
		return Money{}
	}
	d := decimal.NewFromFloat(mileage).
		Div(decimal.NewFromFloat(efficiency)).
		Mul(decimal.NewFromFloat(price))
	return MoneyFromDecimal(d)
}

// MileageDriven is final - initial, or zero when the odometer did not advance.
func MileageDriven(initial, final float64) float64 {
	if final > initial {
		return final - initial
	}
	return 0
}

// DeliveryValue is the override when present, otherwise deliveries * unit value.
func (e DailyEntry) DeliveryValue() Money {
	if e.TotalDeliveryValueOverride != nil {
		return *e.TotalDeliveryValueOverride
	}
	return e.DefaultDeliveryValue.Times(e.NumDeliveries)
}

// DeriveDailyEntry recomputes the derived fields of e using the settings in force now.
func DeriveDailyEntry(e *DailyEntry, vs VehicleSettings) {
	e.MileageDriven = MileageDriven(e.InitialMileage, e.FinalMileage)
	e.EstimatedFuelCost = FuelCostEstimate(e.MileageDriven, vs.AverageEfficiency, vs.LastFuelPrice)
	e.TotalEarnedToday = e.DailyRate.Add(e.DeliveryValue())
}

// DeriveRefuel recomputes total cost and km/L. A non-nil totalCost overrides liters * price.
func DeriveRefuel(r *Refuel, totalCost *Money) {
	if totalCost != nil && totalCost.Cents > 0 {
		r.TotalCost = *totalCost
	} else {
		r.TotalCost = MoneyFromDecimal(decimal.NewFromFloat(r.LitersFilled).Mul(decimal.NewFromFloat(r.PricePerLiter)))
	}

	if r.KmSinceLastRefuel != nil && *r.KmSinceLastRefuel <= 0 {
		r.KmSinceLastRefuel = nil
	}
	r.CalculatedKmL = nil
	if r.KmSinceLastRefuel != nil && r.LitersFilled > 0 {
		kml := decimal.NewFromFloat(*r.KmSinceLastRefuel).
			Div(decimal.NewFromFloat(r.LitersFilled)).
			Round(2).
			InexactFloat64()
		r.CalculatedKmL = &kml
	}
}

// Round2 rounds half-up to two decimals.
func Round2(f float64) float64 {
	return decimal.NewFromFloat(f).Round(2).InexactFloat64()
}
