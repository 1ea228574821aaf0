// Package maintenance computes the due status of vehicle maintenance items.
//
// Each item type (distance, time) has its own strategy for working out the
// next service point and how far away it is. Status is never stored; it is
// recomputed from the current odometer and date on every call.
package maintenance

import (
	"fmt"

	"entregas/internal/core"
)

// WarningShare is the fraction of the interval inside which an item turns to warning.
const WarningShare = 0.15

// MinWarningDays is the smallest warning window for time-based items.
const MinWarningDays = 15

// Status is the proximity of an item to its next service.
type Status string

const (
	StatusOK      Status = "ok"
	StatusWarning Status = "warning"
	StatusDue     Status = "due"
)

// Reading is the vehicle state statuses are computed against.
type Reading struct {
	Odometer float64
	Today    core.Date
}

// ItemStatus is the computed view of one item. Remaining and Threshold are
// in kilometres for distance items and in days for time items.
type ItemStatus struct {
	Item            core.MaintenanceItem `json:"item"`
	Status          Status               `json:"status"`
	Remaining       float64              `json:"remaining"`
	Threshold       float64              `json:"threshold"`
	Unit            string               `json:"unit"`
	NextDueDistance *float64             `json:"nextDueDistance,omitempty"`
	NextDueDate     *core.Date           `json:"nextDueDate,omitempty"`
}

// DuenessChecker is the strategy for one maintenance type.
type DuenessChecker interface {
	Check(item core.MaintenanceItem, at Reading) ItemStatus
}

func classify(remaining, threshold float64) Status {
	switch {
	case remaining <= 0:
		return StatusDue
	case remaining <= threshold:
		return StatusWarning
	default:
		return StatusOK
	}
}

// DistanceChecker measures kilometres left until lastPerformedDistance + intervalDistance.
// An item never performed counts from odometer zero.
type DistanceChecker struct{}

func (DistanceChecker) Check(item core.MaintenanceItem, at Reading) ItemStatus {
	var last float64
	if item.LastPerformedDistance != nil {
		last = *item.LastPerformedDistance
	}
	next := last + item.IntervalDistance
	remaining := core.Round2(next - at.Odometer)
	threshold := core.Round2(item.IntervalDistance * WarningShare)

	return ItemStatus{
		Item:            item,
		Status:          classify(remaining, threshold),
		Remaining:       remaining,
		Threshold:       threshold,
		Unit:            "km",
		NextDueDistance: &next,
	}
}

// TimeChecker measures days left until lastPerformedDate + intervalMonths.
// An item never performed is due.
type TimeChecker struct{}

func (TimeChecker) Check(item core.MaintenanceItem, at Reading) ItemStatus {
	if item.LastPerformedDate == nil || item.LastPerformedDate.IsZero() {
		return ItemStatus{Item: item, Status: StatusDue, Threshold: MinWarningDays, Unit: "days"}
	}

	next := item.LastPerformedDate.AddMonths(item.IntervalMonths)
	remaining := float64(at.Today.DaysUntil(next))
	intervalDays := float64(item.LastPerformedDate.DaysUntil(next))
	threshold := max(MinWarningDays, core.Round2(intervalDays*WarningShare))

	return ItemStatus{
		Item:        item,
		Status:      classify(remaining, threshold),
		Remaining:   remaining,
		Threshold:   threshold,
		Unit:        "days",
		NextDueDate: &next,
	}
}

var duenessStrategies = map[core.MaintenanceType]DuenessChecker{
	core.MaintenanceDistance: DistanceChecker{},
	core.MaintenanceTime:     TimeChecker{},
}

// GetDuenessChecker returns the checker for a maintenance type.
func GetDuenessChecker(t core.MaintenanceType) (DuenessChecker, error) {
	checker, ok := duenessStrategies[t]
	if !ok {
		return nil, fmt.Errorf("unknown maintenance type: %s", t)
	}
	return checker, nil
}
