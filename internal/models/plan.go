package models

import (
	"fmt"

	"github.com/shopspring/decimal"
)

type PlanName string

const (
	PlanNone       PlanName = "none"
	PlanMonthly    PlanName = "monthly"
	PlanQuarterly  PlanName = "quarterly"
	PlanHalfYearly PlanName = "half_yearly"
	PlanYearly     PlanName = "yearly"
)

type Plan struct {
	Name                PlanName
	DisplayName         string
	Price               decimal.Decimal
	DurationDays        int
	IncludedDevices     int
	PricePerExtraDevice decimal.Decimal
}

var plans = []Plan{
	{
		Name:                PlanMonthly,
		DisplayName:         "Monthly",
		Price:               decimal.NewFromInt(499),
		DurationDays:        30,
		IncludedDevices:     2,
		PricePerExtraDevice: decimal.NewFromInt(199),
	},
	{
		Name:                PlanQuarterly,
		DisplayName:         "Quarterly",
		Price:               decimal.NewFromInt(1299),
		DurationDays:        90,
		IncludedDevices:     2,
		PricePerExtraDevice: decimal.NewFromInt(199),
	},
	{
		Name:                PlanHalfYearly,
		DisplayName:         "Half Yearly",
		Price:               decimal.NewFromInt(2399),
		DurationDays:        180,
		IncludedDevices:     3,
		PricePerExtraDevice: decimal.NewFromInt(149),
	},
	{
		Name:                PlanYearly,
		DisplayName:         "Yearly",
		Price:               decimal.NewFromInt(3999),
		DurationDays:        365,
		IncludedDevices:     5,
		PricePerExtraDevice: decimal.NewFromInt(99),
	},
}

// Plans returns the purchasable catalog in display order.
func Plans() []Plan {
	out := make([]Plan, len(plans))
	copy(out, plans)
	return out
}

func LookupPlan(name PlanName) (Plan, error) {
	for _, p := range plans {
		if p.Name == name {
			return p, nil
		}
	}
	return Plan{}, fmt.Errorf("unknown plan %q", name)
}

// Purchasable reports whether name refers to a plan that can be bought.
// PlanNone is a valid name but never purchasable.
func Purchasable(name string) bool {
	_, err := LookupPlan(PlanName(name))
	return err == nil
}
