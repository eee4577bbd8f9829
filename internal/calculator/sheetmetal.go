// Package calculator implements the sheet-metal box estimate.
package calculator

import (
	"errors"
	"math"
)

var ErrInvalidDimension = errors.New("dimensions must be positive finite numbers")

type Dimensions struct {
	Length    float64
	Width     float64
	Height    float64
	Thickness float64
}

type Result struct {
	SurfaceArea      float64
	SheetArea        float64
	MaterialRequired float64
	Wastage          float64
}

// Estimate computes the closed-box surface, the flat sheet needed with a
// thickness allowance on every edge, the material volume and the wastage
// percentage. Every figure is rounded to two decimals.
func Estimate(d Dimensions) (Result, error) {
	for _, v := range []float64{d.Length, d.Width, d.Height, d.Thickness} {
		if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return Result{}, ErrInvalidDimension
		}
	}

	l, w, h, t := d.Length, d.Width, d.Height, d.Thickness

	surface := 2 * (l*w + l*h + w*h)
	sheet := surface + 4*t*(l+w+h)
	material := sheet * t
	wastage := (sheet - surface) / surface * 100

	return Result{
		SurfaceArea:      round2(surface),
		SheetArea:        round2(sheet),
		MaterialRequired: round2(material),
		Wastage:          round2(wastage),
	}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
