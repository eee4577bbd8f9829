package models

import "time"

type Calculation struct {
	ID               string
	AccountID        string
	Length           float64
	Width            float64
	Height           float64
	Thickness        float64
	SurfaceArea      float64
	SheetArea        float64
	MaterialRequired float64
	Wastage          float64
	CreatedAt        time.Time
}
