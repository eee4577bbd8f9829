package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sheetcalc/api/internal/calculator"
	"sheetcalc/api/internal/middleware"
	"sheetcalc/api/internal/models"
)

type calculateRequest struct {
	Length    float64 `json:"length" binding:"required,gt=0"`
	Width     float64 `json:"width" binding:"required,gt=0"`
	Height    float64 `json:"height" binding:"required,gt=0"`
	Thickness float64 `json:"thickness" binding:"required,gt=0"`
}

type calculationResponse struct {
	ID               string    `json:"id"`
	Length           float64   `json:"length"`
	Width            float64   `json:"width"`
	Height           float64   `json:"height"`
	Thickness        float64   `json:"thickness"`
	SurfaceArea      float64   `json:"surfaceArea"`
	SheetArea        float64   `json:"sheetArea"`
	MaterialRequired float64   `json:"materialRequired"`
	Wastage          float64   `json:"wastage"`
	CreatedAt        time.Time `json:"createdAt"`
}

func toCalculationResponse(calc models.Calculation) calculationResponse {
	return calculationResponse{
		ID:               calc.ID,
		Length:           calc.Length,
		Width:            calc.Width,
		Height:           calc.Height,
		Thickness:        calc.Thickness,
		SurfaceArea:      calc.SurfaceArea,
		SheetArea:        calc.SheetArea,
		MaterialRequired: calc.MaterialRequired,
		Wastage:          calc.Wastage,
		CreatedAt:        calc.CreatedAt,
	}
}

func (h HandlerSet) Calculate(c *gin.Context) {
	var req calculateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	calc, err := h.calculator.Calculate(c.Request.Context(), middleware.AccountID(c), calculator.Dimensions{
		Length:    req.Length,
		Width:     req.Width,
		Height:    req.Height,
		Thickness: req.Thickness,
	})
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, toCalculationResponse(calc))
}

func (h HandlerSet) History(c *gin.Context) {
	calcs, err := h.calculator.History(c.Request.Context(), middleware.AccountID(c))
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	resp := make([]calculationResponse, 0, len(calcs))
	for _, calc := range calcs {
		resp = append(resp, toCalculationResponse(calc))
	}
	c.JSON(http.StatusOK, gin.H{"calculations": resp})
}

func (h HandlerSet) Export(c *gin.Context) {
	result, err := h.calculator.Export(c.Request.Context(), middleware.AccountID(c))
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"url":       result.URL,
		"expiresAt": result.ExpiresAt,
		"rows":      result.Rows,
	})
}
