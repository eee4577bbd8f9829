package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"sheetcalc/api/internal/middleware"
	"sheetcalc/api/internal/service"
)

type planResponse struct {
	Name                string `json:"name"`
	DisplayName         string `json:"displayName"`
	Price               string `json:"price"`
	DurationDays        int    `json:"durationDays"`
	IncludedDevices     int    `json:"includedDevices"`
	PricePerExtraDevice string `json:"pricePerExtraDevice"`
}

func (h HandlerSet) Plans(c *gin.Context) {
	plans := h.subscriptions.Plans()
	resp := make([]planResponse, 0, len(plans))
	for _, p := range plans {
		resp = append(resp, planResponse{
			Name:                string(p.Name),
			DisplayName:         p.DisplayName,
			Price:               p.Price.StringFixed(2),
			DurationDays:        p.DurationDays,
			IncludedDevices:     p.IncludedDevices,
			PricePerExtraDevice: p.PricePerExtraDevice.StringFixed(2),
		})
	}

	c.JSON(http.StatusOK, gin.H{"plans": resp})
}

type subscribeRequest struct {
	PlanName     string           `json:"planName" binding:"required,plan"`
	Price        *decimal.Decimal `json:"price"`
	DurationDays int              `json:"durationDays" binding:"omitempty,min=1,max=3650"`
}

func (h HandlerSet) Subscribe(c *gin.Context) {
	var req subscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	sub, err := h.subscriptions.Subscribe(c.Request.Context(), middleware.AccountID(c), service.SubscribeInput{
		PlanName:     req.PlanName,
		Price:        req.Price,
		DurationDays: req.DurationDays,
	})
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message":      "Subscription activated",
		"endsAt":       sub.EndsAt,
		"subscription": toSubscriptionResponse(sub),
	})
}

type deviceSlotsRequest struct {
	Quantity int `json:"quantity" binding:"required,min=1"`
}

type deviceSlotsResponse struct {
	Message           string    `json:"message"`
	AdditionalDevices int       `json:"additionalDevices"`
	UnitPrice         string    `json:"unitPrice"`
	TotalPrice        string    `json:"totalPrice"`
	EndDate           time.Time `json:"endDate"`
}

func (h HandlerSet) PurchaseDeviceSlots(c *gin.Context) {
	var req deviceSlotsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	purchase, err := h.subscriptions.PurchaseDeviceSlots(c.Request.Context(), middleware.AccountID(c), req.Quantity)
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, deviceSlotsResponse{
		Message:           "Device slots purchased",
		AdditionalDevices: purchase.AdditionalDevices,
		UnitPrice:         purchase.UnitPrice.StringFixed(2),
		TotalPrice:        purchase.TotalPrice.StringFixed(2),
		EndDate:           purchase.EndDate,
	})
}
