package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"sheetcalc/api/internal/middleware"
	"sheetcalc/api/internal/service"
)

type deviceResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	LastUsedAt time.Time `json:"lastUsedAt"`
	CreatedAt  time.Time `json:"createdAt"`
	Current    bool      `json:"current"`
}

func (h HandlerSet) ListDevices(c *gin.Context) {
	overview, err := h.devices.List(c.Request.Context(), middleware.AccountID(c))
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	current := middleware.DeviceID(c)
	resp := make([]deviceResponse, 0, len(overview.Devices))
	for _, d := range overview.Devices {
		resp = append(resp, deviceResponse{
			ID:         d.ID,
			Name:       d.Name,
			Type:       string(d.Type),
			LastUsedAt: d.LastUsedAt,
			CreatedAt:  d.CreatedAt,
			Current:    d.ID == current,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"devices":   resp,
		"quota":     overview.Quota,
		"available": overview.Available,
	})
}

func (h HandlerSet) RemoveDevice(c *gin.Context) {
	err := h.devices.Remove(c.Request.Context(), middleware.AccountID(c), c.Param("id"), middleware.DeviceID(c))
	if err != nil {
		h.fail(c, err, overrides{service.ErrNotFound: "Device not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Device removed"})
}
