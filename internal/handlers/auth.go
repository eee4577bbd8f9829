package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"sheetcalc/api/internal/middleware"
	"sheetcalc/api/internal/models"
	"sheetcalc/api/internal/service"
)

// signupRequest accepts the login identifier directly. email and mobile
// may be sent alongside it, or instead of it.
type signupRequest struct {
	Identifier string `json:"identifier" binding:"required_without_all=Email Mobile,omitempty,identifier"`
	Email      string `json:"email" binding:"omitempty,email"`
	Mobile     string `json:"mobile" binding:"omitempty,mobile"`
	Username   string `json:"username" binding:"omitempty,max=64"`
	Password   string `json:"password" binding:"required,min=6"`
}

// contacts routes the identifier to the email or mobile slot it names.
// Explicit email and mobile fields win over the identifier.
func (r signupRequest) contacts() (email string, mobile string) {
	email, mobile = r.Email, r.Mobile
	identifier := strings.TrimSpace(r.Identifier)
	switch {
	case identifier == "":
	case strings.Contains(identifier, "@"):
		if email == "" {
			email = identifier
		}
	default:
		if mobile == "" {
			mobile = identifier
		}
	}
	return email, mobile
}

type signupResponse struct {
	Message     string    `json:"message"`
	AccountID   string    `json:"accountId"`
	TrialEndsAt time.Time `json:"trialEndsAt"`
}

func (h HandlerSet) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	email, mobile := req.contacts()
	account, err := h.authService.Signup(c.Request.Context(), service.SignupInput{
		Email:    email,
		Mobile:   mobile,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	c.JSON(http.StatusCreated, signupResponse{
		Message:     "Signup successful",
		AccountID:   account.ID,
		TrialEndsAt: account.TrialEndsAt,
	})
}

type loginRequest struct {
	Identifier        string `json:"identifier" binding:"required"`
	Password          string `json:"password" binding:"required"`
	DeviceFingerprint string `json:"deviceFingerprint" binding:"required"`
	DeviceName        string `json:"deviceName" binding:"omitempty,max=100"`
}

type loginResponse struct {
	AccessToken          string    `json:"accessToken"`
	RefreshToken         string    `json:"refreshToken"`
	AccessTokenExpiresAt time.Time `json:"accessTokenExpiresAt"`
	DeviceID             string    `json:"deviceId"`
}

func (h HandlerSet) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.authService.Login(c.Request.Context(), service.LoginInput{
		Identifier:  req.Identifier,
		Password:    req.Password,
		Fingerprint: req.DeviceFingerprint,
		DeviceName:  req.DeviceName,
		UserAgent:   c.GetHeader("User-Agent"),
	})
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, loginResponse{
		AccessToken:          result.AccessToken,
		RefreshToken:         result.RefreshToken,
		AccessTokenExpiresAt: result.AccessExpiresAt,
		DeviceID:             result.Device.ID,
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

func (h HandlerSet) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	result, err := h.authService.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		h.fail(c, err, overrides{service.ErrInvalidToken: "Invalid refresh token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"accessToken":          result.AccessToken,
		"accessTokenExpiresAt": result.ExpiresAt,
	})
}

func (h HandlerSet) Logout(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	if err := h.authService.Logout(c.Request.Context(), req.RefreshToken); err != nil {
		h.fail(c, err, nil)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Logged out successfully"})
}

type subscriptionResponse struct {
	ID           string    `json:"id"`
	PlanName     string    `json:"planName"`
	Price        string    `json:"price"`
	DurationDays int       `json:"durationDays"`
	StartsAt     time.Time `json:"startsAt"`
	EndsAt       time.Time `json:"endsAt"`
	IsActive     bool      `json:"isActive"`
}

type accountResponse struct {
	ID           string                `json:"id"`
	Email        string                `json:"email"`
	Mobile       *string               `json:"mobile"`
	Username     string                `json:"username"`
	TrialEndsAt  time.Time             `json:"trialEndsAt"`
	IsActive     bool                  `json:"isActive"`
	MaxDevices   int                   `json:"maxDevices"`
	CreatedAt    time.Time             `json:"createdAt"`
	Subscription *subscriptionResponse `json:"subscription"`
	HasAccess    bool                  `json:"hasAccess"`
	DeviceQuota  int                   `json:"deviceQuota"`
	DeviceCount  int                   `json:"deviceCount"`
}

func toSubscriptionResponse(sub models.Subscription) subscriptionResponse {
	return subscriptionResponse{
		ID:           sub.ID,
		PlanName:     string(sub.PlanName),
		Price:        sub.Price.StringFixed(2),
		DurationDays: sub.DurationDays,
		StartsAt:     sub.StartsAt,
		EndsAt:       sub.EndsAt,
		IsActive:     sub.IsActive,
	}
}

func (h HandlerSet) Me(c *gin.Context) {
	profile, err := h.authService.Me(c.Request.Context(), middleware.AccountID(c))
	if err != nil {
		h.fail(c, err, nil)
		return
	}

	account := profile.Account
	resp := accountResponse{
		ID:          account.ID,
		Email:       account.Email,
		Mobile:      account.Mobile,
		Username:    account.Username,
		TrialEndsAt: account.TrialEndsAt,
		IsActive:    account.IsActive,
		MaxDevices:  account.MaxDevices,
		CreatedAt:   account.CreatedAt,
		HasAccess:   profile.HasAccess,
		DeviceQuota: profile.DeviceQuota,
		DeviceCount: profile.DeviceCount,
	}
	if profile.Subscription != nil {
		sub := toSubscriptionResponse(*profile.Subscription)
		resp.Subscription = &sub
	}

	c.JSON(http.StatusOK, resp)
}

func (h HandlerSet) Deactivate(c *gin.Context) {
	if err := h.authService.Deactivate(c.Request.Context(), middleware.AccountID(c)); err != nil {
		h.fail(c, err, overrides{service.ErrNotFound: "User not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Account deactivated"})
}
