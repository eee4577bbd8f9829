package service

import (
	"errors"

	"sheetcalc/api/internal/entitlement"
)

// Errors returned by the services. Handlers map them to HTTP statuses with
// errors.Is; anything else is an internal failure.
var (
	ErrValidation           = errors.New("validation failed")
	ErrDuplicateIdentifier  = errors.New("user already exists")
	ErrInvalidCredentials   = errors.New("invalid credentials")
	ErrDeviceLimitExceeded  = entitlement.ErrDeviceLimitExceeded
	ErrSubscriptionRequired = errors.New("subscription required")
	ErrInvalidToken         = errors.New("invalid or expired token")
	ErrNotFound             = errors.New("not found")
)
