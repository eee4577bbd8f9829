package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"sheetcalc/api/internal/middleware"
	"sheetcalc/api/internal/service"
)

type errorMapping struct {
	target  error
	status  int
	message string
}

var errorMappings = []errorMapping{
	{service.ErrDuplicateIdentifier, http.StatusBadRequest, "User already exists"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, "Invalid credentials"},
	{service.ErrDeviceLimitExceeded, http.StatusForbidden, "Device limit reached"},
	{service.ErrSubscriptionRequired, http.StatusForbidden, "Subscription required"},
	{service.ErrInvalidToken, http.StatusUnauthorized, "Invalid or expired token"},
	{service.ErrNotFound, http.StatusNotFound, "Not found"},
}

// overrides replaces the default message for a sentinel on one endpoint.
type overrides map[error]string

func (h HandlerSet) fail(c *gin.Context, err error, custom overrides) {
	if errors.Is(err, service.ErrValidation) {
		c.JSON(http.StatusBadRequest, gin.H{"message": validationMessage(err)})
		return
	}

	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			message := m.message
			if msg, ok := custom[m.target]; ok {
				message = msg
			}
			c.JSON(m.status, gin.H{"message": message})
			return
		}
	}

	h.log.Error().
		Err(err).
		Str("path", c.FullPath()).
		Str("account_id", middleware.AccountID(c)).
		Msg("request failed")
	c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
}

func validationMessage(err error) string {
	msg := err.Error()
	if _, detail, ok := strings.Cut(msg, ": "); ok {
		msg = detail
	}
	if msg == "" {
		return "Invalid request"
	}
	return strings.ToUpper(msg[:1]) + msg[1:]
}

type fieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

var tagMessages = map[string]string{
	"required":             "Field is required",
	"required_without_all": "Field is required",
	"email":                "Invalid email format",
	"min":                  "Value is too small",
	"max":                  "Value is too large",
	"gt":                   "Value must be positive",
	"plan":                 "Unknown plan",
	"mobile":               "Invalid mobile number",
	"identifier":           "Must be an email address or mobile number",
}

// badRequest reports a binding failure, listing field errors when the
// validator produced them.
func badRequest(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body"})
		return
	}

	fields := make([]fieldError, 0, len(verrs))
	for _, fe := range verrs {
		msg, ok := tagMessages[fe.Tag()]
		if !ok {
			msg = fe.Error()
		}
		fields = append(fields, fieldError{Field: fe.Field(), Message: msg})
	}
	c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request", "errors": fields})
}
