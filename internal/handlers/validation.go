package handlers

import (
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"sheetcalc/api/internal/models"
)

var validatorsOnce sync.Once

var mobilePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// registerValidators adds the plan, mobile and identifier tags and reports
// JSON field names in validation errors.
func registerValidators() {
	validatorsOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return fld.Name
			}
			return name
		})

		if err := v.RegisterValidation("plan", func(fl validator.FieldLevel) bool {
			return models.Purchasable(fl.Field().String())
		}); err != nil {
			panic(err)
		}

		if err := v.RegisterValidation("mobile", func(fl validator.FieldLevel) bool {
			return mobilePattern.MatchString(fl.Field().String())
		}); err != nil {
			panic(err)
		}

		// An identifier is an email address when it contains '@' and a
		// mobile number otherwise.
		if err := v.RegisterValidation("identifier", func(fl validator.FieldLevel) bool {
			value := strings.TrimSpace(fl.Field().String())
			if strings.Contains(value, "@") {
				return v.Var(value, "email") == nil
			}
			return mobilePattern.MatchString(value)
		}); err != nil {
			panic(err)
		}
	})
}
