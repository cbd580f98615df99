package handlers

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/tbourn/go-donations-backend/internal/domain"
)

var registerOnce sync.Once

// RegisterValidators adds the "msisdn" and "momo_currency" tags to Gin's
// binding validator. It is safe to call more than once.
func RegisterValidators() error {
	var err error
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			err = errors.New("handlers: gin binding engine is not validator/v10")
			return
		}
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		if err = v.RegisterValidation("msisdn", func(fl validator.FieldLevel) bool {
			return domain.ValidPhone(domain.NormalizePhone(fl.Field().String()))
		}); err != nil {
			return
		}
		err = v.RegisterValidation("momo_currency", func(fl validator.FieldLevel) bool {
			return domain.SupportedCurrency(fl.Field().String())
		})
	})
	return err
}

// bindMessage turns a binding error into a short client-facing message.
func bindMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "invalid JSON body"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fe.Field()+" is required")
		case "msisdn":
			parts = append(parts, fe.Field()+" must be a valid mobile number")
		case "momo_currency":
			parts = append(parts, fe.Field()+" must be a supported ISO-4217 currency")
		case "uuid":
			parts = append(parts, fe.Field()+" must be a UUID")
		case "email":
			parts = append(parts, fe.Field()+" must be a valid email address")
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s failed %s validation", fe.Field(), fe.Tag()))
		}
	}
	return strings.Join(parts, "; ")
}
