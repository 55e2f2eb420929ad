package billing

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/murilobento/studiofisiopilates-sub000/core"
)

var (
	paymentMethodTag  = "paymentmethod"
	paymentMethodText = "invalid payment method"
)

// InitValidators registers the billing validators. methods are the accepted payment methods.
func InitValidators(validate *validator.Validate, translator ut.Translator, methods []string) {
	allowed := make(map[string]bool, len(methods))
	for _, m := range methods {
		allowed[core.CleanString(m, true /* lower */)] = true
	}
	_ = validate.RegisterValidation(paymentMethodTag, func(fl validator.FieldLevel) bool {
		return allowed[fl.Field().String()]
	})
	core.RegisterCustomTranslation(validate, translator, paymentMethodTag, paymentMethodText)
}
