package role

import (
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/college/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role; valid roles are: " + ValidList()
)

// InitValidators registers the "role" tag, which accepts any string Normalize accepts.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)
}

func roleValidation(fl validator.FieldLevel) bool {
	_, ok := Normalize(fl.Field().Interface())
	return ok
}
