package unit

import (
	"sort"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/akela-hq/akela/core"
)

var (
	unitRoleTag  = "unitrole"
	unitRoleText = "invalid role"
)

// InitValidators registers the unit package's validators and translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(unitRoleTag, unitRoleValidation)
	core.RegisterCustomTranslation(validate, translator, unitRoleTag, unitRoleText)
}

// unitRoleValidation checks that the provided role is in AllRoles.
func unitRoleValidation(fl validator.FieldLevel) bool {
	role := fl.Field().String()
	sorted := make([]string, len(AllRoles))
	copy(sorted, AllRoles)
	sort.Strings(sorted)
	if idx := sort.SearchStrings(sorted, role); idx < len(sorted) {
		return sorted[idx] == role
	}
	return false
}
