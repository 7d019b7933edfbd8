package collection

import (
	"regexp"

	"github.com/go-playground/validator/v10"
)

// NameTag is the validator tag for record names
const NameTag = "recordname"

// namePattern allows 3 to 16 characters starting with a letter
var namePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_\- ]{2,15}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	if err := RegisterNameValidation(v); err != nil {
		panic(err)
	}
	return v
}

// RegisterNameValidation adds the recordname tag to a validator so request
// structs can declare `binding:"recordname"`
func RegisterNameValidation(v *validator.Validate) error {
	return v.RegisterValidation(NameTag, func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
}

// ValidateName checks a record name against the name pattern
func ValidateName(entity, name string) error {
	if err := validate.Var(name, "required,"+NameTag); err != nil {
		return newError(ErrInvalidName,
			"%s name %q is invalid: must be 3-16 characters of letters, digits, spaces, '-' or '_' and start with a letter",
			entity, name)
	}
	return nil
}
