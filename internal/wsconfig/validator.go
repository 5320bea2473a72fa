package wsconfig

import (
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validatorOnce sync.Once
	validateInst  *validator.Validate
)

// validatorInstance configures and returns the shared validator instance
// used across the wsconfig package.
func validatorInstance() *validator.Validate {
	validatorOnce.Do(func() {
		validateInst = validator.New()
	})
	return validateInst
}

// GetValidator returns a configured validator instance for use outside the
// wsconfig package (the manifest plugins' ValidateOptions reuse it).
func GetValidator() *validator.Validate {
	return validatorInstance()
}
