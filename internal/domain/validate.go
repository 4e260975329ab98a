package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

func NewID() string { return uuid.NewString() }

// CanonicalID rejects identifiers the stores could never have issued and
// returns the lowercase hyphenated form of the rest. Lock keys and stored
// references are built from the canonical form only.
func CanonicalID(id string) (string, error) {
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidID)
	}
	u, err := uuid.Parse(id)
	if err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidID, id)
	}
	return u.String(), nil
}

// ValidateStruct runs the struct's validate tags and reports the first
// failure as an INVALID_ARGUMENT error.
func ValidateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return Invalidf("invalid input: %v", err)
	}
	fe := verrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return Invalidf("%s is required", field)
	case "min":
		return Invalidf("%s must be at least %s characters", field, fe.Param())
	case "max":
		return Invalidf("%s cannot exceed %s characters", field, fe.Param())
	default:
		return Invalidf("%s is invalid (%s)", field, fe.Tag())
	}
}
