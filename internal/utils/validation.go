package utils

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate *validator.Validate

var phoneRegex = regexp.MustCompile(`^\+?[1-9]\d{6,14}$`)

func init() {
	validate = validator.New()
	validate.RegisterValidation("phone", validatePhone)
}

// ValidateStruct runs tag-based validation and flattens failures into a
// field -> message map suitable for a ValidationError outcome.
func ValidateStruct(s interface{}) map[string]string {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	fields := make(map[string]string)
	if verrs, ok := err.(validator.ValidationErrors); ok {
		for _, fe := range verrs {
			fields[strings.ToLower(fe.Field())] = fmt.Sprintf("failed %s validation", fe.Tag())
		}
	} else {
		fields["_"] = err.Error()
	}
	return fields
}

func validatePhone(fl validator.FieldLevel) bool {
	return phoneRegex.MatchString(strings.ReplaceAll(fl.Field().String(), " ", ""))
}

func IsValidCoordinates(lat, lng float64) bool {
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}

// MaskPhone hides all but the last four digits of a phone number when contact
// snapshots are echoed back to clients.
func MaskPhone(phone string) string {
	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phone)

	if len(digits) <= 4 {
		return "***"
	}
	return "***-***-" + digits[len(digits)-4:]
}
