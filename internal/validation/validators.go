package validation

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/benvon/food-delivery/internal/apperr"
	"github.com/go-playground/validator/v10"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	// Validate is a shared validator instance
	Validate *validator.Validate
)

func init() {
	Validate = validator.New()

	// Route modules address documents by their MongoDB ObjectID
	if err := Validate.RegisterValidation("objectid", validateObjectID); err != nil {
		panic(fmt.Sprintf("failed to register objectid validator: %v", err))
	}
}

// validateObjectID validates that a string is a 24 character hex ObjectID
func validateObjectID(fl validator.FieldLevel) bool {
	return primitive.IsValidObjectID(fl.Field().String())
}

// Struct validates v and converts failures into a 400 error naming the first
// offending field
func Struct(v any) error {
	err := Validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return apperr.BadRequest(err, fmt.Sprintf("invalid field %s: failed %s validation", fe.Field(), fe.Tag()))
	}
	return apperr.BadRequest(err, "invalid request payload")
}

// SanitizeText sanitizes text input by trimming whitespace and removing control characters
func SanitizeText(text string) string {
	text = strings.TrimSpace(text)

	// Remove control characters except newline and tab
	var sanitized strings.Builder
	for _, r := range text {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		sanitized.WriteRune(r)
	}

	return sanitized.String()
}
