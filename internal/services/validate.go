package services

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

const (
	MinSourceLength = 1000
	MaxSourceLength = 10000

	MaxFrontLength = 200
	MaxBackLength  = 500
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// FlashcardInput is the front/back pair accepted by the create and update operations.
type FlashcardInput struct {
	Front string `json:"front" validate:"required,max=200"`
	Back  string `json:"back" validate:"required,max=500"`
}

// Normalize trims surrounding whitespace from both sides of the card.
func (in *FlashcardInput) Normalize() {
	in.Front = strings.TrimSpace(in.Front)
	in.Back = strings.TrimSpace(in.Back)
}

// ValidateFlashcard normalizes in and checks the length rules for both sides.
func ValidateFlashcard(in *FlashcardInput) error {
	in.Normalize()
	if err := validate.Struct(in); err != nil {
		return validationErr(describeValidation(err))
	}
	return nil
}

// ValidateSourceText checks the character count of the trimmed source text.
func ValidateSourceText(text string) (string, error) {
	text = strings.TrimSpace(text)
	n := utf8.RuneCountInString(text)
	switch {
	case n < MinSourceLength:
		return "", validationErr(fmt.Sprintf("source text must be at least %d characters", MinSourceLength))
	case n > MaxSourceLength:
		return "", validationErr(fmt.Sprintf("source text must be at most %d characters", MaxSourceLength))
	}
	return text, nil
}

// withinCardLimits reports whether a generated card fits the stored limits.
func withinCardLimits(front, back string) bool {
	return front != "" && back != "" &&
		utf8.RuneCountInString(front) <= MaxFrontLength &&
		utf8.RuneCountInString(back) <= MaxBackLength
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	issues := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		issues = append(issues, describeField(fe))
	}
	return strings.Join(issues, "; ")
}

func describeField(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s]", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %s validation", field, fe.Tag())
	}
}
