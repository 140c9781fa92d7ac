package server

import (
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

var (
	// Attachment ids start with unix millis. Older documents lack the random
	// segment, so only the character set is checked after the first hyphen.
	attachmentIDRegex = regexp.MustCompile(`^[0-9]{10,}-[A-Za-z0-9.-]*$`)
	legacyPostIDRegex = regexp.MustCompile(`^[0-9]{10,}$`)
)

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

// requestValidator returns the shared validator. Field names in messages use
// the json tag so they match the wire format.
func requestValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
			if name == "-" {
				return ""
			}
			if name == "" {
				return field.Name
			}
			return name
		})
	})
	return validate
}

// validateRequest runs struct validation and maps failures onto 400 errors.
func validateRequest(req any) error {
	err := requestValidator().Struct(req)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return badRequest(err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		messages = append(messages, describeFieldError(fe))
	}
	code := ErrCodeInvalidArgument
	if fieldErrs[0].Tag() == "required" {
		code = ErrCodeMissingRequired
	}
	return badRequestCode(errors.New(strings.Join(messages, "; ")), code)
}

func describeFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "min":
		return fmt.Sprintf("%s must be at least %s", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

func validatePostID(id string) bool {
	if legacyPostIDRegex.MatchString(id) {
		return true
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func validateAttachmentID(id string) bool {
	return attachmentIDRegex.MatchString(id)
}
