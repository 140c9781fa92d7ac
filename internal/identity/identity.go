// Package identity talks to the external system of record for members:
// profile, role attribute, and tracked hours.
package identity

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"clubsite/internal/models"
)

// ErrUserNotFound is returned when the directory has no user with the id.
var ErrUserNotFound = errors.New("user not found")

// ErrInvalidHours is returned for negative or non-finite hour values.
var ErrInvalidHours = errors.New("hours must be a finite number >= 0")

// Directory is the member directory.
type Directory interface {
	GetUser(ctx context.Context, id string) (models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	SetHours(ctx context.Context, id string, hours float64) (models.User, error)
}

// ValidateHours rejects values that cannot be stored as tracked hours.
func ValidateHours(hours float64) error {
	if math.IsNaN(hours) || math.IsInf(hours, 0) || hours < 0 {
		return ErrInvalidHours
	}
	return nil
}

// ParseHours parses user input such as "12" or "7.5".
func ParseHours(raw string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, fmt.Errorf("hours must be numeric: %q", raw)
	}
	if err := ValidateHours(value); err != nil {
		return 0, err
	}
	return value, nil
}

// hoursFromMetadata reads an hours attribute that may be stored as a number or
// a numeric string. Anything else counts as zero.
func hoursFromMetadata(raw any) float64 {
	switch v := raw.(type) {
	case float64:
		if ValidateHours(v) == nil {
			return v
		}
	case int:
		if v >= 0 {
			return float64(v)
		}
	case string:
		if parsed, err := ParseHours(v); err == nil {
			return parsed
		}
	}
	return 0
}
