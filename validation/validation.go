// Package validation collects per-field violations for request payloads.
package validation

import (
	"strings"
	"time"
)

// Violations maps a field name to a short machine-readable violation code.
type Violations map[string]string

func (v Violations) Empty() bool { return len(v) == 0 }

// Basic validators

func Required(field, value string, v Violations) {
	if strings.TrimSpace(value) == "" {
		v[field] = "required"
	}
}

func RequiredID(field string, id uint, v Violations) {
	if id == 0 {
		v[field] = "required"
	}
}

func NonNegativeFloat(field string, val float64, v Violations) {
	if val < 0 {
		v[field] = "must_not_be_negative"
	}
}

func RangeInt(field string, val, minVal, maxVal int, v Violations) {
	if val < minVal || val > maxVal {
		v[field] = "out_of_range"
	}
}

// DateOrder flags field when end is set and precedes start.
// Equal dates are accepted.
func DateOrder(field string, start time.Time, end *time.Time, v Violations) {
	if end != nil && end.Before(start) {
		v[field] = "end_before_start"
	}
}

// OneOf flags field when value is not among the allowed set.
func OneOf(field, value string, allowed []string, v Violations) {
	for _, a := range allowed {
		if value == a {
			return
		}
	}
	v[field] = "invalid_value"
}
