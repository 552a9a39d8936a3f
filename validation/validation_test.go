package validation

import (
	"testing"
	"time"
)

func TestRequired(t *testing.T) {
	v := make(Violations)
	Required("diagnosis", "  ", v)
	if v["diagnosis"] != "required" {
		t.Errorf("expected required violation, got %q", v["diagnosis"])
	}

	v = make(Violations)
	Required("diagnosis", "angine", v)
	if !v.Empty() {
		t.Errorf("expected no violations, got %v", v)
	}
}

func TestDateOrder(t *testing.T) {
	start := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	v := make(Violations)
	before := start.AddDate(0, 0, -1)
	DateOrder("end_date", start, &before, v)
	if v["end_date"] != "end_before_start" {
		t.Errorf("expected end_before_start, got %q", v["end_date"])
	}

	// Equal dates are accepted.
	v = make(Violations)
	equal := start
	DateOrder("end_date", start, &equal, v)
	if !v.Empty() {
		t.Errorf("expected equal dates accepted, got %v", v)
	}

	// Nil end is accepted.
	v = make(Violations)
	DateOrder("end_date", start, nil, v)
	if !v.Empty() {
		t.Errorf("expected nil end accepted, got %v", v)
	}
}

func TestRangeInt(t *testing.T) {
	v := make(Violations)
	RangeInt("priority", 5, 1, 4, v)
	if v["priority"] != "out_of_range" {
		t.Errorf("expected out_of_range, got %q", v["priority"])
	}

	v = make(Violations)
	RangeInt("coverage_percentage", 100, 0, 100, v)
	if !v.Empty() {
		t.Errorf("expected 100 in range, got %v", v)
	}
}

func TestOneOf(t *testing.T) {
	v := make(Violations)
	OneOf("care_type", "SPA", []string{"CONSULTATION", "SURGERY"}, v)
	if v["care_type"] != "invalid_value" {
		t.Errorf("expected invalid_value, got %q", v["care_type"])
	}
}
