package records

import (
	"math"
	"strings"
	"time"
)

type validator struct {
	fields []FieldError
}

func (v *validator) add(field, msg string) {
	v.fields = append(v.fields, FieldError{Field: field, Message: msg})
}

func (v *validator) date(field, value string) {
	if _, err := time.Parse(DateLayout, value); err != nil {
		v.add(field, "must be a calendar date in YYYY-MM-DD form")
	}
}

func (v *validator) nonNegative(field string, value float64) {
	switch {
	case math.IsNaN(value) || math.IsInf(value, 0):
		v.add(field, "must be a finite number")
	case value < 0:
		v.add(field, "must not be negative")
	}
}

func (v *validator) positive(field string, value float64) {
	switch {
	case math.IsNaN(value) || math.IsInf(value, 0):
		v.add(field, "must be a finite number")
	case value <= 0:
		v.add(field, "must be greater than zero")
	}
}

func (v *validator) required(field, value string) {
	if strings.TrimSpace(value) == "" {
		v.add(field, "is required")
	}
}

func (v *validator) err() error {
	if len(v.fields) == 0 {
		return nil
	}
	return &InvalidFieldError{Fields: v.fields}
}

func validatePanel(p ThyroidPanel) error {
	var v validator
	v.date("date", p.Date)
	v.nonNegative("ft3", p.FT3)
	v.nonNegative("ft4", p.FT4)
	v.nonNegative("tsh", p.TSH)
	return v.err()
}

func validateVital(m VitalMetric) error {
	var v validator
	if !m.Type.Valid() {
		v.add("type", "must be heartRate or weight")
	}
	v.date("date", m.Date)
	v.positive("value", m.Value)
	return v.err()
}

func validateMedicationChange(m MedicationChange) error {
	var v validator
	v.date("date", m.Date)
	v.required("medicationName", m.MedicationName)
	v.required("dosage", m.Dosage)
	return v.err()
}

func validateCheck(date string, p Period) error {
	var v validator
	v.date("date", date)
	if !p.Valid() {
		v.add("period", "must be morning, afternoon or evening")
	}
	return v.err()
}
