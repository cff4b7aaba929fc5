// Package records owns the health-record collections: thyroid panels,
// vitals, medication changes and daily medication check-offs. Every
// collection lives as one JSON array document in a kv.Store.
package records

// Storage keys. These match the browser keys of the first release so an
// exported localStorage dump imports unchanged.
const (
	KeyThyroidPanels     = "thyroid_records"
	KeyVitals            = "other_metrics"
	KeyMedicationChanges = "medication_changes"
	KeyMedicationChecks  = "medication_checks"
)

// DateLayout is the calendar-date format used by every record.
const DateLayout = "2006-01-02"

// ThyroidPanel is one lab result. FT3 and FT4 are in pmol/L, TSH in mIU/L.
type ThyroidPanel struct {
	ID   string  `json:"id"`
	Date string  `json:"date"`
	FT3  float64 `json:"ft3"`
	FT4  float64 `json:"ft4"`
	TSH  float64 `json:"tsh"`
}

type ThyroidPanelPatch struct {
	Date *string  `json:"date,omitempty"`
	FT3  *float64 `json:"ft3,omitempty"`
	FT4  *float64 `json:"ft4,omitempty"`
	TSH  *float64 `json:"tsh,omitempty"`
}

func (p ThyroidPanelPatch) apply(t *ThyroidPanel) {
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.FT3 != nil {
		t.FT3 = *p.FT3
	}
	if p.FT4 != nil {
		t.FT4 = *p.FT4
	}
	if p.TSH != nil {
		t.TSH = *p.TSH
	}
}

type VitalType string

const (
	VitalHeartRate VitalType = "heartRate"
	VitalWeight    VitalType = "weight"
)

// Valid reports whether t is a known vital type.
func (t VitalType) Valid() bool {
	return t == VitalHeartRate || t == VitalWeight
}

// UnitFor returns the fixed unit of a vital type.
func UnitFor(t VitalType) string {
	switch t {
	case VitalHeartRate:
		return "bpm"
	case VitalWeight:
		return "kg"
	}
	return ""
}

// VitalMetric is a heart-rate or weight reading. Unit is always derived
// from Type; whatever the caller sends is overwritten.
type VitalMetric struct {
	ID    string    `json:"id"`
	Type  VitalType `json:"type"`
	Date  string    `json:"date"`
	Value float64   `json:"value"`
	Unit  string    `json:"unit"`
	Note  string    `json:"note,omitempty"`
}

type VitalPatch struct {
	Type  *VitalType `json:"type,omitempty"`
	Date  *string    `json:"date,omitempty"`
	Value *float64   `json:"value,omitempty"`
	Note  *string    `json:"note,omitempty"`
}

func (p VitalPatch) apply(v *VitalMetric) {
	if p.Type != nil {
		v.Type = *p.Type
	}
	if p.Date != nil {
		v.Date = *p.Date
	}
	if p.Value != nil {
		v.Value = *p.Value
	}
	if p.Note != nil {
		v.Note = *p.Note
	}
	v.Unit = UnitFor(v.Type)
}

// MedicationChange logs a dosage change. Dosage is free text ("50μg").
type MedicationChange struct {
	ID             string `json:"id"`
	Date           string `json:"date"`
	MedicationName string `json:"medicationName"`
	Dosage         string `json:"dosage"`
	Notes          string `json:"notes,omitempty"`
}

type MedicationChangePatch struct {
	Date           *string `json:"date,omitempty"`
	MedicationName *string `json:"medicationName,omitempty"`
	Dosage         *string `json:"dosage,omitempty"`
	Notes          *string `json:"notes,omitempty"`
}

func (p MedicationChangePatch) apply(m *MedicationChange) {
	if p.Date != nil {
		m.Date = *p.Date
	}
	if p.MedicationName != nil {
		m.MedicationName = *p.MedicationName
	}
	if p.Dosage != nil {
		m.Dosage = *p.Dosage
	}
	if p.Notes != nil {
		m.Notes = *p.Notes
	}
}

// Period is one of the three daily dose slots.
type Period string

const (
	PeriodMorning   Period = "morning"
	PeriodAfternoon Period = "afternoon"
	PeriodEvening   Period = "evening"
)

func (p Period) Valid() bool {
	return p == PeriodMorning || p == PeriodAfternoon || p == PeriodEvening
}

// MedicationCheck records which doses were taken on Date. Date is the identity.
type MedicationCheck struct {
	Date      string `json:"date"`
	Morning   bool   `json:"morning"`
	Afternoon bool   `json:"afternoon"`
	Evening   bool   `json:"evening"`
}

func (c *MedicationCheck) set(p Period, checked bool) {
	switch p {
	case PeriodMorning:
		c.Morning = checked
	case PeriodAfternoon:
		c.Afternoon = checked
	case PeriodEvening:
		c.Evening = checked
	}
}

// Snapshot is every collection at one point in time. Its JSON form is the
// export/import format, keyed by storage key.
type Snapshot struct {
	ThyroidPanels     []ThyroidPanel     `json:"thyroid_records"`
	Vitals            []VitalMetric      `json:"other_metrics"`
	MedicationChanges []MedicationChange `json:"medication_changes"`
	MedicationChecks  []MedicationCheck  `json:"medication_checks"`
}
