// Package sandbox generates synthetic, reproducible tracking data for demo
// environments and UI work: a course of hyperthyroid treatment with lab
// panels trending back into range, vitals settling, a tapering dose and a
// fortnight of medication check-offs.
package sandbox

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/thyrotrack/thyrotrack/internal/domain/records"
)

// SeedConfig controls the span and shape of generated data.
type SeedConfig struct {
	Months    int       `json:"months"`
	EndDate   time.Time `json:"endDate"`
	CheckDays int       `json:"checkDays"`
	// CheckRate is the probability that a given dose was taken.
	CheckRate float64 `json:"checkRate"`
	Seed      int64   `json:"seed"`
}

// DefaultSeedConfig returns a year of history ending today.
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		Months:    12,
		CheckDays: 14,
		CheckRate: 0.85,
	}
}

// SeedResult summarizes a generated snapshot.
type SeedResult struct {
	Panels            int `json:"panels"`
	Vitals            int `json:"vitals"`
	MedicationChanges int `json:"medicationChanges"`
	MedicationChecks  int `json:"medicationChecks"`
}

func (r SeedResult) String() string {
	return fmt.Sprintf("%d thyroid panel(s), %d vital(s), %d medication change(s), %d medication check(s)",
		r.Panels, r.Vitals, r.MedicationChanges, r.MedicationChecks)
}

// course describes how a measurement relaxes from a starting value towards
// its steady state.
type course struct {
	start, steady float64
	// halfLife in days.
	halfLife float64
	spread   float64
	decimals int
}

var (
	ft3Course       = course{start: 14.5, steady: 4.9, halfLife: 45, spread: 0.06, decimals: 2}
	ft4Course       = course{start: 48, steady: 16.5, halfLife: 45, spread: 0.06, decimals: 1}
	tshCourse       = course{start: 0.005, steady: 1.9, halfLife: 120, spread: 0.1, decimals: 3}
	heartRateCourse = course{start: 112, steady: 74, halfLife: 40, spread: 0.04, decimals: 0}
	weightCourse    = course{start: 52.5, steady: 57.8, halfLife: 90, spread: 0.01, decimals: 1}
)

// doseStep is a medication change applied a number of days into the course.
type doseStep struct {
	day    int
	dosage string
	notes  string
}

const medicationName = "甲巯咪唑"

var doseSchedule = []doseStep{
	{day: 0, dosage: "30mg/日", notes: "确诊甲亢，开始治疗"},
	{day: 56, dosage: "20mg/日", notes: "FT4 下降，减量"},
	{day: 112, dosage: "10mg/日"},
	{day: 196, dosage: "5mg/日", notes: "维持剂量"},
}

// DataGenerator produces deterministic synthetic records.
type DataGenerator struct {
	rng *rand.Rand
}

// NewDataGenerator returns a generator seeded for reproducibility. If seed is
// 0 a time-based seed is chosen.
func NewDataGenerator(seed int64) *DataGenerator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &DataGenerator{rng: rand.New(rand.NewSource(seed))}
}

// at returns the course value day days in, with multiplicative noise.
func (g *DataGenerator) at(c course, day int) float64 {
	v := c.steady + (c.start-c.steady)*math.Exp(-math.Ln2*float64(day)/c.halfLife)
	v *= 1 + c.spread*(2*g.rng.Float64()-1)
	scale := math.Pow(10, float64(c.decimals))
	v = math.Round(v*scale) / scale
	if v <= 0 {
		v = 1 / scale
	}
	return v
}

func (g *DataGenerator) GeneratePanel(date string, day int) records.ThyroidPanel {
	return records.ThyroidPanel{
		Date: date,
		FT3:  g.at(ft3Course, day),
		FT4:  g.at(ft4Course, day),
		TSH:  g.at(tshCourse, day),
	}
}

func (g *DataGenerator) GenerateVital(t records.VitalType, date string, day int) records.VitalMetric {
	c := weightCourse
	if t == records.VitalHeartRate {
		c = heartRateCourse
	}
	return records.VitalMetric{Type: t, Date: date, Value: g.at(c, day), Unit: records.UnitFor(t)}
}

func (g *DataGenerator) GenerateCheck(date string, rate float64) records.MedicationCheck {
	return records.MedicationCheck{
		Date:      date,
		Morning:   g.rng.Float64() < rate,
		Afternoon: g.rng.Float64() < rate,
		Evening:   g.rng.Float64() < rate,
	}
}

// Seeder assembles a full snapshot from a DataGenerator.
type Seeder struct {
	generator *DataGenerator
	config    SeedConfig
}

func NewSeeder(config SeedConfig) *Seeder {
	def := DefaultSeedConfig()
	if config.Months <= 0 {
		config.Months = def.Months
	}
	if config.CheckDays < 0 {
		config.CheckDays = 0
	}
	if config.CheckRate <= 0 || config.CheckRate > 1 {
		config.CheckRate = def.CheckRate
	}
	if config.EndDate.IsZero() {
		config.EndDate = time.Now().UTC()
	}
	return &Seeder{
		generator: NewDataGenerator(config.Seed),
		config:    config,
	}
}

// Generate builds the snapshot: a panel every four weeks, weight and heart
// rate weekly, the dose schedule, and check-offs for the last CheckDays days.
// Records carry no ids; the store assigns them on import.
func (s *Seeder) Generate() (records.Snapshot, SeedResult) {
	end := truncateDay(s.config.EndDate)
	start := end.AddDate(0, -s.config.Months, 0)
	totalDays := int(end.Sub(start).Hours() / 24)

	snap := records.Snapshot{
		ThyroidPanels:     []records.ThyroidPanel{},
		Vitals:            []records.VitalMetric{},
		MedicationChanges: []records.MedicationChange{},
		MedicationChecks:  []records.MedicationCheck{},
	}

	for day := 0; day <= totalDays; day += 28 {
		snap.ThyroidPanels = append(snap.ThyroidPanels, s.generator.GeneratePanel(dateOf(start, day), day))
	}
	for day := 0; day <= totalDays; day += 7 {
		date := dateOf(start, day)
		snap.Vitals = append(snap.Vitals,
			s.generator.GenerateVital(records.VitalWeight, date, day),
			s.generator.GenerateVital(records.VitalHeartRate, date, day))
	}
	for _, step := range doseSchedule {
		if step.day > totalDays {
			break
		}
		snap.MedicationChanges = append(snap.MedicationChanges, records.MedicationChange{
			Date:           dateOf(start, step.day),
			MedicationName: medicationName,
			Dosage:         step.dosage,
			Notes:          step.notes,
		})
	}
	for i := s.config.CheckDays - 1; i >= 0; i-- {
		day := totalDays - i
		if day < 0 {
			continue
		}
		snap.MedicationChecks = append(snap.MedicationChecks, s.generator.GenerateCheck(dateOf(start, day), s.config.CheckRate))
	}

	return snap, SeedResult{
		Panels:            len(snap.ThyroidPanels),
		Vitals:            len(snap.Vitals),
		MedicationChanges: len(snap.MedicationChanges),
		MedicationChecks:  len(snap.MedicationChecks),
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func dateOf(start time.Time, day int) string {
	return start.AddDate(0, 0, day).Format(records.DateLayout)
}
