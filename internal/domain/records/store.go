package records

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/thyrotrack/thyrotrack/internal/platform/kv"
)

// CorruptPolicy decides what Open does with an undecodable document.
type CorruptPolicy string

const (
	CorruptFail  CorruptPolicy = "fail"
	CorruptReset CorruptPolicy = "reset"
)

// QuarantineSuffix is appended to the key under which a corrupt document's
// raw bytes are kept when the reset policy applies.
const QuarantineSuffix = ".corrupt"

type Options struct {
	OnCorrupt CorruptPolicy
	Observer  Observer
	// Now defaults to time.Now in UTC; "today" is derived from it.
	Now func() time.Time
	// NewID defaults to UUIDv7 strings.
	NewID func() (string, error)
}

// Store holds the four collections over one kv.Store. It is safe for
// concurrent use.
type Store struct {
	kv     kv.Store
	logger zerolog.Logger
	now    func() time.Time
	newID  func() (string, error)

	panels  *collection[ThyroidPanel]
	vitals  *collection[VitalMetric]
	changes *collection[MedicationChange]
	checks  *collection[MedicationCheck]
}

// Open loads every collection from store. Absent documents start empty.
func Open(ctx context.Context, store kv.Store, logger zerolog.Logger, opts Options) (*Store, error) {
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	if opts.NewID == nil {
		opts.NewID = newUUIDv7
	}
	if opts.OnCorrupt == "" {
		opts.OnCorrupt = CorruptFail
	}

	s := &Store{
		kv:     store,
		logger: logger.With().Str("component", "records").Logger(),
		now:    opts.Now,
		newID:  opts.NewID,
		panels: &collection[ThyroidPanel]{
			key: KeyThyroidPanels, store: store, obs: opts.Observer,
			compare: func(a, b ThyroidPanel) int { return newestFirst(a.Date, a.ID, b.Date, b.ID) },
			idOf:    func(p ThyroidPanel) string { return p.ID },
		},
		vitals: &collection[VitalMetric]{
			key: KeyVitals, store: store, obs: opts.Observer,
			compare:   func(a, b VitalMetric) int { return newestFirst(a.Date, a.ID, b.Date, b.ID) },
			idOf:      func(v VitalMetric) string { return v.ID },
			normalize: func(v *VitalMetric) { v.Unit = UnitFor(v.Type) },
		},
		changes: &collection[MedicationChange]{
			key: KeyMedicationChanges, store: store, obs: opts.Observer,
			compare: func(a, b MedicationChange) int { return newestFirst(a.Date, a.ID, b.Date, b.ID) },
			idOf:    func(m MedicationChange) string { return m.ID },
		},
		checks: &collection[MedicationCheck]{
			key: KeyMedicationChecks, store: store, obs: opts.Observer,
			compare: func(a, b MedicationCheck) int { return strings.Compare(b.Date, a.Date) },
			idOf:    func(c MedicationCheck) string { return c.Date },
		},
	}

	if err := openCollection(ctx, s, s.panels, opts.OnCorrupt); err != nil {
		return nil, err
	}
	if err := openCollection(ctx, s, s.vitals, opts.OnCorrupt); err != nil {
		return nil, err
	}
	if err := openCollection(ctx, s, s.changes, opts.OnCorrupt); err != nil {
		return nil, err
	}
	if err := openCollection(ctx, s, s.checks, opts.OnCorrupt); err != nil {
		return nil, err
	}
	return s, nil
}

func openCollection[T any](ctx context.Context, s *Store, c *collection[T], policy CorruptPolicy) error {
	err := c.load(ctx)
	var corrupt *CorruptStateError
	if !errors.As(err, &corrupt) || policy != CorruptReset {
		return err
	}

	doc, gerr := s.kv.Get(ctx, c.key)
	if gerr != nil {
		return fmt.Errorf("read corrupt %s: %w", c.key, gerr)
	}
	if _, perr := s.kv.Put(ctx, c.key+QuarantineSuffix, doc.Value, kv.AnyRevision); perr != nil {
		return fmt.Errorf("quarantine %s: %w", c.key, perr)
	}
	s.logger.Warn().Err(corrupt.Err).
		Str("key", c.key).
		Str("quarantine", c.key+QuarantineSuffix).
		Msg("corrupt document moved aside, collection starts empty")

	// Keep the stored revision so the first write replaces the bad document.
	c.items, c.rev = []T{}, doc.Revision
	return nil
}

// newestFirst orders by date descending, then id ascending.
func newestFirst(dateA, idA, dateB, idB string) int {
	if c := strings.Compare(dateB, dateA); c != 0 {
		return c
	}
	return strings.Compare(idA, idB)
}

func newUUIDv7() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// Today is the current calendar date.
func (s *Store) Today() string {
	return s.now().Format(DateLayout)
}

// Driver names the backing kv driver.
func (s *Store) Driver() string {
	return s.kv.Driver()
}

// -- Thyroid panels --

func (s *Store) AddThyroidPanel(ctx context.Context, p ThyroidPanel) (ThyroidPanel, error) {
	if err := validatePanel(p); err != nil {
		return ThyroidPanel{}, err
	}
	id, err := s.newID()
	if err != nil {
		return ThyroidPanel{}, fmt.Errorf("generate id: %w", err)
	}
	p.ID = id
	if err := s.panels.insert(ctx, p); err != nil {
		return ThyroidPanel{}, err
	}
	return p, nil
}

// UpdateThyroidPanel merges patch into the panel with id. found is false,
// with nothing written, when no such panel exists.
func (s *Store) UpdateThyroidPanel(ctx context.Context, id string, patch ThyroidPanelPatch) (ThyroidPanel, bool, error) {
	return s.panels.update(ctx, id, func(p *ThyroidPanel) error {
		patch.apply(p)
		return validatePanel(*p)
	})
}

func (s *Store) DeleteThyroidPanel(ctx context.Context, id string) (bool, error) {
	return s.panels.remove(ctx, id)
}

func (s *Store) ThyroidPanels() []ThyroidPanel {
	return s.panels.list()
}

func (s *Store) LatestThyroidPanel() (ThyroidPanel, bool) {
	return s.panels.first()
}

// -- Vitals --

func (s *Store) AddVital(ctx context.Context, v VitalMetric) (VitalMetric, error) {
	if err := validateVital(v); err != nil {
		return VitalMetric{}, err
	}
	id, err := s.newID()
	if err != nil {
		return VitalMetric{}, fmt.Errorf("generate id: %w", err)
	}
	v.ID = id
	v.Unit = UnitFor(v.Type)
	if err := s.vitals.insert(ctx, v); err != nil {
		return VitalMetric{}, err
	}
	return v, nil
}

func (s *Store) UpdateVital(ctx context.Context, id string, patch VitalPatch) (VitalMetric, bool, error) {
	return s.vitals.update(ctx, id, func(v *VitalMetric) error {
		patch.apply(v)
		return validateVital(*v)
	})
}

func (s *Store) DeleteVital(ctx context.Context, id string) (bool, error) {
	return s.vitals.remove(ctx, id)
}

// Vitals returns every vital, or only those of type t when t is non-empty.
func (s *Store) Vitals(t VitalType) []VitalMetric {
	all := s.vitals.list()
	if t == "" {
		return all
	}
	out := make([]VitalMetric, 0, len(all))
	for _, v := range all {
		if v.Type == t {
			out = append(out, v)
		}
	}
	return out
}

// LatestVital returns the most recent vital of type t (any type when empty).
func (s *Store) LatestVital(t VitalType) (VitalMetric, bool) {
	if t == "" {
		return s.vitals.first()
	}
	for _, v := range s.vitals.list() {
		if v.Type == t {
			return v, true
		}
	}
	return VitalMetric{}, false
}

// -- Medication changes --

func (s *Store) AddMedicationChange(ctx context.Context, m MedicationChange) (MedicationChange, error) {
	m.MedicationName = strings.TrimSpace(m.MedicationName)
	m.Dosage = strings.TrimSpace(m.Dosage)
	if err := validateMedicationChange(m); err != nil {
		return MedicationChange{}, err
	}
	id, err := s.newID()
	if err != nil {
		return MedicationChange{}, fmt.Errorf("generate id: %w", err)
	}
	m.ID = id
	if err := s.changes.insert(ctx, m); err != nil {
		return MedicationChange{}, err
	}
	return m, nil
}

func (s *Store) UpdateMedicationChange(ctx context.Context, id string, patch MedicationChangePatch) (MedicationChange, bool, error) {
	return s.changes.update(ctx, id, func(m *MedicationChange) error {
		patch.apply(m)
		m.MedicationName = strings.TrimSpace(m.MedicationName)
		m.Dosage = strings.TrimSpace(m.Dosage)
		return validateMedicationChange(*m)
	})
}

func (s *Store) DeleteMedicationChange(ctx context.Context, id string) (bool, error) {
	return s.changes.remove(ctx, id)
}

func (s *Store) MedicationChanges() []MedicationChange {
	return s.changes.list()
}

func (s *Store) LatestMedicationChange() (MedicationChange, bool) {
	return s.changes.first()
}

// -- Medication checks --

// SetMedicationCheck marks one dose slot of date as taken or not. A day
// that does not exist yet is created with the other slots unchecked.
func (s *Store) SetMedicationCheck(ctx context.Context, date string, period Period, checked bool) (MedicationCheck, error) {
	if err := validateCheck(date, period); err != nil {
		return MedicationCheck{}, err
	}
	result := MedicationCheck{Date: date}
	_, err := s.checks.mutate(ctx, "set", func(items []MedicationCheck) ([]MedicationCheck, bool, error) {
		for i := range items {
			if items[i].Date != date {
				continue
			}
			before := items[i]
			items[i].set(period, checked)
			result = items[i]
			return items, items[i] != before, nil
		}
		result = MedicationCheck{Date: date}
		result.set(period, checked)
		if !checked {
			return items, false, nil
		}
		return append(items, result), true, nil
	})
	if err != nil {
		return MedicationCheck{}, err
	}
	return result, nil
}

// MedicationCheckFor returns the stored day or an all-unchecked default.
func (s *Store) MedicationCheckFor(date string) MedicationCheck {
	for _, c := range s.checks.list() {
		if c.Date == date {
			return c
		}
	}
	return MedicationCheck{Date: date}
}

func (s *Store) MedicationChecks() []MedicationCheck {
	return s.checks.list()
}

// -- Export / import --

// Export returns a copy of every collection.
func (s *Store) Export() Snapshot {
	return Snapshot{
		ThyroidPanels:     s.panels.list(),
		Vitals:            s.vitals.list(),
		MedicationChanges: s.changes.list(),
		MedicationChecks:  s.checks.list(),
	}
}

// Import replaces every collection with snap after validating all of it.
// Entries without an id get a fresh one. Collections are replaced one at a
// time; a failure part-way leaves earlier collections replaced.
func (s *Store) Import(ctx context.Context, snap Snapshot) error {
	if err := s.prepareImport(&snap); err != nil {
		return err
	}
	if err := s.panels.replace(ctx, snap.ThyroidPanels); err != nil {
		return err
	}
	if err := s.vitals.replace(ctx, snap.Vitals); err != nil {
		return err
	}
	if err := s.changes.replace(ctx, snap.MedicationChanges); err != nil {
		return err
	}
	return s.checks.replace(ctx, snap.MedicationChecks)
}

func (s *Store) prepareImport(snap *Snapshot) error {
	var v validator
	collect := func(prefix string, i int, err error) {
		var inv *InvalidFieldError
		if errors.As(err, &inv) {
			for _, f := range inv.Fields {
				v.add(fmt.Sprintf("%s[%d].%s", prefix, i, f.Field), f.Message)
			}
		}
	}
	ensureID := func(prefix string, i int, id *string, seen map[string]bool) error {
		if *id == "" {
			newID, err := s.newID()
			if err != nil {
				return fmt.Errorf("generate id: %w", err)
			}
			*id = newID
		}
		if seen[*id] {
			v.add(fmt.Sprintf("%s[%d].id", prefix, i), "duplicate id")
		}
		seen[*id] = true
		return nil
	}

	seen := map[string]bool{}
	for i := range snap.ThyroidPanels {
		if err := ensureID(KeyThyroidPanels, i, &snap.ThyroidPanels[i].ID, seen); err != nil {
			return err
		}
		collect(KeyThyroidPanels, i, validatePanel(snap.ThyroidPanels[i]))
	}
	seen = map[string]bool{}
	for i := range snap.Vitals {
		if err := ensureID(KeyVitals, i, &snap.Vitals[i].ID, seen); err != nil {
			return err
		}
		collect(KeyVitals, i, validateVital(snap.Vitals[i]))
	}
	seen = map[string]bool{}
	for i := range snap.MedicationChanges {
		m := &snap.MedicationChanges[i]
		m.MedicationName = strings.TrimSpace(m.MedicationName)
		m.Dosage = strings.TrimSpace(m.Dosage)
		if err := ensureID(KeyMedicationChanges, i, &snap.MedicationChanges[i].ID, seen); err != nil {
			return err
		}
		collect(KeyMedicationChanges, i, validateMedicationChange(snap.MedicationChanges[i]))
	}
	seen = map[string]bool{}
	for i, c := range snap.MedicationChecks {
		if seen[c.Date] {
			v.add(fmt.Sprintf("%s[%d].date", KeyMedicationChecks, i), "duplicate date")
		}
		seen[c.Date] = true
		collect(KeyMedicationChecks, i, validateCheck(c.Date, PeriodMorning))
	}
	return v.err()
}
