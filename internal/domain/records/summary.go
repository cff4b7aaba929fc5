package records

// RecentPanelCount is how many panels the dashboard shows.
const RecentPanelCount = 3

// Summary is the dashboard view.
type Summary struct {
	Today            string            `json:"today"`
	RecentPanels     []ThyroidPanel    `json:"recentPanels"`
	LatestPanel      *PanelAssessment  `json:"latestPanel,omitempty"`
	LatestHeartRate  *VitalMetric      `json:"latestHeartRate,omitempty"`
	LatestWeight     *VitalMetric      `json:"latestWeight,omitempty"`
	LatestMedication *MedicationChange `json:"latestMedication,omitempty"`
	TodayCheck       MedicationCheck   `json:"todayCheck"`
}

func (s *Store) Summary() Summary {
	today := s.Today()
	panels := s.ThyroidPanels()
	if len(panels) > RecentPanelCount {
		panels = panels[:RecentPanelCount]
	}
	sum := Summary{
		Today:        today,
		RecentPanels: panels,
		TodayCheck:   s.MedicationCheckFor(today),
	}
	if len(panels) > 0 {
		a := Assess(panels[0])
		sum.LatestPanel = &a
	}
	if v, ok := s.LatestVital(VitalHeartRate); ok {
		sum.LatestHeartRate = &v
	}
	if v, ok := s.LatestVital(VitalWeight); ok {
		sum.LatestWeight = &v
	}
	if m, ok := s.LatestMedicationChange(); ok {
		sum.LatestMedication = &m
	}
	return sum
}
