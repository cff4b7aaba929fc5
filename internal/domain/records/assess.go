package records

import (
	"fmt"
	"strconv"
)

// Range is an inclusive reference interval.
type Range struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
	Unit string  `json:"unit"`
}

// Reference intervals shown to the user next to each analyte.
var (
	RangeFT3 = Range{Low: 3.1, High: 6.8, Unit: "pmol/L"}
	RangeFT4 = Range{Low: 12.0, High: 22.0, Unit: "pmol/L"}
	RangeTSH = Range{Low: 0.27, High: 4.2, Unit: "mIU/L"}
)

type Level string

const (
	LevelLow    Level = "low"
	LevelNormal Level = "normal"
	LevelHigh   Level = "high"
)

func (r Range) Classify(v float64) Level {
	switch {
	case v < r.Low:
		return LevelLow
	case v > r.High:
		return LevelHigh
	}
	return LevelNormal
}

// AnalyteAssessment places one measured value against its reference range.
type AnalyteAssessment struct {
	Value float64 `json:"value"`
	Range Range   `json:"range"`
	Level Level   `json:"level"`
}

type PanelAssessment struct {
	Date string            `json:"date"`
	FT3  AnalyteAssessment `json:"ft3"`
	FT4  AnalyteAssessment `json:"ft4"`
	TSH  AnalyteAssessment `json:"tsh"`
}

func Assess(p ThyroidPanel) PanelAssessment {
	return PanelAssessment{
		Date: p.Date,
		FT3:  AnalyteAssessment{Value: p.FT3, Range: RangeFT3, Level: RangeFT3.Classify(p.FT3)},
		FT4:  AnalyteAssessment{Value: p.FT4, Range: RangeFT4, Level: RangeFT4.Classify(p.FT4)},
		TSH:  AnalyteAssessment{Value: p.TSH, Range: RangeTSH, Level: RangeTSH.Classify(p.TSH)},
	}
}

// NoRecordsContext is sent to the relay when no panel has been recorded.
const NoRecordsContext = "用户暂无健康记录。"

// HealthContext renders the latest panel as the free-text context appended
// to the relay's system prompt.
func HealthContext(latest ThyroidPanel, ok bool) string {
	if !ok {
		return NoRecordsContext
	}
	return fmt.Sprintf(
		"用户最新健康指标（%s）：FT3: %s pmol/L (正常范围: 3.1-6.8), FT4: %s pmol/L (正常范围: 12.0-22.0), TSH: %s mIU/L (正常范围: 0.27-4.2)。用户患有甲亢，需要低碘饮食。",
		latest.Date, formatNumber(latest.FT3), formatNumber(latest.FT4), formatNumber(latest.TSH))
}

// HealthContext renders the store's latest panel.
func (s *Store) HealthContext() string {
	return HealthContext(s.LatestThyroidPanel())
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
