package risk

import (
	"math"

	"github.com/healthwatch/healthwatch/pkg/types"
)

// Severity weights summed into the raw score.
const (
	weightCritical = 10
	weightHigh     = 7
	weightMedium   = 4
	weightLow      = 1
)

// DefaultCeiling is the raw score that maps to 100.
const DefaultCeiling = 50

// Level names returned in RiskScore.Level.
const (
	LevelCritical = "critical"
	LevelHigh     = "high"
	LevelMedium   = "medium"
	LevelLow      = "low"
)

// Thresholds that map a score to a level.
const (
	ThresholdCritical = 80
	ThresholdHigh     = 60
	ThresholdMedium   = 30
)

// Weight returns the raw-score contribution of one alert of severity s.
// Unknown severities count as low.
func Weight(s types.Severity) int {
	switch s {
	case types.SeverityCritical:
		return weightCritical
	case types.SeverityHigh:
		return weightHigh
	case types.SeverityMedium:
		return weightMedium
	default:
		return weightLow
	}
}

// Score computes the risk score of a set of open alerts. Resolved alerts in
// the slice are ignored. A ceiling ≤ 0 uses DefaultCeiling.
func Score(alerts []types.Alert, ceiling int) types.RiskScore {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}

	var raw, count int
	for _, a := range alerts {
		if a.IsResolved {
			continue
		}
		raw += Weight(a.Severity)
		count++
	}

	score := int(math.Round(math.Min(100, float64(raw)/float64(ceiling)*100)))
	return types.RiskScore{
		Score:      score,
		Level:      levelFromScore(score),
		AlertCount: count,
		RawScore:   raw,
	}
}

func levelFromScore(score int) string {
	switch {
	case score >= ThresholdCritical:
		return LevelCritical
	case score >= ThresholdHigh:
		return LevelHigh
	case score >= ThresholdMedium:
		return LevelMedium
	default:
		return LevelLow
	}
}
