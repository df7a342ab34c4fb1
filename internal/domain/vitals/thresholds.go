package vitals

import "fmt"

// Band holds the six ordered clinical cut points for one metric:
// critical_low <= warning_low <= normal_low <= normal_high <= warning_high <= critical_high.
type Band struct {
	Unit         string
	CriticalLow  float64
	WarningLow   float64
	NormalLow    float64
	NormalHigh   float64
	WarningHigh  float64
	CriticalHigh float64
}

// Clinical reference ranges (WHO / Indian guidelines). Non-diagnostic.
var thresholdBands = map[string]Band{
	MetricHeartRate: {
		Unit:        "bpm",
		CriticalLow: 40, WarningLow: 50, NormalLow: 60,
		NormalHigh: 100, WarningHigh: 120, CriticalHigh: 150,
	},
	MetricSystolicBP: {
		Unit:        "mmHg",
		CriticalLow: 70, WarningLow: 90, NormalLow: 90,
		NormalHigh: 129, WarningHigh: 139, CriticalHigh: 180,
	},
	MetricDiastolicBP: {
		Unit:        "mmHg",
		CriticalLow: 40, WarningLow: 60, NormalLow: 60,
		NormalHigh: 89, WarningHigh: 89, CriticalHigh: 120,
	},
	MetricSpO2: {
		Unit:        "%",
		CriticalLow: 88, WarningLow: 94, NormalLow: 95,
		NormalHigh: 100, WarningHigh: 100, CriticalHigh: 100,
	},
	MetricTemperatureF: {
		Unit:        "F",
		CriticalLow: 95.0, WarningLow: 96.8, NormalLow: 97.0,
		NormalHigh: 99.0, WarningHigh: 100.4, CriticalHigh: 103.0,
	},
	MetricRespiratoryRate: {
		Unit:        "breaths/min",
		CriticalLow: 8, WarningLow: 10, NormalLow: 12,
		NormalHigh: 20, WarningHigh: 24, CriticalHigh: 30,
	},
}

// KnownMetric reports whether a metric has a reference band.
func KnownMetric(metric string) bool {
	_, ok := thresholdBands[metric]
	return ok
}

// ThresholdBand returns the reference band for a metric.
func ThresholdBand(metric string) (Band, bool) {
	b, ok := thresholdBands[metric]
	return b, ok
}

// CheckThreshold classifies a single reading against the reference bands.
// The second return value is false when the metric is not tracked.
// Rule order (first match wins): critical low, warning low, critical high,
// warning high, normal.
func CheckThreshold(metric string, value float64) (ThresholdResult, bool) {
	band, ok := thresholdBands[metric]
	if !ok {
		return ThresholdResult{}, false
	}

	res := ThresholdResult{
		Metric:   metric,
		Value:    value,
		Unit:     band.Unit,
		Severity: SeverityNormal,
		Message:  fmt.Sprintf("%s is within normal range.", metricTitle(metric)),
	}

	switch {
	case value <= band.CriticalLow:
		res.Severity = SeverityCritical
		res.AutoEmergency = true
		res.Message = fmt.Sprintf("CRITICAL LOW %s: %v %s - Immediate attention needed.", metricLabel(metric), value, band.Unit)
	case value <= band.WarningLow:
		res.Severity = SeverityWarning
		res.Message = fmt.Sprintf("Low %s: %v %s - Below normal range.", metricLabel(metric), value, band.Unit)
	case value >= band.CriticalHigh:
		res.Severity = SeverityCritical
		res.AutoEmergency = true
		res.Message = fmt.Sprintf("CRITICAL HIGH %s: %v %s - Immediate attention needed.", metricLabel(metric), value, band.Unit)
	case value >= band.WarningHigh:
		res.Severity = SeverityWarning
		res.Message = fmt.Sprintf("Elevated %s: %v %s - Above normal range.", metricLabel(metric), value, band.Unit)
	}

	return res, true
}

// CheckAll classifies every tracked metric in the map. Untracked metrics
// produce no result. Each metric is independent; no ordering is guaranteed.
func CheckAll(current map[string]float64) []ThresholdResult {
	results := make([]ThresholdResult, 0, len(current))
	for metric, value := range current {
		if res, ok := CheckThreshold(metric, value); ok {
			results = append(results, res)
		}
	}
	return results
}
