package vitals

import "fmt"

const (
	recommendCritical = "Seek immediate emergency care."
	recommendWarning  = "Monitor closely and consult a healthcare provider if persistent."
)

// GenerateRiskFlags combines threshold and trend signals into deduplicated
// human-readable flags. Rules are applied in a fixed order; the first
// occurrence of a flag_id wins. Flags are informational only, never a
// diagnosis.
func GenerateRiskFlags(current map[string]float64, trends []TrendResult, thresholds []ThresholdResult) []RiskFlag {
	var flags []RiskFlag

	for _, tr := range thresholds {
		if tr.Severity != SeverityWarning && tr.Severity != SeverityCritical {
			continue
		}
		rec := recommendWarning
		if tr.Severity == SeverityCritical {
			rec = recommendCritical
		}
		flags = append(flags, RiskFlag{
			FlagID:         fmt.Sprintf("threshold_%s_%s", tr.Metric, tr.Severity),
			Severity:       tr.Severity,
			Title:          fmt.Sprintf("Abnormal %s", metricTitle(tr.Metric)),
			Detail:         tr.Message,
			Recommendation: rec,
		})
	}

	for _, trend := range trends {
		if trend.Direction == DirectionRising {
			switch {
			case (trend.Metric == MetricSystolicBP || trend.Metric == MetricDiastolicBP) && trend.ChangePctOverWindow > 10:
				flags = append(flags, RiskFlag{
					FlagID:         "trend_rising_" + trend.Metric,
					Severity:       SeverityWarning,
					Title:          fmt.Sprintf("Progressive Rise in %s", metricTitle(trend.Metric)),
					Detail:         trend.Message,
					Recommendation: "Blood pressure shows a sustained upward trend. Log this trend and inform your doctor.",
				})
			case trend.Metric == MetricHeartRate && trend.ChangePctOverWindow > 15:
				flags = append(flags, RiskFlag{
					FlagID:         "trend_rising_heart_rate",
					Severity:       SeverityWarning,
					Title:          "Heart Rate Trend Increasing",
					Detail:         trend.Message,
					Recommendation: "Elevated and rising heart rate. Rest, hydrate, and monitor. Seek care if persistent.",
				})
			}
		}

		if trend.Direction == DirectionFalling && trend.Metric == MetricSpO2 && trend.ChangePctOverWindow < -3 {
			flags = append(flags, RiskFlag{
				FlagID:         "trend_falling_spo2",
				Severity:       SeverityCritical,
				Title:          "Falling Blood Oxygen Level",
				Detail:         trend.Message,
				Recommendation: "Decreasing SpO2 is a serious warning sign. Seek immediate medical attention.",
			})
		}
	}

	sysBP := current[MetricSystolicBP]
	hr := current[MetricHeartRate]
	if sysBP > 160 && hr > 100 {
		flags = append(flags, RiskFlag{
			FlagID:         "combo_hypertensive_tachycardia",
			Severity:       SeverityCritical,
			Title:          "Combined: High BP + Elevated Heart Rate",
			Detail:         fmt.Sprintf("Systolic BP %v mmHg with HR %v bpm simultaneously.", sysBP, hr),
			Recommendation: "This combination warrants urgent medical evaluation. Do not exert yourself.",
		})
	}

	// First occurrence wins.
	seen := make(map[string]struct{}, len(flags))
	unique := flags[:0]
	for _, f := range flags {
		if _, dup := seen[f.FlagID]; dup {
			continue
		}
		seen[f.FlagID] = struct{}{}
		unique = append(unique, f)
	}
	return unique
}
