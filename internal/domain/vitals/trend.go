package vitals

import "fmt"

// stableThresholdPct bounds |change_pct| for a trend to count as stable.
const stableThresholdPct = 3.0

// minTrendReadings is the minimum window length for a trend fit.
const minTrendReadings = 3

// AnalyzeTrend fits an ordinary least-squares slope of value against
// reading index over the window (ordered most-recent-last) and classifies
// the direction. Classification depends on the sign and magnitude of the
// first-to-last change percentage; the slope sign only breaks the
// rising/falling tie.
func AnalyzeTrend(metric string, readings []float64) TrendResult {
	n := len(readings)
	if n < minTrendReadings {
		return TrendResult{
			Metric:    metric,
			Direction: DirectionInsufficientData,
			Message:   fmt.Sprintf("Need at least 3 readings to determine trend (have %d).", n),
		}
	}

	// slope = (n*sum(xy) - sum(x)*sum(y)) / (n*sum(x^2) - sum(x)^2), x = 0..n-1
	var sumX, sumY, sumXY, sumX2 float64
	for i, y := range readings {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumX2 += x * x
	}
	slope := 0.0
	if denom := float64(n)*sumX2 - sumX*sumX; denom != 0 {
		slope = (float64(n)*sumXY - sumX*sumY) / denom
	}

	first, last := readings[0], readings[n-1]
	changePct := 0.0
	if first != 0 {
		changePct = (last - first) / first * 100
	}

	var direction Direction
	var msg string
	switch {
	case changePct <= stableThresholdPct && changePct >= -stableThresholdPct:
		direction = DirectionStable
		msg = fmt.Sprintf("%s is stable (change: %+.1f%% over %d readings).", metricTitle(metric), changePct, n)
	case slope > 0:
		direction = DirectionRising
		msg = fmt.Sprintf("%s is trending UP (+%.1f%% over %d readings, slope: +%.2f/reading).",
			metricTitle(metric), changePct, n, slope)
	default:
		direction = DirectionFalling
		msg = fmt.Sprintf("%s is trending DOWN (%.1f%% over %d readings, slope: %.2f/reading).",
			metricTitle(metric), changePct, n, slope)
	}

	return TrendResult{
		Metric:              metric,
		Direction:           direction,
		SlopePerReading:     roundTo(slope, 4),
		ChangePctOverWindow: roundTo(changePct, 2),
		Message:             msg,
	}
}

// BatchTrends runs trend analysis on every metric window independently.
func BatchTrends(windows map[string][]float64) []TrendResult {
	results := make([]TrendResult, 0, len(windows))
	for metric, readings := range windows {
		results = append(results, AnalyzeTrend(metric, readings))
	}
	return results
}
