package vitals

import (
	"fmt"
	"math"
)

// DefaultZThreshold is the absolute z-score at or above which a reading
// is flagged as an outlier.
const DefaultZThreshold = 2.5

// minOutlierHistory is the minimum history length for z-score detection.
const minOutlierHistory = 5

func mean(values []float64) float64 {
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// stddev is the population standard deviation around mu.
func stddev(values []float64, mu float64) float64 {
	variance := 0.0
	for _, v := range values {
		d := v - mu
		variance += d * d
	}
	return math.Sqrt(variance / float64(len(values)))
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// DetectOutlier flags newValue as statistically anomalous relative to the
// metric's recent history (ordered most-recent-last, excluding newValue).
// Fewer than 5 history points never yields an outlier. A degenerate
// constant series (sigma < 1e-6) falls back to an absolute-difference
// check instead of dividing by near-zero sigma.
func DetectOutlier(newValue float64, history []float64, zThreshold float64) OutlierResult {
	if len(history) < minOutlierHistory {
		return OutlierResult{
			Message: "Insufficient history for outlier detection (need >=5 readings).",
		}
	}

	mu := mean(history)
	sigma := stddev(history, mu)

	if sigma < 1e-6 {
		delta := math.Abs(newValue - mu)
		msg := "Readings stable."
		if delta > 1 {
			msg = "Readings have been constant - small changes detected."
		}
		return OutlierResult{
			IsOutlier: delta > 1,
			ZScore:    delta,
			Message:   msg,
		}
	}

	z := (newValue - mu) / sigma
	deviationPct := 0.0
	if mu != 0 {
		deviationPct = (newValue - mu) / mu * 100
	}

	isOutlier := math.Abs(z) >= zThreshold
	var msg string
	if isOutlier {
		msg = fmt.Sprintf("Outlier detected: Z-score=%.2f (threshold +/-%v). Deviation %+.1f%% from rolling mean %.1f.",
			z, zThreshold, deviationPct, mu)
	} else {
		msg = fmt.Sprintf("Within normal variation (Z=%.2f, mean=%.1f).", z, mu)
	}

	return OutlierResult{
		IsOutlier:    isOutlier,
		ZScore:       roundTo(z, 3),
		DeviationPct: roundTo(deviationPct, 2),
		Message:      msg,
	}
}

// Smooth applies a trailing moving average of the given window to reduce
// sensor noise. The result has the same length as the input; the first
// window-1 entries average over a shorter prefix. Display only, never
// used for decisioning.
func Smooth(readings []float64, window int) []float64 {
	if len(readings) < window {
		return readings
	}
	smoothed := make([]float64, 0, len(readings))
	for i := range readings {
		start := i - window + 1
		if start < 0 {
			start = 0
		}
		smoothed = append(smoothed, roundTo(mean(readings[start:i+1]), 2))
	}
	return smoothed
}
