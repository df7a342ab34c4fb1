package vitals

import (
	"strings"
	"testing"
)

func TestAnalyzeTrend_Stable(t *testing.T) {
	res := AnalyzeTrend(MetricHeartRate, []float64{70, 70, 70})
	if res.Direction != DirectionStable {
		t.Errorf("direction = %s, want stable", res.Direction)
	}
	if res.ChangePctOverWindow != 0 {
		t.Errorf("change_pct = %v, want 0", res.ChangePctOverWindow)
	}
	if res.SlopePerReading != 0 {
		t.Errorf("slope = %v, want 0", res.SlopePerReading)
	}
}

func TestAnalyzeTrend_Rising(t *testing.T) {
	res := AnalyzeTrend(MetricSystolicBP, []float64{120, 130, 145})
	if res.Direction != DirectionRising {
		t.Errorf("direction = %s, want rising", res.Direction)
	}
	if !almostEqual(res.ChangePctOverWindow, 20.83, 0.01) {
		t.Errorf("change_pct = %v, want ~20.83", res.ChangePctOverWindow)
	}
	if !almostEqual(res.SlopePerReading, 12.5, 0.001) {
		t.Errorf("slope = %v, want 12.5", res.SlopePerReading)
	}
}

func TestAnalyzeTrend_Falling(t *testing.T) {
	res := AnalyzeTrend(MetricSpO2, []float64{98, 95, 91})
	if res.Direction != DirectionFalling {
		t.Errorf("direction = %s, want falling", res.Direction)
	}
	if res.ChangePctOverWindow >= 0 {
		t.Errorf("change_pct = %v, want negative", res.ChangePctOverWindow)
	}
}

func TestAnalyzeTrend_SmallChangeIsStable(t *testing.T) {
	// +2.9% first-to-last stays inside the stability band even though
	// the slope is positive.
	res := AnalyzeTrend(MetricHeartRate, []float64{70, 71, 72})
	if res.Direction != DirectionStable {
		t.Errorf("direction = %s, want stable", res.Direction)
	}
}

func TestAnalyzeTrend_InsufficientData(t *testing.T) {
	res := AnalyzeTrend(MetricHeartRate, []float64{70, 75})
	if res.Direction != DirectionInsufficientData {
		t.Errorf("direction = %s, want insufficient_data", res.Direction)
	}
	if !strings.Contains(res.Message, "at least 3") {
		t.Errorf("message = %q, want a minimum-window note", res.Message)
	}
}

func TestBatchTrends(t *testing.T) {
	results := BatchTrends(map[string][]float64{
		MetricHeartRate:  {70, 80, 95},
		MetricSystolicBP: {120, 120},
	})
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	byMetric := map[string]TrendResult{}
	for _, r := range results {
		byMetric[r.Metric] = r
	}
	if byMetric[MetricHeartRate].Direction != DirectionRising {
		t.Errorf("heart_rate direction = %s, want rising", byMetric[MetricHeartRate].Direction)
	}
	if byMetric[MetricSystolicBP].Direction != DirectionInsufficientData {
		t.Errorf("systolic_bp direction = %s, want insufficient_data", byMetric[MetricSystolicBP].Direction)
	}
}
