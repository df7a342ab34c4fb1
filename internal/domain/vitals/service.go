package vitals

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/connectcare/connectcare/internal/domain/emergency"
)

// ErrNoMetrics is returned when a submission carries no recognized
// vital metric.
var ErrNoMetrics = errors.New("no vital metrics in request")

// TrendWindow is the number of trailing readings fed to trend analysis
// on each submission.
const TrendWindow = 30

// SummaryWindow is the number of trailing readings summarized per
// metric in history responses.
const SummaryWindow = 24

// SmoothingWindow is the moving-average span applied to history series.
const SmoothingWindow = 3

// AnalyticsWindows maps a reporting period to the number of trailing
// readings it covers. Reading counts stand in for wall-clock time.
var AnalyticsWindows = map[string]int{
	"daily":   8,
	"weekly":  56,
	"monthly": 240,
}

// EmergencyTrigger is the slice of the emergency workflow the vitals
// pipeline needs for automatic escalation on a critical breach.
// Satisfied by *emergency.Service.
type EmergencyTrigger interface {
	HasActive(ctx context.Context, patientID string) bool
	Trigger(ctx context.Context, in emergency.TriggerInput) (*emergency.TriggerResult, error)
}

// SubmissionResult is the full analysis of one vitals submission.
type SubmissionResult struct {
	PatientID              string                   `json:"patient_id"`
	Timestamp              time.Time                `json:"timestamp"`
	CurrentVitals          map[string]float64       `json:"current_vitals"`
	ThresholdResults       []ThresholdResult        `json:"threshold_results"`
	OutlierResults         map[string]OutlierResult `json:"outlier_results"`
	Trends                 []TrendResult            `json:"trends"`
	RiskFlags              []RiskFlag               `json:"risk_flags"`
	AutoEmergencyTriggered bool                     `json:"auto_emergency_triggered"`
	EmergencyEvent         *emergency.Event         `json:"emergency_event,omitempty"`
}

// MetricSummary condenses the recent window of one metric.
type MetricSummary struct {
	Latest float64     `json:"latest"`
	Min    float64     `json:"min"`
	Max    float64     `json:"max"`
	Avg    float64     `json:"avg"`
	Trend  TrendResult `json:"trend"`
}

// HistoryResult is the stored series plus derived views for a patient.
type HistoryResult struct {
	PatientID string                   `json:"patient_id"`
	Raw       map[string][]Reading     `json:"raw"`
	Smoothed  map[string][]float64     `json:"smoothed"`
	Summary   map[string]MetricSummary `json:"summary"`
}

// MetricAnalytics is the per-metric block of an analytics report.
type MetricAnalytics struct {
	Period          string           `json:"period"`
	ReadingCount    int              `json:"reading_count"`
	Min             float64          `json:"min"`
	Max             float64          `json:"max"`
	Avg             float64          `json:"avg"`
	Latest          float64          `json:"latest"`
	Trend           TrendResult      `json:"trend"`
	ThresholdStatus *ThresholdResult `json:"threshold_status,omitempty"`
}

// AnalyticsResult is the windowed analytics report for a patient.
type AnalyticsResult struct {
	PatientID string                     `json:"patient_id"`
	Period    string                     `json:"period"`
	Analytics map[string]MetricAnalytics `json:"analytics"`
}

// Service runs the vitals pipeline: persist, classify, detect
// anomalies, fit trends, synthesize risk flags, and hand critical
// breaches to the emergency workflow.
type Service struct {
	history HistoryRepository
	emerg   EmergencyTrigger
	logger  zerolog.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewService builds a vitals Service. emerg may be nil, which disables
// automatic emergency triggering.
func NewService(history HistoryRepository, emerg EmergencyTrigger, logger zerolog.Logger) *Service {
	return &Service{
		history: history,
		emerg:   emerg,
		logger:  logger.With().Str("component", "vitals").Logger(),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) patientLock(patientID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[patientID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[patientID] = lock
	}
	return lock
}

// Submit ingests one multi-metric reading and returns the full
// analysis. Unknown metrics are dropped; a submission with none left is
// ErrNoMetrics. History read and append failures degrade to analysis
// without history rather than rejecting the reading.
func (s *Service) Submit(ctx context.Context, patientID string, takenAt time.Time, submitted map[string]float64) (*SubmissionResult, error) {
	current := make(map[string]float64, len(submitted))
	for metric, value := range submitted {
		if KnownMetric(metric) {
			current[metric] = value
		}
	}
	if len(current) == 0 {
		return nil, ErrNoMetrics
	}
	if takenAt.IsZero() {
		takenAt = time.Now().UTC()
	}

	lock := s.patientLock(patientID)
	lock.Lock()
	defer lock.Unlock()

	metrics := make([]string, 0, len(current))
	for metric := range current {
		metrics = append(metrics, metric)
	}
	sort.Strings(metrics)

	outliers := make(map[string]OutlierResult, len(current))
	trendWindows := make(map[string][]float64, len(current))
	for _, metric := range metrics {
		value := current[metric]

		prior, err := s.history.Series(ctx, patientID, metric, HistoryLimit)
		if err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID).Str("metric", metric).
				Msg("history read failed, analyzing without history")
			prior = nil
		}
		priorVals := make([]float64, len(prior))
		for i, r := range prior {
			priorVals[i] = r.Value
		}

		outliers[metric] = DetectOutlier(value, priorVals, DefaultZThreshold)

		window := append(priorVals, value)
		if len(window) > TrendWindow {
			window = window[len(window)-TrendWindow:]
		}
		trendWindows[metric] = window

		if err := s.history.Append(ctx, patientID, Reading{Metric: metric, Value: value, TakenAt: takenAt}); err != nil {
			s.logger.Warn().Err(err).Str("patient_id", patientID).Str("metric", metric).
				Msg("history append failed, analysis continues")
		}
	}

	thresholds := CheckAll(current)
	trends := BatchTrends(trendWindows)
	flags := GenerateRiskFlags(current, trends, thresholds)

	result := &SubmissionResult{
		PatientID:        patientID,
		Timestamp:        takenAt,
		CurrentVitals:    current,
		ThresholdResults: thresholds,
		OutlierResults:   outliers,
		Trends:           trends,
		RiskFlags:        flags,
	}

	for _, tr := range thresholds {
		if !tr.AutoEmergency || s.emerg == nil {
			continue
		}
		if s.emerg.HasActive(ctx, patientID) {
			break
		}
		trigger, err := s.emerg.Trigger(ctx, emergency.TriggerInput{
			PatientID:      patientID,
			Source:         emergency.SourceVitalsCritical,
			VitalsSnapshot: current,
			IdempotencyKey: fmt.Sprintf("auto_%s_%s", patientID, takenAt.Format(time.RFC3339)),
		})
		if err != nil {
			s.logger.Error().Err(err).Str("patient_id", patientID).Msg("auto emergency trigger failed")
			break
		}
		result.AutoEmergencyTriggered = true
		result.EmergencyEvent = trigger.Event
		break
	}

	return result, nil
}

// History returns the stored series for a patient together with a
// smoothed view and a summary of the recent window per metric.
func (s *Service) History(ctx context.Context, patientID string) (*HistoryResult, error) {
	raw, err := s.history.AllSeries(ctx, patientID, HistoryLimit)
	if err != nil {
		return nil, err
	}

	smoothed := make(map[string][]float64, len(raw))
	summary := make(map[string]MetricSummary, len(raw))
	for metric, readings := range raw {
		vals := values(readings)
		smoothed[metric] = Smooth(vals, SmoothingWindow)

		recent := vals
		if len(recent) > SummaryWindow {
			recent = recent[len(recent)-SummaryWindow:]
		}
		if len(recent) == 0 {
			continue
		}
		mn, mx := minMax(recent)
		summary[metric] = MetricSummary{
			Latest: recent[len(recent)-1],
			Min:    mn,
			Max:    mx,
			Avg:    roundTo(mean(recent), 2),
			Trend:  AnalyzeTrend(metric, recent),
		}
	}

	return &HistoryResult{
		PatientID: patientID,
		Raw:       raw,
		Smoothed:  smoothed,
		Summary:   summary,
	}, nil
}

// Analytics returns a windowed report per metric. An unrecognized
// period falls back to weekly.
func (s *Service) Analytics(ctx context.Context, patientID, period string) (*AnalyticsResult, error) {
	window, ok := AnalyticsWindows[period]
	if !ok {
		period = "weekly"
		window = AnalyticsWindows[period]
	}

	raw, err := s.history.AllSeries(ctx, patientID, window)
	if err != nil {
		return nil, err
	}

	analytics := make(map[string]MetricAnalytics, len(raw))
	for metric, readings := range raw {
		vals := values(readings)
		if len(vals) == 0 {
			continue
		}
		mn, mx := minMax(vals)
		block := MetricAnalytics{
			Period:       period,
			ReadingCount: len(vals),
			Min:          mn,
			Max:          mx,
			Avg:          roundTo(mean(vals), 2),
			Latest:       vals[len(vals)-1],
			Trend:        AnalyzeTrend(metric, vals),
		}
		if tr, ok := CheckThreshold(metric, block.Latest); ok {
			block.ThresholdStatus = &tr
		}
		analytics[metric] = block
	}

	return &AnalyticsResult{
		PatientID: patientID,
		Period:    period,
		Analytics: analytics,
	}, nil
}

func values(readings []Reading) []float64 {
	vals := make([]float64, len(readings))
	for i, r := range readings {
		vals[i] = r.Value
	}
	return vals
}

func minMax(vals []float64) (float64, float64) {
	mn, mx := vals[0], vals[0]
	for _, v := range vals[1:] {
		if v < mn {
			mn = v
		}
		if v > mx {
			mx = v
		}
	}
	return mn, mx
}
