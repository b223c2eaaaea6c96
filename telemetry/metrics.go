// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	CyclesTotal      *prometheus.CounterVec // label: result=ok|failed
	CycleFailures    *prometheus.CounterVec // label: class
	SkippedTicks     prometheus.Counter
	DriftDetected    *prometheus.CounterVec // label: attribute=photo|title
	Corrections      *prometheus.CounterVec // labels: attribute, result
	PhotoCacheChecks *prometheus.CounterVec // label: outcome=hit|miss|absent
	HashComparisons  *prometheus.CounterVec // label: outcome=same|different

	// Histograms (seconds)
	CycleDuration prometheus.Observer

	// Gauges
	LastSuccessGauge  prometheus.Gauge // unix seconds of last successful cycle
	CycleRunningGauge prometheus.Gauge // 1=running,0=idle
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		CyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatguard_cycles_total", Help: "Number of reconciliation cycles by result"}, []string{"result"})
		CycleFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatguard_cycle_failures_total", Help: "Number of failed cycles by error class"}, []string{"class"})
		SkippedTicks = promauto.NewCounter(prometheus.CounterOpts{Name: "chatguard_skipped_ticks_total", Help: "Ticks dropped because the previous cycle was still running"})
		DriftDetected = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatguard_drift_detected_total", Help: "Drift detections by chat attribute"}, []string{"attribute"})
		Corrections = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatguard_corrections_total", Help: "Corrective actions by chat attribute and result"}, []string{"attribute", "result"})
		PhotoCacheChecks = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatguard_photo_cache_checks_total", Help: "Photo URL checks against the cached URL by outcome"}, []string{"outcome"})
		HashComparisons = promauto.NewCounterVec(prometheus.CounterOpts{Name: "chatguard_hash_comparisons_total", Help: "Content hash comparisons by outcome"}, []string{"outcome"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "chatguard_cycle_duration_seconds", Help: "Reconciliation cycle duration seconds, pre-check delay included", Buckets: prometheus.DefBuckets})
		LastSuccessGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatguard_last_success_timestamp_seconds", Help: "Unix time of the last successful cycle"})
		CycleRunningGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "chatguard_cycle_running", Help: "Cycle in flight=1 idle=0"})
	})
}

// RecordCycle counts a finished cycle. class is ignored when ok is true.
func RecordCycle(ok bool, class string, d time.Duration) {
	if CyclesTotal == nil {
		return
	}
	if ok {
		CyclesTotal.WithLabelValues("ok").Inc()
		LastSuccessGauge.Set(float64(time.Now().Unix()))
	} else {
		CyclesTotal.WithLabelValues("failed").Inc()
		CycleFailures.WithLabelValues(class).Inc()
	}
	CycleDuration.Observe(d.Seconds())
}

// SetCycleRunning sets gauge to 1 while a cycle is in flight else 0.
func SetCycleRunning(running bool) {
	if CycleRunningGauge == nil {
		return
	}
	if running {
		CycleRunningGauge.Set(1)
	} else {
		CycleRunningGauge.Set(0)
	}
}

// IncSkippedTick counts a tick dropped because a cycle was in flight.
func IncSkippedTick() {
	if SkippedTicks != nil {
		SkippedTicks.Inc()
	}
}

// IncDrift counts a detected drift for "photo" or "title".
func IncDrift(attribute string) {
	if DriftDetected != nil {
		DriftDetected.WithLabelValues(attribute).Inc()
	}
}

// IncCorrection counts a corrective action and whether it succeeded.
func IncCorrection(attribute string, err error) {
	if Corrections == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "failed"
	}
	Corrections.WithLabelValues(attribute, result).Inc()
}

// IncPhotoCacheCheck counts the outcome of the cheap URL comparison.
func IncPhotoCacheCheck(outcome string) {
	if PhotoCacheChecks != nil {
		PhotoCacheChecks.WithLabelValues(outcome).Inc()
	}
}

// IncHashComparison counts a content comparison; same reports equal digests.
func IncHashComparison(same bool) {
	if HashComparisons == nil {
		return
	}
	if same {
		HashComparisons.WithLabelValues("same").Inc()
	} else {
		HashComparisons.WithLabelValues("different").Inc()
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
