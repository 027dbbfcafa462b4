// Package insight implements the statistical engine that turns a store's
// bucketed sales history into anomaly and trend findings. The engine is a
// pure function of its inputs: given the same snapshot sequence and the same
// configuration it produces identical numeric results, which keeps replayed
// sync jobs idempotent. Narrative text is attached afterwards by the caller
// and is explicitly outside the determinism guarantee.
package insight

import (
	"fmt"
	"math"
	"time"

	"salespulse/internal/types"
)

// Config holds the detection parameters. All knobs are data, not code: the
// defaults mirror the service configuration but tests tune them freely.
type Config struct {
	// BaselineWindow is the trailing bucket count compared against.
	BaselineWindow int

	// ZScoreThreshold flags an anomaly when |z| >= threshold.
	ZScoreThreshold float64

	// SeverityMediumZ and SeverityHighZ bucket |z| into severities.
	SeverityMediumZ float64
	SeverityHighZ   float64

	// MinTrendSlope is the minimum mean per-bucket relative change for a
	// monotonic run to count as a trend.
	MinTrendSlope float64
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		BaselineWindow:  7,
		ZScoreThreshold: 2.0,
		SeverityMediumZ: 3.0,
		SeverityHighZ:   4.0,
		MinTrendSlope:   0.03,
	}
}

// Engine derives insights from snapshot sequences.
type Engine struct {
	cfg Config
}

// NewEngine creates an Engine with the given configuration.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Analyze inspects the snapshot sequence (one store, ordered oldest first,
// current bucket last) and returns zero or more insights about the current
// bucket. Fewer than 3 snapshots (current plus a 2-bucket baseline) yields
// nothing: cold starts are data-insufficiency, not errors, and produce no
// false positives.
func (e *Engine) Analyze(snapshots []*types.SalesSnapshot) []*types.Insight {
	if len(snapshots) < 3 {
		return nil
	}

	current := snapshots[len(snapshots)-1]
	baseline := snapshots[:len(snapshots)-1]
	if len(baseline) > e.cfg.BaselineWindow {
		baseline = baseline[len(baseline)-e.cfg.BaselineWindow:]
	}

	var out []*types.Insight
	for _, metric := range []types.Metric{types.MetricRevenue, types.MetricOrders, types.MetricCustomers} {
		if ins := e.detectAnomaly(metric, current, baseline); ins != nil {
			out = append(out, ins)
		}
		if ins := e.detectTrend(metric, snapshots); ins != nil {
			out = append(out, ins)
		}
	}
	return out
}

// detectAnomaly compares the current bucket's metric against the trailing
// baseline mean, in baseline standard deviations.
func (e *Engine) detectAnomaly(metric types.Metric, current *types.SalesSnapshot, baseline []*types.SalesSnapshot) *types.Insight {
	values := metricSeries(metric, baseline)
	if len(values) < 2 {
		return nil
	}

	mean, stddev := meanStddev(values)

	// A flat baseline has no spread to measure against; floor the stddev at
	// 10% of the mean so a genuinely large move still registers. A zero
	// mean leaves nothing to compare.
	if stddev == 0 {
		if mean == 0 {
			return nil
		}
		stddev = mean * 0.1
	}

	value := current.Metrics()[metric]
	z := (value - mean) / stddev
	if math.Abs(z) < e.cfg.ZScoreThreshold {
		return nil
	}

	magnitude := 0.0
	if mean != 0 {
		magnitude = math.Abs((value - mean) / mean)
	}

	direction := "above"
	if z < 0 {
		direction = "below"
	}

	return &types.Insight{
		ID:        AnomalyID(current.StoreID, current.Bucket, metric),
		StoreID:   current.StoreID,
		Type:      types.InsightAnomaly,
		Metric:    metric,
		Magnitude: round4(magnitude),
		ZScore:    round4(z),
		Severity:  e.severityForZ(math.Abs(z)),
		Title: fmt.Sprintf("%s %.0f%% %s the trailing average",
			metricLabel(metric), magnitude*100, direction),
		Bucket: current.Bucket,
	}
}

// detectTrend looks for a sustained monotonic move of the metric across the
// whole window. Ties break monotonicity: a plateau is not a trend.
func (e *Engine) detectTrend(metric types.Metric, snapshots []*types.SalesSnapshot) *types.Insight {
	values := metricSeries(metric, snapshots)
	if len(values) < 3 {
		return nil
	}

	dir := 0 // +1 rising, -1 falling
	for i := 1; i < len(values); i++ {
		switch {
		case values[i] > values[i-1]:
			if dir < 0 {
				return nil
			}
			dir = 1
		case values[i] < values[i-1]:
			if dir > 0 {
				return nil
			}
			dir = -1
		default:
			return nil
		}
	}
	if dir == 0 {
		return nil
	}

	first, last := values[0], values[len(values)-1]
	if first == 0 {
		return nil
	}
	totalChange := (last - first) / first
	slope := math.Abs(totalChange) / float64(len(values)-1)
	if slope < e.cfg.MinTrendSlope {
		return nil
	}

	current := snapshots[len(snapshots)-1]
	word := "rising"
	if dir < 0 {
		word = "falling"
	}

	return &types.Insight{
		ID:        TrendID(current.StoreID, current.Bucket, metric),
		StoreID:   current.StoreID,
		Type:      types.InsightTrend,
		Metric:    metric,
		Magnitude: round4(math.Abs(totalChange)),
		Severity:  severityForChange(math.Abs(totalChange)),
		Title: fmt.Sprintf("%s %s %.0f%% over %d days",
			metricLabel(metric), word, math.Abs(totalChange)*100, len(values)-1),
		Bucket: current.Bucket,
	}
}

// severityForZ buckets an absolute z-score using the configured cutoffs.
// Comparisons are inclusive, so a value exactly at a cutoff takes the
// higher bucket.
func (e *Engine) severityForZ(absZ float64) types.Severity {
	switch {
	case absZ >= e.cfg.SeverityHighZ:
		return types.SeverityHigh
	case absZ >= e.cfg.SeverityMediumZ:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// severityForChange buckets a trend's total relative change.
func severityForChange(change float64) types.Severity {
	switch {
	case change >= 0.50:
		return types.SeverityHigh
	case change >= 0.25:
		return types.SeverityMedium
	default:
		return types.SeverityLow
	}
}

// AnomalyID builds the deterministic insight ID for an anomaly finding.
// Re-running the engine for the same bucket reproduces the same ID, so the
// idempotent insert collapses replays to one row.
func AnomalyID(storeID string, bucket time.Time, metric types.Metric) string {
	return fmt.Sprintf("ins_%s_%s_anomaly_%s", storeID, bucket.Format("2006-01-02"), metric)
}

// TrendID builds the deterministic insight ID for a trend finding.
func TrendID(storeID string, bucket time.Time, metric types.Metric) string {
	return fmt.Sprintf("ins_%s_%s_trend_%s", storeID, bucket.Format("2006-01-02"), metric)
}


func metricSeries(metric types.Metric, snapshots []*types.SalesSnapshot) []float64 {
	out := make([]float64, len(snapshots))
	for i, s := range snapshots {
		out[i] = s.Metrics()[metric]
	}
	return out
}

func metricLabel(metric types.Metric) string {
	switch metric {
	case types.MetricRevenue:
		return "Revenue"
	case types.MetricOrders:
		return "Order volume"
	case types.MetricCustomers:
		return "Customer count"
	}
	return string(metric)
}

// meanStddev returns the mean and sample standard deviation of values.
func meanStddev(values []float64) (float64, float64) {
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		d := v - mean
		sq += d * d
	}
	variance := sq / float64(len(values)-1)
	return mean, math.Sqrt(variance)
}

// round4 trims float noise so repeated runs serialize identically.
func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
