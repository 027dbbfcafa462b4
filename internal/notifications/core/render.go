package core

import (
	"fmt"
	"strings"

	"salespulse/internal/types"
)

// severityLabels maps severities to the prefix shown in subjects.
var severityLabels = map[types.Severity]string{
	types.SeverityLow:    "Heads up",
	types.SeverityMedium: "Notable",
	types.SeverityHigh:   "Urgent",
}

// metricLabels maps metrics to their human-readable names.
var metricLabels = map[types.Metric]string{
	types.MetricRevenue:   "revenue",
	types.MetricOrders:    "orders",
	types.MetricCustomers: "customers",
}

// Render builds the channel-neutral message for an insight. The To field is
// left empty; the dispatcher fills it with the user's channel address.
//
// When a narrative is present it becomes the body; otherwise the body is
// derived from the insight's structured fields. Both paths are
// deterministic for a given insight.
func Render(insight *types.Insight, storeName string) Message {
	label := severityLabels[insight.Severity]
	if label == "" {
		label = "Heads up"
	}

	subject := fmt.Sprintf("%s: %s", label, insight.Title)

	body := insight.Narrative
	if body == "" {
		body = defaultBody(insight, storeName)
	}

	return Message{
		Subject: subject,
		Body:    body,
	}
}

func defaultBody(insight *types.Insight, storeName string) string {
	metric := metricLabels[insight.Metric]
	if metric == "" {
		metric = string(insight.Metric)
	}
	pct := insight.Magnitude * 100
	day := insight.Bucket.Format("Jan 2")

	var b strings.Builder
	switch insight.Type {
	case types.InsightAnomaly:
		direction := "above"
		if insight.ZScore < 0 {
			direction = "below"
		}
		fmt.Fprintf(&b, "%s: %s on %s was %.0f%% %s the recent baseline.",
			storeName, metric, day, pct, direction)
	case types.InsightTrend:
		// Trend titles already carry the direction and span.
		fmt.Fprintf(&b, "%s: %s, through %s.", storeName, insight.Title, day)
	default:
		fmt.Fprintf(&b, "%s: %s", storeName, insight.Title)
	}
	return b.String()
}
