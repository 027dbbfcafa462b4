package core

import (
	"salespulse/internal/types"
)

// Delivery is one resolved (user, channel) target for an insight. The
// fan-out step turns each Delivery into a DispatchRecord plus a DispatchJob.
type Delivery struct {
	UserID  string
	Channel types.ChannelType
}

// Resolve computes the delivery targets for an insight from the owners'
// preferences. Pure function: no I/O, no clock.
//
// A (user, channel) pair is included when the channel is enabled, an address
// is configured for it, and the insight's magnitude meets the user's alert
// threshold. The threshold comparison is inclusive: an insight at exactly
// the threshold is delivered. Users without a preference row receive
// nothing, and daily-digest users are not interrupted for low-severity
// findings.
func Resolve(insight *types.Insight, prefs []*types.NotificationPreference) []Delivery {
	var out []Delivery
	for _, p := range prefs {
		if insight.Magnitude < p.AlertThreshold {
			continue
		}
		// Daily-digest users get low-severity findings batched elsewhere;
		// only medium and high interrupt them immediately.
		if p.DigestFrequency == types.DigestDaily && insight.Severity == types.SeverityLow {
			continue
		}
		for _, ch := range types.AllChannels {
			if !p.Enabled(ch) || p.Address(ch) == "" {
				continue
			}
			out = append(out, Delivery{UserID: p.UserID, Channel: ch})
		}
	}
	return out
}

// ResolveTest computes the targets for a test notification: every enabled
// channel with an address, ignoring the alert threshold. Used by the
// send_test_notification ops operation.
func ResolveTest(pref *types.NotificationPreference) []Delivery {
	var out []Delivery
	for _, ch := range types.AllChannels {
		if !pref.Enabled(ch) || pref.Address(ch) == "" {
			continue
		}
		out = append(out, Delivery{UserID: pref.UserID, Channel: ch})
	}
	return out
}
