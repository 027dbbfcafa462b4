package queue

import (
	"testing"
	"time"
)

func TestBackoffPolicy_Delay_GrowsAndCaps(t *testing.T) {
	p := BackoffPolicy{Base: 30 * time.Second, Max: 900 * time.Second, Factor: 2.0}

	// Jitter is uniform over (cap/2, cap], so assert the envelope.
	tests := []struct {
		attempt int
		ceiling time.Duration
	}{
		{1, 30 * time.Second},
		{2, 60 * time.Second},
		{3, 120 * time.Second},
		{4, 240 * time.Second},
		{10, 900 * time.Second}, // capped
	}

	for _, tt := range tests {
		for i := 0; i < 50; i++ {
			d := p.Delay(tt.attempt)
			if d > tt.ceiling {
				t.Fatalf("attempt %d: delay %v exceeds ceiling %v", tt.attempt, d, tt.ceiling)
			}
			if d < tt.ceiling/2 {
				t.Fatalf("attempt %d: delay %v below jitter floor %v", tt.attempt, d, tt.ceiling/2)
			}
		}
	}
}

func TestBackoffPolicy_Delay_NonPositiveAttempt(t *testing.T) {
	p := DefaultBackoff
	d := p.Delay(0)
	if d > p.Base || d < p.Base/2 {
		t.Errorf("attempt 0 should behave as attempt 1, got %v", d)
	}
}
