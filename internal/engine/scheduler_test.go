package engine

import (
	"testing"
	"time"
)

func TestDue(t *testing.T) {
	base := time.Date(2026, 8, 28, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		lastRun  time.Time
		interval time.Duration
		now      time.Time
		want     bool
	}{
		{
			name:     "never run",
			lastRun:  time.Time{},
			interval: time.Hour,
			now:      base,
			want:     true,
		},
		{
			name:     "halfway through interval",
			lastRun:  base,
			interval: time.Hour,
			now:      base.Add(30 * time.Minute),
			want:     false,
		},
		{
			name:     "exactly at boundary",
			lastRun:  base,
			interval: time.Hour,
			now:      base.Add(time.Hour),
			want:     true,
		},
		{
			name:     "past boundary",
			lastRun:  base,
			interval: time.Hour,
			now:      base.Add(90 * time.Minute),
			want:     true,
		},
		{
			name:     "one second short",
			lastRun:  base,
			interval: time.Hour,
			now:      base.Add(time.Hour - time.Second),
			want:     false,
		},
		{
			name:     "clock went backwards",
			lastRun:  base,
			interval: time.Hour,
			now:      base.Add(-time.Minute),
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Due(tt.lastRun, tt.interval, tt.now); got != tt.want {
				t.Errorf("Due(%v, %v, %v) = %v, want %v", tt.lastRun, tt.interval, tt.now, got, tt.want)
			}
		})
	}
}
