package models

import "testing"

func TestUnitAverage(t *testing.T) {
	tests := []struct {
		name    string
		record  ProgressRecord
		session float64
		want    float64
	}{
		{"first session", ProgressRecord{}, 85, 85},
		{"second session", ProgressRecord{Percentage: 80, SessionsCompleted: 1}, 40, 60},
		{"third session", ProgressRecord{Percentage: 60, SessionsCompleted: 2}, 90, 70},
		{"negative count treated as first", ProgressRecord{Percentage: 99, SessionsCompleted: -1}, 50, 50},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.record.UnitAverage(tt.session); got != tt.want {
				t.Errorf("UnitAverage(%v) = %v, want %v", tt.session, got, tt.want)
			}
		})
	}
}
