package domain

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name string
		from WALStatus
		to   WALStatus
		want bool
	}{
		{"pending to processing", WALStatusPending, WALStatusProcessing, true},
		{"processing to completed", WALStatusProcessing, WALStatusCompleted, true},
		{"processing to failed", WALStatusProcessing, WALStatusFailed, true},
		{"failed retries via processing", WALStatusFailed, WALStatusProcessing, true},
		{"failed to dead_letter", WALStatusFailed, WALStatusDeadLetter, true},

		{"pending cannot complete directly", WALStatusPending, WALStatusCompleted, false},
		{"pending cannot fail directly", WALStatusPending, WALStatusFailed, false},
		{"completed is terminal", WALStatusCompleted, WALStatusProcessing, false},
		{"completed cannot fail", WALStatusCompleted, WALStatusFailed, false},
		{"failed cannot complete without processing", WALStatusFailed, WALStatusCompleted, false},
		{"dead_letter is terminal - processing", WALStatusDeadLetter, WALStatusProcessing, false},
		{"dead_letter is terminal - pending", WALStatusDeadLetter, WALStatusPending, false},
		{"dead_letter is terminal - completed", WALStatusDeadLetter, WALStatusCompleted, false},
		{"no self transition", WALStatusProcessing, WALStatusProcessing, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CanTransition(tt.from, tt.to)
			if got != tt.want {
				t.Errorf("CanTransition(%v, %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestValidWALStatus(t *testing.T) {
	valid := []string{"pending", "processing", "completed", "failed", "dead_letter"}
	for _, s := range valid {
		if !ValidWALStatus(s) {
			t.Errorf("ValidWALStatus(%q) = false, want true", s)
		}
	}

	invalid := []string{"", "unknown", "PENDING", "Pending", "retrying"}
	for _, s := range invalid {
		if ValidWALStatus(s) {
			t.Errorf("ValidWALStatus(%q) = true, want false", s)
		}
	}
}

func TestCheckpointFailureRate(t *testing.T) {
	tests := []struct {
		name      string
		processed int
		failed    int
		want      float64
	}{
		{"empty batch", 0, 0, 0},
		{"no failures", 10, 0, 0},
		{"half failed", 10, 5, 0.5},
		{"all failed", 4, 4, 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Checkpoint{EntriesProcessed: tt.processed, EntriesFailed: tt.failed}
			if got := c.FailureRate(); got != tt.want {
				t.Errorf("FailureRate() = %v, want %v", got, tt.want)
			}
		})
	}
}
