package connectivity

import (
	"testing"
	"time"
)

func TestState_IsStale(t *testing.T) {
	tests := []struct {
		name     string
		state    *State
		maxAge   time.Duration
		expected bool
	}{
		{
			name:     "fresh state",
			state:    &State{LastUpdate: time.Now()},
			maxAge:   5 * time.Minute,
			expected: false,
		},
		{
			name:     "stale state",
			state:    &State{LastUpdate: time.Now().Add(-10 * time.Minute)},
			maxAge:   5 * time.Minute,
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsStale(tt.maxAge); got != tt.expected {
				t.Errorf("IsStale() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestState_OfflineFor(t *testing.T) {
	online := NewState(time.Now().Add(-time.Hour))
	if got := online.OfflineFor(); got != 0 {
		t.Errorf("OfflineFor() online = %v, want 0", got)
	}

	offline := State{Online: false, LastChange: time.Now().Add(-2 * time.Minute)}
	got := offline.OfflineFor()
	if got < 119*time.Second || got > 121*time.Second {
		t.Errorf("OfflineFor() = %v, want ~2m", got)
	}
}

func TestState_Transitions(t *testing.T) {
	now := time.Now()
	s := NewState(now)

	steps := []struct {
		name       string
		success    bool
		wantChange bool
		wantOnline bool
		wantFails  int
	}{
		{name: "success while online", success: true, wantChange: false, wantOnline: true, wantFails: 0},
		{name: "first failure goes offline", success: false, wantChange: true, wantOnline: false, wantFails: 1},
		{name: "second failure stays offline", success: false, wantChange: false, wantOnline: false, wantFails: 2},
		{name: "success reconnects", success: true, wantChange: true, wantOnline: true, wantFails: 0},
	}

	for i, step := range steps {
		at := now.Add(time.Duration(i+1) * time.Second)
		var changed bool
		if step.success {
			changed = s.recordSuccess(at)
		} else {
			changed = s.recordFailure(at)
		}

		if changed != step.wantChange {
			t.Errorf("%s: changed = %v, want %v", step.name, changed, step.wantChange)
		}
		if s.Online != step.wantOnline {
			t.Errorf("%s: Online = %v, want %v", step.name, s.Online, step.wantOnline)
		}
		if s.ConsecutiveFailures != step.wantFails {
			t.Errorf("%s: ConsecutiveFailures = %d, want %d", step.name, s.ConsecutiveFailures, step.wantFails)
		}
		if !s.LastUpdate.Equal(at) {
			t.Errorf("%s: LastUpdate not advanced", step.name)
		}
		if step.wantChange && !s.LastChange.Equal(at) {
			t.Errorf("%s: LastChange not advanced on transition", step.name)
		}
	}
}
