package lifecycle

import "testing"

func TestStateIsValid(t *testing.T) {
	valid := []State{
		StateInit, StateIdle, StateWorking,
		StateIdleException, StateWorkingException, StateNotLogined,
	}
	for _, s := range valid {
		if !s.IsValid() {
			t.Errorf("state %q should be valid", s)
		}
	}

	invalid := []State{"", "unknown", "IDLE", "logged_out"}
	for _, s := range invalid {
		if s.IsValid() {
			t.Errorf("state %q should be invalid", s)
		}
	}
}

func TestTransitionAllowed(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateInit, StateIdle, true},
		{StateInit, StateNotLogined, true},
		{StateIdle, StateIdleException, true},
		{StateIdle, StateWorking, true},
		{StateWorking, StateIdle, true},
		{StateIdle, StateNotLogined, true},
		{StateWorking, StateWorkingException, true},
		{StateIdleException, StateIdle, true},
		{StateWorkingException, StateWorking, true},
		{StateNotLogined, StateInit, true},

		// any state may re-enter itself or be kicked offline
		{StateIdle, StateIdle, true},
		{StateWorking, StateNotLogined, true},
		{StateWorkingException, StateNotLogined, true},

		// a machine with no state yet accepts any first dispatch
		{"", StateInit, true},
		{"", StateWorking, true},

		{StateInit, StateWorking, false},
		{StateIdle, StateWorkingException, false},
		{StateIdleException, StateWorking, false},
		{StateNotLogined, StateIdle, false},
	}
	for _, tt := range tests {
		if got := transitionAllowed(tt.from, tt.to); got != tt.want {
			t.Errorf("transitionAllowed(%q, %q) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
