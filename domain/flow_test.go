package domain

import "testing"

func TestFlowStep_CanTransition(t *testing.T) {
	tests := []struct {
		from     FlowStep
		to       FlowStep
		expected bool
	}{
		{StepPhone, StepOTPPending, true},
		{StepPhone, StepVerified, false},
		{StepOTPPending, StepVerified, true},
		{StepOTPPending, StepOTPPending, true},
		{StepOTPPending, StepExpired, true},
		{StepVerified, StepProfilePending, true},
		{StepVerified, StepDone, true},
		{StepProfilePending, StepDone, true},
		{StepDone, StepDone, false},
		{StepExpired, StepVerified, false},
		{StepExpired, StepPhone, true},
		{StepDone, StepPhone, true},
	}

	for _, tt := range tests {
		if got := tt.from.CanTransition(tt.to); got != tt.expected {
			t.Errorf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.expected, got)
		}
	}
}

func TestStepForStatus(t *testing.T) {
	tests := map[OTPStatus]FlowStep{
		OTPStatusPending:  StepOTPPending,
		OTPStatusVerified: StepVerified,
		OTPStatusConsumed: StepDone,
		OTPStatusExpired:  StepExpired,
	}
	for status, expected := range tests {
		if got := StepForStatus(status); got != expected {
			t.Errorf("%s: expected %s, got %s", status, expected, got)
		}
	}
}

func TestStepForUser(t *testing.T) {
	if got := StepForUser(&User{ProfileCompleted: false}); got != StepProfilePending {
		t.Errorf("expected PROFILE_PENDING, got %s", got)
	}
	if got := StepForUser(&User{ProfileCompleted: true}); got != StepDone {
		t.Errorf("expected DONE, got %s", got)
	}
}
