package domain

// FlowStep is the client visible position in the login flow.
type FlowStep string

const (
	StepPhone          FlowStep = "PHONE"
	StepOTPPending     FlowStep = "OTP_PENDING"
	StepVerified       FlowStep = "VERIFIED"
	StepProfilePending FlowStep = "PROFILE_PENDING"
	StepDone           FlowStep = "DONE"
	StepExpired        FlowStep = "EXPIRED"
)

var flowTransitions = map[FlowStep][]FlowStep{
	StepPhone:          {StepOTPPending},
	StepOTPPending:     {StepOTPPending, StepVerified, StepExpired},
	StepVerified:       {StepProfilePending, StepDone},
	StepProfilePending: {StepDone},
}

// CanTransition reports whether the flow may move from s to next. Every
// step may restart at PHONE.
func (s FlowStep) CanTransition(next FlowStep) bool {
	if next == StepPhone {
		return true
	}
	for _, allowed := range flowTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// StepForStatus maps an effective OTP session status to the flow step a
// client resuming that sid is in.
func StepForStatus(status OTPStatus) FlowStep {
	switch status {
	case OTPStatusPending:
		return StepOTPPending
	case OTPStatusVerified:
		return StepVerified
	case OTPStatusConsumed:
		return StepDone
	default:
		return StepExpired
	}
}

// StepForUser is the step after a session has been issued for user.
func StepForUser(user *User) FlowStep {
	if user == nil || !user.ProfileCompleted {
		return StepProfilePending
	}
	return StepDone
}
