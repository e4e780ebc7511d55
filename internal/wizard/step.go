package wizard

import (
	userdomain "pickup-portal/client/internal/user/domain"
)

// Step is a wizard screen. StepNone means no step is shown (closed or completed).
type Step int

const (
	StepNone Step = iota
	StepPhone
	StepOTP
	StepProfile
	StepAddress
)

func (s Step) String() string {
	switch s {
	case StepPhone:
		return "phone"
	case StepOTP:
		return "otp"
	case StepProfile:
		return "profile"
	case StepAddress:
		return "address"
	default:
		return "none"
	}
}

// ResumeStep maps a server status to the step an authenticated customer resumes at.
// done is true for COMPLETED. Unset and unrecognized statuses resume at the profile
// step, the least complete step an authenticated customer can be on.
func ResumeStep(status userdomain.Status) (step Step, done bool) {
	switch status {
	case userdomain.StatusCompleted:
		return StepNone, true
	case userdomain.StatusStep1:
		return StepAddress, false
	case userdomain.StatusInitiated, userdomain.StatusVerified:
		return StepProfile, false
	case userdomain.StatusUnset, userdomain.StatusUnknown:
		return StepProfile, false
	default:
		return StepProfile, false
	}
}

// Outcome records how the wizard last closed.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeCompleted
	OutcomeCancelled
	// OutcomeSessionExpired means a 401 at the profile or address step ended the session.
	OutcomeSessionExpired
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCompleted:
		return "completed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeSessionExpired:
		return "session_expired"
	default:
		return "none"
	}
}
