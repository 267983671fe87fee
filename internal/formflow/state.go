package formflow

// Step is the visible page of the form.
type Step int

const (
	StepAadhaar Step = 1
	StepPAN     Step = 2
)

// Phase is the engine's position in the verification state machine.
//
//	Step1Entry      --RequestOTP ok-->   Step1OTPPending
//	Step1OTPPending --RequestOTP ok-->   Step1OTPPending (resend)
//	Step1OTPPending --ValidateOTP ok-->  Step2Entry
//	Step2Entry      --ValidatePAN ok-->  Step2Validated
//	Step2*          --Back-->            Step1* (fields and flags kept)
type Phase string

const (
	PhaseStep1Entry      Phase = "step1_entry"
	PhaseStep1OTPPending Phase = "step1_otp_pending"
	PhaseStep2Entry      Phase = "step2_entry"
	PhaseStep2Validated  Phase = "step2_validated"
)

// State is a point-in-time copy of an engine's form state. Errors only holds
// entries with a message.
type State struct {
	CurrentStep  Step             `json:"current_step"`
	Phase        Phase            `json:"phase"`
	Fields       map[Field]string `json:"fields"`
	Errors       map[Field]string `json:"errors"`
	OTPSent      bool             `json:"otp_sent"`
	PANValidated bool             `json:"pan_validated"`
	Loading      bool             `json:"loading"`
	Notice       string           `json:"notice,omitempty"`
}

// HasErrors reports whether any field or form-level error is attached.
func (s State) HasErrors() bool {
	return len(s.Errors) > 0
}

// Result is the outcome of one collaborator-backed operation.
type Result struct {
	OK bool
	// Message is the success notice or the error shown to the user.
	Message           string
	AlreadyRegistered bool
	// Stale is set when a newer operation superseded this one; nothing was applied.
	Stale bool
}
