// Package formflow drives the two-step Udyam verification form: field
// normalisation and validation, OTP issuance and verification for the Aadhaar
// step, and PAN verification for the organisation step.
//
// An Engine owns one form session. Input changes are synchronous; RequestOTP,
// ValidateOTP and ValidatePAN each block on exactly one collaborator call. The
// loading flag is advisory: callers should disable the triggering action while
// it is set. An operation started while another is outstanding supersedes it,
// and the older result is discarded when it arrives.
package formflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// ErrTransitionNotAllowed is returned by GoToStep for moves the state machine
// does not permit.
var ErrTransitionNotAllowed = errors.New("step transition not allowed")

// Messages attached by the engine itself.
const (
	MsgNetworkError        = "Network error. Please try again."
	MsgOTPSent             = "OTP sent to your registered mobile number"
	MsgOTPGenerateFailed   = "Failed to generate OTP"
	MsgGenerateOTPFirst    = "Please generate OTP first"
	MsgAadhaarVerified     = "Aadhaar verified successfully"
	MsgAadhaarAlreadyDone  = "Aadhaar is already verified"
	MsgInvalidOTP          = "Invalid OTP"
	MsgVerifyAadhaarFirst  = "Please complete Aadhaar verification first"
	MsgPANVerified         = "PAN verified successfully"
	MsgPANValidationFailed = "PAN validation failed"
)

// panStepFields invalidate a completed PAN verification when edited.
var panStepFields = map[Field]bool{
	FieldOrganizationType: true,
	FieldPANNumber:        true,
	FieldGSTIN:            true,
	FieldFiledITR:         true,
}

// Engine is the state machine for one form session. It is safe for concurrent
// use; collaborator calls run without holding the state lock.
type Engine struct {
	issuer   OTPIssuer
	verifier OTPVerifier
	pans     PANVerifier
	logger   *slog.Logger

	mu           sync.Mutex
	step         Step
	fields       map[Field]string
	errors       map[Field]string
	otpSent      bool
	panValidated bool
	loading      bool
	notice       string
	sessionToken string
	// generation identifies the newest collaborator call; results carrying an
	// older value are dropped.
	generation uint64
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger used for operation tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an engine at step 1 with every field empty.
func New(issuer OTPIssuer, verifier OTPVerifier, pans PANVerifier, opts ...Option) *Engine {
	e := &Engine{
		issuer:   issuer,
		verifier: verifier,
		pans:     pans,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.clear()
	return e
}

// clear resets session state. Must be called while holding e.mu (or before the
// engine is shared).
func (e *Engine) clear() {
	e.step = StepAadhaar
	e.fields = make(map[Field]string, len(Fields))
	for _, f := range Fields {
		e.fields[f] = ""
	}
	e.errors = make(map[Field]string)
	e.otpSent = false
	e.panValidated = false
	e.loading = false
	e.notice = ""
	e.sessionToken = ""
}

// Reset discards all collected input and abandons any outstanding operation.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.generation++
	e.clear()
}

// SetField normalises raw, stores it and replaces the field's error with the
// result of validating the stored value. Unknown field names are ignored.
func (e *Engine) SetField(name Field, raw string) {
	if !name.Valid() {
		return
	}
	value := Normalize(name, raw)

	e.mu.Lock()
	defer e.mu.Unlock()

	prev := e.fields[name]
	e.fields[name] = value
	delete(e.errors, name)
	e.setError(name, Validate(name, value, e.ruleContext()))

	if prev == value {
		return
	}
	// An OTP is bound to the Aadhaar it was issued for.
	if name == FieldAadhaarNumber && e.step == StepAadhaar && e.otpSent {
		e.otpSent = false
		delete(e.errors, FieldOTP)
	}
	if panStepFields[name] && e.panValidated {
		e.panValidated = false
	}
}

// ValidateField runs the field's rules against value using the engine's
// current OTP state. It does not touch stored errors.
func (e *Engine) ValidateField(name Field, value string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Validate(name, value, e.ruleContext())
}

// RequestOTP validates the Aadhaar and name locally and, if both pass, asks
// the issuer for an OTP. Calling it again after success re-sends the OTP.
func (e *Engine) RequestOTP(ctx context.Context) Result {
	e.mu.Lock()
	if e.step != StepAadhaar {
		e.mu.Unlock()
		return e.reject(MsgAadhaarAlreadyDone)
	}
	req := OTPRequest{
		AadhaarNumber:    e.fields[FieldAadhaarNumber],
		EntrepreneurName: e.fields[FieldEntrepreneurName],
	}
	rc := e.ruleContext()
	aadhaarErr := Validate(FieldAadhaarNumber, req.AadhaarNumber, rc)
	nameErr := Validate(FieldEntrepreneurName, req.EntrepreneurName, rc)
	e.setError(FieldAadhaarNumber, aadhaarErr)
	e.setError(FieldEntrepreneurName, nameErr)
	if aadhaarErr != "" || nameErr != "" {
		e.mu.Unlock()
		return Result{Message: firstNonEmpty(aadhaarErr, nameErr)}
	}
	token := e.begin(ctx, "request_otp")
	e.mu.Unlock()
	defer e.release(token)

	issued, err := e.issuer.IssueOTP(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()
	if token != e.generation {
		return e.stale(ctx, "request_otp", token)
	}
	if err != nil {
		return Result{Message: e.fail(ctx, "request_otp", err, MsgOTPGenerateFailed)}
	}
	e.otpSent = true
	e.notice = MsgOTPSent
	if issued != nil && issued.SentTo != "" {
		e.notice = fmt.Sprintf("%s %s", MsgOTPSent, issued.SentTo)
	}
	return Result{OK: true, Message: e.notice}
}

// ValidateOTP checks the entered OTP locally and then with the verifier. On
// success the form advances to the PAN step.
func (e *Engine) ValidateOTP(ctx context.Context) Result {
	e.mu.Lock()
	if e.step != StepAadhaar {
		e.mu.Unlock()
		return e.reject(MsgAadhaarAlreadyDone)
	}
	if !e.otpSent {
		e.errors[FieldForm] = MsgGenerateOTPFirst
		e.mu.Unlock()
		return Result{Message: MsgGenerateOTPFirst}
	}
	req := OTPCheck{
		AadhaarNumber: e.fields[FieldAadhaarNumber],
		OTP:           e.fields[FieldOTP],
	}
	if msg := Validate(FieldOTP, req.OTP, e.ruleContext()); msg != "" {
		e.setError(FieldOTP, msg)
		e.mu.Unlock()
		return Result{Message: msg}
	}
	token := e.begin(ctx, "validate_otp")
	e.mu.Unlock()
	defer e.release(token)

	verified, err := e.verifier.VerifyOTP(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()
	if token != e.generation {
		return e.stale(ctx, "validate_otp", token)
	}
	if err != nil {
		return Result{Message: e.fail(ctx, "validate_otp", err, MsgInvalidOTP)}
	}
	if verified != nil {
		e.sessionToken = verified.SessionToken
	}
	e.step = StepPAN
	e.notice = MsgAadhaarVerified
	return Result{OK: true, Message: e.notice}
}

// ValidatePAN checks the organisation step locally, reporting every problem at
// once, and then asks the PAN verifier.
func (e *Engine) ValidatePAN(ctx context.Context) Result {
	e.mu.Lock()
	if e.step != StepPAN {
		e.mu.Unlock()
		return e.reject(MsgVerifyAadhaarFirst)
	}
	req := PANCheck{
		OrganizationType: e.fields[FieldOrganizationType],
		PANNumber:        e.fields[FieldPANNumber],
		GSTIN:            e.fields[FieldGSTIN],
		FiledITR:         e.fields[FieldFiledITR],
		SessionToken:     e.sessionToken,
	}
	rc := e.ruleContext()
	orgErr := ""
	if strings.TrimSpace(req.OrganizationType) == "" {
		orgErr = MsgSelectOrgType
	}
	itrErr := ""
	if strings.TrimSpace(req.FiledITR) == "" {
		itrErr = MsgSelectITR
	}
	panErr := Validate(FieldPANNumber, req.PANNumber, rc)
	gstinErr := Validate(FieldGSTIN, req.GSTIN, rc)
	e.setError(FieldOrganizationType, orgErr)
	e.setError(FieldPANNumber, panErr)
	e.setError(FieldGSTIN, gstinErr)
	e.setError(FieldFiledITR, itrErr)
	if orgErr != "" || panErr != "" || gstinErr != "" || itrErr != "" {
		e.mu.Unlock()
		return Result{Message: firstNonEmpty(orgErr, panErr, gstinErr, itrErr)}
	}
	token := e.begin(ctx, "validate_pan")
	e.mu.Unlock()
	defer e.release(token)

	verified, err := e.pans.VerifyPAN(ctx, req)

	e.mu.Lock()
	defer e.mu.Unlock()
	if token != e.generation {
		return e.stale(ctx, "validate_pan", token)
	}
	if err != nil {
		return Result{Message: e.fail(ctx, "validate_pan", err, MsgPANValidationFailed)}
	}
	if verified != nil && verified.AlreadyRegistered {
		e.errors[FieldForm] = MsgAlreadyRegistered
		e.logger.InfoContext(ctx, "pan already registered", "generation", token)
		return Result{Message: MsgAlreadyRegistered, AlreadyRegistered: true}
	}
	e.panValidated = true
	e.notice = MsgPANVerified
	return Result{OK: true, Message: e.notice}
}

// GoToStep moves between pages. Going back to the Aadhaar step is always
// allowed and keeps every value and flag; the PAN step is only reachable
// through ValidateOTP.
func (e *Engine) GoToStep(step Step) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch {
	case step == e.step:
		return nil
	case step == StepAadhaar && e.step == StepPAN:
		e.step = StepAadhaar
		delete(e.errors, FieldForm)
		e.notice = ""
		return nil
	default:
		return fmt.Errorf("%w: %d -> %d", ErrTransitionNotAllowed, e.step, step)
	}
}

// Back returns to the Aadhaar step.
func (e *Engine) Back() error {
	return e.GoToStep(StepAadhaar)
}

// Snapshot returns a copy of the current state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	fields := make(map[Field]string, len(e.fields))
	for k, v := range e.fields {
		fields[k] = v
	}
	errs := make(map[Field]string, len(e.errors))
	for k, v := range e.errors {
		if v != "" {
			errs[k] = v
		}
	}
	return State{
		CurrentStep:  e.step,
		Phase:        e.phase(),
		Fields:       fields,
		Errors:       errs,
		OTPSent:      e.otpSent,
		PANValidated: e.panValidated,
		Loading:      e.loading,
		Notice:       e.notice,
	}
}

func (e *Engine) Step() Step {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

func (e *Engine) Phase() Phase {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase()
}

func (e *Engine) Field(name Field) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.fields[name]
}

func (e *Engine) Error(name Field) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errors[name]
}

func (e *Engine) Loading() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loading
}

func (e *Engine) OTPSent() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.otpSent
}

func (e *Engine) PANValidated() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.panValidated
}

// SessionToken returns the token issued by the last successful OTP
// verification.
func (e *Engine) SessionToken() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sessionToken
}

func (e *Engine) phase() Phase {
	switch {
	case e.step == StepPAN && e.panValidated:
		return PhaseStep2Validated
	case e.step == StepPAN:
		return PhaseStep2Entry
	case e.otpSent:
		return PhaseStep1OTPPending
	default:
		return PhaseStep1Entry
	}
}

func (e *Engine) ruleContext() RuleContext {
	return RuleContext{OTPSent: e.otpSent}
}

func (e *Engine) setError(name Field, msg string) {
	if msg == "" {
		delete(e.errors, name)
		return
	}
	e.errors[name] = msg
}

// begin claims a new generation and raises loading. Must hold e.mu.
func (e *Engine) begin(ctx context.Context, op string) uint64 {
	if e.loading {
		e.logger.DebugContext(ctx, "superseding outstanding operation", "op", op, "generation", e.generation)
	}
	e.generation++
	e.loading = true
	e.notice = ""
	delete(e.errors, FieldForm)
	e.logger.DebugContext(ctx, "operation started", "op", op, "generation", e.generation)
	return e.generation
}

// release lowers loading if token is still the newest generation. It runs on
// every exit path of an operation, panics included.
func (e *Engine) release(token uint64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if token == e.generation {
		e.loading = false
	}
}

func (e *Engine) stale(ctx context.Context, op string, token uint64) Result {
	e.logger.DebugContext(ctx, "discarding superseded result", "op", op, "generation", token, "current", e.generation)
	return Result{Stale: true}
}

// fail converts a collaborator error into a form-level message. Must hold e.mu.
func (e *Engine) fail(ctx context.Context, op string, err error, fallback string) string {
	msg := MsgNetworkError
	var rej *Rejection
	if errors.As(err, &rej) {
		msg = rej.Message
		if msg == "" {
			msg = fallback
		}
	}
	e.errors[FieldForm] = msg
	e.logger.WarnContext(ctx, "operation failed", "op", op, "error", err)
	return msg
}

// reject attaches a form-level message for an operation called in the wrong
// phase.
func (e *Engine) reject(msg string) Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors[FieldForm] = msg
	return Result{Message: msg}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
