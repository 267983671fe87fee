package formflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

// stubCollaborators implements all three ports with overridable functions and
// call counters.
type stubCollaborators struct {
	mu        sync.Mutex
	issueFn   func(ctx context.Context, req OTPRequest) (*OTPIssued, error)
	verifyFn  func(ctx context.Context, req OTPCheck) (*OTPVerified, error)
	panFn     func(ctx context.Context, req PANCheck) (*PANVerified, error)
	issued    []OTPRequest
	verified  []OTPCheck
	panChecks []PANCheck
}

func (s *stubCollaborators) IssueOTP(ctx context.Context, req OTPRequest) (*OTPIssued, error) {
	s.mu.Lock()
	s.issued = append(s.issued, req)
	fn := s.issueFn
	s.mu.Unlock()
	if fn == nil {
		return &OTPIssued{SentTo: "*******3210", ExpiresIn: 10 * time.Minute}, nil
	}
	return fn(ctx, req)
}

func (s *stubCollaborators) VerifyOTP(ctx context.Context, req OTPCheck) (*OTPVerified, error) {
	s.mu.Lock()
	s.verified = append(s.verified, req)
	fn := s.verifyFn
	s.mu.Unlock()
	if fn == nil {
		return &OTPVerified{SessionToken: "session-token"}, nil
	}
	return fn(ctx, req)
}

func (s *stubCollaborators) VerifyPAN(ctx context.Context, req PANCheck) (*PANVerified, error) {
	s.mu.Lock()
	s.panChecks = append(s.panChecks, req)
	fn := s.panFn
	s.mu.Unlock()
	if fn == nil {
		return &PANVerified{}, nil
	}
	return fn(ctx, req)
}

func (s *stubCollaborators) issueCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.issued)
}

type EngineSuite struct {
	suite.Suite
	ctx    context.Context
	stubs  *stubCollaborators
	engine *Engine
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctx = context.Background()
	s.stubs = &stubCollaborators{}
	s.engine = New(s.stubs, s.stubs, s.stubs)
}

func (s *EngineSuite) fillStep1() {
	s.engine.SetField(FieldAadhaarNumber, "234567890123")
	s.engine.SetField(FieldEntrepreneurName, "John Doe")
}

func (s *EngineSuite) reachStep2() {
	s.fillStep1()
	s.Require().True(s.engine.RequestOTP(s.ctx).OK)
	s.engine.SetField(FieldOTP, "123456")
	s.Require().True(s.engine.ValidateOTP(s.ctx).OK)
	s.Require().Equal(StepPAN, s.engine.Step())
}

func (s *EngineSuite) fillStep2() {
	s.engine.SetField(FieldOrganizationType, "proprietorship")
	s.engine.SetField(FieldPANNumber, "abcpd1234e")
	s.engine.SetField(FieldFiledITR, "yes")
}

func (s *EngineSuite) TestInitialState() {
	st := s.engine.Snapshot()
	s.Equal(StepAadhaar, st.CurrentStep)
	s.Equal(PhaseStep1Entry, st.Phase)
	s.Len(st.Fields, len(Fields))
	for _, f := range Fields {
		s.Empty(st.Fields[f])
	}
	s.False(st.HasErrors())
	s.False(st.OTPSent)
	s.False(st.PANValidated)
	s.False(st.Loading)
}

func (s *EngineSuite) TestSetFieldIgnoresUnknownNames() {
	s.engine.SetField(Field("bogus"), "x")
	st := s.engine.Snapshot()
	s.Len(st.Fields, len(Fields))
	s.NotContains(st.Fields, Field("bogus"))
	s.NotContains(st.Errors, Field("bogus"))
}

func (s *EngineSuite) TestSetField() {
	s.Run("stores normalised value and recomputes error", func() {
		s.engine.SetField(FieldAadhaarNumber, "1234")
		s.Equal("1234", s.engine.Field(FieldAadhaarNumber))
		s.Equal(MsgAadhaarFormat, s.engine.Error(FieldAadhaarNumber))

		s.engine.SetField(FieldAadhaarNumber, "2345 6789 0123")
		s.Equal("234567890123", s.engine.Field(FieldAadhaarNumber))
		s.Empty(s.engine.Error(FieldAadhaarNumber))
	})

	s.Run("is idempotent", func() {
		s.engine.SetField(FieldPANNumber, "abcpd1234e")
		first := s.engine.Snapshot()
		s.engine.SetField(FieldPANNumber, "abcpd1234e")
		second := s.engine.Snapshot()

		s.Equal("ABCPD1234E", second.Fields[FieldPANNumber])
		s.Equal(first.Fields, second.Fields)
		s.Equal(first.Errors, second.Errors)
	})

	s.Run("clearing a required field reports required", func() {
		s.engine.SetField(FieldEntrepreneurName, "John")
		s.engine.SetField(FieldEntrepreneurName, "")
		s.Equal(MsgRequired, s.engine.Error(FieldEntrepreneurName))
	})

	s.Run("other fields are stored verbatim", func() {
		s.engine.SetField(FieldOrganizationType, "pvt_company")
		s.Equal("pvt_company", s.engine.Field(FieldOrganizationType))
	})
}

func (s *EngineSuite) TestValidateFieldUsesOTPState() {
	s.Empty(s.engine.ValidateField(FieldOTP, "12345"))

	s.fillStep1()
	s.Require().True(s.engine.RequestOTP(s.ctx).OK)

	s.Equal(MsgOTPFormat, s.engine.ValidateField(FieldOTP, "12345"))
	s.Empty(s.engine.ValidateField(FieldOTP, "123456"))
}

func (s *EngineSuite) TestRequestOTP() {
	s.Run("invalid input never reaches the issuer", func() {
		s.engine.SetField(FieldAadhaarNumber, "123456789012")
		res := s.engine.RequestOTP(s.ctx)

		s.False(res.OK)
		s.Equal(0, s.stubs.issueCalls())
		s.Equal(MsgAadhaarFormat, s.engine.Error(FieldAadhaarNumber))
		s.Equal(MsgRequired, s.engine.Error(FieldEntrepreneurName))
		s.False(s.engine.OTPSent())
		s.False(s.engine.Loading())
	})

	s.Run("success marks otp sent and stays on step 1", func() {
		s.fillStep1()
		res := s.engine.RequestOTP(s.ctx)

		s.True(res.OK)
		s.Contains(res.Message, MsgOTPSent)
		s.Contains(res.Message, "*******3210")
		s.True(s.engine.OTPSent())
		s.Equal(StepAadhaar, s.engine.Step())
		s.Equal(PhaseStep1OTPPending, s.engine.Phase())
		s.False(s.engine.Loading())
		s.Equal(OTPRequest{AadhaarNumber: "234567890123", EntrepreneurName: "John Doe"}, s.stubs.issued[0])
	})

	s.Run("resend keeps the otp pending phase", func() {
		res := s.engine.RequestOTP(s.ctx)
		s.True(res.OK)
		s.Equal(PhaseStep1OTPPending, s.engine.Phase())
		s.Equal(2, s.stubs.issueCalls())
	})
}

func (s *EngineSuite) TestRequestOTPRejection() {
	s.stubs.issueFn = func(context.Context, OTPRequest) (*OTPIssued, error) {
		return nil, &Rejection{Message: "This Aadhaar number is already used for Udyam registration"}
	}
	s.fillStep1()

	res := s.engine.RequestOTP(s.ctx)

	s.False(res.OK)
	s.Equal("This Aadhaar number is already used for Udyam registration", res.Message)
	s.Equal(res.Message, s.engine.Error(FieldForm))
	s.False(s.engine.OTPSent())
	s.False(s.engine.Loading())
	s.Equal(PhaseStep1Entry, s.engine.Phase())
}

func (s *EngineSuite) TestRequestOTPEmptyRejectionUsesFallback() {
	s.stubs.issueFn = func(context.Context, OTPRequest) (*OTPIssued, error) {
		return nil, &Rejection{}
	}
	s.fillStep1()

	res := s.engine.RequestOTP(s.ctx)
	s.Equal(MsgOTPGenerateFailed, res.Message)
}

func (s *EngineSuite) TestRequestOTPTransportError() {
	s.stubs.issueFn = func(context.Context, OTPRequest) (*OTPIssued, error) {
		return nil, errors.New("dial tcp: connection refused")
	}
	s.fillStep1()

	res := s.engine.RequestOTP(s.ctx)

	s.False(res.OK)
	s.Equal(MsgNetworkError, res.Message)
	s.Equal(MsgNetworkError, s.engine.Error(FieldForm))
	s.False(s.engine.Loading())

	s.stubs.issueFn = nil
	s.True(s.engine.RequestOTP(s.ctx).OK, "every failure is retryable")
	s.Empty(s.engine.Error(FieldForm))
}

func (s *EngineSuite) TestRequestOTPPanicReleasesLoading() {
	s.stubs.issueFn = func(context.Context, OTPRequest) (*OTPIssued, error) {
		panic("collaborator crashed")
	}
	s.fillStep1()

	s.Panics(func() { s.engine.RequestOTP(s.ctx) })
	s.False(s.engine.Loading())
}

func (s *EngineSuite) TestLoadingDuringCall() {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	s.stubs.issueFn = func(context.Context, OTPRequest) (*OTPIssued, error) {
		close(entered)
		<-proceed
		return &OTPIssued{}, nil
	}
	s.fillStep1()

	done := make(chan Result)
	go func() { done <- s.engine.RequestOTP(s.ctx) }()

	<-entered
	s.True(s.engine.Loading())
	s.True(s.engine.Snapshot().Loading)
	close(proceed)

	res := <-done
	s.True(res.OK)
	s.False(s.engine.Loading())
}

func (s *EngineSuite) TestSupersededResultIsDiscarded() {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	var calls int
	var mu sync.Mutex
	s.stubs.issueFn = func(context.Context, OTPRequest) (*OTPIssued, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(entered)
			<-proceed
			return &OTPIssued{SentTo: "first"}, nil
		}
		return nil, &Rejection{Message: "Too many OTP requests, please try again later"}
	}
	s.fillStep1()

	first := make(chan Result)
	go func() { first <- s.engine.RequestOTP(s.ctx) }()
	<-entered

	second := s.engine.RequestOTP(s.ctx)
	s.False(second.OK)
	s.False(s.engine.Loading())

	close(proceed)
	stale := <-first

	s.True(stale.Stale)
	s.False(stale.OK)
	s.False(s.engine.OTPSent(), "stale success must not be applied")
	s.Equal("Too many OTP requests, please try again later", s.engine.Error(FieldForm))
	s.False(s.engine.Loading())
}

func (s *EngineSuite) TestStaleCallDoesNotClearNewerLoading() {
	firstEntered := make(chan struct{})
	secondEntered := make(chan struct{})
	releaseFirst := make(chan struct{})
	releaseSecond := make(chan struct{})
	var calls int
	var mu sync.Mutex
	s.stubs.issueFn = func(context.Context, OTPRequest) (*OTPIssued, error) {
		mu.Lock()
		calls++
		n := calls
		mu.Unlock()
		if n == 1 {
			close(firstEntered)
			<-releaseFirst
		} else {
			close(secondEntered)
			<-releaseSecond
		}
		return &OTPIssued{}, nil
	}
	s.fillStep1()

	first := make(chan Result)
	second := make(chan Result)
	go func() { first <- s.engine.RequestOTP(s.ctx) }()
	<-firstEntered
	go func() { second <- s.engine.RequestOTP(s.ctx) }()
	<-secondEntered

	close(releaseFirst)
	s.True((<-first).Stale)
	s.True(s.engine.Loading(), "newer call still owns loading")

	close(releaseSecond)
	s.True((<-second).OK)
	s.False(s.engine.Loading())
	s.True(s.engine.OTPSent())
}

func (s *EngineSuite) TestValidateOTP() {
	s.Run("requires an issued otp", func() {
		s.fillStep1()
		s.engine.SetField(FieldOTP, "123456")
		res := s.engine.ValidateOTP(s.ctx)

		s.False(res.OK)
		s.Equal(MsgGenerateOTPFirst, s.engine.Error(FieldForm))
		s.Empty(s.stubs.verified)
	})

	s.Run("malformed otp never reaches the verifier", func() {
		s.Require().True(s.engine.RequestOTP(s.ctx).OK)
		s.engine.SetField(FieldOTP, "12345")
		s.Equal(MsgOTPFormat, s.engine.Error(FieldOTP))

		res := s.engine.ValidateOTP(s.ctx)
		s.False(res.OK)
		s.Equal(MsgOTPFormat, res.Message)
		s.Empty(s.stubs.verified)
		s.Equal(StepAadhaar, s.engine.Step())
	})

	s.Run("success advances to step 2", func() {
		s.engine.SetField(FieldOTP, "123456")
		s.Empty(s.engine.Error(FieldOTP))

		res := s.engine.ValidateOTP(s.ctx)
		s.True(res.OK)
		s.Equal(MsgAadhaarVerified, res.Message)
		s.Equal(StepPAN, s.engine.Step())
		s.Equal(PhaseStep2Entry, s.engine.Phase())
		s.Equal("session-token", s.engine.SessionToken())
		s.Equal(OTPCheck{AadhaarNumber: "234567890123", OTP: "123456"}, s.stubs.verified[0])
		s.False(s.engine.Loading())
	})

	s.Run("cannot run again on step 2", func() {
		res := s.engine.ValidateOTP(s.ctx)
		s.False(res.OK)
		s.Equal(MsgAadhaarAlreadyDone, res.Message)
		s.Len(s.stubs.verified, 1)
	})
}

func (s *EngineSuite) TestValidateOTPRejected() {
	s.stubs.verifyFn = func(context.Context, OTPCheck) (*OTPVerified, error) {
		return nil, &Rejection{Message: "OTP is incorrect or has expired"}
	}
	s.fillStep1()
	s.Require().True(s.engine.RequestOTP(s.ctx).OK)
	s.engine.SetField(FieldOTP, "654321")

	res := s.engine.ValidateOTP(s.ctx)

	s.False(res.OK)
	s.Equal("OTP is incorrect or has expired", s.engine.Error(FieldForm))
	s.Equal(StepAadhaar, s.engine.Step())
	s.True(s.engine.OTPSent())
	s.False(s.engine.Loading())
}

func (s *EngineSuite) TestValidatePAN() {
	s.Run("not allowed before aadhaar verification", func() {
		res := s.engine.ValidatePAN(s.ctx)
		s.False(res.OK)
		s.Equal(MsgVerifyAadhaarFirst, s.engine.Error(FieldForm))
		s.Empty(s.stubs.panChecks)
	})

	s.Run("reports every local problem at once", func() {
		s.reachStep2()
		s.engine.SetField(FieldPANNumber, "ABCD1234E")
		s.engine.SetField(FieldGSTIN, "27abcpd1234e1yf")

		res := s.engine.ValidatePAN(s.ctx)

		s.False(res.OK)
		s.Empty(s.stubs.panChecks)
		s.Equal(MsgSelectOrgType, s.engine.Error(FieldOrganizationType))
		s.Equal(MsgPANFormat, s.engine.Error(FieldPANNumber))
		s.Equal(MsgGSTINFormat, s.engine.Error(FieldGSTIN))
		s.Equal(MsgSelectITR, s.engine.Error(FieldFiledITR))
		s.False(s.engine.PANValidated())
	})

	s.Run("success marks pan validated", func() {
		s.fillStep2()
		s.engine.SetField(FieldGSTIN, "")

		res := s.engine.ValidatePAN(s.ctx)

		s.True(res.OK)
		s.True(s.engine.PANValidated())
		s.Equal(PhaseStep2Validated, s.engine.Phase())
		s.False(s.engine.Snapshot().HasErrors())
		s.Equal(PANCheck{
			OrganizationType: "proprietorship",
			PANNumber:        "ABCPD1234E",
			FiledITR:         "yes",
			SessionToken:     "session-token",
		}, s.stubs.panChecks[0])
	})

	s.Run("editing a pan field invalidates the result", func() {
		s.engine.SetField(FieldPANNumber, "abcpd1234e")
		s.True(s.engine.PANValidated(), "unchanged value keeps validation")

		s.engine.SetField(FieldFiledITR, "no")
		s.False(s.engine.PANValidated())
		s.Equal(PhaseStep2Entry, s.engine.Phase())
	})
}

func (s *EngineSuite) TestValidatePANMissingOrganizationType() {
	s.reachStep2()
	s.engine.SetField(FieldPANNumber, "ABCPD1234E")
	s.engine.SetField(FieldFiledITR, "yes")

	res := s.engine.ValidatePAN(s.ctx)

	s.False(res.OK)
	s.Empty(s.stubs.panChecks)
	s.Equal("Please select organization type", s.engine.Error(FieldOrganizationType))
	s.Empty(s.engine.Error(FieldPANNumber))
	s.False(s.engine.PANValidated())
}

func (s *EngineSuite) TestValidatePANAlreadyRegistered() {
	s.stubs.panFn = func(context.Context, PANCheck) (*PANVerified, error) {
		return &PANVerified{AlreadyRegistered: true}, nil
	}
	s.reachStep2()
	s.fillStep2()

	res := s.engine.ValidatePAN(s.ctx)

	s.False(res.OK)
	s.True(res.AlreadyRegistered)
	s.Equal(MsgAlreadyRegistered, res.Message)
	s.Equal(MsgAlreadyRegistered, s.engine.Error(FieldForm))
	s.False(s.engine.PANValidated())
	s.False(s.engine.Loading())
}

func (s *EngineSuite) TestValidatePANServerError() {
	s.stubs.panFn = func(context.Context, PANCheck) (*PANVerified, error) {
		return nil, &Rejection{Message: "PAN number fourth character doesn't match the selected organization type"}
	}
	s.reachStep2()
	s.fillStep2()

	res := s.engine.ValidatePAN(s.ctx)

	s.False(res.OK)
	s.False(res.AlreadyRegistered)
	s.Equal("PAN number fourth character doesn't match the selected organization type", s.engine.Error(FieldForm))
	s.False(s.engine.PANValidated())
}

func (s *EngineSuite) TestFullScenario() {
	s.engine.SetField(FieldAadhaarNumber, "234567890123")
	s.engine.SetField(FieldEntrepreneurName, "John Doe")

	s.True(s.engine.RequestOTP(s.ctx).OK)
	s.True(s.engine.OTPSent())
	s.Equal(StepAadhaar, s.engine.Step())

	s.engine.SetField(FieldOTP, "123456")
	s.True(s.engine.ValidateOTP(s.ctx).OK)
	s.Equal(StepPAN, s.engine.Step())
}

func (s *EngineSuite) TestBackNavigationPreservesState() {
	s.reachStep2()
	s.fillStep2()
	before := s.engine.Snapshot()

	s.Require().NoError(s.engine.Back())

	after := s.engine.Snapshot()
	s.Equal(StepAadhaar, after.CurrentStep)
	s.Equal(PhaseStep1OTPPending, after.Phase)
	s.Equal(before.Fields, after.Fields)
	s.True(after.OTPSent)
	s.Equal("session-token", s.engine.SessionToken())
}

func (s *EngineSuite) TestGoToStep() {
	s.ErrorIs(s.engine.GoToStep(StepPAN), ErrTransitionNotAllowed)
	s.Equal(StepAadhaar, s.engine.Step())
	s.NoError(s.engine.GoToStep(StepAadhaar))
	s.ErrorIs(s.engine.GoToStep(Step(3)), ErrTransitionNotAllowed)

	s.reachStep2()
	s.NoError(s.engine.GoToStep(StepPAN))
	s.NoError(s.engine.GoToStep(StepAadhaar))
	s.ErrorIs(s.engine.GoToStep(StepPAN), ErrTransitionNotAllowed)
}

func (s *EngineSuite) TestChangingAadhaarInvalidatesIssuedOTP() {
	s.fillStep1()
	s.Require().True(s.engine.RequestOTP(s.ctx).OK)
	s.engine.SetField(FieldOTP, "12")
	s.Require().Equal(MsgOTPFormat, s.engine.Error(FieldOTP))

	s.engine.SetField(FieldAadhaarNumber, "234567890123")
	s.True(s.engine.OTPSent(), "same value keeps the otp")

	s.engine.SetField(FieldAadhaarNumber, "987654321012")
	s.False(s.engine.OTPSent())
	s.Empty(s.engine.Error(FieldOTP))
	s.Equal(PhaseStep1Entry, s.engine.Phase())
}

func (s *EngineSuite) TestReset() {
	s.reachStep2()
	s.fillStep2()

	s.engine.Reset()

	st := s.engine.Snapshot()
	s.Equal(StepAadhaar, st.CurrentStep)
	s.Equal(PhaseStep1Entry, st.Phase)
	s.Empty(st.Fields[FieldPANNumber])
	s.False(st.OTPSent)
	s.Empty(s.engine.SessionToken())
}

func (s *EngineSuite) TestResetAbandonsOutstandingCall() {
	entered := make(chan struct{})
	proceed := make(chan struct{})
	s.stubs.issueFn = func(context.Context, OTPRequest) (*OTPIssued, error) {
		close(entered)
		<-proceed
		return &OTPIssued{}, nil
	}
	s.fillStep1()

	done := make(chan Result)
	go func() { done <- s.engine.RequestOTP(s.ctx) }()
	<-entered

	s.engine.Reset()
	s.False(s.engine.Loading())
	close(proceed)

	s.True((<-done).Stale)
	s.False(s.engine.OTPSent())
	s.False(s.engine.Loading())
}
