package registration

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"os"

	"github.com/cucumber/godog"
)

// TestContext interface defines the methods needed from the main test context
type TestContext interface {
	POST(path string, body any, headers map[string]string) error
	GET(path string, headers map[string]string) error
	GetResponseField(field string) (any, error)
	GetLastResponseStatus() int
	GetLastResponseBody() []byte
	SetToken(token string)
	GetToken() string
}

// RegisterSteps registers the Aadhaar, PAN and submission steps. They assume
// the server runs with OTP_MOCK=true.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &registrationSteps{tc: tc}
	ctx.Step(`^a new applicant named "([^"]*)"$`, steps.newApplicant)
	ctx.Step(`^I request an OTP$`, steps.requestOTP)
	ctx.Step(`^I verify the mock OTP$`, steps.verifyMockOTP)
	ctx.Step(`^I verify the OTP "([^"]*)"$`, steps.verifyOTP)
	ctx.Step(`^I validate a new PAN as "([^"]*)" with ITR "([^"]*)"$`, steps.validateNewPAN)
	ctx.Step(`^I validate the same PAN again$`, steps.validateSamePAN)
	ctx.Step(`^I submit the registration$`, steps.submit)
	ctx.Step(`^I submit the registration without a token$`, steps.submitWithoutToken)
	ctx.Step(`^I check the registration status$`, steps.status)
}

// orgPANStatus is the fourth PAN character the server expects per
// organisation type.
var orgPANStatus = map[string]byte{
	"proprietorship": 'P',
	"partnership":    'F',
	"llp":            'F',
	"pvt_company":    'C',
	"public_company": 'C',
	"huf":            'H',
	"cooperative":    'C',
	"trust":          'T',
	"society":        'A',
}

type registrationSteps struct {
	tc      TestContext
	aadhaar string
	name    string
	pan     panRequest
}

type panRequest struct {
	OrganizationType string `json:"organization_type"`
	PANNumber        string `json:"pan_number"`
	FiledITR         string `json:"filed_itr"`
}

func (s *registrationSteps) newApplicant(_ context.Context, name string) error {
	s.name = name
	s.aadhaar = randomDigits("23456789", 1) + randomDigits("0123456789", 11)
	return nil
}

func (s *registrationSteps) requestOTP(context.Context) error {
	return s.tc.POST("/api/generate-otp", map[string]string{
		"aadhaar_number":    s.aadhaar,
		"entrepreneur_name": s.name,
	}, nil)
}

func (s *registrationSteps) verifyMockOTP(ctx context.Context) error {
	code := os.Getenv("OTP_MOCK_CODE")
	if code == "" {
		code = "123456"
	}
	return s.verifyOTP(ctx, code)
}

func (s *registrationSteps) verifyOTP(_ context.Context, otp string) error {
	if err := s.tc.POST("/api/validate-otp", map[string]string{
		"aadhaar_number": s.aadhaar,
		"otp":            otp,
	}, nil); err != nil {
		return err
	}
	if s.tc.GetLastResponseStatus() != 200 {
		return nil
	}
	token, err := s.tc.GetResponseField("token")
	if err != nil {
		return err
	}
	s.tc.SetToken(fmt.Sprint(token))
	return nil
}

func (s *registrationSteps) validateNewPAN(ctx context.Context, org, itr string) error {
	status, ok := orgPANStatus[org]
	if !ok {
		return fmt.Errorf("unknown organisation type %q", org)
	}
	letters := "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	s.pan = panRequest{
		OrganizationType: org,
		PANNumber:        randomDigits(letters, 3) + string(status) + randomDigits(letters, 1) + randomDigits("0123456789", 4) + randomDigits(letters, 1),
		FiledITR:         itr,
	}
	return s.validateSamePAN(ctx)
}

func (s *registrationSteps) validateSamePAN(context.Context) error {
	return s.tc.POST("/api/validate-pan", s.pan, s.auth())
}

func (s *registrationSteps) submit(context.Context) error {
	return s.tc.POST("/api/submit-registration", nil, s.auth())
}

func (s *registrationSteps) submitWithoutToken(context.Context) error {
	return s.tc.POST("/api/submit-registration", nil, nil)
}

func (s *registrationSteps) status(context.Context) error {
	return s.tc.GET("/api/registration-status/"+s.aadhaar, nil)
}

func (s *registrationSteps) auth() map[string]string {
	if s.tc.GetToken() == "" {
		return nil
	}
	return map[string]string{"Authorization": "Bearer " + s.tc.GetToken()}
}

func randomDigits(alphabet string, n int) string {
	out := make([]byte, n)
	max := big.NewInt(int64(len(alphabet)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			panic(err)
		}
		out[i] = alphabet[idx.Int64()]
	}
	return string(out)
}
