package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"udyam/internal/platform/middleware"
	"udyam/internal/registration/handler/mocks"
	"udyam/internal/registration/models"
	dErrors "udyam/pkg/domain-errors"
)

//go:generate mockgen -source=handler.go -destination=mocks/mocks.go -package=mocks Service

type stubSessions struct {
	registrationID uuid.UUID
}

func (s stubSessions) ValidateToken(token string) (*middleware.SessionClaims, error) {
	if token != "good-token" {
		return nil, errors.New("invalid token")
	}
	return &middleware.SessionClaims{RegistrationID: s.registrationID, AadhaarNumber: "234567890123"}, nil
}

type RegistrationHandlerSuite struct {
	suite.Suite
	service        *mocks.MockService
	router         chi.Router
	registrationID uuid.UUID
	limited        bool
}

func TestRegistrationHandlerSuite(t *testing.T) {
	suite.Run(t, new(RegistrationHandlerSuite))
}

func (s *RegistrationHandlerSuite) SetupTest() {
	ctrl := gomock.NewController(s.T())
	s.T().Cleanup(ctrl.Finish)
	s.service = mocks.NewMockService(ctrl)
	s.registrationID = uuid.New()
	s.limited = false

	limiter := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if s.limited {
				w.WriteHeader(http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(s.service, logger, nil, stubSessions{registrationID: s.registrationID}, limiter)
	s.router = chi.NewRouter()
	h.Register(s.router)
}

func (s *RegistrationHandlerSuite) do(method, path string, body any, token string) (*httptest.ResponseRecorder, map[string]any) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)

	var resp map[string]any
	if w.Body.Len() > 0 {
		s.Require().NoError(json.Unmarshal(w.Body.Bytes(), &resp))
	}
	return w, resp
}

func (s *RegistrationHandlerSuite) TestGenerateOTP() {
	s.Run("success", func() {
		s.service.EXPECT().GenerateOTP(gomock.Any(), &models.GenerateOTPRequest{
			AadhaarNumber: "234567890123", EntrepreneurName: "Ravi Kumar",
		}).Return(&models.OTPChallengeResult{SentTo: "*******3210", ExpiresIn: 10 * time.Minute}, nil)

		w, resp := s.do(http.MethodPost, "/api/generate-otp", map[string]string{
			"aadhaar_number": "234567890123", "entrepreneur_name": "Ravi Kumar",
		}, "")
		s.Equal(http.StatusOK, w.Code)
		s.Equal(true, resp["success"])
		s.Equal(600.0, resp["expires_in"])
		s.Equal("*******3210", resp["sent_to"])
		s.NotContains(resp, "mock")
		s.NotEmpty(w.Header().Get(middleware.RequestIDHeader))
	})

	s.Run("domain error is written as envelope", func() {
		s.service.EXPECT().GenerateOTP(gomock.Any(), gomock.Any()).
			Return(nil, dErrors.New(dErrors.CodeConflict, models.MsgAadhaarInUse))

		w, resp := s.do(http.MethodPost, "/api/generate-otp", map[string]string{"aadhaar_number": "234567890123"}, "")
		s.Equal(http.StatusConflict, w.Code)
		s.Equal("conflict", resp["error"])
		s.Equal(models.MsgAadhaarInUse, resp["error_description"])
	})

	s.Run("internal error hides detail", func() {
		s.service.EXPECT().GenerateOTP(gomock.Any(), gomock.Any()).Return(nil, errors.New("redis down"))

		w, resp := s.do(http.MethodPost, "/api/generate-otp", map[string]string{"aadhaar_number": "234567890123"}, "")
		s.Equal(http.StatusInternalServerError, w.Code)
		s.Equal("internal_error", resp["error"])
		s.NotContains(resp, "error_description")
	})

	s.Run("rate limited before the service", func() {
		s.limited = true
		w, _ := s.do(http.MethodPost, "/api/generate-otp", map[string]string{"aadhaar_number": "234567890123"}, "")
		s.Equal(http.StatusTooManyRequests, w.Code)
	})
}

func (s *RegistrationHandlerSuite) TestMalformedBody() {
	req := httptest.NewRequest(http.MethodPost, "/api/validate-otp", bytes.NewBufferString("{"))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/validate-otp", bytes.NewBufferString("otp=1"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	s.Equal(http.StatusUnsupportedMediaType, w.Code)
}

func (s *RegistrationHandlerSuite) TestValidateOTP() {
	s.service.EXPECT().ValidateOTP(gomock.Any(), &models.ValidateOTPRequest{AadhaarNumber: "234567890123", OTP: "123456"}).
		Return(&models.OTPVerification{Token: "jwt", RegistrationID: s.registrationID.String(), ExpiresIn: time.Hour}, nil)

	w, resp := s.do(http.MethodPost, "/api/validate-otp", map[string]string{"aadhaar_number": "234567890123", "otp": "123456"}, "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal("jwt", resp["token"])
	s.Equal(s.registrationID.String(), resp["registration_id"])
	s.Equal(3600.0, resp["expires_in"])
}

func (s *RegistrationHandlerSuite) TestValidatePAN() {
	body := map[string]string{"organization_type": "proprietorship", "pan_number": "ABCPE1234F", "filed_itr": "yes"}
	verified := &models.PANVerification{Details: models.PANDetails{
		OrganizationType: models.OrgProprietorship, PANNumber: "ABCPE1234F", FiledITR: "yes",
	}}

	s.Run("anonymous", func() {
		s.service.EXPECT().ValidatePAN(gomock.Any(), uuid.Nil, gomock.Any()).Return(verified, nil)
		w, resp := s.do(http.MethodPost, "/api/validate-pan", body, "")
		s.Equal(http.StatusOK, w.Code)
		details := resp["pan_details"].(map[string]any)
		s.Equal("ABCPE1234F", details["pan_number"])
		s.Equal(true, details["valid"])
	})

	s.Run("with session", func() {
		s.service.EXPECT().ValidatePAN(gomock.Any(), s.registrationID, gomock.Any()).Return(verified, nil)
		w, _ := s.do(http.MethodPost, "/api/validate-pan", body, "good-token")
		s.Equal(http.StatusOK, w.Code)
	})

	s.Run("invalid token rejected", func() {
		w, resp := s.do(http.MethodPost, "/api/validate-pan", body, "bad-token")
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Equal("unauthorized", resp["error"])
	})

	s.Run("already registered", func() {
		s.service.EXPECT().ValidatePAN(gomock.Any(), uuid.Nil, gomock.Any()).
			Return(&models.PANVerification{AlreadyRegistered: true}, nil)
		w, resp := s.do(http.MethodPost, "/api/validate-pan", body, "")
		s.Equal(http.StatusBadRequest, w.Code)
		s.Equal(true, resp["already_registered"])
		s.Equal(models.MsgPANAlreadyRegistered, resp["error_description"])
	})
}

func (s *RegistrationHandlerSuite) TestSubmit() {
	s.Run("requires a session", func() {
		w, resp := s.do(http.MethodPost, "/api/submit-registration", nil, "")
		s.Equal(http.StatusUnauthorized, w.Code)
		s.Equal("Authorization token required", resp["error_description"])
	})

	s.Run("submits the session registration", func() {
		completed := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
		s.service.EXPECT().Submit(gomock.Any(), s.registrationID).Return(&models.Completion{
			UdyamNumber: "UDYAM-27-01-1234567", ReferenceNumber: "REF1", CompletedAt: completed,
		}, nil)
		w, resp := s.do(http.MethodPost, "/api/submit-registration", nil, "good-token")
		s.Equal(http.StatusOK, w.Code)
		s.Equal("UDYAM-27-01-1234567", resp["udyam_number"])
		s.Equal("REF1", resp["reference_number"])
	})
}

func (s *RegistrationHandlerSuite) TestStatus() {
	s.service.EXPECT().Status(gomock.Any(), "234567890123").Return(&models.StatusView{Status: models.StatusNotStarted}, nil)
	w, resp := s.do(http.MethodGet, "/api/registration-status/234567890123", nil, "")
	s.Equal(http.StatusOK, w.Code)
	s.Equal(map[string]any{"status": "not_started"}, resp)
}
