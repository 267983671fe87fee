package httpclient

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udyam/internal/formflow"
)

func newServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL + "/")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestIssueOTP(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate-otp", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "234567890123", body["aadhaar_number"])
		assert.Equal(t, "Ravi Kumar", body["entrepreneur_name"])
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "expires_in": 600, "sent_to": "*******3210"})
	})

	out, err := c.IssueOTP(t.Context(), formflow.OTPRequest{AadhaarNumber: "234567890123", EntrepreneurName: "Ravi Kumar"})
	require.NoError(t, err)
	assert.Equal(t, "*******3210", out.SentTo)
	assert.Equal(t, 10*time.Minute, out.ExpiresIn)
}

func TestRejectionCarriesDescription(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "error_description": "Invalid OTP"})
	})

	_, err := c.VerifyOTP(t.Context(), formflow.OTPCheck{AadhaarNumber: "234567890123", OTP: "000000"})
	var rej *formflow.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, "Invalid OTP", rej.Message)
}

func TestHiddenInternalErrorLeavesFallbackToEngine(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error"})
	})

	_, err := c.IssueOTP(t.Context(), formflow.OTPRequest{AadhaarNumber: "234567890123"})
	var rej *formflow.Rejection
	require.ErrorAs(t, err, &rej)
	assert.Empty(t, rej.Message)
	assert.Contains(t, err.Error(), "500")
}

func TestTransportFailureIsNotARejection(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	c := New(srv.URL)

	_, err := c.IssueOTP(t.Context(), formflow.OTPRequest{AadhaarNumber: "234567890123"})
	require.Error(t, err)
	var rej *formflow.Rejection
	assert.False(t, errors.As(err, &rej))
}

func TestVerifyPAN(t *testing.T) {
	t.Run("sends bearer token", func(t *testing.T) {
		c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/api/validate-pan", r.URL.Path)
			assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
			writeJSON(w, http.StatusOK, map[string]any{"success": true})
		})
		out, err := c.VerifyPAN(t.Context(), formflow.PANCheck{OrganizationType: "proprietorship", PANNumber: "ABCPE1234F", FiledITR: "yes", SessionToken: "tok"})
		require.NoError(t, err)
		assert.False(t, out.AlreadyRegistered)
	})

	t.Run("already registered is a result", func(t *testing.T) {
		c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("Authorization"))
			writeJSON(w, http.StatusBadRequest, map[string]any{
				"error": "pan_already_registered", "error_description": "PAN already registered", "already_registered": true,
			})
		})
		out, err := c.VerifyPAN(t.Context(), formflow.PANCheck{PANNumber: "ABCPE1234F"})
		require.NoError(t, err)
		assert.True(t, out.AlreadyRegistered)
	})
}

func TestSubmitAndStatus(t *testing.T) {
	c := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/submit-registration":
			assert.Equal(t, http.MethodPost, r.Method)
			writeJSON(w, http.StatusOK, map[string]any{"udyam_number": "UDYAM-27-01-1234567", "reference_number": "REF1"})
		case "/api/registration-status/234567890123":
			assert.Equal(t, http.MethodGet, r.Method)
			writeJSON(w, http.StatusOK, map[string]any{"status": "completed", "udyam_number": "UDYAM-27-01-1234567"})
		default:
			http.NotFound(w, r)
		}
	})

	done, err := c.Submit(t.Context(), "tok")
	require.NoError(t, err)
	assert.Equal(t, "UDYAM-27-01-1234567", done.UdyamNumber)

	status, err := c.Status(t.Context(), "234567890123")
	require.NoError(t, err)
	assert.Equal(t, "completed", string(status.Status))
}
