// Package httpclient implements the formflow collaborators against the
// registration HTTP API.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"udyam/internal/formflow"
	"udyam/internal/registration/models"
)

const defaultTimeout = 30 * time.Second

// errorBody is the error envelope written by the API.
type errorBody struct {
	Error             string `json:"error"`
	ErrorDescription  string `json:"error_description"`
	AlreadyRegistered bool   `json:"already_registered"`
}

type otpIssuedBody struct {
	ExpiresIn int    `json:"expires_in"`
	SentTo    string `json:"sent_to"`
}

type otpVerifiedBody struct {
	Token string `json:"token"`
}

// Completion is the outcome of a successful submission.
type Completion struct {
	UdyamNumber     string    `json:"udyam_number"`
	ReferenceNumber string    `json:"reference_number"`
	CompletedAt     time.Time `json:"completed_at"`
}

// Client talks to the registration API and satisfies the engine's
// OTPIssuer, OTPVerifier and PANVerifier ports.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type Option func(*Client)

// WithHTTPClient replaces the default client, e.g. to set a transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	_ formflow.OTPIssuer   = (*Client)(nil)
	_ formflow.OTPVerifier = (*Client)(nil)
	_ formflow.PANVerifier = (*Client)(nil)
)

func (c *Client) IssueOTP(ctx context.Context, req formflow.OTPRequest) (*formflow.OTPIssued, error) {
	var out otpIssuedBody
	err := c.do(ctx, http.MethodPost, "/api/generate-otp", "", models.GenerateOTPRequest{
		AadhaarNumber:    req.AadhaarNumber,
		EntrepreneurName: req.EntrepreneurName,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &formflow.OTPIssued{
		SentTo:    out.SentTo,
		ExpiresIn: time.Duration(out.ExpiresIn) * time.Second,
	}, nil
}

func (c *Client) VerifyOTP(ctx context.Context, req formflow.OTPCheck) (*formflow.OTPVerified, error) {
	var out otpVerifiedBody
	err := c.do(ctx, http.MethodPost, "/api/validate-otp", "", models.ValidateOTPRequest{
		AadhaarNumber: req.AadhaarNumber,
		OTP:           req.OTP,
	}, &out)
	if err != nil {
		return nil, err
	}
	return &formflow.OTPVerified{SessionToken: out.Token}, nil
}

// VerifyPAN reports an already registered PAN as a result, not an error, so
// the engine can show its dedicated notice.
func (c *Client) VerifyPAN(ctx context.Context, req formflow.PANCheck) (*formflow.PANVerified, error) {
	err := c.do(ctx, http.MethodPost, "/api/validate-pan", req.SessionToken, models.ValidatePANRequest{
		OrganizationType: models.OrganizationType(req.OrganizationType),
		PANNumber:        req.PANNumber,
		GSTIN:            req.GSTIN,
		FiledITR:         req.FiledITR,
	}, nil)
	if err != nil {
		var apiErr *apiError
		if errors.As(err, &apiErr) && apiErr.body.AlreadyRegistered {
			return &formflow.PANVerified{AlreadyRegistered: true}, nil
		}
		return nil, err
	}
	return &formflow.PANVerified{}, nil
}

// Submit completes the registration bound to token.
func (c *Client) Submit(ctx context.Context, token string) (*Completion, error) {
	var out Completion
	if err := c.do(ctx, http.MethodPost, "/api/submit-registration", token, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Status fetches the registration status for an Aadhaar number.
func (c *Client) Status(ctx context.Context, aadhaarNumber string) (*models.StatusView, error) {
	var out models.StatusView
	path := "/api/registration-status/" + url.PathEscape(aadhaarNumber)
	if err := c.do(ctx, http.MethodGet, path, "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// apiError is a non-2xx answer. It unwraps to a Rejection so the engine shows
// the server's description, or its own fallback when the server hid it.
type apiError struct {
	body   errorBody
	status int
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%d %s: %s", e.status, e.body.Error, e.message())
}

func (e *apiError) Unwrap() error {
	return &formflow.Rejection{Message: e.body.ErrorDescription}
}

func (e *apiError) message() string {
	if e.body.ErrorDescription != "" {
		return e.body.ErrorDescription
	}
	return http.StatusText(e.status)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &apiError{status: resp.StatusCode}
		_ = json.Unmarshal(raw, &apiErr.body)
		return apiErr
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
