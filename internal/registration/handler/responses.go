package handler

import (
	"time"

	"udyam/internal/registration/models"
)

type generateOTPResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	ExpiresIn int    `json:"expires_in"`
	SentTo    string `json:"sent_to"`
	Mock      bool   `json:"mock,omitempty"`
}

type validateOTPResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message"`
	Token          string `json:"token"`
	RegistrationID string `json:"registration_id"`
	ExpiresIn      int    `json:"expires_in"`
}

type panDetails struct {
	PANNumber        string                  `json:"pan_number"`
	OrganizationType models.OrganizationType `json:"organization_type"`
	Valid            bool                    `json:"valid"`
}

type validatePANResponse struct {
	Success    bool       `json:"success"`
	Message    string     `json:"message"`
	PANDetails panDetails `json:"pan_details"`
}

// panRegisteredResponse keeps the error envelope and adds the flag clients
// branch on.
type panRegisteredResponse struct {
	Error             string `json:"error"`
	ErrorDescription  string `json:"error_description"`
	AlreadyRegistered bool   `json:"already_registered"`
}

type submitResponse struct {
	Success         bool      `json:"success"`
	Message         string    `json:"message"`
	UdyamNumber     string    `json:"udyam_number"`
	ReferenceNumber string    `json:"reference_number"`
	CompletedAt     time.Time `json:"completed_at"`
}
