package formflow

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// Field names a form input. Values match the JSON keys used by the
// registration API.
type Field string

const (
	FieldAadhaarNumber    Field = "aadhaar_number"
	FieldEntrepreneurName Field = "entrepreneur_name"
	FieldOTP              Field = "otp"
	FieldOrganizationType Field = "organization_type"
	FieldPANNumber        Field = "pan_number"
	FieldGSTIN            Field = "gstin"
	FieldFiledITR         Field = "filed_itr"
)

// FieldForm is the error slot for messages that belong to a whole step rather
// than one input: collaborator rejections and network failures.
const FieldForm Field = "form"

// Fields lists every input in display order.
var Fields = []Field{
	FieldAadhaarNumber,
	FieldEntrepreneurName,
	FieldOTP,
	FieldOrganizationType,
	FieldPANNumber,
	FieldGSTIN,
	FieldFiledITR,
}

// Valid reports whether f is one of the form inputs.
func (f Field) Valid() bool {
	_, ok := rules[f]
	return ok
}

func (f Field) String() string {
	return string(f)
}

// Validation messages.
const (
	MsgRequired          = "This field is required"
	MsgAadhaarFormat     = "Please enter valid 12-digit Aadhaar number starting with 2-9"
	MsgNameCharacters    = "Name should contain only letters, spaces and dots"
	MsgNameTooShort      = "Name must be at least 2 characters long"
	MsgOTPFormat         = "Please enter valid 6-digit OTP"
	MsgPANFormat         = "PAN format: AAAAA9999A (5 letters, 4 numbers, 1 letter)"
	MsgGSTINFormat       = "Please enter valid 15-character GSTIN"
	MsgSelectOrgType     = "Please select organization type"
	MsgSelectITR         = "Please select ITR filing status"
	MsgAlreadyRegistered = "Udyam Registration has already been done through this PAN"
)

var (
	aadhaarPattern = regexp.MustCompile(`^[2-9][0-9]{11}$`)
	namePattern    = regexp.MustCompile(`^[a-zA-Z\s.]+$`)
	otpPattern     = regexp.MustCompile(`^[0-9]{6}$`)
	panPattern     = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]{1}$`)
	gstinPattern   = regexp.MustCompile(`^[0-9]{2}[A-Z]{5}[0-9]{4}[A-Z]{1}[1-9A-Z]{1}Z[0-9A-Z]{1}$`)
	nonDigits      = regexp.MustCompile(`\D`)
)

// RuleContext is the engine state a rule may observe besides the value.
type RuleContext struct {
	OTPSent bool
}

// Rule pairs a field's input normaliser with its validator. Check runs only
// after the required check passed and returns "" for a valid value.
type Rule struct {
	Required  bool
	MaxLength int
	Normalize func(raw string) string
	Check     func(value string, rc RuleContext) string
}

var rules = map[Field]Rule{
	FieldAadhaarNumber: {
		Required:  true,
		MaxLength: 12,
		Normalize: digitsOnly(12),
		Check:     pattern(aadhaarPattern, MsgAadhaarFormat),
	},
	FieldEntrepreneurName: {
		Required: true,
		Check:    checkName,
	},
	FieldOTP: {
		MaxLength: 6,
		Normalize: digitsOnly(6),
		Check: func(value string, rc RuleContext) string {
			if !rc.OTPSent {
				return ""
			}
			return pattern(otpPattern, MsgOTPFormat)(value, rc)
		},
	},
	FieldOrganizationType: {
		Required: true,
	},
	FieldPANNumber: {
		Required:  true,
		MaxLength: 10,
		Normalize: upperTruncate(10),
		Check:     pattern(panPattern, MsgPANFormat),
	},
	FieldGSTIN: {
		MaxLength: 15,
		Normalize: upperTruncate(15),
		Check: func(value string, rc RuleContext) string {
			if value == "" {
				return ""
			}
			return pattern(gstinPattern, MsgGSTINFormat)(value, rc)
		},
	},
	FieldFiledITR: {
		Required: true,
	},
}

// RuleFor returns the rule registered for name.
func RuleFor(name Field) (Rule, bool) {
	r, ok := rules[name]
	return r, ok
}

// Normalize applies the field's formatting rule. Fields without one are
// returned verbatim.
func Normalize(name Field, raw string) string {
	rule, ok := rules[name]
	if !ok || rule.Normalize == nil {
		return raw
	}
	return rule.Normalize(raw)
}

// Validate returns the first failing rule's message for value, or "" when the
// value is acceptable. Required checks win over pattern checks.
func Validate(name Field, value string, rc RuleContext) string {
	rule, ok := rules[name]
	if !ok {
		return ""
	}
	if rule.Required && strings.TrimSpace(value) == "" {
		return MsgRequired
	}
	if rule.Check == nil {
		return ""
	}
	return rule.Check(value, rc)
}

func checkName(value string, _ RuleContext) string {
	if !namePattern.MatchString(value) {
		return MsgNameCharacters
	}
	if utf8.RuneCountInString(value) < 2 {
		return MsgNameTooShort
	}
	return ""
}

func pattern(re *regexp.Regexp, msg string) func(string, RuleContext) string {
	return func(value string, _ RuleContext) string {
		if !re.MatchString(value) {
			return msg
		}
		return ""
	}
}

func digitsOnly(limit int) func(string) string {
	return func(raw string) string {
		return truncate(nonDigits.ReplaceAllString(raw, ""), limit)
	}
}

func upperTruncate(limit int) func(string) string {
	return func(raw string) string {
		return truncate(strings.ToUpper(raw), limit)
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
