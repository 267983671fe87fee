package ports

import (
	"context"
	"log/slog"
	"strings"
)

// MobileDirectory resolves the mobile number linked with an Aadhaar. The
// production implementation is the UIDAI lookup; development uses a fixed
// number.
type MobileDirectory interface {
	MobileFor(ctx context.Context, aadhaarNumber string) (string, error)
}

// OTPSender delivers a one-time code by SMS.
type OTPSender interface {
	SendOTP(ctx context.Context, mobile, code string) error
}

// StaticDirectory returns the same number for every Aadhaar.
type StaticDirectory string

func (d StaticDirectory) MobileFor(context.Context, string) (string, error) {
	return string(d), nil
}

// LogSender writes OTPs to the log instead of sending them. The code itself
// is logged at debug level only.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{logger: logger}
}

func (s *LogSender) SendOTP(ctx context.Context, mobile, code string) error {
	s.logger.InfoContext(ctx, "otp dispatched", "sent_to", MaskMobile(mobile))
	s.logger.DebugContext(ctx, "otp code", "sent_to", MaskMobile(mobile), "otp", code)
	return nil
}

// MaskMobile hides all but the last four digits.
func MaskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return strings.Repeat("*", len(mobile))
	}
	return "*******" + mobile[len(mobile)-4:]
}
