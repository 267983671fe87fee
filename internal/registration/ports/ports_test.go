package ports

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMaskMobile(t *testing.T) {
	assert.Equal(t, "*******3210", MaskMobile("9876543210"))
	assert.Equal(t, "***", MaskMobile("123"))
}

func TestLogSenderKeepsCodeOutOfInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	require.NoError(t, NewLogSender(logger).SendOTP(context.Background(), "9876543210", "456789"))
	assert.Contains(t, buf.String(), "*******3210")
	assert.NotContains(t, buf.String(), "456789")
	assert.NotContains(t, buf.String(), "9876543210")
}

func TestStaticDirectory(t *testing.T) {
	mobile, err := StaticDirectory("9876543210").MobileFor(context.Background(), "234567890123")
	require.NoError(t, err)
	assert.Equal(t, "9876543210", mobile)
}
