package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	dErrors "udyam/pkg/domain-errors"
	"udyam/pkg/platform/httputil"
	"udyam/pkg/requestcontext"
)

// SessionValidator validates the bearer token issued after OTP verification.
type SessionValidator interface {
	ValidateToken(tokenString string) (*SessionClaims, error)
}

// SessionClaims is what the middleware needs from a validated token.
type SessionClaims struct {
	RegistrationID uuid.UUID
	AadhaarNumber  string
}

// RequireSession rejects requests without a valid bearer token and stores the
// registration id in the context.
func RequireSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return session(validator, logger, true)
}

// OptionalSession accepts requests without an Authorization header but
// rejects a header carrying an invalid token.
func OptionalSession(validator SessionValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return session(validator, logger, false)
}

func session(validator SessionValidator, logger *slog.Logger, required bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := GetRequestID(ctx)
			authHeader := r.Header.Get("Authorization")

			if authHeader == "" && !required {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := strings.CutPrefix(authHeader, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Authorization token required"))
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, "Invalid or expired token"))
				return
			}

			ctx = requestcontext.WithRegistrationID(ctx, claims.RegistrationID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
