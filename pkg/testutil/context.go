package testutil

import (
	"net/http"
	"time"

	"udyam/pkg/requestcontext"
)

// WithClientMetadata simulates the client metadata middleware.
func WithClientMetadata(req *http.Request, clientIP, userAgent string) *http.Request {
	return req.WithContext(requestcontext.WithClientMetadata(req.Context(), clientIP, userAgent))
}

// WithTime pins the request time seen by services and stores.
func WithTime(req *http.Request, t time.Time) *http.Request {
	return req.WithContext(requestcontext.WithTime(req.Context(), t))
}
