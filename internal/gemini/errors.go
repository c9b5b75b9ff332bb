package gemini

import (
	"errors"
	"strings"
)

// APIError is a non-2xx response from the generative language API,
// decoded far enough to distinguish the failure classes the pipeline
// reports differently: quota exhaustion, permission/billing-tier
// rejection, and everything else.
type APIError struct {
	Code    int    // HTTP status code
	Status  string // API status string, e.g. RESOURCE_EXHAUSTED
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Status != "" {
		return e.Status
	}
	return "gemini API error"
}

// ErrNoImage is returned when a generation response carries no image
// part.
var ErrNoImage = errors.New("model response contains no image")

func IsQuotaExhausted(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == 429 || apiErr.Status == "RESOURCE_EXHAUSTED"
}

func IsPermissionDenied(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == 403 ||
		apiErr.Status == "PERMISSION_DENIED" ||
		strings.Contains(strings.ToLower(apiErr.Message), "billing")
}
