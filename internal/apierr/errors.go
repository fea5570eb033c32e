package apierr

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/onnwee/menulive/internal/fetch"
	"github.com/onnwee/menulive/internal/logger"
)

// ErrorCode represents a structured error code
type ErrorCode string

// Error code constants organized by category
const (
	// MENU_ - Failures loading menu data from the upstream API
	ErrMenuUpstreamNetwork ErrorCode = "MENU_UPSTREAM_NETWORK"
	ErrMenuUpstreamTimeout ErrorCode = "MENU_UPSTREAM_TIMEOUT"
	ErrMenuUpstreamServer  ErrorCode = "MENU_UPSTREAM_SERVER"
	ErrMenuUpstreamParsing ErrorCode = "MENU_UPSTREAM_PARSING"
	ErrMenuUpstreamUnknown ErrorCode = "MENU_UPSTREAM_UNKNOWN"

	// SYSTEM_ - System and server errors
	ErrSystemInternal    ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemUnavailable ErrorCode = "SYSTEM_UNAVAILABLE"

	// VALIDATION_ - Request validation errors
	ErrValidationInvalidFormat ErrorCode = "VALIDATION_INVALID_FORMAT"
	ErrValidationInvalidValue  ErrorCode = "VALIDATION_INVALID_VALUE"

	// RESOURCE_ - Resource errors
	ErrResourceNotFound ErrorCode = "RESOURCE_NOT_FOUND"

	// RATE_LIMIT_ - Rate limiting errors
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error represents a structured API error
type Error struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	status    int                    // HTTP status code (not serialized)
}

// ErrorResponse is the top-level error response wrapper
type ErrorResponse struct {
	Error *Error `json:"error"`
}

// New creates a new API error
func New(code ErrorCode, message string, status int) *Error {
	return &Error{
		Code:    code,
		Message: message,
		status:  status,
	}
}

// WithDetails adds details to the error
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithRequestID adds a request ID to the error
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

// Error implements the error interface
func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status code
func (e *Error) Status() int {
	return e.status
}

// WriteError writes a structured error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	_ = json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// Helper functions for common errors

// FromFetchError maps a menu load failure to an API error. Upstream failures are
// reported as gateway errors since the display server is only a proxy for them.
func FromFetchError(err error) *Error {
	switch fetch.KindOf(err) {
	case fetch.KindNetwork:
		return New(ErrMenuUpstreamNetwork, "Menu API unreachable", http.StatusBadGateway)
	case fetch.KindTimeout:
		return New(ErrMenuUpstreamTimeout, "Menu API timed out", http.StatusGatewayTimeout)
	case fetch.KindServer:
		e := New(ErrMenuUpstreamServer, "Menu API returned an error", http.StatusBadGateway)
		var fe *fetch.FetchError
		if errors.As(err, &fe) && fe.Status != 0 {
			e = e.WithDetails(map[string]interface{}{"upstream_status": fe.Status})
		}
		return e
	case fetch.KindParsing:
		return New(ErrMenuUpstreamParsing, "Menu API returned malformed data", http.StatusBadGateway)
	default:
		return New(ErrMenuUpstreamUnknown, "Menu could not be loaded", http.StatusInternalServerError)
	}
}

// SystemInternal creates an internal server error
func SystemInternal(message string) *Error {
	if message == "" {
		message = "Internal server error"
	}
	return New(ErrSystemInternal, message, http.StatusInternalServerError)
}

// SystemUnavailable creates a service unavailable error
func SystemUnavailable(message string) *Error {
	if message == "" {
		message = "Service unavailable"
	}
	return New(ErrSystemUnavailable, message, http.StatusServiceUnavailable)
}

// ValidationInvalidFormat creates an invalid format error
func ValidationInvalidFormat(message string) *Error {
	if message == "" {
		message = "Invalid request format"
	}
	return New(ErrValidationInvalidFormat, message, http.StatusBadRequest)
}

// ValidationInvalidValue creates an invalid value error
func ValidationInvalidValue(field string, message string) *Error {
	if message == "" {
		message = "Invalid value for field: " + field
	}
	return New(ErrValidationInvalidValue, message, http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

// ResourceNotFound creates a resource not found error
func ResourceNotFound(resourceType string) *Error {
	return New(ErrResourceNotFound, resourceType+" not found", http.StatusNotFound).
		WithDetails(map[string]interface{}{"resource_type": resourceType})
}

// RateLimitGlobal creates a global rate limit error
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

// RateLimitIP creates an IP rate limit error
func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}

// GetRequestID extracts the request ID from the context
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// WriteErrorWithContext writes a structured error response with request ID from context
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}
