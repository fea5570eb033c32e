package errorreporting

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

// PII patterns to scrub from error messages
var piiPatterns = []*regexp.Regexp{
	// Email addresses
	regexp.MustCompile(`[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}`),
	// Bearer tokens
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9_.-]{20,}`),
	// API keys and tokens
	regexp.MustCompile(`(?i)(api[_-]?key|token|secret|session)["\s:=]+[a-zA-Z0-9_-]{16,}`),
	// IP addresses
	regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
}

var enabled bool

// Init initializes Sentry error reporting. An empty DSN leaves reporting disabled.
func Init(dsn, environment string) error {
	if dsn == "" {
		return nil
	}
	if err := ValidateDSN(dsn); err != nil {
		return err
	}

	sampleRate := 1.0
	if environment == "production" {
		sampleRate = 0.1
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              dsn,
		Environment:      environment,
		Release:          getRelease(),
		TracesSampleRate: sampleRate,
		BeforeSend:       beforeSend,
		AttachStacktrace: true,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize Sentry: %w", err)
	}
	enabled = true
	return nil
}

// getRelease returns the release version from environment or default
func getRelease() string {
	if release := os.Getenv("SENTRY_RELEASE"); release != "" {
		return release
	}
	if version := os.Getenv("SERVICE_VERSION"); version != "" {
		return version
	}
	return "dev"
}

// beforeSend scrubs PII and strips credentials before events leave the process.
func beforeSend(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	for i := range event.Exception {
		event.Exception[i].Value = scrubPII(event.Exception[i].Value)
	}
	if event.Message != "" {
		event.Message = scrubPII(event.Message)
	}
	for key, value := range event.Extra {
		if str, ok := value.(string); ok {
			event.Extra[key] = scrubPII(str)
		}
	}
	if event.Request != nil {
		if event.Request.Headers != nil {
			delete(event.Request.Headers, "Authorization")
			delete(event.Request.Headers, "Cookie")
		}
		event.Request.QueryString = ""
	}
	return event
}

func scrubPII(text string) string {
	result := text
	for _, pattern := range piiPatterns {
		result = pattern.ReplaceAllString(result, "[REDACTED]")
	}
	return result
}

// CaptureErrorWithContext captures an error with tags and extra data.
func CaptureErrorWithContext(err error, tags map[string]string, extras map[string]interface{}) {
	if err == nil || !enabled {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		for k, v := range tags {
			scope.SetTag(k, v)
		}
		for k, v := range extras {
			scope.SetExtra(k, v)
		}
		sentry.CaptureException(err)
	})
}

// AddBreadcrumb adds a breadcrumb for debugging context
func AddBreadcrumb(category, message string) {
	if !enabled {
		return
	}
	sentry.AddBreadcrumb(&sentry.Breadcrumb{
		Category:  category,
		Message:   message,
		Level:     sentry.LevelInfo,
		Timestamp: time.Now(),
	})
}

// Flush waits for all events to be sent to Sentry
func Flush(timeout time.Duration) bool {
	if !enabled {
		return true
	}
	return sentry.Flush(timeout)
}

// ScrubPII exposes the PII scrubbing function for external use
func ScrubPII(text string) string {
	return scrubPII(text)
}

// IsSentryEnabled returns true once Init succeeded with a DSN.
func IsSentryEnabled() bool {
	return enabled
}

// ValidateDSN checks if the provided DSN is valid
func ValidateDSN(dsn string) error {
	if !strings.HasPrefix(dsn, "https://") && !strings.HasPrefix(dsn, "http://") {
		return fmt.Errorf("invalid Sentry DSN format")
	}
	return nil
}
