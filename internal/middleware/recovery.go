package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"

	"github.com/onnwee/menulive/internal/apierr"
	"github.com/onnwee/menulive/internal/errorreporting"
	"github.com/onnwee/menulive/internal/logger"
)

// RecoverWithSentry recovers from panics, reports them to Sentry and answers 500.
func RecoverWithSentry(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			stack := debug.Stack()

			logger.ErrorContext(r.Context(), "Panic recovered",
				"error", rec,
				"stack", string(stack),
				"method", r.Method,
				"path", r.URL.Path,
			)

			if errorreporting.IsSentryEnabled() {
				hub := sentry.CurrentHub().Clone()
				hub.Scope().SetRequest(r)
				hub.Scope().SetLevel(sentry.LevelError)
				hub.Scope().SetTag("method", r.Method)
				hub.Scope().SetTag("path", r.URL.Path)

				if e, ok := rec.(error); ok {
					hub.CaptureException(e)
				} else {
					hub.CaptureMessage(errorreporting.ScrubPII(fmt.Sprint(rec)))
				}
			}

			apierr.WriteErrorWithContext(w, r, apierr.SystemInternal(""))
		}()

		next.ServeHTTP(w, r)
	})
}
