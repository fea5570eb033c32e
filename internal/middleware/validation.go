package middleware

import (
	"net/http"
	"strings"
	"unicode/utf8"
)

// MaxRequestBodySize bounds request bodies. The display endpoints take no body.
const MaxRequestBodySize = 64 * 1024

// LimitRequestBody caps the body of POST, PUT and PATCH requests.
func LimitRequestBody(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, MaxRequestBodySize)
		}
		next.ServeHTTP(w, r)
	})
}

// SanitizeString trims input, drops invalid UTF-8 and control characters, and
// truncates to maxLength bytes on a rune boundary.
func SanitizeString(input string, maxLength int) string {
	input = strings.TrimSpace(input)
	if !utf8.ValidString(input) {
		input = strings.ToValidUTF8(input, "")
	}
	input = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, input)
	if len(input) > maxLength {
		cut := maxLength
		for cut > 0 && !utf8.RuneStart(input[cut]) {
			cut--
		}
		input = input[:cut]
	}
	return input
}
