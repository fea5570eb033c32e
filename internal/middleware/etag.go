package middleware

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"net/http"
)

// etagResponseWriter captures response body to generate ETag.
type etagResponseWriter struct {
	http.ResponseWriter
	buf    *bytes.Buffer
	status int
}

func (w *etagResponseWriter) WriteHeader(status int) {
	w.status = status
}

func (w *etagResponseWriter) Write(b []byte) (int, error) {
	return w.buf.Write(b)
}

// ETag returns a middleware that tags GET responses with a content hash and
// answers 304 Not Modified when If-None-Match matches. Fragments change whenever
// the menu does, so clients must revalidate on every use.
func ETag(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			next.ServeHTTP(w, r)
			return
		}

		buf := &bytes.Buffer{}
		etw := &etagResponseWriter{
			ResponseWriter: w,
			buf:            buf,
			status:         http.StatusOK,
		}
		next.ServeHTTP(etw, r)

		if etw.status != http.StatusOK {
			w.WriteHeader(etw.status)
			_, _ = w.Write(buf.Bytes())
			return
		}

		hash := sha256.Sum256(buf.Bytes())
		etag := fmt.Sprintf(`"%x"`, hash[:16]) // Use first 16 bytes for shorter ETag

		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "no-cache")

		if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.WriteHeader(etw.status)
		_, _ = w.Write(buf.Bytes())
	})
}
