package middleware

import (
	"compress/gzip"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// compressResponseWriter routes the body through an encoder.
type compressResponseWriter struct {
	io.Writer
	http.ResponseWriter
	wroteHeader bool
}

func (w *compressResponseWriter) WriteHeader(status int) {
	w.wroteHeader = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *compressResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		w.WriteHeader(http.StatusOK)
	}
	return w.Writer.Write(b)
}

// negotiateEncoding prefers brotli over gzip.
func negotiateEncoding(accept string) string {
	var gz bool
	for _, part := range strings.Split(accept, ",") {
		enc, params, _ := strings.Cut(strings.TrimSpace(part), ";")
		if !acceptable(params) {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(enc)) {
		case "br":
			return "br"
		case "gzip":
			gz = true
		}
	}
	if gz {
		return "gzip"
	}
	return ""
}

// acceptable reports whether the coding parameters carry a positive q-value.
func acceptable(params string) bool {
	for _, param := range strings.Split(params, ";") {
		name, value, ok := strings.Cut(strings.TrimSpace(param), "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "q") {
			continue
		}
		q, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err == nil && q <= 0 {
			return false
		}
	}
	return true
}

// Compress returns a middleware that compresses responses with brotli or gzip,
// whichever the client accepts. Websocket upgrades pass through untouched.
func Compress(next http.Handler) http.Handler {
	gzPool := sync.Pool{
		New: func() interface{} {
			return gzip.NewWriter(io.Discard)
		},
	}
	brPool := sync.Pool{
		New: func() interface{} {
			return brotli.NewWriterLevel(io.Discard, brotli.DefaultCompression)
		},
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Upgrade") != "" {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Add("Vary", "Accept-Encoding")

		var enc io.WriteCloser
		switch negotiateEncoding(r.Header.Get("Accept-Encoding")) {
		case "br":
			br := brPool.Get().(*brotli.Writer)
			defer brPool.Put(br)
			br.Reset(w)
			enc = br
			w.Header().Set("Content-Encoding", "br")
		case "gzip":
			gz := gzPool.Get().(*gzip.Writer)
			defer gzPool.Put(gz)
			gz.Reset(w)
			enc = gz
			w.Header().Set("Content-Encoding", "gzip")
		default:
			next.ServeHTTP(w, r)
			return
		}
		defer enc.Close()

		// Length will change after compression
		w.Header().Del("Content-Length")
		next.ServeHTTP(&compressResponseWriter{Writer: enc, ResponseWriter: w}, r)
	})
}
