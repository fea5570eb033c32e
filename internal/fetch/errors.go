package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"syscall"

	"github.com/tidwall/gjson"
)

// Kind classifies why a fetch failed.
type Kind int

const (
	KindUnknown Kind = iota
	KindNetwork
	KindTimeout
	KindServer
	KindParsing
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	case KindParsing:
		return "parsing"
	default:
		return "unknown"
	}
}

// FetchError is returned by every failed fetch.
type FetchError struct {
	Kind    Kind
	Status  int // HTTP status for KindServer, 0 otherwise
	URL     string
	Message string
	Err     error
}

func (e *FetchError) Error() string {
	msg := fmt.Sprintf("fetch %s: %s", e.URL, e.Kind)
	if e.Status != 0 {
		msg += fmt.Sprintf(" (status %d)", e.Status)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *FetchError) Unwrap() error { return e.Err }

// KindOf returns the kind of a *FetchError anywhere in err's chain, or KindUnknown.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsTimeout reports whether err is a fetch timeout.
func IsTimeout(err error) bool { return err != nil && KindOf(err) == KindTimeout }

// serverMessagePaths are tried in order against non-2xx response bodies. The
// menu API answers {"error":"..."}; proxies in front of it use the other shapes.
var serverMessagePaths = []string{"error.message", "error", "message"}

func serverMessage(body []byte) string {
	if !gjson.ValidBytes(body) {
		return ""
	}
	for _, path := range serverMessagePaths {
		if r := gjson.GetBytes(body, path); r.Type == gjson.String && r.Str != "" {
			return r.Str
		}
	}
	return ""
}

// classifyTransport maps an error raised while sending a request or reading its
// body. ctx is the per-request context so an elapsed deadline wins over whatever
// error the transport surfaced.
func classifyTransport(ctx context.Context, err error) Kind {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) || errors.Is(ctx.Err(), context.Canceled) {
		return KindUnknown
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return KindTimeout
	}
	var opErr *net.OpError
	var dnsErr *net.DNSError
	switch {
	case errors.As(err, &dnsErr), errors.As(err, &opErr):
		return KindNetwork
	case errors.Is(err, syscall.ECONNREFUSED), errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.ENETUNREACH), errors.Is(err, syscall.EHOSTUNREACH):
		return KindNetwork
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return KindNetwork
	}
	return KindUnknown
}
