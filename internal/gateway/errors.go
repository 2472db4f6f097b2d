package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// TransportError is a failed round trip to the gateway: the request never
// produced a usable response. Network marks connectivity-class failures
// (unreachable host, DNS, timeout) which are the only ones worth retrying
// verbatim; anything else (malformed response, bad request building) is not.
type TransportError struct {
	Op      string
	Network bool
	Err     error
}

func (e *TransportError) Error() string {
	if e.Network {
		return fmt.Sprintf("gateway %s: network failure: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("gateway %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// HTTPError is a completed round trip that came back non-2xx. The body is
// kept raw so the normalizer can scrape a reason out of it.
type HTTPError struct {
	Op         string
	StatusCode int
	Body       []byte
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("gateway %s: unexpected status %d", e.Op, e.StatusCode)
}

// IsNetworkError reports whether err is connectivity-class: DNS failures,
// dial/read errors and timeouts, however deeply wrapped. Cancellation is
// never network-class.
func IsNetworkError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	// url.Error itself satisfies net.Error yet wraps every http.Client
	// failure, redirect-policy errors included, so classify on its cause.
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		var netErr net.Error
		return errors.As(urlErr.Err, &netErr)
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// Classify wraps a request failure into a TransportError for op.
func Classify(op string, err error) *TransportError {
	return &TransportError{Op: op, Network: IsNetworkError(err), Err: err}
}
