package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"testing"
)

// timeoutErr mimics the net.Error the http client returns when its overall
// timeout fires.
type timeoutErr struct{}

func (timeoutErr) Error() string   { return "awaiting response headers" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsNetworkError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"dns failure", &net.DNSError{Err: "no such host", Name: "api.example.com"}, true},
		{"op error", &net.OpError{Op: "dial", Err: errors.New("connection refused")}, true},
		{"wrapped in url.Error", &url.Error{Op: "Post", URL: "https://x", Err: &net.OpError{Op: "dial", Err: errors.New("refused")}}, true},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped deadline", fmt.Errorf("request: %w", context.DeadlineExceeded), true},
		{"client timeout in url.Error", &url.Error{Op: "Post", URL: "https://x", Err: timeoutErr{}}, true},
		{"canceled", context.Canceled, false},
		{"canceled in url.Error", &url.Error{Op: "Post", URL: "https://x", Err: context.Canceled}, false},
		{"redirect policy in url.Error", &url.Error{Op: "Get", URL: "https://x", Err: errors.New("stopped after 10 redirects")}, false},
		{"decode failure", errors.New("invalid character '<'"), false},
		{"plain wrapped", fmt.Errorf("marshal request: %w", errors.New("boom")), false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := IsNetworkError(c.err); got != c.want {
				t.Fatalf("IsNetworkError(%v) = %v, want %v", c.err, got, c.want)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	te := Classify("tokenize", &net.DNSError{Err: "no such host"})
	if !te.Network {
		t.Fatal("DNS failure not network-class")
	}
	if te.Op != "tokenize" {
		t.Fatalf("op = %q", te.Op)
	}

	te = Classify("get_payment", errors.New("decode response: unexpected EOF"))
	if te.Network {
		t.Fatal("decode failure classified as network")
	}
}
