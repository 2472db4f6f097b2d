package gateway

import (
	"context"

	"checkoutflow/internal/domain/payment"
)

// Payment statuses the gateway reports. Only Authorized and Captured count
// as approved; Pending means a 3DS challenge is required. Every other status
// is a decline.
const (
	StatusPending    = "Pending"
	StatusAuthorized = "Authorized"
	StatusCaptured   = "Captured"
)

// Response is the union-like shape the gateway returns from payment calls
// and error bodies alike. Every field is optional; which subset is populated
// carries the meaning, so consumers must tolerate any of them being absent.
type Response struct {
	ID              string   `json:"id,omitempty"`
	Status          string   `json:"status,omitempty"`
	Links           *Links   `json:"_links,omitempty"`
	ResponseSummary string   `json:"response_summary,omitempty"`
	ResponseCode    string   `json:"response_code,omitempty"`
	ErrorType       string   `json:"error_type,omitempty"`
	ErrorCodes      []string `json:"error_codes,omitempty"`
	DeclineReason   string   `json:"decline_reason,omitempty"`
	Message         string   `json:"message,omitempty"`
	RequestID       string   `json:"request_id,omitempty"`
}

// Links holds the HAL-style link block of a payment response.
type Links struct {
	Redirect *Link `json:"redirect,omitempty"`
}

// Link is a single HAL link.
type Link struct {
	Href string `json:"href"`
}

// RedirectURL returns the 3DS redirect target, or "" if none was offered.
func (r Response) RedirectURL() string {
	if r.Links == nil || r.Links.Redirect == nil {
		return ""
	}
	return r.Links.Redirect.Href
}

// Approved reports whether the status is one of the success statuses.
func (r Response) Approved() bool {
	return r.Status == StatusAuthorized || r.Status == StatusCaptured
}

// HasErrorFields reports whether the response carries any of the fields the
// normalizer can turn into a specific decline reason.
func (r Response) HasErrorFields() bool {
	return r.ResponseSummary != "" || r.ResponseCode != "" || r.DeclineReason != "" || r.Message != ""
}

// Action is one entry of a payment's action history. The most recent action
// is the last element returned by GetPaymentActions.
type Action struct {
	ID              string `json:"id,omitempty"`
	Type            string `json:"type,omitempty"`
	Status          string `json:"status,omitempty"`
	ResponseSummary string `json:"response_summary,omitempty"`
	ResponseCode    string `json:"response_code,omitempty"`
	DeclineReason   string `json:"decline_reason,omitempty"`
	Message         string `json:"message,omitempty"`
}

// Client is the remote payment gateway as consumed by the orchestrator.
// Implementations classify their failures with TransportError (connectivity)
// and HTTPError (non-2xx with a body worth normalizing).
type Client interface {
	// Tokenize exchanges raw card data for a single-use token. The card
	// number never travels further than this call.
	Tokenize(ctx context.Context, card payment.CardInput) (string, error)

	// CreatePayment charges a token with 3DS enabled, naming the redirect
	// targets the challenge should land on.
	CreatePayment(ctx context.Context, token string, amountMinor int64, successURL, failureURL string) (Response, error)

	// GetPayment fetches the current detail of a payment.
	GetPayment(ctx context.Context, paymentID string) (Response, error)

	// GetPaymentActions fetches the action history of a payment, oldest
	// first.
	GetPaymentActions(ctx context.Context, paymentID string) ([]Action, error)
}
