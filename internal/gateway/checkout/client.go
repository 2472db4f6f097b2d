// Package checkout implements the gateway client against a Checkout.com
// style API: token and payment endpoints, key-per-surface auth, snake_case
// wire shapes.
package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"checkoutflow/internal/domain/payment"
	"checkoutflow/internal/gateway"
)

// Config carries everything the client needs to reach the gateway. The
// public key authorizes tokenization only; the secret key authorizes the
// payment surface.
type Config struct {
	TokenBaseURL   string
	PaymentBaseURL string
	PublicKey      string
	SecretKey      string
	Currency       string
	Timeout        time.Duration
}

// Client talks to the remote gateway over HTTP. It implements
// gateway.Client.
type Client struct {
	cfg  Config
	http *http.Client
}

var _ gateway.Client = (*Client)(nil)

// New builds a client, filling sandbox defaults for anything unset.
func New(cfg Config) *Client {
	if cfg.TokenBaseURL == "" {
		cfg.TokenBaseURL = "https://api.sandbox.checkout.com"
	}
	if cfg.PaymentBaseURL == "" {
		cfg.PaymentBaseURL = "https://api.sandbox.checkout.com"
	}
	if cfg.Currency == "" {
		cfg.Currency = "GBP"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &Client{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}}
}

type tokenRequest struct {
	Type        string `json:"type"`
	Number      string `json:"number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
}

type tokenResponse struct {
	Token string `json:"token"`
}

type paymentSource struct {
	Type  string `json:"type"`
	Token string `json:"token"`
}

type threeDS struct {
	Enabled bool `json:"enabled"`
}

type paymentRequest struct {
	Source     paymentSource `json:"source"`
	Amount     int64         `json:"amount"`
	Currency   string        `json:"currency"`
	ThreeDS    threeDS       `json:"3ds"`
	SuccessURL string        `json:"success_url"`
	FailureURL string        `json:"failure_url"`
}

// Tokenize exchanges card data for a single-use token.
func (c *Client) Tokenize(ctx context.Context, card payment.CardInput) (string, error) {
	req := tokenRequest{
		Type:        "card",
		Number:      card.Number,
		ExpiryMonth: card.ExpiryMonth,
		ExpiryYear:  card.ExpiryYear,
		CVV:         card.CVV,
	}
	var out tokenResponse
	if err := c.postJSON(ctx, "tokenize", c.cfg.TokenBaseURL+"/tokens", c.cfg.PublicKey, req, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", &gateway.TransportError{Op: "tokenize", Err: fmt.Errorf("gateway returned no token")}
	}
	return out.Token, nil
}

// CreatePayment charges a token with 3DS enabled.
func (c *Client) CreatePayment(ctx context.Context, token string, amountMinor int64, successURL, failureURL string) (gateway.Response, error) {
	req := paymentRequest{
		Source:     paymentSource{Type: "token", Token: token},
		Amount:     amountMinor,
		Currency:   c.cfg.Currency,
		ThreeDS:    threeDS{Enabled: true},
		SuccessURL: successURL,
		FailureURL: failureURL,
	}
	var out gateway.Response
	if err := c.postJSON(ctx, "create_payment", c.cfg.PaymentBaseURL+"/payments", c.cfg.SecretKey, req, &out); err != nil {
		return gateway.Response{}, err
	}
	return out, nil
}

// GetPayment fetches the current payment detail.
func (c *Client) GetPayment(ctx context.Context, paymentID string) (gateway.Response, error) {
	var out gateway.Response
	url := c.cfg.PaymentBaseURL + "/payments/" + paymentID
	if err := c.getJSON(ctx, "get_payment", url, c.cfg.SecretKey, &out); err != nil {
		return gateway.Response{}, err
	}
	return out, nil
}

// GetPaymentActions fetches the action history, oldest first.
func (c *Client) GetPaymentActions(ctx context.Context, paymentID string) ([]gateway.Action, error) {
	var out []gateway.Action
	url := c.cfg.PaymentBaseURL + "/payments/" + paymentID + "/actions"
	if err := c.getJSON(ctx, "get_payment_actions", url, c.cfg.SecretKey, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) postJSON(ctx context.Context, op, url, key string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return &gateway.TransportError{Op: op, Err: fmt.Errorf("marshal request: %w", err)}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return &gateway.TransportError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(op, req, key, out)
}

func (c *Client) getJSON(ctx context.Context, op, url, key string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &gateway.TransportError{Op: op, Err: err}
	}
	return c.do(op, req, key, out)
}

func (c *Client) do(op string, req *http.Request, key string, out any) error {
	req.Header.Set("Authorization", key)

	log.Debug().
		Str("op", op).
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Msg("gateway request")

	res, err := c.http.Do(req)
	if err != nil {
		log.Error().Str("op", op).Err(err).Msg("gateway request failed")
		return gateway.Classify(op, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return gateway.Classify(op, err)
	}

	log.Debug().
		Str("op", op).
		Int("status_code", res.StatusCode).
		Int("body_length", len(body)).
		Msg("gateway response")

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &gateway.HTTPError{Op: op, StatusCode: res.StatusCode, Body: body}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &gateway.TransportError{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}
