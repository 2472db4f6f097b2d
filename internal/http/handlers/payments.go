package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"checkoutflow/internal/card"
	domain "checkoutflow/internal/domain/payment"
	"checkoutflow/internal/services/session"
)

// defaultAmountMinor is charged when the request names no amount
// (6540 minor units = £65.40).
const defaultAmountMinor = 6540

type createPaymentReq struct {
	CardNumber  string `json:"card_number"`
	ExpiryMonth string `json:"expiry_month"`
	ExpiryYear  string `json:"expiry_year"`
	CVV         string `json:"cvv"`
	AmountMinor int64  `json:"amount_minor"`
}

type sessionResp struct {
	SessionID string              `json:"session_id"`
	State     domain.SessionState `json:"state"`
}

// CreatePayment validates the card, opens a session and submits the payment,
// responding once the session reaches a stable state (resolved, awaiting the
// 3DS challenge, or transport error).
func CreatePayment(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in createPaymentReq
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}

		if errs := validateCard(in); len(errs) > 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]any{"errors": errs})
			return
		}

		amount := in.AmountMinor
		if amount == 0 {
			amount = defaultAmountMinor
		}

		id, sess := sessions.Create()

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		err := sess.Submit(ctx, domain.CardInput{
			Number:      in.CardNumber,
			ExpiryMonth: in.ExpiryMonth,
			ExpiryYear:  in.ExpiryYear,
			CVV:         in.CVV,
		}, amount)
		if err != nil {
			log.Error().Err(err).Str("session_id", id).Msg("payment submission rejected")
			http.Error(w, "submission rejected", http.StatusConflict)
			return
		}

		writeSession(w, id, sess)
	}
}

// GetPayment reports the current state of a checkout session.
func GetPayment(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		sess, ok := sessions.Get(id)
		if !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		writeSession(w, id, sess)
	}
}

// RetryPayment re-issues the last submission after a transport failure.
func RetryPayment(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		sess, ok := sessions.Get(id)
		if !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
		defer cancel()

		if err := sess.Retry(ctx); err != nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		writeSession(w, id, sess)
	}
}

// ResetPayment returns a session to idle, as when the user navigates back to
// the card entry screen.
func ResetPayment(sessions *session.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "sessionID")
		sess, ok := sessions.Get(id)
		if !ok {
			http.Error(w, "unknown session", http.StatusNotFound)
			return
		}
		sess.Reset()
		writeSession(w, id, sess)
	}
}

// validateCard runs the live-field checks before anything reaches the
// gateway. The card number itself never appears in any error.
func validateCard(in createPaymentReq) map[string]string {
	errs := make(map[string]string)

	brand := card.DetectBrand(in.CardNumber)
	if !card.ValidNumber(in.CardNumber) {
		errs["card_number"] = "invalid card number"
	}
	if !card.ValidExpiry(in.ExpiryMonth+in.ExpiryYear, time.Now()) {
		errs["expiry"] = "invalid or expired date"
	}
	if !card.ValidCVV(in.CVV, brand) {
		errs["cvv"] = "invalid security code"
	}
	return errs
}

func writeSession(w http.ResponseWriter, id string, sess *session.Session) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(sessionResp{SessionID: id, State: sess.State()})
}
