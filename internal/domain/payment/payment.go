package payment

// CardInput carries raw card data for a single submission attempt. It lives
// only until tokenization succeeds or the attempt is abandoned and must never
// be persisted or logged.
type CardInput struct {
	Number      string
	ExpiryMonth string
	ExpiryYear  string
	CVV         string
}

// Messages used when the gateway gives us nothing better.
const (
	DefaultApprovedMessage  = "Payment successful!"
	GenericDeclineReason    = "Payment failed"
	GenericChallengeFailure = "3DS authentication was not completed"
	NetworkFailureMessage   = "No internet connection. Please check your network and try again."
)

// OutcomeKind discriminates the Outcome union.
type OutcomeKind string

const (
	OutcomeApproved         OutcomeKind = "approved"
	OutcomeDeclined         OutcomeKind = "declined"
	OutcomePendingChallenge OutcomeKind = "pending_challenge"
)

// Outcome is the terminal result of a payment attempt. Exactly one variant is
// active, selected by Kind; use the constructors below so the invariants hold
// (a declined outcome always carries a non-empty reason).
type Outcome struct {
	Kind         OutcomeKind `json:"kind"`
	Message      string      `json:"message,omitempty"`
	Reason       string      `json:"reason,omitempty"`
	ChallengeURL string      `json:"challenge_url,omitempty"`
	PaymentID    string      `json:"payment_id,omitempty"`
}

// Approved builds a successful outcome, defaulting the display message.
func Approved(message string) Outcome {
	if message == "" {
		message = DefaultApprovedMessage
	}
	return Outcome{Kind: OutcomeApproved, Message: message}
}

// Declined builds a failed outcome. The reason is never empty.
func Declined(reason string) Outcome {
	if reason == "" {
		reason = GenericDeclineReason
	}
	return Outcome{Kind: OutcomeDeclined, Reason: reason}
}

// PendingChallenge builds the 3DS-required outcome.
func PendingChallenge(challengeURL, paymentID string) Outcome {
	return Outcome{Kind: OutcomePendingChallenge, ChallengeURL: challengeURL, PaymentID: paymentID}
}

// Phase names where a checkout session is in its lifecycle.
type Phase string

const (
	PhaseIdle                     Phase = "idle"
	PhaseSubmitting               Phase = "submitting"
	PhaseAwaitingChallenge        Phase = "awaiting_challenge"
	PhaseResolvingChallengeDetail Phase = "resolving_challenge_detail"
	PhaseResolved                 Phase = "resolved"
	PhaseTransportError           Phase = "transport_error"
)

// SessionState is the orchestrator state surfaced to the UI layer.
//
// PendingPaymentID is set exactly while the current attempt has passed
// through a 3DS challenge; Reset clears it. PreChallengeFailureReason caches
// the decline message seen before a challenge so an abandoned challenge can
// still show something specific.
type SessionState struct {
	Phase                     Phase    `json:"phase"`
	Outcome                   *Outcome `json:"outcome,omitempty"`
	IsNetwork                 bool     `json:"is_network,omitempty"`
	Message                   string   `json:"message,omitempty"`
	PendingPaymentID          string   `json:"pending_payment_id,omitempty"`
	PreChallengeFailureReason string   `json:"pre_challenge_failure_reason,omitempty"`
}

// InFlight reports whether a gateway round-trip sequence is in progress.
// At most one may run per session.
func (s SessionState) InFlight() bool {
	switch s.Phase {
	case PhaseSubmitting, PhaseAwaitingChallenge, PhaseResolvingChallengeDetail:
		return true
	}
	return false
}

// CanSubmit reports whether a new submission may start from this state.
func (s SessionState) CanSubmit() bool {
	switch s.Phase {
	case PhaseIdle, PhaseResolved, PhaseTransportError:
		return true
	}
	return false
}
