// Package session owns the payment lifecycle state machine: one Session per
// checkout attempt, sequencing tokenization, payment creation, the optional
// 3DS challenge and final resolution.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"checkoutflow/internal/domain/payment"
	"checkoutflow/internal/gateway"
)

var (
	// ErrSubmissionInFlight rejects a Submit while a gateway round-trip
	// sequence is still in progress; overlapping submissions are not a
	// supported state.
	ErrSubmissionInFlight = errors.New("session: a submission is already in flight")

	// ErrNoChallenge rejects a challenge outcome when no challenge is
	// awaiting one.
	ErrNoChallenge = errors.New("session: no challenge awaiting resolution")

	// ErrNotRetryable rejects Retry outside the transport-error state.
	ErrNotRetryable = errors.New("session: not in a retryable state")
)

const (
	enrichTimeout    = 30 * time.Second
	enrichMaxRetries = 2
)

// RedirectTargets are the URLs the gateway sends the cardholder's browser to
// after a 3DS challenge. They are fixed per session and opaque to the state
// machine; matching them back to an outcome is the challenge presenter's job.
type RedirectTargets struct {
	SuccessURL string
	FailureURL string
}

// Session is the orchestrator for a single logical checkout session. All
// state changes go through it; the UI layer reads State or Subscribe and
// issues Submit, ReportChallengeOutcome, Retry and Reset.
type Session struct {
	gw      gateway.Client
	targets RedirectTargets

	mu         sync.Mutex
	state      payment.SessionState
	lastCard   *payment.CardInput
	lastAmount int64
	// epoch increments on every Submit and Reset. Every gateway round trip,
	// the blocking submit sequence included, records the epoch it started
	// under and only applies its result if the epoch is unchanged, so an
	// abandoned attempt never mutates state that has since moved on.
	epoch int
	subs  []chan payment.SessionState
}

// New builds an idle session bound to a gateway client and its redirect
// targets.
func New(gw gateway.Client, targets RedirectTargets) *Session {
	return &Session{
		gw:      gw,
		targets: targets,
		state:   payment.SessionState{Phase: payment.PhaseIdle},
	}
}

// State returns a snapshot of the current session state.
func (s *Session) State() payment.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe returns a channel receiving every state change. Slow consumers
// miss intermediate states rather than blocking the state machine.
func (s *Session) Subscribe() <-chan payment.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	ch := make(chan payment.SessionState, 16)
	s.subs = append(s.subs, ch)
	return ch
}

// Submit runs tokenization and payment creation for card and amountMinor,
// blocking until the session reaches AwaitingChallenge, Resolved or
// TransportError. It is allowed from Idle, Resolved and TransportError and
// rejects overlap with ErrSubmissionInFlight. The card input is held only
// for Retry and never surfaced or logged.
func (s *Session) Submit(ctx context.Context, card payment.CardInput, amountMinor int64) error {
	s.mu.Lock()
	if s.state.InFlight() {
		s.mu.Unlock()
		return ErrSubmissionInFlight
	}
	s.epoch++
	epoch := s.epoch
	s.lastCard = &card
	s.lastAmount = amountMinor
	s.setStateLocked(payment.SessionState{Phase: payment.PhaseSubmitting})
	s.mu.Unlock()

	log.Info().Int64("amount_minor", amountMinor).Msg("session: submitting payment")

	token, err := s.gw.Tokenize(ctx, card)
	if err != nil {
		s.failTransport(epoch, "tokenize", err)
		return nil
	}

	resp, err := s.gw.CreatePayment(ctx, token, amountMinor, s.targets.SuccessURL, s.targets.FailureURL)
	if err != nil {
		// A non-2xx payment response is a business decline, not a transport
		// failure: the gateway answered, just not kindly.
		var httpErr *gateway.HTTPError
		if errors.As(err, &httpErr) {
			s.resolveDeclined(epoch, gateway.ReasonFromBody(httpErr.Body, httpErr.StatusCode))
			return nil
		}
		s.failTransport(epoch, "create_payment", err)
		return nil
	}

	s.interpretCreateResponse(epoch, resp)
	return nil
}

// interpretCreateResponse maps a createPayment response onto the state
// machine. Meaning is inferred from which fields are populated, so the
// outcome is decided here, once, rather than threading optional fields any
// further.
func (s *Session) interpretCreateResponse(epoch int, resp gateway.Response) {
	switch {
	case resp.Status == "":
		// No status at all: an error response that came back 2xx anyway.
		s.resolveDeclined(epoch, gateway.FailureReason(resp, gateway.GenericFailure))

	case resp.Approved():
		s.resolve(epoch, payment.Approved(""))

	case resp.Status == gateway.StatusPending && resp.RedirectURL() != "":
		s.mu.Lock()
		if s.epoch != epoch {
			s.mu.Unlock()
			log.Debug().Str("payment_id", resp.ID).Msg("session: dropping stale create response")
			return
		}
		s.setStateLocked(payment.SessionState{
			Phase:            payment.PhaseAwaitingChallenge,
			Outcome:          outcomePtr(payment.PendingChallenge(resp.RedirectURL(), resp.ID)),
			PendingPaymentID: resp.ID,
		})
		s.mu.Unlock()
		log.Info().Str("payment_id", resp.ID).Msg("session: awaiting 3DS challenge")

	case resp.Status == gateway.StatusPending:
		// Pending with no redirect to follow leads nowhere.
		s.resolveDeclined(epoch, "Unexpected payment status: "+resp.Status)

	default:
		s.resolveDeclined(epoch, gateway.FailureReason(resp, gateway.StatusFallback(resp.Status)))
	}
}

// ReportChallengeOutcome re-enters the state machine with the result of the
// 3DS challenge. On failure with a known payment id the session moves to
// ResolvingChallengeDetail and a best-effort lookup replaces the generic
// message with the gateway's specific decline reason.
func (s *Session) ReportChallengeOutcome(success bool, failureHint string) error {
	s.mu.Lock()
	if s.state.Phase != payment.PhaseAwaitingChallenge {
		s.mu.Unlock()
		return ErrNoChallenge
	}

	if success {
		s.setStateLocked(payment.SessionState{
			Phase:   payment.PhaseResolved,
			Outcome: outcomePtr(payment.Approved("")),
		})
		s.mu.Unlock()
		log.Info().Msg("session: 3DS challenge succeeded")
		return nil
	}

	paymentID := s.state.PendingPaymentID
	cached := s.state.PreChallengeFailureReason
	if paymentID == "" {
		reason := failureHint
		if reason == "" {
			reason = cached
		}
		if reason == "" {
			reason = payment.GenericChallengeFailure
		}
		s.setStateLocked(payment.SessionState{
			Phase:   payment.PhaseResolved,
			Outcome: outcomePtr(payment.Declined(reason)),
		})
		s.mu.Unlock()
		return nil
	}

	s.setStateLocked(payment.SessionState{
		Phase:                     payment.PhaseResolvingChallengeDetail,
		PendingPaymentID:          paymentID,
		PreChallengeFailureReason: cached,
	})
	epoch := s.epoch
	s.mu.Unlock()

	go s.resolveChallengeDetail(epoch, paymentID, cached)
	return nil
}

// resolveChallengeDetail enriches a failed challenge with the gateway's own
// decline reason. Everything here is best effort: transport failures are
// logged and swallowed, and the session resolves with the best message
// available. Precedence: detail response fields, then the most recent
// action, then the cached pre-challenge reason, then a generic message.
func (s *Session) resolveChallengeDetail(epoch int, paymentID, cached string) {
	ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
	defer cancel()

	outcome := payment.Declined(firstNonEmpty(cached, payment.GenericChallengeFailure))

	resp, err := s.fetchPaymentDetail(ctx, paymentID)
	switch {
	case err != nil:
		var httpErr *gateway.HTTPError
		if errors.As(err, &httpErr) {
			outcome = payment.Declined(gateway.ReasonFromBody(httpErr.Body, httpErr.StatusCode))
		} else {
			log.Error().Err(err).Str("payment_id", paymentID).
				Msg("session: payment detail lookup failed, using cached reason")
		}

	case resp.Approved():
		// The challenge callback said failure but the payment went through;
		// trust the gateway's record.
		outcome = payment.Approved("")

	default:
		msg := ""
		if resp.HasErrorFields() {
			msg = gateway.FailureReason(resp, "")
		} else if resp.Status != "" && resp.Status != gateway.StatusPending {
			msg = s.reasonFromActions(ctx, paymentID)
		}
		if msg == "" {
			fallback := gateway.GenericFailure
			if resp.Status != "" {
				fallback = gateway.StatusFallback(resp.Status)
			}
			msg = firstNonEmpty(cached, gateway.FailureReason(resp, fallback))
		}
		outcome = payment.Declined(msg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || s.state.Phase != payment.PhaseResolvingChallengeDetail {
		// The session was reset or resubmitted while we were looking; this
		// result belongs to an abandoned attempt.
		log.Debug().Str("payment_id", paymentID).Msg("session: dropping stale challenge detail")
		return
	}
	s.setStateLocked(payment.SessionState{
		Phase:   payment.PhaseResolved,
		Outcome: &outcome,
	})
}

// fetchPaymentDetail retries network-class failures with exponential
// backoff; anything the gateway actually answered is returned immediately.
func (s *Session) fetchPaymentDetail(ctx context.Context, paymentID string) (gateway.Response, error) {
	var resp gateway.Response
	op := func() error {
		r, err := s.gw.GetPayment(ctx, paymentID)
		if err != nil {
			var transportErr *gateway.TransportError
			if errors.As(err, &transportErr) && transportErr.Network {
				return err
			}
			return backoff.Permanent(err)
		}
		resp = r
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 200 * time.Millisecond
	err := backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(bo, enrichMaxRetries), ctx))
	return resp, err
}

// reasonFromActions takes the most recent action of the payment as the error
// source. Failures are swallowed; an empty string means nothing was learned.
func (s *Session) reasonFromActions(ctx context.Context, paymentID string) string {
	actions, err := s.gw.GetPaymentActions(ctx, paymentID)
	if err != nil {
		log.Error().Err(err).Str("payment_id", paymentID).
			Msg("session: payment actions lookup failed")
		return ""
	}
	if len(actions) == 0 {
		return ""
	}
	return gateway.ActionReason(actions[len(actions)-1])
}

// Retry re-issues the last submission. Only the transport-error state is
// retryable; it is a no-op when no prior submission exists.
func (s *Session) Retry(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Phase != payment.PhaseTransportError {
		s.mu.Unlock()
		return ErrNotRetryable
	}
	if s.lastCard == nil {
		s.mu.Unlock()
		return nil
	}
	card := *s.lastCard
	amount := s.lastAmount
	s.mu.Unlock()

	log.Info().Msg("session: retrying last submission")
	return s.Submit(ctx, card, amount)
}

// Reset returns the session to Idle from any state, clearing the pending
// payment id and the cached pre-challenge reason. Gateway calls still in
// flight from before the reset can no longer touch the state.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.setStateLocked(payment.SessionState{Phase: payment.PhaseIdle})
}

func (s *Session) failTransport(epoch int, op string, err error) {
	isNetwork := false
	var transportErr *gateway.TransportError
	if errors.As(err, &transportErr) {
		isNetwork = transportErr.Network
	}

	message := err.Error()
	if isNetwork {
		message = payment.NetworkFailureMessage
	}

	log.Error().Err(err).Str("op", op).Bool("network", isNetwork).
		Msg("session: transport failure")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		log.Debug().Str("op", op).Msg("session: dropping stale transport failure")
		return
	}
	s.setStateLocked(payment.SessionState{
		Phase:     payment.PhaseTransportError,
		IsNetwork: isNetwork,
		Message:   message,
	})
}

func (s *Session) resolve(epoch int, outcome payment.Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		log.Debug().Msg("session: dropping stale resolution")
		return
	}
	s.setStateLocked(payment.SessionState{
		Phase:   payment.PhaseResolved,
		Outcome: &outcome,
	})
}

// resolveDeclined resolves to a decline, caching the reason so a challenge
// path that is later abandoned without resolution data can still show it.
func (s *Session) resolveDeclined(epoch int, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		log.Debug().Msg("session: dropping stale decline")
		return
	}
	s.setStateLocked(payment.SessionState{
		Phase:                     payment.PhaseResolved,
		Outcome:                   outcomePtr(payment.Declined(reason)),
		PreChallengeFailureReason: reason,
	})
}

// setStateLocked replaces the state and publishes it. Callers hold s.mu.
func (s *Session) setStateLocked(state payment.SessionState) {
	s.state = state
	for _, ch := range s.subs {
		select {
		case ch <- state:
		default:
		}
	}
}

func outcomePtr(o payment.Outcome) *payment.Outcome { return &o }

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
