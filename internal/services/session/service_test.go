package session

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"checkoutflow/internal/domain/payment"
	"checkoutflow/internal/gateway"
)

// fakeGateway implements gateway.Client with overridable calls.
type fakeGateway struct {
	tokenize   func(ctx context.Context, card payment.CardInput) (string, error)
	create     func(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error)
	getPayment func(ctx context.Context, id string) (gateway.Response, error)
	getActions func(ctx context.Context, id string) ([]gateway.Action, error)
}

func (f *fakeGateway) Tokenize(ctx context.Context, card payment.CardInput) (string, error) {
	if f.tokenize == nil {
		return "tok_test", nil
	}
	return f.tokenize(ctx, card)
}

func (f *fakeGateway) CreatePayment(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error) {
	if f.create == nil {
		return gateway.Response{Status: gateway.StatusCaptured}, nil
	}
	return f.create(ctx, token, amount, successURL, failureURL)
}

func (f *fakeGateway) GetPayment(ctx context.Context, id string) (gateway.Response, error) {
	if f.getPayment == nil {
		return gateway.Response{}, nil
	}
	return f.getPayment(ctx, id)
}

func (f *fakeGateway) GetPaymentActions(ctx context.Context, id string) ([]gateway.Action, error) {
	if f.getActions == nil {
		return nil, nil
	}
	return f.getActions(ctx, id)
}

var testTargets = RedirectTargets{
	SuccessURL: "https://shop.example.com/callbacks/3ds/success",
	FailureURL: "https://shop.example.com/callbacks/3ds/failure",
}

var testCard = payment.CardInput{Number: "4242424242424242", ExpiryMonth: "12", ExpiryYear: "30", CVV: "123"}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSubmitApproved(t *testing.T) {
	sess := New(&fakeGateway{}, testTargets)

	if err := sess.Submit(context.Background(), testCard, 6540); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := sess.State()
	if st.Phase != payment.PhaseResolved {
		t.Fatalf("phase = %s, want resolved", st.Phase)
	}
	if st.Outcome == nil || st.Outcome.Kind != payment.OutcomeApproved {
		t.Fatalf("outcome = %+v, want approved", st.Outcome)
	}
	if st.Outcome.Message == "" {
		t.Fatal("approved outcome has no message")
	}
}

func TestSubmitPendingChallenge(t *testing.T) {
	gw := &fakeGateway{
		create: func(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error) {
			if successURL == "" || failureURL == "" {
				t.Fatal("redirect targets not passed to gateway")
			}
			return gateway.Response{
				ID:     "pay_123",
				Status: gateway.StatusPending,
				Links:  &gateway.Links{Redirect: &gateway.Link{Href: "https://3ds.example.com/challenge"}},
			}, nil
		},
	}
	sess := New(gw, testTargets)

	if err := sess.Submit(context.Background(), testCard, 6540); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	st := sess.State()
	if st.Phase != payment.PhaseAwaitingChallenge {
		t.Fatalf("phase = %s, want awaiting_challenge", st.Phase)
	}
	if st.PendingPaymentID != "pay_123" {
		t.Fatalf("pending payment id = %q", st.PendingPaymentID)
	}
	if st.Outcome.ChallengeURL != "https://3ds.example.com/challenge" {
		t.Fatalf("challenge url = %q", st.Outcome.ChallengeURL)
	}

	// Scenario B: the challenge succeeds.
	if err := sess.ReportChallengeOutcome(true, ""); err != nil {
		t.Fatalf("ReportChallengeOutcome: %v", err)
	}
	st = sess.State()
	if st.Phase != payment.PhaseResolved || st.Outcome.Kind != payment.OutcomeApproved {
		t.Fatalf("state after successful challenge = %+v", st)
	}
}

func TestSubmitDeclined(t *testing.T) {
	gw := &fakeGateway{
		create: func(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error) {
			return gateway.Response{
				Status:          "Declined",
				ResponseCode:    "20005",
				ResponseSummary: "Declined - Do Not Honour",
			}, nil
		},
	}
	sess := New(gw, testTargets)
	_ = sess.Submit(context.Background(), testCard, 6540)

	st := sess.State()
	if st.Phase != payment.PhaseResolved || st.Outcome.Kind != payment.OutcomeDeclined {
		t.Fatalf("state = %+v, want declined", st)
	}
	if st.Outcome.Reason != "20005: Declined - Do Not Honour" {
		t.Fatalf("reason = %q", st.Outcome.Reason)
	}
	if st.PreChallengeFailureReason != st.Outcome.Reason {
		t.Fatalf("pre-challenge reason not cached: %q", st.PreChallengeFailureReason)
	}
}

func TestSubmitNoStatusDeclined(t *testing.T) {
	gw := &fakeGateway{
		create: func(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error) {
			return gateway.Response{ErrorType: "processing_error"}, nil
		},
	}
	sess := New(gw, testTargets)
	_ = sess.Submit(context.Background(), testCard, 6540)

	st := sess.State()
	if st.Outcome == nil || st.Outcome.Reason != "processing_error" {
		t.Fatalf("state = %+v", st)
	}
}

func TestSubmitHTTPErrorBecomesDecline(t *testing.T) {
	gw := &fakeGateway{
		create: func(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error) {
			return gateway.Response{}, &gateway.HTTPError{
				Op:         "create_payment",
				StatusCode: 422,
				Body:       []byte(`{"response_code":"20014","response_summary":"Invalid card number"}`),
			}
		},
	}
	sess := New(gw, testTargets)
	_ = sess.Submit(context.Background(), testCard, 6540)

	st := sess.State()
	if st.Phase != payment.PhaseResolved || st.Outcome.Kind != payment.OutcomeDeclined {
		t.Fatalf("state = %+v, want declined", st)
	}
	if st.Outcome.Reason != "20014: Invalid card number" {
		t.Fatalf("reason = %q", st.Outcome.Reason)
	}
}

// Scenario C: 3DS fails, the detail response has no error fields, and the
// most recent action supplies the specific reason.
func TestChallengeFailureEnrichedFromActions(t *testing.T) {
	gw := &fakeGateway{
		create: func(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error) {
			return gateway.Response{
				ID:     "pay_123",
				Status: gateway.StatusPending,
				Links:  &gateway.Links{Redirect: &gateway.Link{Href: "https://3ds.example.com/c"}},
			}, nil
		},
		getPayment: func(ctx context.Context, id string) (gateway.Response, error) {
			return gateway.Response{ID: id, Status: "Declined"}, nil
		},
		getActions: func(ctx context.Context, id string) ([]gateway.Action, error) {
			return []gateway.Action{
				{Type: "Authorization", ResponseCode: "20087", DeclineReason: "3DS check failed"},
				{Type: "Authorization", ResponseCode: "20051", DeclineReason: "Insufficient funds"},
			}, nil
		},
	}
	sess := New(gw, testTargets)
	_ = sess.Submit(context.Background(), testCard, 6540)

	if err := sess.ReportChallengeOutcome(false, ""); err != nil {
		t.Fatalf("ReportChallengeOutcome: %v", err)
	}
	if got := sess.State().Phase; got != payment.PhaseResolvingChallengeDetail && got != payment.PhaseResolved {
		t.Fatalf("phase = %s", got)
	}

	waitFor(t, "resolution", func() bool { return sess.State().Phase == payment.PhaseResolved })
	st := sess.State()
	if st.Outcome.Kind != payment.OutcomeDeclined {
		t.Fatalf("outcome = %+v", st.Outcome)
	}
	if st.Outcome.Reason != "20051: Insufficient funds" {
		t.Fatalf("reason = %q, want most recent action's", st.Outcome.Reason)
	}
}

func TestChallengeFailureDetailFieldsWin(t *testing.T) {
	gw := &fakeGateway{
		create: func(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error) {
			return gateway.Response{
				ID:     "pay_9",
				Status: gateway.StatusPending,
				Links:  &gateway.Links{Redirect: &gateway.Link{Href: "https://3ds.example.com/c"}},
			}, nil
		},
		getPayment: func(ctx context.Context, id string) (gateway.Response, error) {
			return gateway.Response{Status: "Declined", ResponseCode: "20005", ResponseSummary: "Do not honour"}, nil
		},
		getActions: func(ctx context.Context, id string) ([]gateway.Action, error) {
			t.Error("actions must not be fetched when the detail has error fields")
			return nil, nil
		},
	}
	sess := New(gw, testTargets)
	_ = sess.Submit(context.Background(), testCard, 6540)
	_ = sess.ReportChallengeOutcome(false, "")

	waitFor(t, "resolution", func() bool { return sess.State().Phase == payment.PhaseResolved })
	if got := sess.State().Outcome.Reason; got != "20005: Do not honour" {
		t.Fatalf("reason = %q", got)
	}
}

// Enrichment failures never escalate: the lookup is swallowed and the best
// message so far is used.
func TestChallengeFailureLookupFailureSwallowed(t *testing.T) {
	var calls atomic.Int32
	gw := &fakeGateway{
		create: func(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error) {
			return gateway.Response{
				ID:     "pay_1",
				Status: gateway.StatusPending,
				Links:  &gateway.Links{Redirect: &gateway.Link{Href: "https://3ds.example.com/c"}},
			}, nil
		},
		getPayment: func(ctx context.Context, id string) (gateway.Response, error) {
			calls.Add(1)
			return gateway.Response{}, &gateway.TransportError{Op: "get_payment", Network: true, Err: errors.New("dial tcp: refused")}
		},
	}
	sess := New(gw, testTargets)
	_ = sess.Submit(context.Background(), testCard, 6540)
	_ = sess.ReportChallengeOutcome(false, "")

	waitFor(t, "resolution", func() bool { return sess.State().Phase == payment.PhaseResolved })
	st := sess.State()
	if st.Outcome.Kind != payment.OutcomeDeclined || st.Outcome.Reason != payment.GenericChallengeFailure {
		t.Fatalf("state = %+v", st)
	}
	if calls.Load() < 2 {
		t.Fatalf("network failure retried %d times, want at least 2", calls.Load())
	}
}

func TestChallengeFailureWithoutPaymentID(t *testing.T) {
	gw := &fakeGateway{
		create: func(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error) {
			return gateway.Response{
				Status: gateway.StatusPending,
				Links:  &gateway.Links{Redirect: &gateway.Link{Href: "https://3ds.example.com/c"}},
			}, nil
		},
	}
	sess := New(gw, testTargets)
	_ = sess.Submit(context.Background(), testCard, 6540)

	if err := sess.ReportChallengeOutcome(false, "Card declined by issuer"); err != nil {
		t.Fatalf("ReportChallengeOutcome: %v", err)
	}
	st := sess.State()
	if st.Phase != payment.PhaseResolved || st.Outcome.Reason != "Card declined by issuer" {
		t.Fatalf("state = %+v", st)
	}
}

// Scenario D: a network-class tokenize failure surfaces as a retryable
// transport error and Retry re-submits the identical input.
func TestNetworkFailureThenRetry(t *testing.T) {
	var failures atomic.Int32
	failures.Store(1)
	gw := &fakeGateway{
		tokenize: func(ctx context.Context, card payment.CardInput) (string, error) {
			if failures.Add(-1) >= 0 {
				return "", &gateway.TransportError{Op: "tokenize", Network: true, Err: errors.New("no such host")}
			}
			if card != testCard {
				t.Fatalf("retry submitted different card input: %+v", card)
			}
			return "tok_retry", nil
		},
	}
	sess := New(gw, testTargets)
	_ = sess.Submit(context.Background(), testCard, 6540)

	st := sess.State()
	if st.Phase != payment.PhaseTransportError || !st.IsNetwork {
		t.Fatalf("state = %+v, want network transport error", st)
	}
	if st.Message == "" {
		t.Fatal("transport error has no message")
	}

	if err := sess.Retry(context.Background()); err != nil {
		t.Fatalf("Retry: %v", err)
	}
	st = sess.State()
	if st.Phase != payment.PhaseResolved || st.Outcome.Kind != payment.OutcomeApproved {
		t.Fatalf("state after retry = %+v", st)
	}
}

func TestNonNetworkFailure(t *testing.T) {
	gw := &fakeGateway{
		tokenize: func(ctx context.Context, card payment.CardInput) (string, error) {
			return "", &gateway.TransportError{Op: "tokenize", Err: errors.New("decode response: unexpected EOF")}
		},
	}
	sess := New(gw, testTargets)
	_ = sess.Submit(context.Background(), testCard, 6540)

	st := sess.State()
	if st.Phase != payment.PhaseTransportError || st.IsNetwork {
		t.Fatalf("state = %+v, want non-network transport error", st)
	}
}

func TestRetryGuards(t *testing.T) {
	sess := New(&fakeGateway{}, testTargets)
	if err := sess.Retry(context.Background()); !errors.Is(err, ErrNotRetryable) {
		t.Fatalf("Retry from idle = %v, want ErrNotRetryable", err)
	}
}

func TestSubmitRejectsOverlap(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		tokenize: func(ctx context.Context, card payment.CardInput) (string, error) {
			<-release
			return "tok_test", nil
		},
	}
	sess := New(gw, testTargets)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Submit(context.Background(), testCard, 6540)
	}()

	waitFor(t, "submitting phase", func() bool { return sess.State().Phase == payment.PhaseSubmitting })
	if err := sess.Submit(context.Background(), testCard, 6540); !errors.Is(err, ErrSubmissionInFlight) {
		t.Fatalf("overlapping Submit = %v, want ErrSubmissionInFlight", err)
	}

	close(release)
	<-done
}

func TestResetClearsState(t *testing.T) {
	gw := &fakeGateway{
		create: func(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error) {
			return gateway.Response{
				ID:     "pay_7",
				Status: gateway.StatusPending,
				Links:  &gateway.Links{Redirect: &gateway.Link{Href: "https://3ds.example.com/c"}},
			}, nil
		},
	}
	sess := New(gw, testTargets)
	_ = sess.Submit(context.Background(), testCard, 6540)

	sess.Reset()
	st := sess.State()
	if st.Phase != payment.PhaseIdle || st.PendingPaymentID != "" || st.PreChallengeFailureReason != "" {
		t.Fatalf("state after reset = %+v", st)
	}
}

// A best-effort lookup from an abandoned attempt must not mutate a state
// that has since been reset.
func TestStaleEnrichmentDropped(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		create: func(ctx context.Context, token string, amount int64, successURL, failureURL string) (gateway.Response, error) {
			return gateway.Response{
				ID:     "pay_8",
				Status: gateway.StatusPending,
				Links:  &gateway.Links{Redirect: &gateway.Link{Href: "https://3ds.example.com/c"}},
			}, nil
		},
		getPayment: func(ctx context.Context, id string) (gateway.Response, error) {
			<-release
			return gateway.Response{Status: "Declined", ResponseSummary: "too late"}, nil
		},
	}
	sess := New(gw, testTargets)
	_ = sess.Submit(context.Background(), testCard, 6540)
	_ = sess.ReportChallengeOutcome(false, "")

	sess.Reset()
	close(release)

	// Give the stale goroutine a chance to (incorrectly) resolve.
	time.Sleep(50 * time.Millisecond)
	if got := sess.State().Phase; got != payment.PhaseIdle {
		t.Fatalf("phase = %s, stale enrichment mutated a reset session", got)
	}
}

// A Submit still blocked in a gateway round trip when Reset is called must
// not apply its result afterwards.
func TestStaleSubmitDropped(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		tokenize: func(ctx context.Context, card payment.CardInput) (string, error) {
			<-release
			return "tok_test", nil
		},
	}
	sess := New(gw, testTargets)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Submit(context.Background(), testCard, 6540)
	}()

	waitFor(t, "submitting phase", func() bool { return sess.State().Phase == payment.PhaseSubmitting })
	sess.Reset()
	close(release)
	<-done

	if got := sess.State().Phase; got != payment.PhaseIdle {
		t.Fatalf("phase = %s, in-flight submit mutated a reset session", got)
	}
}

func TestStaleTransportFailureDropped(t *testing.T) {
	release := make(chan struct{})
	gw := &fakeGateway{
		tokenize: func(ctx context.Context, card payment.CardInput) (string, error) {
			<-release
			return "", &gateway.TransportError{Op: "tokenize", Network: true, Err: errors.New("no such host")}
		},
	}
	sess := New(gw, testTargets)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sess.Submit(context.Background(), testCard, 6540)
	}()

	waitFor(t, "submitting phase", func() bool { return sess.State().Phase == payment.PhaseSubmitting })
	sess.Reset()
	close(release)
	<-done

	if got := sess.State().Phase; got != payment.PhaseIdle {
		t.Fatalf("phase = %s, stale transport failure mutated a reset session", got)
	}
}

func TestChallengeOutcomeGuards(t *testing.T) {
	sess := New(&fakeGateway{}, testTargets)
	if err := sess.ReportChallengeOutcome(true, ""); !errors.Is(err, ErrNoChallenge) {
		t.Fatalf("ReportChallengeOutcome from idle = %v, want ErrNoChallenge", err)
	}
}

func TestSubscribeSeesTransitions(t *testing.T) {
	sess := New(&fakeGateway{}, testTargets)
	ch := sess.Subscribe()

	_ = sess.Submit(context.Background(), testCard, 6540)

	var phases []payment.Phase
	for len(phases) < 2 {
		select {
		case st := <-ch:
			phases = append(phases, st.Phase)
		case <-time.After(time.Second):
			t.Fatalf("saw %v, want submitting then resolved", phases)
		}
	}
	if phases[0] != payment.PhaseSubmitting || phases[1] != payment.PhaseResolved {
		t.Fatalf("phases = %v", phases)
	}
}

func TestManager(t *testing.T) {
	mgr := NewManager(&fakeGateway{}, testTargets)

	id, sess := mgr.Create()
	if id == "" || sess == nil {
		t.Fatal("Create returned empty session")
	}
	if got, ok := mgr.Get(id); !ok || got != sess {
		t.Fatal("Get did not return the created session")
	}
	if sess.targets.SuccessURL != testTargets.SuccessURL+"?sid="+id {
		t.Fatalf("success target = %q", sess.targets.SuccessURL)
	}

	mgr.Remove(id)
	if _, ok := mgr.Get(id); ok {
		t.Fatal("session still present after Remove")
	}
}
