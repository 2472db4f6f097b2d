// Package challenge decides how a 3DS redirect ended. The gateway tells us
// the outcome only through which URL the cardholder's browser lands on, so
// the match targets are injected configuration, never orchestrator logic.
package challenge

import "strings"

// Result classifies a navigated URL.
type Result int

const (
	// Ignore means the navigation is neither terminal URL; keep waiting.
	Ignore Result = iota
	// Success means the challenge completed and the payment may proceed.
	Success
	// Failure means the challenge was declined or abandoned.
	Failure
)

// Matcher matches final navigation URLs against the configured success and
// failure targets. A navigated URL counts as a match when it extends the
// target (query parameters appended by the gateway are expected).
type Matcher struct {
	SuccessURL string
	FailureURL string
}

// Match classifies navigated. Matching is prefix-based and checks success
// first; an empty target never matches.
func (m Matcher) Match(navigated string) Result {
	switch {
	case m.SuccessURL != "" && strings.HasPrefix(navigated, m.SuccessURL):
		return Success
	case m.FailureURL != "" && strings.HasPrefix(navigated, m.FailureURL):
		return Failure
	default:
		return Ignore
	}
}
