package gateway

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// GenericFailure is the last-resort reason when a response carries nothing
// usable at all.
const GenericFailure = "Payment failed"

// StatusFallback is the generic reason for a response whose status was
// present but unrecognized.
func StatusFallback(status string) string {
	return fmt.Sprintf("Payment failed. Status: %s", status)
}

// HTTPFallback is the generic reason for a non-2xx response whose body gave
// nothing better.
func HTTPFallback(statusCode int) string {
	return fmt.Sprintf("Payment failed with status %d", statusCode)
}

// FailureReason extracts one human-readable failure string from a gateway
// response. The first populated field wins, in order: response_summary,
// decline_reason, message, response_code, error_type, the error codes joined
// with ", ", then fallback. When both a summary-like field and a response
// code are present the two are composed as "code: summary".
func FailureReason(r Response, fallback string) string {
	summary := firstNonEmpty(r.ResponseSummary, r.DeclineReason, r.Message)
	if r.ResponseCode != "" && summary != "" {
		return r.ResponseCode + ": " + summary
	}
	if s := firstNonEmpty(summary, r.ResponseCode, r.ErrorType, strings.Join(r.ErrorCodes, ", ")); s != "" {
		return s
	}
	if fallback != "" {
		return fallback
	}
	return GenericFailure
}

// ActionReason extracts a failure string from a payment action, with the
// same "code: summary" composition. Unlike FailureReason it may return ""
// when the action carries nothing; the caller falls through to the next
// source in its precedence chain.
func ActionReason(a Action) string {
	summary := firstNonEmpty(a.ResponseSummary, a.DeclineReason, a.Message)
	if a.ResponseCode != "" && summary != "" {
		return a.ResponseCode + ": " + summary
	}
	return firstNonEmpty(summary, a.ResponseCode)
}

var messagePattern = regexp.MustCompile(`"message"\s*:\s*"([^"]+)"`)

// ReasonFromBody normalizes the body of a non-2xx response. It parses the
// body as a Response when possible, scrapes a bare "message" field out of
// bodies that are not valid JSON, and otherwise falls back to a generic
// string carrying the HTTP status. It never fails.
func ReasonFromBody(body []byte, statusCode int) string {
	if len(body) > 0 {
		var r Response
		if err := json.Unmarshal(body, &r); err == nil {
			return FailureReason(r, HTTPFallback(statusCode))
		}
		if m := messagePattern.FindSubmatch(body); m != nil {
			return string(m[1])
		}
	}
	return HTTPFallback(statusCode)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
