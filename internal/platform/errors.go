package platform

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ErrorKind is the semantic class of a failed platform call.
type ErrorKind int

const (
	Unknown ErrorKind = iota
	RateLimited
	AlreadyApplied
	PlanRestricted
	InvalidInput
)

func (k ErrorKind) String() string {
	switch k {
	case RateLimited:
		return "rate_limited"
	case AlreadyApplied:
		return "already_applied"
	case PlanRestricted:
		return "plan_restricted"
	case InvalidInput:
		return "invalid_input"
	default:
		return "unknown"
	}
}

// Error is a non-2xx response from a platform API.
type Error struct {
	Platform string
	Op       string
	Status   int
	Code     string
	Message  string
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: status %d (%s): %s", e.Platform, e.Op, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%s %s: status %d: %s", e.Platform, e.Op, e.Status, msg)
}

var (
	rateLimitHints = []string{"rate limit", "too many requests"}
	alreadyHints   = []string{"already", "duplicate"}
	planHints      = []string{
		"paid plan", "upgrade", "subscription", "payment required",
		"subset of", "access level", "not available on your plan", "requires a plan",
	}
)

// Classify maps err to an ErrorKind. Errors that are not *Error are
// classified from their message alone.
func Classify(err error) ErrorKind {
	if err == nil {
		return Unknown
	}
	status := 0
	msg := err.Error()
	var pe *Error
	if errors.As(err, &pe) {
		status = pe.Status
		msg = pe.Code + " " + pe.Message
	}
	msg = strings.ToLower(msg)
	switch {
	case status == http.StatusTooManyRequests || containsAny(msg, rateLimitHints):
		return RateLimited
	case containsAny(msg, alreadyHints):
		return AlreadyApplied
	case status == http.StatusPaymentRequired || containsAny(msg, planHints):
		return PlanRestricted
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity:
		return InvalidInput
	default:
		return Unknown
	}
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}
