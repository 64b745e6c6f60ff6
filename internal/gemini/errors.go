package gemini

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind partitions gateway failures by what the caller can do about
// them: top up credentials, wait out a quota window, or fix the request.
type ErrorKind string

const (
	KindRateLimited      ErrorKind = "rate_limited"
	KindAuthOrPermission ErrorKind = "auth_or_permission"
	KindEmptyResult      ErrorKind = "empty_result"
	KindTimedOut         ErrorKind = "timed_out"
	KindTransport        ErrorKind = "transport"
)

type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("gemini: %s: status=%d %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("gemini: %s: %s", e.Kind, e.Message)
}

// IsKind reports whether err is a gateway error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var ge *Error
	return errors.As(err, &ge) && ge.Kind == kind
}

// apiError classifies a non-success upstream response by status and body.
func apiError(status int, body string) *Error {
	switch {
	case status == 429 || strings.Contains(body, "RESOURCE_EXHAUSTED"):
		return &Error{Kind: KindRateLimited, Status: status, Message: body}
	case status == 401 || status == 403 || strings.Contains(body, "Requested entity was not found"):
		return &Error{Kind: KindAuthOrPermission, Status: status, Message: body}
	default:
		return &Error{Kind: KindTransport, Status: status, Message: body}
	}
}

// retryable reports whether a failure is a rate-limit/quota condition. The
// substring check covers errors from clients that do not produce *Error.
func retryable(err error) bool {
	if err == nil {
		return false
	}
	if IsKind(err, KindRateLimited) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") || strings.Contains(msg, "RESOURCE_EXHAUSTED")
}
