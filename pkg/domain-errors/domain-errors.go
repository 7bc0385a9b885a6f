// Package domainerrors carries the codes the login gate branches on. Services
// and stores return them; only httputil maps them to status codes.
package domainerrors

import "errors"

// Code names a failure category in domain terms.
type Code string

const (
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"

	CodeRateLimited      Code = "rate_limited"      // scope locked
	CodeCaptchaRequired  Code = "captcha_required"  // no token where one is needed
	CodeCaptchaFailed    Code = "captcha_failed"    // token rejected or unverifiable
	CodeStoreUnavailable Code = "store_unavailable" // counter or token store unreachable
	CodeUpstream         Code = "upstream_error"    // identity provider unreachable
)

// Error is a coded failure. Message is safe to show to clients; Err is not.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error with the same code, so errors.Is(err, &Error{Code: c})
// works through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Code == t.Code
}

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap attaches msg to err. A code already present in err's chain wins over
// code, so a store outage stays a store outage after the service wraps it.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		code = existing.Code
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode reports whether the first *Error in err's chain carries code.
func HasCode(err error, code Code) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}

// StoreUnavailable marks a persistence failure so the eligibility path can
// fail open on it.
func StoreUnavailable(err error, msg string) error {
	return &Error{Code: CodeStoreUnavailable, Message: msg, Err: err}
}
