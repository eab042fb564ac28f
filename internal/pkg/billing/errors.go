package billing

import (
	"errors"
	"fmt"
)

// Kind groups error codes by how a caller should recover.
type Kind int

const (
	KindInternal Kind = iota
	KindNotFound
	KindConflict
	KindPrecondition
)

// Error is a typed, recoverable billing outcome. Two errors match under
// errors.Is when their codes are equal, so wrapped copies still match the
// package sentinels.
type Error struct {
	Code    string
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrPlanNotFound         = &Error{Code: "PLAN_NOT_FOUND", Kind: KindNotFound, Message: "plan not found"}
	ErrSubscriptionNotFound = &Error{Code: "SUBSCRIPTION_NOT_FOUND", Kind: KindNotFound, Message: "subscription not found"}
	ErrPaymentNotFound      = &Error{Code: "PAYMENT_NOT_FOUND", Kind: KindNotFound, Message: "manual payment not found"}
	ErrTenantNotFound       = &Error{Code: "TENANT_NOT_FOUND", Kind: KindNotFound, Message: "tenant not found"}
	ErrAlreadyReviewed      = &Error{Code: "ALREADY_REVIEWED", Kind: KindConflict, Message: "manual payment was already reviewed"}
	ErrSubscriptionConflict = &Error{Code: "SUBSCRIPTION_CONFLICT", Kind: KindConflict, Message: "subscription id belongs to another tenant"}
	ErrUsageLimitReached    = &Error{Code: "USAGE_LIMIT_REACHED", Kind: KindConflict, Message: "ai usage limit reached"}
	ErrUsageContended       = &Error{Code: "USAGE_CONTENDED", Kind: KindConflict, Message: "usage counter kept changing, retry"}
	ErrInvalidSubmission    = &Error{Code: "INVALID_SUBMISSION", Kind: KindPrecondition, Message: "manual payment submission is incomplete"}
	ErrInvalidEvent         = &Error{Code: "INVALID_EVENT", Kind: KindPrecondition, Message: "billing event is malformed"}
	ErrInvariantViolation   = &Error{Code: "INVARIANT_VIOLATION", Kind: KindInternal, Message: "billing invariant violated"}
)

// withDetail returns a copy of base carrying extra context.
func withDetail(base *Error, format string, args ...interface{}) *Error {
	return &Error{
		Code:    base.Code,
		Kind:    base.Kind,
		Message: fmt.Sprintf("%s (%s)", base.Message, fmt.Sprintf(format, args...)),
	}
}

// wrapCause returns a copy of base wrapping err.
func wrapCause(base *Error, err error) *Error {
	return &Error{Code: base.Code, Kind: base.Kind, Message: base.Message, Err: err}
}

// KindOf returns the recovery kind of err; untyped errors are internal.
func KindOf(err error) Kind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindInternal
}

// CodeOf returns the billing error code of err, or "INTERNAL".
func CodeOf(err error) string {
	var be *Error
	if errors.As(err, &be) {
		return be.Code
	}
	return "INTERNAL"
}

// IsNotFound reports whether err is a recoverable not-found outcome.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsConflict reports whether err signals a lost race (e.g. ALREADY_REVIEWED).
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}
