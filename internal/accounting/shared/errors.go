package shared

import (
	"errors"
	"fmt"
)

// Kind categorizes ledger failures independently of where they are raised.
type Kind string

const (
	KindMalformedLine       Kind = "MALFORMED_LINE"
	KindCurrencyMismatch    Kind = "CURRENCY_MISMATCH"
	KindInvalidAccount      Kind = "INVALID_ACCOUNT"
	KindUnbalanced          Kind = "UNBALANCED"
	KindInvalidState        Kind = "INVALID_STATE"
	KindTemplateParse       Kind = "TEMPLATE_PARSE_ERROR"
	KindMissingContextValue Kind = "MISSING_CONTEXT_VALUE"
	KindInvalidContextValue Kind = "INVALID_CONTEXT_VALUE"
	KindNotFound            Kind = "NOT_FOUND"
	KindDuplicateReference  Kind = "DUPLICATE_REFERENCE"
	KindInvalidDefinition   Kind = "INVALID_DEFINITION"
)

// NoLine marks an error that is not tied to a specific line.
const NoLine = -1

// Error is a categorized ledger error. Line is the 0-based offending line
// index (NoLine when not applicable) and Key names the offending field or
// context key.
type Error struct {
	Kind    Kind
	Line    int
	Key     string
	Message string
}

// Error formats the error as "accounting: KIND: message (line n, key k)".
func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	switch {
	case e.Line >= 0 && e.Key != "":
		return fmt.Sprintf("accounting: %s: %s (line %d, key %s)", e.Kind, msg, e.Line, e.Key)
	case e.Line >= 0:
		return fmt.Sprintf("accounting: %s: %s (line %d)", e.Kind, msg, e.Line)
	case e.Key != "":
		return fmt.Sprintf("accounting: %s: %s (key %s)", e.Kind, msg, e.Key)
	default:
		return fmt.Sprintf("accounting: %s: %s", e.Kind, msg)
	}
}

// Is matches any *Error carrying the same Kind, so sentinels below work with
// errors.Is regardless of line or key detail.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	// ErrMalformedLine indicates a line with neither or both sides set.
	ErrMalformedLine = &Error{Kind: KindMalformedLine, Line: NoLine, Message: "line must carry exactly one of debit or credit"}
	// ErrCurrencyMismatch indicates line accounts spanning several currencies.
	ErrCurrencyMismatch = &Error{Kind: KindCurrencyMismatch, Line: NoLine, Message: "accounts must share one currency"}
	// ErrInvalidAccount indicates a missing or non-postable account.
	ErrInvalidAccount = &Error{Kind: KindInvalidAccount, Line: NoLine, Message: "account cannot receive postings"}
	// ErrUnbalanced indicates debit != credit.
	ErrUnbalanced = &Error{Kind: KindUnbalanced, Line: NoLine, Message: "journal lines must balance"}
	// ErrInvalidState indicates an illegal status transition.
	ErrInvalidState = &Error{Kind: KindInvalidState, Line: NoLine, Message: "invalid status transition"}
	// ErrTemplateParse indicates a malformed compound journal template.
	ErrTemplateParse = &Error{Kind: KindTemplateParse, Line: NoLine, Message: "template cannot be parsed"}
	// ErrMissingContextValue indicates a context rule key absent at execution.
	ErrMissingContextValue = &Error{Kind: KindMissingContextValue, Line: NoLine, Message: "context value missing"}
	// ErrInvalidContextValue indicates a context value that is not an amount.
	ErrInvalidContextValue = &Error{Kind: KindInvalidContextValue, Line: NoLine, Message: "context value is not a monetary amount"}
	// ErrNotFound indicates a missing entity.
	ErrNotFound = &Error{Kind: KindNotFound, Line: NoLine, Message: "not found"}
	// ErrDuplicateReference indicates a reference already used by a live entry.
	ErrDuplicateReference = &Error{Kind: KindDuplicateReference, Line: NoLine, Message: "reference already posted"}
	// ErrInvalidDefinition indicates a compound definition with an unusable schedule.
	ErrInvalidDefinition = &Error{Kind: KindInvalidDefinition, Line: NoLine, Message: "invalid compound definition"}
)

// Errorf builds a categorized error without line detail.
func Errorf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Line: NoLine, Message: fmt.Sprintf(format, args...)}
}

// LineErrorf builds a categorized error pointing at a line.
func LineErrorf(kind Kind, line int, format string, args ...any) *Error {
	return &Error{Kind: kind, Line: line, Message: fmt.Sprintf(format, args...)}
}

// KeyErrorf builds a categorized error pointing at a field or context key.
func KeyErrorf(kind Kind, line int, key, format string, args ...any) *Error {
	return &Error{Kind: kind, Line: line, Key: key, Message: fmt.Sprintf(format, args...)}
}

// WithLine returns a copy of err relocated to line when err is categorized.
func WithLine(err error, line int) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	cp := *e
	cp.Line = line
	return &cp
}

// KindOf extracts the category of err, or "" for uncategorized errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
