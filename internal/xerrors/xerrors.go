// Package xerrors defines the error taxonomy shared across the preview
// pipeline so callers can distinguish failure kinds with errors.Is/As
// instead of matching on message text.
package xerrors

import (
	"errors"
	"fmt"
)

// Kind identifies one of the error categories from the propagation policy.
type Kind string

// Error kinds recognized by the preview pipeline.
const (
	InvalidInput            Kind = "invalid-input"
	ResourceMissing         Kind = "resource-missing"
	SubprocessFailure       Kind = "subprocess-failure"
	ProtocolFailure         Kind = "protocol-failure"
	TransientCaptureFailure Kind = "transient-capture-failure"
	NetworkWriteFailure     Kind = "network-write-failure"
	UnsupportedFormat       Kind = "unsupported-format"
)

// Error wraps an underlying cause with a Kind so it can be classified by
// callers without string matching.
type Error struct {
	Kind   Kind
	Detail string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		if e.Detail != "" {
			return fmt.Sprintf("%s: %s: %v", e.Kind, e.Detail, e.Err)
		}
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New creates a Kind-tagged error with a detail message.
func New(kind Kind, detail string) error {
	return &Error{Kind: kind, Detail: detail}
}

// Wrap tags an existing error with a Kind, preserving it for errors.Is/As.
func Wrap(kind Kind, detail string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Detail: detail, Err: err}
}

// Is reports whether err (or anything it wraps) carries the given Kind.
func Is(err error, kind Kind) bool {
	var xerr *Error
	if errors.As(err, &xerr) {
		return xerr.Kind == kind
	}
	return false
}
