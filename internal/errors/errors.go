// Package errors classifies the failures of the session recording and
// recovery subsystem so callers can decide how to react without string
// matching.
package errors

import (
	"errors"
	"fmt"
)

// Kind is the class of a failure.
type Kind string

const (
	// KindIO covers file create, append, sync and rename failures.
	KindIO Kind = "io_error"
	// KindFormat means a log line or SessionInfo file is not valid structured data.
	KindFormat Kind = "format_error"
	// KindRecoveryAmbiguity means replay could not determine a coherent resume point.
	KindRecoveryAmbiguity Kind = "recovery_ambiguity"
	// KindSessionClosed means the writer was already finalized or closed.
	KindSessionClosed Kind = "session_closed"
)

// Error is a classified failure. The writer reports LogErrors of kind
// KindIO or KindSessionClosed; the reconstructor reports RecoveryErrors of
// kind KindFormat, KindIO or KindRecoveryAmbiguity.
type Error struct {
	Kind  Kind
	Op    string
	Path  string
	Cause error
}

func (e *Error) Error() string {
	msg := e.Op
	if e.Path != "" {
		msg += " " + e.Path
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, msg)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New returns a classified error. A nil cause is allowed.
func New(kind Kind, op, path string, cause error) error {
	return &Error{Kind: kind, Op: op, Path: path, Cause: cause}
}

// IO wraps cause as a KindIO error. It returns nil for a nil cause.
func IO(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return New(KindIO, op, path, cause)
}

// Format wraps cause as a KindFormat error. It returns nil for a nil cause.
func Format(op, path string, cause error) error {
	if cause == nil {
		return nil
	}
	return New(KindFormat, op, path, cause)
}

// Ambiguity builds a KindRecoveryAmbiguity error from a message.
func Ambiguity(path, format string, args ...any) error {
	return New(KindRecoveryAmbiguity, "replay", path, fmt.Errorf(format, args...))
}

// KindOf returns the kind of the first classified error in err's chain, or
// "" if there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func IsIO(err error) bool        { return KindOf(err) == KindIO }
func IsFormat(err error) bool    { return KindOf(err) == KindFormat }
func IsAmbiguity(err error) bool { return KindOf(err) == KindRecoveryAmbiguity }
func IsClosed(err error) bool    { return KindOf(err) == KindSessionClosed }
