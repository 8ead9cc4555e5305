// Package errx provides the structured error taxonomy used across the
// extension: Transport, Protocol, Authentication, Server, TypeMapping, and
// Usage errors, plus the recyclability contract each kind carries (whether
// the connection that produced the error must be destroyed).
package errx

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies an error the way the connection layer must react to it.
type Kind int

const (
	// KindTransport covers socket errors, TLS failures, read/write
	// timeouts, and framing errors. Always fatal to the connection.
	KindTransport Kind = iota

	// KindProtocol covers token-parser violations, unexpected token
	// sequences, negotiated-parameter mismatches. Fatal to the connection.
	KindProtocol

	// KindAuthentication covers LOGIN7 rejection and federated-auth
	// token issues. Fatal to the connection; token expiry additionally
	// forces the pool factory to re-acquire a token before retrying.
	KindAuthentication

	// KindServer wraps a TDS ERROR/INFO token. Only fatal to the
	// connection when Severity >= 20 (see Error.Fatal).
	KindServer

	// KindTypeMapping covers an unsupported column type discovered
	// while binding. The connection stays healthy.
	KindTypeMapping

	// KindUsage covers caller misuse: acquire timeout, cancel timeout,
	// invalid filter pattern, conflicting DDL options. Never fatal to
	// the connection.
	KindUsage
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindProtocol:
		return "protocol"
	case KindAuthentication:
		return "authentication"
	case KindServer:
		return "server"
	case KindTypeMapping:
		return "type_mapping"
	case KindUsage:
		return "usage"
	default:
		return "unknown"
	}
}

// Error is the structured error type produced across the extension.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
	Fields  map[string]any

	// Server-token fields, populated only for KindServer.
	Number    int32
	State     byte
	Severity  byte
	Procedure string
	Line      int32
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.String())
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Kind == KindServer {
		fmt.Fprintf(&b, " (number=%d severity=%d state=%d)", e.Number, e.Severity, e.State)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap supports errors.Is/errors.As over the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithField attaches a context field and returns the receiver for chaining.
func (e *Error) WithField(key string, value any) *Error {
	if e.Fields == nil {
		e.Fields = make(map[string]any)
	}
	e.Fields[key] = value
	return e
}

// Fatal reports whether this error must destroy the connection that
// produced it rather than returning it to the pool. Per the taxonomy in
// §7: Transport, Protocol, and Authentication errors are always fatal;
// Server errors are fatal only at severity >= 20; TypeMapping and Usage
// errors never are.
func (e *Error) Fatal() bool {
	switch e.Kind {
	case KindTransport, KindProtocol, KindAuthentication:
		return true
	case KindServer:
		return e.Severity >= 20
	default:
		return false
	}
}

// Warning reports whether a Server-kind error is merely informational
// (severity <= 10). The token type it came from is not recorded.
func (e *Error) Warning() bool {
	return e.Kind == KindServer && e.Severity <= 10
}

// New builds a Kind/message error with no cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf builds a Kind/formatted-message error with no cause.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds a Kind/message error wrapping an existing cause.
func Wrap(cause error, kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// Wrapf builds a Kind/formatted-message error wrapping an existing cause.
func Wrapf(cause error, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// Server builds a KindServer error from TDS ERROR/INFO token fields.
func Server(number int32, state, severity byte, procedure string, line int32, message string) *Error {
	return &Error{
		Kind:      KindServer,
		Message:   message,
		Number:    number,
		State:     state,
		Severity:  severity,
		Procedure: procedure,
		Line:      line,
	}
}

// GetKind extracts the Kind from an error, defaulting to KindUsage when the
// error is not one of ours (a caller-facing error should never be
// ambiguous about its disposition).
func GetKind(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUsage
}

// IsFatal reports whether err, if one of ours, demands connection
// destruction. Non-errx errors are treated as fatal transport errors
// since they almost always originate from the net/tls layers.
func IsFatal(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Fatal()
	}
	return err != nil
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool { return errors.Is(err, target) }

// As finds the first error in err's chain that matches target.
func As(err error, target any) bool { return errors.As(err, target) }
