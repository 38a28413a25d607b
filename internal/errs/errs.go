// Package errs defines the glycin-go error taxonomy: a single structured
// error type callers can switch on by Kind instead of string-matching.
package errs

import (
	"fmt"
	"runtime"
)

// Kind enumerates the error categories a loader operation can fail with.
type Kind int

const (
	Unknown Kind = iota
	UnknownFormat
	NoLoaderConfigured
	SandboxUnavailable
	SandboxSpawnFailed
	Protocol
	DecoderCrashed
	DecoderReported
	InvalidImage
	MemoryBudgetExceeded
	Cancelled
	Timeout
	IO
)

// Sub-kind qualifiers a caller can switch on alongside Kind, for the
// handful of Kinds spec.md itself subdivides (Protocol's
// version-mismatch vs. malformed-message vs. unsealed-memfd cases, and
// the decoder-reported failure category a crashed/misbehaving codec
// names in its own Error reply).
const (
	SubVersionMismatch = "version_mismatch"
	SubMalformed       = "malformed"
	SubUnsealedMemfd   = "unsealed_memfd"
	SubDecode          = "decode"
	SubUnsupported     = "unsupported"
)

func (k Kind) String() string {
	switch k {
	case UnknownFormat:
		return "unknown format"
	case NoLoaderConfigured:
		return "no loader configured"
	case SandboxUnavailable:
		return "sandbox unavailable"
	case SandboxSpawnFailed:
		return "sandbox spawn failed"
	case Protocol:
		return "protocol error"
	case DecoderCrashed:
		return "decoder crashed"
	case DecoderReported:
		return "decoder reported error"
	case InvalidImage:
		return "invalid image"
	case MemoryBudgetExceeded:
		return "memory budget exceeded"
	case Cancelled:
		return "cancelled"
	case Timeout:
		return "timeout"
	case IO:
		return "io error"
	default:
		return "unknown error"
	}
}

// Error is the structured error type returned by every exported operation.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
	// Sub further qualifies Kind for the handful of kinds that need it
	// (see the Sub* constants). Empty when Kind doesn't distinguish
	// subkinds.
	Sub    string
	caller string
}

func (e *Error) Error() string {
	prefix := e.Kind.String()
	if e.Sub != "" {
		prefix = fmt.Sprintf("%s(%s)", prefix, e.Sub)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Msg)
}

// Location returns the file:line the error was constructed at, for
// debugging — the textual source-location spec.md requires every error
// carry.
func (e *Error) Location() string {
	return e.caller
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, errs.New(kind, "")) match on Kind alone.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New constructs an Error of the given kind.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg, caller: caller()}
}

// Wrap constructs an Error of the given kind wrapping a lower-level cause.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err, caller: caller()}
}

// WithSub attaches a subkind qualifier and returns e for chaining, e.g.
// errs.New(errs.Protocol, "bad header").WithSub(errs.SubMalformed).
func (e *Error) WithSub(sub string) *Error {
	e.Sub = sub
	return e
}

// FromDecoderReport reconstructs the host-side error for a decoder's
// MsgError reply: Kind is always DecoderReported (the failure originated
// across the sandbox boundary, not in host code), Sub carries the
// decoder's own Kind so callers can still switch on it, and the
// decoder's source location is folded into Msg since it was captured in
// a different process's runtime.Caller.
func FromDecoderReport(decoderKind Kind, sub, msg, sourceLocation string) *Error {
	if sub == "" {
		sub = decoderKind.String()
	}
	if sourceLocation != "" {
		msg = fmt.Sprintf("%s (decoder: %s)", msg, sourceLocation)
	}
	return &Error{Kind: DecoderReported, Sub: sub, Msg: msg, caller: caller()}
}

// KindOf extracts the Kind from err, or Unknown if err isn't an *Error.
func KindOf(err error) Kind {
	var e *Error
	for err != nil {
		if as, ok := err.(*Error); ok {
			e = as
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	if e == nil {
		return Unknown
	}
	return e.Kind
}

func caller() string {
	_, file, line, ok := runtime.Caller(2)
	if !ok {
		return ""
	}
	return fmt.Sprintf("%s:%d", file, line)
}
