// Package ctf is the root of a Common Trace Format binary trace reader:
// it decodes TSDL metadata into a trace class graph (see the metadata
// package) and packed binary packets against that graph (see the
// msgiter package) into a timed sequence of trace messages.
//
// This file carries only the shared error taxonomy ("kind,
// not type name" classification); every other concern lives in its own
// subpackage.
package ctf

import "github.com/pkg/errors"

// Kind classifies why an operation failed, independent of which layer
// raised it — a caller that only needs to decide "retry", "abort this
// iterator", or "abort the whole trace" can switch on Kind instead of
// inspecting concrete error types.
type Kind int

const (
	KindUnknown Kind = iota
	// KindMedium means the underlying byte supply failed (I/O error
	// from a file-backed or other external medium).
	KindMedium
	// KindStructural means metadata violates a CTF invariant
	// (duplicate ids, unresolved name, untagged variant at an alias
	// site, incoherent byte orders). Fatal to opening the trace.
	KindStructural
	// KindDecode means BFCR or the message iterator observed an
	// impossible binary state (mid-byte byte-order change, negative
	// sequence length, a variant tag matching no range, an unaligned
	// packet switch). Fatal to the current iterator only.
	KindDecode
	// KindCallback means a caller-supplied callback returned an error;
	// it is surfaced unchanged, wrapped only with Kind.
	KindCallback
	// KindIncompleteMetadata means the semantic pass could not finish
	// because the trace's default byte order or clock list is not yet
	// known; the caller should supply more TSDL and retry.
	KindIncompleteMetadata
)

func (k Kind) String() string {
	switch k {
	case KindMedium:
		return "medium"
	case KindStructural:
		return "structural"
	case KindDecode:
		return "decode"
	case KindCallback:
		return "callback"
	case KindIncompleteMetadata:
		return "incomplete-metadata"
	default:
		return "unknown"
	}
}

// Error pairs a Kind with the wrapped cause that produced it, so
// errors.Cause (via github.com/pkg/errors) still recovers the original
// error while callers that only care about the taxonomy can type-assert
// for *Error and switch on Kind.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string { return e.Kind.String() + ": " + e.cause.Error() }

func (e *Error) Cause() error { return e.cause }

func (e *Error) Unwrap() error { return e.cause }

// Wrap annotates cause with a Kind, attaching msg as additional context
// the way every layer of this reader attaches its own state (BFCR
// state, current field class, bit cursor) before the error reaches a
// caller.
func Wrap(kind Kind, cause error, msg string) error {
	if cause == nil {
		return nil
	}
	return &Error{Kind: kind, cause: errors.WithMessage(cause, msg)}
}

// KindOf reports the Kind of err if it (or something it wraps) is a
// *Error, or KindUnknown otherwise.
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
		return KindUnknown
	}
	return e.Kind
}
