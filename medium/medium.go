// Package medium implements the thin contract BFCR's caller sits on
// top of for upstream byte supply and stream lookup: msgiter drives a
// Medium, never touches its backing storage directly, and treats
// RequestBytes results as valid only until the next RequestBytes call (the
// medium contract's core invariant).
//
// This generalizes perffile/buf.go's io.SectionReader-backed record
// reader (aclements/go-perf), which assumes one fixed, seekable backing
// file, into an interface a caller can also satisfy with an in-memory
// slice, a socket, or any other byte source msgiter has no business
// knowing about.
package medium

import "github.com/tracefmt/ctf/traceclass"

// Status is the result of a Medium operation that is not a hard error.
type Status int

const (
	// StatusOK means the operation completed and, for RequestBytes,
	// that at least one byte is available.
	StatusOK Status = iota
	// StatusEOF means no more bytes will ever be available from this
	// point (end of packet for an infinite-size packet, or end of
	// trace).
	StatusEOF
	// StatusAgain means no bytes are available right now but more may
	// arrive later (e.g. a live, non-blocking socket medium); the
	// caller should retry RequestBytes later with no change in state.
	StatusAgain
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEOF:
		return "eof"
	case StatusAgain:
		return "again"
	default:
		return "unknown"
	}
}

// StreamHandle is an opaque handle a medium hands back from
// BorrowStream; msgiter holds it for the lifetime of one stream's
// decoding but never dereferences it.
type StreamHandle interface{}

// Medium is the byte-supply and stream-lookup contract a message
// iterator decodes against. RequestBytes is the only operation every
// medium must support; Seek and SwitchPacket are optional (a medium
// that cannot support them returns ErrUnsupported) and BorrowStream is
// required only by traces with more than one stream class sharing a
// single byte source.
type Medium interface {
	// RequestBytes returns up to maxSize bytes starting at the
	// medium's current cursor. The returned slice remains valid and
	// unmodified until the next call to RequestBytes, Seek, or
	// SwitchPacket on this Medium. A short read (len(data) < maxSize)
	// with StatusOK is legal and does not imply EOF.
	RequestBytes(maxSize int) (data []byte, status Status, err error)

	// Seek moves the medium's cursor to byteOffset from the start of
	// the trace. Returns ErrUnsupported if this medium cannot seek.
	Seek(byteOffset int64) (Status, error)

	// SwitchPacket advances the medium to the start of the next
	// packet, discarding any unread bytes of the current one. Returns
	// ErrUnsupported if the medium has no notion of packet boundaries
	// distinct from its byte stream (the common case: iterator-level
	// packet switching is inferred from content_size/packet_size
	// fields instead, and this is a no-op).
	SwitchPacket() (Status, error)

	// BorrowStream returns the handle for the stream identified by sc
	// and streamID, or nil if this medium has only one stream and
	// ignores the identification. The iterator borrows the handle
	// without owning it; the medium remains responsible for its
	// lifetime.
	BorrowStream(sc *traceclass.StreamClass, streamID uint64) StreamHandle

	// CanSeekBeginning reports whether Seek(0) is meaningful on this
	// medium (msgiter.Iterator.CanSeekBeginning delegates here).
	CanSeekBeginning() bool
}

// ErrUnsupported is returned by Seek/SwitchPacket on a Medium that
// does not implement the optional operation.
type unsupportedError struct{ op string }

func (e *unsupportedError) Error() string { return "medium: " + e.op + " not supported" }

// ErrUnsupported constructs the error Seek/SwitchPacket return when a
// medium implementation does not offer that operation.
func ErrUnsupported(op string) error { return &unsupportedError{op: op} }

// IsUnsupported reports whether err (or something it wraps) was
// produced by ErrUnsupported, so a caller can treat an optional
// operation's absence as a no-op instead of a hard failure.
func IsUnsupported(err error) bool {
	for err != nil {
		if _, ok := err.(*unsupportedError); ok {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
