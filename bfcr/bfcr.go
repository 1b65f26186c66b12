// Package bfcr implements the Binary Field Class Reader: a restartable, event-driven decoder that walks a
// fieldclass.Class tree against a bit-addressable bitbuf.Buf, emitting
// callbacks for each scalar value and each compound boundary, and
// suspending cleanly whenever the current buffer runs out before a
// class finishes decoding.
//
// This generalizes the flat, single-pass struct decoding of
// perffile/bufdecoder.go (aclements/go-perf) — which assumes every
// field's bytes are already fully buffered — into a decoder that can be
// fed one partial buffer at a time and resumes mid-scalar.
package bfcr

import (
	"github.com/pkg/errors"
	"github.com/tracefmt/ctf/bitbuf"
	"github.com/tracefmt/ctf/fieldclass"
)

// Status is the result of one Start/Continue call.
type Status int

const (
	// StatusOK means decoding of the requested root class completed.
	StatusOK Status = iota
	// StatusEOF means the buffer ran out before the root class
	// finished; call Continue with more data to resume.
	StatusEOF
	// StatusError means decoding failed; the Reader must not be reused.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusEOF:
		return "eof"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// Callbacks is the capability record BFCR calls into while decoding, in
// place of materializing a message tree per packet. Scalar callbacks
// receive the decoded value and the fieldclass.Class it came from;
// Sequence and Variant classes query the caller (who owns the
// stored-values table) for their dynamic length/selection rather than
// BFCR knowing about stored values itself.
type Callbacks interface {
	UnsignedInt(v uint64, class *fieldclass.Class) error
	SignedInt(v int64, class *fieldclass.Class) error
	Float(v float64, class *fieldclass.Class) error

	StringBegin(class *fieldclass.Class) error
	StringFragment(data []byte, class *fieldclass.Class) error
	StringEnd(class *fieldclass.Class) error

	CompoundBegin(class *fieldclass.Class) error
	CompoundEnd(class *fieldclass.Class) error

	// SequenceLength must return the already-resolved length of a
	// Sequence class (read from the stored-values table), or an error
	// if the length is unavailable or negative.
	SequenceLength(class *fieldclass.Class) (int64, error)

	// VariantSelectedClass must return the Class of the option
	// selected by the Variant's tag value, or an error if the tag
	// matches no range.
	VariantSelectedClass(class *fieldclass.Class) (*fieldclass.Class, error)
}

type state int

const (
	stateNextField state = iota
	stateAlignBasic
	stateAlignCompound
	stateReadBasicBegin
	stateReadBasicContinue
	stateReadString
	stateReadStringContinue
	stateReadTextArray
	stateDone
)

// frameKind distinguishes how a stack frame enumerates its children.
type frameKind int

const (
	frameRoot frameKind = iota
	frameStruct
	frameArray
	frameSequence
	frameVariant
	// frameText represents a static array or sequence whose is_text
	// flag is set: rather than iterating element by element, BFCR
	// reads it as a raw byte run.
	frameText
)

type frame struct {
	kind  frameKind
	self  *fieldclass.Class // the compound class itself; nil for frameRoot
	st    *fieldclass.Struct
	elem  *fieldclass.Class // array/sequence element, or the variant's selected class

	numChildren int
	childIndex  int

	// textRemaining/textSawNUL track a frameText frame's raw byte scan.
	textRemaining int
	textSawNUL    bool
}

func (f *frame) child(i int) *fieldclass.Class {
	switch f.kind {
	case frameStruct:
		return f.st.Members[i].Class
	case frameArray, frameSequence, frameVariant, frameRoot:
		return f.elem
	default:
		return nil
	}
}

// Reader is a BFCR instance. It is reused across Start calls (one per
// root class decoded) the way a single perffile.Records reuses its read
// buffer across records.
type Reader struct {
	cb   Callbacks
	root *fieldclass.Class

	buf    bitbuf.Buf
	stitch bitbuf.Stitch

	state state
	stack []frame

	// pending is the basic class currently being read in
	// AlignBasic/ReadBasicBegin/ReadBasicContinue.
	pending *fieldclass.Class

	lastByteOrder     bitbuf.ByteOrder
	haveLastByteOrder bool
}

// New creates an unstarted Reader.
func New() *Reader {
	return &Reader{}
}

// Start resets the reader and begins decoding root from buf, which
// begins at bit offset offsetBits and whose first bit is at
// packetOffsetBits within the overall packet.
func (r *Reader) Start(root *fieldclass.Class, cb Callbacks, buf []byte, offsetBits, packetOffsetBits int64) (int64, Status, error) {
	r.cb = cb
	r.root = root
	r.buf.Reset(buf, offsetBits, packetOffsetBits)
	r.state = stateNextField
	r.stack = r.stack[:0]
	r.stack = append(r.stack, frame{kind: frameRoot, elem: root, numChildren: 1})
	r.pending = nil
	r.lastByteOrder = bitbuf.LittleEndian
	r.haveLastByteOrder = false
	return r.run()
}

// Continue resumes decoding after a StatusEOF suspension, with buf
// being the next contiguous chunk of bytes from the medium.
func (r *Reader) Continue(buf []byte) (int64, Status, error) {
	if r.state == stateDone {
		return 0, StatusOK, nil
	}
	packetOffset := r.buf.PacketOffsetBits()
	r.buf.Reset(buf, 0, packetOffset)
	return r.run()
}

// run drives the state machine until it suspends (StatusEOF), finishes
// (StatusOK), or fails (StatusError). It returns the number of bits
// consumed from the buffer passed to the most recent Start/Continue
// call.
func (r *Reader) run() (int64, Status, error) {
	startCursor := r.buf.CursorBits()
	for {
		switch r.state {
		case stateDone:
			return r.buf.CursorBits() - startCursor, StatusOK, nil

		case stateNextField:
			status, err := r.nextField()
			if err != nil {
				r.state = stateDone
				return r.buf.CursorBits() - startCursor, StatusError, err
			}
			if status == StatusOK && r.state == stateDone {
				return r.buf.CursorBits() - startCursor, StatusOK, nil
			}
			// nextField never suspends; loop to the state it chose.

		case stateAlignBasic:
			align := int64(r.pending.Alignment())
			if err := r.buf.AlignTo(align); err != nil {
				// The rest of this buffer is padding: consume it so
				// Continue resumes at the right packet offset.
				r.buf.Skip(r.buf.Len())
				return r.buf.CursorBits() - startCursor, StatusEOF, nil
			}
			r.state = stateReadBasicBegin

		case stateAlignCompound:
			top := &r.stack[len(r.stack)-1]
			align := int64(top.self.Alignment())
			if err := r.buf.AlignTo(align); err != nil {
				r.buf.Skip(r.buf.Len())
				return r.buf.CursorBits() - startCursor, StatusEOF, nil
			}
			if top.kind == frameText {
				r.state = stateReadTextArray
			} else {
				r.state = stateNextField
			}

		case stateReadBasicBegin:
			status, err := r.readBasicBegin()
			if err != nil {
				r.state = stateDone
				return r.buf.CursorBits() - startCursor, StatusError, err
			}
			if status == StatusEOF {
				return r.buf.CursorBits() - startCursor, StatusEOF, nil
			}

		case stateReadBasicContinue:
			status, err := r.readBasicContinue()
			if err != nil {
				r.state = stateDone
				return r.buf.CursorBits() - startCursor, StatusError, err
			}
			if status == StatusEOF {
				return r.buf.CursorBits() - startCursor, StatusEOF, nil
			}

		case stateReadString, stateReadStringContinue:
			status, err := r.readString()
			if err != nil {
				r.state = stateDone
				return r.buf.CursorBits() - startCursor, StatusError, err
			}
			if status == StatusEOF {
				return r.buf.CursorBits() - startCursor, StatusEOF, nil
			}

		case stateReadTextArray:
			status, err := r.readTextArray()
			if err != nil {
				r.state = stateDone
				return r.buf.CursorBits() - startCursor, StatusError, err
			}
			if status == StatusEOF {
				return r.buf.CursorBits() - startCursor, StatusEOF, nil
			}
		}
	}
}

// nextField pops finished frames (firing CompoundEnd), then picks the
// next child of the new top frame and transitions to aligning it.
func (r *Reader) nextField() (Status, error) {
	for {
		if len(r.stack) == 0 {
			r.state = stateDone
			return StatusOK, nil
		}
		top := &r.stack[len(r.stack)-1]
		if top.childIndex >= top.numChildren {
			r.stack = r.stack[:len(r.stack)-1]
			if top.kind != frameRoot {
				if err := r.cb.CompoundEnd(top.self); err != nil {
					return StatusError, errors.Wrap(err, "compound_end callback")
				}
			}
			continue
		}

		child := top.child(top.childIndex)
		if child.IsCompound() {
			if err := r.cb.CompoundBegin(child); err != nil {
				return StatusError, errors.Wrap(err, "compound_begin callback")
			}
			nf, err := r.buildFrame(child)
			if err != nil {
				return StatusError, err
			}
			r.stack = append(r.stack, nf)
			if nf.kind == frameText {
				if err := r.cb.StringBegin(child); err != nil {
					return StatusError, errors.Wrap(err, "string_begin callback")
				}
				r.haveLastByteOrder = false
			}
			r.state = stateAlignCompound
		} else {
			r.pending = child
			r.state = stateAlignBasic
		}
		return StatusOK, nil
	}
}

// buildFrame constructs the stack frame for a compound class just
// entered, resolving a Sequence's length or a Variant's selected option
// via the caller's callbacks.
func (r *Reader) buildFrame(c *fieldclass.Class) (frame, error) {
	switch c.Kind {
	case fieldclass.KindStruct:
		return frame{kind: frameStruct, self: c, st: c.Struct, numChildren: len(c.Struct.Members)}, nil

	case fieldclass.KindStaticArray:
		if c.StaticArray.IsText {
			return frame{kind: frameText, self: c, numChildren: c.StaticArray.Length, textRemaining: c.StaticArray.Length}, nil
		}
		return frame{kind: frameArray, self: c, elem: c.StaticArray.Element, numChildren: c.StaticArray.Length}, nil

	case fieldclass.KindSequence:
		n, err := r.cb.SequenceLength(c)
		if err != nil {
			return frame{}, errors.Wrap(err, "get_sequence_length callback")
		}
		if n < 0 {
			return frame{}, errors.Errorf("sequence length %d is negative", n)
		}
		if c.Sequence.IsText {
			return frame{kind: frameText, self: c, numChildren: int(n), textRemaining: int(n)}, nil
		}
		return frame{kind: frameSequence, self: c, elem: c.Sequence.Element, numChildren: int(n)}, nil

	case fieldclass.KindVariant:
		sel, err := r.cb.VariantSelectedClass(c)
		if err != nil {
			return frame{}, errors.Wrap(err, "borrow_variant_selected_class callback")
		}
		if sel == nil {
			return frame{}, errors.New("variant tag value matched no option")
		}
		return frame{kind: frameVariant, self: c, elem: sel, numChildren: 1}, nil

	default:
		return frame{}, errors.Errorf("internal invariant violated: %v is not compound", c.Kind)
	}
}

// finishChild advances the parent frame's childIndex after a basic
// field (or a just-popped compound) completes.
func (r *Reader) finishChild() {
	top := &r.stack[len(r.stack)-1]
	top.childIndex++
}

func classOrder(c *fieldclass.Class) bitbuf.ByteOrder {
	switch c.Kind {
	case fieldclass.KindInt:
		return c.Int.Order
	case fieldclass.KindEnum:
		return c.Enum.Base.Order
	case fieldclass.KindFloat:
		return c.Float.Order
	default:
		return bitbuf.LittleEndian
	}
}

// checkByteOrderContinuity enforces a continuity rule: two
// consecutive basic fields whose shared boundary is not byte-aligned
// must agree on byte order.
func (r *Reader) checkByteOrderContinuity(order bitbuf.ByteOrder) error {
	if r.buf.PacketOffsetBits()%8 == 0 {
		return nil
	}
	if r.haveLastByteOrder && r.lastByteOrder != order {
		return errors.Errorf("byte-order continuity violated at mid-byte boundary (bit %d): %v after %v",
			r.buf.PacketOffsetBits(), order, r.lastByteOrder)
	}
	return nil
}
