package bfcr

import (
	"github.com/pkg/errors"
	"github.com/tracefmt/ctf/bitbuf"
	"github.com/tracefmt/ctf/fieldclass"
)

// readBasicBegin attempts to decode r.pending (an Int, Enum, Float, or
// String class) from the current position. Strings are dispatched to
// the dedicated string-scanning states since their length isn't known
// up front.
func (r *Reader) readBasicBegin() (Status, error) {
	class := r.pending

	if class.Kind == fieldclass.KindString {
		if err := r.cb.StringBegin(class); err != nil {
			return StatusError, errors.Wrap(err, "string_begin callback")
		}
		r.haveLastByteOrder = false // strings force byte alignment, reset continuity tracking
		r.state = stateReadString
		return StatusOK, nil
	}

	bitLen := class.BitSize()
	if bitLen <= 0 || bitLen > 64 {
		return StatusError, errors.Errorf("unsupported scalar bit size %d for %v", bitLen, class.Kind)
	}
	if class.Kind == fieldclass.KindFloat && bitLen != 32 && bitLen != 64 {
		return StatusError, errors.Errorf("unsupported float size %d", bitLen)
	}

	order := classOrder(class)
	if err := r.checkByteOrderContinuity(order); err != nil {
		return StatusError, err
	}

	if int64(bitLen) <= r.buf.Len() {
		raw, err := r.buf.ReadBits(bitLen, order)
		if err != nil {
			return StatusError, errors.Wrap(err, "reading basic field")
		}
		r.lastByteOrder = order
		r.haveLastByteOrder = true
		if err := r.fireScalar(class, raw); err != nil {
			return StatusError, err
		}
		r.finishChild()
		r.state = stateNextField
		return StatusOK, nil
	}

	// Scalar straddles the end of this buffer: stitch it.
	tail, off := r.buf.TailBytes()
	r.stitch.Reset(off)
	need := r.stitch.NeededBytes(bitLen)
	if need > len(tail) {
		need = len(tail)
	}
	n := r.stitch.Append(tail[:need])
	r.buf.Skip(int64(n)*8 - int64(off))
	r.lastByteOrder = order
	r.haveLastByteOrder = true
	r.state = stateReadBasicContinue
	return StatusEOF, nil
}

// readBasicContinue resumes a scalar read that straddled a refill
// boundary, using whatever new bytes the current buffer holds.
func (r *Reader) readBasicContinue() (Status, error) {
	class := r.pending
	bitLen := class.BitSize()
	order := classOrder(class)

	if !r.stitch.Ready(bitLen) {
		tail, _ := r.buf.TailBytes()
		need := r.stitch.NeededBytes(bitLen)
		if need > len(tail) {
			need = len(tail)
		}
		n := r.stitch.Append(tail[:need])
		r.buf.Skip(int64(n) * 8)
	}
	if !r.stitch.Ready(bitLen) {
		return StatusEOF, nil
	}

	raw := r.stitch.Extract(bitLen, order)
	if err := r.fireScalar(class, raw); err != nil {
		return StatusError, err
	}
	r.finishChild()
	r.state = stateNextField
	return StatusOK, nil
}

// fireScalar converts the raw bit-extracted value for class and invokes
// the matching scalar callback.
func (r *Reader) fireScalar(class *fieldclass.Class, raw uint64) error {
	switch class.Kind {
	case fieldclass.KindFloat:
		var f float64
		if class.Float.Size == 32 {
			f = float64(bitbuf.Float32FromBits(raw))
		} else {
			f = bitbuf.Float64FromBits(raw)
		}
		return r.cb.Float(f, class)

	case fieldclass.KindInt:
		return r.fireInt(class, class.Int, raw)

	case fieldclass.KindEnum:
		return r.fireInt(class, &class.Enum.Base, raw)

	default:
		return errors.Errorf("internal invariant violated: %v has no scalar reader", class.Kind)
	}
}

func (r *Reader) fireInt(class *fieldclass.Class, i *fieldclass.Int, raw uint64) error {
	if i.Signed {
		return r.cb.SignedInt(bitbuf.SignExtend(raw, i.Size), class)
	}
	return r.cb.UnsignedInt(raw, class)
}

// readString scans a lone String field byte by byte from the current,
// byte-aligned cursor position until a NUL terminator is consumed or
// the buffer runs out.
func (r *Reader) readString() (Status, error) {
	class := r.pending
	for {
		data := r.buf.RemainingBytes()
		if len(data) == 0 {
			r.state = stateReadStringContinue
			return StatusEOF, nil
		}
		nul := indexNUL(data)
		if nul < 0 {
			if len(data) > 0 {
				if err := r.cb.StringFragment(data, class); err != nil {
					return StatusError, errors.Wrap(err, "string callback")
				}
			}
			r.buf.Skip(int64(len(data)) * 8)
			r.state = stateReadStringContinue
			return StatusEOF, nil
		}
		if nul > 0 {
			if err := r.cb.StringFragment(data[:nul], class); err != nil {
				return StatusError, errors.Wrap(err, "string callback")
			}
		}
		r.buf.Skip(int64(nul+1) * 8) // include the NUL
		if class.String.Encoding == fieldclass.EncodingNone {
			r.skipExtraNUL()
		}
		if err := r.cb.StringEnd(class); err != nil {
			return StatusError, errors.Wrap(err, "string_end callback")
		}
		r.finishChild()
		r.state = stateNextField
		return StatusOK, nil
	}
}

// skipExtraNUL tolerates one extra NUL byte immediately following an
// encoding=none string's own terminator, matching a quirk in captures
// this format's tracers sometimes produce. Only looks at bytes already
// buffered; a trailing NUL split across a refill boundary is rare
// enough, and tolerance loose enough, not to be worth suspending the
// scope over.
func (r *Reader) skipExtraNUL() {
	data := r.buf.RemainingBytes()
	if len(data) > 0 && data[0] == 0 {
		r.buf.Skip(8)
	}
}

// readTextArray scans a fixed-count text array/sequence: it always
// consumes exactly the declared element count, even if a NUL
// terminator appears earlier, but only forwards bytes up to (excluding)
// the first NUL to StringFragment.
func (r *Reader) readTextArray() (Status, error) {
	top := &r.stack[len(r.stack)-1]
	class := top.self
	for top.textRemaining > 0 {
		data := r.buf.RemainingBytes()
		if len(data) == 0 {
			return StatusEOF, nil
		}
		n := len(data)
		if n > top.textRemaining {
			n = top.textRemaining
		}
		chunk := data[:n]
		if !top.textSawNUL {
			nul := indexNUL(chunk)
			if nul >= 0 {
				if nul > 0 {
					if err := r.cb.StringFragment(chunk[:nul], class); err != nil {
						return StatusError, errors.Wrap(err, "string callback")
					}
				}
				top.textSawNUL = true
			} else {
				if err := r.cb.StringFragment(chunk, class); err != nil {
					return StatusError, errors.Wrap(err, "string callback")
				}
			}
		}
		r.buf.Skip(int64(n) * 8)
		top.textRemaining -= n
	}
	if err := r.cb.StringEnd(class); err != nil {
		return StatusError, errors.Wrap(err, "string_end callback")
	}
	top.childIndex = top.numChildren
	r.state = stateNextField
	return StatusOK, nil
}

func indexNUL(data []byte) int {
	for i, c := range data {
		if c == 0 {
			return i
		}
	}
	return -1
}
