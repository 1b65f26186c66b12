// Package bitbuf implements the CTF reader's bit-addressable buffer: a
// user-supplied byte slice plus a bit cursor that tracks position both
// within the current slice and within the packet as a whole across
// refills.
//
// This generalizes the offset-tracking buffered reader pattern of
// perffile's bufferedSectionReader (see aclements/go-perf) from
// byte-addressable, non-suspendable reads to bit-addressable reads that
// can suspend mid-scalar and resume from a caller-supplied replacement
// buffer.
package bitbuf

import "github.com/pkg/errors"

// ErrExhausted is returned by the peek/skip helpers when the requested
// bits are not available in the current buffer. It is not a decode
// error: callers (bfcr) treat it as a request to refill and retry.
var ErrExhausted = errors.New("bitbuf: buffer exhausted")

// Buf is a bit-addressable view over a single caller-owned byte slice.
//
// The caller retains ownership of Bytes; Buf never copies or mutates it.
// Bytes must remain valid and unchanged until the next call to Reset,
// per the medium's buffer-validity contract.
type Buf struct {
	Bytes []byte

	// cursorBits is the bit position within Bytes of the next bit to
	// read.
	cursorBits int64

	// packetOffsetBits is the bit position within the *packet* of the
	// first bit of Bytes; it accumulates across refills so a caller can
	// always recover "how far into the packet am I" even though Bytes
	// is replaced wholesale on every refill.
	packetOffsetBits int64
}

// Reset rebinds the buffer to a new backing slice starting at cursor
// bitOffset, with the packet-relative offset of the new slice's first
// bit given by packetOffsetBits.
func (b *Buf) Reset(data []byte, bitOffset, packetOffsetBits int64) {
	b.Bytes = data
	b.cursorBits = bitOffset
	b.packetOffsetBits = packetOffsetBits
}

// Len returns the number of bits remaining in the current slice.
func (b *Buf) Len() int64 {
	total := int64(len(b.Bytes)) * 8
	if b.cursorBits >= total {
		return 0
	}
	return total - b.cursorBits
}

// CursorBits returns the bit cursor relative to the start of Bytes.
func (b *Buf) CursorBits() int64 { return b.cursorBits }

// PacketOffsetBits returns the bit offset, relative to the start of the
// packet, of the next bit to be read.
func (b *Buf) PacketOffsetBits() int64 {
	return b.packetOffsetBits + b.cursorBits
}

// Skip advances the cursor by n bits without reading them. It returns
// ErrExhausted (without advancing) if n bits are not available.
func (b *Buf) Skip(n int64) error {
	if n > b.Len() {
		return ErrExhausted
	}
	b.cursorBits += n
	return nil
}

// AlignTo advances the cursor to the next multiple of alignBits (a power
// of two number of bits), relative to the start of the packet. It
// returns ErrExhausted if the padding bits are not all available in the
// current slice.
func (b *Buf) AlignTo(alignBits int64) error {
	if alignBits <= 1 {
		return nil
	}
	pos := b.PacketOffsetBits()
	rem := pos % alignBits
	if rem == 0 {
		return nil
	}
	return b.Skip(alignBits - rem)
}

// PeekBits extracts an unsigned integer of bitLen bits (bitLen in
// 1..64) starting at the cursor, in the given byte order, without
// advancing the cursor. It returns ErrExhausted if bitLen bits are not
// available.
func (b *Buf) PeekBits(bitLen int, order ByteOrder) (uint64, error) {
	if int64(bitLen) > b.Len() {
		return 0, ErrExhausted
	}
	if order == BigEndian {
		return extractBE(b.Bytes, b.cursorBits, bitLen), nil
	}
	return extractLE(b.Bytes, b.cursorBits, bitLen), nil
}

// ReadBits is PeekBits followed by advancing the cursor by bitLen bits.
func (b *Buf) ReadBits(bitLen int, order ByteOrder) (uint64, error) {
	v, err := b.PeekBits(bitLen, order)
	if err != nil {
		return 0, err
	}
	b.cursorBits += int64(bitLen)
	return v, nil
}

// ByteAligned reports whether the cursor currently sits on a byte
// boundary.
func (b *Buf) ByteAligned() bool {
	return b.cursorBits%8 == 0
}

// PeekByte returns the byte-aligned byte at the cursor without
// advancing it. The caller must have already checked ByteAligned.
func (b *Buf) PeekByte() (byte, error) {
	idx := b.cursorBits / 8
	if idx >= int64(len(b.Bytes)) {
		return 0, ErrExhausted
	}
	return b.Bytes[idx], nil
}

// RemainingBytes returns the byte-aligned bytes from the cursor to the
// end of the current slice. The cursor must be byte-aligned.
func (b *Buf) RemainingBytes() []byte {
	idx := b.cursorBits / 8
	if idx >= int64(len(b.Bytes)) {
		return nil
	}
	return b.Bytes[idx:]
}

// TailBytes returns every byte of the current slice that is not yet
// fully consumed (including a partially-consumed first byte) along
// with the bit offset of the cursor within that first byte. It is used
// when a scalar must be copied into the stitch buffer because it does
// not fully fit in the remaining bits of Bytes.
func (b *Buf) TailBytes() (tail []byte, bitOffsetInFirstByte int) {
	idx := b.cursorBits / 8
	if idx >= int64(len(b.Bytes)) {
		return nil, 0
	}
	return b.Bytes[idx:], int(b.cursorBits % 8)
}

// ByteOrder selects how multi-byte scalars are packed.
type ByteOrder int

const (
	LittleEndian ByteOrder = iota
	BigEndian
)

func (o ByteOrder) String() string {
	if o == BigEndian {
		return "big-endian"
	}
	return "little-endian"
}

// extractLE reads bitLen bits (1..64) starting at bitOffset from buf,
// least-significant bit first within each byte, least-significant byte
// first across bytes — the CTF "le" bit-packing order.
func extractLE(buf []byte, bitOffset int64, bitLen int) uint64 {
	var result uint64
	var shift uint
	remaining := bitLen
	pos := bitOffset
	for remaining > 0 {
		byteIdx := pos / 8
		bitInByte := uint(pos % 8)
		take := 8 - bitInByte
		if uint(remaining) < take {
			take = uint(remaining)
		}
		mask := byte((1 << take) - 1)
		bits := (buf[byteIdx] >> bitInByte) & mask
		result |= uint64(bits) << shift
		shift += take
		pos += int64(take)
		remaining -= int(take)
	}
	return result
}

// extractBE reads bitLen bits (1..64) starting at bitOffset from buf,
// most-significant bit first within each byte, most-significant byte
// first across bytes — the CTF "be" bit-packing order.
func extractBE(buf []byte, bitOffset int64, bitLen int) uint64 {
	var result uint64
	remaining := bitLen
	pos := bitOffset
	for remaining > 0 {
		byteIdx := pos / 8
		bitInByte := uint(pos % 8)
		avail := 8 - bitInByte
		take := avail
		if uint(remaining) < take {
			take = uint(remaining)
		}
		shiftDown := avail - take
		mask := byte((1 << take) - 1)
		bits := (buf[byteIdx] >> shiftDown) & mask
		result = (result << take) | uint64(bits)
		pos += int64(take)
		remaining -= int(take)
	}
	return result
}
