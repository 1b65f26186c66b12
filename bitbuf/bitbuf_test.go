package bitbuf

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// packBits is a tiny reference encoder used only by tests, mirroring
// the package's bit-packing rules: LE is least-significant-bit-first,
// BE is most-significant-bit-first.
func packBits(v uint64, bitLen int, bitOffset int, order ByteOrder, out []byte) {
	pos := bitOffset
	remaining := bitLen
	if order == LittleEndian {
		shift := uint(0)
		for remaining > 0 {
			byteIdx := pos / 8
			bitInByte := uint(pos % 8)
			take := 8 - bitInByte
			if uint(remaining) < take {
				take = uint(remaining)
			}
			mask := byte((1 << take) - 1)
			bits := byte(v>>shift) & mask
			out[byteIdx] |= bits << bitInByte
			shift += take
			pos += int(take)
			remaining -= int(take)
		}
		return
	}
	// BE: consume from the most-significant end of v first.
	shift := uint(bitLen)
	for remaining > 0 {
		byteIdx := pos / 8
		bitInByte := uint(pos % 8)
		avail := 8 - bitInByte
		take := avail
		if uint(remaining) < take {
			take = uint(remaining)
		}
		shift -= take
		mask := byte((1 << take) - 1)
		bits := byte(v>>shift) & mask
		out[byteIdx] |= bits << (avail - take)
		pos += int(take)
		remaining -= int(take)
	}
}

func TestByteOrderRoundTrip(t *testing.T) {
	cases := []struct {
		bitLen int
		value  uint64
	}{
		{1, 1}, {3, 5}, {8, 0xAB}, {13, 0x1234 & ((1 << 13) - 1)},
		{27, 0x07FFFFFF}, {32, 0xDEADBEEF}, {40, 0x1122334455}, {64, 0xFEEDFACECAFEBEEF},
	}
	for _, order := range []ByteOrder{LittleEndian, BigEndian} {
		for _, c := range cases {
			for bitOffset := 0; bitOffset < 8; bitOffset++ {
				size := (bitOffset + c.bitLen + 7) / 8
				buf := make([]byte, size+1)
				packBits(c.value, c.bitLen, bitOffset, order, buf)

				b := &Buf{}
				b.Reset(buf, int64(bitOffset), 0)
				got, err := b.ReadBits(c.bitLen, order)
				require.NoError(t, err)
				want := c.value
				if c.bitLen < 64 {
					want &= (1 << uint(c.bitLen)) - 1
				}
				require.Equalf(t, want, got, "order=%v bitLen=%d bitOffset=%d", order, c.bitLen, bitOffset)
			}
		}
	}
}

func TestAlignTo(t *testing.T) {
	b := &Buf{}
	b.Reset([]byte{0, 0, 0, 0}, 3, 0)
	require.NoError(t, b.AlignTo(8))
	require.Equal(t, int64(8), b.CursorBits())

	b.Reset([]byte{0, 0, 0, 0}, 9, 0)
	require.NoError(t, b.AlignTo(32))
	require.Equal(t, int64(32), b.CursorBits())
}

func TestSkipExhausted(t *testing.T) {
	b := &Buf{}
	b.Reset([]byte{0xFF}, 0, 0)
	require.NoError(t, b.Skip(8))
	err := b.Skip(1)
	require.ErrorIs(t, err, ErrExhausted)
}

func TestStitchAcrossRefill(t *testing.T) {
	// A 32-bit LE integer split across two 2-byte buffers.
	full := []byte{0x01, 0x02, 0x03, 0x04}
	var want uint64
	b0 := &Buf{}
	b0.Reset(full, 0, 0)
	want, _ = b0.PeekBits(32, LittleEndian)

	var s Stitch
	s.Reset(0)
	s.Append(full[0:2])
	require.Equal(t, 16, s.AccumulatedBits())
	s.Append(full[2:4])
	require.Equal(t, 32, s.AccumulatedBits())
	got := s.Extract(32, LittleEndian)
	require.Equal(t, want, got)
}

func TestSignExtend(t *testing.T) {
	require.Equal(t, int64(-1), SignExtend(0b1111, 4))
	require.Equal(t, int64(7), SignExtend(0b0111, 4))
	require.Equal(t, int64(-1), SignExtend(^uint64(0), 64))
}
