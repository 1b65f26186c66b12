package bfcr

import (
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/tracefmt/ctf/bitbuf"
	"github.com/tracefmt/ctf/fieldclass"
)

// recordingCallbacks implements Callbacks and records every event as a
// short string, so tests can assert on the exact callback sequence.
type recordingCallbacks struct {
	events   []string
	seqLen   int64
	seqErr   error
	variants map[*fieldclass.Class]*fieldclass.Class
}

func (r *recordingCallbacks) UnsignedInt(v uint64, class *fieldclass.Class) error {
	r.events = append(r.events, "u:"+itoa(int64(v)))
	return nil
}
func (r *recordingCallbacks) SignedInt(v int64, class *fieldclass.Class) error {
	r.events = append(r.events, "s:"+itoa(v))
	return nil
}
func (r *recordingCallbacks) Float(v float64, class *fieldclass.Class) error {
	r.events = append(r.events, "f")
	return nil
}
func (r *recordingCallbacks) StringBegin(class *fieldclass.Class) error {
	r.events = append(r.events, "strbegin")
	return nil
}
func (r *recordingCallbacks) StringFragment(data []byte, class *fieldclass.Class) error {
	r.events = append(r.events, "strfrag:"+string(data))
	return nil
}
func (r *recordingCallbacks) StringEnd(class *fieldclass.Class) error {
	r.events = append(r.events, "strend")
	return nil
}
func (r *recordingCallbacks) CompoundBegin(class *fieldclass.Class) error {
	r.events = append(r.events, "begin:"+class.Kind.String())
	return nil
}
func (r *recordingCallbacks) CompoundEnd(class *fieldclass.Class) error {
	r.events = append(r.events, "end:"+class.Kind.String())
	return nil
}
func (r *recordingCallbacks) SequenceLength(class *fieldclass.Class) (int64, error) {
	return r.seqLen, r.seqErr
}
func (r *recordingCallbacks) VariantSelectedClass(class *fieldclass.Class) (*fieldclass.Class, error) {
	return r.variants[class], nil
}

func itoa(v int64) string {
	if v == 0 {
		return "0"
	}
	neg := v < 0
	if neg {
		v = -v
	}
	var buf [24]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

func u32le(size int) *fieldclass.Class {
	return &fieldclass.Class{Kind: fieldclass.KindInt, InIR: true, Int: &fieldclass.Int{
		Size: size, Alignment: 8, Order: bitbuf.LittleEndian, StoredValueIndex: fieldclass.NoStoredValue,
	}}
}

// TestS1MinimalEvent decodes a single uint32 LE field to 42 from the
// bytes 2A 00 00 00.
func TestS1MinimalEvent(t *testing.T) {
	payload := &fieldclass.Class{Kind: fieldclass.KindStruct, InIR: true, Struct: &fieldclass.Struct{
		Alignment: 8,
		Members:   []fieldclass.Member{{Name: "x", Class: u32le(32)}},
	}}

	cb := &recordingCallbacks{}
	r := New()
	n, status, err := r.Start(payload, cb, []byte{0x2A, 0x00, 0x00, 0x00}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Equal(t, int64(32), n)
	require.Equal(t, []string{"begin:struct", "u:42", "end:struct"}, cb.events)
}

// TestCrossBoundaryEquivalence checks that splitting a buffer at any
// point and resuming via Continue produces the same callbacks as
// decoding it whole.
func TestCrossBoundaryEquivalence(t *testing.T) {
	payload := &fieldclass.Class{Kind: fieldclass.KindStruct, InIR: true, Struct: &fieldclass.Struct{
		Alignment: 8,
		Members: []fieldclass.Member{
			{Name: "a", Class: u32le(32)},
			{Name: "b", Class: u32le(32)},
		},
	}}
	full := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0x08}

	whole := &recordingCallbacks{}
	r1 := New()
	_, status, err := r1.Start(payload, whole, full, 0, 0)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)

	for split := 1; split < len(full); split++ {
		split := split
		t.Run(itoa(int64(split)), func(t *testing.T) {
			split2 := &recordingCallbacks{}
			r2 := New()
			_, status, err := r2.Start(payload, split2, full[:split], 0, 0)
			require.NoError(t, err)
			if status != StatusOK {
				require.Equal(t, StatusEOF, status)
				_, status, err = r2.Continue(full[split:])
				require.NoError(t, err)
				require.Equal(t, StatusOK, status)
			}
			require.Equal(t, whole.events, split2.events)
		})
	}
}

// TestSequenceLength exercises a Sequence whose length comes from the
// caller's SequenceLength callback.
func TestSequenceLength(t *testing.T) {
	seq := &fieldclass.Class{Kind: fieldclass.KindSequence, InIR: true, Sequence: &fieldclass.Sequence{
		Element: u32le(8),
	}}
	cb := &recordingCallbacks{seqLen: 3}
	r := New()
	_, status, err := r.Start(seq, cb, []byte{10, 20, 30}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Equal(t, []string{"begin:sequence", "u:10", "u:20", "u:30", "end:sequence"}, cb.events)
}

// TestVariantNoMatchErrors checks that a variant tag matching no
// option produces a decode error, never a silently selected default.
func TestVariantNoMatchErrors(t *testing.T) {
	variant := &fieldclass.Class{Kind: fieldclass.KindVariant, InIR: true, Variant: &fieldclass.Variant{}}
	cb := &recordingCallbacks{variants: map[*fieldclass.Class]*fieldclass.Class{}}
	r := New()
	_, status, err := r.Start(variant, cb, []byte{0}, 0, 0)
	require.Error(t, err)
	require.Equal(t, StatusError, status)
}

// TestByteOrderContinuityFailure checks that two mid-byte-adjacent
// basic fields with differing byte order fail.
func TestByteOrderContinuityFailure(t *testing.T) {
	be4 := &fieldclass.Class{Kind: fieldclass.KindInt, InIR: true, Int: &fieldclass.Int{
		Size: 4, Alignment: 1, Order: bitbuf.BigEndian, StoredValueIndex: fieldclass.NoStoredValue,
	}}
	le4 := &fieldclass.Class{Kind: fieldclass.KindInt, InIR: true, Int: &fieldclass.Int{
		Size: 4, Alignment: 1, Order: bitbuf.LittleEndian, StoredValueIndex: fieldclass.NoStoredValue,
	}}
	st := &fieldclass.Class{Kind: fieldclass.KindStruct, InIR: true, Struct: &fieldclass.Struct{
		Alignment: 1,
		Members:   []fieldclass.Member{{Name: "a", Class: be4}, {Name: "b", Class: le4}},
	}}
	cb := &recordingCallbacks{}
	r := New()
	_, status, err := r.Start(st, cb, []byte{0xAB}, 0, 0)
	require.Error(t, err)
	require.Equal(t, StatusError, status)
}

// TestTextArrayConsumesDeclaredLength checks that exactly N bytes are
// consumed for a fixed-length text array even with an early NUL.
func TestTextArrayConsumesDeclaredLength(t *testing.T) {
	arr := &fieldclass.Class{Kind: fieldclass.KindStaticArray, InIR: true, StaticArray: &fieldclass.StaticArray{
		Element: u32le(8), Length: 5, IsText: true,
	}}
	cb := &recordingCallbacks{}
	r := New()
	n, status, err := r.Start(arr, cb, []byte{'h', 'i', 0, 'X', 'X'}, 0, 0)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Equal(t, int64(40), n) // all 5 bytes consumed, not just 3
	require.Equal(t, []string{"begin:static_array", "strbegin", "strfrag:hi", "strend", "end:static_array"}, cb.events)
}

// TestEncodingNoneStringToleratesExtraNUL decodes a struct holding a
// lone encoding=none string followed by a uint32 field, across a
// doubly-NUL-terminated string ("ab\0\0"). If the extra NUL weren't
// skipped, the trailing field would decode from the wrong byte offset.
func TestEncodingNoneStringToleratesExtraNUL(t *testing.T) {
	str := &fieldclass.Class{Kind: fieldclass.KindString, InIR: true, String: &fieldclass.String{
		Encoding: fieldclass.EncodingNone,
	}}
	payload := &fieldclass.Class{Kind: fieldclass.KindStruct, InIR: true, Struct: &fieldclass.Struct{
		Alignment: 8,
		Members: []fieldclass.Member{
			{Name: "s", Class: str},
			{Name: "tail", Class: u32le(32)},
		},
	}}

	cb := &recordingCallbacks{}
	r := New()
	data := []byte{'a', 'b', 0, 0, 42, 0, 0, 0}
	n, status, err := r.Start(payload, cb, data, 0, 0)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Equal(t, int64(len(data))*8, n)
	require.Equal(t, []string{
		"begin:struct", "strbegin", "strfrag:ab", "strend", "u:42", "end:struct",
	}, cb.events)
}

// TestEncodingUTF8StringDoesNotToleratesExtraNUL confirms the
// tolerance is specific to encoding=none: a UTF-8 string's second NUL
// byte is left for the next field to consume.
func TestEncodingUTF8StringDoesNotToleratesExtraNUL(t *testing.T) {
	str := &fieldclass.Class{Kind: fieldclass.KindString, InIR: true, String: &fieldclass.String{
		Encoding: fieldclass.EncodingUTF8,
	}}
	payload := &fieldclass.Class{Kind: fieldclass.KindStruct, InIR: true, Struct: &fieldclass.Struct{
		Alignment: 8,
		Members: []fieldclass.Member{
			{Name: "s", Class: str},
			{Name: "tail", Class: u32le(32)},
		},
	}}

	cb := &recordingCallbacks{}
	r := New()
	data := []byte{'a', 'b', 0, 0, 42, 0, 0, 0}
	_, status, err := r.Start(payload, cb, data, 0, 0)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	// tail reads the remaining bytes starting right after the string's
	// own terminator: {0, 42, 0, 0} little-endian, not 42.
	require.Equal(t, []string{
		"begin:struct", "strbegin", "strfrag:ab", "strend", "u:10752", "end:struct",
	}, cb.events)
}
