package msgiter

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracefmt/ctf/bitbuf"
	"github.com/tracefmt/ctf/fieldclass"
	"github.com/tracefmt/ctf/medium"
	"github.com/tracefmt/ctf/traceclass"
)

func u32le(meaning fieldclass.Meaning, mappedClock string) *fieldclass.Class {
	return &fieldclass.Class{Kind: fieldclass.KindInt, InIR: true, Int: &fieldclass.Int{
		Size: 32, Alignment: 8, Order: bitbuf.LittleEndian,
		MappedClock:      mappedClock,
		StoredValueIndex: fieldclass.NoStoredValue,
		Meaning:          meaning,
	}}
}

func structOf(members ...fieldclass.Member) *fieldclass.Class {
	return &fieldclass.Class{Kind: fieldclass.KindStruct, InIR: true, Struct: &fieldclass.Struct{
		Members: members, Alignment: 8,
	}}
}

func le32(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

// singleStreamTrace builds a one-stream, one-event-class trace class
// graph with no packet header: packet context carries content_size,
// packet_size, timestamp_begin, and timestamp_end, and the lone event
// class's payload carries an event-local timestamp plus a plain value.
func singleStreamTrace() (*traceclass.TraceClass, *traceclass.StreamClass, *traceclass.EventClass) {
	clock := &traceclass.ClockClass{Name: "monotonic", Frequency: 1000000000}

	packetContext := structOf(
		fieldclass.Member{Name: "content_size", Class: u32le(fieldclass.MeaningPacketContentSize, "")},
		fieldclass.Member{Name: "packet_size", Class: u32le(fieldclass.MeaningPacketTotalSize, "")},
		fieldclass.Member{Name: "timestamp_begin", Class: u32le(fieldclass.MeaningPacketBeginTime, "monotonic")},
		fieldclass.Member{Name: "timestamp_end", Class: u32le(fieldclass.MeaningPacketEndTime, "monotonic")},
	)

	payload := structOf(
		fieldclass.Member{Name: "timestamp", Class: u32le(fieldclass.MeaningNone, "monotonic")},
		fieldclass.Member{Name: "value", Class: u32le(fieldclass.MeaningNone, "")},
	)

	ec := &traceclass.EventClass{ID: 0, Name: "evt", Payload: payload}
	sc := &traceclass.StreamClass{
		ID:                 0,
		PacketContext:      packetContext,
		EventClasses:       []*traceclass.EventClass{ec},
		DefaultClockClass:  clock,
		HasPacketBeginTime: true,
		HasPacketEndTime:   true,
	}
	sc.IndexEventClasses()

	tc := &traceclass.TraceClass{
		StreamClasses: []*traceclass.StreamClass{sc},
		ClockClasses:  []*traceclass.ClockClass{clock},
	}
	tc.IndexStreamClasses()
	return tc, sc, ec
}

func buildPacket(contentBytes, totalBytes int, beginTS, endTS uint32, events [][2]uint32) []byte {
	var buf []byte
	buf = append(buf, le32(uint32(contentBytes*8))...)
	buf = append(buf, le32(uint32(totalBytes*8))...)
	buf = append(buf, le32(beginTS)...)
	buf = append(buf, le32(endTS)...)
	for _, e := range events {
		buf = append(buf, le32(e[0])...) // timestamp
		buf = append(buf, le32(e[1])...) // value
	}
	return buf
}

func TestSingleStreamSingleEventClass(t *testing.T) {
	tc, _, _ := singleStreamTrace()
	data := buildPacket(32, 32, 1000, 2000, [][2]uint32{{1500, 111}, {1800, 222}})

	it := New(tc, medium.NewMemory(data))
	msgs, status, err := it.Next(10)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Len(t, msgs, 6)

	require.Equal(t, KindStreamBeginning, msgs[0].Kind)
	require.Equal(t, KindPacketBeginning, msgs[1].Kind)
	require.Equal(t, KindEvent, msgs[2].Kind)
	require.Equal(t, KindEvent, msgs[3].Kind)
	require.Equal(t, KindPacketEnd, msgs[4].Kind)
	require.Equal(t, KindStreamEnd, msgs[5].Kind)

	require.True(t, msgs[1].DefaultClockSnapshot.Present)
	require.Equal(t, uint64(1000), msgs[1].DefaultClockSnapshot.Value, "packet beginning carries timestamp_begin, unaffected by later events")

	require.Equal(t, uint64(111), msgs[2].Payload.Field("value").UInt)
	require.Equal(t, uint64(1500), msgs[2].DefaultClockSnapshot.Value)
	require.Equal(t, uint64(222), msgs[3].Payload.Field("value").UInt)
	require.Equal(t, uint64(1800), msgs[3].DefaultClockSnapshot.Value)

	require.True(t, msgs[4].DefaultClockSnapshot.Present)
	require.Equal(t, uint64(2000), msgs[4].DefaultClockSnapshot.Value, "packet end folds timestamp_end only after all events are seen")

	nextMsgs, nextStatus, err := it.Next(1)
	require.NoError(t, err)
	require.Equal(t, StatusEnd, nextStatus)
	require.Empty(t, nextMsgs)
}

func TestGetPacketPropertiesDoesNotConsumeMessages(t *testing.T) {
	tc, _, _ := singleStreamTrace()
	data := buildPacket(24, 24, 10, 20, [][2]uint32{{15, 1}})

	it := New(tc, medium.NewMemory(data))
	props, status, err := it.GetPacketProperties()
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Equal(t, int64(192), props.ContentSizeBits)
	require.Equal(t, int64(192), props.TotalSizeBits)
	require.True(t, props.BeginClock.Present)
	require.Equal(t, uint64(10), props.BeginClock.Value)

	msgs, status, err := it.Next(10)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)
	require.Equal(t, []MessageKind{KindStreamBeginning, KindPacketBeginning, KindEvent, KindPacketEnd, KindStreamEnd}, kindsOf(msgs))
}

func kindsOf(msgs []Message) []MessageKind {
	out := make([]MessageKind, len(msgs))
	for i, m := range msgs {
		out[i] = m.Kind
	}
	return out
}

func TestDiscardedEventsBetweenPackets(t *testing.T) {
	tc, sc, _ := singleStreamTrace()
	sc.HasDiscardedEvents = true

	packetContext := structOf(
		fieldclass.Member{Name: "content_size", Class: u32le(fieldclass.MeaningPacketContentSize, "")},
		fieldclass.Member{Name: "packet_size", Class: u32le(fieldclass.MeaningPacketTotalSize, "")},
		fieldclass.Member{Name: "events_discarded", Class: u32le(fieldclass.MeaningDiscardedEventCounterSnapshot, "")},
	)
	sc.PacketContext = packetContext

	buildCtx := func(discarded uint32) []byte {
		var buf []byte
		buf = append(buf, le32(20*8)...)
		buf = append(buf, le32(20*8)...)
		buf = append(buf, le32(discarded)...)
		buf = append(buf, le32(7)...)  // timestamp
		buf = append(buf, le32(42)...) // value
		return buf
	}

	var data []byte
	data = append(data, buildCtx(0)...)
	data = append(data, buildCtx(5)...)

	it := New(tc, medium.NewMemory(data))
	msgs, status, err := it.Next(20)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)

	kinds := kindsOf(msgs)
	require.Contains(t, kinds, KindDiscardedEvents)

	for _, m := range msgs {
		if m.Kind == KindDiscardedEvents {
			require.Equal(t, uint64(5), m.Count)
			require.True(t, m.CountKnown)
		}
	}
}

func TestClockWraparoundAcrossEvents(t *testing.T) {
	tc, _, _ := singleStreamTrace()
	// 32-bit field near its max, followed by a smaller raw value: the
	// accumulator must detect exactly one wrap, not treat it as a
	// clock going backwards.
	const nearMax = 0xFFFFFFF0
	const wrapped = 0x10
	data := buildPacket(32, 32, nearMax, wrapped, [][2]uint32{{nearMax, 1}, {wrapped, 2}})

	it := New(tc, medium.NewMemory(data))
	msgs, status, err := it.Next(10)
	require.NoError(t, err)
	require.Equal(t, StatusOK, status)

	var events []Message
	for _, m := range msgs {
		if m.Kind == KindEvent {
			events = append(events, m)
		}
	}
	require.Len(t, events, 2)
	require.Equal(t, uint64(nearMax), events[0].DefaultClockSnapshot.Value)
	require.Equal(t, uint64(1)<<32|wrapped, events[1].DefaultClockSnapshot.Value)
}

// shortReadMedium serves data in small chunks, forcing the iterator to
// suspend with StatusAgain mid-scope and resume via Continue.
type shortReadMedium struct {
	data      []byte
	cursor    int
	chunkSize int
}

func (m *shortReadMedium) RequestBytes(maxSize int) ([]byte, medium.Status, error) {
	if m.cursor >= len(m.data) {
		return nil, medium.StatusEOF, nil
	}
	n := m.chunkSize
	if n > maxSize {
		n = maxSize
	}
	end := m.cursor + n
	if end > len(m.data) {
		end = len(m.data)
	}
	chunk := m.data[m.cursor:end]
	m.cursor = end
	return chunk, medium.StatusOK, nil
}

func (m *shortReadMedium) Seek(byteOffset int64) (medium.Status, error) {
	m.cursor = int(byteOffset)
	return medium.StatusOK, nil
}

func (m *shortReadMedium) SwitchPacket() (medium.Status, error) {
	return medium.StatusOK, medium.ErrUnsupported("switch_packet")
}

func (m *shortReadMedium) BorrowStream(sc *traceclass.StreamClass, streamID uint64) medium.StreamHandle {
	return nil
}

func (m *shortReadMedium) CanSeekBeginning() bool { return false }

func TestResumesAcrossShortReads(t *testing.T) {
	tc, _, _ := singleStreamTrace()
	data := buildPacket(32, 32, 1, 2, [][2]uint32{{1, 9}, {2, 10}})

	med := &shortReadMedium{data: data, chunkSize: 3}
	it := New(tc, med)

	var all []Message
	for {
		msgs, status, err := it.Next(4)
		require.NoError(t, err)
		all = append(all, msgs...)
		if status == StatusEnd {
			break
		}
		if status == StatusAgain {
			continue
		}
	}
	require.Equal(t, []MessageKind{
		KindStreamBeginning, KindPacketBeginning, KindEvent, KindEvent, KindPacketEnd, KindStreamEnd,
	}, kindsOf(all))
}
