package msgiter

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tracefmt/ctf"
	"github.com/tracefmt/ctf/bfcr"
	"github.com/tracefmt/ctf/ctflog"
	"github.com/tracefmt/ctf/fieldclass"
	"github.com/tracefmt/ctf/medium"
	"github.com/tracefmt/ctf/traceclass"
)

// Status is the result of a public Iterator operation.
type Status int

const (
	StatusOK Status = iota
	// StatusAgain means the medium has no more bytes right now; call
	// again once more data may be available.
	StatusAgain
	// StatusEnd means the trace is exhausted; every subsequent call
	// returns StatusEnd.
	StatusEnd
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusAgain:
		return "again"
	case StatusEnd:
		return "end"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

type fsmState int

const (
	stateSwitchPacket fsmState = iota
	stateDScopePacketHeader
	stateAfterPacketHeader
	stateDScopePacketContext
	stateAfterPacketContext
	stateEmitStreamBeginning
	stateCheckDiscardedEvents
	stateCheckDiscardedPackets
	stateEmitPacketBeginning
	stateDScopeEventHeader
	stateAfterEventHeader
	stateDScopeEventCommonContext
	stateDScopeEventSpecContext
	stateDScopeEventPayload
	stateEmitEvent
	stateEmitPacketEnd
	stateCheckStreamEnd
	stateEmitStreamEnd
	stateDone
)

var (
	errNoStreamClass   = errors.New("packet did not identify a stream class and the trace declares more than one")
	errUnknownStream   = errors.New("packet header names an unknown stream class id")
	errUnknownEvent    = errors.New("event header names an unknown event class id")
	errUnalignedSwitch = errors.New("packet does not begin on a byte boundary")
	errTruncatedScope  = errors.New("medium ended before the current scope finished decoding")
)

// PacketProperties is the non-consuming summary GetPacketProperties
// reports.
type PacketProperties struct {
	TotalSizeBits           int64
	ContentSizeBits         int64
	StreamClassID           uint64
	DataStreamID            uint64
	DiscardedEventsSnapshot uint64
	PacketsSnapshot         uint64
	BeginClock              clockSnapshot
	EndClock                clockSnapshot
}

// Iterator is the packet/stream state machine: it drives bfcr across
// one byte source's nested scopes and emits a well-ordered sequence of
// Messages. Not safe for concurrent use; a host wanting parallelism
// creates independent Iterators on independent Mediums.
type Iterator struct {
	tc     *traceclass.TraceClass
	med    medium.Medium
	Logger *logrus.Entry

	values *fieldclass.StoredValues
	reader *bfcr.Reader

	quirkLTTng   bool
	quirkBarectf bool

	state fsmState

	buf              []byte
	bitOffset        int64
	packetOffsetBits int64

	// scopeStarted and builder track an in-progress scope decode across
	// Continue calls, when a prior attempt suspended on StatusAgain.
	scopeStarted bool
	builder      *valueBuilder

	// eventOffsetBits counts bits consumed by the current event's scopes
	// since it was reset at the start of that event (stepEmitPacketBeginning,
	// stepEmitEvent). Zero means no part of this event has been decoded
	// yet, the condition stepDecodeScope checks before treating medium
	// Eof as an unbounded packet's end rather than a truncation.
	eventOffsetBits int64

	streamClass *traceclass.StreamClass
	streamBegun bool

	packetIndex uint64
	header      *Value
	context     *Value

	haveTotalSize   bool
	totalSizeBits   int64
	haveContentSize bool
	contentSizeBits int64

	snapshots     packetSnapshots
	prevSnapshots packetSnapshots

	defaultClockSnapshot   uint64
	haveDefaultClock       bool
	lastEventClockSnapshot uint64
	haveLastEventClock     bool

	eventHeader *Value
	commonCtx   *Value
	specCtx     *Value
	payload     *Value
	eventClass  *traceclass.EventClass

	// havePendingEndClock/pendingEndClockValue/pendingEndClockBits hold
	// the packet context's timestamp_end field until the packet's
	// events have all been folded into defaultClockSnapshot: end time
	// is chronologically last, so folding it immediately after the
	// context (before begin <= events <= end's own events) would make
	// smaller, earlier event timestamps look like a clock wraparound.
	havePendingEndClock  bool
	pendingEndClockValue uint64
	pendingEndClockBits  int
	skipEndClockFold     bool

	// pendingPacketBeginning holds an already-built PacketBeginning
	// message under the barectf event-before-packet quirk, until the
	// first event of the packet is decoded and its clock can be used to
	// fix up the held message.
	pendingPacketBeginning *Message

	outbox []Message
	err    error
}

// New returns an Iterator ready to decode med against tc, starting from
// med's current cursor.
func New(tc *traceclass.TraceClass, med medium.Medium) *Iterator {
	it := &Iterator{
		tc:            tc,
		med:           med,
		Logger:        ctflog.Discard(),
		values:        fieldclass.NewStoredValues(tc.StoredValueCount),
		reader:        bfcr.New(),
		state:         stateSwitchPacket,
		snapshots:     newPacketSnapshots(),
		prevSnapshots: newPacketSnapshots(),
	}
	if len(tc.StreamClasses) == 1 {
		it.streamClass = tc.StreamClasses[0]
	}
	if name, ok := tc.EnvString("tracer_name"); ok {
		name = strings.ToLower(name)
		it.quirkLTTng = strings.Contains(name, "lttng")
		it.quirkBarectf = strings.Contains(name, "barectf")
	}
	return it
}

// Next fills up to capacity messages, driving the state machine as far
// as it can without blocking on the medium.
func (it *Iterator) Next(capacity int) ([]Message, Status, error) {
	if it.err != nil {
		return nil, StatusError, it.err
	}
	out := make([]Message, 0, capacity)
	for len(out) < capacity {
		if len(it.outbox) > 0 {
			n := capacity - len(out)
			if n > len(it.outbox) {
				n = len(it.outbox)
			}
			out = append(out, it.outbox[:n]...)
			it.outbox = it.outbox[n:]
			continue
		}
		if it.state == stateDone {
			if len(out) == 0 {
				return out, StatusEnd, nil
			}
			return out, StatusOK, nil
		}
		status, err := it.step()
		if err != nil {
			it.err = err
			return nil, StatusError, err
		}
		if status == StatusAgain {
			if len(out) > 0 {
				return out, StatusOK, nil
			}
			return out, StatusAgain, nil
		}
	}
	return out, StatusOK, nil
}

// GetPacketProperties drives the machine up to EmitPacketBeginning and
// reports the current packet's properties without emitting any message
// to the caller; a following Next call resumes normally and will
// observe the same DiscardedEvents/DiscardedPackets/PacketBeginning
// messages in order.
func (it *Iterator) GetPacketProperties() (PacketProperties, Status, error) {
	if it.err != nil {
		return PacketProperties{}, StatusError, it.err
	}
	for it.state != stateEmitPacketBeginning && it.state != stateDone {
		status, err := it.step()
		if err != nil {
			it.err = err
			return PacketProperties{}, StatusError, err
		}
		if status == StatusAgain {
			return PacketProperties{}, StatusAgain, nil
		}
	}
	if it.state == stateDone {
		return PacketProperties{}, StatusEnd, nil
	}
	return it.currentPacketProperties(), StatusOK, nil
}

func (it *Iterator) currentPacketProperties() PacketProperties {
	p := PacketProperties{
		TotalSizeBits:   it.totalSizeBits,
		ContentSizeBits: it.contentSizeBits,
	}
	if it.streamClass != nil {
		p.StreamClassID = it.streamClass.ID
	}
	if it.snapshots.discardedEvents != snapshotUnknown {
		p.DiscardedEventsSnapshot = it.snapshots.discardedEvents
	}
	if it.snapshots.packets != snapshotUnknown {
		p.PacketsSnapshot = it.snapshots.packets
	}
	if it.snapshots.beginClock != snapshotUnknown {
		p.BeginClock = clockSnapshot{Value: it.snapshots.beginClock, Present: true}
	}
	if it.snapshots.endClock != snapshotUnknown {
		p.EndClock = clockSnapshot{Value: it.snapshots.endClock, Present: true}
	}
	if v := findMeaning(it.header, fieldclass.MeaningDataStreamID); v != nil {
		p.DataStreamID = v.UInt
	}
	return p
}

// CanSeekBeginning delegates to the underlying medium.
func (it *Iterator) CanSeekBeginning() bool { return it.med.CanSeekBeginning() }

// Seek moves the medium to byteOffset, resets all per-packet decoder
// state, and re-enters SwitchPacket. Stream-level state (whether
// StreamBeginning has already been emitted) is preserved.
func (it *Iterator) Seek(byteOffset int64) (Status, error) {
	st, err := it.med.Seek(byteOffset)
	if err != nil {
		return StatusError, ctf.Wrap(ctf.KindMedium, err, "seek")
	}
	switch st {
	case medium.StatusEOF:
		it.state = stateDone
		return StatusEnd, nil
	case medium.StatusAgain:
		return StatusAgain, nil
	}
	it.buf = nil
	it.bitOffset = 0
	it.packetOffsetBits = 0
	it.scopeStarted = false
	it.builder = nil
	it.reader = bfcr.New()
	it.state = stateSwitchPacket
	it.outbox = nil
	it.err = nil
	return StatusOK, nil
}

// step performs exactly one FSM transition, appending any messages it
// produces to the outbox. It returns StatusAgain when decoding would
// need more bytes than the medium currently has.
func (it *Iterator) step() (Status, error) {
	switch it.state {
	case stateSwitchPacket:
		return it.stepSwitchPacket()
	case stateDScopePacketHeader:
		return it.stepDecodeScope(it.tc.PacketHeader, &it.header, stateAfterPacketHeader, false)
	case stateAfterPacketHeader:
		return it.stepAfterPacketHeader()
	case stateDScopePacketContext:
		if it.streamClass == nil {
			return StatusOK, ctf.Wrap(ctf.KindDecode, errNoStreamClass, "decoding packet context")
		}
		return it.stepDecodeScope(it.streamClass.PacketContext, &it.context, stateAfterPacketContext, false)
	case stateAfterPacketContext:
		return it.stepAfterPacketContext()
	case stateEmitStreamBeginning:
		return it.stepEmitStreamBeginning()
	case stateCheckDiscardedEvents:
		return it.stepCheckDiscardedEvents()
	case stateCheckDiscardedPackets:
		return it.stepCheckDiscardedPackets()
	case stateEmitPacketBeginning:
		return it.stepEmitPacketBeginning()
	case stateDScopeEventHeader:
		return it.stepDecodeScope(it.streamClass.EventHeader, &it.eventHeader, stateAfterEventHeader, true)
	case stateAfterEventHeader:
		return it.stepAfterEventHeader()
	case stateDScopeEventCommonContext:
		return it.stepDecodeScope(it.streamClass.EventCommonContext, &it.commonCtx, stateDScopeEventSpecContext, true)
	case stateDScopeEventSpecContext:
		var cls *fieldclass.Class
		if it.eventClass != nil {
			cls = it.eventClass.SpecificContext
		}
		return it.stepDecodeScope(cls, &it.specCtx, stateDScopeEventPayload, true)
	case stateDScopeEventPayload:
		var cls *fieldclass.Class
		if it.eventClass != nil {
			cls = it.eventClass.Payload
		}
		return it.stepDecodeScope(cls, &it.payload, stateEmitEvent, true)
	case stateEmitEvent:
		return it.stepEmitEvent()
	case stateEmitPacketEnd:
		return it.stepEmitPacketEnd()
	case stateCheckStreamEnd:
		return it.stepCheckStreamEnd()
	case stateEmitStreamEnd:
		return it.stepEmitStreamEnd()
	default:
		it.state = stateDone
		return StatusOK, nil
	}
}

func (it *Iterator) stepSwitchPacket() (Status, error) {
	if it.bitOffset >= int64(len(it.buf))*8 {
		status, err := it.fillBuffer()
		if err != nil {
			return StatusOK, err
		}
		if status == medium.StatusAgain {
			return StatusAgain, nil
		}
		if status == medium.StatusEOF {
			it.state = stateCheckStreamEnd
			return StatusOK, nil
		}
	}
	if it.bitOffset%8 != 0 {
		return StatusOK, ctf.Wrap(ctf.KindDecode, errUnalignedSwitch, "switching packet")
	}

	if _, err := it.med.SwitchPacket(); err != nil && !medium.IsUnsupported(err) {
		return StatusOK, ctf.Wrap(ctf.KindMedium, err, "switching packet")
	}

	it.packetOffsetBits = 0
	it.values.Reset()
	it.prevSnapshots = it.snapshots
	it.snapshots = newPacketSnapshots()
	it.header = nil
	it.context = nil
	it.haveTotalSize = false
	it.haveContentSize = false
	it.pendingPacketBeginning = nil
	it.scopeStarted = false

	if it.tc.PacketHeader != nil {
		it.state = stateDScopePacketHeader
	} else {
		it.state = stateAfterPacketHeader
	}
	return StatusOK, nil
}

func (it *Iterator) stepAfterPacketHeader() (Status, error) {
	if v := findMeaning(it.header, fieldclass.MeaningStreamClassID); v != nil {
		sc := it.tc.StreamByID(v.UInt)
		if sc == nil {
			return StatusOK, ctf.Wrap(ctf.KindDecode, errUnknownStream, "resolving packet's stream class")
		}
		it.streamClass = sc
	}
	if it.streamClass == nil {
		return StatusOK, ctf.Wrap(ctf.KindDecode, errNoStreamClass, "after packet header")
	}
	it.state = stateDScopePacketContext
	return StatusOK, nil
}

func (it *Iterator) stepAfterPacketContext() (Status, error) {
	if v := findMeaning(it.context, fieldclass.MeaningPacketTotalSize); v != nil {
		it.totalSizeBits = v.AsInt64()
		it.haveTotalSize = true
	}
	if v := findMeaning(it.context, fieldclass.MeaningPacketContentSize); v != nil {
		it.contentSizeBits = v.AsInt64()
		it.haveContentSize = true
	} else if it.haveTotalSize {
		it.contentSizeBits = it.totalSizeBits
		it.haveContentSize = true
	}

	beginV := findMeaning(it.context, fieldclass.MeaningPacketBeginTime)
	endV := findMeaning(it.context, fieldclass.MeaningPacketEndTime)
	if beginV != nil {
		it.snapshots.beginClock = beginV.UInt
	}
	it.havePendingEndClock = false
	it.skipEndClockFold = false
	if endV != nil {
		it.snapshots.endClock = endV.UInt
		it.havePendingEndClock = true
		it.pendingEndClockValue = endV.UInt
		it.pendingEndClockBits = endV.Class.Int.Size
		if it.quirkLTTng && beginV != nil && beginV.UInt != 0 && endV.UInt == 0 {
			it.skipEndClockFold = true
		}
	}
	if v := findMeaning(it.context, fieldclass.MeaningDiscardedEventCounterSnapshot); v != nil {
		it.snapshots.discardedEvents = v.UInt
	}
	if v := findMeaning(it.context, fieldclass.MeaningPacketCounterSnapshot); v != nil {
		it.snapshots.packets = v.UInt
	}

	// Every other clock-mapped field in the packet context folds now;
	// begin time folds immediately below (it precedes every event in
	// this packet) but end time is deferred to stepEmitPacketEnd.
	it.foldClockFieldsSkipping(it.context, fieldclass.MeaningPacketBeginTime, fieldclass.MeaningPacketEndTime)
	if beginV != nil {
		it.haveDefaultClock = true
		it.defaultClockSnapshot = updateClockSnapshot(it.defaultClockSnapshot, beginV.UInt, beginV.Class.Int.Size)
	}

	it.state = stateEmitStreamBeginning
	return StatusOK, nil
}

func (it *Iterator) stepEmitStreamBeginning() (Status, error) {
	if !it.streamBegun {
		it.streamBegun = true
		it.outbox = append(it.outbox, Message{Kind: KindStreamBeginning, Stream: it.streamClass})
	}
	it.state = stateCheckDiscardedEvents
	return StatusOK, nil
}

func (it *Iterator) stepCheckDiscardedEvents() (Status, error) {
	sc := it.streamClass
	if sc.HasDiscardedEvents &&
		it.snapshots.discardedEvents != snapshotUnknown &&
		it.prevSnapshots.discardedEvents != snapshotUnknown {
		delta := it.snapshots.discardedEvents - it.prevSnapshots.discardedEvents
		if delta > 0 {
			it.outbox = append(it.outbox, it.snapshotMessage(KindDiscardedEvents, delta))
		}
	}
	it.state = stateCheckDiscardedPackets
	return StatusOK, nil
}

func (it *Iterator) stepCheckDiscardedPackets() (Status, error) {
	sc := it.streamClass
	if sc.HasDiscardedPackets &&
		it.snapshots.packets != snapshotUnknown &&
		it.prevSnapshots.packets != snapshotUnknown {
		delta := it.snapshots.packets - it.prevSnapshots.packets
		if delta > 1 {
			it.outbox = append(it.outbox, it.snapshotMessage(KindDiscardedPackets, delta-1))
		}
	}
	it.state = stateEmitPacketBeginning
	return StatusOK, nil
}

func (it *Iterator) snapshotMessage(kind MessageKind, count uint64) Message {
	msg := Message{Kind: kind, Stream: it.streamClass, Count: count, CountKnown: true}
	if it.prevSnapshots.endClock != snapshotUnknown {
		msg.BeginClockSnapshot = clockSnapshot{Value: it.prevSnapshots.endClock, Present: true}
	}
	if it.snapshots.beginClock != snapshotUnknown {
		msg.EndClockSnapshot = clockSnapshot{Value: it.snapshots.beginClock, Present: true}
	}
	return msg
}

func (it *Iterator) stepEmitPacketBeginning() (Status, error) {
	msg := Message{Kind: KindPacketBeginning, Stream: it.streamClass, Packet: it.currentPacket()}
	if it.haveDefaultClock {
		msg.DefaultClockSnapshot = clockSnapshot{Value: it.defaultClockSnapshot, Present: true}
	}

	if it.quirkBarectf {
		it.pendingPacketBeginning = &msg
	} else {
		it.outbox = append(it.outbox, msg)
	}

	it.eventOffsetBits = 0
	if it.streamClass.EventHeader != nil {
		it.state = stateDScopeEventHeader
	} else {
		it.state = stateAfterEventHeader
	}
	return StatusOK, nil
}

func (it *Iterator) currentPacket() *Packet {
	return &Packet{
		StreamClass:     it.streamClass,
		Index:           it.packetIndex,
		TotalSizeBits:   it.totalSizeBits,
		ContentSizeBits: it.contentSizeBits,
		Header:          it.header,
		Context:         it.context,
	}
}

func (it *Iterator) stepAfterEventHeader() (Status, error) {
	sc := it.streamClass
	var idV *Value
	if sc.EventHeader != nil {
		idV = findMeaning(it.eventHeader, fieldclass.MeaningEventClassID)
	}
	switch {
	case idV != nil:
		ec := sc.EventByID(idV.UInt)
		if ec == nil {
			return StatusOK, ctf.Wrap(ctf.KindDecode, errUnknownEvent, "resolving event class")
		}
		it.eventClass = ec
	case len(sc.EventClasses) == 1:
		it.eventClass = sc.EventClasses[0]
	default:
		return StatusOK, ctf.Wrap(ctf.KindDecode, errUnknownEvent, "event header did not identify an event class")
	}
	it.state = stateDScopeEventCommonContext
	return StatusOK, nil
}

func (it *Iterator) stepEmitEvent() (Status, error) {
	it.foldClockFieldsSkipping(it.eventHeader)
	it.foldClockFieldsSkipping(it.commonCtx)
	it.foldClockFieldsSkipping(it.specCtx)
	it.foldClockFieldsSkipping(it.payload)

	if it.haveDefaultClock {
		it.lastEventClockSnapshot = it.defaultClockSnapshot
		it.haveLastEventClock = true
	}

	msg := Message{
		Kind:            KindEvent,
		Stream:          it.streamClass,
		EventClass:      it.eventClass,
		Packet:          it.currentPacket(),
		CommonContext:   it.commonCtx,
		SpecificContext: it.specCtx,
		Payload:         it.payload,
	}
	if it.haveDefaultClock {
		msg.DefaultClockSnapshot = clockSnapshot{Value: it.defaultClockSnapshot, Present: true}
	}

	if it.pendingPacketBeginning != nil {
		pb := it.pendingPacketBeginning
		it.pendingPacketBeginning = nil
		if it.haveDefaultClock && pb.DefaultClockSnapshot.Present &&
			it.defaultClockSnapshot < pb.DefaultClockSnapshot.Value {
			pb.DefaultClockSnapshot.Value = it.defaultClockSnapshot
		}
		it.outbox = append(it.outbox, *pb)
	}
	it.outbox = append(it.outbox, msg)

	it.eventHeader, it.commonCtx, it.specCtx, it.payload, it.eventClass = nil, nil, nil, nil, nil
	it.eventOffsetBits = 0

	switch {
	case it.haveContentSize && it.packetOffsetBits >= it.contentSizeBits:
		it.state = stateEmitPacketEnd
	case it.streamClass.EventHeader != nil:
		it.state = stateDScopeEventHeader
	default:
		it.state = stateAfterEventHeader
	}
	return StatusOK, nil
}

func (it *Iterator) stepEmitPacketEnd() (Status, error) {
	if it.pendingPacketBeginning != nil {
		it.outbox = append(it.outbox, *it.pendingPacketBeginning)
		it.pendingPacketBeginning = nil
	}

	if it.havePendingEndClock {
		candidate := updateClockSnapshot(it.defaultClockSnapshot, it.pendingEndClockValue, it.pendingEndClockBits)
		// The LTTng event-after-packet quirk: a trace's last packet can
		// carry a stale end time lower than an event already decoded
		// from it. Treat that as missing rather than rewinding the
		// stream's clock.
		quirkStale := it.quirkLTTng && it.haveLastEventClock && candidate < it.lastEventClockSnapshot
		if !it.skipEndClockFold && !quirkStale {
			it.haveDefaultClock = true
			it.defaultClockSnapshot = candidate
		}
		it.havePendingEndClock = false
	}

	msg := Message{Kind: KindPacketEnd, Stream: it.streamClass, Packet: it.currentPacket()}
	if it.haveDefaultClock {
		msg.DefaultClockSnapshot = clockSnapshot{Value: it.defaultClockSnapshot, Present: true}
	}
	it.outbox = append(it.outbox, msg)

	if it.haveContentSize {
		if err := it.skipPadding(); err != nil {
			return StatusOK, err
		}
	}

	it.packetIndex++
	it.haveDefaultClock = false
	it.state = stateSwitchPacket
	return StatusOK, nil
}

// skipPadding advances past any bits between content_size and the
// packet's own end (total_size, or content_size again if no total_size
// was declared), so the next SwitchPacket starts byte-aligned. An
// "infinite" packet with no declared total_size has no padding to skip;
// its end is instead detected as medium Eof in stepSwitchPacket.
func (it *Iterator) skipPadding() error {
	end := it.contentSizeBits
	if it.haveTotalSize {
		end = it.totalSizeBits
	}
	for it.packetOffsetBits < end {
		remaining := end - it.packetOffsetBits
		avail := int64(len(it.buf))*8 - it.bitOffset
		if avail <= 0 {
			status, err := it.fillBuffer()
			if err != nil {
				return err
			}
			if status != medium.StatusOK {
				return nil
			}
			avail = int64(len(it.buf)) * 8
		}
		n := remaining
		if n > avail {
			n = avail
		}
		it.bitOffset += n
		it.packetOffsetBits += n
	}
	return nil
}

func (it *Iterator) stepCheckStreamEnd() (Status, error) {
	it.state = stateEmitStreamEnd
	return StatusOK, nil
}

func (it *Iterator) stepEmitStreamEnd() (Status, error) {
	if it.streamBegun {
		it.outbox = append(it.outbox, Message{Kind: KindStreamEnd, Stream: it.streamClass})
	}
	it.state = stateDone
	return StatusOK, nil
}

// stepDecodeScope drives class to completion from the current bit
// cursor, storing the result at *dst and transitioning to next on
// success. A nil class is a no-op (*dst is cleared) since a trace or
// stream is free to omit any given scope.
//
// unboundedOK marks the event scopes (header, common/specific context,
// payload): when true and no bits of the current event have been
// decoded yet (eventOffsetBits == 0) and the packet declares no
// content_size, a medium Eof here is the unbounded packet's end, not a
// truncation — see eofOutcome. Packet header/context scopes always
// pass false: an unknown stream's size is only ever decided by its own
// content_size/total_size fields, never by where the medium runs out.
func (it *Iterator) stepDecodeScope(class *fieldclass.Class, dst **Value, next fsmState, unboundedOK bool) (Status, error) {
	if class == nil {
		*dst = nil
		it.state = next
		return StatusOK, nil
	}

	if !it.scopeStarted {
		if it.bitOffset >= int64(len(it.buf))*8 {
			status, err := it.fillBuffer()
			if err != nil {
				return StatusOK, err
			}
			if status == medium.StatusAgain {
				return StatusAgain, nil
			}
			if status == medium.StatusEOF {
				return it.eofOutcome(class, unboundedOK)
			}
		}
		it.builder = newValueBuilder(it.values)
		consumed, status, err := it.reader.Start(class, it.builder, it.buf, it.bitOffset, it.packetOffsetBits-it.bitOffset)
		return it.afterScopeRun(consumed, status, err, dst, next)
	}

	status, err := it.fillBuffer()
	if err != nil {
		return StatusOK, err
	}
	if status == medium.StatusAgain {
		return StatusAgain, nil
	}
	if status == medium.StatusEOF {
		return it.eofOutcome(class, unboundedOK)
	}
	consumed, status2, err2 := it.reader.Continue(it.buf)
	return it.afterScopeRun(consumed, status2, err2, dst, next)
}

// eofOutcome decides what a medium Eof mid-stepDecodeScope means: a
// truncation error, unless this is an unbounded packet's scope and
// nothing of the current event has been decoded yet, in which case the
// medium's end is the packet's (and the stream's) end. Mirrors
// babeltrace's read_event_header_begin_state, which finalizes on Eof
// exactly when the packet's expected content size is unknown.
func (it *Iterator) eofOutcome(class *fieldclass.Class, unboundedOK bool) (Status, error) {
	if unboundedOK && !it.haveContentSize && it.eventOffsetBits == 0 {
		it.state = stateEmitPacketEnd
		return StatusOK, nil
	}
	return StatusOK, ctf.Wrap(ctf.KindDecode, errTruncatedScope, "decoding "+class.Kind.String())
}

func (it *Iterator) afterScopeRun(consumed int64, status bfcr.Status, err error, dst **Value, next fsmState) (Status, error) {
	if err != nil {
		return StatusOK, ctf.Wrap(ctf.KindDecode, err, "decoding scope")
	}
	it.bitOffset += consumed
	it.packetOffsetBits += consumed
	it.eventOffsetBits += consumed
	if status == bfcr.StatusEOF {
		it.scopeStarted = true
		return StatusAgain, nil
	}
	it.scopeStarted = false
	*dst = it.builder.root
	it.builder = nil
	it.state = next
	return StatusOK, nil
}

func (it *Iterator) fillBuffer() (medium.Status, error) {
	data, status, err := it.med.RequestBytes(64 * 1024)
	if err != nil {
		return status, ctf.Wrap(ctf.KindMedium, err, "requesting bytes")
	}
	if status != medium.StatusOK {
		return status, nil
	}
	it.buf = data
	it.bitOffset = 0
	return medium.StatusOK, nil
}

// foldClockFieldsSkipping walks v, folding every Int leaf whose mapped
// clock matches the current stream's default clock into
// defaultClockSnapshot, except top-level members carrying one of the
// given meanings (packet begin/end time fold separately, in
// chronological order relative to the packet's own events).
func (it *Iterator) foldClockFieldsSkipping(v *Value, skip ...fieldclass.Meaning) {
	if v == nil || v.Class == nil || it.streamClass.DefaultClockClass == nil {
		return
	}
	if v.Class.Kind != fieldclass.KindStruct {
		it.foldClockLeaf(v)
		return
	}
	for i := range v.Members {
		m := &v.Members[i]
		if m.Class != nil && m.Class.Kind == fieldclass.KindInt && meaningIn(skip, m.Class.Int.Meaning) {
			continue
		}
		it.foldClockLeaf(m)
	}
}

func meaningIn(list []fieldclass.Meaning, m fieldclass.Meaning) bool {
	for _, x := range list {
		if x == m {
			return true
		}
	}
	return false
}

func (it *Iterator) foldClockLeaf(v *Value) {
	switch v.Class.Kind {
	case fieldclass.KindInt:
		if v.Class.Int.MappedClock == it.streamClass.DefaultClockClass.Name {
			it.haveDefaultClock = true
			it.defaultClockSnapshot = updateClockSnapshot(it.defaultClockSnapshot, v.UInt, v.Class.Int.Size)
		}
	case fieldclass.KindStruct:
		for i := range v.Members {
			it.foldClockLeaf(&v.Members[i])
		}
	case fieldclass.KindVariant:
		if v.Selected != nil {
			it.foldClockLeaf(v.Selected)
		}
	case fieldclass.KindStaticArray, fieldclass.KindSequence:
		for i := range v.Elements {
			it.foldClockLeaf(&v.Elements[i])
		}
	}
}

// findMeaning returns the top-level member of v's struct carrying
// meaning, or nil if v is not a struct or carries no such member.
func findMeaning(v *Value, meaning fieldclass.Meaning) *Value {
	if v == nil || v.Class == nil || v.Class.Kind != fieldclass.KindStruct {
		return nil
	}
	for i, m := range v.Class.Struct.Members {
		if m.Class.Kind == fieldclass.KindInt && m.Class.Int.Meaning == meaning {
			return &v.Members[i]
		}
	}
	return nil
}
