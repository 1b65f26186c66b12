package msgiter

import "github.com/tracefmt/ctf/traceclass"

// MessageKind tags which variant of Message is populated, the output
// counterpart of fieldclass.Class's Kind discriminant.
type MessageKind int

const (
	KindStreamBeginning MessageKind = iota
	KindPacketBeginning
	KindEvent
	KindDiscardedEvents
	KindDiscardedPackets
	KindPacketEnd
	KindStreamEnd
	KindIteratorInactivity
)

func (k MessageKind) String() string {
	switch k {
	case KindStreamBeginning:
		return "stream_beginning"
	case KindPacketBeginning:
		return "packet_beginning"
	case KindEvent:
		return "event"
	case KindDiscardedEvents:
		return "discarded_events"
	case KindDiscardedPackets:
		return "discarded_packets"
	case KindPacketEnd:
		return "packet_end"
	case KindStreamEnd:
		return "stream_end"
	case KindIteratorInactivity:
		return "iterator_inactivity"
	default:
		return "unknown"
	}
}

// clockSnapshot is a 64-bit clock value together with whether it is
// present; an absent snapshot is carried through as a zero value rather
// than a sentinel so callers cannot mistake it for cycle zero.
type clockSnapshot struct {
	Value   uint64
	Present bool
}

// Packet identifies the packet a message belongs to, within one
// stream's sequence of packets.
type Packet struct {
	StreamClass *traceclass.StreamClass
	Index       uint64

	TotalSizeBits   int64
	ContentSizeBits int64

	// Header/Context hold the decoded packet header and packet context
	// structs, or nil if the trace/stream declares none.
	Header  *Value
	Context *Value
}

// Message is one item of the iterator's output sequence (the "Output
// message stream" family). Exactly the fields relevant to Kind are
// meaningful.
type Message struct {
	Kind MessageKind

	Stream *traceclass.StreamClass
	Packet *Packet

	EventClass *traceclass.EventClass

	// CommonContext/SpecificContext/Payload are nil when the stream or
	// event class declares no such struct.
	CommonContext   *Value
	SpecificContext *Value
	Payload         *Value

	// DefaultClockSnapshot is present on PacketBeginning, Event, and
	// PacketEnd messages whose stream has a default clock class.
	DefaultClockSnapshot clockSnapshot

	// BeginClockSnapshot/EndClockSnapshot bound a DiscardedEvents or
	// DiscardedPackets message's span.
	BeginClockSnapshot clockSnapshot
	EndClockSnapshot   clockSnapshot

	// Count is the number of discarded events, when known, or the
	// number of discarded packets (always known, >= 1).
	Count      uint64
	CountKnown bool
}
