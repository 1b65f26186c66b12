// Package traceclass holds the trace class graph: the immutable
// description of a trace's structure built once by the metadata
// semantic pass and then borrowed (never owned) by the message
// iterator for the life of decoding.
//
// The shape follows babeltrace's ctf_trace_class / ctf_stream_class /
// ctf_event_class / clock-class structs (original_source's
// plugins/ctf/common/metadata/ctf-meta.h), with GPtrArray/GHashTable
// collections replaced by Go slices and maps and glib's GString
// replaced by plain strings.
package traceclass

import (
	"github.com/tracefmt/ctf/bitbuf"
	"github.com/tracefmt/ctf/fieldclass"
)

// EnvEntry is one `env { key = value; }` entry. TSDL environment
// values are either an integer or a string; exactly one of IsInt's
// branches is meaningful.
type EnvEntry struct {
	Name  string
	IsInt bool
	Int   int64
	Str   string
}

// ClockClass describes one `clock { ... }` block.
// Origin is always boot, not the Unix epoch, unless Absolute is set.
type ClockClass struct {
	Name string

	// Frequency is the clock's tick rate in Hz; cycle values read
	// through this clock are divided by Frequency to get seconds.
	Frequency uint64

	// Precision is the clock's precision in cycles, 0 if unspecified.
	Precision uint64

	// OffsetSeconds/OffsetCycles together locate cycle 0 relative to
	// the clock's origin.
	OffsetSeconds int64
	OffsetCycles  uint64

	UUID       [16]byte
	HasUUID    bool
	Absolute   bool
	Descr      string

	// Implicit is true for the synthesized 1 GHz "default" clock
	// created when no clock block exists but a timestamp field needs
	// one.
	Implicit bool
}

// EventClass describes one `event { ... }` block bound to a stream class.
type EventClass struct {
	ID       uint64
	Name     string
	EMFURI   string
	LogLevel int32 // -1 if unset

	// SpecificContext and Payload are nil when the event declares no
	// such struct.
	SpecificContext *fieldclass.Class
	Payload         *fieldclass.Class
}

// StreamClass describes one `stream { ... }` block.
// EventClasses is indexed by position, not necessarily by EventClass.ID;
// use EventByID to look one up by its declared numeric id.
type StreamClass struct {
	ID uint64

	PacketContext      *fieldclass.Class
	EventHeader        *fieldclass.Class
	EventCommonContext *fieldclass.Class

	EventClasses []*EventClass
	byID         map[uint64]*EventClass

	// DefaultClockClass is the clock auto-mapped to this stream's
	// timestamp fields, or nil if the stream has none.
	DefaultClockClass *ClockClass

	// HasPacketBeginTime/HasPacketEndTime/HasDiscardedEvents/HasDiscardedPackets
	// record which optional packet-context fields this stream class's
	// packet context declares, by canonical member name, so the message
	// iterator knows which counters/clocks it can read per packet.
	HasPacketBeginTime    bool
	HasPacketEndTime      bool
	HasDiscardedEvents    bool
	HasDiscardedPackets   bool
}

// EventByID returns the event class with the given id, or nil.
func (sc *StreamClass) EventByID(id uint64) *EventClass {
	if sc.byID == nil {
		return nil
	}
	return sc.byID[id]
}

// IndexEventClasses (re)builds the id lookup table from EventClasses.
// Called by the metadata pass after all event classes for a stream are
// known; id collisions are a validation error the caller must detect
// before indexing.
func (sc *StreamClass) IndexEventClasses() {
	sc.byID = make(map[uint64]*EventClass, len(sc.EventClasses))
	for _, ec := range sc.EventClasses {
		sc.byID[ec.ID] = ec
	}
}

// TraceClass is the root of the trace class graph: built
// once from TSDL by the metadata semantic pass, then immutable and
// shared read-only by every stream the message iterator decodes.
type TraceClass struct {
	Name  string
	Major uint32
	Minor uint32

	UUID    [16]byte
	HasUUID bool

	DefaultByteOrder bitbuf.ByteOrder

	PacketHeader *fieldclass.Class

	StreamClasses []*StreamClass
	byStreamID    map[uint64]*StreamClass

	Env []EnvEntry

	ClockClasses []*ClockClass

	// StoredValueCount is the number of slots the decoder must
	// allocate in a fieldclass.StoredValues table to decode any
	// stream of this trace.
	StoredValueCount int
}

// StreamByID returns the stream class with the given numeric id, or
// nil.
func (tc *TraceClass) StreamByID(id uint64) *StreamClass {
	if tc.byStreamID == nil {
		return nil
	}
	return tc.byStreamID[id]
}

// IndexStreamClasses (re)builds the id lookup table from StreamClasses.
func (tc *TraceClass) IndexStreamClasses() {
	tc.byStreamID = make(map[uint64]*StreamClass, len(tc.StreamClasses))
	for _, sc := range tc.StreamClasses {
		tc.byStreamID[sc.ID] = sc
	}
}

// ClockByName returns the clock class with the given name, or nil.
func (tc *TraceClass) ClockByName(name string) *ClockClass {
	for _, cc := range tc.ClockClasses {
		if cc.Name == name {
			return cc
		}
	}
	return nil
}

// EnvInt returns the integer value of an env entry by name and whether
// it was present and integer-typed.
func (tc *TraceClass) EnvInt(name string) (int64, bool) {
	for _, e := range tc.Env {
		if e.Name == name && e.IsInt {
			return e.Int, true
		}
	}
	return 0, false
}

// EnvString returns the string value of an env entry by name and
// whether it was present and string-typed.
func (tc *TraceClass) EnvString(name string) (string, bool) {
	for _, e := range tc.Env {
		if e.Name == name && !e.IsInt {
			return e.Str, true
		}
	}
	return "", false
}
