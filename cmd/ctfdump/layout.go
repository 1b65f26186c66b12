package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/tracefmt/ctf/bitbuf"
	"github.com/tracefmt/ctf/fieldclass"
	"github.com/tracefmt/ctf/traceclass"
)

// fieldSpec is one member of a layout's flat, JSON-decodable field
// list: the CLI's deliberately small stand-in for a real TSDL
// declaration, since the lexer/parser that would normally produce a
// fieldclass.Class tree (metadata/ast's Node graph) is out of scope.
// traceLayout covers exactly the shapes the six dynamic scopes need to
// demonstrate end to end: scalar ints, clock-mapped timestamps, and
// NUL-terminated strings.
type fieldSpec struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"`    // "int" or "string"
	Size    int    `json:"size"`    // bits, int only; default 32
	Signed  bool   `json:"signed"`  // int only
	Order   string `json:"order"`   // "le" or "be"; default trace default
	Base    string `json:"base"`    // "dec", "hex", "oct", "bin"; default dec
	Meaning string `json:"meaning"` // see meaningByName
	Clock   string `json:"clock"`   // mapped clock name, int only
}

type eventSpec struct {
	ID      uint64      `json:"id"`
	Name    string      `json:"name"`
	Payload []fieldSpec `json:"payload"`
}

type streamSpec struct {
	ID            uint64      `json:"id"`
	PacketContext []fieldSpec `json:"packet_context"`
	EventHeader   []fieldSpec `json:"event_header"`
	Events        []eventSpec `json:"events"`
}

type clockSpec struct {
	Name        string `json:"name"`
	FrequencyHz uint64 `json:"frequency_hz"`
}

// traceLayout is the top-level shape a --layout JSON file must take.
type traceLayout struct {
	Name             string       `json:"name"`
	DefaultByteOrder string       `json:"default_byte_order"` // "le" or "be"
	PacketHeader     []fieldSpec  `json:"packet_header"`
	Clocks           []clockSpec  `json:"clocks"`
	Streams          []streamSpec `json:"streams"`
}

// loadLayout reads and decodes a layout file from path.
func loadLayout(path string) (*traceLayout, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening layout file")
	}
	defer f.Close()
	return decodeLayout(f)
}

func decodeLayout(r io.Reader) (*traceLayout, error) {
	var tl traceLayout
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&tl); err != nil {
		return nil, errors.Wrap(err, "decoding layout JSON")
	}
	return &tl, nil
}

var meaningByName = map[string]fieldclass.Meaning{
	"":                    fieldclass.MeaningNone,
	"magic":               fieldclass.MeaningMagic,
	"uuid":                fieldclass.MeaningUUID,
	"stream_id":           fieldclass.MeaningStreamClassID,
	"stream_instance_id":  fieldclass.MeaningDataStreamID,
	"event_id":            fieldclass.MeaningEventClassID,
	"packet_total_size":   fieldclass.MeaningPacketTotalSize,
	"packet_content_size": fieldclass.MeaningPacketContentSize,
	"timestamp_begin":     fieldclass.MeaningPacketBeginTime,
	"timestamp_end":       fieldclass.MeaningPacketEndTime,
	"discarded_events":    fieldclass.MeaningDiscardedEventCounterSnapshot,
	"packet_seq_num":      fieldclass.MeaningPacketCounterSnapshot,
}

var baseByName = map[string]fieldclass.DisplayBase{
	"":    fieldclass.BaseDecimal,
	"dec": fieldclass.BaseDecimal,
	"hex": fieldclass.BaseHex,
	"oct": fieldclass.BaseOctal,
	"bin": fieldclass.BaseBinary,
}

func byteOrder(name string, fallback bitbuf.ByteOrder) (bitbuf.ByteOrder, error) {
	switch name {
	case "":
		return fallback, nil
	case "le":
		return bitbuf.LittleEndian, nil
	case "be":
		return bitbuf.BigEndian, nil
	default:
		return 0, errors.Errorf("unknown byte order %q", name)
	}
}

// buildField turns one fieldSpec into a fieldclass.Class, the layout
// builder's equivalent of metadata.Resolver.resolveTypeSpecifierList
// for the handful of shapes a layout file can express.
func buildField(fs fieldSpec, defaultOrder bitbuf.ByteOrder) (*fieldclass.Class, error) {
	order, err := byteOrder(fs.Order, defaultOrder)
	if err != nil {
		return nil, errors.Wrapf(err, "field %q", fs.Name)
	}
	switch fs.Kind {
	case "", "int":
		size := fs.Size
		if size == 0 {
			size = 32
		}
		meaning, ok := meaningByName[fs.Meaning]
		if !ok {
			return nil, errors.Errorf("field %q: unknown meaning %q", fs.Name, fs.Meaning)
		}
		base, ok := baseByName[fs.Base]
		if !ok {
			return nil, errors.Errorf("field %q: unknown base %q", fs.Name, fs.Base)
		}
		return &fieldclass.Class{Kind: fieldclass.KindInt, InIR: true, Int: &fieldclass.Int{
			Size:             size,
			Signed:           fs.Signed,
			Order:            order,
			Alignment:        8,
			Base:             base,
			MappedClock:      fs.Clock,
			StoredValueIndex: fieldclass.NoStoredValue,
			Meaning:          meaning,
		}}, nil
	case "string":
		return &fieldclass.Class{Kind: fieldclass.KindString, InIR: true, String: &fieldclass.String{
			Encoding: fieldclass.EncodingUTF8,
		}}, nil
	default:
		return nil, errors.Errorf("field %q: unknown kind %q", fs.Name, fs.Kind)
	}
}

func buildStruct(fields []fieldSpec, defaultOrder bitbuf.ByteOrder) (*fieldclass.Class, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	members := make([]fieldclass.Member, len(fields))
	for i, fs := range fields {
		class, err := buildField(fs, defaultOrder)
		if err != nil {
			return nil, err
		}
		members[i] = fieldclass.Member{Name: fs.Name, Class: class}
	}
	return &fieldclass.Class{Kind: fieldclass.KindStruct, InIR: true, Struct: &fieldclass.Struct{
		Members:   members,
		Alignment: 8,
	}}, nil
}

func hasMember(c *fieldclass.Class, name string) bool {
	if c == nil {
		return false
	}
	return c.Struct.IndexOf(name) >= 0
}

// buildTraceClass converts a traceLayout into the traceclass.TraceClass
// graph msgiter.Iterator needs, the CLI's stand-in for the
// metadata package's TSDL-driven semantic pass.
func buildTraceClass(tl *traceLayout) (*traceclass.TraceClass, error) {
	order, err := byteOrder(tl.DefaultByteOrder, bitbuf.LittleEndian)
	if err != nil {
		return nil, err
	}

	tc := &traceclass.TraceClass{Name: tl.Name, DefaultByteOrder: order}
	for _, cs := range tl.Clocks {
		tc.ClockClasses = append(tc.ClockClasses, &traceclass.ClockClass{
			Name: cs.Name, Frequency: cs.FrequencyHz,
		})
	}

	header, err := buildStruct(tl.PacketHeader, order)
	if err != nil {
		return nil, errors.Wrap(err, "packet_header")
	}
	tc.PacketHeader = header

	for _, ss := range tl.Streams {
		sc := &traceclass.StreamClass{ID: ss.ID}

		context, err := buildStruct(ss.PacketContext, order)
		if err != nil {
			return nil, errors.Wrapf(err, "stream %d packet_context", ss.ID)
		}
		sc.PacketContext = context
		if context != nil {
			sc.HasPacketBeginTime = hasMember(context, "timestamp_begin")
			sc.HasPacketEndTime = hasMember(context, "timestamp_end")
			sc.HasDiscardedEvents = hasMember(context, "events_discarded")
			sc.HasDiscardedPackets = hasMember(context, "packet_seq_num")
		}

		eventHeader, err := buildStruct(ss.EventHeader, order)
		if err != nil {
			return nil, errors.Wrapf(err, "stream %d event_header", ss.ID)
		}
		sc.EventHeader = eventHeader
		sc.DefaultClockClass = streamDefaultClock(tc, eventHeader)

		for _, es := range ss.Events {
			payload, err := buildStruct(es.Payload, order)
			if err != nil {
				return nil, errors.Wrapf(err, "stream %d event %d payload", ss.ID, es.ID)
			}
			sc.EventClasses = append(sc.EventClasses, &traceclass.EventClass{
				ID: es.ID, Name: es.Name, LogLevel: -1, Payload: payload,
			})
		}
		sc.IndexEventClasses()
		tc.StreamClasses = append(tc.StreamClasses, sc)
	}
	tc.IndexStreamClasses()
	return tc, nil
}

// streamDefaultClock mirrors metadata.Resolver.streamDefaultClock: a
// stream's default clock is whichever one its own "timestamp" event
// header field names.
func streamDefaultClock(tc *traceclass.TraceClass, eventHeader *fieldclass.Class) *traceclass.ClockClass {
	if eventHeader == nil {
		return nil
	}
	idx := eventHeader.Struct.IndexOf("timestamp")
	if idx < 0 {
		return nil
	}
	m := eventHeader.Struct.Members[idx]
	if m.Class.Kind != fieldclass.KindInt || m.Class.Int.MappedClock == "" {
		return nil
	}
	return tc.ClockByName(m.Class.Int.MappedClock)
}

// defaultLayout is the built-in layout used when --layout is omitted:
// a single stream following the common LTTng-kernel packet shape
// (magic/stream_id header; content_size/packet_size/begin/end/
// events_discarded context; id+timestamp event header) with one
// generic event class carrying a handful of payload fields, enough to
// exercise clock reconstruction and discarded-event detection against
// a real capture without a TSDL front end.
func defaultLayout() *traceLayout {
	return &traceLayout{
		Name:             "default",
		DefaultByteOrder: "le",
		Clocks:           []clockSpec{{Name: "monotonic", FrequencyHz: 1000000000}},
		PacketHeader: []fieldSpec{
			{Name: "magic", Kind: "int", Size: 32, Meaning: "magic", Base: "hex"},
			{Name: "stream_id", Kind: "int", Size: 32, Meaning: "stream_id"},
		},
		Streams: []streamSpec{
			{
				ID: 0,
				PacketContext: []fieldSpec{
					{Name: "content_size", Kind: "int", Size: 64, Meaning: "packet_content_size"},
					{Name: "packet_size", Kind: "int", Size: 64, Meaning: "packet_total_size"},
					{Name: "timestamp_begin", Kind: "int", Size: 64, Meaning: "timestamp_begin", Clock: "monotonic"},
					{Name: "timestamp_end", Kind: "int", Size: 64, Meaning: "timestamp_end", Clock: "monotonic"},
					{Name: "events_discarded", Kind: "int", Size: 64, Meaning: "discarded_events"},
				},
				EventHeader: []fieldSpec{
					{Name: "id", Kind: "int", Size: 32, Meaning: "event_id"},
					{Name: "timestamp", Kind: "int", Size: 64, Clock: "monotonic"},
				},
				Events: []eventSpec{
					{ID: 0, Name: "event", Payload: []fieldSpec{
						{Name: "value", Kind: "int", Size: 64, Signed: true},
						{Name: "message", Kind: "string"},
					}},
				},
			},
		},
	}
}
