package metadata

import (
	"github.com/pkg/errors"

	"github.com/tracefmt/ctf/fieldclass"
	"github.com/tracefmt/ctf/fieldpath"
	"github.com/tracefmt/ctf/metadata/ast"
	"github.com/tracefmt/ctf/traceclass"
)

func (r *Resolver) processStreamBlock(sb *ast.StreamBlock) (*traceclass.StreamClass, error) {
	exprs := ctfExpressions(sb.Members)

	sc := &traceclass.StreamClass{}
	if v, ok := intAttr(exprs, "id"); ok {
		sc.ID = uint64(v)
	}

	r.scopes.push()
	defer r.scopes.pop()

	if tsl, ok := typeAttrOf(exprs, "packet.context"); ok {
		class, err := r.resolveTypeSpecifierList(tsl)
		if err != nil {
			return nil, errors.Wrap(err, "stream \"packet.context\"")
		}
		if class.Kind != fieldclass.KindStruct {
			return nil, errors.Wrap(ErrValidation, "stream \"packet.context\" must be a struct")
		}
		sc.PacketContext = class
	}
	if tsl, ok := typeAttrOf(exprs, "event.header"); ok {
		class, err := r.resolveTypeSpecifierList(tsl)
		if err != nil {
			return nil, errors.Wrap(err, "stream \"event.header\"")
		}
		if class.Kind != fieldclass.KindStruct {
			return nil, errors.Wrap(ErrValidation, "stream \"event.header\" must be a struct")
		}
		sc.EventHeader = class
	}
	if tsl, ok := typeAttrOf(exprs, "event.context"); ok {
		class, err := r.resolveTypeSpecifierList(tsl)
		if err != nil {
			return nil, errors.Wrap(err, "stream \"event.context\"")
		}
		if class.Kind != fieldclass.KindStruct {
			return nil, errors.Wrap(ErrValidation, "stream \"event.context\" must be a struct")
		}
		sc.EventCommonContext = class
	}

	scopes := fieldpath.Scopes{PacketHeader: structOf(r.tc.PacketHeader)}
	if sc.PacketContext != nil {
		tagMeanings(sc.PacketContext.Struct, packetContextMeanings)
		sc.HasPacketBeginTime = hasMember(sc.PacketContext.Struct, "timestamp_begin")
		sc.HasPacketEndTime = hasMember(sc.PacketContext.Struct, "timestamp_end")
		sc.HasDiscardedEvents = hasMember(sc.PacketContext.Struct, "events_discarded")
		sc.HasDiscardedPackets = hasMember(sc.PacketContext.Struct, "packet_seq_num")
		if err := r.autoMapClock(sc.PacketContext.Struct, "timestamp_begin", "timestamp_end"); err != nil {
			return nil, err
		}
		scopes.PacketContext = sc.PacketContext.Struct
		if err := r.resolveRefs(sc.PacketContext, scopes); err != nil {
			return nil, errors.Wrap(err, "resolving stream packet context")
		}
	}
	if sc.EventHeader != nil {
		tagMeanings(sc.EventHeader.Struct, eventHeaderMeanings)
		if err := r.autoMapClock(sc.EventHeader.Struct, "timestamp"); err != nil {
			return nil, err
		}
		scopes.EventHeader = sc.EventHeader.Struct
		if err := r.resolveRefs(sc.EventHeader, scopes); err != nil {
			return nil, errors.Wrap(err, "resolving stream event header")
		}
	}
	if sc.EventCommonContext != nil {
		if err := r.autoMapClock(sc.EventCommonContext.Struct, "timestamp"); err != nil {
			return nil, err
		}
		scopes.EventCommonCtx = sc.EventCommonContext.Struct
		if err := r.resolveRefs(sc.EventCommonContext, scopes); err != nil {
			return nil, errors.Wrap(err, "resolving stream event common context")
		}
	}

	if cc := r.streamDefaultClock(sc); cc != nil {
		sc.DefaultClockClass = cc
	}

	return sc, nil
}

// streamDefaultClock picks the clock a stream's own timestamp fields
// ended up mapped to, if any; msgiter folds only fields mapped to this
// clock into its default clock snapshot.
func (r *Resolver) streamDefaultClock(sc *traceclass.StreamClass) *traceclass.ClockClass {
	if sc.EventHeader == nil {
		return nil
	}
	idx := sc.EventHeader.Struct.IndexOf("timestamp")
	if idx < 0 {
		return nil
	}
	m := sc.EventHeader.Struct.Members[idx]
	if m.Class.Kind != fieldclass.KindInt || m.Class.Int.MappedClock == "" {
		return nil
	}
	return r.tc.ClockByName(m.Class.Int.MappedClock)
}

func (r *Resolver) processEventBlock(eb *ast.EventBlock) error {
	exprs := ctfExpressions(eb.Members)

	var sc *traceclass.StreamClass
	if v, ok := intAttr(exprs, "stream_id"); ok {
		sc = r.tc.StreamByID(uint64(v))
		if sc == nil {
			return errors.Wrapf(ErrValidation, "event references unknown stream_id %d", v)
		}
	} else if len(r.tc.StreamClasses) == 1 {
		sc = r.tc.StreamClasses[0]
	} else {
		return errors.Wrap(ErrValidation, "event block requires \"stream_id\" when the trace declares more than one stream")
	}

	ec := &traceclass.EventClass{LogLevel: -1}
	if name, ok := stringAttr(exprs, "name"); ok {
		ec.Name = name
	}
	if v, ok := intAttr(exprs, "id"); ok {
		ec.ID = uint64(v)
	} else if len(sc.EventClasses) == 0 {
		ec.ID = 0
	} else {
		return errors.Wrap(ErrValidation, "event block requires \"id\" when its stream already declares another event")
	}
	if uri, ok := stringAttr(exprs, "model.emf.uri"); ok {
		ec.EMFURI = uri
	}
	if lvl, ok := intAttr(exprs, "loglevel"); ok {
		ec.LogLevel = int32(lvl)
	}

	r.scopes.push()
	defer r.scopes.pop()

	if tsl, ok := typeAttrOf(exprs, "context"); ok {
		class, err := r.resolveTypeSpecifierList(tsl)
		if err != nil {
			return errors.Wrap(err, "event \"context\"")
		}
		if class.Kind != fieldclass.KindStruct {
			return errors.Wrap(ErrValidation, "event \"context\" must be a struct")
		}
		ec.SpecificContext = class
	}
	if tsl, ok := typeAttrOf(exprs, "fields"); ok {
		class, err := r.resolveTypeSpecifierList(tsl)
		if err != nil {
			return errors.Wrap(err, "event \"fields\"")
		}
		if class.Kind != fieldclass.KindStruct {
			return errors.Wrap(ErrValidation, "event \"fields\" must be a struct")
		}
		ec.Payload = class
	}

	scopes := fieldpath.Scopes{
		PacketHeader:   structOf(r.tc.PacketHeader),
		PacketContext:  structOf(sc.PacketContext),
		EventHeader:    structOf(sc.EventHeader),
		EventCommonCtx: structOf(sc.EventCommonContext),
		EventSpecCtx:   structOf(ec.SpecificContext),
		EventPayload:   structOf(ec.Payload),
	}
	if ec.SpecificContext != nil {
		if err := r.resolveRefs(ec.SpecificContext, scopes); err != nil {
			return errors.Wrap(err, "resolving event specific context")
		}
	}
	if ec.Payload != nil {
		if err := r.resolveRefs(ec.Payload, scopes); err != nil {
			return errors.Wrap(err, "resolving event payload")
		}
	}

	for _, existing := range sc.EventClasses {
		if existing.ID == ec.ID {
			return errors.Wrapf(ErrValidation, "duplicate event id %d in stream %d", ec.ID, sc.ID)
		}
	}
	sc.EventClasses = append(sc.EventClasses, ec)
	sc.IndexEventClasses()
	return nil
}

func structOf(c *fieldclass.Class) *fieldclass.Struct {
	if c == nil {
		return nil
	}
	return c.Struct
}

func hasMember(st *fieldclass.Struct, name string) bool {
	return st.IndexOf(name) >= 0
}
