package metadata

import (
	"github.com/pkg/errors"

	"github.com/tracefmt/ctf/fieldclass"
	"github.com/tracefmt/ctf/fieldpath"
	"github.com/tracefmt/ctf/traceclass"
)

// packetHeaderMeanings/packetContextMeanings/eventHeaderMeanings map a
// top-level struct member's canonical name, after stripping a leading
// underscore, to the "meaning" it carries. Meanings apply only to
// Int-kind members, so a "uuid" field conventionally
// declared as a 16-element byte array (rather than a single Int) is
// left without a meaning tag.
var packetHeaderMeanings = map[string]fieldclass.Meaning{
	"magic":              fieldclass.MeaningMagic,
	"stream_id":          fieldclass.MeaningStreamClassID,
	"stream_instance_id": fieldclass.MeaningDataStreamID,
	"uuid":               fieldclass.MeaningUUID,
}

var packetContextMeanings = map[string]fieldclass.Meaning{
	"timestamp_begin":  fieldclass.MeaningPacketBeginTime,
	"timestamp_end":    fieldclass.MeaningPacketEndTime,
	"content_size":     fieldclass.MeaningPacketContentSize,
	"packet_size":      fieldclass.MeaningPacketTotalSize,
	"events_discarded": fieldclass.MeaningDiscardedEventCounterSnapshot,
	"packet_seq_num":   fieldclass.MeaningPacketCounterSnapshot,
}

var eventHeaderMeanings = map[string]fieldclass.Meaning{
	"id": fieldclass.MeaningEventClassID,
}

func stripUnderscore(s string) string {
	if len(s) > 0 && s[0] == '_' {
		return s[1:]
	}
	return s
}

// tagMeanings assigns Meaning to every top-level Int member of st whose
// canonical name appears in table.
func tagMeanings(st *fieldclass.Struct, table map[string]fieldclass.Meaning) {
	for _, m := range st.Members {
		if m.Class.Kind != fieldclass.KindInt {
			continue
		}
		if meaning, ok := table[stripUnderscore(m.Name)]; ok {
			m.Class.Int.Meaning = meaning
		}
	}
}

// autoMapClock assigns Int.MappedClock on every member of st named one
// of names that doesn't already carry an explicit "map" attribute
//
func (r *Resolver) autoMapClock(st *fieldclass.Struct, names ...string) error {
	for _, m := range st.Members {
		if m.Class.Kind != fieldclass.KindInt || m.Class.Int.MappedClock != "" {
			continue
		}
		name := stripUnderscore(m.Name)
		match := false
		for _, n := range names {
			if name == n {
				match = true
				break
			}
		}
		if !match {
			continue
		}
		cc, err := r.chooseClock()
		if err != nil {
			return errors.Wrapf(err, "auto-mapping clock for %q", m.Name)
		}
		m.Class.Int.MappedClock = cc.Name
	}
	return nil
}

// chooseClock disambiguates between candidate clocks: the
// trace's sole clock if there is exactly one, a synthesized implicit
// 1GHz clock if there are none (unless RejectImplicitClock is set), or
// an error if there is more than one and no explicit mapping was given.
func (r *Resolver) chooseClock() (*traceclass.ClockClass, error) {
	switch len(r.tc.ClockClasses) {
	case 1:
		return r.tc.ClockClasses[0], nil
	case 0:
		if r.RejectImplicitClock {
			return nil, errors.Wrap(ErrValidation, "timestamp field needs a clock class but the trace declares none")
		}
		cc := &traceclass.ClockClass{Name: "default", Frequency: 1000000000, Implicit: true}
		r.tc.ClockClasses = append(r.tc.ClockClasses, cc)
		r.Logger.Debug("synthesizing implicit 1GHz clock class \"default\"")
		return cc, nil
	default:
		return nil, errors.Wrap(ErrValidation, "timestamp field needs a clock class but the trace declares more than one; an explicit \"map\" attribute is required")
	}
}

// resolveRefs walks class and its descendants, resolving every
// Sequence's length reference and Variant's tag reference into a field
// path and a stored-value slot.
func (r *Resolver) resolveRefs(class *fieldclass.Class, scopes fieldpath.Scopes) error {
	switch class.Kind {
	case fieldclass.KindStruct:
		for _, m := range class.Struct.Members {
			if err := r.resolveRefs(m.Class, scopes); err != nil {
				return err
			}
		}

	case fieldclass.KindStaticArray:
		return r.resolveRefs(class.StaticArray.Element, scopes)

	case fieldclass.KindSequence:
		seq := class.Sequence
		if seq.LengthPath == nil {
			path, err := fieldpath.Resolve(seq.LengthName, scopes)
			if err != nil {
				return errors.Wrapf(err, "resolving sequence length %q", seq.LengthName)
			}
			seq.LengthPath = path
			producer := fieldpath.LookupClass(scopeStructFor(scopes, path.Root), path.Indices)
			if producer == nil || producer.Kind != fieldclass.KindInt {
				return errors.Wrapf(ErrValidation, "sequence length %q does not name an integer field", seq.LengthName)
			}
			seq.LengthStoredValueIndex = r.storedValueSlot(producer.Int)
		}
		if err := r.resolveRefs(seq.Element, scopes); err != nil {
			return err
		}

	case fieldclass.KindVariant:
		v := class.Variant
		if v.TagPath == nil {
			path, err := fieldpath.Resolve(v.TagName, scopes)
			if err != nil {
				return errors.Wrapf(err, "resolving variant tag %q", v.TagName)
			}
			v.TagPath = path
			producer := fieldpath.LookupClass(scopeStructFor(scopes, path.Root), path.Indices)
			if producer == nil || producer.Kind != fieldclass.KindEnum {
				return errors.Wrapf(ErrValidation, "variant tag %q does not name an enum field", v.TagName)
			}
			v.TagStoredValueIndex = r.storedValueSlot(&producer.Enum.Base)
			if err := buildVariantRanges(v, producer.Enum); err != nil {
				return err
			}
		}
		for _, opt := range v.Options {
			if err := r.resolveRefs(opt.Class, scopes); err != nil {
				return err
			}
		}
	}
	return nil
}

// buildVariantRanges matches each of a Variant's options against its
// tag enum's labels, stripping a leading underscore from both sides
// before comparing.
func buildVariantRanges(v *fieldclass.Variant, tagEnum *fieldclass.Enum) error {
	for i, opt := range v.Options {
		name := stripUnderscore(opt.Name)
		matched := false
		for _, rg := range tagEnum.Ranges {
			if stripUnderscore(rg.Label) == name {
				v.Ranges = append(v.Ranges, fieldclass.VariantRange{Lower: rg.Lower, Upper: rg.Upper, OptionIndex: i})
				matched = true
			}
		}
		if !matched {
			return errors.Wrapf(ErrValidation, "variant option %q matches no label of its tag enum", opt.Name)
		}
	}
	return nil
}

// storedValueSlot returns producer's existing stored-value slot,
// allocating a new one from the trace-wide counter on first use.
func (r *Resolver) storedValueSlot(producer *fieldclass.Int) int {
	if idx, ok := r.producerIndex[producer]; ok {
		return idx
	}
	idx := r.storedValueCount
	r.storedValueCount++
	r.producerIndex[producer] = idx
	producer.StoredValueIndex = idx
	return idx
}

func scopeStructFor(scopes fieldpath.Scopes, scope fieldclass.Scope) *fieldclass.Struct {
	switch scope {
	case fieldclass.ScopeTracePacketHeader:
		return scopes.PacketHeader
	case fieldclass.ScopeStreamPacketContext:
		return scopes.PacketContext
	case fieldclass.ScopeEventHeader:
		return scopes.EventHeader
	case fieldclass.ScopeEventCommonContext:
		return scopes.EventCommonCtx
	case fieldclass.ScopeEventSpecContext:
		return scopes.EventSpecCtx
	case fieldclass.ScopeEventPayload:
		return scopes.EventPayload
	default:
		return nil
	}
}
