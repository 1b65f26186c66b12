// Package fieldclass implements the CTF field-class tree: the type of
// a field, as opposed to its value. This generalizes the tagged
// perf_event_attr/record-layout structs of perffile/format.go
// (aclements/go-perf) from a small fixed set of on-disk record shapes to
// an arbitrary, recursively-defined tree of scalar and compound classes.
package fieldclass

import "github.com/tracefmt/ctf/bitbuf"

// Kind tags which variant of Class is populated. Go has no tagged union,
// so Class carries one pointer per variant the way EventGeneric in
// perffile/events.go carries a Type discriminant alongside per-kind
// fields; Kind plays that role here.
type Kind int

const (
	KindInt Kind = iota
	KindEnum
	KindFloat
	KindString
	KindStruct
	KindVariant
	KindStaticArray
	KindSequence
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindEnum:
		return "enum"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindStruct:
		return "struct"
	case KindVariant:
		return "variant"
	case KindStaticArray:
		return "static_array"
	case KindSequence:
		return "sequence"
	default:
		return "unknown"
	}
}

// Meaning is the canonical role of a named Int field discovered in one
// of the header/context scopes.
type Meaning int

const (
	MeaningNone Meaning = iota
	MeaningMagic
	MeaningUUID
	MeaningStreamClassID
	MeaningDataStreamID
	MeaningEventClassID
	MeaningPacketTotalSize
	MeaningPacketContentSize
	MeaningPacketBeginTime
	MeaningPacketEndTime
	MeaningDiscardedEventCounterSnapshot
	MeaningPacketCounterSnapshot
)

// Class is one node of a field-class tree: a tagged variant over Int,
// Enum, Float, String, Struct, Variant, StaticArray, and Sequence.
//
// Exactly one of the Kind-named fields is non-nil/meaningful, chosen by
// Kind. Struct/Variant/StaticArray/Sequence are "compound" classes (they
// contain other classes); Int/Enum/Float/String are "basic".
type Class struct {
	Kind Kind

	// InIR controls whether a decoded value of this class is attached
	// to the emitted message. When false, BFCR still
	// reads the field (to keep the bit cursor correct and to resolve
	// any stored values it produces) but the value is dropped before
	// reaching the caller-visible event/packet.
	InIR bool

	Int         *Int
	Enum        *Enum
	Float       *Float
	String      *String
	Struct      *Struct
	Variant     *Variant
	StaticArray *StaticArray
	Sequence    *Sequence
}

// IsCompound reports whether this class contains child classes.
func (c *Class) IsCompound() bool {
	switch c.Kind {
	case KindStruct, KindVariant, KindStaticArray, KindSequence:
		return true
	default:
		return false
	}
}

// Alignment returns the class's bit alignment (a power of two >= 1).
func (c *Class) Alignment() int {
	switch c.Kind {
	case KindInt:
		return c.Int.Alignment
	case KindEnum:
		return c.Enum.Base.Alignment
	case KindFloat:
		return c.Float.Alignment
	case KindString:
		return 8
	case KindStruct:
		return c.Struct.Alignment
	case KindVariant:
		return 1
	case KindStaticArray:
		return c.StaticArray.Element.Alignment()
	case KindSequence:
		return c.Sequence.Element.Alignment()
	default:
		return 1
	}
}

// BitSize returns the fixed bit size of a basic class, or -1 if the
// class's size is not statically known (compound classes, and any class
// containing a Sequence).
func (c *Class) BitSize() int {
	switch c.Kind {
	case KindInt:
		return c.Int.Size
	case KindEnum:
		return c.Enum.Base.Size
	case KindFloat:
		return c.Float.Size
	default:
		return -1
	}
}

// Int is an integer field class.
type Int struct {
	Size      int // 1..64
	Signed    bool
	Order     bitbuf.ByteOrder
	Alignment int
	Base      DisplayBase

	// Encoding hints that this Int, when part of a static/dynamic
	// array, should be treated as a "text" run of bytes rather than a
	// numeric sequence; for a lone Int, Encoding carries the same hint
	// for the rarely used "encoded single character" case.
	Encoding Encoding

	// MappedClock is the name of the clock class this field's decoded
	// value should be interpreted against, or "" if none.
	MappedClock string

	// StoredValueIndex, when >= 0, is the index in the stored-values
	// table (fieldclass.StoredValues) that this Int's decoded value is
	// written to, because some Sequence or Variant downstream resolves
	// its length/tag from this field.
	StoredValueIndex int

	// Meaning is the canonical role of this field, if any, assigned during the semantic pass by canonical name and
	// scope.
	Meaning Meaning
}

// NoStoredValue is the sentinel for Int.StoredValueIndex/Sequence
// length ref/Variant tag ref when no stored value is associated.
const NoStoredValue = -1

// DisplayBase is the preferred textual base for presenting an Int's
// decoded value. It has no effect on decoding; it is carried through so
// a downstream sink can render consistently with the producer's intent.
type DisplayBase int

const (
	BaseDecimal DisplayBase = iota
	BaseHex
	BaseOctal
	BaseBinary
)

// Encoding is a string-encoding hint on an Int or String class.
type Encoding int

const (
	EncodingNone Encoding = iota
	EncodingUTF8
	EncodingASCII
)

// Float is a floating-point field class. Only 32- and 64-bit floats are
// supported.
type Float struct {
	Size      int // 32 or 64
	Order     bitbuf.ByteOrder
	Alignment int
}

// String is a byte-aligned, null-terminated string field class.
type String struct {
	Encoding Encoding
}

// EnumRange is one {label, [lower,upper]} mapping of an Enum class. The
// range is inclusive on both ends and, per CTF, may overlap with other
// ranges in the same enum.
type EnumRange struct {
	Label string
	Lower int64
	Upper int64
}

// Enum is an Int class plus an ordered set of label<->range mappings.
type Enum struct {
	Base   Int
	Ranges []EnumRange
}

// LabelsFor returns every label whose range contains v. CTF enum ranges
// may overlap, so more than one label can match.
func (e *Enum) LabelsFor(v int64) []string {
	var labels []string
	for _, r := range e.Ranges {
		if v >= r.Lower && v <= r.Upper {
			labels = append(labels, r.Label)
		}
	}
	return labels
}

// Member is one named field of a Struct.
type Member struct {
	Name  string
	Class *Class
}

// Struct is an ordered, named sequence of member classes.
type Struct struct {
	Members   []Member
	Alignment int
}

// IndexOf returns the index of the member named name (after stripping a
// single leading underscore from both name and candidates, per CTF
// convention), or -1 if not found.
func (s *Struct) IndexOf(name string) int {
	name = stripLeadingUnderscore(name)
	for i, m := range s.Members {
		if stripLeadingUnderscore(m.Name) == name {
			return i
		}
	}
	return -1
}

func stripLeadingUnderscore(s string) string {
	if len(s) > 0 && s[0] == '_' {
		return s[1:]
	}
	return s
}

// VariantOption is one named alternative of a Variant.
type VariantOption struct {
	Name  string
	Class *Class
}

// VariantRange maps one inclusive tag range to the index of the
// selected VariantOption; it is precomputed from the tag enum's
// mappings during the semantic pass so BFCR need not re-walk the enum
// on every decode.
type VariantRange struct {
	Lower, Upper int64
	OptionIndex  int
}

// Variant is a tagged union: a tag field reference, an ordered set of
// named options, and a precomputed range table from tag value to
// selected option.
type Variant struct {
	Options []VariantOption
	Ranges  []VariantRange

	// TagName is the unresolved textual tag reference as written in
	// TSDL, kept for diagnostics even after TagPath is resolved.
	TagName string

	// TagPath and TagStoredValueIndex are filled in by the field-path
	// resolver (fieldpath package); TagStoredValueIndex indexes into
	// the stored-values table to find the already-decoded tag value.
	TagPath             *Path
	TagStoredValueIndex int
}

// SelectOption returns the option selected by tag value v, or -1 if no
// range matches.
func (v *Variant) SelectOption(tagValue int64) int {
	for _, r := range v.Ranges {
		if tagValue >= r.Lower && tagValue <= r.Upper {
			return r.OptionIndex
		}
	}
	return -1
}

// StaticArray is a fixed-length array of a single element class.
type StaticArray struct {
	Element *Class
	Length  int
	IsText  bool
}

// Sequence is a dynamic-length array (CTF's "sequence") of a single
// element class, whose length is read from a previously decoded Int
// field at decode time.
type Sequence struct {
	Element *Class

	// LengthName is the unresolved textual length reference.
	LengthName string

	// LengthPath and LengthStoredValueIndex are filled in by the
	// field-path resolver.
	LengthPath             *Path
	LengthStoredValueIndex int

	IsText bool
}

// Path is a compile-time-resolved field path: a root dynamic scope plus
// a sequence of member indices to follow from that scope's root struct
// down to the referenced field. The fieldpath package builds Paths from
// the relative/absolute textual references TSDL allows; fieldclass only
// needs the resolved shape so Variant/Sequence can carry it without an
// import cycle back to fieldpath.
type Path struct {
	Root    Scope
	Indices []int
}

// Scope names one of the six (plus trace-level) dynamic containers a
// field path can be rooted at.
type Scope int

const (
	ScopeTracePacketHeader Scope = iota
	ScopeStreamPacketContext
	ScopeEventHeader
	ScopeEventCommonContext
	ScopeEventSpecContext
	ScopeEventPayload
)

func (s Scope) String() string {
	switch s {
	case ScopeTracePacketHeader:
		return "trace.packet.header"
	case ScopeStreamPacketContext:
		return "stream.packet.context"
	case ScopeEventHeader:
		return "stream.event.header"
	case ScopeEventCommonContext:
		return "stream.event.context"
	case ScopeEventSpecContext:
		return "event.context"
	case ScopeEventPayload:
		return "event.fields"
	default:
		return "unknown scope"
	}
}
