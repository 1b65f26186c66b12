// Package msgiter implements the message iterator: a packet/stream
// state machine layered on bfcr that drives decoding across a packet's
// six nested dynamic scopes, reconstructs clock values, tracks
// discarded-event/packet snapshots, and emits a well-ordered sequence
// of trace messages.
package msgiter

import "github.com/tracefmt/ctf/fieldclass"

// Value is one decoded field, a runtime mirror of the fieldclass.Class
// tree it was decoded against: exactly the fields relevant to Class's
// Kind are meaningful, the same discriminated-by-Kind convention
// fieldclass.Class itself uses.
type Value struct {
	Class *fieldclass.Class

	// Int/UInt hold an Int or Enum leaf's decoded value, reinterpreted
	// per Class.Int.Signed (Int.Signed's Enum.Base.Signed for enums).
	Int  int64
	UInt uint64

	Float float64

	// Str holds a String leaf's decoded text, or a text-flagged
	// StaticArray/Sequence's text run up to its first NUL.
	Str string

	// Members holds a Struct's member values, in the same order as
	// Class.Struct.Members.
	Members []Value

	// Elements holds a non-text StaticArray/Sequence's element values,
	// in order.
	Elements []Value

	// Option is the index into Class.Variant.Options of the decoded
	// option; it is -1 on other compound values and 0 on scalar and
	// string leaves.
	Option int

	// Selected is the decoded value of a Variant's chosen option, nil
	// if Class is not a Variant.
	Selected *Value
}

// Field returns the member of a Struct value named name (leading
// underscore stripped on both sides, per CTF convention), or nil if
// absent or v is not a Struct.
func (v *Value) Field(name string) *Value {
	if v == nil || v.Class == nil || v.Class.Kind != fieldclass.KindStruct {
		return nil
	}
	idx := v.Class.Struct.IndexOf(name)
	if idx < 0 || idx >= len(v.Members) {
		return nil
	}
	return &v.Members[idx]
}

// AsUint64 returns an Int/Enum leaf's value reinterpreted as unsigned,
// the form sequence lengths and clock updates consume. Both Int and
// UInt are populated as the same bit pattern by the builder regardless
// of the producing field's signedness, so this is always safe to call.
func (v *Value) AsUint64() uint64 {
	if v == nil {
		return 0
	}
	return v.UInt
}

// AsInt64 returns an Int/Enum leaf's value reinterpreted as signed.
func (v *Value) AsInt64() int64 {
	if v == nil {
		return 0
	}
	return v.Int
}

// Labels returns the enum labels matching an Enum leaf's decoded
// value, or nil if v is not an Enum.
func (v *Value) Labels() []string {
	if v == nil || v.Class == nil || v.Class.Kind != fieldclass.KindEnum {
		return nil
	}
	tagVal := v.Int
	if v.Class.Enum.Base.Signed {
		return v.Class.Enum.LabelsFor(tagVal)
	}
	return v.Class.Enum.LabelsFor(int64(v.UInt))
}
