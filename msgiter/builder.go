package msgiter

import (
	"github.com/pkg/errors"

	"github.com/tracefmt/ctf/fieldclass"
)

// buildNode is the bookkeeping valueBuilder keeps per compound (or, for
// a lone scalar string, per leaf-in-progress) while a bfcr.Reader
// drives it depth-first, mirroring bfcr's own frame stack one level
// removed.
type buildNode struct {
	value   *Value
	idx     int // next Struct member index to fill
	textBuf []byte
}

func (n *buildNode) appendChild(child Value) {
	switch n.value.Class.Kind {
	case fieldclass.KindStruct:
		n.value.Members[n.idx] = child
		n.idx++
	case fieldclass.KindStaticArray, fieldclass.KindSequence:
		n.value.Elements = append(n.value.Elements, child)
	case fieldclass.KindVariant:
		c := child
		n.value.Selected = &c
	}
}

// valueBuilder implements bfcr.Callbacks, building a Value tree for one
// root class while reading/writing the stored-values table a sibling
// Sequence/Variant relies on to resolve its dynamic shape.
type valueBuilder struct {
	values *fieldclass.StoredValues
	stack  []*buildNode
	root   *Value
}

func newValueBuilder(values *fieldclass.StoredValues) *valueBuilder {
	return &valueBuilder{values: values}
}

func (b *valueBuilder) top() *buildNode { return b.stack[len(b.stack)-1] }

func (b *valueBuilder) appendLeaf(v Value) {
	if len(b.stack) == 0 {
		b.root = &v
		return
	}
	b.top().appendChild(v)
}

func (b *valueBuilder) storeIfProducer(class *fieldclass.Class, raw int64) {
	var idx int
	switch class.Kind {
	case fieldclass.KindInt:
		idx = class.Int.StoredValueIndex
	case fieldclass.KindEnum:
		idx = class.Enum.Base.StoredValueIndex
	default:
		return
	}
	if idx != fieldclass.NoStoredValue {
		b.values.Store(idx, raw)
	}
}

func (b *valueBuilder) UnsignedInt(v uint64, class *fieldclass.Class) error {
	b.storeIfProducer(class, int64(v))
	b.appendLeaf(Value{Class: class, UInt: v, Int: int64(v)})
	return nil
}

func (b *valueBuilder) SignedInt(v int64, class *fieldclass.Class) error {
	b.storeIfProducer(class, v)
	b.appendLeaf(Value{Class: class, Int: v, UInt: uint64(v)})
	return nil
}

func (b *valueBuilder) Float(v float64, class *fieldclass.Class) error {
	b.appendLeaf(Value{Class: class, Float: v})
	return nil
}

func (b *valueBuilder) StringBegin(class *fieldclass.Class) error {
	if len(b.stack) > 0 && b.top().value.Class == class {
		// A text-flagged array/sequence: CompoundBegin already pushed
		// this node; just reset its text accumulator.
		b.top().textBuf = b.top().textBuf[:0]
		return nil
	}
	b.stack = append(b.stack, &buildNode{value: &Value{Class: class}})
	return nil
}

func (b *valueBuilder) StringFragment(data []byte, class *fieldclass.Class) error {
	top := b.top()
	top.textBuf = append(top.textBuf, data...)
	return nil
}

func (b *valueBuilder) StringEnd(class *fieldclass.Class) error {
	top := b.top()
	top.value.Str = string(top.textBuf)
	if top.value.Class.Kind == fieldclass.KindString {
		b.stack = b.stack[:len(b.stack)-1]
		b.appendLeaf(*top.value)
	}
	return nil
}

func (b *valueBuilder) CompoundBegin(class *fieldclass.Class) error {
	v := &Value{Class: class, Option: -1}
	if class.Kind == fieldclass.KindStruct {
		v.Members = make([]Value, len(class.Struct.Members))
	}
	b.stack = append(b.stack, &buildNode{value: v})
	return nil
}

func (b *valueBuilder) CompoundEnd(class *fieldclass.Class) error {
	top := b.top()
	b.stack = b.stack[:len(b.stack)-1]
	if len(b.stack) == 0 {
		b.root = top.value
		return nil
	}
	b.top().appendChild(*top.value)
	return nil
}

func (b *valueBuilder) SequenceLength(class *fieldclass.Class) (int64, error) {
	n, ok := b.values.GetUnsigned(class.Sequence.LengthStoredValueIndex)
	if !ok {
		return 0, errors.Errorf("sequence length field for %q has not been decoded yet", class.Sequence.LengthName)
	}
	return int64(n), nil
}

func (b *valueBuilder) VariantSelectedClass(class *fieldclass.Class) (*fieldclass.Class, error) {
	tagVal, ok := b.values.Get(class.Variant.TagStoredValueIndex)
	if !ok {
		return nil, errors.Errorf("variant tag field for %q has not been decoded yet", class.Variant.TagName)
	}
	idx := class.Variant.SelectOption(tagVal)
	if idx < 0 {
		return nil, errors.Errorf("variant tag value %d matches no option of %q", tagVal, class.Variant.TagName)
	}
	if len(b.stack) > 0 && b.top().value.Class == class {
		b.top().value.Option = idx
	}
	return class.Variant.Options[idx].Class, nil
}
