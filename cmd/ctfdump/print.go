package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/tracefmt/ctf/fieldclass"
	"github.com/tracefmt/ctf/msgiter"
)

// printMessage writes one decoded message, the generalization of the
// teacher's "%v %+v\n" record-dump loop (cmd/dump/main.go) from a fixed
// perf record struct to msgiter's open-ended Message/Value tree: where
// the teacher leans on fmt's struct formatting because every record
// shape is a known Go type, here each Value carries its own
// fieldclass.Class, so printing walks that tree instead.
func printMessage(w io.Writer, m msgiter.Message) {
	fmt.Fprintf(w, "%s", m.Kind)
	if m.Stream != nil {
		fmt.Fprintf(w, " stream=%d", m.Stream.ID)
	}
	if m.Packet != nil {
		fmt.Fprintf(w, " packet=%d", m.Packet.Index)
	}
	if m.EventClass != nil {
		fmt.Fprintf(w, " event=%q(%d)", m.EventClass.Name, m.EventClass.ID)
	}
	if m.DefaultClockSnapshot.Present {
		fmt.Fprintf(w, " clock=%d", m.DefaultClockSnapshot.Value)
	}
	if m.CountKnown {
		fmt.Fprintf(w, " count=%d", m.Count)
	}
	fmt.Fprintln(w)

	if m.Packet != nil {
		printValueField(w, "  context", m.Packet.Context)
	}
	printValueField(w, "  common_context", m.CommonContext)
	printValueField(w, "  specific_context", m.SpecificContext)
	printValueField(w, "  payload", m.Payload)
}

func printValueField(w io.Writer, label string, v *msgiter.Value) {
	if v == nil {
		return
	}
	fmt.Fprintf(w, "%s: %s\n", label, formatValue(v))
}

// formatValue renders a decoded Value as a single-line, struct-shaped
// string, recursing the same way fieldclass.Class's Kind discriminant
// recurses over its tree.
func formatValue(v *msgiter.Value) string {
	if v == nil || v.Class == nil {
		return "<nil>"
	}
	switch v.Class.Kind {
	case fieldclass.KindInt:
		return formatInt(v)
	case fieldclass.KindEnum:
		labels := v.Labels()
		if len(labels) == 0 {
			return formatInt(v)
		}
		return fmt.Sprintf("%s(%s)", formatInt(v), joinLabels(labels))
	case fieldclass.KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case fieldclass.KindString:
		return strconv.Quote(v.Str)
	case fieldclass.KindStruct:
		return formatMembers(v)
	case fieldclass.KindVariant:
		if v.Selected == nil {
			return "<unselected>"
		}
		return formatValue(v.Selected)
	case fieldclass.KindStaticArray, fieldclass.KindSequence:
		if isTextArray(v.Class) {
			return strconv.Quote(v.Str)
		}
		return formatElements(v)
	default:
		return "<?>"
	}
}

func isTextArray(c *fieldclass.Class) bool {
	switch c.Kind {
	case fieldclass.KindStaticArray:
		return c.StaticArray.IsText
	case fieldclass.KindSequence:
		return c.Sequence.IsText
	default:
		return false
	}
}

func formatInt(v *msgiter.Value) string {
	base := v.Class.Int.Base
	if v.Class.Kind == fieldclass.KindEnum {
		base = v.Class.Enum.Base.Base
	}
	signed := v.Class.Kind == fieldclass.KindInt && v.Class.Int.Signed
	if v.Class.Kind == fieldclass.KindEnum {
		signed = v.Class.Enum.Base.Signed
	}
	switch {
	case base == fieldclass.BaseHex && signed:
		return fmt.Sprintf("0x%x", v.Int)
	case base == fieldclass.BaseHex:
		return fmt.Sprintf("0x%x", v.UInt)
	case base == fieldclass.BaseOctal:
		return "0" + strconv.FormatUint(v.UInt, 8)
	case base == fieldclass.BaseBinary:
		return "0b" + strconv.FormatUint(v.UInt, 2)
	case signed:
		return strconv.FormatInt(v.Int, 10)
	default:
		return strconv.FormatUint(v.UInt, 10)
	}
}

func formatMembers(v *msgiter.Value) string {
	s := "{"
	for i := range v.Members {
		if i > 0 {
			s += ", "
		}
		name := v.Class.Struct.Members[i].Name
		s += name + ": " + formatValue(&v.Members[i])
	}
	return s + "}"
}

func formatElements(v *msgiter.Value) string {
	s := "["
	for i := range v.Elements {
		if i > 0 {
			s += ", "
		}
		s += formatValue(&v.Elements[i])
	}
	return s + "]"
}

func joinLabels(labels []string) string {
	s := ""
	for i, l := range labels {
		if i > 0 {
			s += "|"
		}
		s += l
	}
	return s
}
