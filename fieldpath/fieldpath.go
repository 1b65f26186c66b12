// Package fieldpath builds compile-time field paths from the
// relative/absolute name references TSDL allows in a Sequence's length
// expression or a Variant's tag expression,
// and assigns each referenced producer field a slot in the
// fieldclass.StoredValues table.
//
// This generalizes the reflective field-walking readFileAttr does over
// the fixed eventAttrVN struct in perffile/reader.go (aclements/go-perf)
// into a walk over an arbitrary, named struct tree.
package fieldpath

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/tracefmt/ctf/fieldclass"
)

// ErrUnresolved is wrapped into the returned error when a name
// component cannot be found in the addressed scope.
var ErrUnresolved = errors.New("fieldpath: unresolved name component")

// Scopes bundles the struct classes a reference may be rooted at, in
// the order a relative reference searches them: payload, then spec
// context, then common context, then event header, then packet
// context, then packet header — innermost scope first, matching
// original_source's ctf-meta-visitors.c resolution order.
type Scopes struct {
	PacketHeader    *fieldclass.Struct
	PacketContext   *fieldclass.Struct
	EventHeader     *fieldclass.Struct
	EventCommonCtx  *fieldclass.Struct
	EventSpecCtx    *fieldclass.Struct
	EventPayload    *fieldclass.Struct
}

func (s Scopes) ordered() []struct {
	scope fieldclass.Scope
	st    *fieldclass.Struct
} {
	return []struct {
		scope fieldclass.Scope
		st    *fieldclass.Struct
	}{
		{fieldclass.ScopeEventPayload, s.EventPayload},
		{fieldclass.ScopeEventSpecContext, s.EventSpecCtx},
		{fieldclass.ScopeEventCommonContext, s.EventCommonCtx},
		{fieldclass.ScopeEventHeader, s.EventHeader},
		{fieldclass.ScopeStreamPacketContext, s.PacketContext},
		{fieldclass.ScopeTracePacketHeader, s.PacketHeader},
	}
}

// absoluteRoots maps the TSDL absolute-reference leading keywords to a
// scope.
var absoluteRoots = map[string]fieldclass.Scope{
	"trace.packet.header":   fieldclass.ScopeTracePacketHeader,
	"stream.packet.context": fieldclass.ScopeStreamPacketContext,
	"stream.event.header":   fieldclass.ScopeEventHeader,
	"stream.event.context":  fieldclass.ScopeEventCommonContext,
	"event.context":         fieldclass.ScopeEventSpecContext,
	"event.fields":          fieldclass.ScopeEventPayload,
}

// Resolve resolves a dotted name reference (e.g. "len", or the absolute
// form "stream.packet.context.packet_size") to a Path, searching the
// given scopes when the reference is relative.
func Resolve(ref string, scopes Scopes) (*fieldclass.Path, error) {
	for prefix, scope := range absoluteRoots {
		if strings.HasPrefix(ref, prefix+".") {
			rest := strings.TrimPrefix(ref, prefix+".")
			st := scopeStruct(scopes, scope)
			if st == nil {
				return nil, errors.Errorf("fieldpath: absolute reference %q names an empty scope", ref)
			}
			idx, err := resolveInStruct(st, strings.Split(rest, "."))
			if err != nil {
				return nil, errors.Wrapf(err, "resolving %q", ref)
			}
			return &fieldclass.Path{Root: scope, Indices: idx}, nil
		}
	}

	parts := strings.Split(ref, ".")
	var lastErr error
	for _, candidate := range scopes.ordered() {
		if candidate.st == nil {
			continue
		}
		idx, err := resolveInStruct(candidate.st, parts)
		if err == nil {
			return &fieldclass.Path{Root: candidate.scope, Indices: idx}, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = ErrUnresolved
	}
	return nil, errors.Wrapf(lastErr, "resolving relative reference %q", ref)
}

func scopeStruct(scopes Scopes, scope fieldclass.Scope) *fieldclass.Struct {
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

// resolveInStruct walks parts (already split on '.') through nested
// Struct members, stripping leading underscores at each step (a TSDL
// convention letting a field named like a reserved word be referenced
// without the underscore, and vice versa).
func resolveInStruct(root *fieldclass.Struct, parts []string) ([]int, error) {
	st := root
	indices := make([]int, 0, len(parts))
	for i, part := range parts {
		idx := st.IndexOf(part)
		if idx < 0 {
			return nil, errors.Wrapf(ErrUnresolved, "component %q", part)
		}
		indices = append(indices, idx)
		member := st.Members[idx].Class
		if i == len(parts)-1 {
			break
		}
		if member.Kind != fieldclass.KindStruct {
			return nil, errors.Errorf("component %q is not a struct, cannot descend further", part)
		}
		st = member.Struct
	}
	return indices, nil
}

// LookupClass walks indices through root to find the Class the path
// refers to; used by the semantic pass to annotate the producer field
// with a stored-value index once a path has been resolved.
func LookupClass(root *fieldclass.Struct, indices []int) *fieldclass.Class {
	st := root
	var c *fieldclass.Class
	for i, idx := range indices {
		c = st.Members[idx].Class
		if i < len(indices)-1 {
			st = c.Struct
		}
	}
	return c
}
