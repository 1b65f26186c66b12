// Package metadata implements the semantic pass that turns a TSDL AST
// (metadata/ast, an external collaborator's output) into the trace
// class graph of traceclass plus the field-class trees of fieldclass.
//
// This generalizes perffile's eventAttr-to-EventGeneric translation
// (aclements/go-perf, perffile/events.go) — which maps one fixed
// on-disk struct to a small family of typed wrappers — into a
// translation from an open-ended, recursively-typed AST into an
// open-ended field-class tree.
package metadata

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tracefmt/ctf/bitbuf"
	"github.com/tracefmt/ctf/ctflog"
	"github.com/tracefmt/ctf/fieldclass"
	"github.com/tracefmt/ctf/fieldpath"
	"github.com/tracefmt/ctf/metadata/ast"
	"github.com/tracefmt/ctf/traceclass"
)

// Resolver accumulates a trace class graph across one or more TSDL
// documents (a trace's metadata is commonly delivered across several
// packets). It is not safe for concurrent use.
type Resolver struct {
	// RejectImplicitClock turns the historical "synthesize a 1GHz
	// clock when a timestamp field needs one and none exists" behavior
	// into a structural error instead.
	RejectImplicitClock bool

	// Logger receives diagnostic messages; defaults to a discard
	// logger so the package stays silent unless a host opts in.
	Logger *logrus.Entry

	scopes           *scopeStack
	traceSeen        bool
	defaultByteOrder bitbuf.ByteOrder

	tc *traceclass.TraceClass

	pendingEnv    []traceclass.EnvEntry
	pendingClocks []*traceclass.ClockClass

	storedValueCount int
	producerIndex    map[*fieldclass.Int]int
}

// NewResolver returns a Resolver ready to process TSDL documents.
func NewResolver() *Resolver {
	return &Resolver{
		scopes:        newScopeStack(),
		Logger:        ctflog.Discard(),
		producerIndex: map[*fieldclass.Int]int{},
	}
}

// TraceClass returns the trace class graph built so far, or nil if no
// trace block has been processed yet.
func (r *Resolver) TraceClass() *traceclass.TraceClass { return r.tc }

// Process folds one parsed TSDL document into the resolver's
// accumulated state. Blocks are processed clock blocks first, then env,
// then trace, then stream, then event; clock and env blocks seen before
// any trace block are held and attached when the trace block arrives,
// so a single document containing a trace block plus everything
// depending on it resolves in one call. Callsite blocks are not read.
//
// When a stream or event block needs the trace's default byte order or
// clock list before a trace block has ever been seen, Process returns
// an error wrapping ErrIncomplete; the caller should retry once more
// metadata (containing the trace block) is available.
func (r *Resolver) Process(root *ast.Root) error {
	for _, cb := range root.Clocks {
		cc, err := r.processClockBlock(cb)
		if err != nil {
			return err
		}
		if r.tc != nil {
			r.tc.ClockClasses = append(r.tc.ClockClasses, cc)
		} else {
			r.pendingClocks = append(r.pendingClocks, cc)
		}
	}

	for _, eb := range root.Envs {
		entries := r.processEnvBlock(eb)
		if r.tc != nil {
			r.tc.Env = append(r.tc.Env, entries...)
		} else {
			r.pendingEnv = append(r.pendingEnv, entries...)
		}
	}

	for _, tb := range root.Traces {
		if r.traceSeen {
			return errors.Wrap(ErrValidation, "more than one trace block")
		}
		tc, err := r.processTraceBlock(tb)
		if err != nil {
			return err
		}
		r.tc = tc
		r.traceSeen = true
		r.defaultByteOrder = tc.DefaultByteOrder
		r.tc.ClockClasses = append(r.tc.ClockClasses, r.pendingClocks...)
		r.tc.Env = append(r.tc.Env, r.pendingEnv...)
		r.pendingClocks, r.pendingEnv = nil, nil

		if r.tc.PacketHeader != nil {
			tagMeanings(r.tc.PacketHeader.Struct, packetHeaderMeanings)
			if err := r.resolveRefs(r.tc.PacketHeader, fieldpath.Scopes{PacketHeader: r.tc.PacketHeader.Struct}); err != nil {
				return errors.Wrap(err, "resolving trace packet header")
			}
		}
	}

	for _, sb := range root.Streams {
		if !r.traceSeen {
			return ErrIncomplete
		}
		sc, err := r.processStreamBlock(sb)
		if err != nil {
			return err
		}
		r.tc.StreamClasses = append(r.tc.StreamClasses, sc)
		r.tc.IndexStreamClasses()
	}

	for _, eb := range root.Events {
		if !r.traceSeen {
			return ErrIncomplete
		}
		if err := r.processEventBlock(eb); err != nil {
			return err
		}
	}

	if r.tc != nil {
		r.tc.StoredValueCount = r.storedValueCount
	}
	return nil
}

func joinLeft(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "." + p
	}
	return out
}

func attrOf(exprs []*ast.CtfExpression, name string) (ast.Unary, bool) {
	for _, e := range exprs {
		if joinLeft(e.Left) == name {
			return e.Right, true
		}
	}
	return ast.Unary{}, false
}

func typeAttrOf(exprs []*ast.CtfExpression, name string) (*ast.TypeSpecifierList, bool) {
	v, ok := attrOf(exprs, name)
	if !ok || v.Kind != ast.UnaryTypeSpecifierList {
		return nil, false
	}
	return v.TypeSpecifierList, true
}

func stringAttr(exprs []*ast.CtfExpression, name string) (string, bool) {
	v, ok := attrOf(exprs, name)
	if !ok {
		return "", false
	}
	return unaryString(v)
}

func intAttr(exprs []*ast.CtfExpression, name string) (int64, bool) {
	v, ok := attrOf(exprs, name)
	if !ok {
		return 0, false
	}
	return unaryInt(v)
}

func (r *Resolver) processTraceBlock(tb *ast.TraceBlock) (*traceclass.TraceClass, error) {
	exprs := ctfExpressions(tb.Members)

	majorV, ok1 := intAttr(exprs, "major")
	minorV, ok2 := intAttr(exprs, "minor")
	if !ok1 || !ok2 {
		return nil, errors.Wrap(ErrValidation, "trace block requires \"major\" and \"minor\"")
	}
	if majorV != 1 || minorV != 8 {
		return nil, errors.Wrapf(ErrValidation, "unsupported CTF version %d.%d (only 1.8 is supported)", majorV, minorV)
	}

	boStr, ok := stringAttr(exprs, "byte_order")
	if !ok {
		return nil, errors.Wrap(ErrValidation, "trace block requires \"byte_order\"")
	}
	var order bitbuf.ByteOrder
	switch boStr {
	case "le":
		order = bitbuf.LittleEndian
	case "be", "network":
		order = bitbuf.BigEndian
	default:
		return nil, errors.Wrapf(ErrValidation, "trace block \"byte_order\" cannot be %q", boStr)
	}

	tc := &traceclass.TraceClass{
		Major: uint32(majorV), Minor: uint32(minorV), DefaultByteOrder: order,
	}
	if name, ok := stringAttr(exprs, "name"); ok {
		tc.Name = name
	}
	if uuidStr, ok := stringAttr(exprs, "uuid"); ok {
		u, err := uuid.Parse(uuidStr)
		if err != nil {
			return nil, errors.Wrap(err, "trace \"uuid\" attribute")
		}
		tc.UUID = [16]byte(u)
		tc.HasUUID = true
	}

	// byte order is known from this point on, so subsequent type
	// resolution within the trace block (e.g. the packet header
	// struct) may freely use byte_order=native.
	r.defaultByteOrder = order
	r.traceSeen = true

	if tsl, ok := typeAttrOf(exprs, "packet.header"); ok {
		class, err := r.resolveTypeSpecifierList(tsl)
		if err != nil {
			return nil, errors.Wrap(err, "trace \"packet.header\"")
		}
		if class.Kind != fieldclass.KindStruct {
			return nil, errors.Wrap(ErrValidation, "trace \"packet.header\" must be a struct")
		}
		tc.PacketHeader = class
	}

	return tc, nil
}

func (r *Resolver) processClockBlock(cb *ast.ClockBlock) (*traceclass.ClockClass, error) {
	exprs := ctfExpressions(cb.Members)
	name, ok := stringAttr(exprs, "name")
	if !ok {
		return nil, errors.Wrap(ErrValidation, "clock block requires \"name\"")
	}
	cc := &traceclass.ClockClass{Name: name, Frequency: 1000000000}
	if v, ok := intAttr(exprs, "freq"); ok {
		cc.Frequency = uint64(v)
	}
	if v, ok := intAttr(exprs, "precision"); ok {
		cc.Precision = uint64(v)
	}
	if v, ok := intAttr(exprs, "offset_s"); ok {
		cc.OffsetSeconds = v
	}
	if v, ok := intAttr(exprs, "offset"); ok {
		cc.OffsetCycles = uint64(v)
	}
	if v, ok := intAttr(exprs, "absolute"); ok {
		cc.Absolute = v != 0
	}
	if d, ok := stringAttr(exprs, "description"); ok {
		cc.Descr = d
	}
	if uuidStr, ok := stringAttr(exprs, "uuid"); ok {
		u, err := uuid.Parse(uuidStr)
		if err != nil {
			return nil, errors.Wrap(err, "clock \"uuid\" attribute")
		}
		cc.UUID = [16]byte(u)
		cc.HasUUID = true
	}
	return cc, nil
}

func (r *Resolver) processEnvBlock(eb *ast.EnvBlock) []traceclass.EnvEntry {
	var out []traceclass.EnvEntry
	for _, e := range ctfExpressions(eb.Members) {
		name := joinLeft(e.Left)
		if s, ok := unaryString(e.Right); ok {
			out = append(out, traceclass.EnvEntry{Name: name, Str: s})
			continue
		}
		if n, ok := unaryInt(e.Right); ok {
			out = append(out, traceclass.EnvEntry{Name: name, IsInt: true, Int: n})
		}
	}
	return out
}

func ctfExpressions(members []ast.Node) []*ast.CtfExpression {
	var out []*ast.CtfExpression
	for _, m := range members {
		if e, ok := m.(*ast.CtfExpression); ok {
			out = append(out, e)
		}
	}
	return out
}
