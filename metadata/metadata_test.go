package metadata

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tracefmt/ctf/fieldclass"
	"github.com/tracefmt/ctf/metadata/ast"
)

func strExpr(left string, s string) *ast.CtfExpression {
	return &ast.CtfExpression{Left: []string{left}, Right: ast.Unary{Kind: ast.UnaryString, String: s}}
}

func intExpr(left string, n int64) *ast.CtfExpression {
	return &ast.CtfExpression{Left: []string{left}, Right: ast.Unary{Kind: ast.UnarySignedConstant, SignedValue: n}}
}

func typeExpr(left string, tsl *ast.TypeSpecifierList) *ast.CtfExpression {
	return &ast.CtfExpression{Left: []string{left}, Right: ast.Unary{Kind: ast.UnaryTypeSpecifierList, TypeSpecifierList: tsl}}
}

func integerTSL(size int64, signed bool) *ast.TypeSpecifierList {
	exprs := []*ast.CtfExpression{intExpr("size", size)}
	if signed {
		exprs = append(exprs, intExpr("signed", 1))
	}
	return &ast.TypeSpecifierList{Specifiers: []ast.TypeSpecifier{
		{Kind: ast.SpecIntegerBlock, Node: &ast.IntegerSpec{Expressions: exprs}},
	}}
}

func structTSL(name string, decls ...*ast.StructOrVariantDeclaration) *ast.TypeSpecifierList {
	members := make([]ast.Node, len(decls))
	for i, d := range decls {
		members[i] = d
	}
	return &ast.TypeSpecifierList{Specifiers: []ast.TypeSpecifier{
		{Kind: ast.SpecStructBlock, Node: &ast.StructSpec{Name: name, HasBody: true, Members: members}},
	}}
}

func field(id string, tsl *ast.TypeSpecifierList) *ast.StructOrVariantDeclaration {
	return &ast.StructOrVariantDeclaration{
		TypeSpecifierList: tsl,
		Declarators:       []*ast.Declarator{{Kind: ast.DeclaratorID, ID: id}},
	}
}

func minimalTrace() *ast.TraceBlock {
	tb := &ast.TraceBlock{}
	tb.SetBody([]ast.Node{
		intExpr("major", 1),
		intExpr("minor", 8),
		strExpr("byte_order", "le"),
	})
	return tb
}

func TestProcessMinimalTrace(t *testing.T) {
	r := NewResolver()
	err := r.Process(&ast.Root{Traces: []*ast.TraceBlock{minimalTrace()}})
	require.NoError(t, err)
	tc := r.TraceClass()
	require.NotNil(t, tc)
	require.EqualValues(t, 1, tc.Major)
	require.EqualValues(t, 8, tc.Minor)
}

func TestProcessRejectsWrongVersion(t *testing.T) {
	r := NewResolver()
	tb := &ast.TraceBlock{}
	tb.SetBody([]ast.Node{intExpr("major", 1), intExpr("minor", 7), strExpr("byte_order", "le")})
	err := r.Process(&ast.Root{Traces: []*ast.TraceBlock{tb}})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrValidation)
}

func TestProcessStreamBeforeTraceIsIncomplete(t *testing.T) {
	r := NewResolver()
	sb := &ast.StreamBlock{}
	sb.SetBody(nil)
	err := r.Process(&ast.Root{Streams: []*ast.StreamBlock{sb}})
	require.ErrorIs(t, err, ErrIncomplete)
}

func TestProcessStreamAndEventWithPayload(t *testing.T) {
	r := NewResolver()
	require.NoError(t, r.Process(&ast.Root{Traces: []*ast.TraceBlock{minimalTrace()}}))

	sb := &ast.StreamBlock{}
	sb.SetBody([]ast.Node{
		intExpr("id", 0),
		typeExpr("event.header", structTSL("", field("id", integerTSL(16, false)), field("timestamp", integerTSL(64, false)))),
	})
	require.NoError(t, r.Process(&ast.Root{Streams: []*ast.StreamBlock{sb}}))

	eb := &ast.EventBlock{}
	eb.SetBody([]ast.Node{
		strExpr("name", "my_event"),
		intExpr("id", 0),
		typeExpr("fields", structTSL("", field("x", integerTSL(32, true)))),
	})
	require.NoError(t, r.Process(&ast.Root{Events: []*ast.EventBlock{eb}}))

	tc := r.TraceClass()
	require.Len(t, tc.StreamClasses, 1)
	sc := tc.StreamClasses[0]
	require.Len(t, sc.EventClasses, 1)
	ec := sc.EventClasses[0]
	require.Equal(t, "my_event", ec.Name)
	require.NotNil(t, ec.Payload)
	require.Equal(t, fieldclass.KindStruct, ec.Payload.Kind)
	require.Len(t, ec.Payload.Struct.Members, 1)
	require.Equal(t, "x", ec.Payload.Struct.Members[0].Name)

	idx := sc.EventHeader.Struct.IndexOf("id")
	require.GreaterOrEqual(t, idx, 0)
	require.Equal(t, fieldclass.MeaningEventClassID, sc.EventHeader.Struct.Members[idx].Class.Int.Meaning)

	tsIdx := sc.EventHeader.Struct.IndexOf("timestamp")
	require.NotEmpty(t, sc.EventHeader.Struct.Members[tsIdx].Class.Int.MappedClock)
	require.Len(t, tc.ClockClasses, 1)
	require.True(t, tc.ClockClasses[0].Implicit)
}

func TestImplicitClockRejected(t *testing.T) {
	r := NewResolver()
	r.RejectImplicitClock = true
	require.NoError(t, r.Process(&ast.Root{Traces: []*ast.TraceBlock{minimalTrace()}}))

	sb := &ast.StreamBlock{}
	sb.SetBody([]ast.Node{
		typeExpr("event.header", structTSL("", field("timestamp", integerTSL(64, false)))),
	})
	err := r.Process(&ast.Root{Streams: []*ast.StreamBlock{sb}})
	require.Error(t, err)
	require.ErrorIs(t, err, ErrValidation)
}

func enumTSL(tagName string) *ast.TypeSpecifierList {
	return &ast.TypeSpecifierList{Specifiers: []ast.TypeSpecifier{
		{Kind: ast.SpecEnumBlock, Node: &ast.EnumSpec{
			Name:    tagName,
			HasBody: true,
			Enumerators: []*ast.Enumerator{
				{Label: "a", Values: []ast.Unary{{Kind: ast.UnarySignedConstant, SignedValue: 0}}},
				{Label: "b", Values: []ast.Unary{{Kind: ast.UnarySignedConstant, SignedValue: 1}}},
			},
		}},
	}}
}

func variantTSL(tag string) *ast.TypeSpecifierList {
	return &ast.TypeSpecifierList{Specifiers: []ast.TypeSpecifier{
		{Kind: ast.SpecVariantBlock, Node: &ast.VariantSpec{
			HasBody: true,
			Tag:     tag,
			Members: []ast.Node{
				field("a", integerTSL(8, false)),
				field("b", integerTSL(32, false)),
			},
		}},
	}}
}

func TestVariantRangesMatchEnumLabels(t *testing.T) {
	r := NewResolver()
	require.NoError(t, r.Process(&ast.Root{Traces: []*ast.TraceBlock{minimalTrace()}}))

	eb := &ast.EventBlock{}
	eb.SetBody([]ast.Node{
		strExpr("name", "tagged"),
		intExpr("id", 0),
		typeExpr("fields", structTSL("",
			field("tag", enumTSL("")),
			field("u", variantTSL("tag")),
		)),
	})

	sb := &ast.StreamBlock{}
	sb.SetBody(nil)
	require.NoError(t, r.Process(&ast.Root{Streams: []*ast.StreamBlock{sb}}))
	require.NoError(t, r.Process(&ast.Root{Events: []*ast.EventBlock{eb}}))

	tc := r.TraceClass()
	payload := tc.StreamClasses[0].EventClasses[0].Payload
	uIdx := payload.Struct.IndexOf("u")
	v := payload.Struct.Members[uIdx].Class.Variant
	require.Len(t, v.Ranges, 2)
	require.NotNil(t, v.TagPath)
}
