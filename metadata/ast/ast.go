// Package ast fixes the contract the semantic metadata pass consumes:
// the minimal tree shape a TSDL lexer/parser is expected to hand off
// once it has recognized blocks, declarations and type specifiers. The
// lexer/parser itself is out of scope for this module; this package
// only names the types its output must take, the way perffile/format.go
// (aclements/go-perf) fixes the perf_event_attr layout its caller reads
// rather than producing it.
//
// The shape follows the union-of-node-kinds design of babeltrace's
// ctf-ast.h, translated to a Go interface with one concrete type per
// node kind instead of a tagged C union.
package ast

// Node is implemented by every TSDL AST node. Concrete types are
// distinguished with a type switch at the point of use, matching the
// metadata package's single-pass block/declaration walk.
type Node interface {
	astNode()
}

// Root is the top-level node produced by parsing one TSDL document. A
// trace description is commonly split across several metadata packets,
// so the semantic pass (metadata.Resolver.Process) is fed one Root per packet and
// accumulates state across calls.
type Root struct {
	// Declarations holds top-level typedef/typealias nodes that occur
	// outside of any block (rare in practice, but legal TSDL).
	Declarations []Node
	Traces       []*TraceBlock
	Streams      []*StreamBlock
	Events       []*EventBlock
	Envs         []*EnvBlock
	Clocks       []*ClockBlock
	Callsites    []*CallsiteBlock
}

func (*Root) astNode() {}

// Block bodies all share the same shape: a flat, ordered list of
// member nodes, each one of CtfExpression (an attribute assignment),
// TypedefDecl, TypealiasDecl, or a bare type specifier list (for
// anonymous struct/variant member declarations).
type blockBody struct {
	Members []Node
}

// TraceBlock is a top-level `trace { ... }` block. Exactly one must be
// visited before byte_order=native can be resolved anywhere else.
type TraceBlock struct {
	blockBody
	Line int
}

func (*TraceBlock) astNode() {}

// StreamBlock is a top-level `stream { ... }` block.
type StreamBlock struct {
	blockBody
	Line int
}

func (*StreamBlock) astNode() {}

// EventBlock is a top-level `event { ... }` block.
type EventBlock struct {
	blockBody
	Line int
}

func (*EventBlock) astNode() {}

// EnvBlock is a top-level `env { ... }` block: a flat bag of
// key=value pairs with no type declarations.
type EnvBlock struct {
	blockBody
	Line int
}

func (*EnvBlock) astNode() {}

// ClockBlock is a top-level `clock { ... }` block.
type ClockBlock struct {
	blockBody
	Line int
}

func (*ClockBlock) astNode() {}

// CallsiteBlock is a top-level `callsite { ... }` block. The semantic
// pass does not use callsite information (it has no bearing on field
// classes) but still parses it so a well-formed document with a
// callsite block does not fail.
type CallsiteBlock struct {
	blockBody
	Line int
}

func (*CallsiteBlock) astNode() {}

// Body returns a block's ordered declaration list.
func (b *TraceBlock) Body() []Node    { return b.Members }
func (b *StreamBlock) Body() []Node   { return b.Members }
func (b *EventBlock) Body() []Node    { return b.Members }
func (b *EnvBlock) Body() []Node      { return b.Members }
func (b *ClockBlock) Body() []Node    { return b.Members }
func (b *CallsiteBlock) Body() []Node { return b.Members }

// SetBody assigns a block's member list; used by the (external)
// parser when constructing the tree, or by tests building fixtures.
func (b *TraceBlock) SetBody(m []Node)    { b.Members = m }
func (b *StreamBlock) SetBody(m []Node)   { b.Members = m }
func (b *EventBlock) SetBody(m []Node)    { b.Members = m }
func (b *EnvBlock) SetBody(m []Node)      { b.Members = m }
func (b *ClockBlock) SetBody(m []Node)    { b.Members = m }
func (b *CallsiteBlock) SetBody(m []Node) { b.Members = m }

// CtfExpression is an attribute assignment such as `byte_order = be;`
// or `size = 32;`. Left is the dotted attribute path (almost always a
// single identifier); Right is the assigned value.
type CtfExpression struct {
	Left  []string
	Right Unary
	Line  int
}

func (*CtfExpression) astNode() {}

// UnaryKind distinguishes the possible shapes of the right-hand side of
// a CtfExpression or the elements of an Enumerator's value list.
type UnaryKind int

const (
	UnaryUnknown UnaryKind = iota
	UnaryString
	UnarySignedConstant
	UnaryUnsignedConstant
	// UnaryTypeSpecifierList appears as the RHS of `container_field_class = int { ... }`-style
	// assignments, where a full type is the attribute value.
	UnaryTypeSpecifierList
)

// Unary is one value in a CtfExpression's right-hand side or one bound
// of an Enumerator range.
type Unary struct {
	Kind            UnaryKind
	String          string
	SignedValue     int64
	UnsignedValue   uint64
	TypeSpecifierList *TypeSpecifierList
}

// TypeSpecifierKind enumerates the base type keywords and compound
// block kinds a type specifier can name.
type TypeSpecifierKind int

const (
	SpecUnknown TypeSpecifierKind = iota
	SpecIntegerBlock
	SpecFloatingPointBlock
	SpecStringBlock
	SpecStructBlock
	SpecVariantBlock
	SpecEnumBlock
	// SpecIDType names a type-alias or C-like base keyword (int, long,
	// an aliased name, etc.) by identifier, resolved later by the
	// semantic pass's scope stack.
	SpecIDType
)

// TypeSpecifier is one element of a TypeSpecifierList. For the block
// kinds (integer/float/string/struct/variant/enum), Node points at the
// corresponding *IntegerSpec / *FloatingPointSpec / ... / *EnumSpec /
// *StructSpec / *VariantSpec. For SpecIDType, ID names the type.
type TypeSpecifier struct {
	Kind TypeSpecifierKind
	Node Node
	ID   string
}

// TypeSpecifierList is an ordered sequence of keywords and/or a single
// block/id specifier, e.g. `unsigned long` or `struct foo` or a bare
// type-alias identifier.
type TypeSpecifierList struct {
	Specifiers []TypeSpecifier
}

func (*TypeSpecifierList) astNode() {}

// IntegerSpec is an `integer { ... }` block: its Expressions carry
// size, byte_order, signed, align, base, encoding, map.
type IntegerSpec struct {
	Expressions []*CtfExpression
}

func (*IntegerSpec) astNode() {}

// FloatingPointSpec is a `floating_point { ... }` block: its
// Expressions carry mant_dig, exp_dig, byte_order, align.
type FloatingPointSpec struct {
	Expressions []*CtfExpression
}

func (*FloatingPointSpec) astNode() {}

// StringSpec is a `string { ... }` block: its Expressions carry an
// optional encoding attribute.
type StringSpec struct {
	Expressions []*CtfExpression
}

func (*StringSpec) astNode() {}

// Enumerator is one `label` or `label = value` or `label = lo ... hi`
// entry of an enum body. An omitted Values list means "one past the
// previous enumerator's upper bound" (or 0 for the first), per TSDL.
type Enumerator struct {
	Label  string
	Values []Unary
}

func (*Enumerator) astNode() {}

// EnumSpec is an `enum NAME : container { ... }` block.
type EnumSpec struct {
	Name string
	// Container is nil when no `: container_type` clause is present;
	// the semantic pass then defaults to an implementation-defined
	// unsigned int container per TSDL.
	Container    *TypeSpecifierList
	Enumerators  []*Enumerator
	HasBody      bool
}

func (*EnumSpec) astNode() {}

// StructOrVariantDeclaration is one member declaration inside a
// struct/variant body: a type specifier list plus one or more
// declarators (TSDL allows `int a, b[4];`-style grouping).
type StructOrVariantDeclaration struct {
	TypeSpecifierList *TypeSpecifierList
	Declarators        []*Declarator
}

func (*StructOrVariantDeclaration) astNode() {}

// StructSpec is a `struct NAME { ... } align(N)` block.
type StructSpec struct {
	Name string
	// Members holds StructOrVariantDeclaration, TypedefDecl and
	// TypealiasDecl nodes, in declaration order.
	Members []Node
	HasBody bool
	// MinAlign is the struct's align() attribute in bits, or 0 if
	// absent (the semantic pass then uses the max member alignment).
	MinAlign int
}

func (*StructSpec) astNode() {}

// VariantSpec is a `variant NAME { ... } <tag>` block. Tag is the
// untranslated textual tag name written in `<>`, empty if the variant
// is untagged at its definition site (only legal inside a field
// declaration that immediately supplies the tag).
type VariantSpec struct {
	Name    string
	Tag     string
	Members []Node
	HasBody bool
}

func (*VariantSpec) astNode() {}

// DeclaratorKind distinguishes a bare identifier declarator from one
// with a nested array/sequence/parenthesized shape.
type DeclaratorKind int

const (
	DeclaratorID DeclaratorKind = iota
	DeclaratorNested
)

// Declarator names one field within a StructOrVariantDeclaration, a
// TypedefDecl, or a top-level field_class_def. It mirrors C's
// declarator grammar: `name`, `name[4]`, `name[len]` (sequence, when
// len is an identifier rather than a constant), or nested
// declarators for multi-dimensional arrays.
type Declarator struct {
	Kind DeclaratorKind
	ID   string

	// Pointers counts leading `*` qualifiers (rare in TSDL, kept for
	// grammar completeness).
	Pointers int

	// For DeclaratorNested: Inner is the wrapped declarator and
	// Length is the array/sequence bound, either a constant unary
	// expression (static array) or a single identifier unary
	// expression (sequence, naming the length field).
	Inner  *Declarator
	Length *Unary

	// BitfieldLen is non-nil when the declarator carries a `: N`
	// bitfield-length suffix (TSDL's alternate integer-size syntax).
	BitfieldLen *Unary
}

func (*Declarator) astNode() {}

// TypedefDecl is a `typedef TYPE NAME;` declaration.
type TypedefDecl struct {
	TypeSpecifierList *TypeSpecifierList
	Declarators        []*Declarator
}

func (*TypedefDecl) astNode() {}

// TypealiasDecl is a `typealias TARGET := ALIAS;` declaration. Target
// is the existing type being named; Alias is the new type-specifier
// list plus a single abstract declarator (its array/sequence shape, if
// any) that becomes a nameable alias.
type TypealiasDecl struct {
	TargetTypeSpecifierList *TypeSpecifierList
	TargetDeclarators        []*Declarator
	AliasTypeSpecifierList  *TypeSpecifierList
	AliasDeclarator         *Declarator
}

func (*TypealiasDecl) astNode() {}
