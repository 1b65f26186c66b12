package metadata

import (
	"math/bits"

	"github.com/pkg/errors"
	"github.com/tracefmt/ctf/bitbuf"
	"github.com/tracefmt/ctf/fieldclass"
	"github.com/tracefmt/ctf/metadata/ast"
)

// unaryString/unaryInt/unaryUint extract the expected shape from a
// resolved Unary value, used while reading a block's attribute
// expressions.
func unaryString(u ast.Unary) (string, bool) {
	if u.Kind == ast.UnaryString {
		return u.String, true
	}
	return "", false
}

func unaryInt(u ast.Unary) (int64, bool) {
	switch u.Kind {
	case ast.UnarySignedConstant:
		return u.SignedValue, true
	case ast.UnaryUnsignedConstant:
		return int64(u.UnsignedValue), true
	default:
		return 0, false
	}
}

// findAttr returns the single Unary value of the first expression whose
// dotted Left path equals name, among a block's CtfExpression list.
func findAttr(exprs []*ast.CtfExpression, name string) (ast.Unary, bool) {
	for _, e := range exprs {
		if len(e.Left) == 1 && e.Left[0] == name {
			return e.Right, true
		}
	}
	return ast.Unary{}, false
}

// isPowerOfTwo reports whether n is a positive power of two.
func isPowerOfTwo(n int) bool { return n > 0 && bits.OnesCount(uint(n)) == 1 }

// resolveByteOrder reads an optional "byte_order" attribute off a
// basic-type block's expression list, substituting the trace's default
// for "native" or an absent attribute.
func (r *Resolver) resolveByteOrder(exprs []*ast.CtfExpression) (bitbuf.ByteOrder, error) {
	val, ok := findAttr(exprs, "byte_order")
	if !ok {
		if !r.traceSeen {
			return 0, ErrIncomplete
		}
		return r.defaultByteOrder, nil
	}
	s, ok := unaryString(val)
	if !ok {
		return 0, errors.Wrap(ErrValidation, "byte_order attribute must be an identifier")
	}
	switch s {
	case "le":
		return bitbuf.LittleEndian, nil
	case "be", "network":
		return bitbuf.BigEndian, nil
	case "native":
		if !r.traceSeen {
			return 0, ErrIncomplete
		}
		return r.defaultByteOrder, nil
	default:
		return 0, errors.Wrapf(ErrValidation, "unknown byte_order value %q", s)
	}
}

// resolveTypeSpecifierList resolves a bare type (no declarator) to a
// field class: a base keyword block, a named or inline struct/variant/
// enum, or a type-alias identifier.
func (r *Resolver) resolveTypeSpecifierList(tsl *ast.TypeSpecifierList) (*fieldclass.Class, error) {
	if tsl == nil || len(tsl.Specifiers) == 0 {
		return nil, errors.Wrap(ErrValidation, "empty type specifier list")
	}
	for _, spec := range tsl.Specifiers {
		switch spec.Kind {
		case ast.SpecIntegerBlock:
			return r.resolveIntegerClass(spec.Node.(*ast.IntegerSpec))
		case ast.SpecFloatingPointBlock:
			return r.resolveFloatClass(spec.Node.(*ast.FloatingPointSpec))
		case ast.SpecStringBlock:
			return r.resolveStringClass(spec.Node.(*ast.StringSpec))
		case ast.SpecEnumBlock:
			return r.resolveEnumClass(spec.Node.(*ast.EnumSpec))
		case ast.SpecStructBlock:
			return r.resolveStructClass(spec.Node.(*ast.StructSpec))
		case ast.SpecVariantBlock:
			return r.resolveVariantClass(spec.Node.(*ast.VariantSpec), "")
		case ast.SpecIDType:
			return r.resolveIDType(spec.ID)
		}
	}
	return nil, errors.Wrap(ErrValidation, "type specifier list names no recognizable type")
}

// resolveIDType expands a type-alias or aliased base-keyword reference
// by name, searching the lexical scope stack innermost-first.
func (r *Resolver) resolveIDType(id string) (*fieldclass.Class, error) {
	entry, ok := r.scopes.lookupAlias(id)
	if !ok {
		return nil, errors.Wrapf(ErrValidation, "unknown type alias %q", id)
	}
	return r.resolveDeclaratorType(entry.tsl, entry.declarator)
}

// resolveDeclaratorType resolves a type-specifier-list plus declarator
// pair to a field class, unwrapping nested array/sequence/bitfield
// declarator shapes outward-in.
func (r *Resolver) resolveDeclaratorType(tsl *ast.TypeSpecifierList, decl *ast.Declarator) (*fieldclass.Class, error) {
	if decl == nil || decl.Kind == ast.DeclaratorID {
		base, err := r.resolveTypeSpecifierList(tsl)
		if err != nil {
			return nil, err
		}
		if decl != nil && decl.BitfieldLen != nil {
			n, ok := unaryInt(*decl.BitfieldLen)
			if !ok || n <= 0 || n > 64 {
				return nil, errors.Wrap(ErrValidation, "invalid bitfield length")
			}
			if base.Kind != fieldclass.KindInt {
				return nil, errors.Wrap(ErrValidation, "bitfield length suffix on non-integer type")
			}
			base.Int.Size = int(n)
		}
		return base, nil
	}

	// DeclaratorNested: an array or sequence wrapping Inner.
	elem, err := r.resolveDeclaratorType(tsl, decl.Inner)
	if err != nil {
		return nil, err
	}
	if decl.Length == nil {
		return nil, errors.Wrap(ErrValidation, "abstract array/sequence declarator outside a type-alias target")
	}
	text := isTextElement(elem)
	if n, ok := unaryInt(*decl.Length); ok {
		if n < 0 {
			return nil, errors.Wrap(ErrValidation, "negative static array length")
		}
		return &fieldclass.Class{Kind: fieldclass.KindStaticArray, InIR: true, StaticArray: &fieldclass.StaticArray{
			Element: elem, Length: int(n), IsText: text,
		}}, nil
	}
	name, ok := unaryString(*decl.Length)
	if !ok {
		return nil, errors.Wrap(ErrValidation, "array/sequence length must be a constant or a field reference")
	}
	return &fieldclass.Class{Kind: fieldclass.KindSequence, InIR: true, Sequence: &fieldclass.Sequence{
		Element: elem, LengthName: name, LengthStoredValueIndex: fieldclass.NoStoredValue, IsText: text,
	}}, nil
}

// isTextElement reports whether an array/sequence of this element class
// should be treated as a text run rather than a numeric collection: an
// 8-bit integer carrying a non-none encoding hint.
func isTextElement(elem *fieldclass.Class) bool {
	return elem.Kind == fieldclass.KindInt && elem.Int.Size == 8 && elem.Int.Encoding != fieldclass.EncodingNone
}

func (r *Resolver) resolveIntegerClass(spec *ast.IntegerSpec) (*fieldclass.Class, error) {
	sizeVal, ok := findAttr(spec.Expressions, "size")
	if !ok {
		return nil, errors.Wrap(ErrValidation, "integer block missing required \"size\" attribute")
	}
	size, ok := unaryInt(sizeVal)
	if !ok || size <= 0 || size > 64 {
		return nil, errors.Wrap(ErrValidation, "integer \"size\" must be in 1..64")
	}

	align := 1
	if v, ok := findAttr(spec.Expressions, "align"); ok {
		n, ok := unaryInt(v)
		if !ok || !isPowerOfTwo(int(n)) {
			return nil, errors.Wrap(ErrValidation, "integer \"align\" must be a power of two")
		}
		align = int(n)
	}

	signed := false
	if v, ok := findAttr(spec.Expressions, "signed"); ok {
		n, ok := unaryInt(v)
		if !ok {
			return nil, errors.Wrap(ErrValidation, "integer \"signed\" must be 0 or 1")
		}
		signed = n != 0
	}

	order, err := r.resolveByteOrder(spec.Expressions)
	if err != nil {
		return nil, err
	}

	base := fieldclass.BaseDecimal
	if v, ok := findAttr(spec.Expressions, "base"); ok {
		s, _ := unaryString(v)
		switch s {
		case "decimal", "dec", "d", "i", "u":
			base = fieldclass.BaseDecimal
		case "hexadecimal", "hex", "x", "X", "p":
			base = fieldclass.BaseHex
		case "octal", "oct", "o":
			base = fieldclass.BaseOctal
		case "binary", "b":
			base = fieldclass.BaseBinary
		}
	}

	encoding := fieldclass.EncodingNone
	mapped := ""
	if v, ok := findAttr(spec.Expressions, "encoding"); ok {
		s, _ := unaryString(v)
		switch s {
		case "UTF8", "utf8":
			encoding = fieldclass.EncodingUTF8
		case "ASCII", "ascii":
			encoding = fieldclass.EncodingASCII
		}
	}
	if v, ok := findAttr(spec.Expressions, "map"); ok {
		s, _ := unaryString(v)
		mapped = clockNameFromMapAttr(s)
	}

	return &fieldclass.Class{Kind: fieldclass.KindInt, InIR: true, Int: &fieldclass.Int{
		Size: int(size), Signed: signed, Order: order, Alignment: align,
		Base: base, Encoding: encoding, MappedClock: mapped, StoredValueIndex: fieldclass.NoStoredValue,
	}}, nil
}

func (r *Resolver) resolveFloatClass(spec *ast.FloatingPointSpec) (*fieldclass.Class, error) {
	mantVal, mok := findAttr(spec.Expressions, "mant_dig")
	expVal, eok := findAttr(spec.Expressions, "exp_dig")
	if !mok || !eok {
		return nil, errors.Wrap(ErrValidation, "floating_point block requires both \"mant_dig\" and \"exp_dig\"")
	}
	mant, _ := unaryInt(mantVal)
	exp, _ := unaryInt(expVal)

	var size int
	switch {
	case mant == 24 && exp == 8:
		size = 32
	case mant == 53 && exp == 11:
		size = 64
	default:
		return nil, errors.Wrapf(ErrValidation, "unsupported floating_point mant_dig/exp_dig combination (%d/%d)", mant, exp)
	}

	align := 1
	if v, ok := findAttr(spec.Expressions, "align"); ok {
		n, ok := unaryInt(v)
		if !ok || !isPowerOfTwo(int(n)) {
			return nil, errors.Wrap(ErrValidation, "floating_point \"align\" must be a power of two")
		}
		align = int(n)
	}

	order, err := r.resolveByteOrder(spec.Expressions)
	if err != nil {
		return nil, err
	}

	return &fieldclass.Class{Kind: fieldclass.KindFloat, InIR: true, Float: &fieldclass.Float{
		Size: size, Order: order, Alignment: align,
	}}, nil
}

func (r *Resolver) resolveStringClass(spec *ast.StringSpec) (*fieldclass.Class, error) {
	encoding := fieldclass.EncodingUTF8
	if v, ok := findAttr(spec.Expressions, "encoding"); ok {
		s, _ := unaryString(v)
		if s == "none" {
			encoding = fieldclass.EncodingNone
		}
	}
	return &fieldclass.Class{Kind: fieldclass.KindString, InIR: true, String: &fieldclass.String{Encoding: encoding}}, nil
}

func (r *Resolver) resolveEnumClass(spec *ast.EnumSpec) (*fieldclass.Class, error) {
	var base *fieldclass.Class
	var err error
	if spec.Container != nil {
		base, err = r.resolveTypeSpecifierList(spec.Container)
		if err != nil {
			return nil, err
		}
		if base.Kind != fieldclass.KindInt {
			return nil, errors.Wrap(ErrValidation, "enum container type must be an integer")
		}
	} else {
		base = &fieldclass.Class{Kind: fieldclass.KindInt, InIR: true, Int: &fieldclass.Int{
			Size: 32, Alignment: 8, StoredValueIndex: fieldclass.NoStoredValue,
		}}
		if r.traceSeen {
			base.Int.Order = r.defaultByteOrder
		} else {
			return nil, ErrIncomplete
		}
	}

	ranges := make([]fieldclass.EnumRange, 0, len(spec.Enumerators))
	seen := map[string]bool{}
	var next int64
	for _, e := range spec.Enumerators {
		if seen[e.Label] {
			return nil, errors.Wrapf(ErrValidation, "duplicate enum label %q", e.Label)
		}
		seen[e.Label] = true

		var lower, upper int64
		switch len(e.Values) {
		case 0:
			lower, upper = next, next
		case 1:
			v, _ := unaryInt(e.Values[0])
			lower, upper = v, v
		default:
			lo, _ := unaryInt(e.Values[0])
			hi, _ := unaryInt(e.Values[1])
			lower, upper = lo, hi
		}
		ranges = append(ranges, fieldclass.EnumRange{Label: e.Label, Lower: lower, Upper: upper})
		next = upper + 1
	}

	return &fieldclass.Class{Kind: fieldclass.KindEnum, InIR: true, Enum: &fieldclass.Enum{
		Base: *base.Int, Ranges: ranges,
	}}, nil
}

func (r *Resolver) resolveStructClass(spec *ast.StructSpec) (*fieldclass.Class, error) {
	if spec.HasBody {
		if spec.Name != "" {
			r.scopes.top().structs[spec.Name] = spec
		}
	} else {
		named := r.scopes.lookupStruct(spec.Name)
		if named == nil {
			return nil, errors.Wrapf(ErrValidation, "reference to undefined struct %q", spec.Name)
		}
		spec = named
	}

	r.scopes.push()
	defer r.scopes.pop()

	var members []fieldclass.Member
	maxAlign := 1
	seen := map[string]bool{}
	for _, node := range spec.Members {
		fields, err := r.resolveBlockMember(node)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			key := f.Name
			if seen[key] {
				return nil, errors.Wrapf(ErrValidation, "duplicate struct member %q", key)
			}
			seen[key] = true
			members = append(members, f)
			if a := f.Class.Alignment(); a > maxAlign {
				maxAlign = a
			}
		}
	}
	if spec.MinAlign > maxAlign {
		maxAlign = spec.MinAlign
	}

	return &fieldclass.Class{Kind: fieldclass.KindStruct, InIR: true, Struct: &fieldclass.Struct{
		Members: members, Alignment: maxAlign,
	}}, nil
}

func (r *Resolver) resolveVariantClass(spec *ast.VariantSpec, tagOverride string) (*fieldclass.Class, error) {
	if spec.HasBody {
		if spec.Name != "" {
			r.scopes.top().variants[spec.Name] = spec
		}
	} else {
		named := r.scopes.lookupVariant(spec.Name)
		if named == nil {
			return nil, errors.Wrapf(ErrValidation, "reference to undefined variant %q", spec.Name)
		}
		spec = named
	}

	tag := spec.Tag
	if tagOverride != "" {
		tag = tagOverride
	}
	if tag == "" {
		return nil, errors.Wrap(ErrValidation, "untagged variant at a type-alias definition site")
	}

	r.scopes.push()
	defer r.scopes.pop()

	var options []fieldclass.VariantOption
	seen := map[string]bool{}
	for _, node := range spec.Members {
		fields, err := r.resolveBlockMember(node)
		if err != nil {
			return nil, err
		}
		for _, f := range fields {
			if seen[f.Name] {
				return nil, errors.Wrapf(ErrValidation, "duplicate variant option %q", f.Name)
			}
			seen[f.Name] = true
			options = append(options, fieldclass.VariantOption{Name: f.Name, Class: f.Class})
		}
	}

	return &fieldclass.Class{Kind: fieldclass.KindVariant, InIR: true, Variant: &fieldclass.Variant{
		Options: options, TagName: tag, TagStoredValueIndex: fieldclass.NoStoredValue,
	}}, nil
}

// resolveBlockMember expands one member node of a struct/variant body
// (a StructOrVariantDeclaration, TypedefDecl, or TypealiasDecl) into
// zero or more named fields. TypedefDecl/TypealiasDecl register a new
// alias in the current scope and contribute no field themselves.
func (r *Resolver) resolveBlockMember(node ast.Node) ([]fieldclass.Member, error) {
	switch n := node.(type) {
	case *ast.StructOrVariantDeclaration:
		var out []fieldclass.Member
		for _, d := range n.Declarators {
			class, err := r.resolveDeclaratorType(n.TypeSpecifierList, d)
			if err != nil {
				return nil, err
			}
			out = append(out, fieldclass.Member{Name: declaratorName(d), Class: class})
		}
		return out, nil

	case *ast.TypedefDecl:
		for _, d := range n.Declarators {
			r.scopes.top().aliases[declaratorName(d)] = aliasEntry{tsl: n.TypeSpecifierList, declarator: d}
		}
		return nil, nil

	case *ast.TypealiasDecl:
		var targetDecl *ast.Declarator
		if len(n.TargetDeclarators) > 0 {
			targetDecl = n.TargetDeclarators[0]
		}
		name := declaratorName(n.AliasDeclarator)
		r.scopes.top().aliases[name] = aliasEntry{tsl: n.TargetTypeSpecifierList, declarator: chainDeclarator(n.AliasDeclarator, targetDecl)}
		return nil, nil

	default:
		return nil, errors.Errorf("metadata: unexpected node %T in struct/variant body", node)
	}
}

// chainDeclarator rewrites an alias's own (length-only) declarator
// shape to wrap the typealias target's declarator, so that e.g.
// `typealias integer { size = 8; } := uint8_t;` followed later by
// `uint8_t name[4];` resolves the same as a direct nested declarator.
func chainDeclarator(alias *ast.Declarator, target *ast.Declarator) *ast.Declarator {
	if alias == nil || alias.Kind == ast.DeclaratorID {
		return target
	}
	clone := *alias
	clone.Inner = chainDeclarator(alias.Inner, target)
	return &clone
}

func declaratorName(d *ast.Declarator) string {
	for d != nil {
		if d.Kind == ast.DeclaratorID {
			return d.ID
		}
		d = d.Inner
	}
	return ""
}

// clockNameFromMapAttr extracts the clock name from a `map = clock.NAME.value;`
// attribute value, per TSDL's fixed dotted form.
func clockNameFromMapAttr(s string) string {
	const prefix = "clock."
	const suffix = ".value"
	if len(s) > len(prefix)+len(suffix) && s[:len(prefix)] == prefix && s[len(s)-len(suffix):] == suffix {
		return s[len(prefix) : len(s)-len(suffix)]
	}
	return s
}
