package metadata

import "github.com/tracefmt/ctf/metadata/ast"

// aliasEntry is a registered `typealias TARGET := ALIAS;` or `typedef`
// binding: the type specifier list and declarator shape to re-expand
// whenever the alias name is referenced.
type aliasEntry struct {
	tsl        *ast.TypeSpecifierList
	declarator *ast.Declarator
}

// scopeFrame is one level of the lexical scope stack (the resolver's rule
// 1): a trace/stream/event block body, or the document root. Four
// prefix-separated buckets avoid a struct tag named "len" colliding
// with a typedef named "len", matching the CTF grammar's separate
// namespaces for `struct NAME`, `variant NAME`, `enum NAME`, and plain
// identifiers.
type scopeFrame struct {
	structs  map[string]*ast.StructSpec
	variants map[string]*ast.VariantSpec
	enums    map[string]*ast.EnumSpec
	aliases  map[string]aliasEntry
}

func newScopeFrame() *scopeFrame {
	return &scopeFrame{
		structs:  map[string]*ast.StructSpec{},
		variants: map[string]*ast.VariantSpec{},
		enums:    map[string]*ast.EnumSpec{},
		aliases:  map[string]aliasEntry{},
	}
}

// scopeStack is a stack of scopeFrames searched innermost-first, the
// way original_source's visitor-generate-ir.c walks `ctx->scope_stack`.
type scopeStack struct {
	frames []*scopeFrame
}

func newScopeStack() *scopeStack {
	s := &scopeStack{}
	s.push()
	return s
}

func (s *scopeStack) push() { s.frames = append(s.frames, newScopeFrame()) }

func (s *scopeStack) pop() { s.frames = s.frames[:len(s.frames)-1] }

func (s *scopeStack) top() *scopeFrame { return s.frames[len(s.frames)-1] }

func (s *scopeStack) lookupStruct(name string) *ast.StructSpec {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].structs[name]; ok {
			return v
		}
	}
	return nil
}

func (s *scopeStack) lookupVariant(name string) *ast.VariantSpec {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].variants[name]; ok {
			return v
		}
	}
	return nil
}

func (s *scopeStack) lookupEnum(name string) *ast.EnumSpec {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].enums[name]; ok {
			return v
		}
	}
	return nil
}

func (s *scopeStack) lookupAlias(name string) (aliasEntry, bool) {
	for i := len(s.frames) - 1; i >= 0; i-- {
		if v, ok := s.frames[i].aliases[name]; ok {
			return v, true
		}
	}
	return aliasEntry{}, false
}
