package sandbox

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/dop251/goja/ast"
	"github.com/dop251/goja/file"
	"github.com/dop251/goja/parser"
	"github.com/dop251/goja/token"
)

// Hidden globals the instrumented program calls into.
const (
	bindHelper  = "__heap_bind"
	allocHelper = "__heap_alloc"
	entryName   = "__loopviz_entry"
	failHelper  = "__loopviz_fail"
)

// insertion is a piece of text spliced into the program at a byte offset.
type insertion struct {
	pos   int
	close bool
	seq   int
	text  string
}

// scope is a lexical region that can declare names. Scope 0 is the program.
type scope struct {
	id     int
	node   ast.Node
	parent *scope
	fn     bool
	names  map[string]bool
}

// lookup returns the id of the innermost scope declaring name. Undeclared
// names are implicit globals and resolve to the program scope.
func (s *scope) lookup(name string) int {
	for ; s != nil; s = s.parent {
		if s.names[name] {
			return s.id
		}
	}
	return 0
}

// declare adds every identifier bound by target to s.
func (s *scope) declare(target ast.Node) {
	switch t := target.(type) {
	case *ast.Identifier:
		if t != nil {
			s.names[string(t.Name)] = true
		}
	case *ast.ArrayPattern:
		for _, el := range t.Elements {
			s.declare(el)
		}
		s.declare(t.Rest)
	case *ast.ObjectPattern:
		for _, p := range t.Properties {
			switch p := p.(type) {
			case *ast.PropertyShort:
				s.names[string(p.Name.Name)] = true
			case *ast.PropertyKeyed:
				s.declare(p.Value)
			}
		}
		s.declare(t.Rest)
	case *ast.AssignExpression:
		s.declare(t.Left)
	}
}

// bindSite is a bind wrapper whose scope is filled in once every declaration
// of the program has been seen.
type bindSite struct {
	name  string
	scope *scope
	open  int
}

// instrumenter routes simple-identifier bindings through the bind helper and
// every `new Object(...)` through the alloc helper.
type instrumenter struct {
	inserts []insertion
	seq     int
	scopes  int
	cur     *scope
	sites   []bindSite
}

// instrument rewrites src in place. Only text is inserted, never newlines, so
// every line of the result corresponds to the same line of src.
func instrument(name, src string) (string, error) {
	program, err := parser.ParseFile(nil, name, src, 0)
	if err != nil {
		return "", err
	}

	in := &instrumenter{}
	walk(reflect.ValueOf(program), make(map[visitKey]bool), in.enter, in.leave)
	for _, s := range in.sites {
		in.inserts[s.open].text = fmt.Sprintf("%s(%s, %d, (",
			bindHelper, strconv.Quote(s.name), s.scope.lookup(s.name))
	}
	return in.apply(src), nil
}

func (in *instrumenter) push(node ast.Node, fn bool) {
	id := 0
	if in.cur != nil {
		in.scopes++
		id = in.scopes
	}
	in.cur = &scope{id: id, node: node, parent: in.cur, fn: fn, names: make(map[string]bool)}
}

// function returns the nearest scope that owns var declarations.
func (in *instrumenter) function() *scope {
	s := in.cur
	for !s.fn {
		s = s.parent
	}
	return s
}

func (in *instrumenter) declareParams(params *ast.ParameterList) {
	if params == nil {
		return
	}
	for _, b := range params.List {
		in.cur.declare(b.Target)
	}
	in.cur.declare(params.Rest)
}

func declareList(s *scope, list []*ast.Binding) {
	for _, b := range list {
		s.declare(b.Target)
	}
}

func (in *instrumenter) enter(node ast.Node) {
	switch n := node.(type) {
	case *ast.Program:
		in.push(n, true)
	case *ast.FunctionLiteral:
		in.push(n, true)
		in.declareParams(n.ParameterList)
	case *ast.ArrowFunctionLiteral:
		in.push(n, true)
		in.declareParams(n.ParameterList)
	case *ast.BlockStatement, *ast.ForStatement, *ast.ForInStatement,
		*ast.ForOfStatement, *ast.SwitchStatement:
		in.push(n, false)
	case *ast.CatchStatement:
		in.push(n, false)
		in.cur.declare(n.Parameter)

	case *ast.VariableStatement:
		declareList(in.function(), n.List)
	case *ast.ForLoopInitializerVarDeclList:
		declareList(in.function(), n.List)
	case *ast.ForIntoVar:
		in.function().declare(n.Binding.Target)
	case *ast.LexicalDeclaration:
		declareList(in.cur, n.List)
	case *ast.ForLoopInitializerLexicalDecl:
		declareList(in.cur, n.LexicalDeclaration.List)
	case *ast.ForDeclaration:
		in.cur.declare(n.Target)
	case *ast.FunctionDeclaration:
		in.cur.declare(n.Function.Name)
	case *ast.ClassDeclaration:
		in.cur.declare(n.Class.Name)

	case *ast.Binding:
		if id, ok := n.Target.(*ast.Identifier); ok && n.Initializer != nil {
			in.bind(string(id.Name), n.Initializer)
		}
	case *ast.AssignExpression:
		if n.Operator != token.ASSIGN {
			return
		}
		if id, ok := n.Left.(*ast.Identifier); ok {
			in.bind(string(id.Name), n.Right)
		}
	case *ast.NewExpression:
		if id, ok := n.Callee.(*ast.Identifier); ok && id.Name == "Object" {
			in.wrap(n, allocHelper+"(", ")")
		}
	}
}

func (in *instrumenter) leave(node ast.Node) {
	if in.cur != nil && in.cur.node == node {
		in.cur = in.cur.parent
	}
}

func (in *instrumenter) bind(name string, expr ast.Expression) {
	if strings.HasPrefix(name, "__") {
		return
	}
	switch e := expr.(type) {
	case *ast.Identifier, *ast.NewExpression, *ast.CallExpression, *ast.NullLiteral:
	case *ast.AssignExpression:
		// x = y = E binds x to the same value as y
		if e.Operator != token.ASSIGN {
			return
		}
	case *ast.ObjectLiteral:
		open := in.wrap(expr, "", "))")
		in.sites = append(in.sites, bindSite{name: name, scope: in.cur, open: open})
		if !hasAccessors(e) {
			in.wrap(expr, allocHelper+"(", ")")
		}
		return
	default:
		return
	}

	open := in.wrap(expr, "", "))")
	in.sites = append(in.sites, bindSite{name: name, scope: in.cur, open: open})
}

// hasAccessors reports whether o defines a getter or setter. Such literals
// stay plain objects so the accessors keep running.
func hasAccessors(o *ast.ObjectLiteral) bool {
	for _, p := range o.Value {
		if k, ok := p.(*ast.PropertyKeyed); ok && (k.Kind == ast.PropertyKindGet || k.Kind == ast.PropertyKindSet) {
			return true
		}
	}
	return false
}

// wrap surrounds node with open and close and returns the index of the
// opening insertion. Opening text for an enclosing node is always recorded
// before that of a nested one.
func (in *instrumenter) wrap(node ast.Node, open, close string) int {
	start, end := int(node.Idx0())-1, int(closeIdx(node))-1
	in.seq++
	in.inserts = append(in.inserts,
		insertion{pos: start, seq: in.seq, text: open},
		insertion{pos: end, close: true, seq: in.seq, text: close},
	)
	return len(in.inserts) - 2
}

// closeIdx is node.Idx1, except that `new X()` ends after its parentheses
// even when the argument list is empty.
func closeIdx(node ast.Node) file.Idx {
	if n, ok := node.(*ast.NewExpression); ok && n.RightParenthesis > 0 {
		return n.RightParenthesis + 1
	}
	return node.Idx1()
}

func (in *instrumenter) apply(src string) string {
	sort.SliceStable(in.inserts, func(i, j int) bool {
		a, b := in.inserts[i], in.inserts[j]
		if a.pos != b.pos {
			return a.pos < b.pos
		}
		if a.close != b.close {
			return a.close
		}
		if a.close {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})

	var sb strings.Builder
	sb.Grow(len(src) + len(in.inserts)*16)
	last := 0
	for _, ins := range in.inserts {
		pos := min(max(ins.pos, last), len(src))
		sb.WriteString(src[last:pos])
		sb.WriteString(ins.text)
		last = pos
	}
	sb.WriteString(src[last:])
	return sb.String()
}

type visitKey struct {
	ptr uintptr
	typ reflect.Type
}

// walk visits every AST node reachable from v. enter sees a parent before its
// children and leave sees it after them. Nodes shared between lists (such as
// hoisted declarations) are visited once.
func walk(v reflect.Value, seen map[visitKey]bool, enter, leave func(ast.Node)) {
	switch v.Kind() {
	case reflect.Interface:
		if !v.IsNil() {
			walk(v.Elem(), seen, enter, leave)
		}
	case reflect.Pointer:
		if v.IsNil() {
			return
		}
		key := visitKey{ptr: v.Pointer(), typ: v.Type()}
		if seen[key] {
			return
		}
		seen[key] = true
		n, ok := v.Interface().(ast.Node)
		if ok {
			enter(n)
		}
		walk(v.Elem(), seen, enter, leave)
		if ok {
			leave(n)
		}
	case reflect.Struct:
		t := v.Type()
		for i := 0; i < v.NumField(); i++ {
			if t.Field(i).IsExported() {
				walk(v.Field(i), seen, enter, leave)
			}
		}
	case reflect.Slice:
		for i := 0; i < v.Len(); i++ {
			walk(v.Index(i), seen, enter, leave)
		}
	}
}
