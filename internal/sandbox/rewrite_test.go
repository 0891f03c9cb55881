package sandbox

import (
	"strings"
	"testing"
)

func TestInstrument(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{
			name: "object literal",
			src:  "let a = {x: 1};",
			want: `let a = __heap_bind("a", 0, (__heap_alloc({x: 1})));`,
		},
		{
			name: "alias",
			src:  "const b = a;",
			want: `const b = __heap_bind("b", 0, (a));`,
		},
		{
			name: "assignment of new Object",
			src:  "b = new Object();",
			want: `b = __heap_bind("b", 0, (__heap_alloc(new Object())));`,
		},
		{
			name: "new without arguments",
			src:  "let d = new Date(); let f = new Foo;",
			want: `let d = __heap_bind("d", 0, (new Date())); let f = __heap_bind("f", 0, (new Foo));`,
		},
		{
			name: "nested assignment",
			src:  "x = y = {};",
			want: `x = __heap_bind("x", 0, (y = __heap_bind("y", 0, (__heap_alloc({})))));`,
		},
		{
			name: "parenthesized callee",
			src:  "let x = (f)(1);",
			want: `let x = (__heap_bind("x", 0, (f)(1)));`,
		},
		{
			name: "sequence left alone",
			src:  "let x = (a, b);",
			want: "let x = (a, b);",
		},
		{
			name: "number left alone",
			src:  "let n = 1;",
			want: "let n = 1;",
		},
		{
			name: "accessor literal bound but not allocated",
			src:  "let g = {get v() { return 1; }};",
			want: `let g = __heap_bind("g", 0, ({get v() { return 1; }}));`,
		},
		{
			name: "arrow function left alone",
			src:  "const f = () => 1;",
			want: "const f = () => 1;",
		},
		{
			name: "compound assignment left alone",
			src:  "n += 1;",
			want: "n += 1;",
		},
		{
			name: "destructuring left alone",
			src:  "let {a} = o;",
			want: "let {a} = o;",
		},
		{
			name: "anonymous new Object",
			src:  "f(new Object());",
			want: "f(__heap_alloc(new Object()));",
		},
		{
			name: "shadowing let gets its own scope",
			src:  "let o = a; function f() { let o = b; }",
			want: `let o = __heap_bind("o", 0, (a)); function f() { let o = __heap_bind("o", 2, (b)); }`,
		},
		{
			name: "var belongs to the function",
			src:  "function f() { if (x) { var o = a; } }",
			want: `function f() { if (x) { var o = __heap_bind("o", 1, (a)); } }`,
		},
		{
			name: "assignment resolves to the outer declaration",
			src:  "let o; function f() { o = a; }",
			want: `let o; function f() { o = __heap_bind("o", 0, (a)); }`,
		},
		{
			name: "parameter shadows outer name",
			src:  "let o; function f(o) { o = a; }",
			want: `let o; function f(o) { o = __heap_bind("o", 1, (a)); }`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := instrument("test.js", tt.src)
			if err != nil {
				t.Fatalf("instrument: %v", err)
			}
			if got != tt.want {
				t.Errorf("instrument(%q)\n got %s\nwant %s", tt.src, got, tt.want)
			}
		})
	}
}

func TestInstrumentKeepsLines(t *testing.T) {
	src := "let a = {\n  x: 1,\n};\nfunction f() {\n  let b = a;\n  return b;\n}\n"
	got, err := instrument("test.js", src)
	if err != nil {
		t.Fatalf("instrument: %v", err)
	}
	if strings.Count(got, "\n") != strings.Count(src, "\n") {
		t.Fatalf("line count changed:\n%s", got)
	}
	if !strings.Contains(strings.Split(got, "\n")[4], `__heap_bind("b", 2, (a))`) {
		t.Errorf("binding inside function not instrumented:\n%s", got)
	}
}

func TestInstrumentSyntaxError(t *testing.T) {
	if _, err := instrument("test.js", "let = ;"); err == nil {
		t.Error("expected a syntax error")
	}
}
