package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Value is one argument of an emit call: either literal markup or a
// target-language expression.
type Value struct {
	Literal bool
	Text    string
}

// Instruction is a single node of an emitted function body.
type Instruction interface {
	isInstruction()
}

// Emit appends its values, in order, to the output accumulator.
type Emit struct {
	Values []Value
}

// RawCode is a code tag passed through verbatim.
type RawCode struct {
	Code string
}

// BlockCall invokes a zero-argument function expected to be in scope.
type BlockCall struct {
	Name string
}

// MacroDef registers a helper that renders Body into a string.
type MacroDef struct {
	Name   string
	Params string
	Body   []Instruction
}

func (Emit) isInstruction()      {}
func (RawCode) isInstruction()   {}
func (BlockCall) isInstruction() {}
func (MacroDef) isInstruction()  {}

// Program is the compiled form of one template before serialization.
// Imports wrap everything that follows them; Parent, when set, is the
// inherited scaffold whose own wraps open before Body and close after it.
type Program struct {
	Imports []string
	Parent  *Program
	Body    []Instruction
}

// Runtime bindings the generated code relies on carry a "__" prefix so keys
// of the render data, which are in scope through with, cannot shadow them.
// self, emit and done are aliases for code tags.
const preamble = `function(ctx, args) {
var __self = this, self = this;
var __done = function(post) {
__self.done(post);
__done = function() {};
};
var __emit = function(more) {
Array.prototype.push.apply(__self.markup, more);
};
var done = function(post) { __done(post); }, emit = __emit;
with (ctx || {}) {
`

const closer = "}\n}"

// Source serializes the program into a single function expression.
// namespace is the client-side global holding the helper table.
func (p *Program) Source(namespace string) string {
	w := &codeWriter{namespace: namespace}
	w.WriteString(preamble)
	w.scaffold(p)
	w.WriteString("__done();\n")
	w.closers(p)
	w.WriteString(closer)
	return w.String()
}

type codeWriter struct {
	strings.Builder
	namespace string
}

func (w *codeWriter) scaffold(p *Program) {
	for _, name := range p.Imports {
		v := importVar(name)
		w.WriteString("var " + v + " = new __self.ctor(" + jsString(name) + ", __self.context, __self.root);\n")
		w.WriteString(v + ".load();\n")
	}
	for _, name := range p.Imports {
		w.WriteString(importVar(name) + ".render(__self.context, function() {\n")
	}
	if p.Parent != nil {
		w.scaffold(p.Parent)
	}
	w.instructions(p.Body)
}

func (w *codeWriter) closers(p *Program) {
	if p.Parent != nil {
		w.closers(p.Parent)
	}
	for range p.Imports {
		w.WriteString("});\n")
	}
}

func (w *codeWriter) instructions(body []Instruction) {
	for _, ins := range body {
		switch ins := ins.(type) {
		case Emit:
			args := make([]string, len(ins.Values))
			for i, v := range ins.Values {
				if v.Literal {
					args[i] = jsString(v.Text)
				} else {
					args[i] = "(" + v.Text + ")"
				}
			}
			w.WriteString("__emit([" + strings.Join(args, ",") + "]);\n")
		case RawCode:
			w.WriteString(ins.Code + "\n")
		case BlockCall:
			w.WriteString(ins.Name + "();\n")
		case MacroDef:
			w.WriteString(w.namespace + ".helpers[" + jsString(ins.Name) + "] = function" + ins.Params + " {\n")
			w.WriteString("var __html = [];\n")
			w.WriteString("var __emit = function(more) {\nArray.prototype.push.apply(__html, more);\n}, emit = __emit;\n")
			w.instructions(ins.Body)
			w.WriteString("return __html.join('');\n};\n")
		}
	}
}

func importVar(name string) string {
	sum := sha256.Sum256([]byte(name))
	return "__imp_" + hex.EncodeToString(sum[:8])
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
