package compiler

import (
	"errors"
	"reflect"
	"strings"
	"testing"
)

func emit(t *testing.T, src string) []Instruction {
	t.Helper()
	stream, err := Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize(%q) error = %v", src, err)
	}
	em := NewEmitter()
	if err = em.Feed(stream); err != nil {
		t.Fatalf("Feed(%q) error = %v", src, err)
	}
	return em.Instructions()
}

func lit(s string) Value  { return Value{Literal: true, Text: s} }
func expr(s string) Value { return Value{Text: s} }

func TestEmitter_Instructions(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want []Instruction
	}{
		{
			name: "batching",
			src:  "{{ x }}{{ y }}",
			want: []Instruction{Emit{Values: []Value{expr("x"), expr("y")}}},
		},
		{
			name: "literals around expression",
			src:  "<p> {{ x }} </p>",
			want: []Instruction{Emit{Values: []Value{lit("<p> "), expr("x"), lit(" </p>")}}},
		},
		{
			name: "whitespace elision",
			src:  "{{ x }}  \n  {% if (a) { %}\n  {{ y }}\n{% } %}",
			want: []Instruction{
				Emit{Values: []Value{expr("x")}},
				RawCode{Code: " if (a) { "},
				Emit{Values: []Value{expr("y")}},
				RawCode{Code: " } "},
			},
		},
		{
			name: "comment dropped",
			src:  "a{# ignored #}b",
			want: []Instruction{Emit{Values: []Value{lit("ab")}}},
		},
		{
			name: "block call",
			src:  "x{$ header $}y",
			want: []Instruction{
				Emit{Values: []Value{lit("x")}},
				BlockCall{Name: "header"},
				Emit{Values: []Value{lit("y")}},
			},
		},
		{
			name: "macro",
			src:  "{= greet(name)\n<b>{{ name }}</b> =}",
			want: []Instruction{
				MacroDef{Name: "greet", Params: "(name)", Body: []Instruction{
					Emit{Values: []Value{lit("<b>"), expr("name"), lit("</b>")}},
				}},
			},
		},
		{
			name: "empty template",
			src:  "  \n ",
			want: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := emit(t, tt.src)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Instructions() = %#v\nwant %#v", got, tt.want)
			}
		})
	}
}

func TestEmitter_MacroIsolation(t *testing.T) {
	got := emit(t, "before {{ a }}{= greet(name)\n{{ name }} =}after")
	if len(got) != 3 {
		t.Fatalf("got %d instructions, want 3: %#v", len(got), got)
	}
	// The outer buffer is flushed before the macro and never leaks into it.
	if _, ok := got[0].(Emit); !ok {
		t.Errorf("instruction 0 = %T, want Emit", got[0])
	}
	def, ok := got[1].(MacroDef)
	if !ok {
		t.Fatalf("instruction 1 = %T, want MacroDef", got[1])
	}
	if !reflect.DeepEqual(def.Body, []Instruction{Emit{Values: []Value{expr("name")}}}) {
		t.Errorf("macro body = %#v", def.Body)
	}

	src := (&Program{Body: got}).Source("Sluice")
	if !strings.Contains(src, `Sluice.helpers["greet"] = function(name) {`) {
		t.Errorf("source does not register greet:\n%s", src)
	}
	if !strings.Contains(src, "var __html = [];") || !strings.Contains(src, "return __html.join('');") {
		t.Errorf("macro does not use a local accumulator:\n%s", src)
	}
}

func TestEmitter_BatchingSource(t *testing.T) {
	src := (&Program{Body: emit(t, "{{ x }}{{ y }}")}).Source("Sluice")
	if n := strings.Count(src, "__emit(["); n != 1 {
		t.Errorf("got %d emit calls, want 1:\n%s", n, src)
	}
	if !strings.Contains(src, "__emit([(x),(y)]);") {
		t.Errorf("expressions not emitted in order:\n%s", src)
	}
}

func TestEmitter_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		kind CompileErrorKind
	}{
		{"macro without body", "{= greet(a) =}", ErrMacroHeader},
		{"macro bad name", "{= 123(a)\nx =}", ErrMacroHeader},
		{"macro without params", "{= greet\nx =}", ErrMacroHeader},
		{"macro bad inner tag", "{= greet(a)\n{{ a =}", ErrMalformedTag},
		{"empty block", "{$   $}", ErrMalformedTag},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stream, err := Tokenize(tt.src)
			if err != nil {
				t.Fatalf("Tokenize() error = %v", err)
			}
			err = NewEmitter().Feed(stream)
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("Feed() error = %v, want *CompileError", err)
			}
			if ce.Kind != tt.kind {
				t.Errorf("Kind = %s, want %s", ce.Kind, tt.kind)
			}
			if ce.Span == nil {
				t.Error("Span = nil, want the tag's span")
			}
		})
	}
}
