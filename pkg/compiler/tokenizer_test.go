package compiler

import (
	"errors"
	"testing"
)

func TestTokenize_AllKinds(t *testing.T) {
	src := "a{{ x }}b{% if (y) { %}c{# note #}{$ blk $}{= m(a)\nz =}d"
	stream, err := Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}

	want := []struct {
		literal string
		kind    TagKind
		body    string
	}{
		{"a", TagVariable, " x "},
		{"b", TagCode, " if (y) { "},
		{"c", TagComment, " note "},
		{"", TagBlock, " blk "},
		{"", TagMacro, " m(a)\nz "},
	}
	if len(stream.Segments) != len(want) {
		t.Fatalf("got %d segments, want %d", len(stream.Segments), len(want))
	}
	for i, w := range want {
		seg := stream.Segments[i]
		if seg.Literal != w.literal || seg.Tag.Kind != w.kind || seg.Tag.Body != w.body {
			t.Errorf("segment %d = {%q %s %q}, want {%q %s %q}", i, seg.Literal, seg.Tag.Kind, seg.Tag.Body, w.literal, w.kind, w.body)
		}
	}
	if stream.Tail != "d" {
		t.Errorf("Tail = %q, want %q", stream.Tail, "d")
	}
}

func TestTokenize_NonGreedy(t *testing.T) {
	stream, err := Tokenize("{{a}}{{b}}")
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if len(stream.Segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(stream.Segments))
	}
	if stream.Segments[0].Tag.Body != "a" || stream.Segments[1].Tag.Body != "b" {
		t.Errorf("bodies = %q, %q; want a, b", stream.Segments[0].Tag.Body, stream.Segments[1].Tag.Body)
	}
}

func TestTokenize_PlainText(t *testing.T) {
	src := "function() { return {a: 1}; }"
	stream, err := Tokenize(src)
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	if len(stream.Segments) != 0 || stream.Tail != src {
		t.Errorf("Tokenize(%q) = %d segments, tail %q", src, len(stream.Segments), stream.Tail)
	}
}

func TestTokenize_Spans(t *testing.T) {
	stream, err := Tokenize("line one\n  {{ x }}")
	if err != nil {
		t.Fatalf("Tokenize() error = %v", err)
	}
	span := stream.Segments[0].Tag.Span
	if span.Line != 2 || span.Col != 3 {
		t.Errorf("span = line %d col %d, want line 2 col 3", span.Line, span.Col)
	}
	if span.Start != 11 || span.End != 18 {
		t.Errorf("span offsets = [%d, %d), want [11, 18)", span.Start, span.End)
	}
}

func TestTokenize_Malformed(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
		col  int
	}{
		{"unterminated variable", "hello {{ name", 1, 7},
		{"unterminated code", "a\nb {% x", 2, 3},
		{"mismatched closer", "{% x #}", 1, 1},
		{"empty variable", "{{}}", 1, 1},
		{"opening at end", "text {=", 1, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Tokenize(tt.src)
			var ce *CompileError
			if !errors.As(err, &ce) {
				t.Fatalf("Tokenize(%q) error = %v, want *CompileError", tt.src, err)
			}
			if ce.Kind != ErrMalformedTag {
				t.Errorf("Kind = %s, want %s", ce.Kind, ErrMalformedTag)
			}
			if ce.Span == nil || ce.Span.Line != tt.line || ce.Span.Col != tt.col {
				t.Errorf("Span = %+v, want line %d col %d", ce.Span, tt.line, tt.col)
			}
		})
	}
}
