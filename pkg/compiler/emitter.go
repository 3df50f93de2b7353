package compiler

import (
	"errors"
	"regexp"
	"strings"
)

var macroHeader = regexp.MustCompile(`^\s*([A-Za-z_$][\w$]*)\s*(\(.*\))\s*$`)

// Emitter turns a token stream into an instruction list. Literal runs and
// variables are buffered and flushed as a single Emit whenever code, a block
// call or a macro interrupts them.
type Emitter struct {
	pending []Value
	body    []Instruction
}

// NewEmitter returns an Emitter with empty buffers.
func NewEmitter() *Emitter {
	return &Emitter{}
}

// Feed applies every segment of the stream, then its tail.
func (e *Emitter) Feed(stream *TokenStream) error {
	for _, seg := range stream.Segments {
		e.Literal(seg.Literal)
		if err := e.Tag(seg.Tag); err != nil {
			return err
		}
	}
	e.Literal(stream.Tail)
	return nil
}

// Tag applies a single tag.
func (e *Emitter) Tag(tag Tag) error {
	switch tag.Kind {
	case TagVariable:
		e.Variable(tag.Body)
	case TagCode:
		e.Code(tag.Body)
	case TagComment:
	case TagBlock:
		name := strings.TrimSpace(tag.Body)
		if name == "" {
			err := newCompileError(ErrMalformedTag, "block tag without a name")
			err.Span = &tag.Span
			return err
		}
		e.Block(name)
	case TagMacro:
		if err := e.Macro(tag.Body); err != nil {
			var ce *CompileError
			if errors.As(err, &ce) && ce.Span == nil {
				ce.Span = &tag.Span
			}
			return err
		}
	}
	return nil
}

// Literal buffers a literal run. Runs that are only whitespace are dropped;
// adjacent literal runs are concatenated into one value.
func (e *Emitter) Literal(text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if n := len(e.pending); n > 0 && e.pending[n-1].Literal {
		e.pending[n-1].Text += text
		return
	}
	e.pending = append(e.pending, Value{Literal: true, Text: text})
}

// Variable buffers an expression after any pending values.
func (e *Emitter) Variable(expr string) {
	e.pending = append(e.pending, Value{Text: strings.TrimSpace(expr)})
}

// Code flushes and passes the tag body through byte for byte.
func (e *Emitter) Code(code string) {
	e.Flush()
	e.body = append(e.body, RawCode{Code: code})
}

// Block flushes and appends a call to the named function.
func (e *Emitter) Block(name string) {
	e.Flush()
	e.body = append(e.body, BlockCall{Name: name})
}

// Macro flushes and compiles the macro body in an isolated sub-emitter.
// The first line of body is the header, name(args); the rest is markup.
func (e *Emitter) Macro(body string) error {
	e.Flush()

	header, rest, ok := strings.Cut(strings.TrimSpace(body), "\n")
	if !ok {
		return newCompileError(ErrMacroHeader, "macro %q has no body after its header line", excerpt(header))
	}
	m := macroHeader.FindStringSubmatch(header)
	if m == nil {
		return newCompileError(ErrMacroHeader, "expected name(args) in macro header, got %q", excerpt(header))
	}

	stream, err := Tokenize(rest)
	if err != nil {
		return err
	}
	sub := NewEmitter()
	if err = sub.Feed(stream); err != nil {
		return err
	}
	e.body = append(e.body, MacroDef{Name: m[1], Params: m[2], Body: sub.Instructions()})
	return nil
}

// Flush collapses pending values into one Emit and clears the buffer.
func (e *Emitter) Flush() {
	if len(e.pending) == 0 {
		return
	}
	e.body = append(e.body, Emit{Values: e.pending})
	e.pending = nil
}

// Instructions flushes and returns the accumulated instruction list.
func (e *Emitter) Instructions() []Instruction {
	e.Flush()
	return e.body
}
