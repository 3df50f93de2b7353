package compiler

import (
	"strings"
)

// TagKind identifies one of the five tag forms.
type TagKind int

const (
	TagVariable TagKind = iota // {{ expr }}
	TagCode                    // {% code %}
	TagComment                 // {# text #}
	TagBlock                   // {$ name $}
	TagMacro                   // {= name(args)\n body =}
)

func (k TagKind) String() string {
	switch k {
	case TagVariable:
		return "variable"
	case TagCode:
		return "code"
	case TagComment:
		return "comment"
	case TagBlock:
		return "block"
	case TagMacro:
		return "macro"
	default:
		return "unknown"
	}
}

// Span locates a tag in its template source. Offsets are byte offsets, Line
// and Col are 1-based and refer to the opening delimiter.
type Span struct {
	Start int
	End   int
	Line  int
	Col   int
}

// Tag is a single parsed tag. Body is the raw text between the delimiters.
type Tag struct {
	Kind TagKind
	Body string
	Span Span
}

// Segment pairs a tag with the literal text that precedes it.
type Segment struct {
	Literal string
	Tag     Tag
}

// TokenStream is the tokenizer output: every segment in order, followed by
// the literal text after the last tag.
type TokenStream struct {
	Segments []Segment
	Tail     string
}

// punctuation that opens (after '{') and closes (before '}') a symmetric tag
var tagPunct = map[byte]TagKind{
	'%': TagCode,
	'#': TagComment,
	'$': TagBlock,
	'=': TagMacro,
}

// Tokenize splits template text into literal runs and tags. Tag bodies are
// matched non-greedily and must contain at least one character. An opening
// delimiter with no matching close fails with a CompileError.
func Tokenize(text string) (*TokenStream, error) {
	stream := &TokenStream{}
	pos := 0
	for {
		start, kind, ok := nextOpening(text, pos)
		if !ok {
			stream.Tail = text[pos:]
			return stream, nil
		}

		closer := "}}"
		if kind != TagVariable {
			closer = string(text[start+1]) + "}"
		}

		bodyStart := start + 2
		end := -1
		if bodyStart < len(text) {
			if idx := strings.Index(text[bodyStart+1:], closer); idx >= 0 {
				end = bodyStart + 1 + idx
			}
		}
		if end < 0 {
			line, col := lineCol(text, start)
			err := newCompileError(ErrMalformedTag, "no closing %q for %s tag starting %q", closer, kind, excerpt(text[start:]))
			err.Span = &Span{Start: start, End: len(text), Line: line, Col: col}
			return nil, err
		}

		line, col := lineCol(text, start)
		stream.Segments = append(stream.Segments, Segment{
			Literal: text[pos:start],
			Tag: Tag{
				Kind: kind,
				Body: text[bodyStart:end],
				Span: Span{Start: start, End: end + len(closer), Line: line, Col: col},
			},
		})
		pos = end + len(closer)
	}
}

// nextOpening finds the next tag opening at or after pos.
func nextOpening(text string, pos int) (int, TagKind, bool) {
	for i := pos; i < len(text)-1; i++ {
		if text[i] != '{' {
			continue
		}
		next := text[i+1]
		if next == '{' {
			return i, TagVariable, true
		}
		if kind, ok := tagPunct[next]; ok {
			return i, kind, true
		}
	}
	return 0, 0, false
}

func lineCol(text string, offset int) (int, int) {
	line := 1 + strings.Count(text[:offset], "\n")
	col := offset + 1
	if nl := strings.LastIndexByte(text[:offset], '\n'); nl >= 0 {
		col = offset - nl
	}
	return line, col
}

func excerpt(s string) string {
	const max = 20
	if len(s) > max {
		return s[:max]
	}
	return s
}
