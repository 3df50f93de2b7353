package compiler

import (
	"fmt"
	"io/fs"
)

// CompileErrorKind describes why a template failed to compile.
type CompileErrorKind int

const (
	ErrMalformedTag CompileErrorKind = iota
	ErrMacroHeader
	ErrDirectiveOrder
	ErrDuplicateExtends
	ErrDependencyCycle
	ErrDepthExceeded
)

func (k CompileErrorKind) String() string {
	switch k {
	case ErrMalformedTag:
		return "malformed tag"
	case ErrMacroHeader:
		return "bad macro definition"
	case ErrDirectiveOrder:
		return "directive order"
	case ErrDuplicateExtends:
		return "duplicate extends"
	case ErrDependencyCycle:
		return "dependency cycle"
	case ErrDepthExceeded:
		return "dependency depth exceeded"
	default:
		return "compile error"
	}
}

// CompileError is returned for any failure while tokenizing, resolving
// directives or emitting code for a template.
type CompileError struct {
	Template string
	Kind     CompileErrorKind
	Message  string
	Span     *Span
	Err      error
}

func (e *CompileError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Span != nil {
		msg = fmt.Sprintf("%s (line %d, col %d)", msg, e.Span.Line, e.Span.Col)
	}
	if e.Template != "" {
		msg = fmt.Sprintf("template %q: %s", e.Template, msg)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *CompileError) Unwrap() error {
	return e.Err
}

func newCompileError(kind CompileErrorKind, format string, args ...any) *CompileError {
	return &CompileError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// SourceNotFoundError is returned by a Loader when a template has no source.
type SourceNotFoundError struct {
	Template string
	Path     string
	Err      error
}

func (e *SourceNotFoundError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("template %q not found at %s", e.Template, e.Path)
	}
	return fmt.Sprintf("template %q not found", e.Template)
}

func (e *SourceNotFoundError) Unwrap() error {
	if e.Err != nil {
		return e.Err
	}
	return fs.ErrNotExist
}

// DirectiveOrderError reports an import directive seen after an extends
// directive in the leading directive run.
type DirectiveOrderError struct {
	Line    int
	Import  string
	Extends string
}

func (e *DirectiveOrderError) Error() string {
	return fmt.Sprintf("import %q on line %d comes after extends %q; extends must come after imports", e.Import, e.Line, e.Extends)
}
