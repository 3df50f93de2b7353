package compiler

import (
	"errors"
	"reflect"
	"testing"
)

func TestScanDirectives(t *testing.T) {
	scan, err := scanDirectives("import a\n#import b\nextends c\n\nHello\nimport d")
	if err != nil {
		t.Fatalf("scanDirectives() error = %v", err)
	}
	if !reflect.DeepEqual(scan.Imports, []string{"a", "b"}) {
		t.Errorf("Imports = %v, want [a b]", scan.Imports)
	}
	if scan.Extends != "c" || scan.ExtendsLine != 3 {
		t.Errorf("Extends = %q on line %d, want c on line 3", scan.Extends, scan.ExtendsLine)
	}
	// Directive-looking lines after the first markup line are markup.
	if scan.Body != "\nHello\nimport d" {
		t.Errorf("Body = %q", scan.Body)
	}
}

func TestScanDirectives_NotDirectives(t *testing.T) {
	for _, src := range []string{"important stuff", "Hi\nimport a", "extends", "{{ import }}"} {
		t.Run(src, func(t *testing.T) {
			scan, err := scanDirectives(src)
			if src == "extends" {
				var ce *CompileError
				if !errors.As(err, &ce) || ce.Kind != ErrMalformedTag {
					t.Fatalf("scanDirectives(%q) error = %v, want malformed tag", src, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("scanDirectives(%q) error = %v", src, err)
			}
			if len(scan.Imports) != 0 || scan.Extends != "" || scan.Body != src {
				t.Errorf("scanDirectives(%q) = %+v, want body unchanged", src, scan)
			}
		})
	}
}

func TestScanDirectives_ImportAfterExtends(t *testing.T) {
	_, err := scanDirectives("import a\nextends b\nimport c\nbody")
	var orderErr *DirectiveOrderError
	if !errors.As(err, &orderErr) {
		t.Fatalf("scanDirectives() error = %v, want *DirectiveOrderError", err)
	}
	if orderErr.Line != 3 || orderErr.Import != "c" || orderErr.Extends != "b" {
		t.Errorf("DirectiveOrderError = %+v", orderErr)
	}
}

func TestScanDirectives_DuplicateExtends(t *testing.T) {
	_, err := scanDirectives("extends a\nextends b\n")
	var ce *CompileError
	if !errors.As(err, &ce) || ce.Kind != ErrDuplicateExtends {
		t.Fatalf("scanDirectives() error = %v, want duplicate extends", err)
	}
	if ce.Span == nil || ce.Span.Line != 2 {
		t.Errorf("Span = %+v, want line 2", ce.Span)
	}
}
