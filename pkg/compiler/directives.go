package compiler

import (
	"strings"
)

// directiveScan is the successful result of scanning the leading directive
// lines of a template.
type directiveScan struct {
	Imports     []string
	Extends     string
	ExtendsLine int
	Body        string
}

// scanDirectives consumes the leading run of import/extends lines. Scanning
// stops at the first line that is neither blank nor a directive; later
// directive-looking lines are ordinary markup. Directive lines are removed
// from the returned body, blank lines are kept.
//
// An import after an extends yields a *DirectiveOrderError.
func scanDirectives(src string) (directiveScan, error) {
	var scan directiveScan
	lines := strings.Split(src, "\n")
	kept := make([]string, 0, len(lines))

	i := 0
	for ; i < len(lines); i++ {
		trimmed := strings.TrimSpace(lines[i])
		if trimmed == "" {
			kept = append(kept, lines[i])
			continue
		}
		keyword, name, ok := parseDirective(trimmed)
		if !ok {
			break
		}
		if name == "" {
			err := newCompileError(ErrMalformedTag, "%s directive without a template name", keyword)
			err.Span = &Span{Line: i + 1, Col: 1}
			return scan, err
		}

		switch keyword {
		case "import":
			if scan.Extends != "" {
				return scan, &DirectiveOrderError{Line: i + 1, Import: name, Extends: scan.Extends}
			}
			scan.Imports = append(scan.Imports, name)
		case "extends":
			if scan.Extends != "" {
				err := newCompileError(ErrDuplicateExtends, "extends %q after extends %q; only one parent is allowed", name, scan.Extends)
				err.Span = &Span{Line: i + 1, Col: 1}
				return scan, err
			}
			scan.Extends = name
			scan.ExtendsLine = i + 1
		}
	}

	kept = append(kept, lines[i:]...)
	scan.Body = strings.Join(kept, "\n")
	return scan, nil
}

// parseDirective recognises "import name" and "extends name", with an
// optional leading '#'.
func parseDirective(line string) (keyword, name string, ok bool) {
	line = strings.TrimPrefix(line, "#")
	for _, kw := range []string{"import", "extends"} {
		rest, found := strings.CutPrefix(line, kw)
		if !found {
			continue
		}
		if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
			continue
		}
		return kw, strings.TrimSpace(rest), true
	}
	return "", "", false
}
