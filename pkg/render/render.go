// Package render executes compiled templates, either in-process on an
// embedded JavaScript engine or on a remote node execution host.
package render

import (
	"context"
	_ "embed"
)

// Runtime is the client-side registry and Monad implementation that
// generated template functions run against.
//
//go:embed runtime.js
var Runtime string

// Renderer renders a named template with data into markup.
type Renderer interface {
	Render(ctx context.Context, name string, data any) (string, error)
}
