package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/CTAG07/Sluice/pkg/compiler"
	"github.com/dop251/goja"
)

const renderEntry = `(function(name, root, ctxJSON) {
var out = null;
var m = new %s.Monad(name, null, root);
m.render(JSON.parse(ctxJSON), function(data, markup) { out = markup; });
return out;
})`

// ErrNotDone is returned when a template finishes executing without
// signalling completion, usually because a code tag returned early.
var ErrNotDone = errors.New("template did not signal completion")

var runtimeProgram = sync.OnceValues(func() (*goja.Program, error) {
	return goja.Compile("runtime.js", Runtime, false)
})

// LocalHost renders templates in-process. Each render runs on a fresh
// JavaScript VM, so templates cannot leak state into one another.
type LocalHost struct {
	compiler *compiler.Compiler
	logger   *slog.Logger
	root     string
}

// NewLocalHost returns a LocalHost that compiles through c. root is handed
// to the runtime as the template root.
func NewLocalHost(c *compiler.Compiler, logger *slog.Logger, root string) *LocalHost {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &LocalHost{compiler: c, logger: logger, root: root}
}

// Render compiles name and its dependencies and executes it with data. The
// VM is interrupted if ctx is cancelled.
func (h *LocalHost) Render(ctx context.Context, name string, data any) (string, error) {
	bundle, err := h.compiler.Bundle(name)
	if err != nil {
		return "", err
	}
	rc, err := h.compiler.RenderContext(name, data)
	if err != nil {
		return "", err
	}
	markup, err := h.run(ctx, name, bundle, rc)
	if err != nil {
		h.logger.Error("Local render failed", "template", name, "error", err)
		return "", err
	}
	return markup, nil
}

// RenderSource executes an ad-hoc unit that was never registered with the
// compiler, together with everything it depends on.
func (h *LocalHost) RenderSource(ctx context.Context, u *compiler.Unit, data any) (string, error) {
	var bundle string
	deps := u.Dependencies()
	for _, dep := range deps.Names() {
		if dep == u.Name() {
			continue
		}
		gen, err := h.compiler.Generate(dep)
		if err != nil {
			return "", err
		}
		bundle += gen
	}
	bundle += u.Generate()
	return h.run(ctx, u.Name(), bundle, compiler.NewRenderContext(u.Name(), data, deps))
}

func (h *LocalHost) run(ctx context.Context, name, bundle string, rc compiler.RenderContext) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	markup, err := h.exec(ctx, name, bundle, rc)
	var interrupted *goja.InterruptedError
	if errors.As(err, &interrupted) && ctx.Err() != nil {
		return "", ctx.Err()
	}
	return markup, err
}

func (h *LocalHost) exec(ctx context.Context, name, bundle string, rc compiler.RenderContext) (string, error) {
	ctxJSON, err := json.Marshal(rc)
	if err != nil {
		return "", fmt.Errorf("failed to encode render context: %w", err)
	}
	prog, err := runtimeProgram()
	if err != nil {
		return "", fmt.Errorf("failed to compile runtime: %w", err)
	}

	vm := goja.New()
	stop := context.AfterFunc(ctx, func() { vm.Interrupt(ctx.Err()) })
	defer stop()

	if _, err = vm.RunProgram(prog); err != nil {
		return "", fmt.Errorf("failed to load runtime: %w", err)
	}
	ns := h.compiler.Config().Namespace
	if ns != "Sluice" {
		if err = vm.Set(ns, vm.Get("Sluice")); err != nil {
			return "", fmt.Errorf("failed to alias runtime as %s: %w", ns, err)
		}
	}
	if _, err = vm.RunScript(name+".js", bundle); err != nil {
		return "", fmt.Errorf("failed to load template %q: %w", name, err)
	}
	entry, err := vm.RunString(fmt.Sprintf(renderEntry, ns))
	if err != nil {
		return "", fmt.Errorf("failed to prepare render: %w", err)
	}
	fn, ok := goja.AssertFunction(entry)
	if !ok {
		return "", errors.New("render entry is not a function")
	}
	res, err := fn(goja.Undefined(), vm.ToValue(name), vm.ToValue(h.root), vm.ToValue(string(ctxJSON)))
	if err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}
	if goja.IsNull(res) || goja.IsUndefined(res) {
		return "", fmt.Errorf("template %q: %w", name, ErrNotDone)
	}
	return res.String(), nil
}
