package compiler

import (
	"errors"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/alphadose/haxmap"
)

// Compiler is a compilation session. It resolves templates through its
// Loader, compiles each name at most once, and records dependency maps in
// its VersionCache. All methods are concurrent-safe.
type Compiler struct {
	logger *slog.Logger
	loader Loader
	cache  VersionCache
	config Config
	units  *haxmap.Map[string, *Unit]
	mu     sync.Mutex
}

// NewCompiler creates a Compiler. A nil logger discards output and a nil
// cache is replaced by a fresh MemoryCache.
func NewCompiler(logger *slog.Logger, loader Loader, cache VersionCache, config Config) *Compiler {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if cache == nil {
		cache = NewMemoryCache()
	}
	defaults := DefaultConfig()
	if config.Namespace == "" {
		config.Namespace = defaults.Namespace
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = defaults.MaxDepth
	}
	return &Compiler{
		logger: logger,
		loader: loader,
		cache:  cache,
		config: config,
		units:  haxmap.New[string, *Unit](),
	}
}

// Config returns the compiler's configuration.
func (c *Compiler) Config() Config {
	return c.config
}

// Unit returns the compiled unit for name, compiling it and everything it
// imports or extends on first use. Failed compiles leave nothing cached.
func (c *Compiler) Unit(name string) (*Unit, error) {
	if u, ok := c.units.Get(name); ok {
		return u, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolve(nil, name)
}

// Compile returns the generated function source for name.
func (c *Compiler) Compile(name string) (string, error) {
	u, err := c.Unit(name)
	if err != nil {
		return "", err
	}
	return u.Source(), nil
}

// Version returns the version hash for name.
func (c *Compiler) Version(name string) (string, error) {
	u, err := c.Unit(name)
	if err != nil {
		return "", err
	}
	return u.Version(), nil
}

// Generate returns the registration statement for name.
func (c *Compiler) Generate(name string) (string, error) {
	u, err := c.Unit(name)
	if err != nil {
		return "", err
	}
	return u.Generate(), nil
}

// CompileSource compiles src as if it were the template name, without
// loading or caching it. Its directives resolve through the session.
func (c *Compiler) CompileSource(name, src string) (*Unit, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	u, err := c.build([]string{name}, name, src)
	if err != nil {
		c.logger.Error("Failed to compile template", "template", name, "error", err)
		return nil, err
	}
	return u, nil
}

// Dependencies returns the dependency map for name. A cached map, including
// one supplied through Preseed, is returned without compiling.
func (c *Compiler) Dependencies(name string) (DependencyMap, error) {
	if deps, ok := c.cache.Get(name); ok {
		return deps, nil
	}
	u, err := c.Unit(name)
	if err != nil {
		return nil, err
	}
	deps := u.Dependencies()
	c.cache.Set(name, deps)
	return deps, nil
}

// Preseed replaces the version cache contents with table. It only spares
// dependency-map computation; Unit and Compile still compile on demand.
func (c *Compiler) Preseed(table map[string]DependencyMap) {
	if r, ok := c.cache.(Replacer); ok {
		r.Replace(table)
	} else {
		for name, deps := range table {
			c.cache.Set(name, deps)
		}
	}
	c.logger.Info("Version cache pre-seeded", "templates", len(table))
}

// Bundle returns the registration statements for name and every template it
// depends on. Each template is registered after everything it depends on,
// and name comes last.
func (c *Compiler) Bundle(name string) (string, error) {
	u, err := c.Unit(name)
	if err != nil {
		return "", err
	}
	var deps []*Unit
	for _, dep := range u.Dependencies().Names() {
		if dep == name {
			continue
		}
		du, err := c.Unit(dep)
		if err != nil {
			return "", err
		}
		deps = append(deps, du)
	}
	// A template's closure strictly contains the closure of each of its
	// dependencies, so ordering by closure size is a topological order.
	slices.SortStableFunc(deps, func(a, b *Unit) int {
		return len(a.Dependencies()) - len(b.Dependencies())
	})

	var sb strings.Builder
	for _, du := range deps {
		sb.WriteString(du.Generate())
	}
	sb.WriteString(u.Generate())
	return sb.String(), nil
}

// Names lists the templates the loader can serve.
func (c *Compiler) Names() ([]string, error) {
	l, ok := c.loader.(Lister)
	if !ok {
		return nil, errors.New("template loader cannot list templates")
	}
	return l.List()
}

// resolve returns the unit for name, compiling it if needed. chain is the
// import/extends path that led here; c.mu must be held.
func (c *Compiler) resolve(chain []string, name string) (*Unit, error) {
	for i, seen := range chain {
		if seen == name {
			err := newCompileError(ErrDependencyCycle, "%s", strings.Join(append(chain[i:len(chain):len(chain)], name), " -> "))
			err.Template = name
			return nil, err
		}
	}
	if u, ok := c.units.Get(name); ok {
		return u, nil
	}
	if len(chain) >= c.config.MaxDepth {
		err := newCompileError(ErrDepthExceeded, "more than %d nested imports/extends reaching %q", c.config.MaxDepth, name)
		err.Template = name
		return nil, err
	}

	src, err := c.loader.Load(name)
	if err != nil {
		c.logger.Error("Failed to load template source", "template", name, "error", err)
		return nil, err
	}

	u, err := c.build(append(chain[:len(chain):len(chain)], name), name, src)
	if err != nil {
		c.logger.Error("Failed to compile template", "template", name, "error", err)
		return nil, err
	}

	c.units.Set(name, u)
	if !c.cache.Has(name) {
		c.cache.Set(name, u.Dependencies())
	}
	c.logger.Debug("Compiled template", "template", name, "version", u.Version())
	return u, nil
}

// build runs directive resolution, tokenizing and emission for one source.
func (c *Compiler) build(chain []string, name, src string) (*Unit, error) {
	scan, err := scanDirectives(src)
	if err != nil {
		var orderErr *DirectiveOrderError
		if errors.As(err, &orderErr) {
			ce := newCompileError(ErrDirectiveOrder, "import after extends")
			ce.Span = &Span{Line: orderErr.Line, Col: 1}
			ce.Err = orderErr
			err = ce
		}
		return nil, withTemplate(err, name)
	}

	program := &Program{}
	deps := DependencyMap{}

	for _, imp := range scan.Imports {
		iu, err := c.resolve(chain, imp)
		if err != nil {
			return nil, err
		}
		deps[imp] = iu.Version()
		deps.Merge(iu.Dependencies())
		program.Imports = append(program.Imports, imp)
	}

	if scan.Extends != "" {
		pu, err := c.resolve(chain, scan.Extends)
		if err != nil {
			return nil, err
		}
		deps[scan.Extends] = pu.Version()
		deps.Merge(pu.Dependencies())
		program.Parent = pu.Program()
	}

	stream, err := Tokenize(scan.Body)
	if err != nil {
		return nil, withTemplate(err, name)
	}
	em := NewEmitter()
	if err = em.Feed(stream); err != nil {
		return nil, withTemplate(err, name)
	}
	program.Body = em.Instructions()

	return newUnit(name, program, deps, c.config), nil
}

func withTemplate(err error, name string) error {
	var ce *CompileError
	if errors.As(err, &ce) && ce.Template == "" {
		ce.Template = name
	}
	return err
}
