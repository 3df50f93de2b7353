package compiler

// RenderContext is the envelope a generated function is rendered against.
// Data is handed to the function as ctx; Template and Deps let the runtime
// check that every import it constructs is at the expected version.
type RenderContext struct {
	Data     any           `json:"data"`
	Template string        `json:"template"`
	Deps     DependencyMap `json:"deps"`
}

// NewRenderContext builds the context for rendering name with data.
func NewRenderContext(name string, data any, deps DependencyMap) RenderContext {
	if data == nil {
		data = map[string]any{}
	}
	return RenderContext{Data: data, Template: name, Deps: deps}
}

// RenderContext returns the envelope for rendering name with data, with the
// dependency map taken from the version cache.
func (c *Compiler) RenderContext(name string, data any) (RenderContext, error) {
	deps, err := c.Dependencies(name)
	if err != nil {
		return RenderContext{}, err
	}
	return NewRenderContext(name, data, deps), nil
}
