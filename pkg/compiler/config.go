package compiler

// Config holds the options of a Compiler.
type Config struct {
	// Namespace is the client-side global holding the template registry
	// (fxns, helpers and fxnLoaded). Generated code refers to it by name.
	Namespace string `json:"namespace"`

	// MaxDepth bounds the import/extends chain followed from a single template.
	MaxDepth int `json:"max_depth"`

	// HashDependencies folds the versions of every dependency into a
	// template's own version, so a change in an imported template changes
	// the importer's version even though its code is only referenced.
	HashDependencies bool `json:"hash_dependencies"`
}

// DefaultConfig returns a Config with safe default values.
func DefaultConfig() Config {
	return Config{
		Namespace:        "Sluice",
		MaxDepth:         32,
		HashDependencies: true,
	}
}
