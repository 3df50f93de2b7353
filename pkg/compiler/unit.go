package compiler

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
)

// Unit is one compiled template. Its source, version and dependency map are
// computed lazily, at most once, and never invalidated.
type Unit struct {
	name      string
	program   *Program
	imported  DependencyMap
	namespace string
	hashDeps  bool

	sourceOnce  sync.Once
	source      string
	versionOnce sync.Once
	version     string
	depsOnce    sync.Once
	deps        DependencyMap
}

func newUnit(name string, program *Program, imported DependencyMap, config Config) *Unit {
	return &Unit{
		name:      name,
		program:   program,
		imported:  imported,
		namespace: config.Namespace,
		hashDeps:  config.HashDependencies,
	}
}

// Name returns the template name.
func (u *Unit) Name() string {
	return u.name
}

// Program returns the instruction tree the source is serialized from.
func (u *Unit) Program() *Program {
	return u.program
}

// Source returns the generated function expression.
func (u *Unit) Source() string {
	u.sourceOnce.Do(func() {
		u.source = u.program.Source(u.namespace)
	})
	return u.source
}

// Version returns the hex SHA-256 digest of the generated source. With
// HashDependencies set, the digest also covers every dependency version.
func (u *Unit) Version() string {
	u.versionOnce.Do(func() {
		h := sha256.New()
		h.Write([]byte(u.Source()))
		if u.hashDeps {
			for _, name := range u.imported.Names() {
				fmt.Fprintf(h, "\n%s=%s", name, u.imported[name])
			}
		}
		u.version = hex.EncodeToString(h.Sum(nil))
	})
	return u.version
}

// Dependencies returns a copy of the transitive dependency map, including
// the template's own version.
func (u *Unit) Dependencies() DependencyMap {
	u.depsOnce.Do(func() {
		u.deps = u.imported.Clone()
		u.deps[u.name] = u.Version()
	})
	return u.deps.Clone()
}

// Generate wraps the function in a registration statement for the
// client-side registry and announces it as loaded.
func (u *Unit) Generate() string {
	var sb strings.Builder
	entry := u.namespace + ".fxns[" + jsString(u.name) + "]"
	sb.WriteString(entry + " = " + u.Source() + ";\n")
	sb.WriteString(entry + ".version = " + jsString(u.Version()) + ";\n")
	sb.WriteString(u.namespace + ".fxnLoaded(" + jsString(u.name) + ");\n")
	return sb.String()
}
