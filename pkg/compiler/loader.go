package compiler

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// Loader resolves a template name to its source text. Implementations
// return a *SourceNotFoundError when the template does not exist.
type Loader interface {
	Load(name string) (string, error)
}

// Lister is implemented by loaders that can enumerate their templates.
type Lister interface {
	List() ([]string, error)
}

// FileLoader reads templates from a directory. Names are slash-separated
// paths relative to Root and may not escape it.
type FileLoader struct {
	Root string
}

func NewFileLoader(root string) *FileLoader {
	return &FileLoader{Root: root}
}

func (l *FileLoader) Load(name string) (string, error) {
	root, err := filepath.Abs(l.Root)
	if err != nil {
		return "", fmt.Errorf("failed to resolve template root: %w", err)
	}
	path := filepath.Join(root, filepath.FromSlash(name))
	if rel, err := filepath.Rel(root, path); err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &SourceNotFoundError{Template: name, Path: path}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &SourceNotFoundError{Template: name, Path: path, Err: err}
		}
		return "", fmt.Errorf("failed to read template %q: %w", name, err)
	}
	return string(data), nil
}

// List returns every regular file under Root as a template name. Hidden
// files and directories are skipped.
func (l *FileLoader) List() ([]string, error) {
	var names []string
	err := filepath.WalkDir(l.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != l.Root && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(l.Root, path)
		if err != nil {
			return err
		}
		names = append(names, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list templates in %s: %w", l.Root, err)
	}
	slices.Sort(names)
	return names, nil
}

// MapLoader serves templates from memory.
type MapLoader map[string]string

func (m MapLoader) Load(name string) (string, error) {
	src, ok := m[name]
	if !ok {
		return "", &SourceNotFoundError{Template: name}
	}
	return src, nil
}

func (m MapLoader) List() ([]string, error) {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	slices.Sort(names)
	return names, nil
}
