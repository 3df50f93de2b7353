package main

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/CTAG07/Sluice/pkg/compiler"
	"github.com/natefinch/atomic"
)

// precompileBundles writes the bundle of every listed template to dir as
// <name>.js, plus a .js.br copy when compression is on. A template that fails
// to compile is logged and skipped.
func precompileBundles(c *compiler.Compiler, assets *AssetEncoder, names []string, dir string, compress bool, logger *slog.Logger) (int, error) {
	if len(names) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, fmt.Errorf("failed to create bundle directory: %w", err)
	}

	written := 0
	for _, name := range names {
		u, err := c.Unit(name)
		if err != nil {
			logger.Error("Skipping bundle that does not compile", "template", name, "error", err)
			continue
		}
		bundle, err := c.Bundle(name)
		if err != nil {
			logger.Error("Skipping bundle that does not compile", "template", name, "error", err)
			continue
		}
		code := assets.Minify(bundle)
		path := filepath.Join(dir, bundleFileName(name))
		if err = os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return written, fmt.Errorf("failed to create bundle directory: %w", err)
		}
		if err = atomic.WriteFile(path, strings.NewReader(code)); err != nil {
			return written, fmt.Errorf("failed to write bundle for %q: %w", name, err)
		}
		if compress {
			data, err := assets.Compress(code)
			if err != nil {
				return written, err
			}
			if err = atomic.WriteFile(path+".br", bytes.NewReader(data)); err != nil {
				return written, fmt.Errorf("failed to write compressed bundle for %q: %w", name, err)
			}
		}
		logger.Debug("Wrote bundle", "template", name, "version", u.Version(), "path", path)
		written++
	}
	return written, nil
}

// bundleFileName maps a template name onto a file name inside the bundle dir.
func bundleFileName(name string) string {
	clean := filepath.Clean("/" + filepath.FromSlash(name))
	return strings.TrimPrefix(clean, string(filepath.Separator)) + ".js"
}
