package main

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/CTAG07/Sluice/pkg/compiler"
	"github.com/andybalholm/brotli"
)

func TestPrecompileBundles(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := compiler.NewCompiler(logger, compiler.MapLoader{
		"base":          "<b>{{ x }}</b>",
		"pages/home":    "import base\n<p>{{ y }}</p>",
		"broken":        "{{ oops",
		"../escape.htm": "x",
	}, nil, compiler.DefaultConfig())
	assets := NewAssetEncoder(false, true, logger)
	dir := t.TempDir()

	n, err := precompileBundles(c, assets, []string{"pages/home", "broken", "../escape.htm"}, dir, true, logger)
	if err != nil {
		t.Fatalf("precompileBundles() error = %v", err)
	}
	if n != 2 {
		t.Errorf("wrote %d bundles, want 2", n)
	}

	plain, err := os.ReadFile(filepath.Join(dir, "pages", "home.js"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(plain), `fxnLoaded("base")`) || !strings.Contains(string(plain), `fxnLoaded("pages/home")`) {
		t.Errorf("bundle is missing registrations:\n%s", plain)
	}

	compressed, err := os.ReadFile(filepath.Join(dir, "pages", "home.js.br"))
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := io.ReadAll(brotli.NewReader(bytes.NewReader(compressed)))
	if err != nil || !bytes.Equal(decoded, plain) {
		t.Errorf("compressed bundle does not match the plain one (err %v)", err)
	}

	if _, err = os.Stat(filepath.Join(dir, "escape.htm.js")); err != nil {
		t.Errorf("escaping name was not confined to the bundle dir: %v", err)
	}
}
