package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchTemplates(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	refreshed := make(chan struct{}, 4)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := watchTemplates(ctx, dir, func() { refreshed <- struct{}{} }, logger); err != nil {
		t.Fatalf("watchTemplates() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "page.html"), []byte("{{ x }}"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case <-refreshed:
	case <-time.After(5 * time.Second):
		t.Fatal("no refresh after writing a template")
	}
}
