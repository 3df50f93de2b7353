package main

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/js"
)

const jsMediaType = "application/javascript"

// AssetEncoder minifies and compresses the JavaScript the server hands out.
type AssetEncoder struct {
	minifier *minify.M
	minify   bool
	compress bool
	logger   *slog.Logger
}

func NewAssetEncoder(minifyJS, compress bool, logger *slog.Logger) *AssetEncoder {
	m := minify.New()
	m.AddFunc(jsMediaType, js.Minify)
	return &AssetEncoder{
		minifier: m,
		minify:   minifyJS,
		compress: compress,
		logger:   logger,
	}
}

// Minify returns code minified when minification is enabled. Code the
// minifier rejects is returned unchanged.
func (e *AssetEncoder) Minify(code string) string {
	if !e.minify {
		return code
	}
	out, err := e.minifier.String(jsMediaType, code)
	if err != nil {
		e.logger.Warn("Failed to minify script, serving it as is", "error", err)
		return code
	}
	return out
}

// Compress returns code as a brotli stream.
func (e *AssetEncoder) Compress(code string) ([]byte, error) {
	var buf bytes.Buffer
	bw := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := io.WriteString(bw, code); err != nil {
		return nil, fmt.Errorf("failed to compress script: %w", err)
	}
	if err := bw.Close(); err != nil {
		return nil, fmt.Errorf("failed to compress script: %w", err)
	}
	return buf.Bytes(), nil
}

// ServeJS writes code as JavaScript, brotli-encoded when the client accepts it.
func (e *AssetEncoder) ServeJS(w http.ResponseWriter, r *http.Request, code string) {
	code = e.Minify(code)
	w.Header().Set("Content-Type", jsMediaType+"; charset=utf-8")
	w.Header().Add("Vary", "Accept-Encoding")

	if e.compress && acceptsBrotli(r) {
		data, err := e.Compress(code)
		if err == nil {
			w.Header().Set("Content-Encoding", "br")
			_, _ = w.Write(data)
			return
		}
		e.logger.Warn("Serving uncompressed script", "error", err)
	}
	_, _ = io.WriteString(w, code)
}

func acceptsBrotli(r *http.Request) bool {
	for _, part := range strings.Split(r.Header.Get("Accept-Encoding"), ",") {
		enc, _, _ := strings.Cut(strings.TrimSpace(part), ";")
		if enc == "br" {
			return true
		}
	}
	return false
}
