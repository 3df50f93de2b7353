package render

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/CTAG07/Sluice/pkg/compiler"
)

// RemoteConfig configures the bridge to a node execution host.
type RemoteConfig struct {
	// URL the bootstrap script is POSTed to.
	URL string `json:"url"`
	// JSRoot is the directory, on the execution host, holding sluice.js and
	// the mixin files.
	JSRoot string `json:"js_root"`
	// TemplateRoot is handed to the runtime as the template root.
	TemplateRoot string `json:"template_root"`
	// Exports are bound as globals before the template is loaded.
	Exports map[string]any `json:"exports"`
	// Mixins are script files under JSRoot evaluated before the template.
	Mixins []string `json:"mixins"`
	// Timeout bounds one round trip.
	Timeout time.Duration `json:"timeout"`
	// Retries is how many extra attempts are made after a transport error.
	// Responses with a non-200 status are never retried.
	Retries int `json:"retries"`
}

// DefaultRemoteConfig returns a RemoteConfig for a host on localhost.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		URL:          "http://localhost:8124/",
		JSRoot:       "./",
		TemplateRoot: "./",
		Exports:      map[string]any{},
		Mixins:       []string{},
		Timeout:      10 * time.Second,
		Retries:      1,
	}
}

// RemoteRenderError is returned when the execution host fails a render.
// StatusCode is zero for transport failures.
type RemoteRenderError struct {
	Template   string
	StatusCode int
	Body       string
	Err        error
}

func (e *RemoteRenderError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("remote render of %q failed: %v", e.Template, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("remote render of %q failed with status %d: %v", e.Template, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("remote render of %q failed with status %d: %s", e.Template, e.StatusCode, strings.TrimSpace(e.Body))
}

func (e *RemoteRenderError) Unwrap() error {
	return e.Err
}

var errNotHTML = errors.New("response is not text/html")

// RemoteHost renders templates by shipping a bootstrap script to a node
// execution host.
type RemoteHost struct {
	compiler *compiler.Compiler
	config   RemoteConfig
	client   *http.Client
	logger   *slog.Logger
}

// NewRemoteHost returns a RemoteHost. Zero Timeout falls back to the default.
func NewRemoteHost(c *compiler.Compiler, config RemoteConfig, logger *slog.Logger) *RemoteHost {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRemoteConfig().Timeout
	}
	if config.Retries < 0 {
		config.Retries = 0
	}
	return &RemoteHost{
		compiler: c,
		config:   config,
		client:   &http.Client{Timeout: config.Timeout},
		logger:   logger,
	}
}

// Bootstrap assembles the script that loads the runtime, binds exports,
// evaluates mixins, registers the template bundle and renders name with rc.
// The completion callback writes the markup as the HTTP response.
func (h *RemoteHost) Bootstrap(name string, rc compiler.RenderContext) (string, error) {
	bundle, err := h.compiler.Bundle(name)
	if err != nil {
		return "", err
	}
	ctxJSON, err := json.Marshal(rc)
	if err != nil {
		return "", fmt.Errorf("failed to encode render context: %w", err)
	}

	ns := h.compiler.Config().Namespace
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s = require(%s);\n", ns, jsonString(path.Join(h.config.JSRoot, "sluice")))
	sb.WriteString("fs = require('fs');\n")

	exports := make([]string, 0, len(h.config.Exports))
	for k := range h.config.Exports {
		exports = append(exports, k)
	}
	sort.Strings(exports)
	for _, k := range exports {
		v, err := json.Marshal(h.config.Exports[k])
		if err != nil {
			return "", fmt.Errorf("failed to encode export %q: %w", k, err)
		}
		fmt.Fprintf(&sb, "%s = %s;\n", k, v)
	}
	for _, mixin := range h.config.Mixins {
		fmt.Fprintf(&sb, "eval(fs.readFileSync(%s, 'utf8'));\n", jsonString(path.Join(h.config.JSRoot, mixin)))
	}

	sb.WriteString(bundle)
	fmt.Fprintf(&sb, "var __ctx = %s;\n", ctxJSON)
	fmt.Fprintf(&sb, "m = new %s.Monad(%s, __ctx, %s);\n", ns, jsonString(name), jsonString(h.config.TemplateRoot))
	sb.WriteString(`m.render(__ctx, function(data, markup) {
  response.writeHead(200, {
    'Content-Length': Buffer.byteLength(markup, 'utf8'),
    'Content-Type': 'text/html'
  });
  response.end(markup, 'utf8');
});
`)
	return sb.String(), nil
}

// Render compiles name, sends it to the execution host and returns the
// produced markup. Failures are logged and returned as *RemoteRenderError.
func (h *RemoteHost) Render(ctx context.Context, name string, data any) (string, error) {
	rc, err := h.compiler.RenderContext(name, data)
	if err != nil {
		return "", err
	}
	script, err := h.Bootstrap(name, rc)
	if err != nil {
		return "", err
	}

	var markup string
	for attempt := 0; attempt <= h.config.Retries; attempt++ {
		markup, err = h.post(ctx, name, script)
		if err == nil {
			return markup, nil
		}
		var rre *RemoteRenderError
		if !errors.As(err, &rre) || rre.StatusCode != 0 || ctx.Err() != nil {
			break
		}
		h.logger.Warn("Remote render attempt failed", "template", name, "attempt", attempt+1, "error", err)
	}
	h.logger.Error("Remote render failed", "template", name, "error", err)
	return "", err
}

func (h *RemoteHost) post(ctx context.Context, name, script string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.config.URL, strings.NewReader(script))
	if err != nil {
		return "", fmt.Errorf("failed to create render request: %w", err)
	}
	req.Header.Set("Content-Type", "application/javascript; charset=utf-8")

	resp, err := h.client.Do(req)
	if err != nil {
		return "", &RemoteRenderError{Template: name, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &RemoteRenderError{Template: name, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return "", &RemoteRenderError{Template: name, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mediaType != "text/html" {
		return "", &RemoteRenderError{Template: name, StatusCode: resp.StatusCode, Body: string(body), Err: errNotHTML}
	}
	return string(bytes.ToValidUTF8(body, []byte("�"))), nil
}

func jsonString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
