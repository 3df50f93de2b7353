package render

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/CTAG07/Sluice/pkg/compiler"
)

func setupTestRemote(tb testing.TB, handler http.HandlerFunc) (*RemoteHost, *httptest.Server) {
	tb.Helper()
	srv := httptest.NewServer(handler)
	tb.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := compiler.NewCompiler(logger, compiler.MapLoader{
		"hello": "import lib\nHello {{ name }}!",
		"lib":   "L",
	}, nil, compiler.DefaultConfig())

	cfg := DefaultRemoteConfig()
	cfg.URL = srv.URL
	cfg.JSRoot = "/srv/js"
	cfg.TemplateRoot = "/srv/templates"
	cfg.Exports = map[string]any{"site": map[string]string{"name": "x"}}
	cfg.Mixins = []string{"filters.js"}
	cfg.Timeout = 2 * time.Second
	return NewRemoteHost(c, cfg, logger), srv
}

func TestRemoteHost_Render(t *testing.T) {
	var script string
	h, _ := setupTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		script = string(body)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, "Hello World!")
	})

	out, err := h.Render(context.Background(), "hello", map[string]any{"name": "World"})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if out != "Hello World!" {
		t.Errorf("Render() = %q, want Hello World!", out)
	}

	for _, want := range []string{
		`Sluice = require("/srv/js/sluice");`,
		`site = {"name":"x"};`,
		`eval(fs.readFileSync("/srv/js/filters.js", 'utf8'));`,
		`Sluice.fxns["lib"] = `,
		`Sluice.fxns["hello"] = `,
		`"data":{"name":"World"}`,
		`m = new Sluice.Monad("hello", __ctx, "/srv/templates");`,
		`'Content-Type': 'text/html'`,
	} {
		if !strings.Contains(script, want) {
			t.Errorf("bootstrap missing %q:\n%s", want, script)
		}
	}
	if strings.Index(script, "filters.js") > strings.Index(script, `Sluice.fxns["lib"]`) {
		t.Error("mixins must be evaluated before the template bundle")
	}
}

func TestRemoteHost_Failures(t *testing.T) {
	t.Run("non-200", func(t *testing.T) {
		var attempts atomic.Int32
		h, _ := setupTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			http.Error(w, "Error occurred while evaluating template", http.StatusInternalServerError)
		})
		_, err := h.Render(context.Background(), "hello", nil)
		var rre *RemoteRenderError
		if !errors.As(err, &rre) || rre.StatusCode != http.StatusInternalServerError {
			t.Fatalf("Render() error = %v, want 500 RemoteRenderError", err)
		}
		if !strings.Contains(rre.Body, "evaluating template") {
			t.Errorf("Body = %q", rre.Body)
		}
		if attempts.Load() != 1 {
			t.Errorf("got %d attempts, want 1", attempts.Load())
		}
	})

	t.Run("wrong content type", func(t *testing.T) {
		h, _ := setupTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/plain")
			_, _ = io.WriteString(w, "Hello")
		})
		_, err := h.Render(context.Background(), "hello", nil)
		if !errors.Is(err, errNotHTML) {
			t.Errorf("Render() error = %v, want errNotHTML", err)
		}
	})

	t.Run("transport error is retried once", func(t *testing.T) {
		var attempts atomic.Int32
		h, _ := setupTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			if attempts.Add(1) == 1 {
				panic(http.ErrAbortHandler)
			}
			w.Header().Set("Content-Type", "text/html")
			_, _ = io.WriteString(w, "ok")
		})
		out, err := h.Render(context.Background(), "hello", nil)
		if err != nil || out != "ok" {
			t.Errorf("Render() = %q, %v; want ok", out, err)
		}
		if attempts.Load() != 2 {
			t.Errorf("got %d attempts, want 2", attempts.Load())
		}
	})

	t.Run("retries exhausted", func(t *testing.T) {
		var attempts atomic.Int32
		h, _ := setupTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			attempts.Add(1)
			panic(http.ErrAbortHandler)
		})
		_, err := h.Render(context.Background(), "hello", nil)
		var rre *RemoteRenderError
		if !errors.As(err, &rre) || rre.StatusCode != 0 {
			t.Fatalf("Render() error = %v, want transport RemoteRenderError", err)
		}
		if attempts.Load() != 2 {
			t.Errorf("got %d attempts, want 2", attempts.Load())
		}
	})

	t.Run("cancelled", func(t *testing.T) {
		h, _ := setupTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			<-r.Context().Done()
		})
		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err := h.Render(ctx, "hello", nil)
		if !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("Render() error = %v, want deadline exceeded", err)
		}
	})

	t.Run("compile error", func(t *testing.T) {
		h, _ := setupTestRemote(t, func(w http.ResponseWriter, r *http.Request) {
			t.Error("execution host called for a template that does not compile")
		})
		_, err := h.Render(context.Background(), "missing", nil)
		var nf *compiler.SourceNotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("Render() error = %v, want *SourceNotFoundError", err)
		}
	})
}
