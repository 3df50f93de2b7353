package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/CTAG07/Sluice/pkg/compiler"
	"github.com/CTAG07/Sluice/pkg/render"
)

const maxTemplateBody = 1 << 20

// TemplateAPI holds the dependencies for the template API handlers.
type TemplateAPI struct {
	compiler *compiler.Compiler
	renderer render.Renderer
	local    *render.LocalHost
	assets   *AssetEncoder
	stats    *StatsAPI
	reload   func(context.Context) error
	logger   *slog.Logger
}

// CompileResponse describes one compiled template.
type CompileResponse struct {
	Name         string                 `json:"name"`
	Version      string                 `json:"version"`
	Dependencies compiler.DependencyMap `json:"dependencies"`
	Source       string                 `json:"source"`
	Markup       *string                `json:"markup,omitempty"`
}

// NewTemplateAPI creates a new instance of the TemplateAPI.
func NewTemplateAPI(c *compiler.Compiler, renderer render.Renderer, local *render.LocalHost, assets *AssetEncoder, stats *StatsAPI, reload func(context.Context) error, logger *slog.Logger) *TemplateAPI {
	return &TemplateAPI{
		compiler: c,
		renderer: renderer,
		local:    local,
		assets:   assets,
		stats:    stats,
		reload:   reload,
		logger:   logger,
	}
}

// RegisterRoutes sets up the routing for all /api/templates endpoints.
func (t *TemplateAPI) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/templates", t.handleList)
	mux.HandleFunc("/api/templates/refresh", t.handleRefresh)
	mux.HandleFunc("/api/templates/compile", t.handleCompile)
	mux.HandleFunc("/api/templates/bundle", t.handleBundle)
	mux.HandleFunc("/api/templates/versions", t.handleVersions)
	mux.HandleFunc("/api/templates/render", t.handleRender)
	mux.HandleFunc("/api/templates/test", t.handleTest)
	mux.HandleFunc("/api/runtime.js", t.handleRuntime)
}

// respondWithCompileError maps compiler failures onto HTTP statuses.
func respondWithCompileError(w http.ResponseWriter, err error) {
	var nf *compiler.SourceNotFoundError
	var ce *compiler.CompileError
	var rre *render.RemoteRenderError
	switch {
	case errors.As(err, &nf):
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Template '%s' not found", nf.Template))
	case errors.As(err, &ce):
		respondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.As(err, &rre):
		respondWithError(w, http.StatusBadGateway, err.Error())
	default:
		respondWithError(w, http.StatusInternalServerError, err.Error())
	}
}

func requireName(w http.ResponseWriter, r *http.Request) (string, bool) {
	name := r.URL.Query().Get("name")
	if name == "" {
		respondWithError(w, http.StatusBadRequest, "Query parameter 'name' is required")
		return "", false
	}
	return name, true
}

// handleList returns the names of every template in the template directory.
func (t *TemplateAPI) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
		return
	}
	names, err := t.compiler.Names()
	if err != nil {
		t.logger.Error("Failed to list templates", "error", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, names)
}

// handleRefresh clears persisted versions and restarts the server so edits
// on disk are picked up.
func (t *TemplateAPI) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:write") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:write' scope")
		return
	}
	if err := t.reload(r.Context()); err != nil {
		t.logger.Error("Failed to reload templates", "error", err)
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusAccepted, map[string]string{"message": "Templates will be reloaded after restart"})
}

// handleCompile returns the compiled function, version and dependencies of a template.
func (t *TemplateAPI) handleCompile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
		return
	}
	name, ok := requireName(w, r)
	if !ok {
		return
	}

	u, err := t.compiler.Unit(name)
	if err != nil {
		respondWithCompileError(w, err)
		return
	}
	respondWithJSON(w, http.StatusOK, CompileResponse{
		Name:         u.Name(),
		Version:      u.Version(),
		Dependencies: u.Dependencies(),
		Source:       u.Source(),
	})
}

// handleBundle serves the registration script for a template and its dependencies.
func (t *TemplateAPI) handleBundle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
		return
	}
	name, ok := requireName(w, r)
	if !ok {
		return
	}

	u, err := t.compiler.Unit(name)
	if err != nil {
		respondWithCompileError(w, err)
		return
	}
	etag := `"` + u.Version() + `"`
	w.Header().Set("ETag", etag)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	bundle, err := t.compiler.Bundle(name)
	if err != nil {
		respondWithCompileError(w, err)
		return
	}
	t.assets.ServeJS(w, r, bundle)
}

// handleRuntime serves the client runtime the bundles register into.
func (t *TemplateAPI) handleRuntime(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:read") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
		return
	}
	t.assets.ServeJS(w, r, render.Runtime)
}

// handleVersions reads a dependency map or pre-seeds the whole version table.
func (t *TemplateAPI) handleVersions(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if !hasScope(r, "templates:read") {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:read' scope")
			return
		}
		name, ok := requireName(w, r)
		if !ok {
			return
		}
		deps, err := t.compiler.Dependencies(name)
		if err != nil {
			respondWithCompileError(w, err)
			return
		}
		respondWithJSON(w, http.StatusOK, deps)
	case http.MethodPut:
		if !hasScope(r, "templates:write") {
			respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:write' scope")
			return
		}
		var table map[string]compiler.DependencyMap
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTemplateBody)).Decode(&table); err != nil {
			respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
			return
		}
		for name, deps := range table {
			if _, ok := deps[name]; !ok {
				respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Dependency map for '%s' does not contain its own version", name))
				return
			}
		}
		t.compiler.Preseed(table)
		t.logger.Info("Version table pre-seeded via API", "templates", len(table))
		w.WriteHeader(http.StatusNoContent)
	default:
		w.Header().Set("Allow", "GET, PUT")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}

// handleRender renders a template with the JSON request body as its data.
func (t *TemplateAPI) handleRender(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:render") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:render' scope")
		return
	}
	name, ok := requireName(w, r)
	if !ok {
		return
	}

	var data any
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxTemplateBody)).Decode(&data); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON request body")
		return
	}

	start := time.Now()
	markup, err := t.renderer.Render(r.Context(), name, data)
	if statErr := t.stats.RecordRender(r.Context(), name, time.Since(start), err); statErr != nil {
		t.logger.Warn("Failed to record render stats", "template", name, "error", statErr)
	}
	if err != nil {
		respondWithCompileError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, markup)
}

// handleTest compiles the request body as a template without caching it.
// With ?render=1 the result is also rendered in-process against empty data.
func (t *TemplateAPI) handleTest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		respondWithError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if !hasScope(r, "templates:render") {
		respondWithError(w, http.StatusForbidden, "Forbidden: requires 'templates:render' scope")
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxTemplateBody))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Failed to read request body: %v", err))
		return
	}
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "__test__"
	}

	u, err := t.compiler.CompileSource(name, string(body))
	if err != nil {
		respondWithCompileError(w, err)
		return
	}
	resp := CompileResponse{
		Name:         u.Name(),
		Version:      u.Version(),
		Dependencies: u.Dependencies(),
		Source:       u.Source(),
	}
	if mode := r.URL.Query().Get("render"); mode == "1" || strings.EqualFold(mode, "true") {
		markup, err := t.local.RenderSource(r.Context(), u, map[string]any{})
		if err != nil {
			respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Template execution failed: %v", err))
			return
		}
		resp.Markup = &markup
	}
	respondWithJSON(w, http.StatusOK, resp)
}
